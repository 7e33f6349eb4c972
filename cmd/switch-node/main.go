// Command switch-node drives a three-channel relay switch and bridges it to
// the network stack over MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/switch-node/internal/config"
	"github.com/sweeney/switch-node/internal/gpio"
	"github.com/sweeney/switch-node/internal/logic"
	"github.com/sweeney/switch-node/internal/mqtt"
	"github.com/sweeney/switch-node/internal/relay"
	"github.com/sweeney/switch-node/internal/status"
	"github.com/sweeney/switch-node/internal/version"
	"github.com/sweeney/switch-node/internal/watchdog"
	"github.com/sweeney/switch-node/internal/web"
)

var (
	configPath string

	flagBroker     string
	flagHTTPPort   int
	flagNoWatchdog bool
	flagPersist    bool

	mainCmd = &cobra.Command{
		Use:           "switch-node",
		Short:         "Three-channel relay switch node",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the switch daemon",
		RunE:  runDaemon,
	}
	stateCmd = &cobra.Command{
		Use:   "state",
		Short: "Print the stored configuration record and exit",
		RunE:  runState,
	}
	resetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Overwrite the stored configuration record with defaults",
		RunE:  runReset,
	}
	defaultsCmd = &cobra.Command{
		Use:   "defaults",
		Short: "Print the default settings file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.WriteSettings(cmd.OutOrStdout(), config.DefaultSettings())
		},
	}
)

func main() {
	addRunFlags(runCmd)
	mainCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultSettingsPath, "Config path. The path to the settings file")
	mainCmd.AddCommand(runCmd, stateCmd, resetCmd, defaultsCmd)

	if err := mainCmd.Execute(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagBroker, "broker", "", "MQTT broker address, overrides mqtt.broker")
	cmd.Flags().IntVar(&flagHTTPPort, "http-port", 0, "HTTP status port, overrides http.port (-1 disables)")
	cmd.Flags().BoolVar(&flagNoWatchdog, "no-watchdog", false, "Do not open the hardware watchdog")
	cmd.Flags().BoolVar(&flagPersist, "persist-outputs", false, "Save channel states on every change, overrides app.persist_outputs")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	s, err := config.LoadSettings(configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, &s)
	return run(s)
}

// applyFlags overrides settings with flags given on the command line.
func applyFlags(cmd *cobra.Command, s *config.Settings) {
	f := cmd.Flags()
	if f.Changed("broker") {
		s.MQTT.Broker = flagBroker
	}
	if f.Changed("http-port") {
		s.HTTP.Port = flagHTTPPort
		if flagHTTPPort < 0 {
			s.HTTP.Port = 0
		}
	}
	if f.Changed("no-watchdog") && flagNoWatchdog {
		s.Watchdog.Device = ""
	}
	if f.Changed("persist-outputs") {
		s.App.PersistOutputs = flagPersist
	}
}

func run(s config.Settings) error {
	// Configuration record
	medium, closeMedium, err := openMedium(s.Storage)
	if err != nil {
		return err
	}
	defer closeMedium()
	store := config.NewStore(medium)

	// Relays and network LED share one output request: lines 0..2 are the
	// relays, line 3 the LED.
	pins := append(append([]int(nil), s.GPIO.Relays...), s.GPIO.LED)
	outputs, err := gpio.NewRealOutputs(s.GPIO.Chip, pins, s.GPIO.RelaysActiveLow)
	if err != nil {
		return fmt.Errorf("init gpio outputs: %w", err)
	}
	defer outputs.Close()
	driver := relay.NewDriver(outputs)
	led := relay.NewIndicator(outputs, logic.NumChannels)

	// MQTT
	prefix := mqtt.NormalizePrefix(s.MQTT.TopicPrefix)
	reconnected := make(chan struct{}, 1)
	client, err := mqtt.NewRealClient(mqtt.Options{
		Broker:            s.MQTT.Broker,
		ClientID:          s.MQTT.ClientID,
		AvailabilityTopic: prefix + "/" + mqtt.TopicAvailability,
		BufferSize:        s.MQTT.BufferSize,
		OnReconnect: func() {
			select {
			case reconnected <- struct{}{}:
			default:
			}
		},
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer client.Close()

	// Publishes from the event loop must not wait on the broker.
	outbox := mqtt.NewOutbox(client, s.MQTT.BufferSize)
	defer outbox.Close()

	q := logic.NewQueue(s.App.QueueCapacity)
	bridge := mqtt.NewBridge(outbox, prefix, q)
	store.OnReset(bridge.ResetAssociations)

	// Load the record and drive the relays to it before anything can
	// change them.
	ctx, cancel := context.WithTimeout(context.Background(), config.DefaultTimeout)
	rec, outcome, err := store.Load(ctx)
	cancel()
	if err != nil {
		log.Printf("config: %v", err)
	}
	log.Printf("config: record %s, channels %v", outcome, rec.Channels)
	driver.Restore(rec.Channels)

	// Watchdog
	var wd watchdog.Watchdog = watchdog.Disabled{}
	if s.Watchdog.Device != "" {
		dev, err := watchdog.Open(s.Watchdog.Device, s.Watchdog.Timeout)
		if err != nil {
			return fmt.Errorf("init watchdog: %w", err)
		}
		wd = dev
	}
	defer wd.Close()

	tracker := status.NewTracker(time.Now(), statusConfig(s))
	tracker.SetConfigOutcome(outcome.String())

	monitor := logic.NewMonitor(s.App.HoldTime, logic.SystemScheduler{}, q.Push)
	machine := logic.NewMachine(q, logic.Deps{
		Outputs:   driver,
		Network:   bridge,
		Indicator: led,
		Firmware:  bridge,
		Watchdog:  wd,
		Persister: store,
		Observer:  logic.Observers{bridge, tracker},
		Buttons:   monitor,
	}, logic.Options{
		PersistOutputs: s.App.PersistOutputs,
		UserReboot:     s.App.UserReboot,
		Logf: func(format string, args ...interface{}) {
			log.Printf("logic: "+format, args...)
		},
	})
	bridge.SetFirmwareGate(machine)
	if err := bridge.Subscribe(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	buttons, err := gpio.NewRealButtons(s.GPIO.Chip, s.GPIO.Buttons, s.GPIO.ButtonsInverted, s.GPIO.Debounce, buttonHandler(monitor))
	if err != nil {
		return fmt.Errorf("init gpio buttons: %w", err)
	}
	defer buttons.Close()

	q.Push(logic.Event{Type: logic.EventInit})

	// Publish startup event with full status snapshot
	tracker.SetMQTTConnected(client.IsConnected())
	if err := bridge.PublishSystemRaw(status.FormatStatusEvent(tracker.Snapshot(), "STARTUP", "")); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}
	bridge.PublishVersion()

	// Start HTTP status server
	if s.HTTP.Port != 0 {
		addr := fmt.Sprintf(":%d", s.HTTP.Port)
		srv := web.New(addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", addr)
	}

	log.Printf("started: version=%s broker=%s prefix=%s storage=%s persist_outputs=%v",
		version.String(), s.MQTT.Broker, prefix, s.Storage.Backend, s.App.PersistOutputs)

	ticker := time.NewTicker(s.App.PollInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(loop{
		queue:     q,
		machine:   machine,
		watchdog:  wd,
		kickEvery: s.App.PollInterval,
		tracker:   tracker,
		bridge:    bridge,
		conn:      client,
	}, ticker.C, reconnected, sigCh)
}

// loop is what runLoop drives.
type loop struct {
	queue    *logic.Queue
	machine  *logic.Machine
	watchdog watchdog.Watchdog
	// kickEvery is the minimum spacing of watchdog kicks made while
	// draining. Zero kicks after every event.
	kickEvery time.Duration
	tracker   *status.Tracker
	bridge    *mqtt.Bridge
	conn      mqtt.ConnectionStatus
}

// runLoop is the single consumer of the event queue. It returns nil on a
// signal and logic.ErrHalted once the machine has fired the watchdog.
func runLoop(l loop, tick <-chan time.Time, reconnected <-chan struct{}, sig <-chan os.Signal) error {
	var dropped uint64
	kick := newKicker(l.watchdog, l.kickEvery)

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			l.publishStatus("SHUTDOWN", signalName(s))
			return nil

		case <-l.queue.Ready():
			if err := drain(l.queue, l.machine, kick.maybe); err != nil {
				log.Printf("state machine halted: %v", err)
				l.publishStatus("WATCHDOG_RESET", "")
				return err
			}

		case <-tick:
			kick.now()
			if n := l.queue.Dropped(); n != dropped {
				log.Printf("event queue overflow: %d events dropped", n-dropped)
				dropped = n
				l.tracker.SetQueueDropped(n)
			}
			l.tracker.SetMQTTConnected(l.conn.IsConnected())

		case <-reconnected:
			log.Printf("mqtt reconnected")
			if err := l.bridge.PublishSystem("RECONNECTED", ""); err != nil {
				log.Printf("failed to publish reconnect event: %v", err)
			}
			// Resend the retained state in case the broker lost it.
			l.queue.Push(logic.Event{Type: logic.EventRefresh})
		}
	}
}

// drain steps the machine through every queued event, including those the
// machine queues for itself, calling between after each one.
func drain(q *logic.Queue, m *logic.Machine, between func()) error {
	for {
		ev, ok := q.Pop()
		if !ok {
			return nil
		}
		if err := m.Step(ev); err != nil {
			return err
		}
		between()
	}
}

// kicker keeps the watchdog fed from the run loop.
type kicker struct {
	wd    watchdog.Watchdog
	every time.Duration
	last  time.Time
}

func newKicker(wd watchdog.Watchdog, every time.Duration) *kicker {
	return &kicker{wd: wd, every: every, last: time.Now()}
}

func (k *kicker) now() {
	k.last = time.Now()
	if err := k.wd.Kick(); err != nil {
		log.Printf("watchdog kick error: %v", err)
	}
}

// maybe kicks unless the last kick was less than every ago.
func (k *kicker) maybe() {
	if time.Since(k.last) >= k.every {
		k.now()
	}
}

func (l loop) publishStatus(event, reason string) {
	l.tracker.SetMQTTConnected(l.conn.IsConnected())
	payload := status.FormatStatusEvent(l.tracker.Snapshot(), event, reason)
	if err := l.bridge.PublishSystemRaw(payload); err != nil {
		log.Printf("failed to publish %s event: %v", event, err)
	} else {
		log.Printf("published %s event", event)
	}
}

// buttonHandler feeds GPIO edges into the long-press monitor.
func buttonHandler(m *logic.Monitor) gpio.EdgeHandler {
	return func(key int, pressed bool) {
		if pressed {
			m.Press(key)
		} else {
			m.Release(key)
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

func statusConfig(s config.Settings) status.Config {
	httpPort := "disabled"
	if s.HTTP.Port != 0 {
		httpPort = fmt.Sprintf("%d", s.HTTP.Port)
	}
	prefix := mqtt.NormalizePrefix(s.MQTT.TopicPrefix)
	return status.Config{
		PollMs:         s.App.PollInterval.Milliseconds(),
		HoldMs:         s.App.HoldTime.Milliseconds(),
		Broker:         s.MQTT.Broker,
		TopicPrefix:    prefix,
		HTTPPort:       httpPort,
		Storage:        s.Storage.Backend,
		PersistOutputs: s.App.PersistOutputs,
		Watchdog:       s.Watchdog.Device,
		WSBroker:       resolveWSBroker(s.MQTT.WSBroker, s.MQTT.Broker),
		StateTopic:     prefix + "/" + mqtt.TopicState,
	}
}

// resolveWSBroker converts the ws_broker setting into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; empty or
// "off" disables.
func resolveWSBroker(ws, broker string) string {
	if ws == "off" || ws == "" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(broker)
	if err != nil {
		log.Printf("ws-broker: cannot parse broker %q: %v", broker, err)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}

func runState(cmd *cobra.Command, args []string) error {
	s, err := config.LoadSettings(configPath)
	if err != nil {
		return err
	}
	medium, closeMedium, err := openMedium(s.Storage)
	if err != nil {
		return err
	}
	defer closeMedium()
	return printRecord(cmd.OutOrStdout(), medium)
}

// pinger is implemented by network-backed media.
type pinger interface {
	Ping(ctx context.Context) error
}

// openMedium opens the configured record medium. An unreachable Redis server
// is logged, not fatal: Load falls back to defaults.
func openMedium(st config.StorageSettings) (config.Medium, func(), error) {
	medium, err := st.OpenMedium()
	if err != nil {
		return nil, nil, fmt.Errorf("open config medium: %w", err)
	}
	closeMedium := func() {}
	if c, ok := medium.(io.Closer); ok {
		closeMedium = func() { c.Close() }
	}
	if p, ok := medium.(pinger); ok {
		ctx, cancel := context.WithTimeout(context.Background(), config.DefaultTimeout)
		if err := p.Ping(ctx); err != nil {
			log.Printf("config: %s backend not reachable: %v", st.Backend, err)
		}
		cancel()
	}
	return medium, closeMedium, nil
}

// printRecord reads the record without repairing it.
func printRecord(w io.Writer, medium config.Medium) error {
	ctx, cancel := context.WithTimeout(context.Background(), config.DefaultTimeout)
	defer cancel()

	data, err := medium.Read(ctx)
	if errors.Is(err, config.ErrNotFound) {
		fmt.Fprintln(w, "no record stored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	rec, err := config.Unmarshal(data)
	if err != nil {
		fmt.Fprintf(w, "invalid record: %v\n", err)
		return nil
	}
	fmt.Fprintf(w, "CH1: %s, CH2: %s, CH3: %s, membership: %d bytes\n",
		onOff(rec.Channels[0]), onOff(rec.Channels[1]), onOff(rec.Channels[2]), len(rec.Membership))
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	s, err := config.LoadSettings(configPath)
	if err != nil {
		return err
	}
	medium, closeMedium, err := openMedium(s.Storage)
	if err != nil {
		return err
	}
	defer closeMedium()
	if err := config.NewStore(medium).ResetDefaults(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "configuration reset to defaults")
	return nil
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
