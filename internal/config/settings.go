package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/sweeney/switch-node/internal/gpio"
	"github.com/sweeney/switch-node/internal/logic"
)

// DefaultSettingsPath is where the daemon looks for its settings file.
const DefaultSettingsPath = "/etc/switch-node.toml"

// Settings configure the daemon. Zero values in the file fall back to the
// compiled-in defaults.
type Settings struct {
	App      AppSettings      `toml:"app"`
	Storage  StorageSettings  `toml:"storage"`
	MQTT     MQTTSettings     `toml:"mqtt"`
	GPIO     GPIOSettings     `toml:"gpio"`
	HTTP     HTTPSettings     `toml:"http"`
	Watchdog WatchdogSettings `toml:"watchdog"`
}

// AppSettings tune the state machine.
type AppSettings struct {
	PersistOutputs bool          `toml:"persist_outputs"`
	UserReboot     bool          `toml:"user_reboot"`
	QueueCapacity  int           `toml:"queue_capacity"`
	HoldTime       time.Duration `toml:"hold_time"`
	PollInterval   time.Duration `toml:"poll_interval"`
}

// StorageSettings select the configuration record medium.
type StorageSettings struct {
	Backend   string `toml:"backend"` // "file" or "redis"
	Path      string `toml:"path"`
	RedisAddr string `toml:"redis_addr"`
	RedisDB   int    `toml:"redis_db"`
	RedisKey  string `toml:"redis_key"`
}

// MQTTSettings configure the broker connection.
type MQTTSettings struct {
	Broker      string `toml:"broker"`
	ClientID    string `toml:"client_id"`
	TopicPrefix string `toml:"topic_prefix"`
	BufferSize  int    `toml:"buffer_size"`
	// WSBroker is the websocket URL the status page uses for live updates.
	// "=broker" derives it from Broker, "off" disables it.
	WSBroker string `toml:"ws_broker"`
}

// GPIOSettings map relays, LED and buttons to pins.
type GPIOSettings struct {
	Chip            string        `toml:"chip"`
	Relays          []int         `toml:"relays"`
	LED             int           `toml:"led"`
	Buttons         []int         `toml:"buttons"`
	RelaysActiveLow bool          `toml:"relays_active_low"`
	ButtonsInverted bool          `toml:"buttons_inverted"`
	Debounce        time.Duration `toml:"debounce"`
}

// HTTPSettings configure the status server. Port 0 disables it.
type HTTPSettings struct {
	Port int `toml:"port"`
}

// WatchdogSettings configure the hardware watchdog. An empty device disables
// it.
type WatchdogSettings struct {
	Device  string        `toml:"device"`
	Timeout time.Duration `toml:"timeout"`
}

// DefaultSettings returns the compiled-in settings.
func DefaultSettings() Settings {
	return Settings{
		App: AppSettings{
			QueueCapacity: logic.DefaultQueueCapacity,
			HoldTime:      logic.HoldDuration,
			PollInterval:  time.Second,
		},
		Storage: StorageSettings{
			Backend:   "file",
			Path:      "/var/lib/switch-node/config.bin",
			RedisAddr: "localhost:6379",
			RedisKey:  DefaultRedisKey,
		},
		MQTT: MQTTSettings{
			Broker:      "tcp://localhost:1883",
			ClientID:    "switch-node",
			TopicPrefix: "home/switch-node",
			BufferSize:  1000,
			WSBroker:    "=broker",
		},
		GPIO: GPIOSettings{
			Chip:            gpio.DefaultChip,
			Relays:          []int{gpio.PinRelay1, gpio.PinRelay2, gpio.PinRelay3},
			LED:             gpio.PinLED,
			Buttons:         []int{gpio.PinButton1, gpio.PinButton2, gpio.PinButton3},
			ButtonsInverted: true,
			Debounce:        10 * time.Millisecond,
		},
		HTTP: HTTPSettings{
			Port: 80,
		},
		Watchdog: WatchdogSettings{
			Device:  "/dev/watchdog",
			Timeout: 15 * time.Second,
		},
	}
}

// LoadSettings reads the TOML file at path over the defaults. A missing file
// yields the defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}

	md, err := toml.DecodeFile(path, &s)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("load settings %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Settings{}, fmt.Errorf("load settings %s: unknown keys %v", path, undecoded)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("load settings %s: %w", path, err)
	}
	return s, nil
}

// Validate checks settings that would otherwise fail late at startup.
func (s Settings) Validate() error {
	if len(s.GPIO.Relays) != logic.NumChannels {
		return fmt.Errorf("gpio.relays needs %d pins, got %d", logic.NumChannels, len(s.GPIO.Relays))
	}
	if len(s.GPIO.Buttons) != logic.NumChannels {
		return fmt.Errorf("gpio.buttons needs %d pins, got %d", logic.NumChannels, len(s.GPIO.Buttons))
	}
	switch s.Storage.Backend {
	case "file":
		if s.Storage.Path == "" {
			return errors.New("storage.path is required for the file backend")
		}
	case "redis":
		if s.Storage.RedisAddr == "" {
			return errors.New("storage.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", s.Storage.Backend)
	}
	if s.App.HoldTime <= 0 {
		return errors.New("app.hold_time must be positive")
	}
	if s.App.PollInterval <= 0 {
		return errors.New("app.poll_interval must be positive")
	}
	if s.HTTP.Port < 0 || s.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", s.HTTP.Port)
	}
	return nil
}

// WriteSettings encodes s as TOML.
func WriteSettings(w io.Writer, s Settings) error {
	return toml.NewEncoder(w).Encode(s)
}

// OpenMedium builds the record medium selected by s.
func (s StorageSettings) OpenMedium() (Medium, error) {
	switch s.Backend {
	case "file":
		return NewFileMedium(s.Path), nil
	case "redis":
		return NewRedisMedium(s.RedisAddr, s.RedisDB, s.RedisKey), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", s.Backend)
	}
}
