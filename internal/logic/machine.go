package logic

import "sync"

// Outputs is the relay driver.
type Outputs interface {
	Get(ch int) bool
	Set(ch int, on bool)
	SetAll(on bool)
	Snapshot() [NumChannels]bool
}

// Network is the membership side of the network stack.
type Network interface {
	// NodeID returns the node id assigned by the controller, 0 when not
	// included in any network.
	NodeID() uint8
	StartLearnMode(mode LearnMode)
}

// Indicator drives the network status LED.
type Indicator interface {
	SetNetworkLED(on bool)
}

// Firmware is the firmware-update side of the network stack.
type Firmware interface {
	// WriteFinish acknowledges that the last chunk has been written.
	WriteFinish()
	// Status reports the transfer outcome. userReboot tells the stack the
	// host will reboot the node itself.
	Status(userReboot, done bool)
}

// Watchdog reboots the device.
type Watchdog interface {
	Fire()
}

// Persister stores the durable part of the node state.
type Persister interface {
	SaveChannels(channels [NumChannels]bool) error
	ResetDefaults() error
}

// Observer is told about every resynchronization point.
type Observer interface {
	Observe(r Report)
}

// Observers fans a report out to several observers.
type Observers []Observer

// Observe implements Observer.
func (o Observers) Observe(r Report) {
	for _, obs := range o {
		obs.Observe(r)
	}
}

// HoldGate is the part of Monitor the machine controls.
type HoldGate interface {
	Suspend(suspended bool)
}

// Deps are the collaborators the machine acts on. Persister, Observer and
// Buttons may be nil.
type Deps struct {
	Outputs   Outputs
	Network   Network
	Indicator Indicator
	Firmware  Firmware
	Watchdog  Watchdog
	Persister Persister
	Observer  Observer
	Buttons   HoldGate
}

// Options tune machine behaviour.
type Options struct {
	// PersistOutputs saves channel states on every change.
	PersistOutputs bool
	// UserReboot is reported to the firmware stack in status replies. When
	// set, a finished host update does not reboot the node.
	UserReboot bool
	// Logf receives diagnostic messages. Nil discards them.
	Logf func(format string, args ...interface{})
}

// Machine is the application state machine. Step must only be called from
// a single goroutine; State and the firmware entry points may be called from
// any goroutine.
type Machine struct {
	queue *Queue
	deps  Deps
	opts  Options

	mu    sync.RWMutex
	state State

	halted   bool
	fwOffset int
}

// NewMachine creates a machine in StateStartup.
func NewMachine(q *Queue, deps Deps, opts Options) *Machine {
	if opts.Logf == nil {
		opts.Logf = func(string, ...interface{}) {}
	}
	return &Machine{
		queue: q,
		deps:  deps,
		opts:  opts,
		state: StateStartup,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Step processes one event to completion.
func (m *Machine) Step(ev Event) error {
	if m.halted {
		return ErrHalted
	}

	// Forced transitions bypass the per-state handling.
	switch ev.Type {
	case EventWatchdogFault:
		m.opts.Logf("watchdog fault in %s", m.State())
		m.changeState(StateWatchdogReset)
		return ErrHalted
	case EventFactoryReset:
		m.opts.Logf("factory reset in %s", m.State())
		m.resetDefaults()
		m.changeState(StateWatchdogReset)
		return ErrHalted
	}

	if m.State() == StateStartup {
		m.changeState(StateIdle)
		return nil
	}

	// Remote switch commands apply in every live state.
	switch ev.Type {
	case EventSetChannel:
		if ValidChannel(ev.Channel) {
			m.setChannel(ev.Channel, ev.Value)
		}
	case EventSetAll:
		m.deps.Outputs.SetAll(ev.Value)
		m.outputsChanged()
	case EventRefresh:
		m.refresh()
	}

	switch m.State() {
	case StateIdle:
		m.stepIdle(ev)
	case StateLearnMode:
		m.stepLearnMode(ev)
	case StateOta:
		m.stepOta(ev)
	case StateOtaHost:
		m.stepOtaHost(ev)
	}

	if m.halted {
		return ErrHalted
	}
	return nil
}

func (m *Machine) stepIdle(ev Event) {
	switch ev.Type {
	case EventNetworkJoinRequested, EventLongPressTrigger:
		m.startLearnMode()
	case EventShortPress:
		if ValidChannel(ev.Channel) {
			m.setChannel(ev.Channel, !m.deps.Outputs.Get(ev.Channel))
		}
	case EventFirmwareStart:
		m.fwOffset = 0
		m.changeState(StateOta)
	case EventFirmwareChunk:
		m.fwOffset = 0
		m.changeState(StateOtaHost)
		m.chunkWritten(ev.Length)
	}
}

func (m *Machine) stepLearnMode(ev Event) {
	switch ev.Type {
	case EventNetworkJoinEnded:
		m.deps.Network.StartLearnMode(LearnDisable)
		m.changeState(StateIdle)
		m.deps.Indicator.SetNetworkLED(false)
	case EventNetworkJoinFinished:
		if ev.NodeID == 0 {
			// Excluded: forget everything tied to the old network.
			m.resetDefaults()
		}
		m.changeState(StateIdle)
		m.deps.Indicator.SetNetworkLED(false)
	}
}

func (m *Machine) stepOta(ev Event) {
	switch ev.Type {
	case EventFirmwareChunk:
		m.changeState(StateOtaHost)
		m.chunkWritten(ev.Length)
	case EventFirmwareFinished:
		m.firmwareFinished(ev.Done, false)
	}
}

func (m *Machine) stepOtaHost(ev Event) {
	switch ev.Type {
	case EventFirmwareChunk:
		m.chunkWritten(ev.Length)
	case EventFirmwareWriteChunkDone:
		m.deps.Firmware.WriteFinish()
	case EventFirmwareStatusRequested:
		m.deps.Firmware.Status(m.opts.UserReboot, true)
	case EventFirmwareFinished:
		m.firmwareFinished(ev.Done, true)
	}
}

// startLearnMode begins inclusion or exclusion depending on whether the node
// already belongs to a network.
func (m *Machine) startLearnMode() {
	mode := LearnInclusion
	if m.deps.Network.NodeID() != 0 {
		mode = LearnExclusion
	}
	m.opts.Logf("starting learn mode %s", mode)
	m.deps.Network.StartLearnMode(mode)
	m.changeState(StateLearnMode)
	m.deps.Indicator.SetNetworkLED(true)
}

func (m *Machine) chunkWritten(n int) {
	if n > 0 {
		m.fwOffset += n
		m.queue.Push(Event{Type: EventFirmwareWriteChunkDone})
		return
	}
	m.opts.Logf("firmware image received (%d bytes)", m.fwOffset)
	m.queue.Push(Event{Type: EventFirmwareStatusRequested})
}

func (m *Machine) firmwareFinished(done, host bool) {
	m.changeState(StateIdle)
	if host && m.opts.UserReboot {
		return
	}
	if done {
		// Restart on the new image.
		m.changeState(StateWatchdogReset)
	}
}

func (m *Machine) setChannel(ch int, on bool) {
	m.deps.Outputs.Set(ch, on)
	m.outputsChanged()
}

func (m *Machine) outputsChanged() {
	if m.opts.PersistOutputs && m.deps.Persister != nil {
		if err := m.deps.Persister.SaveChannels(m.deps.Outputs.Snapshot()); err != nil {
			m.opts.Logf("save channels: %v", err)
		}
	}
	m.refresh()
}

func (m *Machine) resetDefaults() {
	if m.deps.Persister == nil {
		return
	}
	if err := m.deps.Persister.ResetDefaults(); err != nil {
		m.opts.Logf("reset configuration: %v", err)
	}
}

// refresh resynchronizes observers with the current state.
// TODO: drive per-channel indicator LEDs here once a board revision wires them.
func (m *Machine) refresh() {
	if m.deps.Observer == nil {
		return
	}
	m.deps.Observer.Observe(Report{
		State:    m.State(),
		Channels: m.deps.Outputs.Snapshot(),
		NodeID:   m.deps.Network.NodeID(),
	})
}

// changeState is the only place the state is assigned. Every entry queues
// exactly one Refresh.
func (m *Machine) changeState(next State) {
	m.mu.Lock()
	prev := m.state
	m.state = next
	m.mu.Unlock()

	m.opts.Logf("state %s -> %s", prev, next)
	m.queue.Push(Event{Type: EventRefresh})

	if m.deps.Buttons != nil {
		m.deps.Buttons.Suspend(next != StateIdle)
	}

	if next == StateWatchdogReset {
		m.halted = true
		m.deps.Watchdog.Fire()
	}
}

// AcceptFirmwareStart is called by the firmware stack before a transfer. It
// returns true, and queues FirmwareStart, only when the node is idle.
func (m *Machine) AcceptFirmwareStart() bool {
	if m.State() != StateIdle {
		return false
	}
	m.queue.Push(Event{Type: EventFirmwareStart})
	return true
}

// OnChunkWritten is called by the firmware stack for every image chunk it
// wants written. An empty chunk marks the end of the image.
func (m *Machine) OnChunkWritten(data []byte) {
	m.queue.Push(Event{Type: EventFirmwareChunk, Length: len(data)})
}
