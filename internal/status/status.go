// Package status provides a thread-safe status tracker for the switch-node daemon.
// It is fed by the state machine on every refresh and read by HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/switch-node/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	PollMs         int64
	HoldMs         int64
	Broker         string
	TopicPrefix    string
	HTTPPort       string
	Storage        string
	PersistOutputs bool
	Watchdog       string // device path, empty = disabled
	WSBroker       string // websocket URL for the live UI, empty = disabled
	StateTopic     string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	State         logic.State
	Channels      [logic.NumChannels]bool
	NodeID        uint8
	Refreshes     int
	LastChange    time.Time
	QueueDropped  uint64
	ConfigOutcome string
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Observe implements logic.Observer. It records the reported state and
// stamps LastChange when the state or channels differ from the last report.
func (t *Tracker) Observe(r logic.Report) {
	now := t.now()
	t.mu.Lock()
	if r.State != t.snap.State || r.Channels != t.snap.Channels {
		t.snap.LastChange = now
	}
	t.snap.State = r.State
	t.snap.Channels = r.Channels
	t.snap.NodeID = r.NodeID
	t.snap.Refreshes++
	t.mu.Unlock()
}

// SetQueueDropped records the event queue's overflow count.
func (t *Tracker) SetQueueDropped(n uint64) {
	t.mu.Lock()
	t.snap.QueueDropped = n
	t.mu.Unlock()
}

// SetConfigOutcome records how the configuration record was loaded.
func (t *Tracker) SetConfigOutcome(outcome string) {
	t.mu.Lock()
	t.snap.ConfigOutcome = outcome
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
