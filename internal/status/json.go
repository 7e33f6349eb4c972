package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	State         string     `json:"state"`
	Channels      []string   `json:"channels"`
	NodeID        uint8      `json:"node_id"`
	Included      bool       `json:"included"`
	Refreshes     int        `json:"refreshes"`
	LastChange    string     `json:"last_change,omitempty"`
	QueueDropped  uint64     `json:"queue_dropped"`
	ConfigOutcome string     `json:"config_outcome,omitempty"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Config        ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs         int64  `json:"poll_ms"`
	HoldMs         int64  `json:"hold_ms"`
	Broker         string `json:"broker"`
	TopicPrefix    string `json:"topic_prefix"`
	HTTPPort       string `json:"http_port"`
	Storage        string `json:"storage"`
	PersistOutputs bool   `json:"persist_outputs"`
	Watchdog       string `json:"watchdog,omitempty"`
}

// StateOrUnknown returns the state name, or UNKNOWN before the first report.
func (s Snapshot) StateOrUnknown() string {
	if s.State == "" {
		return "UNKNOWN"
	}
	return string(s.State)
}

// ChannelNames returns "ON" or "OFF" per channel.
func (s Snapshot) ChannelNames() []string {
	names := make([]string, len(s.Channels))
	for i, on := range s.Channels {
		if on {
			names[i] = "ON"
		} else {
			names[i] = "OFF"
		}
	}
	return names
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		State:         snap.StateOrUnknown(),
		Channels:      snap.ChannelNames(),
		NodeID:        snap.NodeID,
		Included:      snap.NodeID != 0,
		Refreshes:     snap.Refreshes,
		QueueDropped:  snap.QueueDropped,
		ConfigOutcome: snap.ConfigOutcome,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			PollMs:         snap.Config.PollMs,
			HoldMs:         snap.Config.HoldMs,
			Broker:         snap.Config.Broker,
			TopicPrefix:    snap.Config.TopicPrefix,
			HTTPPort:       snap.Config.HTTPPort,
			Storage:        snap.Config.Storage,
			PersistOutputs: snap.Config.PersistOutputs,
			Watchdog:       snap.Config.Watchdog,
		},
	}
	if !snap.LastChange.IsZero() {
		inner.LastChange = snap.LastChange.UTC().Format(time.RFC3339)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
