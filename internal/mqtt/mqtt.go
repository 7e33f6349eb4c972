// Package mqtt connects the switch node to the network stack and to home
// automation over MQTT, with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/switch-node/internal/logic"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "home/switch-node"

// NormalizePrefix returns prefix without a trailing slash, or DefaultPrefix
// when empty.
func NormalizePrefix(prefix string) string {
	if prefix == "" {
		return DefaultPrefix
	}
	return strings.TrimSuffix(prefix, "/")
}

// Topic suffixes, relative to the prefix.
const (
	// Inbound
	TopicChannelSet     = "channel/+/set"
	TopicAllSet         = "all/set"
	TopicLearnStart     = "learn/start"
	TopicLearnEnd       = "zwave/learn/end"
	TopicLearnCompleted = "zwave/learn/completed"
	TopicNodeID         = "zwave/node_id"
	TopicResetLocally   = "zwave/reset_locally"
	TopicReboot         = "system/reboot"
	TopicFirmwareStart  = "firmware/start"
	TopicFirmwareChunk  = "firmware/chunk"
	TopicFirmwareFinish = "firmware/finish"
	TopicVersionGet     = "version/get"

	// Outbound
	TopicLearnSet            = "zwave/learn/set"
	TopicAssociationReset    = "zwave/association/reset"
	TopicFirmwareWriteFinish = "firmware/write_finish"
	TopicFirmwareStatus      = "firmware/status"
	TopicFirmwareStartResult = "firmware/start/result"
	TopicState               = "state"
	TopicSystem              = "system"
	TopicVersion             = "version"
	TopicFirmwareVersion     = "version/firmware"
	TopicAvailability        = "availability"
)

// Availability payloads. Offline is also the last will.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Handler receives an inbound message.
type Handler func(topic string, payload []byte)

// Client is a broker connection.
type Client interface {
	// Publish sends payload to topic. Messages published while disconnected
	// may be buffered and sent on reconnect.
	// Returns error if publishing fails (should not crash the process).
	Publish(topic string, qos byte, retained bool, payload []byte) error

	// Subscribe registers handler for topic. Subscriptions survive
	// reconnects.
	Subscribe(topic string, qos byte, handler Handler) error

	// IsConnected reports whether the connection is active.
	IsConnected() bool

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// StatePayload is published retained on every state resynchronization.
type StatePayload struct {
	Timestamp string   `json:"timestamp"`
	State     string   `json:"state"`
	Channels  []string `json:"channels"`
	NodeID    uint8    `json:"node_id"`
}

// FormatState creates the JSON payload for a state report.
func FormatState(r logic.Report, now time.Time) ([]byte, error) {
	channels := make([]string, len(r.Channels))
	for i, on := range r.Channels {
		channels[i] = onOff(on)
	}
	return json.Marshal(StatePayload{
		Timestamp: now.UTC().Format(time.RFC3339),
		State:     string(r.State),
		Channels:  channels,
		NodeID:    r.NodeID,
	})
}

// SystemPayload is the MQTT message payload for system lifecycle events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystem creates the JSON payload for a system event.
func FormatSystem(event, reason string, now time.Time) ([]byte, error) {
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: now.UTC().Format(time.RFC3339),
			Event:     event,
			Reason:    reason,
		},
	})
}

// LearnPayload asks the network stack to change learn mode.
type LearnPayload struct {
	Mode string `json:"mode"`
}

// FirmwareStatusPayload is the reply to a firmware status request.
type FirmwareStatusPayload struct {
	UserReboot bool `json:"user_reboot"`
	Done       bool `json:"done"`
}

// FirmwareStartResultPayload answers a firmware start request.
type FirmwareStartResultPayload struct {
	Accepted bool `json:"accepted"`
}

// FirmwareFinishPayload is sent by the network stack when a transfer ends.
type FirmwareFinishPayload struct {
	Done bool `json:"done"`
}

// LearnCompletedPayload is sent by the network stack when learn mode ends.
type LearnCompletedPayload struct {
	NodeID uint8 `json:"node_id"`
}

// ParseSwitch parses an on/off command payload.
func ParseSwitch(payload []byte) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(string(payload))) {
	case "ON", "TRUE", "1", "255":
		return true, nil
	case "OFF", "FALSE", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid switch payload %q", payload)
	}
}

// ParseTarget parses a firmware target number sent as a bare number.
func ParseTarget(payload []byte) (int, error) {
	s := strings.TrimSpace(string(payload))
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid firmware target %q: %w", payload, err)
	}
	return int(n), nil
}

// ParseNodeID parses a node id sent either as a bare number or as
// LearnCompletedPayload JSON.
func ParseNodeID(payload []byte) (uint8, error) {
	s := strings.TrimSpace(string(payload))
	if strings.HasPrefix(s, "{") {
		var p LearnCompletedPayload
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			return 0, fmt.Errorf("invalid node id payload: %w", err)
		}
		return p.NodeID, nil
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid node id payload %q: %w", payload, err)
	}
	return uint8(n), nil
}

// parseChannel extracts the zero-based channel from ".../channel/<n>/set".
// Channels are numbered from 1 on the wire.
func parseChannel(topic string) (int, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[len(parts)-3] != "channel" {
		return 0, false
	}
	n, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil || !logic.ValidChannel(n-1) {
		return 0, false
	}
	return n - 1, true
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
