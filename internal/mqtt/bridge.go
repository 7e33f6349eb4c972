package mqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sweeney/switch-node/internal/logic"
	"github.com/sweeney/switch-node/internal/version"
)

// FirmwareGate is the state machine's firmware entry points.
type FirmwareGate interface {
	AcceptFirmwareStart() bool
	OnChunkWritten(data []byte)
}

// Bridge translates between MQTT messages and state machine events. It
// implements logic.Network, logic.Firmware and logic.Observer.
type Bridge struct {
	client Client
	prefix string
	queue  *logic.Queue
	gate   atomic.Value // FirmwareGate
	nodeID atomic.Uint32
	now    func() time.Time
}

// NewBridge creates a bridge publishing under prefix and feeding queue.
func NewBridge(client Client, prefix string, queue *logic.Queue) *Bridge {
	return &Bridge{
		client: client,
		prefix: NormalizePrefix(prefix),
		queue:  queue,
		now:    time.Now,
	}
}

// SetFirmwareGate connects the firmware entry points. Until set, firmware
// start requests are refused.
func (b *Bridge) SetFirmwareGate(g FirmwareGate) {
	b.gate.Store(g)
}

// Topic returns the full topic for suffix.
func (b *Bridge) Topic(suffix string) string {
	return b.prefix + "/" + suffix
}

// Subscribe registers every inbound topic.
func (b *Bridge) Subscribe() error {
	for _, suffix := range []string{
		TopicChannelSet,
		TopicAllSet,
		TopicLearnStart,
		TopicLearnEnd,
		TopicLearnCompleted,
		TopicNodeID,
		TopicResetLocally,
		TopicReboot,
		TopicFirmwareStart,
		TopicFirmwareChunk,
		TopicFirmwareFinish,
		TopicVersionGet,
	} {
		if err := b.client.Subscribe(b.Topic(suffix), 1, b.handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", suffix, err)
		}
	}
	return nil
}

// handle dispatches one inbound message. Malformed payloads are logged and
// dropped.
func (b *Bridge) handle(topic string, payload []byte) {
	suffix := strings.TrimPrefix(topic, b.prefix+"/")

	if ch, ok := parseChannel(suffix); ok {
		on, err := ParseSwitch(payload)
		if err != nil {
			log.Printf("mqtt: %s: %v", topic, err)
			return
		}
		b.queue.Push(logic.Event{Type: logic.EventSetChannel, Channel: ch, Value: on})
		return
	}

	switch suffix {
	case TopicAllSet:
		on, err := ParseSwitch(payload)
		if err != nil {
			log.Printf("mqtt: %s: %v", topic, err)
			return
		}
		b.queue.Push(logic.Event{Type: logic.EventSetAll, Value: on})

	case TopicLearnStart:
		b.queue.Push(logic.Event{Type: logic.EventNetworkJoinRequested})

	case TopicLearnEnd:
		b.queue.Push(logic.Event{Type: logic.EventNetworkJoinEnded})

	case TopicLearnCompleted:
		id, err := ParseNodeID(payload)
		if err != nil {
			log.Printf("mqtt: %s: %v", topic, err)
			return
		}
		if id == logic.NodeBroadcast {
			log.Printf("mqtt: learn mode failed")
		} else {
			b.SetNodeID(id)
		}
		b.queue.Push(logic.Event{Type: logic.EventNetworkJoinFinished, NodeID: id})

	case TopicNodeID:
		id, err := ParseNodeID(payload)
		if err != nil {
			log.Printf("mqtt: %s: %v", topic, err)
			return
		}
		b.SetNodeID(id)

	case TopicResetLocally:
		b.queue.Push(logic.Event{Type: logic.EventFactoryReset})

	case TopicReboot:
		b.queue.Push(logic.Event{Type: logic.EventWatchdogFault})

	case TopicFirmwareStart:
		accepted := false
		if g, ok := b.gate.Load().(FirmwareGate); ok {
			accepted = g.AcceptFirmwareStart()
		}
		b.publishJSON(TopicFirmwareStartResult, 1, false, FirmwareStartResultPayload{Accepted: accepted})

	case TopicFirmwareChunk:
		g, ok := b.gate.Load().(FirmwareGate)
		if !ok {
			log.Printf("mqtt: firmware chunk dropped, no firmware handler")
			return
		}
		g.OnChunkWritten(payload)

	case TopicFirmwareFinish:
		var p FirmwareFinishPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			log.Printf("mqtt: %s: %v", topic, err)
			return
		}
		b.queue.Push(logic.Event{Type: logic.EventFirmwareFinished, Done: p.Done})

	case TopicVersionGet:
		if strings.TrimSpace(string(payload)) == "" {
			b.PublishVersion()
			return
		}
		n, err := ParseTarget(payload)
		if err != nil {
			log.Printf("mqtt: %s: %v", topic, err)
			return
		}
		b.publishJSON(TopicFirmwareVersion, 1, false, version.FirmwareVersion(n))

	default:
		log.Printf("mqtt: unhandled topic %s", topic)
	}
}

// NodeID implements logic.Network.
func (b *Bridge) NodeID() uint8 {
	return uint8(b.nodeID.Load())
}

// SetNodeID records the id the network stack reports.
func (b *Bridge) SetNodeID(id uint8) {
	b.nodeID.Store(uint32(id))
}

// StartLearnMode implements logic.Network.
func (b *Bridge) StartLearnMode(mode logic.LearnMode) {
	b.publishJSON(TopicLearnSet, 1, false, LearnPayload{Mode: string(mode)})
}

// WriteFinish implements logic.Firmware.
func (b *Bridge) WriteFinish() {
	b.publish(TopicFirmwareWriteFinish, 1, false, nil)
}

// Status implements logic.Firmware.
func (b *Bridge) Status(userReboot, done bool) {
	b.publishJSON(TopicFirmwareStatus, 1, false, FirmwareStatusPayload{UserReboot: userReboot, Done: done})
}

// Observe implements logic.Observer by publishing the retained state.
func (b *Bridge) Observe(r logic.Report) {
	payload, err := FormatState(r, b.now())
	if err != nil {
		log.Printf("mqtt: format state: %v", err)
		return
	}
	b.publish(TopicState, 1, true, payload)
}

// ResetAssociations tells the network stack to clear its association groups.
func (b *Bridge) ResetAssociations() {
	b.publish(TopicAssociationReset, 1, false, nil)
}

// PublishSystem sends a system lifecycle event.
func (b *Bridge) PublishSystem(event, reason string) error {
	payload, err := FormatSystem(event, reason, b.now())
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once): lifecycle events must not be lost
	return b.client.Publish(b.Topic(TopicSystem), 1, false, payload)
}

// PublishSystemRaw sends a prebuilt system event payload, such as a full
// status snapshot. It is retained so late subscribers see the last lifecycle
// event.
func (b *Bridge) PublishSystemRaw(payload []byte) error {
	return b.client.Publish(b.Topic(TopicSystem), 1, true, payload)
}

// PublishVersion sends the retained version report.
func (b *Bridge) PublishVersion() {
	b.publishJSON(TopicVersion, 1, true, version.Get())
}

func (b *Bridge) publishJSON(suffix string, qos byte, retained bool, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("mqtt: encode %s: %v", suffix, err)
		return
	}
	b.publish(suffix, qos, retained, payload)
}

func (b *Bridge) publish(suffix string, qos byte, retained bool, payload []byte) {
	if err := b.client.Publish(b.Topic(suffix), qos, retained, payload); err != nil {
		log.Printf("mqtt: %v", err)
	}
}
