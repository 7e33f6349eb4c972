// Package logic contains the pure control logic of the switch node: the
// application state machine, the long-press button monitor and the event queue.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is injected through the Scheduler interface.
package logic

import (
	"errors"
	"time"
)

// NumChannels is the number of relay channels, each paired with one button.
const NumChannels = 3

// HoldDuration is how long a button must stay down to trigger learn mode.
const HoldDuration = 5 * time.Second

// NodeBroadcast is the node id the network stack reports for a failed learn.
const NodeBroadcast uint8 = 0xFF

// ErrHalted is returned by Machine.Step once the watchdog reset path has been
// entered. No further events are processed.
var ErrHalted = errors.New("state machine halted for watchdog reset")

// State is an application state.
type State string

const (
	StateStartup       State = "STARTUP"
	StateIdle          State = "IDLE"
	StateLearnMode     State = "LEARN_MODE"
	StateWatchdogReset State = "WATCHDOG_RESET"
	StateOta           State = "OTA"
	StateOtaHost       State = "OTA_HOST"
)

// EventType identifies an application event.
type EventType string

const (
	// Boot and self-generated
	EventInit    EventType = "INIT"
	EventRefresh EventType = "REFRESH"

	// Button monitor
	EventShortPress       EventType = "SHORT_PRESS"
	EventLongPressTrigger EventType = "LONG_PRESS_TRIGGER"

	// Network membership collaborator
	EventNetworkJoinRequested EventType = "NETWORK_JOIN_REQUESTED"
	EventNetworkJoinEnded     EventType = "NETWORK_JOIN_ENDED"
	EventNetworkJoinFinished  EventType = "NETWORK_JOIN_FINISHED"

	// Remote command dispatch
	EventSetChannel   EventType = "SET_CHANNEL"
	EventSetAll       EventType = "SET_ALL"
	EventFactoryReset EventType = "FACTORY_RESET"

	// Hardware
	EventWatchdogFault EventType = "WATCHDOG_FAULT"

	// Firmware update collaborator
	EventFirmwareStart           EventType = "FIRMWARE_START"
	EventFirmwareChunk           EventType = "FIRMWARE_CHUNK"
	EventFirmwareWriteChunkDone  EventType = "FIRMWARE_WRITE_CHUNK_DONE"
	EventFirmwareStatusRequested EventType = "FIRMWARE_STATUS_REQUESTED"
	EventFirmwareFinished        EventType = "FIRMWARE_FINISHED"
)

// Event is a single entry in the event queue. Only the fields relevant to
// Type are meaningful.
type Event struct {
	Type    EventType
	Channel int   // ShortPress, LongPressTrigger, SetChannel
	Value   bool  // SetChannel, SetAll
	NodeID  uint8 // NetworkJoinFinished
	Length  int   // FirmwareChunk
	Done    bool  // FirmwareFinished: image complete
}

// LearnMode is the membership procedure requested from the network stack.
type LearnMode string

const (
	LearnInclusion LearnMode = "INCLUSION"
	LearnExclusion LearnMode = "EXCLUSION"
	LearnDisable   LearnMode = "DISABLE"
)

// Report is what observers receive whenever the node state needs to be
// resynchronized.
type Report struct {
	State    State
	Channels [NumChannels]bool
	NodeID   uint8
}

// ValidChannel reports whether ch is a channel index.
func ValidChannel(ch int) bool {
	return ch >= 0 && ch < NumChannels
}
