// Package gpio provides relay, LED and button lines with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Writer drives a fixed set of output lines, addressed by index.
type Writer interface {
	// Write sets line index to its logical on/off value.
	Write(index int, on bool) error

	// Close releases GPIO resources.
	Close() error
}

// EdgeHandler receives debounced button edges. It is called from the
// GPIO event goroutine and must not block.
type EdgeHandler func(key int, pressed bool)

// Buttons is a set of edge-watched input lines.
type Buttons interface {
	Close() error
}

// Pin definitions (BCM numbering)
const (
	PinRelay1 = 5
	PinRelay2 = 6
	PinRelay3 = 13
	PinLED    = 19

	PinButton1 = 17
	PinButton2 = 27
	PinButton3 = 22
)

// DefaultChip is the GPIO chip the pins above belong to.
const DefaultChip = "gpiochip0"

// isPressed maps an edge to the logical key state. Buttons wired to ground
// with a pull-up are inverted: the falling edge is the press.
func isPressed(rising, inverted bool) bool {
	if inverted {
		return !rising
	}
	return rising
}

// rawValue maps a logical output value to the line level.
func rawValue(on, activeLow bool) int {
	if on != activeLow {
		return 1
	}
	return 0
}
