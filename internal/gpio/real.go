//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealOutputs drives output lines on actual hardware using the Linux GPIO
// character device.
type RealOutputs struct {
	chip      *gpiocdev.Chip
	lines     []*gpiocdev.Line
	activeLow bool
}

// NewRealOutputs requests every pin as an output, initially off.
func NewRealOutputs(chipName string, pins []int, activeLow bool) (*RealOutputs, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer("switch-node"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	o := &RealOutputs{chip: chip, activeLow: activeLow}
	for _, pin := range pins {
		line, err := chip.RequestLine(pin, gpiocdev.AsOutput(rawValue(false, activeLow)))
		if err != nil {
			o.Close()
			return nil, fmt.Errorf("request output pin %d: %w", pin, err)
		}
		o.lines = append(o.lines, line)
	}
	return o, nil
}

// Write sets line index to on or off.
func (o *RealOutputs) Write(index int, on bool) error {
	if index < 0 || index >= len(o.lines) {
		return fmt.Errorf("output index %d out of range", index)
	}
	if err := o.lines[index].SetValue(rawValue(on, o.activeLow)); err != nil {
		return fmt.Errorf("write output %d: %w", index, err)
	}
	return nil
}

// Close drives every line off, then releases GPIO resources. Lines are
// returned as inputs so relays do not latch during reboot.
func (o *RealOutputs) Close() error {
	var errs []error

	for i, line := range o.lines {
		if err := line.SetValue(rawValue(false, o.activeLow)); err != nil {
			errs = append(errs, fmt.Errorf("switch off output %d: %w", i, err))
		}
		if err := line.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure output %d: %w", i, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output %d: %w", i, err))
		}
	}
	if o.chip != nil {
		if err := o.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealButtons watches input lines for edges using the Linux GPIO character
// device. Debouncing is done by the kernel.
type RealButtons struct {
	chip  *gpiocdev.Chip
	lines []*gpiocdev.Line
}

// NewRealButtons requests every pin as an edge-watched input and calls
// handler with the pin's index on every debounced edge.
func NewRealButtons(chipName string, pins []int, inverted bool, debounce time.Duration, handler EdgeHandler) (*RealButtons, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer("switch-node"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	b := &RealButtons{chip: chip}
	for i, pin := range pins {
		key := i
		opts := []gpiocdev.LineReqOption{
			gpiocdev.AsInput,
			gpiocdev.WithBothEdges,
			gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
				handler(key, isPressed(evt.Type == gpiocdev.LineEventRisingEdge, inverted))
			}),
		}
		if inverted {
			opts = append(opts, gpiocdev.WithPullUp)
		} else {
			opts = append(opts, gpiocdev.WithPullDown)
		}
		if debounce > 0 {
			opts = append(opts, gpiocdev.WithDebounce(debounce))
		}

		line, err := chip.RequestLine(pin, opts...)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request button pin %d: %w", pin, err)
		}
		b.lines = append(b.lines, line)
	}
	return b, nil
}

// Close stops edge watching and releases GPIO resources.
func (b *RealButtons) Close() error {
	var errs []error

	for i, line := range b.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close button %d: %w", i, err))
		}
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
