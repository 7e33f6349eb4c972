// Package relay drives the relay channels and the network status LED.
package relay

import (
	"log"
	"sync"

	"github.com/sweeney/switch-node/internal/gpio"
	"github.com/sweeney/switch-node/internal/logic"
)

// Driver owns the commanded state of every relay channel. Channel i is
// written to line i of the underlying writer.
//
// Get returns the last commanded value, never physical feedback. A hardware
// write error is logged and the commanded value is kept, so the next
// differing Set retries the line.
type Driver struct {
	mu     sync.Mutex
	w      gpio.Writer
	state  [logic.NumChannels]bool
	synced [logic.NumChannels]bool // line known to match state
}

// NewDriver creates a driver with every channel commanded off. Lines are not
// written until the first Set or Restore.
func NewDriver(w gpio.Writer) *Driver {
	return &Driver{w: w}
}

// Get returns the commanded value of ch. Out of range channels read off.
func (d *Driver) Get(ch int) bool {
	if !logic.ValidChannel(ch) {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state[ch]
}

// Set commands ch on or off. A repeated identical Set does not touch the line.
func (d *Driver) Set(ch int, on bool) {
	if !logic.ValidChannel(ch) {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.set(ch, on)
}

// SetAll commands every channel to the same value.
func (d *Driver) SetAll(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for ch := 0; ch < logic.NumChannels; ch++ {
		d.set(ch, on)
	}
}

// Restore drives every line to channels regardless of the commanded state.
// Used once at boot with the persisted record.
func (d *Driver) Restore(channels [logic.NumChannels]bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for ch, on := range channels {
		d.synced[ch] = false
		d.set(ch, on)
	}
}

// Snapshot returns the commanded value of every channel.
func (d *Driver) Snapshot() [logic.NumChannels]bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Driver) set(ch int, on bool) {
	if d.state[ch] == on && d.synced[ch] {
		return
	}
	d.state[ch] = on
	if err := d.w.Write(ch, on); err != nil {
		log.Printf("relay %d: write failed: %v", ch+1, err)
		d.synced[ch] = false
		return
	}
	d.synced[ch] = true
}

// Indicator drives the network status LED on one line of a writer.
type Indicator struct {
	mu    sync.Mutex
	w     gpio.Writer
	index int
	on    bool
}

// NewIndicator creates an indicator on line index of w.
func NewIndicator(w gpio.Writer, index int) *Indicator {
	return &Indicator{w: w, index: index}
}

// SetNetworkLED switches the LED.
func (i *Indicator) SetNetworkLED(on bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.w.Write(i.index, on); err != nil {
		log.Printf("network led: write failed: %v", err)
		return
	}
	i.on = on
}

// isOn reports the last successfully written LED state.
func (i *Indicator) isOn() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.on
}
