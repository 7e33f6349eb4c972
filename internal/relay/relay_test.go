package relay

import (
	"errors"
	"testing"

	"github.com/sweeney/switch-node/internal/gpio"
	"github.com/sweeney/switch-node/internal/logic"
)

var _ logic.Outputs = (*Driver)(nil)
var _ logic.Indicator = (*Indicator)(nil)

func TestSetGet(t *testing.T) {
	w := gpio.NewFakeOutputs(logic.NumChannels)
	d := NewDriver(w)

	for ch := 0; ch < logic.NumChannels; ch++ {
		for _, v := range []bool{true, false, true} {
			d.Set(ch, v)
			if got := d.Get(ch); got != v {
				t.Errorf("channel %d: set %v, got %v", ch, v, got)
			}
			if w.Value(ch) != v {
				t.Errorf("channel %d: line is %v, expected %v", ch, w.Value(ch), v)
			}
		}
	}
}

func TestSetAll(t *testing.T) {
	w := gpio.NewFakeOutputs(logic.NumChannels)
	d := NewDriver(w)
	d.Set(1, true)

	for _, v := range []bool{true, false} {
		d.SetAll(v)
		if d.Get(0) != v || d.Get(1) != v || d.Get(2) != v {
			t.Errorf("SetAll(%v) gave %v", v, d.Snapshot())
		}
	}
}

func TestSetIsIdempotent(t *testing.T) {
	w := gpio.NewFakeOutputs(logic.NumChannels)
	d := NewDriver(w)

	d.Set(0, true)
	d.Set(0, true)
	d.Set(0, true)

	if w.WriteCount(0) != 1 {
		t.Errorf("expected 1 write, got %d", w.WriteCount(0))
	}
}

func TestInitialOffWritesLine(t *testing.T) {
	w := gpio.NewFakeOutputs(logic.NumChannels)
	d := NewDriver(w)

	// Commanded off but never written: the first Set(off) must reach the line.
	d.Set(2, false)
	if w.WriteCount(2) != 1 {
		t.Errorf("expected first write to reach line, got %d writes", w.WriteCount(2))
	}
}

func TestWriteErrorKeepsCommandedValue(t *testing.T) {
	w := gpio.NewFakeOutputs(logic.NumChannels)
	w.WriteError = errors.New("line busy")
	d := NewDriver(w)

	d.Set(1, true)
	if !d.Get(1) {
		t.Error("commanded value must be recorded even when the write fails")
	}

	// Once the line recovers, the same value is written again.
	w.WriteError = nil
	d.Set(1, true)
	if !w.Value(1) {
		t.Error("expected retry to reach line")
	}
}

func TestInvalidChannel(t *testing.T) {
	w := gpio.NewFakeOutputs(logic.NumChannels)
	d := NewDriver(w)

	d.Set(-1, true)
	d.Set(logic.NumChannels, true)

	if d.Get(logic.NumChannels) {
		t.Error("invalid channel must read off")
	}
	if d.Snapshot() != [logic.NumChannels]bool{} {
		t.Errorf("invalid channel changed state: %v", d.Snapshot())
	}
}

func TestRestore(t *testing.T) {
	w := gpio.NewFakeOutputs(logic.NumChannels)
	d := NewDriver(w)

	d.Restore([logic.NumChannels]bool{true, false, true})

	if d.Snapshot() != [logic.NumChannels]bool{true, false, true} {
		t.Errorf("unexpected snapshot %v", d.Snapshot())
	}
	for ch := 0; ch < logic.NumChannels; ch++ {
		if w.WriteCount(ch) != 1 {
			t.Errorf("channel %d: expected 1 write, got %d", ch, w.WriteCount(ch))
		}
	}
}

func TestIndicator(t *testing.T) {
	w := gpio.NewFakeOutputs(logic.NumChannels + 1)
	led := NewIndicator(w, logic.NumChannels)

	led.SetNetworkLED(true)
	if !w.Value(logic.NumChannels) || !led.isOn() {
		t.Error("expected LED on")
	}
	led.SetNetworkLED(false)
	if w.Value(logic.NumChannels) || led.isOn() {
		t.Error("expected LED off")
	}
}

func TestIndicatorWriteError(t *testing.T) {
	w := gpio.NewFakeOutputs(1)
	w.WriteError = errors.New("line busy")
	led := NewIndicator(w, 0)

	led.SetNetworkLED(true)
	if led.isOn() {
		t.Error("failed write must not report LED on")
	}
}
