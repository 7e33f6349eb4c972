package watchdog

import (
	"errors"
	"testing"
)

var (
	_ Watchdog = Disabled{}
	_ Watchdog = (*Fake)(nil)
	_ Watchdog = (*Device)(nil)
)

func TestDisabled(t *testing.T) {
	var w Watchdog = Disabled{}
	if err := w.Kick(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	w.Fire()
	if err := w.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeStopsCountingAfterFire(t *testing.T) {
	f := &Fake{}
	f.Kick()
	f.Kick()
	f.Fire()
	f.Kick()

	if f.Kicks() != 2 {
		t.Errorf("expected 2 kicks, got %d", f.Kicks())
	}
	if !f.Fired() {
		t.Error("expected fired")
	}
}

func TestFakeKickError(t *testing.T) {
	f := &Fake{KickError: errors.New("device gone")}
	if err := f.Kick(); err == nil {
		t.Error("expected error")
	}
}

func TestOpenMissingDevice(t *testing.T) {
	if _, err := Open("/nonexistent/watchdog", 0); err == nil {
		t.Error("expected error opening missing device")
	}
}
