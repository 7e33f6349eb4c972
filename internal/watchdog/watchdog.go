// Package watchdog kicks and fires the hardware watchdog.
//
// Kick is called on every poll tick while the node is live. Fire stops
// kicking and shortens the timeout so the hardware resets the board.
package watchdog

import (
	"log"
	"sync"
)

// Watchdog is a hardware or simulated watchdog.
type Watchdog interface {
	Kick() error
	Fire()
	Close() error
}

// Disabled is used when no watchdog device is configured. Fire only logs;
// the process exit that follows is left to the service manager.
type Disabled struct{}

// Kick implements Watchdog.
func (Disabled) Kick() error { return nil }

// Fire implements Watchdog.
func (Disabled) Fire() {
	log.Printf("watchdog: disabled, reboot left to service manager")
}

// Close implements Watchdog.
func (Disabled) Close() error { return nil }

// Fake is a test double that counts calls.
type Fake struct {
	mu     sync.Mutex
	kicks  int
	fired  bool
	closed bool

	// KickError, if set, will be returned by Kick()
	KickError error
}

// Kick implements Watchdog. Kicks after Fire are ignored.
func (f *Fake) Kick() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.KickError != nil {
		return f.KickError
	}
	if !f.fired {
		f.kicks++
	}
	return nil
}

// Fire implements Watchdog.
func (f *Fake) Fire() {
	f.mu.Lock()
	f.fired = true
	f.mu.Unlock()
}

// Close implements Watchdog.
func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Kicks returns the number of kicks before Fire.
func (f *Fake) Kicks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kicks
}

// Fired reports whether Fire was called.
func (f *Fake) Fired() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fired
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
