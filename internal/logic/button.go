package logic

import (
	"sync"
	"time"
)

// Timer is a pending one-shot callback.
type Timer interface {
	// Stop prevents the callback from running. It returns false if the
	// callback already ran or was already stopped.
	Stop() bool
}

// Scheduler runs a callback once after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemScheduler is a Scheduler backed by time.AfterFunc.
type SystemScheduler struct{}

// AfterFunc implements Scheduler.
func (SystemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// keyState tracks one physical key.
type keyState struct {
	down  bool
	fired bool   // long-press already emitted this press cycle
	gen   uint64 // bumped on every press and release
	timer Timer
}

// Monitor turns raw press/release edges into ShortPress and LongPressTrigger
// events. It is safe to call from edge handlers and timer callbacks.
//
// A second Press while a key is already down is ignored: the running hold
// timer is kept, so a bouncing contact cannot postpone the long press.
type Monitor struct {
	mu        sync.Mutex
	hold      time.Duration
	sched     Scheduler
	emit      func(Event)
	keys      [NumChannels]keyState
	suspended bool
}

// NewMonitor creates a monitor that reports through emit, typically Queue.Push.
func NewMonitor(hold time.Duration, sched Scheduler, emit func(Event)) *Monitor {
	return &Monitor{
		hold:  hold,
		sched: sched,
		emit:  emit,
	}
}

// Press handles an Up→Down edge on key ch.
func (m *Monitor) Press(ch int) {
	if !ValidChannel(ch) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	k := &m.keys[ch]
	if k.down {
		return
	}
	k.down = true
	k.fired = false
	k.gen++
	k.timer = nil

	// No hold timer while a membership procedure is running.
	if m.suspended {
		return
	}
	gen := k.gen
	k.timer = m.sched.AfterFunc(m.hold, func() { m.expire(ch, gen) })
}

// Release handles a Down→Up edge on key ch.
func (m *Monitor) Release(ch int) {
	if !ValidChannel(ch) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	k := &m.keys[ch]
	if !k.down {
		return
	}
	k.down = false
	k.gen++
	if k.timer != nil {
		k.timer.Stop()
		k.timer = nil
	}
	if k.fired {
		return
	}
	m.emit(Event{Type: EventShortPress, Channel: ch})
}

// expire runs on the scheduler's goroutine. A stale generation means the
// press it belonged to has already ended.
func (m *Monitor) expire(ch int, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := &m.keys[ch]
	if !k.down || k.fired || k.gen != gen {
		return
	}
	k.fired = true
	k.timer = nil
	m.emit(Event{Type: EventLongPressTrigger, Channel: ch})
}

// Suspend stops new presses from arming the hold timer. Presses already
// being timed are not affected.
func (m *Monitor) Suspend(suspended bool) {
	m.mu.Lock()
	m.suspended = suspended
	m.mu.Unlock()
}

// isDown reports whether key ch is currently held.
func (m *Monitor) isDown(ch int) bool {
	if !ValidChannel(ch) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[ch].down
}
