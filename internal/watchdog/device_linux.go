//go:build linux

package watchdog

import (
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// fireTimeout is the timeout set by Fire, in seconds.
const fireTimeout = 1

// Device is a Linux watchdog character device such as /dev/watchdog.
type Device struct {
	mu    sync.Mutex
	fd    int
	path  string
	fired bool
}

// Open opens the watchdog at path and sets its timeout. Opening the device
// arms it.
func Open(path string, timeout time.Duration) (*Device, error) {
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open watchdog %s: %w", path, err)
	}

	if timeout > 0 {
		secs := int(timeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		if err := unix.IoctlSetPointerInt(fd, unix.WDIOC_SETTIMEOUT, secs); err != nil {
			// Not every driver supports changing the timeout.
			log.Printf("watchdog: set timeout %ds: %v", secs, err)
		}
	}

	return &Device{fd: fd, path: path}, nil
}

// Kick resets the watchdog timer. It is a no-op after Fire.
func (d *Device) Kick() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fired || d.fd < 0 {
		return nil
	}
	if _, err := unix.Write(d.fd, []byte{0}); err != nil {
		return fmt.Errorf("kick watchdog: %w", err)
	}
	return nil
}

// Fire stops kicking and shortens the timeout so the board resets soon.
func (d *Device) Fire() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fired {
		return
	}
	d.fired = true
	log.Printf("watchdog: firing, board resets in %ds", fireTimeout)
	if err := unix.IoctlSetPointerInt(d.fd, unix.WDIOC_SETTIMEOUT, fireTimeout); err != nil {
		log.Printf("watchdog: shorten timeout: %v", err)
	}
}

// Close disarms the watchdog with the magic close character and releases
// the device. After Fire the device is closed without disarming.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return nil
	}
	if !d.fired {
		if _, err := unix.Write(d.fd, []byte{'V'}); err != nil {
			log.Printf("watchdog: magic close: %v", err)
		}
	}
	err := unix.Close(d.fd)
	d.fd = -1
	if err != nil {
		return fmt.Errorf("close watchdog %s: %w", d.path, err)
	}
	return nil
}
