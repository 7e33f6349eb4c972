package gpio

import (
	"fmt"
	"sync"
)

// FakeOutputs is a test double that records every write.
type FakeOutputs struct {
	mu sync.Mutex

	// Values holds the last value written to each line.
	Values []bool

	// Writes counts successful writes per line.
	Writes []int

	// Closed tracks if Close was called
	Closed bool

	// WriteError, if set, will be returned by Write()
	WriteError error
}

// NewFakeOutputs creates FakeOutputs with n lines, all off.
func NewFakeOutputs(n int) *FakeOutputs {
	return &FakeOutputs{
		Values: make([]bool, n),
		Writes: make([]int, n),
	}
}

// Write records the value for line index.
func (f *FakeOutputs) Write(index int, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.WriteError != nil {
		return f.WriteError
	}
	if index < 0 || index >= len(f.Values) {
		return fmt.Errorf("output index %d out of range", index)
	}
	f.Values[index] = on
	f.Writes[index]++
	return nil
}

// Value returns the last value written to line index.
func (f *FakeOutputs) Value(index int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Values[index]
}

// WriteCount returns the number of successful writes to line index.
func (f *FakeOutputs) WriteCount(index int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Writes[index]
}

// Close marks the outputs as closed.
func (f *FakeOutputs) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// FakeButtons is a test double that lets tests inject button edges.
type FakeButtons struct {
	handler EdgeHandler

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeButtons creates FakeButtons delivering edges to handler.
func NewFakeButtons(handler EdgeHandler) *FakeButtons {
	return &FakeButtons{handler: handler}
}

// Press simulates a press edge on key.
func (f *FakeButtons) Press(key int) {
	f.handler(key, true)
}

// Release simulates a release edge on key.
func (f *FakeButtons) Release(key int) {
	f.handler(key, false)
}

// Close marks the buttons as closed.
func (f *FakeButtons) Close() error {
	f.Closed = true
	return nil
}
