package config

import (
	"context"
	"sync"
)

// MemMedium is an in-memory Medium for tests and dry runs.
type MemMedium struct {
	mu sync.Mutex

	// Data is the stored bytes. Nil means nothing stored.
	Data []byte

	// Writes counts successful writes.
	Writes int

	// ReadError and WriteError, if set, are returned by Read and Write.
	ReadError  error
	WriteError error
}

// Read implements Medium.
func (m *MemMedium) Read(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadError != nil {
		return nil, m.ReadError
	}
	if m.Data == nil {
		return nil, ErrNotFound
	}
	return append([]byte(nil), m.Data...), nil
}

// Write implements Medium.
func (m *MemMedium) Write(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteError != nil {
		return m.WriteError
	}
	m.Data = append([]byte(nil), data...)
	m.Writes++
	return nil
}
