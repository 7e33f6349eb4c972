package config

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sweeney/switch-node/internal/logic"
)

func TestMarshalLayout(t *testing.T) {
	data, err := Marshal(Record{
		Channels:   [logic.NumChannels]bool{true, false, true},
		Membership: []byte{0xAA, 0xBB},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []byte{Magic, 1, 0, 1, 0x00, 0x02, 0xAA, 0xBB}
	if !bytes.Equal(data, want) {
		t.Errorf("expected % x, got % x", want, data)
	}
}

func TestMarshalDefaults(t *testing.T) {
	data, err := Marshal(Defaults())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []byte{Magic, 0, 0, 0, 0, 0}
	if !bytes.Equal(data, want) {
		t.Errorf("expected % x, got % x", want, data)
	}
}

func TestMarshalMembershipTooLarge(t *testing.T) {
	_, err := Marshal(Record{Membership: make([]byte, MaxMembershipLen+1)})
	if err == nil {
		t.Error("expected error for oversized membership blob")
	}
}

func TestUnmarshal(t *testing.T) {
	r, err := Unmarshal([]byte{Magic, 0, 1, 0, 0x00, 0x01, 0x07})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Channels != [logic.NumChannels]bool{false, true, false} {
		t.Errorf("unexpected channels %v", r.Channels)
	}
	if !bytes.Equal(r.Membership, []byte{0x07}) {
		t.Errorf("unexpected membership % x", r.Membership)
	}
}

func TestUnmarshalBad(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte{Magic, 0, 0}},
		{"wrong sentinel", []byte{0x00, 0, 0, 0, 0, 0}},
		{"erased flash", []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal(tt.data)
			if !errors.Is(err, ErrBadRecord) {
				t.Errorf("expected ErrBadRecord, got %v", err)
			}
		})
	}
}

func TestUnmarshalLenient(t *testing.T) {
	tests := []struct {
		name       string
		data       []byte
		channels   [logic.NumChannels]bool
		membership []byte
	}{
		{"non-zero channel is on", []byte{Magic, 2, 0, 0xFF, 0, 0}, [logic.NumChannels]bool{true, false, true}, nil},
		{"no length field", []byte{Magic, 1, 0, 0}, [logic.NumChannels]bool{true, false, false}, nil},
		{"half length field", []byte{Magic, 0, 1, 0, 0}, [logic.NumChannels]bool{false, true, false}, nil},
		{"blob shorter than length", []byte{Magic, 0, 0, 1, 0, 3, 0xAA}, [logic.NumChannels]bool{false, false, true}, []byte{0xAA}},
		{"trailing bytes ignored", []byte{Magic, 0, 0, 0, 0, 1, 0xAA, 0xBB}, [logic.NumChannels]bool{}, []byte{0xAA}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Unmarshal(tt.data)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if r.Channels != tt.channels {
				t.Errorf("expected channels %v, got %v", tt.channels, r.Channels)
			}
			if !bytes.Equal(r.Membership, tt.membership) {
				t.Errorf("expected membership % x, got % x", tt.membership, r.Membership)
			}
		})
	}
}
