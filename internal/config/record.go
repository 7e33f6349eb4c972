// Package config persists the node's configuration record and loads daemon
// settings.
//
// The record layout is:
//
//	offset 0    sentinel (Magic)
//	offset 1-3  channel states, non-zero is on
//	offset 4-5  membership blob length, big-endian
//	offset 6-   membership blob
//
// The sentinel alone decides validity. A record whose sentinel is not Magic
// is treated as absent; anything after the channel bytes is read as far as
// it goes.
package config

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sweeney/switch-node/internal/logic"
)

// Magic marks a well-formed record.
const Magic byte = 0x42

const (
	minLen    = 1 + logic.NumChannels
	headerLen = minLen + 2
)

// MaxMembershipLen is the largest membership blob a record can hold.
const MaxMembershipLen = 0xFFFF

// ErrBadRecord is returned when stored bytes do not form a valid record.
var ErrBadRecord = errors.New("invalid configuration record")

// Record is the persisted node configuration.
type Record struct {
	Channels [logic.NumChannels]bool

	// Membership is opaque data owned by the network stack.
	Membership []byte
}

// Defaults returns the factory configuration: every channel off, no
// membership data.
func Defaults() Record {
	return Record{}
}

// Marshal encodes r. The sentinel is always written.
func Marshal(r Record) ([]byte, error) {
	if len(r.Membership) > MaxMembershipLen {
		return nil, fmt.Errorf("membership blob too large: %d bytes", len(r.Membership))
	}

	buf := make([]byte, headerLen+len(r.Membership))
	buf[0] = Magic
	for i, on := range r.Channels {
		if on {
			buf[1+i] = 1
		}
	}
	binary.BigEndian.PutUint16(buf[1+logic.NumChannels:], uint16(len(r.Membership)))
	copy(buf[headerLen:], r.Membership)
	return buf, nil
}

// Unmarshal decodes data. Only a missing sentinel or channel byte is
// ErrBadRecord. A missing length field means no membership blob, and a blob
// shorter or longer than its length field is truncated to what both agree on.
func Unmarshal(data []byte) (Record, error) {
	if len(data) < minLen {
		return Record{}, fmt.Errorf("%w: %d bytes", ErrBadRecord, len(data))
	}
	if data[0] != Magic {
		return Record{}, fmt.Errorf("%w: sentinel 0x%02x", ErrBadRecord, data[0])
	}

	var r Record
	for i := range r.Channels {
		r.Channels[i] = data[1+i] != 0
	}

	if len(data) < headerLen {
		return r, nil
	}
	n := int(binary.BigEndian.Uint16(data[minLen:]))
	if have := len(data) - headerLen; have < n {
		n = have
	}
	if n > 0 {
		r.Membership = make([]byte, n)
		copy(r.Membership, data[headerLen:headerLen+n])
	}
	return r, nil
}
