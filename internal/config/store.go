package config

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/switch-node/internal/logic"
)

// ErrNotFound is returned by a Medium that holds no record yet.
var ErrNotFound = errors.New("no configuration stored")

// Medium is where the encoded record lives.
type Medium interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

// Outcome reports what Load found.
type Outcome int

const (
	// OutcomeValid means a well-formed record was loaded.
	OutcomeValid Outcome = iota
	// OutcomeReset means the record was absent or corrupt and defaults were
	// written in its place.
	OutcomeReset
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValid:
		return "valid"
	case OutcomeReset:
		return "reset"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// DefaultTimeout bounds medium access made without a caller context.
const DefaultTimeout = 2 * time.Second

// Store caches the record and writes it through to a Medium.
type Store struct {
	medium  Medium
	timeout time.Duration

	mu      sync.Mutex
	rec     Record
	loaded  bool // rec reflects the medium
	onReset func()
}

// NewStore creates a store on m. The cached record starts as Defaults.
func NewStore(m Medium) *Store {
	return &Store{
		medium:  m,
		timeout: DefaultTimeout,
		rec:     Defaults(),
	}
}

// OnReset registers f to be called whenever the record is reset to defaults.
// Used to clear associations held by the network stack.
func (s *Store) OnReset(f func()) {
	s.mu.Lock()
	s.onReset = f
	s.mu.Unlock()
}

// Load reads the record. A missing or corrupt record is replaced with
// Defaults, which are written back before returning OutcomeReset. A medium
// read failure other than ErrNotFound is returned without touching the
// medium, and the store re-reads before its next partial write.
func (s *Store) Load(ctx context.Context) (Record, Outcome, error) {
	data, err := s.medium.Read(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Defaults(), OutcomeReset, fmt.Errorf("read config: %w", err)
	}

	if err == nil {
		rec, uerr := Unmarshal(data)
		if uerr == nil {
			s.mu.Lock()
			s.rec = rec
			s.loaded = true
			s.mu.Unlock()
			return rec, OutcomeValid, nil
		}
		log.Printf("config: %v, loading defaults", uerr)
	} else {
		log.Printf("config: none stored, loading defaults")
	}

	if err := s.reset(ctx); err != nil {
		return Defaults(), OutcomeReset, err
	}
	return Defaults(), OutcomeReset, nil
}

// Save overwrites the stored record unconditionally.
func (s *Store) Save(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, r)
}

// SaveChannels replaces the channel states, keeping the membership blob.
// If the record could not be read at boot it is read again first, and the
// write is refused while the medium stays unreadable.
func (s *Store) SaveChannels(channels [logic.NumChannels]bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		if err := s.reload(ctx); err != nil {
			return err
		}
	}
	r := s.rec
	r.Channels = channels
	return s.save(ctx, r)
}

// ResetDefaults writes Defaults and invokes the reset hook.
func (s *Store) ResetDefaults() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.reset(ctx)
}

// record returns a copy of the cached record.
func (s *Store) record() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rec
	if r.Membership != nil {
		r.Membership = append([]byte(nil), r.Membership...)
	}
	return r
}

func (s *Store) reset(ctx context.Context) error {
	s.mu.Lock()
	err := s.save(ctx, Defaults())
	hook := s.onReset
	s.mu.Unlock()

	// Associations are cleared even if the write failed: the cached record
	// is already at defaults.
	if hook != nil {
		hook()
	}
	return err
}

// reload must be called with s.mu held. Nothing readable on the medium
// leaves the cached record as is.
func (s *Store) reload(ctx context.Context) error {
	data, err := s.medium.Read(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return fmt.Errorf("config not loaded: %w", err)
	default:
		if rec, uerr := Unmarshal(data); uerr == nil {
			s.rec = rec
		}
	}
	s.loaded = true
	return nil
}

// save must be called with s.mu held.
func (s *Store) save(ctx context.Context, r Record) error {
	data, err := Marshal(r)
	if err != nil {
		return err
	}
	s.rec = r
	s.loaded = true
	if err := s.medium.Write(ctx, data); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
