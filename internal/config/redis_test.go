package config

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sweeney/switch-node/internal/logic"
)

var _ redisClient = (*redis.Client)(nil)

// fakeRedis answers with go-redis command results backed by a map.
type fakeRedis struct {
	mu     sync.Mutex
	data   map[string]string
	err    error // returned by every command when set
	closed bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func newTestRedisMedium(f *fakeRedis) *RedisMedium {
	return &RedisMedium{client: f, key: DefaultRedisKey}
}

func TestRedisMediumNotFound(t *testing.T) {
	m := newTestRedisMedium(newFakeRedis())

	_, err := m.Read(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisMediumRoundTrip(t *testing.T) {
	f := newFakeRedis()
	s := NewStore(newTestRedisMedium(f))

	_, outcome, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	if outcome != OutcomeReset {
		t.Errorf("expected reset on empty key, got %s", outcome)
	}
	if _, ok := f.data[DefaultRedisKey]; !ok {
		t.Fatal("expected defaults written under the default key")
	}

	want := Record{Channels: [logic.NumChannels]bool{false, true, true}, Membership: []byte{0x00, 0xFF}}
	if err := s.Save(context.Background(), want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, outcome, err := NewStore(newTestRedisMedium(f)).Load(context.Background())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if outcome != OutcomeValid {
		t.Errorf("expected valid, got %s", outcome)
	}
	if got.Channels != want.Channels || string(got.Membership) != "\x00\xFF" {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestRedisMediumErrors(t *testing.T) {
	f := newFakeRedis()
	f.err = errors.New("connection refused")
	m := newTestRedisMedium(f)

	if _, err := m.Read(context.Background()); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("expected read error distinct from ErrNotFound, got %v", err)
	}
	if err := m.Write(context.Background(), []byte{Magic}); err == nil {
		t.Error("expected write error")
	}
	if err := m.Ping(context.Background()); err == nil {
		t.Error("expected ping error")
	}
}

func TestRedisMediumPingAndClose(t *testing.T) {
	f := newFakeRedis()
	m := newTestRedisMedium(f)

	if err := m.Ping(context.Background()); err != nil {
		t.Errorf("unexpected ping error: %v", err)
	}
	m.Close()
	if !f.closed {
		t.Error("expected client closed")
	}
}

func TestNewRedisMediumDefaultKey(t *testing.T) {
	m := NewRedisMedium("localhost:6379", 0, "")
	defer m.Close()
	if m.key != DefaultRedisKey {
		t.Errorf("expected key %q, got %q", DefaultRedisKey, m.key)
	}
}
