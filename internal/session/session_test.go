package session

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/petermazzocco/construction-portal/internal/apperr"
	"github.com/petermazzocco/construction-portal/models"
)

var alice = Identity{UserID: 7, Username: "alice", FullName: "Alice Smith", Role: models.RoleStaff}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func testManager(t *testing.T, store Store) {
	ctx := context.Background()
	c := &clock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	m := NewManager(store, time.Hour, WithClock(c.now))

	token, err := m.Issue(ctx, alice)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(token) != 36 {
		t.Errorf("token %q is not a uuid", token)
	}
	other, err := m.Issue(ctx, alice)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if other == token {
		t.Fatal("Issue returned the same token twice")
	}

	got, err := m.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != alice {
		t.Errorf("Resolve = %+v, want %+v", got, alice)
	}

	if _, err := m.Resolve(ctx, "not-a-token"); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Errorf("Resolve(unknown): got %v, want ErrUnauthenticated", err)
	}
	if _, err := m.Resolve(ctx, ""); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Errorf("Resolve(empty): got %v, want ErrUnauthenticated", err)
	}

	if err := m.Revoke(ctx, token); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := m.Resolve(ctx, token); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Errorf("Resolve after Revoke: got %v, want ErrUnauthenticated", err)
	}
	if err := m.Revoke(ctx, token); err != nil {
		t.Errorf("second Revoke: %v", err)
	}

	c.t = c.t.Add(time.Hour)
	if _, err := m.Resolve(ctx, other); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Errorf("Resolve at expiry: got %v, want ErrUnauthenticated", err)
	}
	if _, err := store.Load(ctx, other); !errors.Is(err, ErrNoRecord) {
		t.Errorf("expired record still stored: %v", err)
	}
}

func TestManagerMemory(t *testing.T) {
	testManager(t, NewMemoryStore())
}

func TestManagerRedis(t *testing.T) {
	addr := os.Getenv("PORTAL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PORTAL_TEST_REDIS_ADDR not set")
	}
	store, err := NewRedisStore(context.Background(), RedisConfig{Addr: addr})
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer store.Close()
	testManager(t, store)
}

func TestDefaultTTL(t *testing.T) {
	m := NewManager(NewMemoryStore(), 0)
	if m.TTL() != DefaultTTL {
		t.Errorf("TTL = %v, want %v", m.TTL(), DefaultTTL)
	}
}

func TestMemorySweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.Save(ctx, "old", Record{Identity: alice, ExpiresAt: now.Add(-time.Minute)}, time.Minute)
	s.Save(ctx, "new", Record{Identity: alice, ExpiresAt: now.Add(time.Minute)}, time.Minute)

	if n := s.Sweep(now); n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
	if _, err := s.Load(ctx, "new"); err != nil {
		t.Errorf("Load(new): %v", err)
	}
}
