// Package session issues opaque tokens and resolves them back to the
// identity they were issued for. Records live in a Store (process
// memory or redis) and carry their own expiry.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/petermazzocco/construction-portal/internal/apperr"
	"github.com/petermazzocco/construction-portal/models"
)

// DefaultTTL is used when a Manager is created with a zero ttl.
const DefaultTTL = 24 * time.Hour

// ErrNoRecord is returned by Store.Load for unknown tokens.
var ErrNoRecord = errors.New("session record not found")

// Identity is what a request is authenticated as.
type Identity struct {
	UserID   uint        `cbor:"uid"`
	Username string      `cbor:"username"`
	FullName string      `cbor:"full_name"`
	Role     models.Role `cbor:"role"`
}

// Record is the stored form of a session.
type Record struct {
	Identity  Identity  `cbor:"identity"`
	ExpiresAt time.Time `cbor:"expires_at"`
}

func (r Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Store persists records by token. Save is given the remaining
// lifetime so backends with native expiry can use it.
type Store interface {
	Save(ctx context.Context, token string, rec Record, ttl time.Duration) error
	Load(ctx context.Context, token string) (Record, error)
	Delete(ctx context.Context, token string) error
}

type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
	log   *logrus.Entry
}

type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(log *logrus.Logger) Option {
	return func(m *Manager) { m.log = log.WithField("component", "session") }
}

func NewManager(store Store, ttl time.Duration, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Manager{
		store: store,
		ttl:   ttl,
		now:   time.Now,
		log:   logrus.WithField("component", "session"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue creates a new random token bound to id.
func (m *Manager) Issue(ctx context.Context, id Identity) (string, error) {
	token := uuid.NewString()
	rec := Record{Identity: id, ExpiresAt: m.now().Add(m.ttl)}
	if err := m.store.Save(ctx, token, rec, m.ttl); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	m.log.WithFields(logrus.Fields{"user_id": id.UserID, "role": id.Role}).Debug("session issued")
	return token, nil
}

// Resolve returns the identity bound to token. Unknown and expired
// tokens yield apperr.ErrUnauthenticated; expired records are removed.
func (m *Manager) Resolve(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, apperr.ErrUnauthenticated
	}
	rec, err := m.store.Load(ctx, token)
	if errors.Is(err, ErrNoRecord) {
		return Identity{}, apperr.ErrUnauthenticated
	}
	if err != nil {
		return Identity{}, fmt.Errorf("load session: %w", err)
	}
	if rec.Expired(m.now()) {
		if err := m.store.Delete(ctx, token); err != nil {
			m.log.WithError(err).Warn("failed to delete expired session")
		}
		return Identity{}, apperr.ErrUnauthenticated
	}
	return rec.Identity, nil
}

// Revoke forgets token. Revoking an unknown token is not an error.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.store.Delete(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
