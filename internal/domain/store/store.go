// Package store owns the in-memory snapshot of users, patients, sessions and
// care plans. Reads come from the snapshot; writes go to the document gateway
// and are followed by a reload of the affected collections.
package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rehab/rehab/internal/domain/rehab"
	"github.com/rehab/rehab/internal/domain/stats"
	"github.com/rehab/rehab/internal/platform/accounts"
	"github.com/rehab/rehab/internal/platform/docstore"
	"github.com/rehab/rehab/internal/platform/events"
	"github.com/rehab/rehab/internal/platform/retry"
)

// Collection names in the document gateway. Patients live in the users
// collection and are told apart by role.
const (
	UsersCollection     = "users"
	SessionsCollection  = "sessions"
	CarePlansCollection = "carePlans"
)

type Store struct {
	docs     docstore.Gateway
	accounts accounts.Provider
	events   events.Publisher
	logger   zerolog.Logger
	load     retry.Policy
	now      func() time.Time

	mu      sync.RWMutex
	snap    rehab.Snapshot
	loading int

	creatingUser atomic.Bool
}

type Option func(*Store)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l.With().Str("component", "store").Logger() }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Store) { s.events = p }
}

// WithLoadPolicy overrides the retry policy used by load actions.
func WithLoadPolicy(p retry.Policy) Option {
	return func(s *Store) { s.load = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(docs docstore.Gateway, accts accounts.Provider, opts ...Option) *Store {
	s := &Store{
		docs:     docs,
		accounts: accts,
		events:   events.Nop{},
		logger:   zerolog.Nop(),
		load:     retry.Default(),
		now:      time.Now,
	}
	s.snap.Stats = stats.Overview(s.snap)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() rehab.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap.Clone()
	out.IsLoading = s.loading > 0
	return out
}

// CreatingUser reports whether an account creation is in flight. Session
// observers use it to ignore the auth-state change the new account triggers.
func (s *Store) CreatingUser() bool {
	return s.creatingUser.Load()
}

func (s *Store) update(fn func(*rehab.Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.snap)
	s.snap.Stats = stats.Overview(s.snap)
}

func (s *Store) setError(msg string) {
	s.mu.Lock()
	s.snap.Error = msg
	s.mu.Unlock()
}

func (s *Store) beginLoad() func() {
	s.mu.Lock()
	s.loading++
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.loading--
		s.mu.Unlock()
	}
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// publish emits a domain event. Failures are logged and otherwise ignored.
func (s *Store) publish(ctx context.Context, typ, subject string, data map[string]interface{}) {
	e := events.New(typ, subject, data)
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn().Err(err).Str("event_type", typ).Str("subject", subject).Msg("event publish failed")
	}
}
