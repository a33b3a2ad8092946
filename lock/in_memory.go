package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hupe1980/turnmesh/core"
	"github.com/hupe1980/turnmesh/internal/clock"
	"github.com/hupe1980/turnmesh/logging"
)

// DefaultTTL is the idle time after which a held lock becomes stale.
const DefaultTTL = 10 * time.Minute

// ErrNotHeld is returned when touching a lock the caller does not hold.
var ErrNotHeld = errors.New("lock: not held")

// Options configures an InMemoryStore.
type Options struct {
	TTL    time.Duration
	Clock  clock.Clock
	Logger logging.Logger
}

type entry struct {
	holder     string
	acquiredAt time.Time
	lastActive time.Time
}

// Holder describes a held lock.
type Holder struct {
	Scope      core.LockScope
	Holder     string
	AcquiredAt time.Time
	LastActive time.Time
}

// InMemoryStore is a process local lock table keyed by scope. It is safe for
// concurrent access.
type InMemoryStore struct {
	mu     sync.Mutex
	locks  map[core.LockScope]entry
	ttl    time.Duration
	clock  clock.Clock
	logger logging.Logger
}

// NewInMemoryStore constructs an empty lock table.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{TTL: DefaultTTL}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	return &InMemoryStore{
		locks:  make(map[core.LockScope]entry),
		ttl:    opts.TTL,
		clock:  clock.OrReal(opts.Clock),
		logger: logging.OrNoOp(opts.Logger),
	}
}

// TTL returns the staleness timeout.
func (s *InMemoryStore) TTL() time.Duration { return s.ttl }

// TryAcquire takes scope for holder when free. Re-acquiring by the same
// holder refreshes activity and succeeds.
func (s *InMemoryStore) TryAcquire(_ context.Context, scope core.LockScope, holder string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	if e, ok := s.locks[scope]; ok {
		if e.holder != holder {
			return false, nil
		}
		e.lastActive = now
		s.locks[scope] = e
		return true, nil
	}
	s.locks[scope] = entry{holder: holder, acquiredAt: now, lastActive: now}
	return true, nil
}

// Touch records activity on a lock held by holder, postponing staleness.
func (s *InMemoryStore) Touch(_ context.Context, scope core.LockScope, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.locks[scope]
	if !ok || e.holder != holder {
		return ErrNotHeld
	}
	e.lastActive = s.clock.Now()
	s.locks[scope] = e
	return nil
}

// IsLocked reports whether scope is held, stale or not.
func (s *InMemoryStore) IsLocked(_ context.Context, scope core.LockScope) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.locks[scope]
	return ok, nil
}

// Release frees scope. Releasing a free scope is a no-op.
func (s *InMemoryStore) Release(_ context.Context, scope core.LockScope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, scope)
	return nil
}

// ReleaseHeld frees scope if holder still owns it.
func (s *InMemoryStore) ReleaseHeld(_ context.Context, scope core.LockScope, holder string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.locks[scope]
	if !ok || e.holder != holder {
		return false, nil
	}
	delete(s.locks, scope)
	return true, nil
}

// CleanupStaleLocks reclaims every lock idle for longer than the TTL.
func (s *InMemoryStore) CleanupStaleLocks(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	reclaimed := 0
	for scope, e := range s.locks {
		if now.Sub(e.lastActive) > s.ttl {
			delete(s.locks, scope)
			reclaimed++
			s.logger.Warn("Reclaimed stale lock", "scope", scope.String(), "holder", e.holder, "idle", now.Sub(e.lastActive))
		}
	}
	return reclaimed, nil
}

// Holders returns a snapshot of every held lock.
func (s *InMemoryStore) Holders() []Holder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Holder, 0, len(s.locks))
	for scope, e := range s.locks {
		out = append(out, Holder{Scope: scope, Holder: e.holder, AcquiredAt: e.acquiredAt, LastActive: e.lastActive})
	}
	return out
}
