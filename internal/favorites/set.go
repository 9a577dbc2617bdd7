package favorites

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/michaelrayburke/cniga-wigc/internal/auth"
	"github.com/michaelrayburke/cniga-wigc/internal/metrics"
	"github.com/michaelrayburke/cniga-wigc/internal/notify"
	"github.com/michaelrayburke/cniga-wigc/internal/supabase"
)

// Set is the starred-event set of one user, held in memory and written
// through to a Store. Changes are applied optimistically and announced to
// subscribers with the full sorted id list.
type Set struct {
	mu     sync.Mutex
	store  Store
	userID string
	ids    map[int]struct{}
	// gen changes whenever the bound user changes; results of requests
	// started under an older generation are dropped.
	gen uint64

	legacy  Legacy
	hub     notify.Hub[[]int]
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// SetOption configures a Set
type SetOption func(*Set)

// WithLegacy migrates favorites out of legacy on every Load.
func WithLegacy(l Legacy) SetOption {
	return func(s *Set) { s.legacy = l }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) SetOption {
	return func(s *Set) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics counts toggles
func WithMetrics(m *metrics.Metrics) SetOption {
	return func(s *Set) { s.metrics = m }
}

// NewSet returns an empty set bound to no user.
func NewSet(opts ...SetOption) *Set {
	s := &Set{
		ids:    make(map[int]struct{}),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub.Logger = s.logger
	return s
}

// Bind switches the set to userID backed by store and empties it. Call Load
// to fetch the user's favorites.
func (s *Set) Bind(store Store, userID string) {
	s.mu.Lock()
	s.store = store
	s.userID = userID
	s.ids = make(map[int]struct{})
	s.gen++
	s.mu.Unlock()

	s.publish()
}

// Reset unbinds the user and empties the set.
func (s *Set) Reset() {
	s.Bind(nil, "")
}

// UserID returns the bound user, or "".
func (s *Set) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Load replaces the set with the store's contents, first migrating any
// legacy favorites. A migration failure is logged and the remote list is
// still applied. Results arriving after the user changed are discarded.
func (s *Set) Load(ctx context.Context) error {
	s.mu.Lock()
	store, userID, gen := s.store, s.userID, s.gen
	s.mu.Unlock()

	if store == nil || userID == "" {
		return ErrNoUser
	}

	var (
		ids []int
		err error
	)
	if s.legacy != nil {
		ids, err = Migrate(ctx, s.legacy, store, userID)
		if err != nil && ids == nil {
			return err
		}
		if err != nil {
			s.logger.Warn("favorites migration incomplete", zap.String("user_id", userID), zap.Error(err))
		}
	} else {
		ids, err = store.List(ctx, userID)
		if err != nil {
			return fmt.Errorf("load favorites: %w", err)
		}
	}

	s.mu.Lock()
	if s.gen != gen || ctx.Err() != nil {
		s.mu.Unlock()
		return ctx.Err()
	}
	s.ids = make(map[int]struct{}, len(ids))
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	s.mu.Unlock()

	s.publish()
	return nil
}

// Has reports whether id is starred.
func (s *Set) Has(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// IDs returns the starred ids in ascending order.
func (s *Set) IDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

// Toggle flips id immediately and then writes the change to the store. If
// the write fails the flip is undone and the error returned. starred is the
// state after the call. Toggles are not debounced; concurrent toggles of the
// same id race against the store and the last write wins.
func (s *Set) Toggle(ctx context.Context, id int) (starred bool, err error) {
	s.mu.Lock()
	if s.store == nil || s.userID == "" {
		s.mu.Unlock()
		return false, ErrNoUser
	}
	_, had := s.ids[id]
	want := !had
	s.applyLocked(id, want)
	store, userID, gen := s.store, s.userID, s.gen
	s.mu.Unlock()
	s.publish()

	if want {
		err = store.Add(ctx, userID, id)
	} else {
		err = store.Remove(ctx, userID, id)
	}
	s.metrics.ObserveToggle(want, err)
	if err == nil {
		return want, nil
	}

	s.logger.Warn("favorite write failed; reverting",
		zap.Int("event_id", id), zap.Bool("starred", want), zap.Error(err))

	s.mu.Lock()
	reverted := false
	if s.gen == gen {
		if _, now := s.ids[id]; now == want {
			s.applyLocked(id, had)
			reverted = true
		}
	}
	_, starred = s.ids[id]
	s.mu.Unlock()
	if reverted {
		s.publish()
	}
	return starred, fmt.Errorf("could not update favorite: %w", err)
}

// Subscribe registers fn to receive the sorted ids after every change.
func (s *Set) Subscribe(fn func(ids []int)) (cancel func()) {
	return s.hub.Subscribe(fn)
}

// Watch keeps the set in step with sessions: a sign-in binds the user's store
// from open and loads it, a token refresh rebinds the store without
// reloading, and a sign-out empties the set. Events that arrive after ctx is
// done are ignored.
func (s *Set) Watch(ctx context.Context, sessions *auth.Sessions, open func(*supabase.Session) Store) (cancel func()) {
	return sessions.Subscribe(func(e auth.Event) {
		if ctx.Err() != nil {
			return
		}
		switch e.Kind {
		case auth.SignedIn:
			s.Bind(open(e.Session), e.Session.User.ID)
			if err := s.Load(ctx); err != nil {
				s.logger.Warn("failed to load favorites after sign-in", zap.Error(err))
			}
		case auth.TokenRefreshed:
			s.mu.Lock()
			if s.userID == e.Session.User.ID {
				s.store = open(e.Session)
			}
			s.mu.Unlock()
		case auth.SignedOut:
			s.Reset()
		}
	})
}

func (s *Set) applyLocked(id int, starred bool) {
	if starred {
		s.ids[id] = struct{}{}
	} else {
		delete(s.ids, id)
	}
}

func (s *Set) sortedLocked() []int {
	ids := make([]int, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *Set) publish() {
	s.hub.Publish(s.IDs())
}
