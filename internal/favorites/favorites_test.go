package favorites

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/michaelrayburke/cniga-wigc/internal/auth"
	"github.com/michaelrayburke/cniga-wigc/internal/metrics"
	"github.com/michaelrayburke/cniga-wigc/internal/supabase"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memStore is an in-memory Store whose writes can be made to fail.
type memStore struct {
	mu      sync.Mutex
	rows    map[string]map[int]bool
	failAdd error
	failRm  error
	failUp  error
	cleared []string
}

func newMemStore() *memStore {
	return &memStore{rows: map[string]map[int]bool{}}
}

func (m *memStore) List(_ context.Context, userID string) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := []int{}
	for id := range m.rows[userID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memStore) Add(_ context.Context, userID string, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAdd != nil {
		return m.failAdd
	}
	if m.rows[userID] == nil {
		m.rows[userID] = map[int]bool{}
	}
	m.rows[userID][id] = true
	return nil
}

func (m *memStore) Remove(_ context.Context, userID string, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRm != nil {
		return m.failRm
	}
	delete(m.rows[userID], id)
	return nil
}

func (m *memStore) Upsert(ctx context.Context, userID string, ids []int) error {
	if m.failUp != nil {
		return m.failUp
	}
	for _, id := range ids {
		if err := m.Add(ctx, userID, id); err != nil {
			return err
		}
	}
	return nil
}

func (m *memStore) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, userID)
	m.cleared = append(m.cleared, userID)
	return nil
}

func TestToggleOptimisticThenRevert(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	mets := metrics.New()
	set := NewSet(WithMetrics(mets))
	set.Bind(store, "u1")

	var seen [][]int
	set.Subscribe(func(ids []int) { seen = append(seen, ids) })

	store.failAdd = errors.New("network down")
	starred, err := set.Toggle(ctx, 42)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.failAdd)
	assert.False(t, starred)
	assert.False(t, set.Has(42))

	// Starred immediately, then reverted.
	assert.Equal(t, [][]int{{42}, {}}, seen)
}

func TestToggleWritesThrough(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	set := NewSet()
	set.Bind(store, "u1")

	starred, err := set.Toggle(ctx, 7)
	require.NoError(t, err)
	assert.True(t, starred)
	assert.True(t, store.rows["u1"][7])

	starred, err = set.Toggle(ctx, 7)
	require.NoError(t, err)
	assert.False(t, starred)
	assert.False(t, store.rows["u1"][7])

	store.failRm = errors.New("denied")
	_, err = set.Toggle(ctx, 3)
	require.NoError(t, err)
	starred, err = set.Toggle(ctx, 3)
	require.Error(t, err)
	assert.True(t, starred, "failed unstar leaves the event starred")
	assert.Equal(t, []int{3}, set.IDs())
}

func TestToggleWithoutUser(t *testing.T) {
	set := NewSet()
	_, err := set.Toggle(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoUser)
	assert.ErrorIs(t, set.Load(context.Background()), ErrNoUser)
}

// stalledStore holds every Add until release is closed and then fails it.
type stalledStore struct {
	*memStore
	started chan struct{}
	release chan struct{}
}

func (s *stalledStore) Add(context.Context, string, int) error {
	close(s.started)
	<-s.release
	return errors.New("timeout")
}

func TestToggleFailureAfterRebindReportsCurrentState(t *testing.T) {
	ctx := context.Background()
	slow := &stalledStore{memStore: newMemStore(), started: make(chan struct{}), release: make(chan struct{})}
	other := newMemStore()
	require.NoError(t, other.Upsert(ctx, "u2", []int{4}))

	set := NewSet()
	set.Bind(slow, "u1")

	type result struct {
		starred bool
		err     error
	}
	done := make(chan result, 1)
	go func() {
		starred, err := set.Toggle(ctx, 4)
		done <- result{starred, err}
	}()

	<-slow.started
	set.Bind(other, "u2")
	require.NoError(t, set.Load(ctx))
	close(slow.release)

	res := <-done
	require.Error(t, res.err)
	assert.True(t, res.starred, "u2 has event 4 starred")
	assert.True(t, set.Has(4))
}

func TestToggleConcurrentIndependentIDs(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	set := NewSet()
	set.Bind(store, "u1")

	var wg sync.WaitGroup
	for id := 1; id <= 20; id++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = set.Toggle(ctx, id)
		}()
	}
	wg.Wait()

	assert.Len(t, set.IDs(), 20)
	ids, err := store.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, ids, 20)
}

func TestLoadAndRebind(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	require.NoError(t, store.Upsert(ctx, "u1", []int{5, 2}))
	require.NoError(t, store.Upsert(ctx, "u2", []int{9}))

	set := NewSet()
	set.Bind(store, "u1")
	require.NoError(t, set.Load(ctx))
	assert.Equal(t, []int{2, 5}, set.IDs())
	assert.Equal(t, "u1", set.UserID())

	set.Bind(store, "u2")
	assert.Empty(t, set.IDs())
	require.NoError(t, set.Load(ctx))
	assert.Equal(t, []int{9}, set.IDs())

	set.Reset()
	assert.Empty(t, set.IDs())
	assert.Equal(t, "", set.UserID())
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	legacy := newMemStore()
	remote := newMemStore()
	require.NoError(t, legacy.Upsert(ctx, LocalUser, []int{1, 2, 3}))
	require.NoError(t, remote.Upsert(ctx, "u1", []int{2}))

	merged, err := Migrate(ctx, legacy, remote, "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2, 3}, merged)
	assert.Equal(t, []string{LocalUser}, legacy.cleared)

	ids, err := remote.List(ctx, "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2, 3}, ids)

	// Nothing left to move the second time.
	merged, err = Migrate(ctx, legacy, remote, "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2, 3}, merged)
	assert.Len(t, legacy.cleared, 1)
}

func TestMigrateUpsertFailureKeepsLegacy(t *testing.T) {
	ctx := context.Background()
	legacy := newMemStore()
	remote := newMemStore()
	require.NoError(t, legacy.Upsert(ctx, LocalUser, []int{1}))
	require.NoError(t, remote.Upsert(ctx, "u1", []int{4}))
	remote.failUp = errors.New("rls")

	ids, err := Migrate(ctx, legacy, remote, "u1")
	require.Error(t, err)
	assert.Equal(t, []int{4}, ids)
	assert.Empty(t, legacy.cleared)

	set := NewSet(WithLegacy(legacy))
	set.Bind(remote, "u1")
	require.NoError(t, set.Load(ctx), "migration failures do not fail the load")
	assert.Equal(t, []int{4}, set.IDs())
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "favorites.db"))
	require.NoError(t, err)
	defer s.Close()

	ids, err := s.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, s.Add(ctx, "u1", 10))
	require.NoError(t, s.Add(ctx, "u1", 10))
	require.NoError(t, s.Upsert(ctx, "u1", []int{11, 12, 10}))
	require.NoError(t, s.Add(ctx, "u2", 99))
	require.NoError(t, s.Remove(ctx, "u1", 11))

	ids, err = s.List(ctx, "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{10, 12}, ids)

	require.NoError(t, s.Clear(ctx, "u1"))
	ids, err = s.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = s.List(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, []int{99}, ids)
}

func TestSQLiteAsLegacySource(t *testing.T) {
	ctx := context.Background()
	local, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer local.Close()
	require.NoError(t, local.Upsert(ctx, LocalUser, []int{8}))

	remote := newMemStore()
	set := NewSet(WithLegacy(local))
	set.Bind(remote, "u1")
	require.NoError(t, set.Load(ctx))
	assert.Equal(t, []int{8}, set.IDs())

	left, err := local.List(ctx, LocalUser)
	require.NoError(t, err)
	assert.Empty(t, left)
}

type stubProvider struct{}

func (stubProvider) SignInWithPassword(_ context.Context, email, _ string) (*supabase.Session, error) {
	return &supabase.Session{AccessToken: "at", User: supabase.User{ID: "u1", Email: email}}, nil
}
func (stubProvider) SignInWithOTP(context.Context, string, string) error { return nil }
func (stubProvider) VerifyOTP(context.Context, string, string) (*supabase.Session, error) {
	return nil, errors.New("unused")
}
func (stubProvider) RefreshSession(context.Context, string) (*supabase.Session, error) {
	return nil, errors.New("unused")
}
func (stubProvider) SignOut(context.Context, string) error { return nil }

func TestWatchFollowsSession(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	require.NoError(t, store.Upsert(ctx, "u1", []int{3}))

	sessions, err := auth.NewSessions(stubProvider{})
	require.NoError(t, err)

	set := NewSet()
	var tokens []string
	cancel := set.Watch(ctx, sessions, func(s *supabase.Session) Store {
		tokens = append(tokens, s.AccessToken)
		return store
	})
	defer cancel()

	_, err = sessions.SignIn(ctx, "ada@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, []string{"at"}, tokens)
	assert.Equal(t, "u1", set.UserID())
	assert.Equal(t, []int{3}, set.IDs())

	require.NoError(t, sessions.SignOut(ctx))
	assert.Empty(t, set.IDs())
	_, err = set.Toggle(ctx, 3)
	assert.ErrorIs(t, err, ErrNoUser)
}
