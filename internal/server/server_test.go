package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/michaelrayburke/cniga-wigc/internal/acf"
	"github.com/michaelrayburke/cniga-wigc/internal/auth"
	"github.com/michaelrayburke/cniga-wigc/internal/config"
	"github.com/michaelrayburke/cniga-wigc/internal/eventtime"
	"github.com/michaelrayburke/cniga-wigc/internal/favorites"
	"github.com/michaelrayburke/cniga-wigc/internal/metrics"
	"github.com/michaelrayburke/cniga-wigc/internal/models"
	"github.com/michaelrayburke/cniga-wigc/internal/schedule"
	"github.com/michaelrayburke/cniga-wigc/internal/supabase"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	raws       []models.RawEvent
	presenters []models.Presenter
	sponsors   []models.SponsorGroup
	err        error
}

func (f *fakeSource) FetchEvents(context.Context) ([]models.RawEvent, error) {
	return f.raws, f.err
}

func (f *fakeSource) FetchPresenters(context.Context) ([]models.Presenter, error) {
	return f.presenters, f.err
}

func (f *fakeSource) FetchPresentersByIDs(_ context.Context, ids []int) ([]models.Presenter, error) {
	var out []models.Presenter
	for _, p := range f.presenters {
		for _, id := range ids {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, f.err
}

func (f *fakeSource) FetchSponsorGroups(context.Context) ([]models.SponsorGroup, error) {
	return f.sponsors, f.err
}

type fakeAccounts struct {
	profiles []string
	otpSent  []string
}

func (a *fakeAccounts) User(_ context.Context, token string) (*supabase.User, error) {
	if token != "good-token" {
		return nil, &supabase.APIError{StatusCode: http.StatusUnauthorized, Message: "invalid JWT"}
	}
	return &supabase.User{ID: "u1", Email: "ada@example.com"}, nil
}

func (a *fakeAccounts) SignInWithPassword(_ context.Context, email, password string) (*supabase.Session, error) {
	if password != "pw" {
		return nil, &supabase.APIError{StatusCode: http.StatusBadRequest, Code: "invalid_grant", Message: "Invalid login credentials"}
	}
	return &supabase.Session{AccessToken: "good-token", User: supabase.User{ID: "u1", Email: email}}, nil
}

func (a *fakeAccounts) SignInWithOTP(_ context.Context, email, _ string) error {
	a.otpSent = append(a.otpSent, email)
	return nil
}

func (a *fakeAccounts) VerifyOTP(_ context.Context, email, code string) (*supabase.Session, error) {
	if code != "123456" {
		return nil, &supabase.APIError{StatusCode: http.StatusForbidden, Message: "Token has expired or is invalid"}
	}
	return &supabase.Session{AccessToken: "good-token", User: supabase.User{ID: "u1", Email: email}}, nil
}

func (a *fakeAccounts) SignOut(context.Context, string) error { return nil }

func (a *fakeAccounts) EnsureAttendeeProfile(_ context.Context, _ string, user supabase.User) *supabase.Attendee {
	a.profiles = append(a.profiles, user.ID)
	return nil
}

type failingStore struct{ favorites.Store }

func (failingStore) List(context.Context, string) ([]int, error) { return []int{}, nil }

func (failingStore) Add(context.Context, string, int) error { return errors.New("row level security") }

func session(id int, title, date, start string, speakers string, track string) models.RawEvent {
	return models.RawEvent{
		ID:        id,
		Title:     title,
		DateLabel: date,
		StartTime: start,
		Speakers:  acf.Raw(speakers),
		Terms: []models.Term{
			{Taxonomy: schedule.TaxonomyEventType, Slug: schedule.KindSession},
			{Taxonomy: schedule.TaxonomyTrack, Name: track},
		},
	}
}

func newFixture(t *testing.T) *fakeSource {
	t.Helper()
	return &fakeSource{
		raws: []models.RawEvent{
			session(1, "Opening Keynote", "February 26, 2025", "9:00 am", `[7]`, "Leadership"),
			session(2, "Compliance Panel", "February 27, 2025", "1:00 pm", `[8]`, "Compliance"),
			{
				ID: 3, Title: "Reception", DateLabel: "February 26, 2025", StartTime: "6:00 pm",
				Terms: []models.Term{{Taxonomy: schedule.TaxonomyEventType, Slug: schedule.KindSocial}},
			},
		},
		presenters: []models.Presenter{
			{ID: 7, Name: "Ada Lovelace", Org: "Analytical Engines"},
			{ID: 8, Name: "Grace Hopper", Org: "Navy"},
		},
		sponsors: []models.SponsorGroup{
			{Slug: "gold", Label: "Gold", Sponsors: []models.Sponsor{{ID: 11, Name: "Casino"}}},
		},
	}
}

type testServer struct {
	*Server
	handler  http.Handler
	accounts *fakeAccounts
	store    *favorites.SQLiteStore
}

func newTestServer(t *testing.T, src *fakeSource, authenticator auth.Authenticator) *testServer {
	t.Helper()
	if authenticator == nil {
		authenticator = &auth.NoAuth{}
	}
	store, err := favorites.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	mets := metrics.New()
	svc := schedule.NewService(src, eventtime.NewResolver(time.UTC, 0),
		schedule.WithClock(func() time.Time { return now }),
		schedule.WithMetrics(mets))

	accounts := &fakeAccounts{}
	srv := New(svc, src, authenticator, config.Default().Server,
		WithAccounts(accounts, "https://example.org/welcome"),
		WithFavorites(func(string) favorites.Store { return store }),
		WithMetrics(mets),
		WithCalendarName("WIGC 2025"),
	)
	return &testServer{Server: srv, handler: srv.Handler(), accounts: accounts, store: store}
}

func (ts *testServer) do(t *testing.T, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func groupIDs(groups []models.DayGroup) []int {
	var out []int
	for _, g := range groups {
		for _, e := range g.Events {
			out = append(out, e.ID)
		}
	}
	return out
}

func TestHealthAndAPIKey(t *testing.T) {
	ts := newTestServer(t, newFixture(t), &auth.APIKeyAuth{APIKey: "k"})

	rec := ts.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/schedule", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/schedule?apikey=k", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/metrics?apikey=k", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "wigc_schedule_loads_total")
}

func TestSchedule(t *testing.T) {
	ts := newTestServer(t, newFixture(t), nil)

	rec := ts.do(t, http.MethodGet, "/schedule", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[scheduleResponse](t, rec)
	assert.Equal(t, []int{1, 3, 2}, groupIDs(resp.Groups))
	assert.Equal(t, []string{"Compliance", "Leadership"}, resp.Tracks)
	require.Len(t, resp.Groups, 2)
	assert.Equal(t, "2025-02-26", resp.Groups[0].Key)

	rec = ts.do(t, http.MethodGet, "/schedule?view=sessions&track=Compliance", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{2}, groupIDs(decode[scheduleResponse](t, rec).Groups))

	rec = ts.do(t, http.MethodGet, "/schedule?q=ada", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{1}, groupIDs(decode[scheduleResponse](t, rec).Groups), "speaker names are searchable")

	rec = ts.do(t, http.MethodGet, "/schedule?view=later", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/schedule?past=maybe", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/schedule?view=mine", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestScheduleWithUnusableToken(t *testing.T) {
	ts := newTestServer(t, newFixture(t), nil)

	for _, target := range []string{"/schedule", "/schedule?view=sessions", "/schedule?view=socials"} {
		rec := ts.do(t, http.MethodGet, target, "expired-token", "")
		require.Equal(t, http.StatusOK, rec.Code, target)
		resp := decode[scheduleResponse](t, rec)
		assert.NotEmpty(t, resp.Groups, target)
		assert.Empty(t, resp.Starred, target)
		assert.Equal(t, "Sign in to save favorites.", resp.FavoritesError, target)
	}

	rec := ts.do(t, http.MethodGet, "/schedule.ics", "expired-token", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/schedule?view=mine", "expired-token", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	ts.openStore = nil
	rec = ts.do(t, http.MethodGet, "/schedule", "good-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Favorites are not available.", decode[scheduleResponse](t, rec).FavoritesError)

	rec = ts.do(t, http.MethodGet, "/schedule?view=mine", "good-token", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// countingSource counts event fetches and holds each one until gate closes.
type countingSource struct {
	*fakeSource
	fetches atomic.Int32
	gate    chan struct{}
}

func (c *countingSource) FetchEvents(ctx context.Context) ([]models.RawEvent, error) {
	c.fetches.Add(1)
	<-c.gate
	return c.fakeSource.FetchEvents(ctx)
}

func TestColdStartLoadsOnce(t *testing.T) {
	src := &countingSource{fakeSource: newFixture(t), gate: make(chan struct{})}
	srv := New(schedule.NewService(src, nil), src, &auth.NoAuth{}, config.Default().Server)
	handler := srv.Handler()

	var wg sync.WaitGroup
	codes := make([]int, 8)
	for i := range codes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/schedule", nil))
			codes[i] = rec.Code
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	for _, code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}
	assert.Equal(t, int32(1), src.fetches.Load())
}

func TestScheduleUpstreamFailure(t *testing.T) {
	src := newFixture(t)
	src.err = errors.New("status 500")
	ts := newTestServer(t, src, nil)

	rec := ts.do(t, http.MethodGet, "/schedule", "", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Unable to load schedule.", decode[map[string]string](t, rec)["error"])
}

func TestRefreshFailureKeepsSnapshot(t *testing.T) {
	src := newFixture(t)
	ts := newTestServer(t, src, nil)
	ctx := context.Background()

	require.NoError(t, ts.Refresh(ctx))
	src.err = errors.New("timeout")
	require.Error(t, ts.Refresh(ctx))

	rec := ts.do(t, http.MethodGet, "/schedule", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, groupIDs(decode[scheduleResponse](t, rec).Groups), 3)
}

func TestScheduleICS(t *testing.T) {
	ts := newTestServer(t, newFixture(t), nil)

	rec := ts.do(t, http.MethodGet, "/schedule.ics?view=socials", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "BEGIN:VCALENDAR\r\n"))
	assert.Contains(t, body, "X-WR-CALNAME:WIGC 2025\r\n")
	assert.Contains(t, body, "UID:wigc-event-3\r\n")
	assert.NotContains(t, body, "UID:wigc-event-1\r\n")
}

func TestPresenters(t *testing.T) {
	ts := newTestServer(t, newFixture(t), nil)

	rec := ts.do(t, http.MethodGet, "/presenters?q=navy", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[map[string][]models.Presenter](t, rec)["presenters"]
	require.Len(t, list, 1)
	assert.Equal(t, "Grace Hopper", list[0].Name)

	rec = ts.do(t, http.MethodGet, "/presenters/7", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	one := decode[presenterResponse](t, rec)
	assert.Equal(t, "Ada Lovelace", one.Presenter.Name)
	require.Len(t, one.Speaking, 1)
	assert.Equal(t, 1, one.Speaking[0].ID)
	assert.Empty(t, one.Moderating)

	rec = ts.do(t, http.MethodGet, "/presenters/99", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/presenters/ada", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSponsors(t *testing.T) {
	ts := newTestServer(t, newFixture(t), nil)

	rec := ts.do(t, http.MethodGet, "/sponsors", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	groups := decode[map[string][]models.SponsorGroup](t, rec)["groups"]
	require.Len(t, groups, 1)
	assert.Equal(t, "Casino", groups[0].Sponsors[0].Name)
}

func TestFavorites(t *testing.T) {
	ts := newTestServer(t, newFixture(t), nil)

	rec := ts.do(t, http.MethodPost, "/favorites/2/toggle", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/favorites/2/toggle", "stale-token", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/favorites/two/toggle", "good-token", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/favorites/2/toggle", "good-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, toggleResponse{EventID: 2, Starred: true}, decode[toggleResponse](t, rec))

	rec = ts.do(t, http.MethodGet, "/favorites", "good-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{2}, decode[map[string][]int](t, rec)["eventIds"])

	rec = ts.do(t, http.MethodGet, "/schedule?view=mine", "good-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[scheduleResponse](t, rec)
	assert.Equal(t, []int{2}, groupIDs(resp.Groups))
	assert.Equal(t, []int{2}, resp.Starred)

	rec = ts.do(t, http.MethodPost, "/favorites/2/toggle", "good-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[toggleResponse](t, rec).Starred)

	ids, err := ts.store.List(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestToggleFailureReverts(t *testing.T) {
	ts := newTestServer(t, newFixture(t), nil)
	ts.openStore = func(string) favorites.Store { return failingStore{} }

	rec := ts.do(t, http.MethodPost, "/favorites/1/toggle", "good-token", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decode[toggleResponse](t, rec)
	assert.False(t, resp.Starred)
	assert.Equal(t, "Could not update favorite.", resp.Error)
}

func TestFavoritesDisabled(t *testing.T) {
	src := newFixture(t)
	svc := schedule.NewService(src, nil)
	srv := New(svc, src, &auth.NoAuth{}, config.Default().Server)

	req := httptest.NewRequest(http.MethodGet, "/favorites", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/signin", strings.NewReader(`{"email":"a@b.c"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSignIn(t *testing.T) {
	ts := newTestServer(t, newFixture(t), nil)

	rec := ts.do(t, http.MethodPost, "/auth/signin", "", `{"email":"ada@example.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	sess := decode[supabase.Session](t, rec)
	assert.Equal(t, "good-token", sess.AccessToken)
	assert.Equal(t, []string{"u1"}, ts.accounts.profiles)

	rec = ts.do(t, http.MethodPost, "/auth/signin", "", `{"email":"ada@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/auth/signin", "", `{"email":"ada@example.com"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"ada@example.com"}, ts.accounts.otpSent)

	rec = ts.do(t, http.MethodPost, "/auth/signin", "", `{"password":"pw"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/auth/signin", "", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyAndSignOut(t *testing.T) {
	ts := newTestServer(t, newFixture(t), nil)

	rec := ts.do(t, http.MethodPost, "/auth/verify", "", `{"email":"ada@example.com","code":"000000"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/auth/verify", "", `{"email":"ada@example.com","code":"123456"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, ts.accounts.profiles, 1)

	rec = ts.do(t, http.MethodPost, "/auth/signout", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/auth/signout", "good-token", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestStartShutsDown(t *testing.T) {
	cfg := config.Default().Server
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.ShutdownTimeout = time.Second

	src := newFixture(t)
	srv := New(schedule.NewService(src, nil), src, &auth.NoAuth{}, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
