package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/michaelrayburke/cniga-wigc/internal/auth"
	"github.com/michaelrayburke/cniga-wigc/internal/config"
	"github.com/michaelrayburke/cniga-wigc/internal/favorites"
	"github.com/michaelrayburke/cniga-wigc/internal/metrics"
	"github.com/michaelrayburke/cniga-wigc/internal/schedule"
	"github.com/michaelrayburke/cniga-wigc/internal/source"
	"github.com/michaelrayburke/cniga-wigc/internal/supabase"
)

// Accounts is the sign-in backend behind /auth and the bearer-token routes.
// *supabase.Client implements it.
type Accounts interface {
	auth.TokenVerifier
	SignInWithPassword(ctx context.Context, email, password string) (*supabase.Session, error)
	SignInWithOTP(ctx context.Context, email, redirectTo string) error
	VerifyOTP(ctx context.Context, email, code string) (*supabase.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	EnsureAttendeeProfile(ctx context.Context, accessToken string, user supabase.User) *supabase.Attendee
}

// StoreOpener returns the favorites store to use for a request made with
// accessToken.
type StoreOpener func(accessToken string) favorites.Store

// Server represents the HTTP server
type Server struct {
	schedule *schedule.Service
	source   source.Source
	auth     auth.Authenticator
	cfg      config.ServerConfig

	accounts     Accounts
	users        *auth.UserResolver
	openStore    StoreOpener
	redirectURL  string
	calendarName string

	logger  *zap.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	snapshot *schedule.Snapshot
	loads    singleflight.Group
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics serves m at /metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithAccounts enables sign-in and the favorites routes. redirectURL is
// where magic links send the attendee.
func WithAccounts(a Accounts, redirectURL string) Option {
	return func(s *Server) {
		s.accounts = a
		s.users = &auth.UserResolver{Verifier: a}
		s.redirectURL = redirectURL
	}
}

// WithFavorites sets where favorites are read and written
func WithFavorites(open StoreOpener) Option {
	return func(s *Server) { s.openStore = open }
}

// WithCalendarName names the exported iCal feed
func WithCalendarName(name string) Option {
	return func(s *Server) {
		if name != "" {
			s.calendarName = name
		}
	}
}

// New creates a new server instance
func New(svc *schedule.Service, src source.Source, authenticator auth.Authenticator, cfg config.ServerConfig, opts ...Option) *Server {
	s := &Server{
		schedule:     svc,
		source:       src,
		auth:         authenticator,
		cfg:          cfg,
		calendarName: "WIGC Schedule",
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed and logged API
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.authMiddleware(s.metrics.Handler().ServeHTTP))

	mux.HandleFunc("GET /schedule", s.authMiddleware(s.handleSchedule))
	mux.HandleFunc("GET /schedule.ics", s.authMiddleware(s.handleScheduleICS))
	mux.HandleFunc("GET /presenters", s.authMiddleware(s.handleListPresenters))
	mux.HandleFunc("GET /presenters/{id}", s.authMiddleware(s.handleGetPresenter))
	mux.HandleFunc("GET /sponsors", s.authMiddleware(s.handleSponsors))

	mux.HandleFunc("GET /favorites", s.authMiddleware(s.handleListFavorites))
	mux.HandleFunc("POST /favorites/{eventID}/toggle", s.authMiddleware(s.handleToggleFavorite))

	mux.HandleFunc("POST /auth/signin", s.authMiddleware(s.handleSignIn))
	mux.HandleFunc("POST /auth/verify", s.authMiddleware(s.handleVerify))
	mux.HandleFunc("POST /auth/signout", s.authMiddleware(s.handleSignOut))

	return s.logRequests(mux)
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Refresh loads a new schedule snapshot. On failure the previous snapshot
// keeps being served.
func (s *Server) Refresh(ctx context.Context) error {
	snap, err := s.schedule.Load(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
	return nil
}

// RunRefresher refreshes the snapshot every interval until ctx is done.
func (s *Server) RunRefresher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("starting schedule refresher", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.logger.Warn("schedule refresh failed", zap.Error(err))
			}
		}
	}
}

func (s *Server) held() *schedule.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// current returns the held snapshot, loading one if none has been loaded
// yet. Concurrent callers share a single cold load.
func (s *Server) current(ctx context.Context) (*schedule.Snapshot, error) {
	if snap := s.held(); snap != nil {
		return snap, nil
	}
	v, err, _ := s.loads.Do("snapshot", func() (any, error) {
		if snap := s.held(); snap != nil {
			return snap, nil
		}
		if err := s.Refresh(ctx); err != nil {
			return nil, err
		}
		return s.held(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*schedule.Snapshot), nil
}

func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.Authenticate(r) {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)))
	})
}
