package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/michaelrayburke/cniga-wigc/internal/notify"
	"github.com/michaelrayburke/cniga-wigc/internal/supabase"
)

// EventKind says what happened to the session.
type EventKind string

const (
	SignedIn       EventKind = "signed_in"
	SignedOut      EventKind = "signed_out"
	TokenRefreshed EventKind = "token_refreshed"
)

// Event is published to subscribers on every session change. Session is nil
// for SignedOut.
type Event struct {
	Kind    EventKind
	Session *supabase.Session
}

// Provider is the account service behind a Sessions store.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*supabase.Session, error)
	SignInWithOTP(ctx context.Context, email, redirectTo string) error
	VerifyOTP(ctx context.Context, email, code string) (*supabase.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*supabase.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// Sessions holds the current session and announces changes to subscribers.
// With a state file the session survives process restarts.
type Sessions struct {
	mu       sync.Mutex
	provider Provider
	path     string
	current  *supabase.Session
	hub      notify.Hub[Event]
	logger   *zap.Logger
	now      func() time.Time
}

// SessionOption configures a Sessions store
type SessionOption func(*Sessions)

// WithStateFile persists the session as JSON at path.
func WithStateFile(path string) SessionOption {
	return func(s *Sessions) { s.path = path }
}

// WithSessionLogger sets the logger
func WithSessionLogger(l *zap.Logger) SessionOption {
	return func(s *Sessions) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSessionClock replaces time.Now for expiry checks
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *Sessions) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSessions creates a store and restores any persisted session.
func NewSessions(p Provider, opts ...SessionOption) (*Sessions, error) {
	s := &Sessions{
		provider: p,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub.Logger = s.logger

	if s.path != "" {
		sess, err := readSession(s.path)
		if err != nil {
			return nil, err
		}
		s.current = sess
	}
	return s, nil
}

// Current returns the signed-in session, refreshing an expired access token
// first. It returns ErrNoSession when nobody is signed in or the refresh is
// rejected.
func (s *Sessions) Current(ctx context.Context) (*supabase.Session, error) {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()

	if sess == nil {
		return nil, ErrNoSession
	}
	if !sess.Expired(s.now()) {
		return sess, nil
	}
	if sess.RefreshToken == "" {
		_ = s.clear()
		return nil, ErrNoSession
	}

	refreshed, err := s.provider.RefreshSession(ctx, sess.RefreshToken)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, supabase.ErrUnauthorized) || isClientError(err) {
			s.logger.Info("session refresh rejected; signing out", zap.Error(err))
			_ = s.clear()
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	if err := s.set(refreshed, TokenRefreshed); err != nil {
		return nil, err
	}
	return refreshed, nil
}

// SignIn signs in with email and password.
func (s *Sessions) SignIn(ctx context.Context, email, password string) (*supabase.Session, error) {
	sess, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.set(sess, SignedIn); err != nil {
		return nil, err
	}
	return sess, nil
}

// SignInWithLink emails a passwordless sign-in link. The session starts once
// the emailed code is passed to CompleteSignIn.
func (s *Sessions) SignInWithLink(ctx context.Context, email, redirectTo string) error {
	return s.provider.SignInWithOTP(ctx, email, redirectTo)
}

// CompleteSignIn finishes a passwordless sign-in.
func (s *Sessions) CompleteSignIn(ctx context.Context, email, code string) (*supabase.Session, error) {
	sess, err := s.provider.VerifyOTP(ctx, email, code)
	if err != nil {
		return nil, err
	}
	if err := s.set(sess, SignedIn); err != nil {
		return nil, err
	}
	return sess, nil
}

// SignOut revokes the session remotely and forgets it locally. A failed
// remote revoke is logged; the local session is cleared regardless.
func (s *Sessions) SignOut(ctx context.Context) error {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()
	if sess == nil {
		return nil
	}

	if err := s.provider.SignOut(ctx, sess.AccessToken); err != nil {
		s.logger.Warn("remote sign-out failed", zap.Error(err))
	}
	return s.clear()
}

// Subscribe registers fn for session changes. Call cancel to stop.
func (s *Sessions) Subscribe(fn func(Event)) (cancel func()) {
	return s.hub.Subscribe(fn)
}

func (s *Sessions) set(sess *supabase.Session, kind EventKind) error {
	s.mu.Lock()
	s.current = sess
	err := s.persist(sess)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.logger.Debug("session changed", zap.String("event", string(kind)), zap.String("user_id", sess.User.ID))
	s.hub.Publish(Event{Kind: kind, Session: sess})
	return nil
}

func (s *Sessions) clear() error {
	s.mu.Lock()
	s.current = nil
	err := s.persist(nil)
	s.mu.Unlock()

	s.hub.Publish(Event{Kind: SignedOut})
	return err
}

// persist writes or removes the state file. Callers hold s.mu.
func (s *Sessions) persist(sess *supabase.Session) error {
	if s.path == "" {
		return nil
	}
	if sess == nil {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove session file: %w", err)
		}
		return nil
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

func readSession(path string) (*supabase.Session, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	var sess supabase.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %w", path, err)
	}
	if sess.AccessToken == "" {
		return nil, nil
	}
	return &sess, nil
}

func isClientError(err error) bool {
	var apiErr *supabase.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}
