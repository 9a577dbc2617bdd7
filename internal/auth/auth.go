// Package auth gates the HTTP API, resolves attendee bearer tokens to users,
// and keeps the signed-in session for the command line.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/michaelrayburke/cniga-wigc/internal/supabase"
)

// ErrNoSession is returned when an operation needs a signed-in user.
var ErrNoSession = errors.New("auth: not signed in")

// Authenticator decides whether a request may use the API at all.
type Authenticator interface {
	Authenticate(r *http.Request) bool
}

// NoAuth allows all requests
type NoAuth struct{}

func (n *NoAuth) Authenticate(r *http.Request) bool {
	return true
}

// APIKeyAuth requires the configured key in the apikey query parameter
type APIKeyAuth struct {
	APIKey string
}

func (a *APIKeyAuth) Authenticate(r *http.Request) bool {
	provided := r.URL.Query().Get("apikey")
	return provided != "" && subtle.ConstantTimeCompare([]byte(provided), []byte(a.APIKey)) == 1
}

// NewAuthenticator creates an authenticator for method ("none" or "apikey").
func NewAuthenticator(method, apiKey string) (Authenticator, error) {
	switch method {
	case "", "none":
		return &NoAuth{}, nil
	case "apikey":
		if apiKey == "" {
			return nil, fmt.Errorf("auth method apikey requires an api key")
		}
		return &APIKeyAuth{APIKey: apiKey}, nil
	default:
		return nil, fmt.Errorf("unknown auth method %q", method)
	}
}

// TokenVerifier looks up the user owning an access token.
type TokenVerifier interface {
	User(ctx context.Context, accessToken string) (*supabase.User, error)
}

// UserResolver turns "Authorization: Bearer <token>" into a user.
type UserResolver struct {
	Verifier TokenVerifier
}

// Resolve returns the user and token behind r. It returns ErrNoSession when
// the header is missing and wraps supabase.ErrUnauthorized for bad tokens.
func (u *UserResolver) Resolve(r *http.Request) (*supabase.User, string, error) {
	token := BearerToken(r)
	if token == "" || u == nil || u.Verifier == nil {
		return nil, "", ErrNoSession
	}
	user, err := u.Verifier.User(r.Context(), token)
	if err != nil {
		return nil, "", fmt.Errorf("resolve user: %w", err)
	}
	return user, token, nil
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
