package supabase

import (
	"context"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// Profile origins stored in attendees.created_from.
const (
	CreatedFromAdalo = "adalo"
	CreatedFromApp   = "app"
)

// Attendee is a row of the attendees table.
type Attendee struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	CreatedFrom string `json:"created_from"`
	Name        string `json:"name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Bio         string `json:"bio,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type legacyProfile struct {
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Bio       string `json:"bio"`
	AvatarURL string `json:"avatar_url"`
}

// EnsureAttendeeProfile makes sure user has an attendees row. An existing row
// is left alone. Otherwise a legacy profile with the same email seeds the new
// row. Every failure is logged and swallowed so sign-in never fails here. The
// returned attendee is nil when nothing was inserted.
func (c *Client) EnsureAttendeeProfile(ctx context.Context, accessToken string, user User) *Attendee {
	if user.ID == "" {
		return nil
	}
	log := c.logger.With(zap.String("user_id", user.ID))

	var existing []struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   restPath("attendees"),
		query:  url.Values{"select": {"id"}, "id": {eq(user.ID)}, "limit": {"1"}},
		token:  accessToken,
	}, &existing)
	if err != nil {
		log.Error("failed to check existing attendee profile", zap.Error(err))
		return nil
	}
	if len(existing) > 0 {
		return nil
	}

	email := normalizeEmail(user.Email)
	var legacy []legacyProfile
	err = c.do(ctx, request{
		method: http.MethodGet,
		path:   restPath("legacy_adalo_profiles"),
		query:  url.Values{"select": {"name,phone,bio,avatar_url"}, "email": {eq(email)}, "limit": {"1"}},
		token:  accessToken,
	}, &legacy)
	if err != nil {
		log.Error("failed to look up legacy profile", zap.Error(err))
		legacy = nil
	}

	attendee := &Attendee{ID: user.ID, Email: email, CreatedFrom: CreatedFromApp}
	if len(legacy) > 0 {
		l := legacy[0]
		attendee.CreatedFrom = CreatedFromAdalo
		attendee.Name = l.Name
		attendee.Phone = l.Phone
		attendee.Bio = l.Bio
		attendee.AvatarURL = l.AvatarURL
	}

	err = c.do(ctx, request{
		method: http.MethodPost,
		path:   restPath("attendees"),
		token:  accessToken,
		header: http.Header{"Prefer": {"return=minimal"}},
		body:   attendee,
	}, nil)
	if err != nil {
		log.Error("failed to insert attendee profile", zap.Error(err))
		return nil
	}
	log.Info("created attendee profile", zap.String("created_from", attendee.CreatedFrom))
	return attendee
}
