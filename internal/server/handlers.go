package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/michaelrayburke/cniga-wigc/internal/auth"
	"github.com/michaelrayburke/cniga-wigc/internal/favorites"
	"github.com/michaelrayburke/cniga-wigc/internal/ical"
	"github.com/michaelrayburke/cniga-wigc/internal/models"
	"github.com/michaelrayburke/cniga-wigc/internal/schedule"
	"github.com/michaelrayburke/cniga-wigc/internal/supabase"
)

var errFavoritesDisabled = errors.New("favorites are not configured")

type scheduleResponse struct {
	Groups         []models.DayGroup `json:"groups"`
	Tracks         []string          `json:"tracks"`
	Starred        []int             `json:"starred"`
	FavoritesError string            `json:"favoritesError,omitempty"`
}

type presenterResponse struct {
	Presenter models.Presenter `json:"presenter"`
	models.PresenterSessions
}

type toggleResponse struct {
	EventID int    `json:"eventId"`
	Starred bool   `json:"starred"`
	Error   string `json:"error,omitempty"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
	Code     string `json:"code,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) viewOptions(r *http.Request) (schedule.Options, error) {
	q := r.URL.Query()
	view, err := schedule.ParseView(q.Get("view"))
	if err != nil {
		return schedule.Options{}, err
	}

	showPast := false
	if v := q.Get("past"); v != "" {
		showPast, err = strconv.ParseBool(v)
		if err != nil {
			return schedule.Options{}, fmt.Errorf("invalid past value %q", v)
		}
	}

	return schedule.Options{
		View:     view,
		Track:    q.Get("track"),
		Search:   q.Get("q"),
		ShowPast: showPast,
		Now:      s.schedule.Now(),
		Kinds:    s.schedule.Kinds(),
	}, nil
}

// view computes the requested day groups. Starred ids come from the caller's
// favorites when a bearer token is sent; anonymous callers have none. Only
// the mine view fails when favorites cannot be loaded; the other views are
// served without stars and report the problem in FavoritesError.
func (s *Server) view(w http.ResponseWriter, r *http.Request) (*scheduleResponse, bool) {
	opts, err := s.viewOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	starred := schedule.IDSet{}
	var favErr string
	if auth.BearerToken(r) != "" {
		set, err := s.favoritesFor(r)
		switch {
		case err == nil:
			starred = schedule.NewIDSet(set.IDs()...)
		case opts.View == schedule.ViewMine:
			s.writeFavoritesError(w, err)
			return nil, false
		default:
			_, favErr = s.favoritesError(err)
			s.logger.Warn("serving schedule without favorites", zap.Error(err))
		}
	} else if opts.View == schedule.ViewMine {
		writeError(w, http.StatusUnauthorized, "Sign in to see your schedule.")
		return nil, false
	}

	snap, err := s.current(r.Context())
	if err != nil {
		s.logger.Error("failed to load schedule", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Unable to load schedule.")
		return nil, false
	}

	return &scheduleResponse{
		Groups:         snap.View(starred, opts),
		Tracks:         snap.Tracks,
		Starred:        starred.IDs(),
		FavoritesError: favErr,
	}, true
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	resp, ok := s.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleScheduleICS(w http.ResponseWriter, r *http.Request) {
	resp, ok := s.view(w, r)
	if !ok {
		return
	}

	cal := ical.FromGroups(s.calendarName, "", resp.Groups, s.schedule.Now())
	icalData := ical.Format(cal)

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=wigc.ics")
	if _, err := w.Write([]byte(icalData)); err != nil {
		s.logger.Warn("error writing calendar response", zap.Error(err))
	}
}

func (s *Server) handleListPresenters(w http.ResponseWriter, r *http.Request) {
	presenters, err := s.source.FetchPresenters(r.Context())
	if err != nil {
		s.logger.Error("failed to load presenters", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Unable to load presenters.")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]models.Presenter{
		"presenters": schedule.SearchPresenters(presenters, r.URL.Query().Get("q")),
	})
}

func (s *Server) handleGetPresenter(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Presenter id must be a number.")
		return
	}

	found, err := s.source.FetchPresentersByIDs(r.Context(), []int{id})
	if err != nil {
		s.logger.Error("failed to load presenter", zap.Int("presenter_id", id), zap.Error(err))
		writeError(w, http.StatusBadGateway, "Unable to load presenter.")
		return
	}
	presenter, ok := schedule.FindPresenter(found, id)
	if !ok {
		writeError(w, http.StatusNotFound, "Presenter not found.")
		return
	}

	snap, err := s.current(r.Context())
	if err != nil {
		s.logger.Error("failed to load schedule", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Unable to load schedule.")
		return
	}

	writeJSON(w, http.StatusOK, presenterResponse{
		Presenter:         presenter,
		PresenterSessions: snap.Presenter(id),
	})
}

func (s *Server) handleSponsors(w http.ResponseWriter, r *http.Request) {
	groups, err := s.source.FetchSponsorGroups(r.Context())
	if err != nil {
		s.logger.Error("failed to load sponsors", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Unable to load sponsors.")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]models.SponsorGroup{"groups": groups})
}

// favoritesFor loads the favorites of the bearer of r.
func (s *Server) favoritesFor(r *http.Request) (*favorites.Set, error) {
	if s.users == nil || s.openStore == nil {
		return nil, errFavoritesDisabled
	}
	user, token, err := s.users.Resolve(r)
	if err != nil {
		return nil, err
	}

	set := favorites.NewSet(favorites.WithLogger(s.logger), favorites.WithMetrics(s.metrics))
	set.Bind(s.openStore(token), user.ID)
	if err := set.Load(r.Context()); err != nil {
		return nil, fmt.Errorf("load favorites: %w", err)
	}
	return set, nil
}

// favoritesError maps a favoritesFor failure to a status and message.
func (s *Server) favoritesError(err error) (int, string) {
	switch {
	case errors.Is(err, errFavoritesDisabled):
		return http.StatusServiceUnavailable, "Favorites are not available."
	case errors.Is(err, auth.ErrNoSession), errors.Is(err, supabase.ErrUnauthorized):
		return http.StatusUnauthorized, "Sign in to save favorites."
	default:
		return http.StatusBadGateway, "Unable to load favorites."
	}
}

func (s *Server) writeFavoritesError(w http.ResponseWriter, err error) {
	status, msg := s.favoritesError(err)
	if status == http.StatusBadGateway {
		s.logger.Error("failed to load favorites", zap.Error(err))
	}
	writeError(w, status, msg)
}

func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	set, err := s.favoritesFor(r)
	if err != nil {
		s.writeFavoritesError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]int{"eventIds": set.IDs()})
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	eventID, err := strconv.Atoi(r.PathValue("eventID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Event id must be a number.")
		return
	}

	set, err := s.favoritesFor(r)
	if err != nil {
		s.writeFavoritesError(w, err)
		return
	}

	starred, err := set.Toggle(r.Context(), eventID)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, toggleResponse{
			EventID: eventID,
			Starred: starred,
			Error:   "Could not update favorite.",
		})
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{EventID: eventID, Starred: starred})
}

func (s *Server) decodeSignIn(w http.ResponseWriter, r *http.Request) (*signInRequest, bool) {
	if s.accounts == nil {
		writeError(w, http.StatusServiceUnavailable, "Sign-in is not available.")
		return nil, false
	}
	var req signInRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return nil, false
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required.")
		return nil, false
	}
	return &req, true
}

// handleSignIn signs in with a password, or emails a sign-in link when no
// password is given.
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSignIn(w, r)
	if !ok {
		return
	}

	if req.Password == "" {
		if err := s.accounts.SignInWithOTP(r.Context(), req.Email, s.redirectURL); err != nil {
			s.logger.Error("failed to send sign-in link", zap.Error(err))
			writeError(w, http.StatusBadGateway, "Unable to send sign-in link.")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]bool{"sent": true})
		return
	}

	session, err := s.accounts.SignInWithPassword(r.Context(), req.Email, req.Password)
	s.finishSignIn(w, r, session, err)
}

// handleVerify exchanges an emailed code for a session.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSignIn(w, r)
	if !ok {
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "Code is required.")
		return
	}
	session, err := s.accounts.VerifyOTP(r.Context(), req.Email, req.Code)
	s.finishSignIn(w, r, session, err)
}

func (s *Server) finishSignIn(w http.ResponseWriter, r *http.Request, session *supabase.Session, err error) {
	if err != nil {
		var apiErr *supabase.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			writeError(w, http.StatusUnauthorized, "Invalid email or code.")
			return
		}
		s.logger.Error("sign-in failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Unable to sign in.")
		return
	}

	if a := s.accounts.EnsureAttendeeProfile(r.Context(), session.AccessToken, session.User); a != nil {
		s.logger.Info("created attendee profile",
			zap.String("user_id", a.ID), zap.String("created_from", a.CreatedFrom))
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	token := auth.BearerToken(r)
	if token == "" || s.accounts == nil {
		writeError(w, http.StatusUnauthorized, "Not signed in.")
		return
	}
	if err := s.accounts.SignOut(r.Context(), token); err != nil {
		s.logger.Warn("remote sign-out failed", zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
