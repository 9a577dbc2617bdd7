// Package schedule turns WordPress event posts into a normalized, filterable
// conference schedule.
//
// Everything except Service is a pure function over already-fetched data:
// NormalizeEvent maps one post to a models.Event, Attach joins presenters by
// id, and ComputeView applies the view, past-event, track and search filters
// before sorting and grouping by day.
package schedule

import (
	"strings"

	"github.com/michaelrayburke/cniga-wigc/internal/acf"
	"github.com/michaelrayburke/cniga-wigc/internal/eventtime"
	"github.com/michaelrayburke/cniga-wigc/internal/models"
	"github.com/michaelrayburke/cniga-wigc/internal/textutil"
)

// Taxonomies read from embedded event terms.
const (
	TaxonomyEventType = "wigc-event-type"
	TaxonomyRoom      = "room"
	TaxonomyTrack     = "track"
)

// Default event-type slugs for the two schedule buckets.
const (
	KindSession = "session"
	KindSocial  = "social"
)

// NormalizeEvent maps a raw event post to a schedule entry. It never fails:
// fields with unexpected shapes come out empty.
func NormalizeEvent(raw models.RawEvent, r *eventtime.Resolver) models.Event {
	if r == nil {
		r = eventtime.NewResolver(nil, 0)
	}
	times := r.Resolve(raw.DateLabel, raw.StartTime, raw.EndTime)

	ev := models.Event{
		ID:          raw.ID,
		Title:       textutil.DecodeEntities(raw.Title),
		SortKey:     eventtime.SortKey(times.Start),
		DayKey:      eventtime.DayKey(times.Start),
		Start:       times.Start,
		End:         times.End,
		DateLabel:   strings.TrimSpace(raw.DateLabel),
		StartTime:   strings.TrimSpace(raw.StartTime),
		EndTime:     strings.TrimSpace(raw.EndTime),
		SpeakerIDs:  acf.IDs(raw.Speakers),
		ModeratorID: acf.ID(raw.Moderator),
		Kinds:       []string{},
		Speakers:    []models.Presenter{},
		ContentHTML: textutil.SanitizeHTML(raw.ContentHTML),
	}

	for _, term := range raw.Terms {
		switch term.Taxonomy {
		case TaxonomyEventType:
			if term.Slug != "" && !ev.HasKind(term.Slug) {
				ev.Kinds = append(ev.Kinds, term.Slug)
			}
		case TaxonomyRoom:
			if ev.Room == "" {
				ev.Room = textutil.DecodeEntities(term.Name)
			}
		case TaxonomyTrack:
			if ev.Track == "" {
				ev.Track = textutil.DecodeEntities(term.Name)
			}
		}
	}

	if ev.Room == "" {
		ev.Room = textutil.DecodeEntities(raw.Location)
	}
	if ev.Track == "" {
		ev.Track = acf.Track(raw.Track)
	}

	return ev
}

// NormalizeAll normalizes every raw event, keeping input order.
func NormalizeAll(raws []models.RawEvent, r *eventtime.Resolver) []models.Event {
	events := make([]models.Event, 0, len(raws))
	for _, raw := range raws {
		events = append(events, NormalizeEvent(raw, r))
	}
	return events
}

// DisplayTrack is the track shown for an event and matched by the track
// filter. Social events never show a track, and the "-" placeholder some
// posts use counts as no track.
func DisplayTrack(e *models.Event) string {
	if e.HasKind(KindSocial) || e.HasKind("socials") {
		return ""
	}
	t := strings.TrimSpace(e.Track)
	if t == "-" {
		return ""
	}
	return t
}
