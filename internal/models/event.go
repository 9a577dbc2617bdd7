package models

import (
	"slices"
	"time"

	"github.com/michaelrayburke/cniga-wigc/internal/acf"
)

// Term is a taxonomy term embedded in a WordPress post.
type Term struct {
	Taxonomy string `json:"taxonomy"`
	Slug     string `json:"slug"`
	Name     string `json:"name"`
}

// RawEvent is an event post as WordPress returns it, before normalization.
// Title and ContentHTML are still HTML-encoded and the ACF fields keep their
// original JSON shape.
type RawEvent struct {
	ID          int
	Title       string
	DateLabel   string
	StartTime   string
	EndTime     string
	Location    string
	Terms       []Term
	Track       acf.Value
	Speakers    acf.Value
	Moderator   acf.Value
	ContentHTML string
}

// Event is a normalized schedule entry
type Event struct {
	ID          int         `json:"id"`
	Title       string      `json:"title"`
	SortKey     string      `json:"sortKey,omitempty"`
	DayKey      string      `json:"dayKey,omitempty"`
	Start       *time.Time  `json:"start,omitempty"`
	End         *time.Time  `json:"end,omitempty"`
	DateLabel   string      `json:"date,omitempty"`
	StartTime   string      `json:"startTime,omitempty"`
	EndTime     string      `json:"endTime,omitempty"`
	Room        string      `json:"room,omitempty"`
	Track       string      `json:"track,omitempty"`
	SpeakerIDs  []int       `json:"speakerIds"`
	ModeratorID *int        `json:"moderatorId,omitempty"`
	Kinds       []string    `json:"kinds"`
	Speakers    []Presenter `json:"speakers"`
	Moderator   *Presenter  `json:"moderator,omitempty"`
	ContentHTML string      `json:"contentHtml,omitempty"`
}

// HasKind reports whether the event carries the given event-type slug
func (e *Event) HasKind(kind string) bool {
	return slices.Contains(e.Kinds, kind)
}
