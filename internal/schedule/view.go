package schedule

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/michaelrayburke/cniga-wigc/internal/eventtime"
	"github.com/michaelrayburke/cniga-wigc/internal/models"
	"github.com/michaelrayburke/cniga-wigc/internal/textutil"
)

// View selects the base list of a schedule.
type View string

const (
	ViewAll      View = "all"
	ViewMine     View = "mine"
	ViewSessions View = "sessions"
	ViewSocials  View = "socials"
)

// AllTracks is the track filter value that disables track filtering.
const AllTracks = "all"

// OtherDay labels events whose day cannot be determined.
const OtherDay = "Other"

// ParseView parses a view name. An empty string means ViewAll.
func ParseView(s string) (View, error) {
	switch v := View(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return ViewAll, nil
	case ViewAll, ViewMine, ViewSessions, ViewSocials:
		return v, nil
	}
	return "", fmt.Errorf("unknown view %q (want all, mine, sessions or socials)", s)
}

// IDSet is a set of event ids, e.g. a user's starred events.
type IDSet map[int]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...int) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports membership. A nil set is empty.
func (s IDSet) Has(id int) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the members in ascending order.
func (s IDSet) IDs() []int {
	ids := make([]int, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Kinds names the event-type slugs behind the sessions and socials views.
type Kinds struct {
	Session string
	Social  string
}

// DefaultKinds are the slugs used by the conference site.
var DefaultKinds = Kinds{Session: KindSession, Social: KindSocial}

// Options controls ComputeView.
type Options struct {
	View     View
	Track    string
	Search   string
	ShowPast bool
	// Now is compared against event end times; callers refresh it on a tick
	// so past events drop off without refetching.
	Now   time.Time
	Kinds Kinds
}

// ComputeView filters, sorts and groups events. The steps run in a fixed
// order: view selection, past-event suppression, track filter, search, a
// stable chronological sort, then grouping by day in order of first
// appearance.
func ComputeView(events []models.Event, starred IDSet, opts Options) []models.DayGroup {
	kinds := opts.Kinds
	if kinds.Session == "" {
		kinds.Session = DefaultKinds.Session
	}
	if kinds.Social == "" {
		kinds.Social = DefaultKinds.Social
	}

	selected := make([]models.Event, 0, len(events))
	for i := range events {
		ev := &events[i]
		if !inView(ev, opts.View, starred, kinds) {
			continue
		}
		if !opts.ShowPast && !eventtime.IsUpcoming(ev.End, opts.Now) {
			continue
		}
		if !matchesTrack(ev, opts.View, opts.Track) {
			continue
		}
		if !matchesSearch(ev, opts.Search) {
			continue
		}
		selected = append(selected, *ev)
	}

	slices.SortStableFunc(selected, compareEvents)
	return groupByDay(selected)
}

func inView(ev *models.Event, view View, starred IDSet, kinds Kinds) bool {
	switch view {
	case ViewSessions:
		return ev.HasKind(kinds.Session)
	case ViewSocials:
		return ev.HasKind(kinds.Social)
	case ViewMine:
		return starred.Has(ev.ID)
	}
	return true
}

func matchesTrack(ev *models.Event, view View, track string) bool {
	if view != ViewSessions && view != ViewMine {
		return true
	}
	track = strings.TrimSpace(track)
	if track == "" || track == AllTracks {
		return true
	}
	return DisplayTrack(ev) == track
}

func matchesSearch(ev *models.Event, search string) bool {
	q := strings.TrimSpace(search)
	if q == "" {
		return true
	}
	return strings.Contains(textutil.Fold(searchText(ev)), textutil.Fold(q))
}

func searchText(ev *models.Event) string {
	parts := []string{ev.Title, DisplayTrack(ev), ev.Room, ev.DateLabel}
	for _, sp := range ev.Speakers {
		parts = append(parts, sp.Name)
	}
	if ev.Moderator != nil {
		parts = append(parts, ev.Moderator.Name)
	}
	return textutil.JoinNonEmpty(parts, " ")
}

// compareEvents orders keyed events chronologically ahead of unkeyed ones,
// which fall back to title order.
func compareEvents(a, b models.Event) int {
	aKeyed, bKeyed := a.SortKey != "", b.SortKey != ""
	switch {
	case aKeyed && bKeyed:
		if a.Start != nil && b.Start != nil {
			return a.Start.Compare(*b.Start)
		}
		return strings.Compare(a.SortKey, b.SortKey)
	case aKeyed:
		return -1
	case bKeyed:
		return 1
	}
	return strings.Compare(textutil.Fold(a.Title), textutil.Fold(b.Title))
}

func groupByDay(events []models.Event) []models.DayGroup {
	groups := make([]models.DayGroup, 0)
	index := make(map[string]int)
	for _, ev := range events {
		key := dayKeyOf(&ev)
		i, ok := index[key]
		if !ok {
			label := ev.DateLabel
			if label == "" {
				label = OtherDay
			}
			groups = append(groups, models.DayGroup{Key: key, Label: label})
			i = len(groups) - 1
			index[key] = i
		}
		groups[i].Events = append(groups[i].Events, ev)
	}
	return groups
}

func dayKeyOf(ev *models.Event) string {
	switch {
	case ev.DayKey != "":
		return ev.DayKey
	case ev.DateLabel != "":
		return ev.DateLabel
	}
	return OtherDay
}
