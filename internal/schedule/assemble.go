package schedule

import (
	"slices"
	"sort"

	"github.com/michaelrayburke/cniga-wigc/internal/eventtime"
	"github.com/michaelrayburke/cniga-wigc/internal/models"
)

// PresenterIDs collects the distinct speaker and moderator ids referenced by
// events, in ascending order, for a single batched lookup.
func PresenterIDs(events []models.Event) []int {
	set := make(map[int]struct{})
	for i := range events {
		for _, id := range events[i].SpeakerIDs {
			set[id] = struct{}{}
		}
		if events[i].ModeratorID != nil {
			set[*events[i].ModeratorID] = struct{}{}
		}
	}

	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Attach fills Speakers and Moderator from presenters. Ids with no matching
// presenter are dropped from Speakers and leave Moderator nil. The input
// slice is not modified.
func Attach(events []models.Event, presenters []models.Presenter) []models.Event {
	byID := make(map[int]models.Presenter, len(presenters))
	for _, p := range presenters {
		byID[p.ID] = p
	}

	out := make([]models.Event, len(events))
	for i, ev := range events {
		ev.Speakers = make([]models.Presenter, 0, len(ev.SpeakerIDs))
		for _, id := range ev.SpeakerIDs {
			if p, ok := byID[id]; ok {
				ev.Speakers = append(ev.Speakers, p)
			}
		}
		ev.Moderator = nil
		if ev.ModeratorID != nil {
			if p, ok := byID[*ev.ModeratorID]; ok {
				ev.Moderator = &p
			}
		}
		out[i] = ev
	}
	return out
}

// Assemble normalizes raw events and attaches presenters in one step.
func Assemble(raws []models.RawEvent, presenters []models.Presenter, r *eventtime.Resolver) []models.Event {
	return Attach(NormalizeAll(raws, r), presenters)
}

// Bucket returns the events carrying the given event-type slug. An event can
// be in several buckets or none.
func Bucket(events []models.Event, kind string) []models.Event {
	out := make([]models.Event, 0)
	for i := range events {
		if events[i].HasKind(kind) {
			out = append(out, events[i])
		}
	}
	return out
}

// Tracks lists the distinct display tracks of events, sorted, for building a
// track filter.
func Tracks(events []models.Event) []string {
	set := make(map[string]struct{})
	for i := range events {
		if t := DisplayTrack(&events[i]); t != "" {
			set[t] = struct{}{}
		}
	}
	tracks := make([]string, 0, len(set))
	for t := range set {
		tracks = append(tracks, t)
	}
	slices.Sort(tracks)
	return tracks
}
