package schedule

import (
	"strings"

	"github.com/michaelrayburke/cniga-wigc/internal/models"
	"github.com/michaelrayburke/cniga-wigc/internal/textutil"
)

// SessionsByPresenter indexes events by the presenters who speak at or
// moderate them. Presenters referenced by events but missing from the
// directory still get an entry.
func SessionsByPresenter(events []models.Event) map[int]*models.PresenterSessions {
	index := make(map[int]*models.PresenterSessions)
	entry := func(id int) *models.PresenterSessions {
		ps, ok := index[id]
		if !ok {
			ps = &models.PresenterSessions{Speaking: []models.Event{}, Moderating: []models.Event{}}
			index[id] = ps
		}
		return ps
	}

	for _, ev := range events {
		for _, id := range ev.SpeakerIDs {
			entry(id).Speaking = append(entry(id).Speaking, ev)
		}
		if ev.ModeratorID != nil {
			ps := entry(*ev.ModeratorID)
			ps.Moderating = append(ps.Moderating, ev)
		}
	}
	return index
}

// SearchPresenters filters presenters whose name, title or organization
// contains q, ignoring case. A blank q returns the list unchanged.
func SearchPresenters(presenters []models.Presenter, q string) []models.Presenter {
	q = strings.TrimSpace(q)
	if q == "" {
		return presenters
	}
	needle := textutil.Fold(q)

	out := make([]models.Presenter, 0)
	for _, p := range presenters {
		haystack := strings.Join([]string{p.Name, p.FirstName, p.LastName, p.Title, p.Org}, " ")
		if strings.Contains(textutil.Fold(haystack), needle) {
			out = append(out, p)
		}
	}
	return out
}

// FindPresenter returns the presenter with id, if listed.
func FindPresenter(presenters []models.Presenter, id int) (models.Presenter, bool) {
	for _, p := range presenters {
		if p.ID == id {
			return p, true
		}
	}
	return models.Presenter{}, false
}
