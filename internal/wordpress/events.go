package wordpress

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/michaelrayburke/cniga-wigc/internal/acf"
	"github.com/michaelrayburke/cniga-wigc/internal/models"
)

// FetchEvents retrieves every event post with embedded taxonomy terms.
func (c *Client) FetchEvents(ctx context.Context) ([]models.RawEvent, error) {
	posts, err := c.listPosts(ctx, c.cfg.EventPostType, url.Values{"_embed": {"1"}})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}

	events := make([]models.RawEvent, 0, len(posts))
	for _, p := range posts {
		events = append(events, convertEvent(p))
	}

	c.logger.Debug("fetched events", zap.Int("count", len(events)))
	return events, nil
}

func convertEvent(p post) models.RawEvent {
	a := p.ACF

	var terms []models.Term
	for _, group := range p.Embedded.Terms {
		for _, t := range group {
			if t.Taxonomy == "" {
				continue
			}
			terms = append(terms, models.Term{Taxonomy: t.Taxonomy, Slug: t.Slug, Name: t.Name})
		}
	}

	description := acf.Text(a.First("session-description", "session_description", "event_description", "event-description"))
	if description == "" {
		description = p.Content.Rendered
	}

	return models.RawEvent{
		ID:          p.ID,
		Title:       p.Title.Rendered,
		DateLabel:   acf.Text(a.First("event-date", "date")),
		StartTime:   acf.Text(a.First("event-time-start", "start_time", "time")),
		EndTime:     acf.Text(a.First("event-time-end", "end_time")),
		Location:    acf.Text(a.First("location", "room")),
		Terms:       terms,
		Track:       a["track"],
		Speakers:    a["speakers"],
		Moderator:   a["moderator"],
		ContentHTML: description,
	}
}
