package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const favoritesTable = "attendee_favorites"

func restPath(table string) string {
	return "/rest/v1/" + table
}

func eq(v string) string {
	return "eq." + v
}

type favoriteRow struct {
	AttendeeID string `json:"attendee_id"`
	EventID    string `json:"event_id"`
}

// Favorites reads and writes attendee_favorites rows as one signed-in user.
// Row-level security scopes every request to the token's owner.
type Favorites struct {
	c     *Client
	token string
}

// Favorites returns the favorites table bound to accessToken.
func (c *Client) Favorites(accessToken string) *Favorites {
	return &Favorites{c: c, token: accessToken}
}

// List returns the user's starred event ids. Rows whose event_id is not a
// post id are ignored.
func (f *Favorites) List(ctx context.Context, userID string) ([]int, error) {
	var rows []favoriteRow
	err := f.c.do(ctx, request{
		method: http.MethodGet,
		path:   restPath(favoritesTable),
		query:  url.Values{"select": {"event_id"}, "attendee_id": {eq(userID)}},
		token:  f.token,
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}

	ids := make([]int, 0, len(rows))
	for _, row := range rows {
		id, err := strconv.Atoi(strings.TrimSpace(row.EventID))
		if err != nil {
			f.c.logger.Debug("skipping favorite with non-numeric event id", zap.String("event_id", row.EventID))
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Add stars eventID. Starring twice is not an error.
func (f *Favorites) Add(ctx context.Context, userID string, eventID int) error {
	if err := f.write(ctx, userID, []int{eventID}, "resolution=ignore-duplicates"); err != nil {
		return fmt.Errorf("add favorite %d: %w", eventID, err)
	}
	return nil
}

// Remove unstars eventID.
func (f *Favorites) Remove(ctx context.Context, userID string, eventID int) error {
	err := f.c.do(ctx, request{
		method: http.MethodDelete,
		path:   restPath(favoritesTable),
		query: url.Values{
			"attendee_id": {eq(userID)},
			"event_id":    {eq(strconv.Itoa(eventID))},
		},
		token:  f.token,
		header: http.Header{"Prefer": {"return=minimal"}},
	}, nil)
	if err != nil {
		return fmt.Errorf("remove favorite %d: %w", eventID, err)
	}
	return nil
}

// Upsert stars every id in ids, merging with existing rows.
func (f *Favorites) Upsert(ctx context.Context, userID string, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	if err := f.write(ctx, userID, ids, "resolution=merge-duplicates"); err != nil {
		return fmt.Errorf("upsert favorites: %w", err)
	}
	return nil
}

func (f *Favorites) write(ctx context.Context, userID string, ids []int, resolution string) error {
	rows := make([]favoriteRow, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, favoriteRow{AttendeeID: userID, EventID: strconv.Itoa(id)})
	}
	return f.c.do(ctx, request{
		method: http.MethodPost,
		path:   restPath(favoritesTable),
		query:  url.Values{"on_conflict": {"attendee_id,event_id"}},
		token:  f.token,
		header: http.Header{"Prefer": {resolution + ",return=minimal"}},
		body:   rows,
	}, nil)
}
