package wordpress

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/michaelrayburke/cniga-wigc/internal/acf"
	"github.com/michaelrayburke/cniga-wigc/internal/models"
	"github.com/michaelrayburke/cniga-wigc/internal/textutil"
)

// FetchPresenters retrieves the full presenter directory.
func (c *Client) FetchPresenters(ctx context.Context) ([]models.Presenter, error) {
	posts, err := c.listPosts(ctx, c.cfg.PresenterPostType, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch presenters: %w", err)
	}

	presenters := make([]models.Presenter, 0, len(posts))
	for _, p := range posts {
		presenters = append(presenters, convertPresenter(p))
	}
	return presenters, nil
}

// FetchPresentersByIDs looks up presenters with include= batches. Duplicate
// ids are requested once. Ids WordPress does not return are simply absent.
func (c *Client) FetchPresentersByIDs(ctx context.Context, ids []int) ([]models.Presenter, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id <= 0 {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, strconv.Itoa(id))
	}

	presenters := make([]models.Presenter, 0, len(unique))
	for start := 0; start < len(unique); start += perPage {
		end := min(start+perPage, len(unique))

		query := url.Values{}
		query.Set("include", strings.Join(unique[start:end], ","))
		posts, err := c.listPosts(ctx, c.cfg.PresenterPostType, query)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch presenters: %w", err)
		}
		for _, p := range posts {
			presenters = append(presenters, convertPresenter(p))
		}
	}
	return presenters, nil
}

func convertPresenter(p post) models.Presenter {
	a := p.ACF
	return models.Presenter{
		ID:              p.ID,
		Name:            textutil.DecodeEntities(p.Title.Rendered),
		FirstName:       textutil.DecodeEntities(acf.Text(a["first_name"])),
		LastName:        textutil.DecodeEntities(acf.Text(a["last_name"])),
		Title:           textutil.DecodeEntities(acf.Text(a["presentertitle"])),
		Org:             textutil.DecodeEntities(acf.Text(a["presenterorg"])),
		Photo:           acf.ImageURL(a["presenterphoto"]),
		BioHTML:         textutil.SanitizeHTML(acf.Text(a["bio"])),
		SessionsSpeaker: acf.IDs(a["sessions_speaker"]),
	}
}
