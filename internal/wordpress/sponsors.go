package wordpress

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/michaelrayburke/cniga-wigc/internal/acf"
	"github.com/michaelrayburke/cniga-wigc/internal/models"
	"github.com/michaelrayburke/cniga-wigc/internal/textutil"
)

// FetchSponsorGroups resolves every configured sponsorship group to its
// sponsors. Groups are fetched concurrently but returned in configured
// order. A group or sponsor that fails to load is logged and skipped, and
// groups without sponsors are left out. An error is returned only when the
// context ends or every group request failed.
func (c *Client) FetchSponsorGroups(ctx context.Context) ([]models.SponsorGroup, error) {
	refs := c.cfg.SponsorGroups
	results := make([]*models.SponsorGroup, len(refs))
	errs := make([]error, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			group, err := c.fetchSponsorGroup(gctx, ref)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.logger.Warn("failed to fetch sponsorship group", zap.String("slug", ref.Slug), zap.Error(err))
				errs[i] = err
				return nil
			}
			results[i] = group
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch sponsors: %w", err)
	}

	failed := 0
	groups := make([]models.SponsorGroup, 0, len(refs))
	for i, group := range results {
		if errs[i] != nil {
			failed++
			continue
		}
		if group != nil && len(group.Sponsors) > 0 {
			groups = append(groups, *group)
		}
	}
	if len(refs) > 0 && failed == len(refs) {
		return nil, fmt.Errorf("failed to fetch sponsors: %w", errors.Join(errs...))
	}
	return groups, nil
}

func (c *Client) fetchSponsorGroup(ctx context.Context, ref SponsorGroupRef) (*models.SponsorGroup, error) {
	var posts []post
	if _, err := c.getJSON(ctx, c.endpoint(c.cfg.SponsorshipPostType, url.Values{"slug": {ref.Slug}}), &posts); err != nil {
		return nil, err
	}

	group := &models.SponsorGroup{Slug: ref.Slug, Label: ref.Label, Sponsors: []models.Sponsor{}}
	if len(posts) == 0 {
		return group, nil
	}

	for _, rel := range acf.Relations(posts[0].ACF["select_sponsors"]) {
		if rel.Type == "" {
			continue
		}
		if !slices.Contains(c.cfg.SponsorTypes, rel.Type) {
			c.logger.Warn("unknown sponsor type", zap.String("type", rel.Type), zap.Int("id", rel.ID))
			continue
		}
		sponsor, err := c.fetchSponsor(ctx, rel)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("failed to fetch sponsor",
				zap.String("type", rel.Type), zap.Int("id", rel.ID), zap.Error(err))
			continue
		}
		group.Sponsors = append(group.Sponsors, sponsor)
	}
	return group, nil
}

func (c *Client) fetchSponsor(ctx context.Context, rel acf.Relation) (models.Sponsor, error) {
	var p post
	resource := rel.Type + "/" + strconv.Itoa(rel.ID)
	if _, err := c.getJSON(ctx, c.endpoint(resource, url.Values{"_embed": {"1"}}), &p); err != nil {
		return models.Sponsor{}, err
	}

	website := acf.Text(p.ACF["website"])
	if website == "" {
		website = acf.Text(p.Website)
	}

	return models.Sponsor{
		ID:      p.ID,
		Type:    rel.Type,
		Name:    textutil.DecodeEntities(p.Title.Rendered),
		LogoURL: logoURL(p),
		Website: website,
	}, nil
}

// logoURL prefers the featured image, then its medium and thumbnail sizes,
// then an ACF image field.
func logoURL(p post) string {
	if len(p.Embedded.FeaturedMedia) > 0 {
		m := p.Embedded.FeaturedMedia[0]
		if m.SourceURL != "" {
			return m.SourceURL
		}
		for _, size := range []string{"medium", "thumbnail"} {
			if s := m.MediaDetails.Sizes[size].SourceURL; s != "" {
				return s
			}
		}
	}
	return acf.ImageURL(p.ACF["image"])
}
