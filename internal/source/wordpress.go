package source

import (
	"net/http"

	"github.com/michaelrayburke/cniga-wigc/internal/config"
	"github.com/michaelrayburke/cniga-wigc/internal/wordpress"
)

const (
	TypeWordPress = "wordpress"
	TypeFile      = "file"
)

func newWordPress(cfg *config.Config, env Env) (Source, error) {
	wc := cfg.WordPress
	groups := make([]wordpress.SponsorGroupRef, 0, len(wc.SponsorGroups))
	for _, g := range wc.SponsorGroups {
		groups = append(groups, wordpress.SponsorGroupRef{Slug: g.Slug, Label: g.Label})
	}

	client, err := wordpress.New(wordpress.Config{
		BaseURL:             wc.BaseURL,
		EventPostType:       wc.EventPostType,
		PresenterPostType:   wc.PresenterPostType,
		SponsorshipPostType: wc.SponsorshipPostType,
		SponsorTypes:        wc.SponsorTypes,
		SponsorGroups:       groups,
		Timeout:             wc.Timeout,
		UserAgent:           wc.UserAgent,
		Concurrency:         wc.Concurrency,
	},
		wordpress.WithLogger(env.Logger),
		wordpress.WithTransport(func(next http.RoundTripper) http.RoundTripper {
			return env.Metrics.Transport("wordpress", next)
		}),
	)
	if err != nil {
		return nil, err
	}
	return client, nil
}
