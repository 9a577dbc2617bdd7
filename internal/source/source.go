// Package source provides the content backends a schedule can be read from
// and a registry that builds the configured one.
package source

import (
	"context"

	"go.uber.org/zap"

	"github.com/michaelrayburke/cniga-wigc/internal/config"
	"github.com/michaelrayburke/cniga-wigc/internal/metrics"
	"github.com/michaelrayburke/cniga-wigc/internal/models"
)

// Source is everything the app reads from the CMS
type Source interface {
	// FetchEvents retrieves every event, not yet normalized
	FetchEvents(ctx context.Context) ([]models.RawEvent, error)

	// FetchPresenters retrieves the full presenter directory
	FetchPresenters(ctx context.Context) ([]models.Presenter, error)

	// FetchPresentersByIDs retrieves the listed presenters; unknown ids are skipped
	FetchPresentersByIDs(ctx context.Context, ids []int) ([]models.Presenter, error)

	// FetchSponsorGroups retrieves the sponsorship groups in display order
	FetchSponsorGroups(ctx context.Context) ([]models.SponsorGroup, error)
}

// Env carries the shared services a factory may wire into its source
type Env struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Factory builds a source from configuration
type Factory func(cfg *config.Config, env Env) (Source, error)
