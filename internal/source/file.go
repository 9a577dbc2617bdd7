package source

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/michaelrayburke/cniga-wigc/internal/config"
	"github.com/michaelrayburke/cniga-wigc/internal/models"
	"github.com/michaelrayburke/cniga-wigc/internal/wordpress"
)

// File serves a saved snapshot of the site. The file is re-read on every
// call so edits show up without a restart.
type File struct {
	path   string
	logger *zap.Logger
}

// NewFile creates a source over the snapshot at path
func NewFile(path string, logger *zap.Logger) *File {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &File{path: path, logger: logger}
}

func newFile(cfg *config.Config, env Env) (Source, error) {
	if _, err := os.Stat(cfg.Source.Path); err != nil {
		return nil, fmt.Errorf("snapshot file: %w", err)
	}
	return NewFile(cfg.Source.Path, env.Logger), nil
}

func (f *File) load(ctx context.Context) (*wordpress.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer r.Close()

	snap, err := wordpress.ReadSnapshot(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.path, err)
	}
	f.logger.Debug("loaded snapshot", zap.String("path", f.path), zap.Int("events", len(snap.Events)))
	return snap, nil
}

func (f *File) FetchEvents(ctx context.Context) ([]models.RawEvent, error) {
	snap, err := f.load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Events, nil
}

func (f *File) FetchPresenters(ctx context.Context) ([]models.Presenter, error) {
	snap, err := f.load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Presenters, nil
}

func (f *File) FetchPresentersByIDs(ctx context.Context, ids []int) ([]models.Presenter, error) {
	snap, err := f.load(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make([]models.Presenter, 0, len(ids))
	for _, p := range snap.Presenters {
		if want[p.ID] {
			out = append(out, p)
			delete(want, p.ID)
		}
	}
	return out, nil
}

func (f *File) FetchSponsorGroups(ctx context.Context) ([]models.SponsorGroup, error) {
	snap, err := f.load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Sponsors, nil
}
