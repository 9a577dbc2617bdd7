package wordpress

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/michaelrayburke/cniga-wigc/internal/models"
)

// Snapshot is an offline copy of the site: event and presenter posts in
// their REST form plus already-resolved sponsor groups.
type Snapshot struct {
	Events     []models.RawEvent
	Presenters []models.Presenter
	Sponsors   []models.SponsorGroup
}

type snapshotJSON struct {
	Events     []post                `json:"events"`
	Presenters []post                `json:"presenters"`
	Sponsors   []models.SponsorGroup `json:"sponsors"`
}

// ReadSnapshot decodes a snapshot document, converting posts exactly as the
// live client does.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var doc snapshotJSON
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	snap := &Snapshot{
		Events:     make([]models.RawEvent, 0, len(doc.Events)),
		Presenters: make([]models.Presenter, 0, len(doc.Presenters)),
		Sponsors:   doc.Sponsors,
	}
	for _, p := range doc.Events {
		snap.Events = append(snap.Events, convertEvent(p))
	}
	for _, p := range doc.Presenters {
		snap.Presenters = append(snap.Presenters, convertPresenter(p))
	}
	if snap.Sponsors == nil {
		snap.Sponsors = []models.SponsorGroup{}
	}
	return snap, nil
}
