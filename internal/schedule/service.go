package schedule

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/michaelrayburke/cniga-wigc/internal/eventtime"
	"github.com/michaelrayburke/cniga-wigc/internal/metrics"
	"github.com/michaelrayburke/cniga-wigc/internal/models"
)

// Fetcher is what the schedule needs from the CMS.
type Fetcher interface {
	FetchEvents(ctx context.Context) ([]models.RawEvent, error)
	FetchPresentersByIDs(ctx context.Context, ids []int) ([]models.Presenter, error)
}

// Service loads fresh schedule snapshots from a Fetcher
type Service struct {
	fetcher  Fetcher
	resolver *eventtime.Resolver
	kinds    Kinds
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithKinds overrides the event-type slugs of the sessions and socials buckets
func WithKinds(k Kinds) Option {
	return func(s *Service) {
		if k.Session != "" {
			s.kinds.Session = k.Session
		}
		if k.Social != "" {
			s.kinds.Social = k.Social
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records load outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a schedule service
func NewService(f Fetcher, r *eventtime.Resolver, opts ...Option) *Service {
	if r == nil {
		r = eventtime.NewResolver(nil, 0)
	}
	s := &Service{
		fetcher:  f,
		resolver: r,
		kinds:    DefaultKinds,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot is one fetch of the schedule, held until the next fetch.
type Snapshot struct {
	Events    []models.Event
	Sessions  []models.Event
	Socials   []models.Event
	Tracks    []string
	FetchedAt time.Time
	kinds     Kinds
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.now()
}

// Kinds returns the configured bucket slugs.
func (s *Service) Kinds() Kinds {
	return s.kinds
}

// Load fetches all events, then the presenters they reference in one batched
// lookup, and assembles a snapshot. A failed presenter lookup is logged and
// the events are returned without people rather than failing the schedule.
func (s *Service) Load(ctx context.Context) (*Snapshot, error) {
	start := s.now()

	raws, err := s.fetcher.FetchEvents(ctx)
	if err != nil {
		s.metrics.ObserveScheduleLoad(0, err)
		return nil, fmt.Errorf("fetch events: %w", err)
	}

	events := NormalizeAll(raws, s.resolver)

	var presenters []models.Presenter
	if ids := PresenterIDs(events); len(ids) > 0 {
		presenters, err = s.fetcher.FetchPresentersByIDs(ctx, ids)
		if err != nil {
			if ctx.Err() != nil {
				s.metrics.ObserveScheduleLoad(0, ctx.Err())
				return nil, fmt.Errorf("fetch presenters: %w", ctx.Err())
			}
			s.logger.Warn("presenter lookup failed; continuing without speakers",
				zap.Int("presenters", len(ids)), zap.Error(err))
			presenters = nil
		}
	}
	events = Attach(events, presenters)

	snap := &Snapshot{
		Events:    events,
		Sessions:  Bucket(events, s.kinds.Session),
		Socials:   Bucket(events, s.kinds.Social),
		FetchedAt: s.now(),
		kinds:     s.kinds,
	}
	snap.Tracks = Tracks(snap.Sessions)

	s.metrics.ObserveScheduleLoad(len(events), nil)
	s.logger.Debug("schedule loaded",
		zap.Int("events", len(events)),
		zap.Int("sessions", len(snap.Sessions)),
		zap.Int("socials", len(snap.Socials)),
		zap.Duration("took", s.now().Sub(start)))

	return snap, nil
}

// View computes a day-grouped view of the snapshot.
func (snap *Snapshot) View(starred IDSet, opts Options) []models.DayGroup {
	if opts.Kinds == (Kinds{}) {
		opts.Kinds = snap.kinds
	}
	return ComputeView(snap.Events, starred, opts)
}

// Presenter returns the sessions a presenter speaks at or moderates.
func (snap *Snapshot) Presenter(id int) models.PresenterSessions {
	if ps, ok := SessionsByPresenter(snap.Sessions)[id]; ok {
		return *ps
	}
	return models.PresenterSessions{Speaking: []models.Event{}, Moderating: []models.Event{}}
}
