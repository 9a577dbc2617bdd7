package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelrayburke/cniga-wigc/internal/ical"
	"github.com/michaelrayburke/cniga-wigc/internal/models"
	"github.com/michaelrayburke/cniga-wigc/internal/schedule"
)

type scheduleFlags struct {
	view  string
	track string
	query string
	past  bool
	ics   bool
	watch bool
}

func newScheduleCmd(a *app) *cobra.Command {
	var f scheduleFlags

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the schedule grouped by day",
		Long: `Print the schedule grouped by day.

Examples:
  # Everything still to come
  wigc schedule

  # Compliance sessions, including ones already over
  wigc schedule --view sessions --track Compliance --past

  # Your starred events as a calendar file
  wigc schedule --view mine --ics > wigc.ics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.schedule(cmd, f)
		},
	}

	cmd.Flags().StringVar(&f.view, "view", "all", "View to show (all/mine/sessions/socials)")
	cmd.Flags().StringVar(&f.track, "track", schedule.AllTracks, "Track to show in the sessions and mine views")
	cmd.Flags().StringVarP(&f.query, "query", "q", "", "Only events whose title, track, room, date or speakers contain this text")
	cmd.Flags().BoolVar(&f.past, "past", false, "Include events that have already ended")
	cmd.Flags().BoolVar(&f.ics, "ics", false, "Write an iCal calendar instead of text")
	cmd.Flags().BoolVarP(&f.watch, "watch", "w", false, "Refetch and reprint every schedule.refresh_interval")
	return cmd
}

func (a *app) schedule(cmd *cobra.Command, f scheduleFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	view, err := schedule.ParseView(f.view)
	if err != nil {
		return err
	}

	starredIDs := func() (schedule.IDSet, error) {
		if view != schedule.ViewMine {
			return schedule.IDSet{}, nil
		}
		set, release, err := a.favoriteSet(cmd)
		if err != nil {
			return nil, err
		}
		release()
		return schedule.NewIDSet(set.IDs()...), nil
	}
	starred, err := starredIDs()
	if err != nil {
		return err
	}

	src, err := a.source()
	if err != nil {
		return err
	}
	svc, err := a.scheduleService(src)
	if err != nil {
		return err
	}

	render := func(snap *schedule.Snapshot) {
		groups := snap.View(starred, schedule.Options{
			View:     view,
			Track:    f.track,
			Search:   f.query,
			ShowPast: f.past,
			Now:      svc.Now(),
		})
		if f.ics {
			cal := ical.FromGroups(a.cfg.Schedule.CalendarName, "", groups, svc.Now())
			fmt.Fprint(out, ical.Format(cal))
			return
		}
		printGroups(out, groups, starred)
	}

	snap, err := svc.Load(ctx)
	if err != nil {
		return fmt.Errorf("unable to load schedule: %w", err)
	}
	render(snap)

	if !f.watch {
		return nil
	}
	return a.watchSchedule(ctx, svc, snap, func(snap *schedule.Snapshot) {
		// Favorites may have been toggled elsewhere since the last tick.
		ids, err := starredIDs()
		if err != nil {
			a.logger.Warn("favorites refresh failed", zap.Error(err))
		} else {
			starred = ids
		}
		render(snap)
	})
}

// watchSchedule refetches on every tick and reprints. A failed fetch keeps
// the previous snapshot so events still drop off as they end.
func (a *app) watchSchedule(ctx context.Context, svc *schedule.Service, snap *schedule.Snapshot, render func(*schedule.Snapshot)) error {
	interval := a.cfg.Schedule.RefreshInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			next, err := svc.Load(ctx)
			if err != nil {
				a.logger.Warn("schedule refresh failed", zap.Error(err))
			} else {
				snap = next
			}
			render(snap)
		}
	}
}

func printGroups(w io.Writer, groups []models.DayGroup, starred schedule.IDSet) {
	if len(groups) == 0 {
		fmt.Fprintln(w, "No events.")
		return
	}
	for i, g := range groups {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "== %s ==\n", g.Label)
		for _, ev := range g.Events {
			fmt.Fprintln(w, formatEvent(&ev, starred.Has(ev.ID)))
		}
	}
}

func formatEvent(ev *models.Event, starred bool) string {
	mark := " "
	if starred {
		mark = "*"
	}

	when := ev.StartTime
	if ev.EndTime != "" {
		when += " - " + ev.EndTime
	}
	if when == "" {
		when = "TBA"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %-20s %s", mark, when, ev.Title)

	var details []string
	if ev.Room != "" {
		details = append(details, ev.Room)
	}
	if t := schedule.DisplayTrack(ev); t != "" {
		details = append(details, t)
	}
	if len(ev.Speakers) > 0 {
		names := make([]string, 0, len(ev.Speakers))
		for _, p := range ev.Speakers {
			names = append(names, p.Name)
		}
		details = append(details, strings.Join(names, ", "))
	}
	if len(details) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(details, "; "))
	}
	fmt.Fprintf(&b, " [#%d]", ev.ID)
	return b.String()
}
