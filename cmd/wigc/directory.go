package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/michaelrayburke/cniga-wigc/internal/models"
	"github.com/michaelrayburke/cniga-wigc/internal/schedule"
	"github.com/michaelrayburke/cniga-wigc/internal/textutil"
)

func newPresentersCmd(a *app) *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "presenters [id]",
		Short: "List presenters, or show one with their sessions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				id, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("presenter id must be a number: %q", args[0])
				}
				return a.showPresenter(cmd, id)
			}
			return a.listPresenters(cmd, query)
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Only presenters whose name, title or organization contain this text")
	return cmd
}

func (a *app) listPresenters(cmd *cobra.Command, query string) error {
	src, err := a.source()
	if err != nil {
		return err
	}
	presenters, err := src.FetchPresenters(cmd.Context())
	if err != nil {
		return fmt.Errorf("unable to load presenters: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTITLE\tORGANIZATION")
	for _, p := range schedule.SearchPresenters(presenters, query) {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", p.ID, p.Name, p.Title, p.Org)
	}
	return tw.Flush()
}

func (a *app) showPresenter(cmd *cobra.Command, id int) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	src, err := a.source()
	if err != nil {
		return err
	}
	found, err := src.FetchPresentersByIDs(ctx, []int{id})
	if err != nil {
		return fmt.Errorf("unable to load presenter: %w", err)
	}
	p, ok := schedule.FindPresenter(found, id)
	if !ok {
		return fmt.Errorf("presenter %d not found", id)
	}

	svc, err := a.scheduleService(src)
	if err != nil {
		return err
	}
	snap, err := svc.Load(ctx)
	if err != nil {
		return fmt.Errorf("unable to load schedule: %w", err)
	}

	fmt.Fprintln(out, p.Name)
	if line := textutil.JoinNonEmpty([]string{p.Title, p.Org}, ", "); line != "" {
		fmt.Fprintln(out, line)
	}
	if bio := textutil.PlainText(p.BioHTML); bio != "" {
		fmt.Fprintf(out, "\n%s\n", bio)
	}

	sessions := snap.Presenter(id)
	printSessions(out, "Speaking", sessions.Speaking)
	printSessions(out, "Moderating", sessions.Moderating)
	return nil
}

func printSessions(w io.Writer, heading string, events []models.Event) {
	if len(events) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", heading)
	for _, ev := range events {
		fmt.Fprintf(w, "  %s %s  %s\n", ev.DateLabel, ev.StartTime, ev.Title)
	}
}

func newSponsorsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sponsors",
		Short: "List sponsors by sponsorship level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, err := a.source()
			if err != nil {
				return err
			}
			groups, err := src.FetchSponsorGroups(cmd.Context())
			if err != nil {
				return fmt.Errorf("unable to load sponsors: %w", err)
			}

			out := cmd.OutOrStdout()
			for i, g := range groups {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "== %s ==\n", g.Label)
				for _, s := range g.Sponsors {
					if s.Website != "" {
						fmt.Fprintf(out, "  %s <%s>\n", s.Name, s.Website)
					} else {
						fmt.Fprintf(out, "  %s\n", s.Name)
					}
				}
			}
			return nil
		},
	}
}
