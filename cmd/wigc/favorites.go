package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/michaelrayburke/cniga-wigc/internal/auth"
	"github.com/michaelrayburke/cniga-wigc/internal/favorites"
)

func newFavoritesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "favorites",
		Aliases: []string{"fav"},
		Short:   "Manage starred events",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List starred event ids",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				set, release, err := a.favoriteSet(cmd)
				if err != nil {
					return err
				}
				defer release()

				for _, id := range set.IDs() {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "toggle <event-id>",
			Short: "Star or unstar an event",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("event id must be a number: %q", args[0])
				}
				set, release, err := a.favoriteSet(cmd)
				if err != nil {
					return err
				}
				defer release()

				starred, err := set.Toggle(cmd.Context(), id)
				if err != nil {
					return err
				}
				if starred {
					fmt.Fprintf(cmd.OutOrStdout(), "Starred %d\n", id)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Unstarred %d\n", id)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Move favorites starred while signed out into your account",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.migrateFavorites(cmd)
			},
		},
	)
	return cmd
}

func (a *app) migrateFavorites(cmd *cobra.Command) error {
	ctx := cmd.Context()

	sb, err := a.supabase()
	if err != nil {
		return err
	}
	sessions, err := a.sessions(sb)
	if err != nil {
		return err
	}
	sess, err := sessions.Current(ctx)
	if errors.Is(err, auth.ErrNoSession) {
		return fmt.Errorf("not signed in; run 'wigc login' first")
	}
	if err != nil {
		return err
	}

	local, err := a.localStore()
	if err != nil {
		return err
	}
	defer local.Close()

	merged, err := favorites.Migrate(ctx, local, a.storeFor(sb, local)(sess), sess.User.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d favorites in your account\n", len(merged))
	return nil
}
