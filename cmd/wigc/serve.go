package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelrayburke/cniga-wigc/internal/auth"
	"github.com/michaelrayburke/cniga-wigc/internal/favorites"
	"github.com/michaelrayburke/cniga-wigc/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the schedule API and iCal feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd)
		},
	}
}

func (a *app) serve(cmd *cobra.Command) error {
	ctx := cmd.Context()

	src, err := a.source()
	if err != nil {
		return err
	}
	svc, err := a.scheduleService(src)
	if err != nil {
		return err
	}
	authenticator, err := auth.NewAuthenticator(a.cfg.Auth.Method, a.cfg.Auth.APIKey)
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithLogger(a.logger),
		server.WithMetrics(a.metrics),
		server.WithCalendarName(a.cfg.Schedule.CalendarName),
	}

	sb, err := a.supabase()
	switch {
	case err == nil:
		opts = append(opts, server.WithAccounts(sb, a.cfg.Supabase.RedirectURL))
		if a.cfg.Favorites.Backend == "supabase" {
			opts = append(opts, server.WithFavorites(func(token string) favorites.Store {
				return sb.Favorites(token)
			}))
		}
	case a.cfg.Favorites.Backend == "supabase":
		a.logger.Warn("sign-in and favorites disabled", zap.Error(err))
	}

	if a.cfg.Favorites.Backend == "sqlite" {
		local, err := a.localStore()
		if err != nil {
			return err
		}
		defer local.Close()
		opts = append(opts, server.WithFavorites(func(string) favorites.Store { return local }))
	}

	srv := server.New(svc, src, authenticator, a.cfg.Server, opts...)

	a.logger.Info("performing initial schedule fetch")
	if err := srv.Refresh(ctx); err != nil {
		a.logger.Warn("initial schedule fetch failed", zap.Error(err))
	}
	go srv.RunRefresher(ctx, a.cfg.Schedule.RefreshInterval)

	return srv.Start(ctx)
}
