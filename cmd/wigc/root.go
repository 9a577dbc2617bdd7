package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelrayburke/cniga-wigc/internal/auth"
	"github.com/michaelrayburke/cniga-wigc/internal/config"
	"github.com/michaelrayburke/cniga-wigc/internal/eventtime"
	"github.com/michaelrayburke/cniga-wigc/internal/favorites"
	"github.com/michaelrayburke/cniga-wigc/internal/logging"
	"github.com/michaelrayburke/cniga-wigc/internal/metrics"
	"github.com/michaelrayburke/cniga-wigc/internal/schedule"
	"github.com/michaelrayburke/cniga-wigc/internal/source"
	"github.com/michaelrayburke/cniga-wigc/internal/supabase"
)

// app holds what every command shares once the config has been read.
type app struct {
	cfgPath string

	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "wigc",
		Short: "WIGC conference schedule",
		Long: `wigc reads the Western Indian Gaming Conference schedule from the
conference WordPress site and serves it as filtered day-by-day views, an
iCal feed and an HTTP API. Signed-in attendees can star sessions.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.init,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "config file (default is ./config.yaml or $XDG_CONFIG_HOME/wigc/config.yaml)")

	root.AddCommand(
		newServeCmd(a),
		newScheduleCmd(a),
		newPresentersCmd(a),
		newSponsorsCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newFavoritesCmd(a),
		newConfigCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	a.metrics = metrics.New()
	return nil
}

func (a *app) source() (source.Source, error) {
	return source.DefaultRegistry().Open(a.cfg, source.Env{Logger: a.logger, Metrics: a.metrics})
}

func (a *app) scheduleService(src source.Source) (*schedule.Service, error) {
	loc, err := a.cfg.Schedule.Location()
	if err != nil {
		return nil, err
	}
	return schedule.NewService(src,
		eventtime.NewResolver(loc, a.cfg.Schedule.DefaultDuration),
		schedule.WithKinds(schedule.Kinds{
			Session: a.cfg.Schedule.SessionKind,
			Social:  a.cfg.Schedule.SocialKind,
		}),
		schedule.WithLogger(a.logger),
		schedule.WithMetrics(a.metrics),
	), nil
}

var errSupabaseDisabled = errors.New("supabase is not configured (set supabase.url and supabase.anon_key)")

func (a *app) supabase() (*supabase.Client, error) {
	if !a.cfg.Supabase.Enabled() {
		return nil, errSupabaseDisabled
	}
	return supabase.New(supabase.Config{
		URL:     a.cfg.Supabase.URL,
		AnonKey: a.cfg.Supabase.AnonKey,
		Timeout: a.cfg.Supabase.Timeout,
	},
		supabase.WithLogger(a.logger),
		supabase.WithTransport(func(next http.RoundTripper) http.RoundTripper {
			return a.metrics.Transport("supabase", next)
		}),
	)
}

func (a *app) sessions(sb *supabase.Client) (*auth.Sessions, error) {
	return auth.NewSessions(sb,
		auth.WithStateFile(a.cfg.Favorites.SessionFile),
		auth.WithSessionLogger(a.logger),
	)
}

func (a *app) localStore() (*favorites.SQLiteStore, error) {
	return favorites.OpenSQLite(a.cfg.Favorites.SQLitePath)
}

// storeFor returns where a signed-in user's favorites live under the
// configured backend.
func (a *app) storeFor(sb *supabase.Client, local *favorites.SQLiteStore) func(*supabase.Session) favorites.Store {
	return func(sess *supabase.Session) favorites.Store {
		if a.cfg.Favorites.Backend == "sqlite" {
			return local
		}
		return sb.Favorites(sess.AccessToken)
	}
}

// favoriteSet binds and loads the current user's favorites. Signed-in users
// get anything starred locally merged into their list. Without Supabase the
// sqlite backend keeps favorites for the local user. release closes the
// local database.
func (a *app) favoriteSet(cmd *cobra.Command) (set *favorites.Set, release func(), err error) {
	ctx := cmd.Context()

	local, err := a.localStore()
	if err != nil {
		return nil, nil, err
	}
	release = func() { _ = local.Close() }
	defer func() {
		if err != nil {
			release()
		}
	}()

	sb, err := a.supabase()
	switch {
	case errors.Is(err, errSupabaseDisabled) && a.cfg.Favorites.Backend == "sqlite":
		set = favorites.NewSet(favorites.WithLogger(a.logger), favorites.WithMetrics(a.metrics))
		set.Bind(local, favorites.LocalUser)
	case err != nil:
		return nil, nil, err
	default:
		sessions, err := a.sessions(sb)
		if err != nil {
			return nil, nil, err
		}
		sess, err := sessions.Current(ctx)
		if errors.Is(err, auth.ErrNoSession) {
			return nil, nil, fmt.Errorf("not signed in; run 'wigc login' first")
		}
		if err != nil {
			return nil, nil, err
		}
		set = favorites.NewSet(
			favorites.WithLegacy(local),
			favorites.WithLogger(a.logger),
			favorites.WithMetrics(a.metrics),
		)
		set.Bind(a.storeFor(sb, local)(sess), sess.User.ID)
	}

	if err := set.Load(ctx); err != nil {
		return nil, nil, err
	}
	return set, release, nil
}
