package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelrayburke/cniga-wigc/internal/auth"
	"github.com/michaelrayburke/cniga-wigc/internal/favorites"
	"github.com/michaelrayburke/cniga-wigc/internal/supabase"
)

type loginFlags struct {
	email    string
	password string
	link     bool
	code     string
}

func newLoginCmd(a *app) *cobra.Command {
	var f loginFlags

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to save favorites",
		Long: `Sign in with a password, or by email without one.

Examples:
  # Password sign-in, reading the password from stdin
  wigc login --email you@example.org --password -

  # Passwordless: request a code, then enter it
  wigc login --email you@example.org --link
  wigc login --email you@example.org --code 123456`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.login(cmd, f)
		},
	}

	cmd.Flags().StringVarP(&f.email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&f.password, "password", "p", "", "Password, or - to read it from stdin")
	cmd.Flags().BoolVar(&f.link, "link", false, "Email a sign-in link and code instead of using a password")
	cmd.Flags().StringVar(&f.code, "code", "", "Code from the sign-in email")
	_ = cmd.MarkFlagRequired("email")
	cmd.MarkFlagsMutuallyExclusive("password", "link", "code")
	return cmd
}

func (a *app) login(cmd *cobra.Command, f loginFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	sb, err := a.supabase()
	if err != nil {
		return err
	}
	sessions, err := a.sessions(sb)
	if err != nil {
		return err
	}

	if f.link {
		if err := sessions.SignInWithLink(ctx, f.email, a.cfg.Supabase.RedirectURL); err != nil {
			return fmt.Errorf("unable to send sign-in link: %w", err)
		}
		fmt.Fprintf(out, "Check %s for a sign-in code, then run: wigc login --email %s --code <code>\n", f.email, f.email)
		return nil
	}

	local, err := a.localStore()
	if err != nil {
		return err
	}
	defer local.Close()

	// Seed the attendee profile and bring local favorites into the account as
	// soon as the session starts.
	stopProfile := sessions.Subscribe(func(e auth.Event) {
		if e.Kind != auth.SignedIn {
			return
		}
		if p := sb.EnsureAttendeeProfile(ctx, e.Session.AccessToken, e.Session.User); p != nil {
			a.logger.Info("created attendee profile", zap.String("created_from", p.CreatedFrom))
		}
	})
	defer stopProfile()

	set := favorites.NewSet(
		favorites.WithLegacy(local),
		favorites.WithLogger(a.logger),
		favorites.WithMetrics(a.metrics),
	)
	stopFavorites := set.Watch(ctx, sessions, a.storeFor(sb, local))
	defer stopFavorites()

	var sess *supabase.Session
	switch {
	case f.code != "":
		sess, err = sessions.CompleteSignIn(ctx, f.email, f.code)
	case f.password != "":
		password := f.password
		if password == "-" {
			password, err = readLine(cmd)
			if err != nil {
				return err
			}
		}
		sess, err = sessions.SignIn(ctx, f.email, password)
	default:
		return errors.New("one of --password, --link or --code is required")
	}
	if err != nil {
		var apiErr *supabase.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
			return fmt.Errorf("sign-in rejected: %s", apiErr.Message)
		}
		return fmt.Errorf("unable to sign in: %w", err)
	}

	fmt.Fprintf(out, "Signed in as %s (%d favorites)\n", sess.User.Email, len(set.IDs()))
	return nil
}

func readLine(cmd *cobra.Command) (string, error) {
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sb, err := a.supabase()
			if err != nil {
				return err
			}
			sessions, err := a.sessions(sb)
			if err != nil {
				return err
			}
			if err := sessions.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}
