package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/emberlaunch/ember/internal/adapters/auth"
	"github.com/emberlaunch/ember/internal/adapters/render/status"
	"github.com/emberlaunch/ember/internal/domain"
)

const browserPollInterval = time.Second

func newLoginCmd(holder *appHolder) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to a Microsoft account",
	}

	cmd.AddCommand(newLoginDeviceCmd(holder), newLoginBrowserCmd(holder))

	return cmd
}

func newLoginDeviceCmd(holder *appHolder) *cobra.Command {
	return &cobra.Command{
		Use:   "device",
		Short: "Sign in with a code on another device",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := holder.ensure()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			session, err := app.auth.StartDeviceLogin(ctx)
			if err != nil {
				return fmt.Errorf("start device login: %w", err)
			}
			defer app.auth.AbandonDeviceLogin(session.ID)

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, status.RenderDeviceInstruction(
				session.UserCode, session.VerificationURL, session.ExpiresAt, app.clock.Now(),
			))

			result, err := runLoginSpinner(ctx, out, "Waiting for sign-in...", session.Interval, func() (auth.LoginResult, error) {
				return app.auth.PollDeviceLogin(ctx, session.ID)
			})
			if err != nil {
				return err
			}

			return reportLogin(cmd, result)
		},
	}
}

func newLoginBrowserCmd(holder *appHolder) *cobra.Command {
	return &cobra.Command{
		Use:   "browser",
		Short: "Sign in through a browser on this machine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := holder.ensure()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			session, err := app.auth.StartBrowserLogin(ctx)
			if err != nil {
				return fmt.Errorf("start browser login: %w", err)
			}
			defer app.auth.AbandonBrowserLogin(session.ID)

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Open this URL to sign in:\n\n  %s\n\n", session.AuthURL)

			result, err := runLoginSpinner(ctx, out, "Waiting for the browser redirect...", browserPollInterval, func() (auth.LoginResult, error) {
				return app.auth.PollBrowserLogin(ctx, session.ID)
			})
			if err != nil {
				return err
			}

			return reportLogin(cmd, result)
		},
	}
}

func reportLogin(cmd *cobra.Command, result auth.LoginResult) error {
	switch result.State {
	case domain.FlowComplete:
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s).\n", result.Profile.Name, result.Profile.PlayerID)
		return err
	case domain.FlowDenied:
		return fmt.Errorf("sign-in was declined")
	case domain.FlowExpired:
		return fmt.Errorf("the code expired before sign-in completed; run the login command again")
	case domain.FlowFailed:
		return result.Err
	default:
		return fmt.Errorf("login ended in unexpected state %q", result.State)
	}
}
