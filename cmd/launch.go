package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/emberlaunch/ember/internal/domain"
)

func newLaunchCmd(holder *appHolder) *cobra.Command {
	var (
		wait    bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "launch <installation-id>",
		Short: "Launch an installation with the active account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := holder.ensure()
			if err != nil {
				return err
			}

			result, err := app.launch.Launch(cmd.Context(), domain.InstallationID(args[0]))
			if err != nil {
				if errorIsReauth(err) {
					return fmt.Errorf("%w; run `ember login` to sign in again", err)
				}
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Launched %s (pid %d).\n", args[0], result.PID)
			if verbose {
				_, _ = fmt.Fprintln(out, strings.Join(result.CommandLine, " "))
			}

			if !wait {
				return nil
			}

			code, err := app.launch.Wait(cmd.Context(), result.PID)
			if err != nil {
				return err
			}
			if code != 0 {
				return fmt.Errorf("game exited with code %d", code)
			}
			_, _ = fmt.Fprintln(out, "Game exited.")

			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the game exits")
	cmd.Flags().BoolVar(&verbose, "show-command", false, "Print the full command line")

	return cmd
}

func errorIsReauth(err error) bool {
	return errors.Is(err, domain.ErrCredentialUnrecoverable) || errors.Is(err, domain.ErrEntitlementMissing)
}
