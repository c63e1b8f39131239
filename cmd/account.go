package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emberlaunch/ember/internal/domain"
)

func newAccountCmd(holder *appHolder) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage signed-in accounts",
	}

	cmd.AddCommand(
		newAccountListCmd(holder),
		newAccountUseCmd(holder),
		newAccountRemoveCmd(holder),
		newAccountDoctorCmd(holder),
	)

	return cmd
}

func newAccountListCmd(holder *appHolder) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts and the active one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := holder.ensure()
			if err != nil {
				return err
			}

			accounts, err := app.auth.Accounts(cmd.Context())
			if err != nil {
				return err
			}

			var activeID domain.PlayerID
			if active, err := app.auth.Active(cmd.Context()); err == nil {
				activeID = active.PlayerID
			}

			out := cmd.OutOrStdout()
			for _, account := range accounts {
				marker := " "
				if account.PlayerID == activeID {
					marker = "*"
				}
				_, _ = fmt.Fprintf(out, "%s %s\t%s\n", marker, account.PlayerID, account.Name)
			}
			if len(accounts) == 0 {
				_, _ = fmt.Fprintln(out, "No accounts. Run `ember login` to sign in.")
			}

			return nil
		},
	}
}

func newAccountUseCmd(holder *appHolder) *cobra.Command {
	return &cobra.Command{
		Use:   "use <player-id>",
		Short: "Make an account the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := holder.ensure()
			if err != nil {
				return err
			}

			return app.auth.SetActive(cmd.Context(), domain.PlayerID(args[0]))
		},
	}
}

func newAccountRemoveCmd(holder *appHolder) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <player-id>",
		Short: "Sign an account out and forget its tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := holder.ensure()
			if err != nil {
				return err
			}

			return app.auth.Logout(cmd.Context(), domain.PlayerID(args[0]))
		},
	}
}

func newAccountDoctorCmd(holder *appHolder) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate stored credentials and prune broken ones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := holder.ensure()
			if err != nil {
				return err
			}

			summary, err := app.auth.Doctor(cmd.Context())
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), summary)
			return err
		},
	}
}
