package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emberlaunch/ember/internal/adapters/render/status"
	"github.com/emberlaunch/ember/internal/domain"
)

func newStatusCmd(holder *appHolder) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show accounts, installations and running processes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := holder.ensure()
			if err != nil {
				return err
			}

			ctx := cmd.Context()

			accounts, err := app.auth.Accounts(ctx)
			if err != nil {
				return err
			}

			var activeID domain.PlayerID
			if active, err := app.auth.Active(ctx); err == nil {
				activeID = active.PlayerID
			}

			installations, err := app.installations.List(ctx)
			if err != nil {
				return err
			}

			view := status.Render(status.Model{
				Accounts:      accounts,
				ActiveID:      activeID,
				Installations: installations,
				Running:       app.launch.Running(),
				Now:           app.clock.Now(),
			})

			_, err = fmt.Fprintln(cmd.OutOrStdout(), view)
			return err
		},
	}
}
