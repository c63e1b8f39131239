package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newPSCmd(holder *appHolder) *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "List running game processes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := holder.ensure()
			if err != nil {
				return err
			}

			running := app.launch.Running()
			out := cmd.OutOrStdout()
			for _, proc := range running {
				_, _ = fmt.Fprintf(out, "%d\t%s\n", proc.PID, proc.InstallationID)
			}
			if len(running) == 0 {
				_, _ = fmt.Fprintln(out, "Nothing running.")
			}

			return nil
		},
	}
}

func newKillCmd(holder *appHolder) *cobra.Command {
	return &cobra.Command{
		Use:   "kill <pid>",
		Short: "Terminate a game process started by ember",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := holder.ensure()
			if err != nil {
				return err
			}

			pid, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid pid %q", args[0])
			}

			if err := app.launch.Kill(pid); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Killed %d.\n", pid)
			return err
		},
	}
}
