package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/emberlaunch/ember/internal/logger"
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	holder := &appHolder{}
	var logOpts logger.Options

	rootCmd := &cobra.Command{
		Use:           "ember",
		Short:         "Minecraft launcher: accounts, installations and supervised launches",
		Long:          "ember signs accounts in through the Microsoft device-code or browser flow, keeps their tokens encrypted at rest, and launches vanilla, Fabric, Quilt or Forge installations under a process supervisor.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			log, cleanup, err := logger.Init(logOpts)
			if err != nil {
				return err
			}
			holder.log = log
			holder.cleanup = cleanup

			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if holder.cleanup == nil {
				return nil
			}
			return holder.cleanup()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&logOpts.Level, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&logOpts.Format, "log-format", "text", "Log format (text, json)")
	flags.StringVar(&logOpts.File, "log-file", "", "Write logs to a file instead of stderr")
	flags.BoolVar(&logOpts.NoColor, "no-color", false, "Disable colored log output")

	rootCmd.AddCommand(
		newVersionCmd(),
		newLoginCmd(holder),
		newAccountCmd(holder),
		newInstanceCmd(holder),
		newLaunchCmd(holder),
		newStatusCmd(holder),
		newPSCmd(holder),
		newKillCmd(holder),
	)

	return rootCmd
}

// appHolder wires the adapters lazily, on the first command that needs
// them. Commands like version then never touch the config dir or key file.
type appHolder struct {
	log     *slog.Logger
	cleanup logger.CleanupFunc
	app     *app
}

func (h *appHolder) ensure() (*app, error) {
	if h.app != nil {
		return h.app, nil
	}

	log := h.log
	if log == nil {
		log = slog.Default()
	}

	app, err := wireApp(log)
	if err != nil {
		return nil, err
	}
	h.app = app

	return app, nil
}
