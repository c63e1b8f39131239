package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/emberlaunch/ember/internal/domain"
)

func newInstanceCmd(holder *appHolder) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instance",
		Short: "Manage game installations",
	}

	cmd.AddCommand(
		newInstanceListCmd(holder),
		newInstanceCreateCmd(holder),
		newInstanceShowCmd(holder),
		newInstanceRemoveCmd(holder),
	)

	return cmd
}

func newInstanceListCmd(holder *appHolder) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := holder.ensure()
			if err != nil {
				return err
			}

			installations, err := app.installations.List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, installation := range installations {
				_, _ = fmt.Fprintf(out, "%s\t%s\t%s\t%s\n",
					installation.ID, installation.Name, installation.VersionRef, installation.Loader)
			}
			if len(installations) == 0 {
				_, _ = fmt.Fprintln(out, "No installations. Run `ember instance create` to add one.")
			}

			return nil
		},
	}
}

func newInstanceCreateCmd(holder *appHolder) *cobra.Command {
	var (
		id         string
		versionRef string
		loader     string
		extraArgs  []string
		parameters map[string]string
		assetDirs  []string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an installation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := holder.ensure()
			if err != nil {
				return err
			}

			name := args[0]
			if id == "" {
				id = slugify(name)
			}

			installation := domain.Installation{
				ID:         domain.InstallationID(id),
				Name:       name,
				VersionRef: versionRef,
				Loader:     domain.LoaderKind(loader),
				ExtraArgs:  extraArgs,
				Parameters: parameters,
				AssetDirs:  assetDirs,
			}
			if !installation.Loader.Valid() {
				return fmt.Errorf("unknown loader %q (expected vanilla, fabric, quilt or forge)", loader)
			}

			if err := app.installations.Save(cmd.Context(), installation); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Created installation %s.\n", installation.ID)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&id, "id", "", "Installation id (defaults to a slug of the name)")
	flags.StringVar(&versionRef, "version", "", "Game version reference, e.g. 1.21.4 or fabric-loader-0.16.9-1.21.4")
	flags.StringVar(&loader, "loader", "vanilla", "Loader variant: vanilla, fabric, quilt or forge")
	flags.StringArrayVar(&extraArgs, "extra-arg", nil, "Extra JVM argument, prepended to the resolved list (repeatable)")
	flags.StringToStringVar(&parameters, "param", nil, "Free-form override; keys starting with -- become game flags")
	flags.StringArrayVar(&assetDirs, "asset-dir", nil, "Dedicated asset folder linked into the game directory (repeatable)")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}

func newInstanceShowCmd(holder *appHolder) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one installation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := holder.ensure()
			if err != nil {
				return err
			}

			installation, err := app.installations.Get(cmd.Context(), domain.InstallationID(args[0]))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "id:       %s\n", installation.ID)
			_, _ = fmt.Fprintf(out, "name:     %s\n", installation.Name)
			_, _ = fmt.Fprintf(out, "version:  %s\n", installation.VersionRef)
			_, _ = fmt.Fprintf(out, "loader:   %s\n", installation.Loader)
			if len(installation.ExtraArgs) > 0 {
				_, _ = fmt.Fprintf(out, "jvm args: %s\n", strings.Join(installation.ExtraArgs, " "))
			}
			for key, value := range installation.Parameters {
				_, _ = fmt.Fprintf(out, "param:    %s=%s\n", key, value)
			}
			for _, dir := range installation.AssetDirs {
				_, _ = fmt.Fprintf(out, "assets:   %s\n", dir)
			}
			_, _ = fmt.Fprintf(out, "launches: %d\n", installation.Stats.LaunchCount)
			if !installation.Stats.LastPlayed.IsZero() {
				_, _ = fmt.Fprintf(out, "last:     %s\n", installation.Stats.LastPlayed.Format("2006-01-02 15:04"))
			}

			return nil
		},
	}
}

func newInstanceRemoveCmd(holder *appHolder) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove an installation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := holder.ensure()
			if err != nil {
				return err
			}

			return app.installations.Remove(cmd.Context(), domain.InstallationID(args[0]))
		},
	}
}

// slugify derives an installation id from a display name.
func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}

	return strings.TrimSuffix(b.String(), "-")
}
