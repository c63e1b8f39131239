package launch

import (
	"context"
	"fmt"
	"os"

	"github.com/emberlaunch/ember/internal/domain"
	"github.com/emberlaunch/ember/internal/ports"
)

// Strategy prepares and launches one loader variant. Prepare is idempotent
// and side-effect free on success; Launch hands the resolved command to the
// supervisor.
type Strategy interface {
	Prepare(ctx context.Context, lc domain.LaunchContext) error
	Launch(ctx context.Context, lc domain.LaunchContext) (domain.LaunchResult, error)
}

// Deps carries the collaborators every strategy needs.
type Deps struct {
	Supervisor ports.Supervisor
}

// ForLoader dispatches over the closed loader set.
func ForLoader(kind domain.LoaderKind, deps Deps) (Strategy, error) {
	switch kind {
	case domain.LoaderVanilla:
		return &VanillaStrategy{deps: deps}, nil
	case domain.LoaderFabric:
		return &FabricStrategy{modded: modded{deps: deps, loaderMarker: "fabric-loader"}}, nil
	case domain.LoaderQuilt:
		return &QuiltStrategy{modded: modded{deps: deps, loaderMarker: "quilt-loader"}}, nil
	case domain.LoaderForge:
		return &ForgeStrategy{modded: modded{deps: deps, loaderMarker: "forge"}}, nil
	default:
		return nil, fmt.Errorf("unknown loader %q", kind)
	}
}

// resolve loads the manifest and the classpath for one attempt. Shared by
// every variant's Prepare and Launch.
func resolve(lc domain.LaunchContext) (Manifest, string, error) {
	manifest, err := LoadManifest(lc.VersionsDir, lc.Installation.VersionRef)
	if err != nil {
		return Manifest{}, "", err
	}
	if manifest.MainClass == "" {
		return Manifest{}, "", fmt.Errorf("%w: %s", ErrMainClassMissing, lc.Installation.VersionRef)
	}

	classpath, err := ResolveClasspath(manifest, lc.LibrariesDir, lc.VersionsDir)
	if err != nil {
		return Manifest{}, "", err
	}

	return manifest, classpath, nil
}

// assemble builds the final argument vector. Modded variants recompute the
// classpath flag themselves, so they pass jvmArgs already normalized.
func assemble(lc domain.LaunchContext, manifest Manifest, jvmArgs, gameArgs []string) []string {
	args := make([]string, 0, len(lc.Installation.ExtraArgs)+len(jvmArgs)+len(gameArgs)+8)
	args = append(args, lc.Installation.ExtraArgs...)
	args = append(args, memoryArgs(lc.Settings)...)
	args = append(args, jvmArgs...)
	args = append(args, manifest.MainClass)
	args = append(args, gameArgs...)
	args = append(args, parameterArgs(lc.Installation.Parameters)...)

	return args
}

func spawn(ctx context.Context, deps Deps, lc domain.LaunchContext, args []string) (domain.LaunchResult, error) {
	if err := os.MkdirAll(lc.GameDir, 0o755); err != nil {
		return domain.LaunchResult{}, fmt.Errorf("create game directory: %w", err)
	}

	pid, err := deps.Supervisor.Start(ctx, ports.ProcessSpec{
		InstallationID: lc.Installation.ID,
		Path:           lc.Settings.JavaBinary,
		Args:           args,
		Dir:            lc.GameDir,
	})
	if err != nil {
		return domain.LaunchResult{}, err
	}

	commandLine := append([]string{lc.Settings.JavaBinary}, args...)

	return domain.LaunchResult{PID: pid, CommandLine: commandLine}, nil
}

// stripClasspathFlag removes every explicit classpath flag and its value
// from a JVM argument list.
func stripClasspathFlag(args []string) []string {
	kept := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		if args[i] == "-cp" || args[i] == "-classpath" {
			i++ // skip the value too
			continue
		}
		kept = append(kept, args[i])
	}

	return kept
}

// ensureGameDirFlag guarantees exactly one --gameDir pair pointing at dir,
// overwriting an existing value rather than duplicating the flag.
func ensureGameDirFlag(args []string, dir string) []string {
	for i := 0; i < len(args); i++ {
		if args[i] == "--gameDir" {
			if i+1 < len(args) {
				args[i+1] = dir
				return args
			}
			return append(args, dir)
		}
	}

	return append(args, "--gameDir", dir)
}
