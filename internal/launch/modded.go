package launch

import (
	"context"
	"fmt"
	"strings"

	"github.com/emberlaunch/ember/internal/domain"
)

// modded is the shared behavior for loader-modified variants. It recomputes
// the classpath flag itself and pins the working-directory flag, since
// loader manifests inherit argument lists that would otherwise carry stale
// values.
type modded struct {
	deps Deps
	// loaderMarker must appear in some library coordinate; its absence
	// means the loader was never installed for this version.
	loaderMarker string
}

func (m *modded) Prepare(_ context.Context, lc domain.LaunchContext) error {
	manifest, _, err := resolve(lc)
	if err != nil {
		return err
	}

	return m.verifyLoaderPresent(manifest, lc.Installation.VersionRef)
}

func (m *modded) Launch(ctx context.Context, lc domain.LaunchContext) (domain.LaunchResult, error) {
	manifest, classpath, err := resolve(lc)
	if err != nil {
		return domain.LaunchResult{}, err
	}
	if err := m.verifyLoaderPresent(manifest, lc.Installation.VersionRef); err != nil {
		return domain.LaunchResult{}, err
	}

	table := substitutionTable(lc, manifest, classpath)

	jvmArgs := stripClasspathFlag(expandArguments(manifest.Arguments.JVM, table))
	jvmArgs = append(jvmArgs, "-cp", classpath)

	gameArgs := expandArguments(manifest.Arguments.Game, table)
	gameArgs = ensureGameDirFlag(gameArgs, lc.GameDir)

	return spawn(ctx, m.deps, lc, assemble(lc, manifest, jvmArgs, gameArgs))
}

func (m *modded) verifyLoaderPresent(manifest Manifest, versionRef string) error {
	for _, library := range manifest.Libraries {
		if strings.Contains(library.Name, m.loaderMarker) {
			return nil
		}
	}

	return fmt.Errorf("version %s has no %s library installed", versionRef, m.loaderMarker)
}

type FabricStrategy struct {
	modded
}

type QuiltStrategy struct {
	modded
}

type ForgeStrategy struct {
	modded
}
