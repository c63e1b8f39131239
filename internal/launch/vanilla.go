package launch

import (
	"context"

	"github.com/emberlaunch/ember/internal/domain"
)

// VanillaStrategy launches the unmodified game. The manifest's own classpath
// flag is trusted as-is.
type VanillaStrategy struct {
	deps Deps
}

func (s *VanillaStrategy) Prepare(_ context.Context, lc domain.LaunchContext) error {
	_, _, err := resolve(lc)
	return err
}

func (s *VanillaStrategy) Launch(ctx context.Context, lc domain.LaunchContext) (domain.LaunchResult, error) {
	manifest, classpath, err := resolve(lc)
	if err != nil {
		return domain.LaunchResult{}, err
	}

	table := substitutionTable(lc, manifest, classpath)

	jvmArgs := expandArguments(manifest.Arguments.JVM, table)
	if len(jvmArgs) == 0 {
		jvmArgs = []string{"-Djava.library.path=" + lc.NativesDir, "-cp", classpath}
	}
	gameArgs := expandArguments(manifest.Arguments.Game, table)

	return spawn(ctx, s.deps, lc, assemble(lc, manifest, jvmArgs, gameArgs))
}
