package ports

import (
	"context"

	"github.com/emberlaunch/ember/internal/domain"
)

// SymlinkManager mounts per-installation asset folders into the game
// directory before a launch strategy runs. An installation with no dedicated
// asset folders configured must be a no-op.
type SymlinkManager interface {
	SetupForInstallation(ctx context.Context, installation domain.Installation, gameDir string) error
	CleanupAllSymlinks() error
}
