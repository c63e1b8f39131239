package ports

import (
	"context"

	"github.com/emberlaunch/ember/internal/domain"
)

// ProcessSpec is a fully-resolved spawn request.
type ProcessSpec struct {
	InstallationID domain.InstallationID
	Path           string
	Args           []string
	Dir            string
	Env            []string
}

// Supervisor spawns game processes and tracks them to exit. Kill and Wait
// only accept ids the supervisor itself started; untracked ids are rejected
// so unrelated processes can never be terminated through this system.
type Supervisor interface {
	Start(ctx context.Context, spec ProcessSpec) (int, error)
	Kill(pid int) error
	Wait(ctx context.Context, pid int) (int, error)
	List() []domain.RunningProcess
	AnyRunning() bool
}
