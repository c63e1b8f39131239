package ports

import (
	"context"

	"github.com/emberlaunch/ember/internal/domain"
)

type InstallationRepository interface {
	List(ctx context.Context) ([]domain.Installation, error)
	Get(ctx context.Context, id domain.InstallationID) (domain.Installation, error)
	Save(ctx context.Context, installation domain.Installation) error
	Remove(ctx context.Context, id domain.InstallationID) error
}
