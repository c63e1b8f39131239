package ports

import (
	"context"

	"github.com/emberlaunch/ember/internal/domain"
)

// AccountRegistry persists the known accounts and the active-account
// pointer. Upsert is keyed by player id: re-authenticating an existing
// player replaces the entry, it never duplicates it.
type AccountRegistry interface {
	List(ctx context.Context) ([]domain.Account, error)
	Get(ctx context.Context, id domain.PlayerID) (domain.Account, error)
	Upsert(ctx context.Context, account domain.Account) error
	Remove(ctx context.Context, id domain.PlayerID) error
	Active(ctx context.Context) (domain.Account, error)
	SetActive(ctx context.Context, id domain.PlayerID) error
	// Maintain validates that every stored credential still decrypts and
	// prunes the ones that do not, returning a human-readable summary of
	// what was removed.
	Maintain(ctx context.Context) (string, error)
}
