// Package symlink mounts per-installation asset folders into the game
// directory.
package symlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/emberlaunch/ember/internal/domain"
	"github.com/emberlaunch/ember/internal/ports"
)

// Manager keeps an in-memory record of every link it created so cleanup
// never touches files it does not own.
type Manager struct {
	log *slog.Logger

	mu      sync.Mutex
	created []string
}

var _ ports.SymlinkManager = (*Manager)(nil)

func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}

	return &Manager{log: log.With(slog.String("component", "symlink"))}
}

// SetupForInstallation links each configured asset folder into gameDir under
// its base name. No configured folders is a no-op. A link that already
// points at the right target is left alone.
func (m *Manager) SetupForInstallation(ctx context.Context, installation domain.Installation, gameDir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(installation.AssetDirs) == 0 {
		return nil
	}

	if err := os.MkdirAll(gameDir, 0o755); err != nil {
		return fmt.Errorf("create game directory: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, assetDir := range installation.AssetDirs {
		target, err := filepath.Abs(assetDir)
		if err != nil {
			return fmt.Errorf("resolve asset dir %s: %w", assetDir, err)
		}
		if _, err := os.Stat(target); err != nil {
			return fmt.Errorf("asset dir %s: %w", target, err)
		}

		linkPath := filepath.Join(gameDir, filepath.Base(target))

		if existing, err := os.Readlink(linkPath); err == nil {
			if existing == target {
				continue
			}
			return fmt.Errorf("link %s already points at %s", linkPath, existing)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("inspect %s: %w", linkPath, err)
		}

		if err := os.Symlink(target, linkPath); err != nil {
			return fmt.Errorf("link %s: %w", linkPath, err)
		}

		m.created = append(m.created, linkPath)
		m.log.Debug("asset folder mounted",
			slog.String("installation", string(installation.ID)),
			slog.String("link", linkPath),
		)
	}

	return nil
}

// CleanupAllSymlinks removes every link this manager created. Links removed
// by someone else in the meantime are skipped.
func (m *Manager) CleanupAllSymlinks() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, linkPath := range m.created {
		if err := os.Remove(linkPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", linkPath, err))
		}
	}
	m.created = nil

	return errors.Join(errs...)
}
