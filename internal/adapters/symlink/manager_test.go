package symlink

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberlaunch/ember/internal/domain"
)

func newTestManager() *Manager {
	return NewManager(slog.New(slog.DiscardHandler))
}

func TestSetupNoAssetDirsIsNoOp(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	gameDir := filepath.Join(t.TempDir(), "instances", "inst-1")

	err := m.SetupForInstallation(context.Background(), domain.Installation{ID: "inst-1"}, gameDir)
	require.NoError(t, err)

	_, statErr := os.Stat(gameDir)
	assert.True(t, os.IsNotExist(statErr), "no-op must not create the game directory")
}

func TestSetupMountsAndCleanupRemoves(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	root := t.TempDir()

	assetDir := filepath.Join(root, "packs")
	require.NoError(t, os.MkdirAll(assetDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(assetDir, "pack.zip"), []byte("pack"), 0o644))

	gameDir := filepath.Join(root, "instances", "inst-1")
	installation := domain.Installation{ID: "inst-1", AssetDirs: []string{assetDir}}

	require.NoError(t, m.SetupForInstallation(context.Background(), installation, gameDir))

	linkPath := filepath.Join(gameDir, "packs")
	target, err := os.Readlink(linkPath)
	require.NoError(t, err)
	assert.Equal(t, assetDir, target)

	// repeated setup with the link in place is idempotent
	require.NoError(t, m.SetupForInstallation(context.Background(), installation, gameDir))

	require.NoError(t, m.CleanupAllSymlinks())
	_, statErr := os.Lstat(linkPath)
	assert.True(t, os.IsNotExist(statErr))

	// the linked-to folder itself survives cleanup
	_, statErr = os.Stat(assetDir)
	require.NoError(t, statErr)
}

func TestSetupRejectsMissingAssetDir(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	root := t.TempDir()

	installation := domain.Installation{
		ID:        "inst-1",
		AssetDirs: []string{filepath.Join(root, "does-not-exist")},
	}

	err := m.SetupForInstallation(context.Background(), installation, filepath.Join(root, "game"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does-not-exist")
}

func TestSetupRejectsForeignLink(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	root := t.TempDir()

	assetDir := filepath.Join(root, "packs")
	otherDir := filepath.Join(root, "other")
	require.NoError(t, os.MkdirAll(assetDir, 0o755))
	require.NoError(t, os.MkdirAll(otherDir, 0o755))

	gameDir := filepath.Join(root, "game")
	require.NoError(t, os.MkdirAll(gameDir, 0o755))
	require.NoError(t, os.Symlink(otherDir, filepath.Join(gameDir, "packs")))

	installation := domain.Installation{ID: "inst-1", AssetDirs: []string{assetDir}}

	err := m.SetupForInstallation(context.Background(), installation, gameDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already points at")
}

func TestCleanupSkipsAlreadyRemovedLinks(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	root := t.TempDir()

	assetDir := filepath.Join(root, "packs")
	require.NoError(t, os.MkdirAll(assetDir, 0o755))

	gameDir := filepath.Join(root, "game")
	installation := domain.Installation{ID: "inst-1", AssetDirs: []string{assetDir}}
	require.NoError(t, m.SetupForInstallation(context.Background(), installation, gameDir))

	require.NoError(t, os.Remove(filepath.Join(gameDir, "packs")))
	require.NoError(t, m.CleanupAllSymlinks())
}
