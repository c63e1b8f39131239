package accountsjson

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberlaunch/ember/internal/adapters/secrets/localkey"
	"github.com/emberlaunch/ember/internal/domain"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()

	dir := t.TempDir()
	crypter, err := localkey.New(filepath.Join(dir, "token.key"))
	require.NoError(t, err)

	path := filepath.Join(dir, "accounts.json")
	registry, err := NewRegistry(path, crypter)
	require.NoError(t, err)

	return registry, path
}

func testAccount(id domain.PlayerID, name string) domain.Account {
	return domain.Account{
		PlayerID: id,
		Name:     name,
		Credentials: domain.Credentials{
			AccessToken:  "bearer-" + string(id),
			RefreshToken: "refresh-" + string(id),
			TokenType:    "Bearer",
			ExpiresAt:    time.Now().Add(time.Hour).Truncate(time.Second),
		},
		Provenance: domain.FlowDeviceCode,
		AddedAt:    time.Now().Truncate(time.Second),
	}
}

func TestUpsertReplacesByPlayerID(t *testing.T) {
	t.Parallel()

	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.Upsert(ctx, testAccount("player-1", "OldName")))
	require.NoError(t, registry.Upsert(ctx, testAccount("player-2", "Other")))

	// Re-authenticating the same player replaces in place, never duplicates.
	renamed := testAccount("player-1", "NewName")
	require.NoError(t, registry.Upsert(ctx, renamed))

	accounts, err := registry.List(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "NewName", accounts[0].Name)
	assert.Equal(t, domain.PlayerID("player-1"), accounts[0].PlayerID)
}

func TestCredentialsRoundTrip(t *testing.T) {
	t.Parallel()

	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	want := testAccount("player-1", "Notch")
	require.NoError(t, registry.Upsert(ctx, want))

	got, err := registry.Get(ctx, "player-1")
	require.NoError(t, err)
	assert.Equal(t, want.Credentials.AccessToken, got.Credentials.AccessToken)
	assert.Equal(t, want.Credentials.RefreshToken, got.Credentials.RefreshToken)
	assert.True(t, want.Credentials.ExpiresAt.Equal(got.Credentials.ExpiresAt))
	assert.Equal(t, domain.FlowDeviceCode, got.Provenance)
}

func TestDocumentNeverHoldsRawTokens(t *testing.T) {
	t.Parallel()

	registry, path := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.Upsert(ctx, testAccount("player-1", "Notch")))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.NotContains(t, string(raw), "bearer-player-1")
	assert.NotContains(t, string(raw), "refresh-player-1")
	// Identity fields stay readable for manual inspection.
	assert.Contains(t, string(raw), `"player-1"`)
	assert.Contains(t, string(raw), `"Notch"`)
}

func TestActivePointerLifecycle(t *testing.T) {
	t.Parallel()

	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := registry.Active(ctx)
	assert.ErrorIs(t, err, domain.ErrNoActiveAccount)

	require.NoError(t, registry.Upsert(ctx, testAccount("player-1", "Notch")))
	require.NoError(t, registry.Upsert(ctx, testAccount("player-2", "Alex")))

	assert.ErrorIs(t, registry.SetActive(ctx, "missing"), domain.ErrAccountNotFound)
	require.NoError(t, registry.SetActive(ctx, "player-2"))

	active, err := registry.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PlayerID("player-2"), active.PlayerID)

	// Removing the active account clears the pointer instead of leaving it
	// dangling.
	require.NoError(t, registry.Remove(ctx, "player-2"))
	_, err = registry.Active(ctx)
	assert.ErrorIs(t, err, domain.ErrNoActiveAccount)
}

func TestRemoveUnknownAccount(t *testing.T) {
	t.Parallel()

	registry, _ := newTestRegistry(t)

	err := registry.Remove(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestMaintainPrunesUndecryptableAccounts(t *testing.T) {
	t.Parallel()

	registry, path := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.Upsert(ctx, testAccount("player-1", "Notch")))
	require.NoError(t, registry.Upsert(ctx, testAccount("player-2", "Alex")))
	require.NoError(t, registry.SetActive(ctx, "player-2"))

	// Corrupt player-2's blob on disk.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var file fileSchema
	require.NoError(t, json.Unmarshal(raw, &file))
	for i := range file.Accounts {
		if file.Accounts[i].PlayerID == "player-2" {
			file.Accounts[i].Credentials = "bm90IGEgcmVhbCBibG9i"
		}
	}
	corrupted, err := json.Marshal(file)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, corrupted, 0o600))

	summary, err := registry.Maintain(ctx)
	require.NoError(t, err)
	assert.Contains(t, summary, "removed 1 unrecoverable account(s)")
	assert.Contains(t, summary, "player-2")

	accounts, err := registry.List(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, domain.PlayerID("player-1"), accounts[0].PlayerID)

	// The pruned account was active; the pointer must be gone too.
	_, err = registry.Active(ctx)
	assert.ErrorIs(t, err, domain.ErrNoActiveAccount)
}

func TestMaintainReportsCleanRegistry(t *testing.T) {
	t.Parallel()

	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.Upsert(ctx, testAccount("player-1", "Notch")))

	summary, err := registry.Maintain(ctx)
	require.NoError(t, err)
	assert.Contains(t, summary, "all credentials intact")
}

func TestWritesAreAtomic(t *testing.T) {
	t.Parallel()

	registry, path := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.Upsert(ctx, testAccount("player-1", "Notch")))

	// No temp droppings next to the document.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".tmp")
	}

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(accountsFileMode), info.Mode().Perm())
}
