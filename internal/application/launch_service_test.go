package application

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberlaunch/ember/internal/domain"
)

type launchHarness struct {
	service       *LaunchService
	clock         *fakeClock
	registry      *memRegistry
	installations *memInstallations
	refresher     *scriptedRefresher
	exchanger     *fakeExchanger
	symlinks      *fakeSymlinks
	supervisor    *fakeSupervisor
}

func newLaunchHarness(t *testing.T) *launchHarness {
	t.Helper()

	root := t.TempDir()
	writeVanillaVersion(t, root, "1.21.4")

	h := &launchHarness{
		clock:         newFakeClock(),
		registry:      newMemRegistry(),
		installations: newMemInstallations(),
		refresher: &scriptedRefresher{token: domain.ProviderToken{
			AccessToken:  "provider-access",
			RefreshToken: "provider-refresh-2",
			TokenType:    "Bearer",
		}},
		exchanger: &fakeExchanger{result: domain.ExchangeResult{
			PlayerID:  "player-1",
			Name:      "Steve",
			Bearer:    "fresh-bearer",
			TokenType: "Bearer",
			ExpiresAt: time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC),
		}},
		symlinks:   &fakeSymlinks{},
		supervisor: newFakeSupervisor(),
	}

	h.service = NewLaunchService(LaunchServiceDeps{
		Installations: h.installations,
		Registry:      h.registry,
		Refresher:     h.refresher,
		Exchanger:     h.exchanger,
		Symlinks:      h.symlinks,
		Supervisor:    h.supervisor,
		Settings: domain.Settings{
			GameRoot:    root,
			JavaBinary:  "/usr/bin/java",
			MemoryMaxMB: 2048,
		},
		Clock: h.clock,
		Log:   slog.New(slog.DiscardHandler),
	})

	ctx := context.Background()
	require.NoError(t, h.installations.Save(ctx, domain.Installation{
		ID:         "inst-1",
		Name:       "Survival",
		VersionRef: "1.21.4",
		Loader:     domain.LoaderVanilla,
	}))

	return h
}

func writeVanillaVersion(t *testing.T, root, ref string) {
	t.Helper()

	dir := filepath.Join(root, "versions", ref)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	manifest := map[string]any{
		"id":        ref,
		"mainClass": "net.minecraft.client.main.Main",
		"arguments": map[string]any{
			"jvm":  []any{"-cp", "${classpath}"},
			"game": []any{"--accessToken", "${auth_access_token}"},
		},
	}
	data, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ref+".json"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ref+".jar"), []byte("jar"), 0o644))
}

func (h *launchHarness) signIn(t *testing.T, expiresAt time.Time) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, h.registry.Upsert(ctx, domain.Account{
		PlayerID: "player-1",
		Name:     "Steve",
		Credentials: domain.Credentials{
			AccessToken:  "old-bearer",
			RefreshToken: "provider-refresh-1",
			TokenType:    "Bearer",
			ExpiresAt:    expiresAt,
		},
	}))
	require.NoError(t, h.registry.SetActive(ctx, "player-1"))
}

func TestLaunchWithFreshCredentials(t *testing.T) {
	t.Parallel()

	h := newLaunchHarness(t)
	h.signIn(t, h.clock.Now().Add(2*time.Hour))

	result, err := h.service.Launch(context.Background(), "inst-1")
	require.NoError(t, err)
	assert.Greater(t, result.PID, 5000)

	assert.Equal(t, 0, h.refresher.calls, "fresh credentials must not trigger a refresh")
	assert.Equal(t, 1, h.symlinks.setups)

	require.Len(t, h.supervisor.specs, 1)
	assert.Contains(t, h.supervisor.specs[0].Args, "old-bearer")

	saved, err := h.installations.Get(context.Background(), "inst-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.Stats.LaunchCount)
	assert.Equal(t, h.clock.Now(), saved.Stats.LastPlayed)
}

func TestLaunchRefreshesExpiredCredentials(t *testing.T) {
	t.Parallel()

	h := newLaunchHarness(t)
	h.signIn(t, h.clock.Now().Add(-time.Hour))

	_, err := h.service.Launch(context.Background(), "inst-1")
	require.NoError(t, err)

	assert.Equal(t, 1, h.refresher.calls)
	assert.Equal(t, []string{"provider-refresh-1"}, h.refresher.tokens)
	assert.Equal(t, 1, h.exchanger.calls)

	// the game sees the fresh bearer, not the expired one
	require.Len(t, h.supervisor.specs, 1)
	assert.Contains(t, h.supervisor.specs[0].Args, "fresh-bearer")

	stored, err := h.registry.Get(context.Background(), "player-1")
	require.NoError(t, err)
	assert.Equal(t, "fresh-bearer", stored.Credentials.AccessToken)
	assert.Equal(t, "provider-refresh-2", stored.Credentials.RefreshToken)
	assert.Equal(t, h.clock.Now(), stored.RefreshedAt)
}

func TestLaunchRejectedGrantIsNotRetried(t *testing.T) {
	t.Parallel()

	h := newLaunchHarness(t)
	h.signIn(t, h.clock.Now().Add(-time.Hour))
	h.refresher.errs = []error{
		errors.Join(errors.New("refresh token"), domain.ErrCredentialUnrecoverable),
	}

	_, err := h.service.Launch(context.Background(), "inst-1")
	require.ErrorIs(t, err, domain.ErrCredentialUnrecoverable)

	assert.Equal(t, 1, h.refresher.calls, "a rejected grant must not be retried")
	assert.Equal(t, 0, h.exchanger.calls)
	assert.Empty(t, h.supervisor.specs)
}

func TestLaunchRetriesTransientRefreshFailure(t *testing.T) {
	t.Parallel()

	h := newLaunchHarness(t)
	h.signIn(t, h.clock.Now().Add(-time.Hour))
	h.refresher.errs = []error{
		&url.Error{Op: "Post", URL: "https://login.example", Err: errors.New("connection refused")},
	}

	_, err := h.service.Launch(context.Background(), "inst-1")
	require.NoError(t, err)

	assert.Equal(t, 2, h.refresher.calls)
}

func TestLaunchMissingRefreshTokenIsUnrecoverable(t *testing.T) {
	t.Parallel()

	h := newLaunchHarness(t)
	h.signIn(t, time.Time{})

	ctx := context.Background()
	stored, err := h.registry.Get(ctx, "player-1")
	require.NoError(t, err)
	stored.Credentials.RefreshToken = ""
	require.NoError(t, h.registry.Upsert(ctx, stored))

	_, err = h.service.Launch(ctx, "inst-1")
	require.ErrorIs(t, err, domain.ErrCredentialUnrecoverable)
	assert.Equal(t, 0, h.refresher.calls)
}

func TestLaunchWithoutActiveAccount(t *testing.T) {
	t.Parallel()

	h := newLaunchHarness(t)

	_, err := h.service.Launch(context.Background(), "inst-1")
	require.ErrorIs(t, err, domain.ErrNoActiveAccount)
	assert.Empty(t, h.supervisor.specs)
}

func TestLaunchUnknownInstallation(t *testing.T) {
	t.Parallel()

	h := newLaunchHarness(t)
	h.signIn(t, h.clock.Now().Add(2*time.Hour))

	_, err := h.service.Launch(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrInstallationNotFound)
}

func TestLaunchAbortsWhenSymlinkSetupFails(t *testing.T) {
	t.Parallel()

	h := newLaunchHarness(t)
	h.signIn(t, h.clock.Now().Add(2*time.Hour))
	h.symlinks.err = errors.New("link target missing")

	_, err := h.service.Launch(context.Background(), "inst-1")
	require.Error(t, err)
	assert.Empty(t, h.supervisor.specs, "a failed mount must not spawn the game")
}

func TestWaitCleansUpAfterLastProcess(t *testing.T) {
	t.Parallel()

	h := newLaunchHarness(t)
	h.signIn(t, h.clock.Now().Add(2*time.Hour))

	result, err := h.service.Launch(context.Background(), "inst-1")
	require.NoError(t, err)

	code, err := h.service.Wait(context.Background(), result.PID)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, 1, h.symlinks.cleanups)

	assert.False(t, h.service.AnyRunning())
	assert.Empty(t, h.service.Running())
}

func TestKillPassesThroughTracking(t *testing.T) {
	t.Parallel()

	h := newLaunchHarness(t)
	h.signIn(t, h.clock.Now().Add(2*time.Hour))

	result, err := h.service.Launch(context.Background(), "inst-1")
	require.NoError(t, err)

	require.NoError(t, h.service.Kill(result.PID))
	require.ErrorIs(t, h.service.Kill(result.PID), domain.ErrProcessNotTracked)
}
