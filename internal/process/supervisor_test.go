package process

import (
	"context"
	"log/slog"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/emberlaunch/ember/internal/domain"
	"github.com/emberlaunch/ember/internal/ports"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestSupervisor() *Supervisor {
	return NewSupervisor(slog.New(slog.DiscardHandler))
}

func shellSpec(installationID, script string) ports.ProcessSpec {
	return ports.ProcessSpec{
		InstallationID: domain.InstallationID(installationID),
		Path:           "/bin/sh",
		Args:           []string{"-c", script},
	}
}

func requirePosix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-based process tests need a POSIX shell")
	}
}

func TestSupervisorWaitReturnsExitCode(t *testing.T) {
	requirePosix(t)

	s := newTestSupervisor()
	ctx := context.Background()

	pid, err := s.Start(ctx, shellSpec("inst-1", "exit 7"))
	require.NoError(t, err)

	code, err := s.Wait(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, 7, code)
}

func TestSupervisorRemovesEntryOnSpontaneousExit(t *testing.T) {
	requirePosix(t)

	s := newTestSupervisor()
	ctx := context.Background()

	pid, err := s.Start(ctx, shellSpec("inst-1", "true"))
	require.NoError(t, err)

	_, err = s.Wait(ctx, pid)
	require.NoError(t, err)

	assert.Empty(t, s.List())
	assert.False(t, s.AnyRunning())

	_, err = s.Wait(ctx, pid)
	require.ErrorIs(t, err, domain.ErrProcessNotTracked)
}

func TestSupervisorKillTrackedProcess(t *testing.T) {
	requirePosix(t)

	s := newTestSupervisor()
	ctx := context.Background()

	pid, err := s.Start(ctx, shellSpec("inst-1", "sleep 60"))
	require.NoError(t, err)

	require.True(t, s.AnyRunning())
	running := s.List()
	require.Len(t, running, 1)
	assert.Equal(t, pid, running[0].PID)
	assert.Equal(t, domain.InstallationID("inst-1"), running[0].InstallationID)

	require.NoError(t, s.Kill(pid))
	assert.Empty(t, s.List())
}

func TestSupervisorKillUntrackedRejected(t *testing.T) {
	s := newTestSupervisor()

	err := s.Kill(999999)
	require.ErrorIs(t, err, domain.ErrProcessNotTracked)
}

func TestSupervisorKillAfterExitIsSafe(t *testing.T) {
	requirePosix(t)

	s := newTestSupervisor()
	ctx := context.Background()

	pid, err := s.Start(ctx, shellSpec("inst-1", "true"))
	require.NoError(t, err)

	_, err = s.Wait(ctx, pid)
	require.NoError(t, err)

	// the entry is gone, so a late kill is a rejection, not a signal to a
	// recycled pid
	require.ErrorIs(t, s.Kill(pid), domain.ErrProcessNotTracked)
}

func TestSupervisorWaitHonorsContext(t *testing.T) {
	requirePosix(t)

	s := newTestSupervisor()

	pid, err := s.Start(context.Background(), shellSpec("inst-1", "sleep 60"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Kill(pid) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = s.Wait(ctx, pid)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSupervisorTracksMultipleProcesses(t *testing.T) {
	requirePosix(t)

	s := newTestSupervisor()
	ctx := context.Background()

	first, err := s.Start(ctx, shellSpec("inst-1", "sleep 60"))
	require.NoError(t, err)
	second, err := s.Start(ctx, shellSpec("inst-2", "sleep 60"))
	require.NoError(t, err)

	running := s.List()
	require.Len(t, running, 2)

	require.NoError(t, s.Kill(first))

	running = s.List()
	require.Len(t, running, 1)
	assert.Equal(t, second, running[0].PID)

	require.NoError(t, s.Kill(second))
}
