// Package process spawns game processes and tracks them to exit.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/emberlaunch/ember/internal/domain"
	"github.com/emberlaunch/ember/internal/ports"
)

const maxLogLineBytes = 1 << 20

// Supervisor tracks every process it starts in an in-memory table keyed by
// pid. Entries are removed on the exit-watch path only, so a kill racing a
// spontaneous exit never corrupts the table.
type Supervisor struct {
	log *slog.Logger

	mu    sync.Mutex
	procs map[int]*trackedProcess
}

type trackedProcess struct {
	installationID domain.InstallationID
	cmd            *exec.Cmd
	done           chan struct{}
	exitCode       int
}

var _ ports.Supervisor = (*Supervisor)(nil)

func NewSupervisor(log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}

	return &Supervisor{
		log:   log.With(slog.String("component", "supervisor")),
		procs: make(map[int]*trackedProcess),
	}
}

// Start spawns the command and begins capturing both standard streams,
// tagged with the owning installation. The child is not bound to ctx; ctx
// only gates the spawn itself.
func (s *Supervisor) Start(ctx context.Context, spec ports.ProcessSpec) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if spec.Path == "" {
		return 0, errors.New("process path is empty")
	}

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, fmt.Errorf("open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start process: %w", err)
	}

	pid := cmd.Process.Pid
	tracked := &trackedProcess{
		installationID: spec.InstallationID,
		cmd:            cmd,
		done:           make(chan struct{}),
	}

	s.mu.Lock()
	s.procs[pid] = tracked
	s.mu.Unlock()

	log := s.log.With(
		slog.Int("pid", pid),
		slog.String("installation", string(spec.InstallationID)),
	)
	log.Info("process started")

	go s.watch(tracked, log, stdout, stderr)

	return pid, nil
}

func (s *Supervisor) watch(tracked *trackedProcess, log *slog.Logger, stdout, stderr io.Reader) {
	var pumps errgroup.Group
	pumps.Go(func() error { return pumpLines(log, "stdout", stdout) })
	pumps.Go(func() error { return pumpLines(log, "stderr", stderr) })
	_ = pumps.Wait()

	err := tracked.cmd.Wait()
	tracked.exitCode = tracked.cmd.ProcessState.ExitCode()
	if err != nil {
		log.Warn("process exited", slog.Int("code", tracked.exitCode), slog.String("error", err.Error()))
	} else {
		log.Info("process exited", slog.Int("code", tracked.exitCode))
	}

	s.mu.Lock()
	delete(s.procs, tracked.cmd.Process.Pid)
	s.mu.Unlock()

	close(tracked.done)
}

func pumpLines(log *slog.Logger, stream string, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLogLineBytes)
	for scanner.Scan() {
		log.Debug("game output", slog.String("stream", stream), slog.String("line", scanner.Text()))
	}

	return scanner.Err()
}

// Kill terminates a tracked process and blocks until its exit is fully
// accounted for. Untracked pids are rejected.
func (s *Supervisor) Kill(pid int) error {
	s.mu.Lock()
	tracked, ok := s.procs[pid]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("kill %d: %w", pid, domain.ErrProcessNotTracked)
	}

	if err := tracked.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill %d: %w", pid, err)
	}

	<-tracked.done

	return nil
}

// Wait suspends the caller until the tracked process exits and returns its
// exit code.
func (s *Supervisor) Wait(ctx context.Context, pid int) (int, error) {
	s.mu.Lock()
	tracked, ok := s.procs[pid]
	s.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("wait %d: %w", pid, domain.ErrProcessNotTracked)
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-tracked.done:
		return tracked.exitCode, nil
	}
}

func (s *Supervisor) List() []domain.RunningProcess {
	s.mu.Lock()
	defer s.mu.Unlock()

	running := make([]domain.RunningProcess, 0, len(s.procs))
	for pid, tracked := range s.procs {
		running = append(running, domain.RunningProcess{
			PID:            pid,
			InstallationID: tracked.installationID,
		})
	}
	sort.Slice(running, func(i, j int) bool { return running[i].PID < running[j].PID })

	return running
}

func (s *Supervisor) AnyRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.procs) > 0
}
