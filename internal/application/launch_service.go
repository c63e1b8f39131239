package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"

	"github.com/cenkalti/backoff/v4"

	"github.com/emberlaunch/ember/internal/domain"
	"github.com/emberlaunch/ember/internal/launch"
	"github.com/emberlaunch/ember/internal/ports"
)

// refreshMaxRetries bounds the refresh-grant retries on transport failures.
// The downstream exchange chain is never retried; a mid-chain failure may
// have side effects that make blind retry unsafe.
const refreshMaxRetries = 3

// LaunchService turns an installation plus the active account into a
// running, supervised game process.
type LaunchService struct {
	installations ports.InstallationRepository
	registry      ports.AccountRegistry
	refresher     ports.TokenRefresher
	exchanger     ports.TokenExchanger
	symlinks      ports.SymlinkManager
	supervisor    ports.Supervisor
	settings      domain.Settings
	clock         ports.Clock
	log           *slog.Logger
}

type LaunchServiceDeps struct {
	Installations ports.InstallationRepository
	Registry      ports.AccountRegistry
	Refresher     ports.TokenRefresher
	Exchanger     ports.TokenExchanger
	Symlinks      ports.SymlinkManager
	Supervisor    ports.Supervisor
	Settings      domain.Settings
	Clock         ports.Clock
	Log           *slog.Logger
}

func NewLaunchService(deps LaunchServiceDeps) *LaunchService {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}

	return &LaunchService{
		installations: deps.Installations,
		registry:      deps.Registry,
		refresher:     deps.Refresher,
		exchanger:     deps.Exchanger,
		symlinks:      deps.Symlinks,
		supervisor:    deps.Supervisor,
		settings:      deps.Settings,
		clock:         deps.Clock,
		log:           log.With(slog.String("component", "launch")),
	}
}

// Launch resolves the installation, ensures the active account holds a
// fresh game bearer, mounts asset folders and hands the assembled command
// to the loader strategy.
func (s *LaunchService) Launch(ctx context.Context, id domain.InstallationID) (domain.LaunchResult, error) {
	installation, err := s.installations.Get(ctx, id)
	if err != nil {
		return domain.LaunchResult{}, err
	}

	account, err := s.registry.Active(ctx)
	if err != nil {
		return domain.LaunchResult{}, err
	}

	if account.Credentials.Expired(s.clock.Now()) {
		account, err = s.refreshAccount(ctx, account)
		if err != nil {
			return domain.LaunchResult{}, err
		}
	}

	lc := launch.BuildContext(installation, s.settings, account)

	if err := s.symlinks.SetupForInstallation(ctx, installation, lc.GameDir); err != nil {
		return domain.LaunchResult{}, fmt.Errorf("mount asset folders: %w", err)
	}

	strategy, err := launch.ForLoader(installation.Loader, launch.Deps{Supervisor: s.supervisor})
	if err != nil {
		return domain.LaunchResult{}, err
	}

	if err := strategy.Prepare(ctx, lc); err != nil {
		return domain.LaunchResult{}, err
	}

	result, err := strategy.Launch(ctx, lc)
	if err != nil {
		return domain.LaunchResult{}, err
	}

	s.log.Info("game launched",
		slog.String("installation", string(installation.ID)),
		slog.String("loader", string(installation.Loader)),
		slog.Int("pid", result.PID),
	)

	s.bumpStats(ctx, installation)

	return result, nil
}

// refreshAccount redeems the refresh token and re-runs the exchange chain.
// Only the refresh grant is retried, and only on transport failures; a
// rejected grant surfaces as domain.ErrCredentialUnrecoverable so the
// caller routes to re-authentication instead of retrying.
func (s *LaunchService) refreshAccount(ctx context.Context, account domain.Account) (domain.Account, error) {
	if account.Credentials.RefreshToken == "" {
		return domain.Account{}, fmt.Errorf("account %s has no refresh token: %w", account.PlayerID, domain.ErrCredentialUnrecoverable)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), refreshMaxRetries),
		ctx,
	)

	provider, err := backoff.RetryWithData(func() (domain.ProviderToken, error) {
		token, err := s.refresher.Refresh(ctx, account.Credentials.RefreshToken)
		if err != nil {
			if isTransient(err) {
				return domain.ProviderToken{}, err
			}
			return domain.ProviderToken{}, backoff.Permanent(err)
		}
		return token, nil
	}, policy)
	if err != nil {
		return domain.Account{}, fmt.Errorf("refresh credentials: %w", err)
	}

	profile, err := s.exchanger.Exchange(ctx, provider.AccessToken)
	if err != nil {
		return domain.Account{}, fmt.Errorf("exchange refreshed token: %w", err)
	}

	account.Name = profile.Name
	account.Credentials = domain.Credentials{
		AccessToken:  profile.Bearer,
		RefreshToken: provider.RefreshToken,
		TokenType:    profile.TokenType,
		ExpiresAt:    profile.ExpiresAt,
	}
	account.RefreshedAt = s.clock.Now()

	if err := s.registry.Upsert(ctx, account); err != nil {
		return domain.Account{}, fmt.Errorf("store refreshed credentials: %w", err)
	}

	s.log.Info("credentials refreshed", slog.String("player", string(account.PlayerID)))

	return account, nil
}

// isTransient reports whether a refresh failure is worth retrying. Grant
// rejections and malformed responses are not; network-level failures are.
func isTransient(err error) bool {
	if errors.Is(err, domain.ErrCredentialUnrecoverable) {
		return false
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func (s *LaunchService) bumpStats(ctx context.Context, installation domain.Installation) {
	installation.Stats.LaunchCount++
	installation.Stats.LastPlayed = s.clock.Now()

	if err := s.installations.Save(ctx, installation); err != nil {
		s.log.Warn("record launch stats",
			slog.String("installation", string(installation.ID)),
			slog.String("error", err.Error()),
		)
	}
}

// Kill terminates a process previously started through this service.
func (s *LaunchService) Kill(pid int) error {
	return s.supervisor.Kill(pid)
}

// Wait blocks until the given process exits and cleans up any mounted
// asset folders once nothing is running.
func (s *LaunchService) Wait(ctx context.Context, pid int) (int, error) {
	code, err := s.supervisor.Wait(ctx, pid)
	if err != nil {
		return 0, err
	}

	if !s.supervisor.AnyRunning() {
		if cleanupErr := s.symlinks.CleanupAllSymlinks(); cleanupErr != nil {
			s.log.Warn("cleanup asset links", slog.String("error", cleanupErr.Error()))
		}
	}

	return code, nil
}

func (s *LaunchService) Running() []domain.RunningProcess {
	return s.supervisor.List()
}

func (s *LaunchService) AnyRunning() bool {
	return s.supervisor.AnyRunning()
}
