// Package application wires the adapters into the launcher's use cases.
package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emberlaunch/ember/internal/adapters/auth"
	"github.com/emberlaunch/ember/internal/domain"
	"github.com/emberlaunch/ember/internal/ports"
)

// AuthService drives login sessions and account management. Completed
// sessions are persisted through the registry and become the active account.
type AuthService struct {
	registry ports.AccountRegistry
	device   *auth.DeviceFlow
	browser  *auth.BrowserFlow
	clock    ports.Clock
	log      *slog.Logger
}

func NewAuthService(
	registry ports.AccountRegistry,
	device *auth.DeviceFlow,
	browser *auth.BrowserFlow,
	clock ports.Clock,
	log *slog.Logger,
) *AuthService {
	if log == nil {
		log = slog.Default()
	}

	return &AuthService{
		registry: registry,
		device:   device,
		browser:  browser,
		clock:    clock,
		log:      log.With(slog.String("component", "auth")),
	}
}

func (s *AuthService) StartDeviceLogin(ctx context.Context) (auth.DeviceSession, error) {
	return s.device.Start(ctx)
}

// PollDeviceLogin advances a device-code session. On completion the account
// is upserted and made active; polling a completed session again is
// harmless because the upsert is keyed by player id.
func (s *AuthService) PollDeviceLogin(ctx context.Context, sessionID string) (auth.LoginResult, error) {
	result, err := s.device.Poll(ctx, sessionID)
	if err != nil {
		return auth.LoginResult{}, err
	}

	if result.State == domain.FlowComplete {
		if err := s.persistLogin(ctx, result, domain.FlowDeviceCode); err != nil {
			return auth.LoginResult{}, err
		}
	}

	return result, nil
}

func (s *AuthService) AbandonDeviceLogin(sessionID string) {
	s.device.Abandon(sessionID)
}

func (s *AuthService) StartBrowserLogin(ctx context.Context) (auth.BrowserSession, error) {
	return s.browser.Start(ctx)
}

func (s *AuthService) PollBrowserLogin(ctx context.Context, sessionID string) (auth.LoginResult, error) {
	result, err := s.browser.Poll(ctx, sessionID)
	if err != nil {
		return auth.LoginResult{}, err
	}

	if result.State == domain.FlowComplete {
		if err := s.persistLogin(ctx, result, domain.FlowAuthorizationCode); err != nil {
			return auth.LoginResult{}, err
		}
	}

	return result, nil
}

func (s *AuthService) AbandonBrowserLogin(sessionID string) {
	s.browser.Abandon(sessionID)
}

func (s *AuthService) persistLogin(ctx context.Context, result auth.LoginResult, provenance domain.FlowKind) error {
	now := s.clock.Now()

	account := domain.Account{
		PlayerID: result.Profile.PlayerID,
		Name:     result.Profile.Name,
		Credentials: domain.Credentials{
			AccessToken:  result.Profile.Bearer,
			RefreshToken: result.Provider.RefreshToken,
			TokenType:    result.Profile.TokenType,
			ExpiresAt:    result.Profile.ExpiresAt,
		},
		Provenance:  provenance,
		AddedAt:     now,
		RefreshedAt: now,
	}

	if existing, err := s.registry.Get(ctx, account.PlayerID); err == nil {
		account.AddedAt = existing.AddedAt
	}

	if err := s.registry.Upsert(ctx, account); err != nil {
		return fmt.Errorf("store account: %w", err)
	}
	if err := s.registry.SetActive(ctx, account.PlayerID); err != nil {
		return fmt.Errorf("activate account: %w", err)
	}

	s.log.Info("signed in",
		slog.String("player", string(account.PlayerID)),
		slog.String("name", account.Name),
		slog.String("flow", string(provenance)),
	)

	return nil
}

func (s *AuthService) Accounts(ctx context.Context) ([]domain.Account, error) {
	return s.registry.List(ctx)
}

func (s *AuthService) Active(ctx context.Context) (domain.Account, error) {
	return s.registry.Active(ctx)
}

func (s *AuthService) SetActive(ctx context.Context, id domain.PlayerID) error {
	return s.registry.SetActive(ctx, id)
}

func (s *AuthService) Logout(ctx context.Context, id domain.PlayerID) error {
	if err := s.registry.Remove(ctx, id); err != nil {
		return err
	}
	s.log.Info("signed out", slog.String("player", string(id)))

	return nil
}

// Doctor validates every stored credential and prunes the irrecoverable
// ones, returning a human-readable summary.
func (s *AuthService) Doctor(ctx context.Context) (string, error) {
	return s.registry.Maintain(ctx)
}
