package ports

import (
	"context"

	"github.com/emberlaunch/ember/internal/domain"
)

// TokenExchanger runs the chained downstream exchanges that turn an
// identity-provider access token into a playable game profile. The chain is
// never retried internally: a mid-chain failure may have consumed a
// single-use credential, so retry policy belongs to the caller.
type TokenExchanger interface {
	Exchange(ctx context.Context, accessToken string) (domain.ExchangeResult, error)
}

// TokenRefresher redeems an identity-provider refresh token for a fresh
// token pair.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (domain.ProviderToken, error)
}
