package domain

import "time"

// PlayerID is the stable identifier the game profile service assigns to a
// player. Accounts are keyed by it; display names can change.
type PlayerID string

type FlowKind string

const (
	FlowAuthorizationCode FlowKind = "authorization_code"
	FlowDeviceCode        FlowKind = "device_code"
)

type Account struct {
	PlayerID    PlayerID
	Name        string
	Credentials Credentials
	Provenance  FlowKind
	AddedAt     time.Time
	RefreshedAt time.Time
}

// Credentials bundles the tokens a launch needs. AccessToken is the game
// bearer produced at the end of the exchange chain; RefreshToken is the
// identity-provider refresh token used to restart the chain once the bearer
// expires.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
}

// expiryBuffer keeps a launch from racing token expiry mid-handshake.
const expiryBuffer = 5 * time.Minute

func (c Credentials) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return true
	}
	return now.Add(expiryBuffer).After(c.ExpiresAt)
}

// ExchangeResult is the terminal output of the token exchange chain: the
// player's profile plus the game bearer with its effective expiry (the
// minimum across all chain stages that reported one).
type ExchangeResult struct {
	PlayerID PlayerID
	Name     string
	// PlatformUserID is the user's platform identifier reported by the
	// security-token-service stage.
	PlatformUserID string
	Bearer         string
	TokenType      string
	ExpiresAt      time.Time
}

// ProviderToken is an identity-provider token pair as returned by the
// authorization-code, device-code and refresh grants.
type ProviderToken struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
}
