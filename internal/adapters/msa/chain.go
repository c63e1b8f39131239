// Package msa turns a Microsoft identity token into a playable game profile
// by walking the dependent service exchanges: Xbox Live user authentication,
// XSTS authorization, Minecraft services login, entitlement check and
// profile fetch. Stages run strictly in order and each failure is
// distinguishable; the chain is never retried internally because a failed
// stage may already have consumed a single-use credential.
package msa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/emberlaunch/ember/internal/domain"
	"github.com/emberlaunch/ember/internal/ports"
)

const maxResponseBytes = 1 << 20

type Stage string

const (
	StageXboxUser    Stage = "xbox_user_auth"
	StageXSTS        Stage = "xsts_authorize"
	StageGameLogin   Stage = "game_login"
	StageEntitlement Stage = "entitlement"
	StageProfile     Stage = "profile"
)

type FailureKind int

const (
	KindTransport FailureKind = iota
	KindRejected
	KindMalformed
)

// StageError reports which exchange stage failed and how. It wraps the
// underlying cause so errors.Is/As keep working through it.
type StageError struct {
	Stage  Stage
	Kind   FailureKind
	Status int
	Err    error
}

func (e *StageError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Stage, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

type Endpoints struct {
	XboxUserAuthURL string
	XSTSAuthURL     string
	GameLoginURL    string
	EntitlementsURL string
	ProfileURL      string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		XboxUserAuthURL: "https://user.auth.xboxlive.com/user/authenticate",
		XSTSAuthURL:     "https://xsts.auth.xboxlive.com/xsts/authorize",
		GameLoginURL:    "https://api.minecraftservices.com/authentication/login_with_xbox",
		EntitlementsURL: "https://api.minecraftservices.com/entitlements/mcstore",
		ProfileURL:      "https://api.minecraftservices.com/minecraft/profile",
	}
}

type Chain struct {
	Endpoints      Endpoints
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

var _ ports.TokenExchanger = Chain{}

type xboxAuthRequest struct {
	Properties   map[string]string `json:"Properties"`
	RelyingParty string            `json:"RelyingParty"`
	TokenType    string            `json:"TokenType"`
}

type xstsAuthRequest struct {
	Properties   xstsProperties `json:"Properties"`
	RelyingParty string         `json:"RelyingParty"`
	TokenType    string         `json:"TokenType"`
}

type xstsProperties struct {
	SandboxID  string   `json:"SandboxId"`
	UserTokens []string `json:"UserTokens"`
}

type xboxAuthResponse struct {
	Token         string `json:"Token"`
	NotAfter      string `json:"NotAfter"`
	DisplayClaims struct {
		XUI []struct {
			UHS string `json:"uhs"`
			XID string `json:"xid"`
		} `json:"xui"`
	} `json:"DisplayClaims"`
}

type gameLoginRequest struct {
	IdentityToken string `json:"identityToken"`
}

type gameLoginResponse struct {
	Username    string `json:"username"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type entitlementsResponse struct {
	Items []struct {
		Name string `json:"name"`
	} `json:"items"`
}

type profileResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Exchange runs the full chain for one identity token. The returned
// credential's expiry is the minimum across every stage that reported one.
func (c Chain) Exchange(ctx context.Context, accessToken string) (domain.ExchangeResult, error) {
	if accessToken == "" {
		return domain.ExchangeResult{}, errors.New("identity access token is required")
	}

	userToken, userHash, userExpiry, err := c.authenticateXboxUser(ctx, accessToken)
	if err != nil {
		return domain.ExchangeResult{}, err
	}

	xstsToken, platformUID, xstsExpiry, err := c.authorizeXSTS(ctx, userToken)
	if err != nil {
		return domain.ExchangeResult{}, err
	}

	bearer, tokenType, bearerExpiry, err := c.loginGame(ctx, userHash, xstsToken)
	if err != nil {
		return domain.ExchangeResult{}, err
	}

	if err := c.checkEntitlement(ctx, bearer); err != nil {
		return domain.ExchangeResult{}, err
	}

	playerID, name, err := c.fetchProfile(ctx, bearer)
	if err != nil {
		return domain.ExchangeResult{}, err
	}

	return domain.ExchangeResult{
		PlayerID:       playerID,
		Name:           name,
		PlatformUserID: platformUID,
		Bearer:         bearer,
		TokenType:      tokenType,
		ExpiresAt:      minExpiry(bearerExpiry, userExpiry, xstsExpiry),
	}, nil
}

func (c Chain) authenticateXboxUser(ctx context.Context, accessToken string) (token, userHash string, expiry time.Time, err error) {
	payload := xboxAuthRequest{
		Properties: map[string]string{
			"AuthMethod": "RPS",
			"SiteName":   "user.auth.xboxlive.com",
			"RpsTicket":  "d=" + accessToken,
		},
		RelyingParty: "http://auth.xboxlive.com",
		TokenType:    "JWT",
	}

	var resp xboxAuthResponse
	if err := c.postJSON(ctx, StageXboxUser, c.Endpoints.XboxUserAuthURL, "", payload, &resp); err != nil {
		return "", "", time.Time{}, err
	}
	if resp.Token == "" || len(resp.DisplayClaims.XUI) == 0 {
		return "", "", time.Time{}, &StageError{Stage: StageXboxUser, Kind: KindMalformed, Err: errors.New("response missing token or user claims")}
	}

	return resp.Token, resp.DisplayClaims.XUI[0].UHS, parseExpiry(resp.NotAfter), nil
}

func (c Chain) authorizeXSTS(ctx context.Context, userToken string) (token, platformUID string, expiry time.Time, err error) {
	payload := xstsAuthRequest{
		Properties: xstsProperties{
			SandboxID:  "RETAIL",
			UserTokens: []string{userToken},
		},
		RelyingParty: "rp://api.minecraftservices.com/",
		TokenType:    "JWT",
	}

	var resp xboxAuthResponse
	if err := c.postJSON(ctx, StageXSTS, c.Endpoints.XSTSAuthURL, "", payload, &resp); err != nil {
		return "", "", time.Time{}, err
	}
	if resp.Token == "" || len(resp.DisplayClaims.XUI) == 0 {
		return "", "", time.Time{}, &StageError{Stage: StageXSTS, Kind: KindMalformed, Err: errors.New("response missing token or user claims")}
	}

	return resp.Token, resp.DisplayClaims.XUI[0].XID, parseExpiry(resp.NotAfter), nil
}

func (c Chain) loginGame(ctx context.Context, userHash, xstsToken string) (bearer, tokenType string, expiry time.Time, err error) {
	payload := gameLoginRequest{
		IdentityToken: fmt.Sprintf("XBL3.0 x=%s;%s", userHash, xstsToken),
	}

	var resp gameLoginResponse
	if err := c.postJSON(ctx, StageGameLogin, c.Endpoints.GameLoginURL, "", payload, &resp); err != nil {
		return "", "", time.Time{}, err
	}
	if resp.AccessToken == "" {
		return "", "", time.Time{}, &StageError{Stage: StageGameLogin, Kind: KindMalformed, Err: errors.New("response missing access token")}
	}

	tokenType = resp.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	if resp.ExpiresIn > 0 {
		expiry = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	return resp.AccessToken, tokenType, expiry, nil
}

func (c Chain) checkEntitlement(ctx context.Context, bearer string) error {
	var resp entitlementsResponse
	if err := c.getJSON(ctx, StageEntitlement, c.Endpoints.EntitlementsURL, bearer, &resp); err != nil {
		return err
	}
	if len(resp.Items) == 0 {
		return &StageError{Stage: StageEntitlement, Kind: KindRejected, Err: domain.ErrEntitlementMissing}
	}

	return nil
}

func (c Chain) fetchProfile(ctx context.Context, bearer string) (domain.PlayerID, string, error) {
	var resp profileResponse
	if err := c.getJSON(ctx, StageProfile, c.Endpoints.ProfileURL, bearer, &resp); err != nil {
		return "", "", err
	}
	if resp.ID == "" || resp.Name == "" {
		return "", "", &StageError{Stage: StageProfile, Kind: KindMalformed, Err: errors.New("response missing id or name")}
	}

	return domain.PlayerID(resp.ID), resp.Name, nil
}

func (c Chain) postJSON(ctx context.Context, stage Stage, endpoint, bearer string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &StageError{Stage: stage, Kind: KindMalformed, Err: fmt.Errorf("encode request: %w", err)}
	}

	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &StageError{Stage: stage, Kind: KindTransport, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	return c.doJSON(stage, req, out)
}

func (c Chain) getJSON(ctx context.Context, stage Stage, endpoint, bearer string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &StageError{Stage: stage, Kind: KindTransport, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	return c.doJSON(stage, req, out)
}

func (c Chain) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	if endpoint == "" {
		return nil, errors.New("endpoint is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return req, nil
}

func (c Chain) doJSON(stage Stage, req *http.Request, out any) error {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return &StageError{Stage: stage, Kind: KindTransport, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &StageError{Stage: stage, Kind: KindRejected, Status: resp.StatusCode, Err: fmt.Errorf("service rejected request")}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return &StageError{Stage: stage, Kind: KindMalformed, Err: fmt.Errorf("decode response: %w", err)}
	}

	return nil
}

func (c Chain) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	if c.RequestTimeout > 0 {
		return &http.Client{Timeout: c.RequestTimeout}
	}
	return http.DefaultClient
}

func parseExpiry(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func minExpiry(candidates ...time.Time) time.Time {
	var min time.Time
	for _, candidate := range candidates {
		if candidate.IsZero() {
			continue
		}
		if min.IsZero() || candidate.Before(min) {
			min = candidate
		}
	}
	return min
}
