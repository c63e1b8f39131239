// Package auth implements the identity-provider front end: the interactive
// authorization-code flow with a local callback listener, the unattended
// device-code flow with provider-paced polling, and the token grants both
// flows share.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/emberlaunch/ember/internal/domain"
	"github.com/emberlaunch/ember/internal/ports"
)

const (
	deviceCodeGrantType   = "urn:ietf:params:oauth:grant-type:device_code"
	maxOAuthResponseBytes = 1 << 20
)

// ErrInvalidGrant means the refresh token (or code) was rejected outright.
// The stored credential is dead; the user has to sign in again. It wraps
// domain.ErrCredentialUnrecoverable so callers can classify without knowing
// this package.
var ErrInvalidGrant = fmt.Errorf("grant rejected by identity provider: %w", domain.ErrCredentialUnrecoverable)

type Endpoints struct {
	AuthorizeURL  string
	DeviceCodeURL string
	TokenURL      string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		AuthorizeURL:  "https://login.microsoftonline.com/consumers/oauth2/v2.0/authorize",
		DeviceCodeURL: "https://login.microsoftonline.com/consumers/oauth2/v2.0/devicecode",
		TokenURL:      "https://login.microsoftonline.com/consumers/oauth2/v2.0/token",
	}
}

type Client struct {
	Endpoints      Endpoints
	ClientID       string
	Scopes         []string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

var _ ports.TokenRefresher = (*Client)(nil)

// DeviceCodeGrant is the provider's answer to a device-code request: the
// codes, where to enter them, how fast to poll and when the grant dies.
type DeviceCodeGrant struct {
	DeviceCode      string
	UserCode        string
	VerificationURL string
	Message         string
	Interval        time.Duration
	ExpiresAt       time.Time
}

// PollOutcome classifies one token-endpoint poll. SlowDown is not an error:
// it is a recoverable signal that adjusts the polling cadence.
type PollOutcome int

const (
	PollSuccess PollOutcome = iota
	PollPending
	PollSlowDown
	PollDenied
	PollExpired
)

type PollSignal struct {
	Outcome  PollOutcome
	Interval time.Duration
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

type deviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	Message         string `json:"message"`
	Interval        int64  `json:"interval"`
	ExpiresIn       int64  `json:"expires_in"`
}

type oauthErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Interval         int64  `json:"interval"`
}

// AuthorizationURL builds the interactive authorize URL bound to the given
// state and PKCE challenge.
func (c *Client) AuthorizationURL(redirectURI, state, codeChallenge string) (string, error) {
	if c.ClientID == "" {
		return "", errors.New("client id is required")
	}
	if redirectURI == "" {
		return "", errors.New("redirect uri is required")
	}
	if state == "" {
		return "", errors.New("state is required")
	}
	if codeChallenge == "" {
		return "", errors.New("code challenge is required")
	}

	parsed, err := parseEndpoint(c.Endpoints.AuthorizeURL)
	if err != nil {
		return "", err
	}

	q := parsed.Query()
	q.Set("response_type", "code")
	q.Set("client_id", c.ClientID)
	q.Set("redirect_uri", redirectURI)
	if len(c.Scopes) > 0 {
		q.Set("scope", strings.Join(c.Scopes, " "))
	}
	q.Set("state", state)
	q.Set("code_challenge", codeChallenge)
	q.Set("code_challenge_method", PKCEChallengeMethodS256)
	q.Set("prompt", "select_account")
	parsed.RawQuery = q.Encode()

	return parsed.String(), nil
}

func (c *Client) RequestDeviceCode(ctx context.Context) (DeviceCodeGrant, error) {
	if c.ClientID == "" {
		return DeviceCodeGrant{}, errors.New("client id is required")
	}

	values := url.Values{}
	values.Set("client_id", c.ClientID)
	if len(c.Scopes) > 0 {
		values.Set("scope", strings.Join(c.Scopes, " "))
	}

	resp, err := c.postForm(ctx, c.Endpoints.DeviceCodeURL, values)
	if err != nil {
		return DeviceCodeGrant{}, fmt.Errorf("request device code: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !statusOK(resp.StatusCode) {
		return DeviceCodeGrant{}, fmt.Errorf("request device code: %s", decodeOAuthError(resp))
	}

	var payload deviceCodeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxOAuthResponseBytes)).Decode(&payload); err != nil {
		return DeviceCodeGrant{}, fmt.Errorf("decode device code response: %w", err)
	}
	if payload.DeviceCode == "" || payload.UserCode == "" || payload.VerificationURI == "" {
		return DeviceCodeGrant{}, errors.New("device code response missing required fields")
	}

	interval := payload.Interval
	if interval <= 0 {
		interval = 5
	}
	expiresIn := payload.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 900
	}

	return DeviceCodeGrant{
		DeviceCode:      payload.DeviceCode,
		UserCode:        payload.UserCode,
		VerificationURL: payload.VerificationURI,
		Message:         payload.Message,
		Interval:        time.Duration(interval) * time.Second,
		ExpiresAt:       time.Now().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}

// PollDeviceToken issues exactly one token-endpoint request for the device
// code. Pacing is the caller's job; this method never sleeps.
func (c *Client) PollDeviceToken(ctx context.Context, deviceCode string) (domain.ProviderToken, PollSignal, error) {
	if deviceCode == "" {
		return domain.ProviderToken{}, PollSignal{}, errors.New("device code is required")
	}

	values := url.Values{}
	values.Set("grant_type", deviceCodeGrantType)
	values.Set("client_id", c.ClientID)
	values.Set("device_code", deviceCode)

	resp, err := c.postForm(ctx, c.Endpoints.TokenURL, values)
	if err != nil {
		return domain.ProviderToken{}, PollSignal{}, fmt.Errorf("poll token endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if statusOK(resp.StatusCode) {
		token, err := decodeToken(resp)
		if err != nil {
			return domain.ProviderToken{}, PollSignal{}, err
		}
		return token, PollSignal{Outcome: PollSuccess}, nil
	}

	var oauthErr oauthErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxOAuthResponseBytes)).Decode(&oauthErr); err != nil {
		return domain.ProviderToken{}, PollSignal{}, fmt.Errorf("poll token endpoint: status %d", resp.StatusCode)
	}

	switch oauthErr.Error {
	case "authorization_pending":
		return domain.ProviderToken{}, PollSignal{Outcome: PollPending}, nil
	case "slow_down":
		interval := time.Duration(oauthErr.Interval) * time.Second
		if interval <= 0 {
			interval = 5 * time.Second
		}
		return domain.ProviderToken{}, PollSignal{Outcome: PollSlowDown, Interval: interval}, nil
	case "authorization_declined", "access_denied":
		return domain.ProviderToken{}, PollSignal{Outcome: PollDenied}, nil
	case "expired_token":
		return domain.ProviderToken{}, PollSignal{Outcome: PollExpired}, nil
	default:
		return domain.ProviderToken{}, PollSignal{}, fmt.Errorf("poll token endpoint: %s", formatOAuthError(resp.StatusCode, oauthErr))
	}
}

// ExchangeCode redeems an authorization code from the interactive flow.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (domain.ProviderToken, error) {
	if code == "" {
		return domain.ProviderToken{}, errors.New("authorization code is required")
	}
	if redirectURI == "" {
		return domain.ProviderToken{}, errors.New("redirect uri is required")
	}
	if codeVerifier == "" {
		return domain.ProviderToken{}, errors.New("code verifier is required")
	}

	values := url.Values{}
	values.Set("grant_type", "authorization_code")
	values.Set("client_id", c.ClientID)
	values.Set("code", code)
	values.Set("redirect_uri", redirectURI)
	values.Set("code_verifier", codeVerifier)

	return c.tokenGrant(ctx, "exchange authorization code", values)
}

// Refresh redeems a refresh token for a fresh token pair. An invalid_grant
// answer maps to ErrInvalidGrant so callers can route to re-authentication
// instead of retrying.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (domain.ProviderToken, error) {
	if refreshToken == "" {
		return domain.ProviderToken{}, errors.New("refresh token is required")
	}

	values := url.Values{}
	values.Set("grant_type", "refresh_token")
	values.Set("client_id", c.ClientID)
	values.Set("refresh_token", refreshToken)
	if len(c.Scopes) > 0 {
		values.Set("scope", strings.Join(c.Scopes, " "))
	}

	return c.tokenGrant(ctx, "refresh token", values)
}

func (c *Client) tokenGrant(ctx context.Context, verb string, values url.Values) (domain.ProviderToken, error) {
	resp, err := c.postForm(ctx, c.Endpoints.TokenURL, values)
	if err != nil {
		return domain.ProviderToken{}, fmt.Errorf("%s: %w", verb, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !statusOK(resp.StatusCode) {
		var oauthErr oauthErrorResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxOAuthResponseBytes)).Decode(&oauthErr); err == nil && oauthErr.Error == "invalid_grant" {
			return domain.ProviderToken{}, fmt.Errorf("%s: %w", verb, ErrInvalidGrant)
		} else if err == nil {
			return domain.ProviderToken{}, fmt.Errorf("%s: %s", verb, formatOAuthError(resp.StatusCode, oauthErr))
		}
		return domain.ProviderToken{}, fmt.Errorf("%s: status %d", verb, resp.StatusCode)
	}

	return decodeToken(resp)
}

func (c *Client) postForm(ctx context.Context, endpoint string, values url.Values) (*http.Response, error) {
	parsed, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	requestCtx, cancel := c.requestContext(ctx)
	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, parsed.String(), strings.NewReader(values.Encode()))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		cancel()
		return nil, err
	}

	resp.Body = cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}

	timeout := c.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return context.WithTimeout(ctx, timeout)
}

func decodeToken(resp *http.Response) (domain.ProviderToken, error) {
	var token tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxOAuthResponseBytes)).Decode(&token); err != nil {
		return domain.ProviderToken{}, fmt.Errorf("decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return domain.ProviderToken{}, errors.New("token response missing access token")
	}

	var expiresAt time.Time
	if token.ExpiresIn > 0 {
		expiresAt = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	}

	return domain.ProviderToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		ExpiresAt:    expiresAt,
	}, nil
}

func parseEndpoint(endpoint string) (*url.URL, error) {
	if endpoint == "" {
		return nil, errors.New("endpoint is not configured")
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.New("endpoint must use http or https")
	}
	if parsed.Host == "" {
		return nil, errors.New("endpoint host is required")
	}

	return parsed, nil
}

func statusOK(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

func decodeOAuthError(resp *http.Response) string {
	var oauthErr oauthErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxOAuthResponseBytes)).Decode(&oauthErr); err != nil {
		return fmt.Sprintf("status %d", resp.StatusCode)
	}
	return formatOAuthError(resp.StatusCode, oauthErr)
}

func formatOAuthError(statusCode int, oauthErr oauthErrorResponse) string {
	if oauthErr.Error == "" {
		return fmt.Sprintf("status %d", statusCode)
	}
	if oauthErr.ErrorDescription != "" {
		return oauthErr.Error + ": " + oauthErr.ErrorDescription
	}
	return oauthErr.Error
}
