package auth

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberlaunch/ember/internal/domain"
)

type fakeCodeExchanger struct {
	token domain.ProviderToken
	err   error
	codes []string
}

func (f *fakeCodeExchanger) AuthorizationURL(redirectURI, state, codeChallenge string) (string, error) {
	u := url.URL{Scheme: "https", Host: "login.example.com", Path: "/authorize"}
	q := u.Query()
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	q.Set("code_challenge", codeChallenge)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (f *fakeCodeExchanger) ExchangeCode(_ context.Context, code, _, _ string) (domain.ProviderToken, error) {
	f.codes = append(f.codes, code)
	if f.err != nil {
		return domain.ProviderToken{}, f.err
	}
	return f.token, nil
}

// callbackParams pulls redirect_uri and state back out of the auth URL the
// flow handed the caller.
func callbackParams(t *testing.T, authURL string) (redirectURI, state string) {
	t.Helper()

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	return parsed.Query().Get("redirect_uri"), parsed.Query().Get("state")
}

func deliverCallback(t *testing.T, redirectURI string, params url.Values) *http.Response {
	t.Helper()

	resp, err := http.Get(redirectURI + "?" + params.Encode())
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestBrowserFlowCompletesOnValidCallback(t *testing.T) {
	t.Parallel()

	client := &fakeCodeExchanger{token: domain.ProviderToken{AccessToken: "ms-access", RefreshToken: "ms-refresh"}}
	exchanger := &fakeExchanger{result: domain.ExchangeResult{PlayerID: "player-1", Name: "Notch", Bearer: "game-bearer"}}
	flow := NewBrowserFlow(client, exchanger, "127.0.0.1:0")

	session, err := flow.Start(context.Background())
	require.NoError(t, err)

	result, err := flow.Poll(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FlowAwaitingRedirect, result.State)

	redirectURI, state := callbackParams(t, session.AuthURL)
	resp := deliverCallback(t, redirectURI, url.Values{"state": {state}, "code": {"auth-code-1"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	result, err = flow.Poll(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FlowComplete, result.State)
	assert.Equal(t, domain.PlayerID("player-1"), result.Profile.PlayerID)
	assert.Equal(t, "ms-refresh", result.Provider.RefreshToken)
	assert.Equal(t, []string{"auth-code-1"}, client.codes)

	// Listener is torn down once terminal.
	httpClient := &http.Client{Timeout: 200 * time.Millisecond}
	_, err = httpClient.Get(redirectURI)
	assert.Error(t, err)

	// Sticky result.
	result, err = flow.Poll(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FlowComplete, result.State)
}

func TestBrowserFlowRejectsForgedState(t *testing.T) {
	t.Parallel()

	client := &fakeCodeExchanger{}
	flow := NewBrowserFlow(client, &fakeExchanger{}, "127.0.0.1:0")

	session, err := flow.Start(context.Background())
	require.NoError(t, err)

	redirectURI, _ := callbackParams(t, session.AuthURL)
	resp := deliverCallback(t, redirectURI, url.Values{"state": {"forged"}, "code": {"stolen-code"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	result, err := flow.Poll(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FlowFailed, result.State)
	assert.ErrorIs(t, result.Err, ErrStateMismatch)
	assert.Empty(t, client.codes)
}

func TestBrowserFlowPropagatesProviderError(t *testing.T) {
	t.Parallel()

	flow := NewBrowserFlow(&fakeCodeExchanger{}, &fakeExchanger{}, "127.0.0.1:0")

	session, err := flow.Start(context.Background())
	require.NoError(t, err)

	redirectURI, state := callbackParams(t, session.AuthURL)
	deliverCallback(t, redirectURI, url.Values{"state": {state}, "error": {"access_denied"}, "error_description": {"user said no"}})

	result, err := flow.Poll(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FlowFailed, result.State)
	assert.Contains(t, result.Err.Error(), "access_denied")
}

func TestBrowserFlowSessionsAreIndependent(t *testing.T) {
	t.Parallel()

	client := &fakeCodeExchanger{token: domain.ProviderToken{AccessToken: "ms-access"}}
	exchanger := &fakeExchanger{result: domain.ExchangeResult{PlayerID: "p1", Name: "One"}}
	flow := NewBrowserFlow(client, exchanger, "127.0.0.1:0")

	first, err := flow.Start(context.Background())
	require.NoError(t, err)
	second, err := flow.Start(context.Background())
	require.NoError(t, err)

	_, firstState := callbackParams(t, first.AuthURL)
	_, secondState := callbackParams(t, second.AuthURL)
	assert.NotEqual(t, firstState, secondState, "state values must not be reused across sessions")

	redirectURI, state := callbackParams(t, first.AuthURL)
	deliverCallback(t, redirectURI, url.Values{"state": {state}, "code": {"code-1"}})

	result, err := flow.Poll(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FlowComplete, result.State)

	result, err = flow.Poll(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FlowAwaitingRedirect, result.State)

	flow.Abandon(second.ID)
	_, err = flow.Poll(context.Background(), second.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
