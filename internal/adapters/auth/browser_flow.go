package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/emberlaunch/ember/internal/domain"
	"github.com/emberlaunch/ember/internal/ports"
)

// CodeExchanger is the slice of the OAuth client the interactive flow needs.
type CodeExchanger interface {
	AuthorizationURL(redirectURI, state, codeChallenge string) (string, error)
	ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (domain.ProviderToken, error)
}

// BrowserSession is the caller-visible handle for an interactive session:
// the URL to open in a browser plus the correlation id to poll with.
type BrowserSession struct {
	ID      string
	AuthURL string
}

type browserSession struct {
	state    domain.FlowState
	server   *CallbackServer
	verifier string
	result   LoginResult
}

// BrowserFlow runs interactive authorization-code sessions. Each session
// owns an ephemeral localhost listener bound to a unique state value; the
// listener is torn down as soon as the session reaches a terminal state or
// is abandoned.
type BrowserFlow struct {
	client     CodeExchanger
	exchanger  ports.TokenExchanger
	listenAddr string

	mu       sync.Mutex
	sessions map[string]*browserSession
}

func NewBrowserFlow(client CodeExchanger, exchanger ports.TokenExchanger, listenAddr string) *BrowserFlow {
	return &BrowserFlow{
		client:     client,
		exchanger:  exchanger,
		listenAddr: listenAddr,
		sessions:   make(map[string]*browserSession),
	}
}

func (f *BrowserFlow) Start(ctx context.Context) (BrowserSession, error) {
	if err := ctx.Err(); err != nil {
		return BrowserSession{}, err
	}

	pkce, err := NewPKCEPair()
	if err != nil {
		return BrowserSession{}, fmt.Errorf("generate pkce pair: %w", err)
	}
	state, err := NewState()
	if err != nil {
		return BrowserSession{}, fmt.Errorf("generate state: %w", err)
	}

	server, err := StartCallbackServer(f.listenAddr, state)
	if err != nil {
		return BrowserSession{}, err
	}

	authURL, err := f.client.AuthorizationURL(server.RedirectURI(), state, pkce.Challenge)
	if err != nil {
		_ = server.Close()
		return BrowserSession{}, fmt.Errorf("build authorization url: %w", err)
	}

	session := &browserSession{
		state:    domain.FlowAwaitingRedirect,
		server:   server,
		verifier: pkce.Verifier,
	}

	info := BrowserSession{ID: uuid.NewString(), AuthURL: authURL}

	f.mu.Lock()
	f.sessions[info.ID] = session
	f.mu.Unlock()

	return info, nil
}

// Poll checks whether the redirect has arrived. If it has, the code is
// exchanged and fed through the token chain; otherwise the session stays in
// AwaitingRedirect. Terminal results are sticky.
func (f *BrowserFlow) Poll(ctx context.Context, id string) (LoginResult, error) {
	f.mu.Lock()
	session, ok := f.sessions[id]
	if !ok {
		f.mu.Unlock()
		return LoginResult{}, domain.ErrSessionNotFound
	}

	if session.state.Terminal() {
		result := session.result
		f.mu.Unlock()
		return result, nil
	}

	code, cbErr, arrived := session.server.TryResult()
	if !arrived {
		f.mu.Unlock()
		return LoginResult{State: domain.FlowAwaitingRedirect}, nil
	}

	redirectURI := session.server.RedirectURI()
	verifier := session.verifier

	if cbErr != nil {
		f.closeListenerLocked(session)
		session.state = domain.FlowFailed
		session.result = LoginResult{State: domain.FlowFailed, Err: cbErr}
		result := session.result
		f.mu.Unlock()
		return result, nil
	}

	session.state = domain.FlowExchanging
	f.mu.Unlock()

	result := f.exchange(ctx, code, redirectURI, verifier)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.closeListenerLocked(session)
	session.state = result.State
	session.result = result

	return result, nil
}

func (f *BrowserFlow) exchange(ctx context.Context, code, redirectURI, verifier string) LoginResult {
	token, err := f.client.ExchangeCode(ctx, code, redirectURI, verifier)
	if err != nil {
		return LoginResult{State: domain.FlowFailed, Err: err}
	}

	profile, err := f.exchanger.Exchange(ctx, token.AccessToken)
	if err != nil {
		return LoginResult{State: domain.FlowFailed, Err: err}
	}

	return LoginResult{State: domain.FlowComplete, Profile: profile, Provider: token}
}

// Abandon tears down the session's listener and frees the slot. Callers that
// stop polling are expected to call it; sessions have no automatic expiry.
func (f *BrowserFlow) Abandon(id string) {
	f.mu.Lock()
	session, ok := f.sessions[id]
	delete(f.sessions, id)
	f.mu.Unlock()

	if ok {
		_ = session.server.Close()
	}
}

// closeListenerLocked tears the listener down; the state transition itself
// is the caller's to record. Must be called with f.mu held.
func (f *BrowserFlow) closeListenerLocked(session *browserSession) {
	_ = session.server.Close()
}
