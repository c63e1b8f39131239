package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emberlaunch/ember/internal/domain"
	"github.com/emberlaunch/ember/internal/ports"
)

// DeviceAuthorizer is the slice of the OAuth client the device flow needs.
type DeviceAuthorizer interface {
	RequestDeviceCode(ctx context.Context) (DeviceCodeGrant, error)
	PollDeviceToken(ctx context.Context, deviceCode string) (domain.ProviderToken, PollSignal, error)
}

// DeviceSession is the caller-visible snapshot of an in-flight device-code
// session, addressable by its opaque ID.
type DeviceSession struct {
	ID              string
	UserCode        string
	VerificationURL string
	Message         string
	Interval        time.Duration
	ExpiresAt       time.Time
}

// LoginResult is what a poll returns. Profile and Provider are populated
// only when State is FlowComplete. Err carries the sticky failure cause for
// FlowFailed sessions.
type LoginResult struct {
	State    domain.FlowState
	Profile  domain.ExchangeResult
	Provider domain.ProviderToken
	Err      error
}

type deviceSession struct {
	info       DeviceSession
	deviceCode string
	state      domain.FlowState
	interval   time.Duration
	nextPoll   time.Time
	inFlight   bool
	result     LoginResult
}

// DeviceFlow runs unattended device-code sessions. Terminal states are
// sticky: once a session completes, expires, is denied or fails, every later
// poll answers from memory without contacting the provider again.
type DeviceFlow struct {
	client    DeviceAuthorizer
	exchanger ports.TokenExchanger
	clock     ports.Clock

	mu       sync.Mutex
	sessions map[string]*deviceSession
}

func NewDeviceFlow(client DeviceAuthorizer, exchanger ports.TokenExchanger, clock ports.Clock) *DeviceFlow {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &DeviceFlow{
		client:    client,
		exchanger: exchanger,
		clock:     clock,
		sessions:  make(map[string]*deviceSession),
	}
}

func (f *DeviceFlow) Start(ctx context.Context) (DeviceSession, error) {
	grant, err := f.client.RequestDeviceCode(ctx)
	if err != nil {
		return DeviceSession{}, err
	}

	session := &deviceSession{
		info: DeviceSession{
			ID:              uuid.NewString(),
			UserCode:        grant.UserCode,
			VerificationURL: grant.VerificationURL,
			Message:         grant.Message,
			Interval:        grant.Interval,
			ExpiresAt:       grant.ExpiresAt,
		},
		deviceCode: grant.DeviceCode,
		state:      domain.FlowPending,
		interval:   grant.Interval,
	}

	f.mu.Lock()
	f.sessions[session.info.ID] = session
	f.mu.Unlock()

	return session.info, nil
}

// Poll advances the session. Polls arriving before the enforced interval
// answer Pending without a network round-trip, so the provider never sees
// two requests closer together than the current cadence.
func (f *DeviceFlow) Poll(ctx context.Context, id string) (LoginResult, error) {
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

	// A session that already has a poll on the wire keeps its slot until
	// that poll records a result; the device code must never reach the
	// provider twice concurrently.
	now := f.clock.Now()
	if session.inFlight || now.Before(session.nextPoll) {
		f.mu.Unlock()
		return LoginResult{State: domain.FlowPending}, nil
	}

	if now.After(session.info.ExpiresAt) {
		result := f.settle(session, LoginResult{State: domain.FlowExpired})
		f.mu.Unlock()
		return result, nil
	}

	session.inFlight = true
	session.nextPoll = now.Add(session.interval)
	deviceCode := session.deviceCode
	f.mu.Unlock()

	token, signal, err := f.client.PollDeviceToken(ctx, deviceCode)

	f.mu.Lock()

	if err != nil {
		result := f.settle(session, LoginResult{State: domain.FlowFailed, Err: err})
		f.mu.Unlock()
		return result, nil
	}

	switch signal.Outcome {
	case PollPending:
		session.inFlight = false
		f.mu.Unlock()
		return LoginResult{State: domain.FlowPending}, nil

	case PollSlowDown:
		// Back-off is sticky for the session: the interval only ever grows.
		if signal.Interval > session.interval {
			session.interval = signal.Interval
		}
		session.nextPoll = f.clock.Now().Add(session.interval)
		session.inFlight = false
		f.mu.Unlock()
		return LoginResult{State: domain.FlowPending}, nil

	case PollDenied:
		result := f.settle(session, LoginResult{State: domain.FlowDenied})
		f.mu.Unlock()
		return result, nil

	case PollExpired:
		result := f.settle(session, LoginResult{State: domain.FlowExpired})
		f.mu.Unlock()
		return result, nil
	}

	// Authorization granted; run the downstream exchange chain. The
	// in-flight hold stays up for the whole exchange so no second poll can
	// re-send the now-consumed device code.
	session.state = domain.FlowExchanging
	f.mu.Unlock()

	profile, err := f.exchanger.Exchange(ctx, token.AccessToken)

	f.mu.Lock()
	defer f.mu.Unlock()

	if err != nil {
		return f.settle(session, LoginResult{State: domain.FlowFailed, Err: err}), nil
	}

	return f.settle(session, LoginResult{
		State:    domain.FlowComplete,
		Profile:  profile,
		Provider: token,
	}), nil
}

// settle releases the in-flight hold and records a terminal result. The
// first terminal result wins; later settles return it unchanged. Caller
// holds f.mu.
func (f *DeviceFlow) settle(session *deviceSession, result LoginResult) LoginResult {
	session.inFlight = false
	if !session.state.Terminal() {
		session.state = result.State
		session.result = result
	}
	return session.result
}

// Abandon drops the session. There is no server-side cancellation call; the
// provider grant simply expires on its own.
func (f *DeviceFlow) Abandon(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
}
