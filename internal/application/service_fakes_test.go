package application

import (
	"context"
	"sync"
	"time"

	"github.com/emberlaunch/ember/internal/domain"
	"github.com/emberlaunch/ember/internal/ports"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memRegistry is an in-memory ports.AccountRegistry.
type memRegistry struct {
	mu       sync.Mutex
	accounts map[domain.PlayerID]domain.Account
	order    []domain.PlayerID
	active   domain.PlayerID
	upserts  int
}

func newMemRegistry() *memRegistry {
	return &memRegistry{accounts: make(map[domain.PlayerID]domain.Account)}
}

func (r *memRegistry) List(context.Context) ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Account, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.accounts[id])
	}
	return out, nil
}

func (r *memRegistry) Get(_ context.Context, id domain.PlayerID) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return account, nil
}

func (r *memRegistry) Upsert(_ context.Context, account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[account.PlayerID]; !ok {
		r.order = append(r.order, account.PlayerID)
	}
	r.accounts[account.PlayerID] = account
	r.upserts++
	return nil
}

func (r *memRegistry) Remove(_ context.Context, id domain.PlayerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[id]; !ok {
		return domain.ErrAccountNotFound
	}
	delete(r.accounts, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.active == id {
		r.active = ""
	}
	return nil
}

func (r *memRegistry) Active(context.Context) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == "" {
		return domain.Account{}, domain.ErrNoActiveAccount
	}
	return r.accounts[r.active], nil
}

func (r *memRegistry) SetActive(_ context.Context, id domain.PlayerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[id]; !ok {
		return domain.ErrAccountNotFound
	}
	r.active = id
	return nil
}

func (r *memRegistry) Maintain(context.Context) (string, error) {
	return "checked 0 account(s), all credentials intact", nil
}

// memInstallations is an in-memory ports.InstallationRepository.
type memInstallations struct {
	mu    sync.Mutex
	items map[domain.InstallationID]domain.Installation
}

func newMemInstallations() *memInstallations {
	return &memInstallations{items: make(map[domain.InstallationID]domain.Installation)}
}

func (m *memInstallations) List(context.Context) ([]domain.Installation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Installation, 0, len(m.items))
	for _, item := range m.items {
		out = append(out, item)
	}
	return out, nil
}

func (m *memInstallations) Get(_ context.Context, id domain.InstallationID) (domain.Installation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok {
		return domain.Installation{}, domain.ErrInstallationNotFound
	}
	return item, nil
}

func (m *memInstallations) Save(_ context.Context, installation domain.Installation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[installation.ID] = installation
	return nil
}

func (m *memInstallations) Remove(_ context.Context, id domain.InstallationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[id]; !ok {
		return domain.ErrInstallationNotFound
	}
	delete(m.items, id)
	return nil
}

// scriptedRefresher returns its scripted errors in order, then succeeds.
type scriptedRefresher struct {
	mu     sync.Mutex
	errs   []error
	token  domain.ProviderToken
	calls  int
	tokens []string
}

func (r *scriptedRefresher) Refresh(_ context.Context, refreshToken string) (domain.ProviderToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	r.tokens = append(r.tokens, refreshToken)
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return domain.ProviderToken{}, err
	}
	return r.token, nil
}

type fakeExchanger struct {
	mu     sync.Mutex
	result domain.ExchangeResult
	err    error
	calls  int
}

func (e *fakeExchanger) Exchange(_ context.Context, _ string) (domain.ExchangeResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls++
	if e.err != nil {
		return domain.ExchangeResult{}, e.err
	}
	return e.result, nil
}

type fakeSymlinks struct {
	mu       sync.Mutex
	setups   int
	cleanups int
	err      error
}

func (f *fakeSymlinks) SetupForInstallation(_ context.Context, _ domain.Installation, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.setups++
	return f.err
}

func (f *fakeSymlinks) CleanupAllSymlinks() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cleanups++
	return nil
}

// fakeSupervisor records specs and scripts Wait results.
type fakeSupervisor struct {
	mu       sync.Mutex
	specs    []ports.ProcessSpec
	nextPID  int
	running  map[int]domain.InstallationID
	waitCode int
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{running: make(map[int]domain.InstallationID)}
}

func (f *fakeSupervisor) Start(_ context.Context, spec ports.ProcessSpec) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.specs = append(f.specs, spec)
	f.nextPID++
	pid := 5000 + f.nextPID
	f.running[pid] = spec.InstallationID
	return pid, nil
}

func (f *fakeSupervisor) Kill(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.running[pid]; !ok {
		return domain.ErrProcessNotTracked
	}
	delete(f.running, pid)
	return nil
}

func (f *fakeSupervisor) Wait(_ context.Context, pid int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.running[pid]; !ok {
		return 0, domain.ErrProcessNotTracked
	}
	delete(f.running, pid)
	return f.waitCode, nil
}

func (f *fakeSupervisor) List() []domain.RunningProcess {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]domain.RunningProcess, 0, len(f.running))
	for pid, id := range f.running {
		out = append(out, domain.RunningProcess{PID: pid, InstallationID: id})
	}
	return out
}

func (f *fakeSupervisor) AnyRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.running) > 0
}
