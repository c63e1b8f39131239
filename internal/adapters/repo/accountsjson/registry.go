// Package accountsjson persists the known accounts and the active-account
// pointer in a single JSON document. Identity fields are stored in clear
// text; credential bundles go through the injected crypter and land in the
// document as opaque base64 blobs. All writes are temp-file-then-rename so a
// crash mid-write never corrupts the document.
package accountsjson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emberlaunch/ember/internal/domain"
	"github.com/emberlaunch/ember/internal/ports"
)

const (
	accountsFileMode = 0o600
	accountsDirMode  = 0o700
	tempFilePattern  = ".accounts-*.json.tmp"
)

type Registry struct {
	path    string
	crypter ports.TokenCrypter
	mu      *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.AccountRegistry = (*Registry)(nil)

func NewRegistry(path string, crypter ports.TokenCrypter) (*Registry, error) {
	if crypter == nil {
		return nil, errors.New("token crypter is required")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve accounts path: %w", err)
	}
	absPath = filepath.Clean(absPath)

	return &Registry{path: absPath, crypter: crypter, mu: lockForPath(absPath)}, nil
}

func (r *Registry) List(ctx context.Context) ([]domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return nil, err
	}

	accounts := make([]domain.Account, 0, len(file.Accounts))
	for _, entry := range file.Accounts {
		account, err := r.fromSchema(entry)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	return accounts, nil
}

func (r *Registry) Get(ctx context.Context, id domain.PlayerID) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return domain.Account{}, err
	}

	for _, entry := range file.Accounts {
		if entry.PlayerID == string(id) {
			return r.fromSchema(entry)
		}
	}

	return domain.Account{}, domain.ErrAccountNotFound
}

// Upsert adds the account or replaces the entry with the same player id.
// The registry never holds two entries for one player.
func (r *Registry) Upsert(ctx context.Context, account domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if account.PlayerID == "" {
		return errors.New("player id is required")
	}

	encoded, err := r.toSchema(account)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	replaced := false
	for i := range file.Accounts {
		if file.Accounts[i].PlayerID == encoded.PlayerID {
			file.Accounts[i] = encoded
			replaced = true
			break
		}
	}
	if !replaced {
		file.Accounts = append(file.Accounts, encoded)
	}

	return r.writeSchema(file)
}

func (r *Registry) Remove(ctx context.Context, id domain.PlayerID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	kept := file.Accounts[:0]
	removed := false
	for _, entry := range file.Accounts {
		if entry.PlayerID == string(id) {
			removed = true
			continue
		}
		kept = append(kept, entry)
	}
	if !removed {
		return domain.ErrAccountNotFound
	}
	file.Accounts = kept

	// Never leave the active pointer dangling.
	if file.ActiveAccount == string(id) {
		file.ActiveAccount = ""
	}

	return r.writeSchema(file)
}

func (r *Registry) Active(ctx context.Context) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return domain.Account{}, err
	}
	if file.ActiveAccount == "" {
		return domain.Account{}, domain.ErrNoActiveAccount
	}

	for _, entry := range file.Accounts {
		if entry.PlayerID == file.ActiveAccount {
			return r.fromSchema(entry)
		}
	}

	return domain.Account{}, domain.ErrNoActiveAccount
}

func (r *Registry) SetActive(ctx context.Context, id domain.PlayerID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	for _, entry := range file.Accounts {
		if entry.PlayerID == string(id) {
			file.ActiveAccount = string(id)
			return r.writeSchema(file)
		}
	}

	return domain.ErrAccountNotFound
}

// Maintain decrypts every stored credential and prunes entries whose blobs
// no longer authenticate. It returns a human-readable summary of what was
// removed; an empty sweep reports that everything checked out.
func (r *Registry) Maintain(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return "", err
	}

	kept := file.Accounts[:0]
	var pruned []string
	for _, entry := range file.Accounts {
		if _, err := r.fromSchema(entry); err != nil {
			pruned = append(pruned, fmt.Sprintf("%s (%s): %v", entry.Name, entry.PlayerID, err))
			if file.ActiveAccount == entry.PlayerID {
				file.ActiveAccount = ""
			}
			continue
		}
		kept = append(kept, entry)
	}

	if len(pruned) == 0 {
		return fmt.Sprintf("checked %d account(s), all credentials intact", len(file.Accounts)), nil
	}

	file.Accounts = kept
	if err := r.writeSchema(file); err != nil {
		return "", err
	}

	sort.Strings(pruned)
	return fmt.Sprintf("removed %d unrecoverable account(s):\n  %s", len(pruned), strings.Join(pruned, "\n  ")), nil
}

func (r *Registry) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			file := fileSchema{}
			file.applyDefaults()
			return file, nil
		}
		return fileSchema{}, fmt.Errorf("read accounts file: %w", err)
	}

	var file fileSchema
	if err := json.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode accounts file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func (r *Registry) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(r.path), accountsDirMode); err != nil {
		return fmt.Errorf("create accounts directory: %w", err)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode accounts file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp accounts file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp accounts file: %w", err)
	}
	if err := tempFile.Chmod(accountsFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp accounts file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp accounts file: %w", err)
	}

	if err := os.Rename(tempName, r.path); err != nil {
		return fmt.Errorf("replace accounts file: %w", err)
	}
	cleanup = false

	return nil
}

func (r *Registry) toSchema(account domain.Account) (accountSchema, error) {
	payload, err := json.Marshal(credentialsPayload{
		AccessToken:  account.Credentials.AccessToken,
		RefreshToken: account.Credentials.RefreshToken,
		TokenType:    account.Credentials.TokenType,
		ExpiresAt:    formatTime(account.Credentials.ExpiresAt),
	})
	if err != nil {
		return accountSchema{}, fmt.Errorf("encode credentials: %w", err)
	}

	blob, err := r.crypter.Encrypt(payload)
	if err != nil {
		return accountSchema{}, fmt.Errorf("encrypt credentials: %w", err)
	}

	return accountSchema{
		PlayerID:    string(account.PlayerID),
		Name:        account.Name,
		Provenance:  string(account.Provenance),
		AddedAt:     formatTime(account.AddedAt),
		RefreshedAt: formatTime(account.RefreshedAt),
		Credentials: blob,
	}, nil
}

func (r *Registry) fromSchema(entry accountSchema) (domain.Account, error) {
	raw, err := r.crypter.Decrypt(entry.Credentials)
	if err != nil {
		return domain.Account{}, fmt.Errorf("%w: %v", domain.ErrCredentialUnrecoverable, err)
	}

	var payload credentialsPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.Account{}, fmt.Errorf("%w: decode credentials: %v", domain.ErrCredentialUnrecoverable, err)
	}

	return domain.Account{
		PlayerID: domain.PlayerID(entry.PlayerID),
		Name:     entry.Name,
		Credentials: domain.Credentials{
			AccessToken:  payload.AccessToken,
			RefreshToken: payload.RefreshToken,
			TokenType:    payload.TokenType,
			ExpiresAt:    parseTime(payload.ExpiresAt),
		},
		Provenance:  domain.FlowKind(entry.Provenance),
		AddedAt:     parseTime(entry.AddedAt),
		RefreshedAt: parseTime(entry.RefreshedAt),
	}, nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}

	return parsed
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.Format(time.RFC3339)
}
