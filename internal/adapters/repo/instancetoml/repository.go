// Package instancetoml persists installations as a TOML document. The path
// comes from the launcher config (viper) and can be overridden there; writes
// are temp-file-then-rename.
package instancetoml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/emberlaunch/ember/internal/domain"
	"github.com/emberlaunch/ember/internal/ports"
)

const (
	installationsPathKey  = "installations.path"
	installationsFileMode = 0o600
	installationsDirMode  = 0o700
	tempFilePattern       = ".installations-*.toml.tmp"
)

type Repository struct {
	path string
	mu   *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.InstallationRepository = (*Repository)(nil)

// NewRepository resolves the document path from cfg, falling back to
// <configDir>/installations.toml.
func NewRepository(cfg *viper.Viper, configDir string) (*Repository, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	cfg.SetDefault(installationsPathKey, filepath.Join(configDir, "installations.toml"))

	path := cfg.GetString(installationsPathKey)
	if path == "" {
		return nil, errors.New("installations path is empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve installations path: %w", err)
	}
	absPath = filepath.Clean(absPath)

	return &Repository{path: absPath, mu: lockForPath(absPath)}, nil
}

func (r *Repository) List(ctx context.Context) ([]domain.Installation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return nil, err
	}

	installations := make([]domain.Installation, 0, len(file.Installations))
	for _, entry := range file.Installations {
		installations = append(installations, fromSchema(entry))
	}

	return installations, nil
}

func (r *Repository) Get(ctx context.Context, id domain.InstallationID) (domain.Installation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Installation{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return domain.Installation{}, err
	}

	for _, entry := range file.Installations {
		if entry.ID == string(id) {
			return fromSchema(entry), nil
		}
	}

	return domain.Installation{}, domain.ErrInstallationNotFound
}

func (r *Repository) Save(ctx context.Context, installation domain.Installation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if installation.ID == "" {
		return errors.New("installation id is required")
	}
	if !installation.Loader.Valid() {
		return fmt.Errorf("unknown loader %q", installation.Loader)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	encoded := toSchema(installation)
	replaced := false
	for i := range file.Installations {
		if file.Installations[i].ID == encoded.ID {
			file.Installations[i] = encoded
			replaced = true
			break
		}
	}
	if !replaced {
		file.Installations = append(file.Installations, encoded)
	}

	return r.writeSchema(file)
}

func (r *Repository) Remove(ctx context.Context, id domain.InstallationID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	kept := file.Installations[:0]
	removed := false
	for _, entry := range file.Installations {
		if entry.ID == string(id) {
			removed = true
			continue
		}
		kept = append(kept, entry)
	}
	if !removed {
		return domain.ErrInstallationNotFound
	}
	file.Installations = kept

	return r.writeSchema(file)
}

func (r *Repository) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			file := fileSchema{}
			file.applyDefaults()
			return file, nil
		}
		return fileSchema{}, fmt.Errorf("read installations file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode installations file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func (r *Repository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(r.path), installationsDirMode); err != nil {
		return fmt.Errorf("create installations directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode installations file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp installations file: %w", err)
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
		return fmt.Errorf("write temp installations file: %w", err)
	}
	if err := tempFile.Chmod(installationsFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp installations file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp installations file: %w", err)
	}

	if err := os.Rename(tempName, r.path); err != nil {
		return fmt.Errorf("replace installations file: %w", err)
	}
	cleanup = false

	return nil
}

func toSchema(installation domain.Installation) installationSchema {
	return installationSchema{
		ID:         string(installation.ID),
		Name:       installation.Name,
		VersionRef: installation.VersionRef,
		Loader:     string(installation.Loader),
		ExtraArgs:  installation.ExtraArgs,
		Parameters: installation.Parameters,
		AssetDirs:  installation.AssetDirs,
		Stats: statsSchema{
			LaunchCount: installation.Stats.LaunchCount,
			LastPlayed:  formatTime(installation.Stats.LastPlayed),
		},
	}
}

func fromSchema(entry installationSchema) domain.Installation {
	return domain.Installation{
		ID:         domain.InstallationID(entry.ID),
		Name:       entry.Name,
		VersionRef: entry.VersionRef,
		Loader:     domain.LoaderKind(entry.Loader),
		ExtraArgs:  entry.ExtraArgs,
		Parameters: entry.Parameters,
		AssetDirs:  entry.AssetDirs,
		Stats: domain.UsageStats{
			LaunchCount: entry.Stats.LaunchCount,
			LastPlayed:  parseTime(entry.Stats.LastPlayed),
		},
	}
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
