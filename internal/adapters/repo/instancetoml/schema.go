package instancetoml

import "fmt"

const currentSchemaVersion = 1

type fileSchema struct {
	Version       int                  `toml:"version"`
	Installations []installationSchema `toml:"installations"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported installations schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type installationSchema struct {
	ID         string            `toml:"id"`
	Name       string            `toml:"name"`
	VersionRef string            `toml:"version_ref"`
	Loader     string            `toml:"loader"`
	ExtraArgs  []string          `toml:"extra_args,omitempty"`
	Parameters map[string]string `toml:"parameters,omitempty"`
	AssetDirs  []string          `toml:"asset_dirs,omitempty"`
	Stats      statsSchema       `toml:"stats,omitempty"`
}

type statsSchema struct {
	LaunchCount int64  `toml:"launch_count"`
	LastPlayed  string `toml:"last_played,omitempty"`
}
