package domain

import "time"

type InstallationID string

// LoaderKind enumerates the supported launch variants. The set is closed;
// strategies dispatch over it at build time.
type LoaderKind string

const (
	LoaderVanilla LoaderKind = "vanilla"
	LoaderFabric  LoaderKind = "fabric"
	LoaderQuilt   LoaderKind = "quilt"
	LoaderForge   LoaderKind = "forge"
)

func (k LoaderKind) Valid() bool {
	switch k {
	case LoaderVanilla, LoaderFabric, LoaderQuilt, LoaderForge:
		return true
	}
	return false
}

// Installation is a named, user-configured game configuration. It is owned
// by the repository that persists it; launch contexts reference it but never
// mutate it.
type Installation struct {
	ID         InstallationID
	Name       string
	VersionRef string
	Loader     LoaderKind
	// ExtraArgs are prepended verbatim to the resolved JVM argument list.
	ExtraArgs []string
	// Parameters are free-form overrides. Keys starting with "--" are
	// appended to the game arguments as flag/value pairs.
	Parameters map[string]string
	// AssetDirs are dedicated asset folders mounted into the game directory
	// by the symlink collaborator before launch. Empty means no-op.
	AssetDirs []string
	Stats     UsageStats
}

type UsageStats struct {
	LaunchCount int64
	LastPlayed  time.Time
}
