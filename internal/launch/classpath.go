package launch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveClasspath walks the manifest's libraries in declared order and
// appends the version archive last. Every entry is stat-checked; a missing
// file fails the whole resolution rather than launching a partial classpath.
func ResolveClasspath(manifest Manifest, librariesDir, versionsDir string) (string, error) {
	entries := make([]string, 0, len(manifest.Libraries)+1)
	seen := make(map[string]struct{}, len(manifest.Libraries)+1)

	for _, library := range manifest.Libraries {
		if !rulesAllow(library.Rules) {
			continue
		}

		relPath := library.Downloads.Artifact.Path
		if relPath == "" {
			if library.Name == "" {
				continue
			}
			derived, err := mavenPath(library.Name)
			if err != nil {
				return "", err
			}
			relPath = derived
		}

		absPath := filepath.Join(librariesDir, filepath.FromSlash(relPath))
		if _, ok := seen[absPath]; ok {
			continue
		}
		seen[absPath] = struct{}{}

		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("%w: %s", ErrArtifactMissing, absPath)
		}
		entries = append(entries, absPath)
	}

	versionJar := filepath.Join(versionsDir, manifest.ID, manifest.ID+".jar")
	if _, err := os.Stat(versionJar); err != nil {
		return "", fmt.Errorf("%w: %s", ErrArtifactMissing, versionJar)
	}
	entries = append(entries, versionJar)

	return strings.Join(entries, string(os.PathListSeparator)), nil
}
