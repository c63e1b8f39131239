package launch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/emberlaunch/ember/internal/domain"
	"github.com/emberlaunch/ember/internal/version"
)

// BuildContext resolves every path a launch attempt needs from the game
// root. The result is treated as immutable for the duration of the attempt.
func BuildContext(installation domain.Installation, settings domain.Settings, account domain.Account) domain.LaunchContext {
	root := settings.GameRoot

	return domain.LaunchContext{
		Installation: installation,
		Settings:     settings,
		Account:      account,
		GameDir:      filepath.Join(root, "instances", string(installation.ID)),
		AssetsDir:    filepath.Join(root, "assets"),
		LibrariesDir: filepath.Join(root, "libraries"),
		NativesDir:   filepath.Join(root, "versions", installation.VersionRef, "natives"),
		VersionsDir:  filepath.Join(root, "versions"),
	}
}

// substitutionTable maps manifest template variables to their per-attempt
// values. Unknown variables survive expansion untouched.
func substitutionTable(lc domain.LaunchContext, manifest Manifest, classpath string) map[string]string {
	return map[string]string{
		"auth_player_name":    lc.Account.Name,
		"auth_uuid":           string(lc.Account.PlayerID),
		"auth_access_token":   lc.Account.Credentials.AccessToken,
		"user_type":           "msa",
		"version_name":        manifest.ID,
		"version_type":        "release",
		"game_directory":      lc.GameDir,
		"assets_root":         lc.AssetsDir,
		"assets_index_name":   manifest.AssetIndex.ID,
		"natives_directory":   lc.NativesDir,
		"library_directory":   lc.LibrariesDir,
		"classpath":           classpath,
		"classpath_separator": string(os.PathListSeparator),
		"launcher_name":       "ember",
		"launcher_version":    version.Version,
	}
}

// expandArguments flattens the rule-guarded argument list against the
// substitution table, keeping declared order.
func expandArguments(args []Argument, table map[string]string) []string {
	expanded := make([]string, 0, len(args))
	for _, arg := range args {
		if !rulesAllow(arg.Rules) {
			continue
		}
		for _, value := range arg.Values {
			expanded = append(expanded, expandTemplate(value, table))
		}
	}

	return expanded
}

func expandTemplate(value string, table map[string]string) string {
	return os.Expand(value, func(name string) string {
		if replacement, ok := table[name]; ok {
			return replacement
		}
		return "${" + name + "}"
	})
}

// memoryArgs turns the configured heap bounds into JVM flags. Zero bounds
// are omitted.
func memoryArgs(settings domain.Settings) []string {
	args := make([]string, 0, 2)
	if settings.MemoryMinMB > 0 {
		args = append(args, fmt.Sprintf("-Xms%dM", settings.MemoryMinMB))
	}
	if settings.MemoryMaxMB > 0 {
		args = append(args, fmt.Sprintf("-Xmx%dM", settings.MemoryMaxMB))
	}

	return args
}

// parameterArgs appends the installation's free-form overrides that use the
// long-option marker, sorted for a stable command line.
func parameterArgs(parameters map[string]string) []string {
	keys := make([]string, 0, len(parameters))
	for key := range parameters {
		if strings.HasPrefix(key, "--") {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	args := make([]string, 0, 2*len(keys))
	for _, key := range keys {
		args = append(args, key, parameters[key])
	}

	return args
}
