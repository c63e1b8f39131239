// Package launch resolves version manifests into spawnable commands, one
// strategy per loader variant.
package launch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

var (
	ErrManifestMissing  = errors.New("version manifest missing")
	ErrArtifactMissing  = errors.New("library artifact missing")
	ErrMainClassMissing = errors.New("manifest declares no main class")
)

// maxInheritDepth bounds inheritsFrom chains. Loader manifests inherit from
// exactly one vanilla manifest in practice; anything deeper is a broken or
// cyclic install.
const maxInheritDepth = 4

// Manifest is the on-disk version document: the library list, the entry
// point and the two templated argument lists.
type Manifest struct {
	ID           string      `json:"id"`
	InheritsFrom string      `json:"inheritsFrom,omitempty"`
	MainClass    string      `json:"mainClass"`
	AssetIndex   AssetIndex  `json:"assetIndex"`
	Libraries    []Library   `json:"libraries"`
	Arguments    ArgumentSet `json:"arguments"`
}

type AssetIndex struct {
	ID string `json:"id"`
}

type Library struct {
	Name      string    `json:"name"`
	Downloads Downloads `json:"downloads"`
	Rules     []Rule    `json:"rules,omitempty"`
}

type Downloads struct {
	Artifact Artifact `json:"artifact"`
}

type Artifact struct {
	Path string `json:"path"`
}

type ArgumentSet struct {
	JVM  []Argument `json:"jvm"`
	Game []Argument `json:"game"`
}

// Argument is either a plain string or an object carrying rule-guarded
// values. Both shapes appear in the same list.
type Argument struct {
	Values []string
	Rules  []Rule
}

func (a *Argument) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		a.Values = []string{plain}
		a.Rules = nil
		return nil
	}

	var guarded struct {
		Rules []Rule          `json:"rules"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &guarded); err != nil {
		return fmt.Errorf("decode argument: %w", err)
	}

	var single string
	if err := json.Unmarshal(guarded.Value, &single); err == nil {
		a.Values = []string{single}
		a.Rules = guarded.Rules
		return nil
	}

	var many []string
	if err := json.Unmarshal(guarded.Value, &many); err != nil {
		return fmt.Errorf("decode argument value: %w", err)
	}
	a.Values = many
	a.Rules = guarded.Rules

	return nil
}

type Rule struct {
	Action string `json:"action"`
	OS     RuleOS `json:"os,omitempty"`
}

type RuleOS struct {
	Name string `json:"name,omitempty"`
	Arch string `json:"arch,omitempty"`
}

func (r Rule) matches() bool {
	if r.OS.Name != "" && r.OS.Name != hostOSName() {
		return false
	}
	if r.OS.Arch != "" && r.OS.Arch != runtime.GOARCH {
		return false
	}
	return true
}

// rulesAllow evaluates a rule list against the host. No rules means allowed;
// otherwise the last matching rule decides.
func rulesAllow(rules []Rule) bool {
	if len(rules) == 0 {
		return true
	}

	allowed := false
	for _, rule := range rules {
		if rule.matches() {
			allowed = rule.Action == "allow"
		}
	}

	return allowed
}

func hostOSName() string {
	if runtime.GOOS == "darwin" {
		return "osx"
	}
	return runtime.GOOS
}

// LoadManifest reads versions/<ref>/<ref>.json and resolves inheritsFrom
// chains so callers always see a complete document.
func LoadManifest(versionsDir, versionRef string) (Manifest, error) {
	return loadManifest(versionsDir, versionRef, maxInheritDepth)
}

func loadManifest(versionsDir, versionRef string, depth int) (Manifest, error) {
	if depth == 0 {
		return Manifest{}, fmt.Errorf("resolve %q: inheritsFrom chain too deep", versionRef)
	}

	path := filepath.Join(versionsDir, versionRef, versionRef+".json")

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Manifest{}, fmt.Errorf("%w: %s", ErrManifestMissing, path)
		}
		return Manifest{}, fmt.Errorf("open manifest %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	var manifest Manifest
	if err := json.NewDecoder(io.LimitReader(file, 8<<20)).Decode(&manifest); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	if manifest.ID == "" {
		manifest.ID = versionRef
	}

	if manifest.InheritsFrom == "" {
		return manifest, nil
	}

	parent, err := loadManifest(versionsDir, manifest.InheritsFrom, depth-1)
	if err != nil {
		return Manifest{}, err
	}

	return mergeManifests(parent, manifest), nil
}

// mergeManifests overlays a loader manifest on its vanilla parent. The child
// wins the entry point and keeps its libraries first since modded loaders
// are classpath-order sensitive.
func mergeManifests(parent, child Manifest) Manifest {
	merged := child
	merged.InheritsFrom = ""

	if merged.MainClass == "" {
		merged.MainClass = parent.MainClass
	}
	if merged.AssetIndex.ID == "" {
		merged.AssetIndex = parent.AssetIndex
	}

	merged.Libraries = append(append([]Library{}, child.Libraries...), parent.Libraries...)
	merged.Arguments.JVM = append(append([]Argument{}, parent.Arguments.JVM...), child.Arguments.JVM...)
	merged.Arguments.Game = append(append([]Argument{}, parent.Arguments.Game...), child.Arguments.Game...)

	return merged
}

// mavenPath converts a group:artifact:version coordinate into the repository
// layout path. Loader manifests frequently carry a coordinate but no
// explicit artifact path.
func mavenPath(coordinate string) (string, error) {
	parts := strings.Split(coordinate, ":")
	if len(parts) < 3 {
		return "", fmt.Errorf("malformed library coordinate %q", coordinate)
	}

	group := strings.ReplaceAll(parts[0], ".", "/")
	artifact := parts[1]
	version := parts[2]

	fileName := artifact + "-" + version
	if len(parts) > 3 {
		fileName += "-" + parts[3]
	}

	return group + "/" + artifact + "/" + version + "/" + fileName + ".jar", nil
}
