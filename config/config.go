// Package config loads and validates the Settings tree that drives
// repository layout resolution: which directories a given (repository
// name, architecture, flavor) maps to for package files, source files,
// management JSON, and pool storage. It follows a YAML/JSON-by-extension
// loader with KnownFields-strict decoding, generalized from a single flat
// repository to a four-flavor, cross-referenced layout tree. Directory
// paths are used exactly as written in the file; relative paths are not
// resolved against the config file's location.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/etnz/repod/common"
	"github.com/etnz/repod/rerrors"
	"go.yaml.in/yaml/v3"
)

// Kind selects which of the three path families get_repo_path resolves.
type Kind int

const (
	KindPackage Kind = iota
	KindSource
	KindManagement
)

// Flavor is one of the four separately published views of a repository.
type Flavor string

const (
	FlavorStable  Flavor = "stable"
	FlavorDebug   Flavor = "debug"
	FlavorStaging Flavor = "staging"
	FlavorTesting Flavor = "testing"
)

// PackageRepo is one named repository within a Settings tree. Any of
// Architecture/ManagementRepo/PackagePool/SourcePool left empty inherits
// the corresponding Settings-level value.
type PackageRepo struct {
	Name          string                  `yaml:"name" json:"name"`
	Architecture  common.ArchitectureEnum `yaml:"architecture,omitempty" json:"architecture,omitempty"`
	ManagementRepo string                 `yaml:"management_repo,omitempty" json:"management_repo,omitempty"`
	PackagePool   string                  `yaml:"package_pool,omitempty" json:"package_pool,omitempty"`
	SourcePool    string                  `yaml:"source_pool,omitempty" json:"source_pool,omitempty"`
	Staging       string                  `yaml:"staging,omitempty" json:"staging,omitempty"`
	Testing       string                  `yaml:"testing,omitempty" json:"testing,omitempty"`
	Debug         string                  `yaml:"debug,omitempty" json:"debug,omitempty"`
}

// Settings is the top-level configuration tree.
type Settings struct {
	Architecture    common.ArchitectureEnum `yaml:"architecture,omitempty" json:"architecture,omitempty"`
	ManagementRepo  string                  `yaml:"management_repo,omitempty" json:"management_repo,omitempty"`
	PackagePool     string                  `yaml:"package_pool,omitempty" json:"package_pool,omitempty"`
	SourcePool      string                  `yaml:"source_pool,omitempty" json:"source_pool,omitempty"`
	PackageRepoBase string                  `yaml:"package_repo_base" json:"package_repo_base"`
	SourceRepoBase  string                  `yaml:"source_repo_base" json:"source_repo_base"`
	Repositories    []PackageRepo           `yaml:"repositories" json:"repositories"`

	filePath string
}

// Load reads and validates a Settings document from path, dispatching on
// extension between YAML and JSON.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rerrors.NewFileNotFoundError(path)
		}
		return nil, rerrors.NewFileError(path, err)
	}

	var s Settings
	if err := unmarshal(path, data, &s); err != nil {
		return nil, rerrors.NewFileParseError(path, 0, "invalid configuration: %v", err)
	}
	s.filePath = path

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func unmarshal(path string, data []byte, v interface{}) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		dec := yaml.NewDecoder(strings.NewReader(string(data)))
		dec.KnownFields(true)
		return dec.Decode(v)
	}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// resolvedRepo is a PackageRepo with every inherited field filled in.
type resolvedRepo struct {
	name           string
	architecture   common.ArchitectureEnum
	managementRepo string
	packagePool    string
	sourcePool     string
	staging        string
	testing        string
	debug          string
}

func (s *Settings) resolve(r PackageRepo) resolvedRepo {
	first := func(vals ...string) string {
		for _, v := range vals {
			if v != "" {
				return v
			}
		}
		return ""
	}
	arch := r.Architecture
	if arch == "" {
		arch = s.Architecture
	}
	return resolvedRepo{
		name:           r.Name,
		architecture:   arch,
		managementRepo: first(r.ManagementRepo, s.ManagementRepo),
		packagePool:    first(r.PackagePool, s.PackagePool),
		sourcePool:     first(r.SourcePool, s.SourcePool),
		staging:        r.Staging,
		testing:        r.Testing,
		debug:          r.Debug,
	}
}

// Validate runs the load-time layout checks: the four top-level
// directories are usable, no two layout paths are equal or an ancestor
// of another, every PackageRepo resolves its architecture and pools, and
// (name, architecture) pairs are globally unique.
func (s *Settings) Validate() error {
	if s.PackageRepoBase == "" {
		return rerrors.NewValidationError("package_repo_base", "must not be empty")
	}
	if s.SourceRepoBase == "" {
		return rerrors.NewValidationError("source_repo_base", "must not be empty")
	}
	for _, dir := range []string{s.PackageRepoBase, s.SourceRepoBase, s.ManagementRepo, s.PackagePool, s.SourcePool} {
		if dir == "" {
			continue
		}
		if err := checkWritableOrCreatable(dir); err != nil {
			return err
		}
	}

	seen := map[string]bool{}
	var paths []string
	addPath := func(field, p string) error {
		if p == "" {
			return nil
		}
		paths = append(paths, p)
		return nil
	}

	for i, r := range s.Repositories {
		if r.Name == "" {
			return rerrors.NewValidationError("name", "repository at index %d has no name", i)
		}
		resolved := s.resolve(r)
		if resolved.architecture == "" {
			return rerrors.NewValidationError("architecture", "repository %q has no resolvable architecture", r.Name)
		}
		if !resolved.architecture.Valid() {
			return rerrors.NewValidationError("architecture", "repository %q has unknown architecture %q", r.Name, resolved.architecture)
		}
		if resolved.managementRepo == "" {
			return rerrors.NewValidationError("management_repo", "repository %q has no resolvable management repo", r.Name)
		}
		if resolved.packagePool == "" {
			return rerrors.NewValidationError("package_pool", "repository %q has no resolvable package pool", r.Name)
		}
		if resolved.sourcePool == "" {
			return rerrors.NewValidationError("source_pool", "repository %q has no resolvable source pool", r.Name)
		}

		key := fmt.Sprintf("%s\x00%s", r.Name, resolved.architecture)
		if seen[key] {
			return rerrors.NewValidationError("name", "duplicate (name, architecture) pair: (%q, %q)", r.Name, resolved.architecture)
		}
		seen[key] = true

		components := []string{r.Name, resolved.staging, resolved.testing, resolved.debug}
		distinct := map[string]bool{}
		for _, c := range components {
			if c == "" {
				continue
			}
			if distinct[c] {
				return rerrors.NewValidationError("name", "repository %q has a non-distinct flavor path component %q", r.Name, c)
			}
			distinct[c] = true
		}

		for _, flavor := range []Flavor{FlavorStable, FlavorDebug, FlavorStaging, FlavorTesting} {
			for _, kind := range []Kind{KindPackage, KindSource, KindManagement} {
				p, err := s.GetRepoPath(kind, r.Name, resolved.architecture, flavor)
				if err != nil {
					continue
				}
				addPath("layout", p)
			}
		}
		if pp, err := s.poolPath(resolved, kindPackagePool); err == nil {
			addPath("package_pool", pp)
		}
		if sp, err := s.poolPath(resolved, kindSourcePool); err == nil {
			addPath("source_pool", sp)
		}
	}

	return checkNoOverlap(paths)
}

func checkWritableOrCreatable(dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	parent := filepath.Dir(dir)
	if _, err := os.Stat(parent); err != nil {
		return rerrors.NewValidationError("path", "neither %q nor its parent %q exists", dir, parent)
	}
	return nil
}

func checkNoOverlap(paths []string) error {
	cleaned := make([]string, len(paths))
	for i, p := range paths {
		cleaned[i] = filepath.Clean(p)
	}
	for i := range cleaned {
		for j := range cleaned {
			if i == j {
				continue
			}
			if cleaned[i] == cleaned[j] || isAncestor(cleaned[i], cleaned[j]) {
				return rerrors.NewValidationError("layout", "path %q and %q overlap", cleaned[i], cleaned[j])
			}
		}
	}
	return nil
}

func isAncestor(a, b string) bool {
	rel, err := filepath.Rel(a, b)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}

const (
	kindPackagePool = "package_pool"
	kindSourcePool  = "source_pool"
)

func (s *Settings) poolPath(r resolvedRepo, which string) (string, error) {
	switch which {
	case kindPackagePool:
		return filepath.Join(r.packagePool, r.name), nil
	case kindSourcePool:
		return filepath.Join(r.sourcePool, r.name), nil
	}
	return "", fmt.Errorf("unknown pool kind %q", which)
}

// flavorName returns the path component for a given flavor on a resolved
// repository: the repository's own configured name for stable, or the
// overridden debug/staging/testing name otherwise.
func flavorName(r resolvedRepo, flavor Flavor) (string, bool) {
	switch flavor {
	case FlavorStable:
		return r.name, true
	case FlavorDebug:
		if r.debug == "" {
			return "", false
		}
		return r.debug, true
	case FlavorStaging:
		if r.staging == "" {
			return "", false
		}
		return r.staging, true
	case FlavorTesting:
		if r.testing == "" {
			return "", false
		}
		return r.testing, true
	}
	return "", false
}

func (s *Settings) findRepo(name string, arch common.ArchitectureEnum) (resolvedRepo, error) {
	for i := range s.Repositories {
		r := s.Repositories[i]
		resolvedArch := r.Architecture
		if resolvedArch == "" {
			resolvedArch = s.Architecture
		}
		if r.Name == name && resolvedArch == arch {
			return s.resolve(r), nil
		}
	}
	return resolvedRepo{}, rerrors.NewValidationError("name", "no configured repository (%q, %q)", name, arch)
}

// PackagePoolPath returns the package pool directory for repository
// name/arch: where FilesToRepoDir stores a package's canonical copy
// before it is linked from a flavor view.
func (s *Settings) PackagePoolPath(name string, arch common.ArchitectureEnum) (string, error) {
	resolved, err := s.findRepo(name, arch)
	if err != nil {
		return "", err
	}
	return s.poolPath(resolved, kindPackagePool)
}

// SourcePoolPath returns the source pool directory for repository
// name/arch.
func (s *Settings) SourcePoolPath(name string, arch common.ArchitectureEnum) (string, error) {
	resolved, err := s.findRepo(name, arch)
	if err != nil {
		return "", err
	}
	return s.poolPath(resolved, kindSourcePool)
}

// GetRepoPath resolves one of the 4 flavor x 3 kind paths for repository
// name/arch deterministically. It returns an error if name/arch does not
// identify a configured repository or if the requested flavor is not
// configured (debug/staging/testing are optional).
func (s *Settings) GetRepoPath(kind Kind, name string, arch common.ArchitectureEnum, flavor Flavor) (string, error) {
	resolved, err := s.findRepo(name, arch)
	if err != nil {
		return "", err
	}

	flavorComponent, ok := flavorName(resolved, flavor)
	if !ok {
		return "", rerrors.NewValidationError("flavor", "repository %q has no %q flavor configured", name, flavor)
	}

	switch kind {
	case KindPackage:
		return filepath.Join(s.PackageRepoBase, flavorComponent, string(arch)), nil
	case KindSource:
		return filepath.Join(s.SourceRepoBase, flavorComponent, string(arch)), nil
	case KindManagement:
		return filepath.Join(resolved.managementRepo, string(arch), flavorComponent), nil
	}
	return "", fmt.Errorf("unknown kind %d", kind)
}
