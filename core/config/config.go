// Package config validates build requests and resolves contract and toolchain
// identity from project manifests. Resolution only reads files; nothing here
// shells out or mutates the project tree.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	coreerrors "github.com/davidahmann/kiln/core/errors"
)

// Target is the compilation target triple. It is fixed rather than
// configurable so that fingerprints never vary by host platform.
const Target = "wasm32-unknown-unknown"

// ManifestName is the primary project manifest file.
const ManifestName = "Cargo.toml"

// Config describes one build request. Values are passed explicitly through
// every call; core functions never consult ambient state.
type Config struct {
	ProjectRoot       string    `json:"project_root"`
	OutputDir         string    `json:"output_dir"`
	Profile           string    `json:"profile"`
	Features          []string  `json:"features,omitempty"`
	NoDefaultFeatures bool      `json:"no_default_features"`
	Locked            bool      `json:"locked"`
	Artifacts         Artifacts `json:"artifacts"`
	UseGitSource      bool      `json:"use_git_source"`
	AllowDirty        bool      `json:"allow_dirty"`
}

// Artifacts selects which generated outputs a build writes.
type Artifacts struct {
	GenerateABI       bool `json:"generate_abi"`
	GenerateInterface bool `json:"generate_interface"`
	GenerateMetadata  bool `json:"generate_metadata"`
	PrettyJSON        bool `json:"pretty_json"`
}

// Contract identifies the contract being built. SDKVersion is required for a
// valid build; its absence is a resolution failure, never a default.
type Contract struct {
	Name       string
	Version    string
	SDKVersion string
}

// Toolchain is the pinned compiler identity.
type Toolchain struct {
	Channel string
	Target  string
}

// Resolved is the output of Resolve: the normalized config plus the contract
// and toolchain descriptors derived from the project manifests.
type Resolved struct {
	Config    Config
	Contract  Contract
	Toolchain Toolchain
	// MainSource is the contract's primary source file, empty when none of
	// the conventional locations exist.
	MainSource string
}

// Default returns a build config for the given project root with the same
// defaults the CLI applies: release profile, all artifacts on, pretty JSON.
func Default(projectRoot string) Config {
	return Config{
		ProjectRoot:       projectRoot,
		OutputDir:         "out",
		Profile:           "release",
		NoDefaultFeatures: true,
		Artifacts: Artifacts{
			GenerateABI:       true,
			GenerateInterface: true,
			GenerateMetadata:  true,
			PrettyJSON:        true,
		},
	}
}

// Validate checks that the project root exists and carries a manifest. It runs
// before any compiler subprocess.
func (c Config) Validate() error {
	root := strings.TrimSpace(c.ProjectRoot)
	if root == "" {
		return coreerrors.Wrap(
			fmt.Errorf("project root is required"),
			coreerrors.CategoryInvalidInput, "project_root_missing",
			"pass the contract project directory", false,
		)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return coreerrors.Wrap(
			fmt.Errorf("project root does not exist: %s", root),
			coreerrors.CategoryInvalidInput, "project_root_missing",
			"pass an existing contract project directory", false,
		)
	}
	if _, err := os.Stat(filepath.Join(root, ManifestName)); err != nil {
		return coreerrors.Wrap(
			fmt.Errorf("no %s found in project root: %s", ManifestName, root),
			coreerrors.CategoryInvalidInput, "manifest_missing",
			"run from a directory containing Cargo.toml", false,
		)
	}
	return nil
}

// OutputDirectory returns the absolute artifact output directory.
func (c Config) OutputDirectory() string {
	if filepath.IsAbs(c.OutputDir) {
		return c.OutputDir
	}
	return filepath.Join(c.ProjectRoot, c.OutputDir)
}

// ProfileDir is the directory name cargo uses for the profile's build output.
// The debug profile is special-cased: cargo writes it under target/<t>/debug
// while every other profile uses its own name.
func (c Config) ProfileDir() string {
	if c.Profile == "dev" {
		return "debug"
	}
	return c.Profile
}

func (c *Config) normalize() error {
	root, err := filepath.Abs(strings.TrimSpace(c.ProjectRoot))
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}
	c.ProjectRoot = root
	if strings.TrimSpace(c.OutputDir) == "" {
		c.OutputDir = "out"
	}
	if strings.TrimSpace(c.Profile) == "" {
		c.Profile = "release"
	}
	c.Features = normalizeFeatures(c.Features)
	return nil
}

// normalizeFeatures sorts and de-duplicates the feature set so that two
// requests naming the same features in different order build identically.
func normalizeFeatures(features []string) []string {
	if len(features) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(features))
	cleaned := make([]string, 0, len(features))
	for _, feature := range features {
		trimmed := strings.TrimSpace(feature)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		cleaned = append(cleaned, trimmed)
	}
	if len(cleaned) == 0 {
		return nil
	}
	sort.Strings(cleaned)
	return cleaned
}

// Resolve validates the request and derives the contract and toolchain
// descriptors from Cargo.toml, Cargo.lock, and the toolchain pin file.
func Resolve(cfg Config) (*Resolved, error) {
	if err := cfg.normalize(); err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CategoryInvalidInput, "project_root_invalid", "", false)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	manifest, err := loadManifest(filepath.Join(cfg.ProjectRoot, ManifestName))
	if err != nil {
		return nil, err
	}

	sdkVersion, err := resolveSDKVersion(cfg.ProjectRoot, manifest)
	if err != nil {
		return nil, err
	}

	channel, err := ResolveToolchainChannel(cfg.ProjectRoot)
	if err != nil {
		return nil, err
	}

	return &Resolved{
		Config: cfg,
		Contract: Contract{
			Name:       manifest.name,
			Version:    manifest.version,
			SDKVersion: sdkVersion,
		},
		Toolchain: Toolchain{
			Channel: channel,
			Target:  Target,
		},
		MainSource: findMainSource(cfg.ProjectRoot, manifest.libPath),
	}, nil
}
