package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	coreerrors "github.com/davidahmann/kiln/core/errors"
)

// sdkDependency is the framework dependency that marks a project as a
// contract project. A manifest without it is rejected during resolution.
const sdkDependency = "fluentbase-sdk"

type parsedManifest struct {
	name    string
	version string
	libPath string
	// sdkDeclared is the version range declared in [dependencies], empty when
	// the dependency is a bare git reference.
	sdkDeclared string
	hasSDK      bool
}

type cargoManifest struct {
	Package      *cargoPackage  `toml:"package"`
	Lib          *cargoLib      `toml:"lib"`
	Dependencies map[string]any `toml:"dependencies"`
}

type cargoPackage struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

type cargoLib struct {
	Path string `toml:"path"`
}

type cargoLock struct {
	Package []cargoLockPackage `toml:"package"`
}

type cargoLockPackage struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Source  string `toml:"source"`
}

func loadManifest(path string) (*parsedManifest, error) {
	// #nosec G304 -- manifest path is derived from the validated project root.
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, coreerrors.Wrap(
			fmt.Errorf("read %s: %w", path, err),
			coreerrors.CategoryIOFailure, "manifest_read_failed", "", false,
		)
	}

	var manifest cargoManifest
	if err := toml.Unmarshal(content, &manifest); err != nil {
		return nil, coreerrors.Wrap(
			fmt.Errorf("parse %s: %w", path, err),
			coreerrors.CategoryInvalidInput, "manifest_invalid", "", false,
		)
	}
	if manifest.Package == nil {
		return nil, invalidManifest(path, "no [package] section")
	}
	if strings.TrimSpace(manifest.Package.Name) == "" {
		return nil, invalidManifest(path, "no package.name")
	}
	if strings.TrimSpace(manifest.Package.Version) == "" {
		return nil, invalidManifest(path, "no package.version")
	}

	parsed := &parsedManifest{
		name:    manifest.Package.Name,
		version: manifest.Package.Version,
	}
	if manifest.Lib != nil {
		parsed.libPath = strings.TrimSpace(manifest.Lib.Path)
	}

	declaration, ok := manifest.Dependencies[sdkDependency]
	if !ok {
		return nil, coreerrors.Wrap(
			fmt.Errorf("not a contract project: no %s dependency in %s", sdkDependency, path),
			coreerrors.CategoryDependencyMissing, "sdk_dependency_missing",
			"add the "+sdkDependency+" dependency to [dependencies]", false,
		)
	}
	parsed.hasSDK = true
	parsed.sdkDeclared = declaredVersion(declaration)
	return parsed, nil
}

func invalidManifest(path, reason string) error {
	return coreerrors.Wrap(
		fmt.Errorf("%s in %s", reason, path),
		coreerrors.CategoryInvalidInput, "manifest_invalid", "", false,
	)
}

// declaredVersion extracts the declared version range from a dependency entry,
// which is either a plain string or a table with a version key.
func declaredVersion(declaration any) string {
	switch value := declaration.(type) {
	case string:
		return strings.TrimSpace(value)
	case map[string]any:
		if version, ok := value["version"].(string); ok {
			return strings.TrimSpace(version)
		}
	}
	return ""
}

// resolveSDKVersion resolves the exact SDK version, preferring the lock file.
// A lock entry sourced from git carries the revision short hash as a suffix so
// two builds against different SDK commits never fingerprint identically. The
// manifest's declared range is only used when no lock file exists.
func resolveSDKVersion(projectRoot string, manifest *parsedManifest) (string, error) {
	lockPath := filepath.Join(projectRoot, "Cargo.lock")
	// #nosec G304 -- lock path is derived from the validated project root.
	content, err := os.ReadFile(lockPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", coreerrors.Wrap(
				fmt.Errorf("read %s: %w", lockPath, err),
				coreerrors.CategoryIOFailure, "lockfile_read_failed", "", false,
			)
		}
		if manifest.sdkDeclared != "" {
			return manifest.sdkDeclared, nil
		}
		return "", coreerrors.Wrap(
			fmt.Errorf("%s declares no version and Cargo.lock is absent", sdkDependency),
			coreerrors.CategoryDependencyMissing, "sdk_version_unresolved",
			"run 'cargo build' once to generate Cargo.lock", false,
		)
	}

	version, err := sdkVersionFromLock(content)
	if err != nil {
		return "", err
	}
	return version, nil
}

func sdkVersionFromLock(content []byte) (string, error) {
	var lock cargoLock
	if err := toml.Unmarshal(content, &lock); err != nil {
		return "", coreerrors.Wrap(
			fmt.Errorf("parse Cargo.lock: %w", err),
			coreerrors.CategoryInvalidInput, "lockfile_invalid", "", false,
		)
	}
	for _, pkg := range lock.Package {
		if pkg.Name != sdkDependency {
			continue
		}
		if strings.TrimSpace(pkg.Version) == "" {
			return "", coreerrors.Wrap(
				fmt.Errorf("%s found in Cargo.lock but has no version", sdkDependency),
				coreerrors.CategoryInvalidInput, "lockfile_invalid", "", false,
			)
		}
		if rev := gitRevisionFromSource(pkg.Source); rev != "" {
			return pkg.Version + "-" + rev, nil
		}
		return pkg.Version, nil
	}
	return "", coreerrors.Wrap(
		fmt.Errorf("%s not found in Cargo.lock", sdkDependency),
		coreerrors.CategoryDependencyMissing, "sdk_version_unresolved",
		"run 'cargo build' once to refresh Cargo.lock", false,
	)
}

// gitRevisionFromSource extracts the 8-character revision short hash from a
// lock source like "git+https://host/repo?branch=main#<rev>".
func gitRevisionFromSource(source string) string {
	if !strings.HasPrefix(source, "git+") {
		return ""
	}
	_, rev, ok := strings.Cut(source, "#")
	if !ok || rev == "" {
		return ""
	}
	if len(rev) > 8 {
		rev = rev[:8]
	}
	return rev
}

// findMainSource locates the contract's primary source file, honoring a
// custom [lib] path before the conventional locations.
func findMainSource(projectRoot, libPath string) string {
	if libPath != "" {
		candidate := filepath.Join(projectRoot, libPath)
		if fileExists(candidate) {
			return candidate
		}
		return ""
	}
	for _, relative := range []string{"src/lib.rs", "src/main.rs", "lib.rs", "main.rs"} {
		candidate := filepath.Join(projectRoot, filepath.FromSlash(relative))
		if fileExists(candidate) {
			return candidate
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
