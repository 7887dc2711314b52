// Package fingerprint computes the reproducibility hashes a build pins:
// one digest over the filtered source tree, one over the dependency lock
// file, and one over the toolchain identity. Two checkouts of the same
// source must fingerprint identically on any OS or filesystem, so file
// selection is allow-listed and hashing always folds in sorted relative-path
// order, never directory-iteration order.
package fingerprint

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/davidahmann/kiln/core/config"
	coreerrors "github.com/davidahmann/kiln/core/errors"
	"github.com/davidahmann/kiln/core/schema/v1/metadata"
)

// lockSentinel stands in for the lock-file digest when no Cargo.lock exists,
// so the fingerprint still distinguishes "no lock" from "empty lock".
const lockSentinel = "no-lockfile"

// licenseMarker is scanned for in the leading lines of each source file.
const licenseMarker = "SPDX-License-Identifier:"

// licenseScanLines bounds how far into a file the license scan reads.
const licenseScanLines = 5

// sourceExtensions is the allow-list for non-manifest files.
var sourceExtensions = map[string]bool{
	".rs": true,
}

// criticalFiles are always fingerprinted regardless of extension.
var criticalFiles = map[string]bool{
	"Cargo.toml":          true,
	"Cargo.lock":          true,
	"rust-toolchain.toml": true,
	"rust-toolchain":      true,
}

// Fingerprint pins the inputs of a build. All hashes are lowercase SHA-256
// hex. BuiltAt is wall-clock and excluded from reproducibility comparisons.
type Fingerprint struct {
	SourceTreeHash   string `json:"source_tree_hash"`
	ManifestLockHash string `json:"manifest_lock_hash"`
	ToolchainHash    string `json:"toolchain_hash"`
	BuiltAt          int64  `json:"built_at"`
}

// Compute walks the project tree and derives the full fingerprint for the
// given toolchain and contract identity. It reads files only; repeated calls
// over unchanged content return identical hash fields.
func Compute(projectRoot string, toolchain config.Toolchain, contract config.Contract) (*Fingerprint, error) {
	treeHash, err := SourceTreeHash(projectRoot)
	if err != nil {
		return nil, err
	}
	lockHash, err := lockFileHash(projectRoot)
	if err != nil {
		return nil, err
	}
	return &Fingerprint{
		SourceTreeHash:   treeHash,
		ManifestLockHash: lockHash,
		ToolchainHash:    ToolchainHash(toolchain, contract),
		BuiltAt:          time.Now().Unix(),
	}, nil
}

// SelectSources returns the fingerprintable files under projectRoot as sorted
// slash-separated relative paths: .rs sources plus the manifest, lock, and
// toolchain-pin files. Build outputs (target/, out/) and hidden directories
// are skipped.
func SelectSources(projectRoot string) ([]string, error) {
	var selected []string
	err := filepath.WalkDir(projectRoot, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(projectRoot, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if entry.IsDir() {
			if skipDir(entry.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") && !criticalFiles[name] {
			return nil
		}
		if criticalFiles[name] || sourceExtensions[filepath.Ext(name)] {
			selected = append(selected, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, coreerrors.Wrap(fmt.Errorf("walk project tree: %w", err), coreerrors.CategoryIOFailure, "source_walk_failed", "check that the project directory is readable", false)
	}
	sort.Strings(selected)
	return selected, nil
}

// SourceTreeHash digests the concatenated contents of the selected source
// files in sorted relative-path order.
func SourceTreeHash(projectRoot string) (string, error) {
	files, err := SelectSources(projectRoot)
	if err != nil {
		return "", err
	}
	hasher := sha256.New()
	for _, rel := range files {
		file, err := os.Open(filepath.Join(projectRoot, filepath.FromSlash(rel))) // #nosec G304 -- paths come from the walk above.
		if err != nil {
			return "", coreerrors.Wrap(fmt.Errorf("read source %s: %w", rel, err), coreerrors.CategoryIOFailure, "source_read_failed", "check file permissions under the project root", false)
		}
		_, copyErr := io.Copy(hasher, file)
		closeErr := file.Close()
		if copyErr != nil {
			return "", coreerrors.Wrap(fmt.Errorf("hash source %s: %w", rel, copyErr), coreerrors.CategoryIOFailure, "source_read_failed", "check file permissions under the project root", false)
		}
		if closeErr != nil {
			return "", fmt.Errorf("close source %s: %w", rel, closeErr)
		}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// ToolchainHash digests the toolchain channel together with the SDK tag and
// commit, so a build with a different compiler or SDK revision never matches.
func ToolchainHash(toolchain config.Toolchain, contract config.Contract) string {
	tag, commit := config.ParseSDKVersion(contract.SDKVersion)
	return HashBytes([]byte(toolchain.Channel + tag + commit))
}

func lockFileHash(projectRoot string) (string, error) {
	content, err := os.ReadFile(filepath.Join(projectRoot, "Cargo.lock")) // #nosec G304 -- fixed name under the project root.
	if os.IsNotExist(err) {
		return HashBytes([]byte(lockSentinel)), nil
	}
	if err != nil {
		return "", coreerrors.Wrap(fmt.Errorf("read Cargo.lock: %w", err), coreerrors.CategoryIOFailure, "lockfile_read_failed", "check file permissions under the project root", false)
	}
	return HashBytes(content), nil
}

// HashSourceFiles returns a per-file digest map over the same filtered file
// set the fingerprint uses, keyed by slash-separated relative path. Each
// entry records the file's SHA-256 and, when one is declared near the top of
// the file, its SPDX license identifier.
func HashSourceFiles(projectRoot string) (map[string]metadata.SourceFile, error) {
	files, err := SelectSources(projectRoot)
	if err != nil {
		return nil, err
	}
	hashed := make(map[string]metadata.SourceFile, len(files))
	for _, rel := range files {
		content, err := os.ReadFile(filepath.Join(projectRoot, filepath.FromSlash(rel))) // #nosec G304 -- paths come from the walk above.
		if err != nil {
			return nil, coreerrors.Wrap(fmt.Errorf("read source %s: %w", rel, err), coreerrors.CategoryIOFailure, "source_read_failed", "check file permissions under the project root", false)
		}
		hashed[rel] = metadata.SourceFile{
			Hash:    HashBytes(content),
			License: scanLicense(content),
		}
	}
	return hashed, nil
}

// HashBytes returns the lowercase SHA-256 hex digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashFile returns the lowercase SHA-256 hex digest of the file at path.
func HashFile(path string) (string, error) {
	file, err := os.Open(path) // #nosec G304 -- callers pass paths they already own.
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func skipDir(name string) bool {
	return name == "target" || name == "out" || strings.HasPrefix(name, ".")
}

func scanLicense(content []byte) string {
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	for line := 0; line < licenseScanLines && scanner.Scan(); line++ {
		text := scanner.Text()
		if idx := strings.Index(text, licenseMarker); idx >= 0 {
			license := strings.TrimSpace(text[idx+len(licenseMarker):])
			license = strings.TrimSuffix(license, "*/")
			return strings.TrimSpace(license)
		}
	}
	return ""
}
