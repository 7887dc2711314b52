// Package archive packages a contract's source files into a portable bundle
// for off-line re-verification. Entries are written in ascending sorted
// relative-path order with normalized metadata (fixed timestamp, fixed mode,
// no owner), so the same file set and options always produce the same
// archive bytes and therefore the same content hash.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/flate"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gitignore "github.com/sabhiram/go-gitignore"

	coreerrors "github.com/davidahmann/kiln/core/errors"
	"github.com/davidahmann/kiln/core/fingerprint"
)

// Format selects the bundle container.
type Format string

const (
	FormatTarGz Format = "tar.gz"
	FormatZip   Format = "zip"
)

// DefaultCompressionLevel balances size against archive creation time.
const DefaultCompressionLevel = 6

// archiveEpoch is the fixed timestamp stamped on every entry. It sits inside
// the representable range of both tar and zip containers.
var archiveEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// entryMode is the normalized permission recorded for every archived file.
const entryMode = 0o644

// criticalFiles are bundled whenever present; the manifest itself is
// mandatory. Everything else must pass the source-extension filter.
var criticalFiles = []string{"Cargo.toml", "Cargo.lock", "rust-toolchain.toml", "rust-toolchain"}

// ParseFormat maps a config string onto a Format.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "tar.gz", "tgz":
		return FormatTarGz, nil
	case "zip":
		return FormatZip, nil
	default:
		return "", coreerrors.Wrap(fmt.Errorf("unknown archive format %q", value), coreerrors.CategoryInvalidInput, "archive_format_invalid", "use tar.gz or zip", false)
	}
}

// Extension returns the file suffix conventionally used for the format.
func (f Format) Extension() string {
	if f == FormatZip {
		return "zip"
	}
	return "tar.gz"
}

// Options control file selection and the byte layout of the bundle. They are
// explicit inputs rather than ambient defaults because compression level and
// format change the archive bytes and therefore its identifying hash.
type Options struct {
	Format Format
	// CompressionLevel ranges 0 (store) to 9 (maximum).
	CompressionLevel int
	// OnlyCompilationFiles restricts the bundle to Sources when provided.
	OnlyCompilationFiles bool
	// RespectIgnoreRules honors a .gitignore in the project root.
	RespectIgnoreRules bool
	// Sources lists the slash-separated relative paths recorded during
	// compilation. Ignored unless OnlyCompilationFiles is set.
	Sources []string
}

// DefaultOptions mirrors what the CLI applies when no flags override it.
func DefaultOptions() Options {
	return Options{
		Format:               FormatTarGz,
		CompressionLevel:     DefaultCompressionLevel,
		OnlyCompilationFiles: true,
		RespectIgnoreRules:   true,
	}
}

// Info describes a written bundle.
type Info struct {
	Path string `json:"path"`
	// Hash is the SHA-256 of the archive file itself.
	Hash      string `json:"hash"`
	Size      int64  `json:"size"`
	FileCount int    `json:"file_count"`
	// ManifestPath locates Cargo.toml inside the bundle so a verifier knows
	// where the project root sits after extraction.
	ManifestPath string `json:"manifest_path"`
}

// Create selects the project's source files and writes them to outputPath in
// the requested format. It fails rather than produce an empty or
// manifest-less bundle: a non-reproducible archive is worse than none.
func Create(projectRoot, outputPath string, opts Options) (info *Info, err error) {
	if opts.CompressionLevel < 0 || opts.CompressionLevel > 9 {
		return nil, coreerrors.Wrap(fmt.Errorf("compression level %d out of range", opts.CompressionLevel), coreerrors.CategoryInvalidInput, "compression_level_invalid", "use a level between 0 and 9", false)
	}
	files, err := selectFiles(projectRoot, opts)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, coreerrors.Wrap(errors.New("no source files found to archive"), coreerrors.CategoryInvalidInput, "archive_empty", "check that the project contains .rs sources and a Cargo.toml", false)
	}
	manifestPath := ""
	for _, rel := range files {
		if filepath.Base(rel) == "Cargo.toml" {
			manifestPath = rel
			break
		}
	}
	if manifestPath == "" {
		return nil, coreerrors.Wrap(errors.New("Cargo.toml not found in project root"), coreerrors.CategoryInvalidInput, "archive_manifest_missing", "run from the contract project root or pass the project path explicitly", false)
	}

	if parent := filepath.Dir(outputPath); parent != "" {
		if err := os.MkdirAll(parent, 0o750); err != nil {
			return nil, coreerrors.Wrap(fmt.Errorf("create archive directory: %w", err), coreerrors.CategoryIOFailure, "archive_write_failed", "check permissions on the output directory", false)
		}
	}
	out, err := os.Create(outputPath) // #nosec G304 -- caller-chosen output path.
	if err != nil {
		return nil, coreerrors.Wrap(fmt.Errorf("create archive %s: %w", outputPath, err), coreerrors.CategoryIOFailure, "archive_write_failed", "check permissions on the output directory", false)
	}
	defer func() {
		closeErr := out.Close()
		if err == nil && closeErr != nil {
			err = coreerrors.Wrap(fmt.Errorf("close archive: %w", closeErr), coreerrors.CategoryIOFailure, "archive_write_failed", "check free space on the output volume", false)
		}
		// Remove the half-written archive on failure.
		if err != nil {
			_ = os.Remove(outputPath)
			info = nil
		}
	}()

	switch opts.Format {
	case FormatZip:
		err = writeZip(out, projectRoot, files, opts.CompressionLevel)
	default:
		err = writeTarGz(out, projectRoot, files, opts.CompressionLevel)
	}
	if err != nil {
		return nil, err
	}
	if err = out.Sync(); err != nil {
		return nil, coreerrors.Wrap(fmt.Errorf("sync archive: %w", err), coreerrors.CategoryIOFailure, "archive_write_failed", "check free space on the output volume", false)
	}

	stat, err := out.Stat()
	if err != nil {
		return nil, coreerrors.Wrap(fmt.Errorf("stat archive: %w", err), coreerrors.CategoryIOFailure, "archive_write_failed", "check the output path", false)
	}
	hash, err := fingerprint.HashFile(outputPath)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CategoryIOFailure, "archive_hash_failed", "check that the archive file is readable", false)
	}
	return &Info{
		Path:         outputPath,
		Hash:         hash,
		Size:         stat.Size(),
		FileCount:    len(files),
		ManifestPath: manifestPath,
	}, nil
}

// selectFiles returns the sorted, de-duplicated relative paths to bundle.
func selectFiles(projectRoot string, opts Options) ([]string, error) {
	selected := map[string]bool{}

	if opts.OnlyCompilationFiles && len(opts.Sources) > 0 {
		for _, rel := range opts.Sources {
			rel = filepath.ToSlash(filepath.Clean(rel))
			full := filepath.Join(projectRoot, filepath.FromSlash(rel))
			if validSourceFile(rel) && fileExists(full) {
				selected[rel] = true
			}
		}
	} else {
		var matcher *gitignore.GitIgnore
		if opts.RespectIgnoreRules {
			if ignorePath := filepath.Join(projectRoot, ".gitignore"); fileExists(ignorePath) {
				compiled, err := gitignore.CompileIgnoreFile(ignorePath)
				if err != nil {
					return nil, coreerrors.Wrap(fmt.Errorf("parse .gitignore: %w", err), coreerrors.CategoryInvalidInput, "gitignore_invalid", "fix or remove the project .gitignore", false)
				}
				matcher = compiled
			}
		}
		walkErr := filepath.WalkDir(projectRoot, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, relErr := filepath.Rel(projectRoot, path)
			if relErr != nil {
				return relErr
			}
			if rel == "." {
				return nil
			}
			rel = filepath.ToSlash(rel)
			if entry.IsDir() {
				if skipDir(entry.Name()) || (matcher != nil && matcher.MatchesPath(rel+"/")) {
					return fs.SkipDir
				}
				return nil
			}
			if !entry.Type().IsRegular() {
				return nil
			}
			if matcher != nil && matcher.MatchesPath(rel) {
				return nil
			}
			if validSourceFile(rel) {
				selected[rel] = true
			}
			return nil
		})
		if walkErr != nil {
			return nil, coreerrors.Wrap(fmt.Errorf("walk project tree: %w", walkErr), coreerrors.CategoryIOFailure, "source_walk_failed", "check that the project directory is readable", false)
		}
	}

	// Critical files ride along regardless of the selection mode.
	for _, name := range criticalFiles {
		if fileExists(filepath.Join(projectRoot, name)) {
			selected[name] = true
		}
	}

	files := make([]string, 0, len(selected))
	for rel := range selected {
		files = append(files, rel)
	}
	sort.Strings(files)
	return files, nil
}

func validSourceFile(rel string) bool {
	base := filepath.Base(rel)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if filepath.Ext(base) == ".rs" {
		return true
	}
	for _, name := range criticalFiles {
		if base == name {
			return true
		}
	}
	return false
}

func skipDir(name string) bool {
	return name == "target" || name == "out" || strings.HasPrefix(name, ".")
}

func writeTarGz(out io.Writer, projectRoot string, files []string, level int) error {
	gzw, err := gzip.NewWriterLevel(out, level)
	if err != nil {
		return coreerrors.Wrap(fmt.Errorf("init gzip: %w", err), coreerrors.CategoryInternalFailure, "archive_write_failed", "", false)
	}
	tw := tar.NewWriter(gzw)
	for _, rel := range files {
		content, err := os.ReadFile(filepath.Join(projectRoot, filepath.FromSlash(rel))) // #nosec G304 -- paths come from the selection walk.
		if err != nil {
			return coreerrors.Wrap(fmt.Errorf("read %s: %w", rel, err), coreerrors.CategoryIOFailure, "source_read_failed", "check file permissions under the project root", false)
		}
		header := &tar.Header{
			Name:    rel,
			Mode:    entryMode,
			Size:    int64(len(content)),
			ModTime: archiveEpoch,
		}
		if err := tw.WriteHeader(header); err != nil {
			return coreerrors.Wrap(fmt.Errorf("write tar header %s: %w", rel, err), coreerrors.CategoryIOFailure, "archive_write_failed", "", false)
		}
		if _, err := tw.Write(content); err != nil {
			return coreerrors.Wrap(fmt.Errorf("write tar entry %s: %w", rel, err), coreerrors.CategoryIOFailure, "archive_write_failed", "check free space on the output volume", false)
		}
	}
	if err := tw.Close(); err != nil {
		return coreerrors.Wrap(fmt.Errorf("finalize tar: %w", err), coreerrors.CategoryIOFailure, "archive_write_failed", "", false)
	}
	if err := gzw.Close(); err != nil {
		return coreerrors.Wrap(fmt.Errorf("finish compression: %w", err), coreerrors.CategoryIOFailure, "archive_write_failed", "", false)
	}
	return nil
}

func writeZip(out io.Writer, projectRoot string, files []string, level int) error {
	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, level)
	})
	for _, rel := range files {
		content, err := os.ReadFile(filepath.Join(projectRoot, filepath.FromSlash(rel))) // #nosec G304 -- paths come from the selection walk.
		if err != nil {
			return coreerrors.Wrap(fmt.Errorf("read %s: %w", rel, err), coreerrors.CategoryIOFailure, "source_read_failed", "check file permissions under the project root", false)
		}
		header := &zip.FileHeader{
			Name:     rel,
			Method:   zip.Deflate,
			Modified: archiveEpoch,
		}
		header.SetMode(entryMode)
		writer, err := zw.CreateHeader(header)
		if err != nil {
			return coreerrors.Wrap(fmt.Errorf("write zip header %s: %w", rel, err), coreerrors.CategoryIOFailure, "archive_write_failed", "", false)
		}
		if _, err := writer.Write(content); err != nil {
			return coreerrors.Wrap(fmt.Errorf("write zip entry %s: %w", rel, err), coreerrors.CategoryIOFailure, "archive_write_failed", "check free space on the output volume", false)
		}
	}
	if err := zw.Close(); err != nil {
		return coreerrors.Wrap(fmt.Errorf("finalize zip: %w", err), coreerrors.CategoryIOFailure, "archive_write_failed", "", false)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
