package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	coreerrors "github.com/davidahmann/kiln/core/errors"
)

// Extract unpacks a bundle produced by Create into dest, creating it if
// needed. Only regular file entries are honored; entries whose paths would
// escape dest are rejected.
func Extract(archivePath, dest string) error {
	if err := os.MkdirAll(dest, 0o750); err != nil {
		return coreerrors.Wrap(fmt.Errorf("create extraction directory: %w", err), coreerrors.CategoryIOFailure, "archive_extract_failed", "check permissions on the destination", false)
	}
	file, err := os.Open(archivePath) // #nosec G304 -- caller-chosen archive path.
	if err != nil {
		return coreerrors.Wrap(fmt.Errorf("open archive %s: %w", archivePath, err), coreerrors.CategoryIOFailure, "archive_open_failed", "check that the archive path exists", false)
	}
	defer func() { _ = file.Close() }()

	switch {
	case strings.HasSuffix(archivePath, ".tar.gz"), strings.HasSuffix(archivePath, ".tgz"):
		err = extractTarball(file, dest)
	case strings.HasSuffix(archivePath, ".zip"):
		err = extractZip(file, dest)
	default:
		return coreerrors.Wrap(fmt.Errorf("unhandled archive type %s", archivePath), coreerrors.CategoryInvalidInput, "archive_format_invalid", "use a .tar.gz or .zip bundle", false)
	}
	if err != nil {
		return coreerrors.Wrap(fmt.Errorf("extract %s: %w", archivePath, err), coreerrors.CategoryIOFailure, "archive_extract_failed", "the archive may be corrupt; re-create it from source", false)
	}
	return nil
}

func extractTarball(reader io.Reader, dest string) error {
	gzr, err := gzip.NewReader(reader)
	if err != nil {
		return err
	}
	defer func() { _ = gzr.Close() }()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		if err := extractFile(header.Name, tr, dest); err != nil {
			return err
		}
	}
}

func extractZip(file *os.File, dest string) error {
	stat, err := file.Stat()
	if err != nil {
		return err
	}
	zr, err := zip.NewReader(file, stat.Size())
	if err != nil {
		return err
	}
	for _, entry := range zr.File {
		if !entry.Mode().IsRegular() {
			continue
		}
		data, err := entry.Open()
		if err != nil {
			return err
		}
		err = extractFile(entry.Name, data, dest)
		_ = data.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractFile(name string, data io.Reader, dest string) error {
	target := filepath.Join(dest, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return fmt.Errorf("path %q escapes archive destination", name)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, entryMode) // #nosec G304 -- escape check above.
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, data); err != nil { // #nosec G110 -- bundles are small source trees.
		_ = out.Close()
		_ = os.Remove(target)
		return err
	}
	return out.Close()
}
