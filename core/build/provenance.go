package build

import (
	"fmt"

	coreerrors "github.com/davidahmann/kiln/core/errors"
	"github.com/davidahmann/kiln/core/gitx"
	"github.com/davidahmann/kiln/core/schema/v1/metadata"
)

// GitSource builds git provenance from a repository status. A dirty status is
// rejected outright: git provenance claims the commit fully describes the
// built source, and a modified tree breaks that claim. A clean status always
// succeeds and carries the reported commit.
func GitSource(status *gitx.Status, projectPath string) (metadata.Source, error) {
	if status == nil {
		return metadata.Source{}, coreerrors.Wrap(
			fmt.Errorf("git provenance requires a repository status"),
			coreerrors.CategoryInvalidInput, "git_status_missing",
			"", false,
		)
	}
	if status.Dirty {
		return metadata.Source{}, coreerrors.Wrap(
			fmt.Errorf("repository has %d uncommitted changes", status.DirtyCount),
			coreerrors.CategoryInvalidInput, "dirty_worktree",
			"commit or stash your changes, or pass --allow-dirty to record archive provenance", false,
		)
	}
	if projectPath == "" {
		projectPath = "."
	}
	return metadata.Source{
		Type:        metadata.SourceTypeGit,
		Repository:  status.RemoteURL,
		Commit:      status.Commit,
		ProjectPath: projectPath,
	}, nil
}

// ArchiveSource builds archive provenance pointing at the source bundle
// written next to the artifacts.
func ArchiveSource(bundleName string) metadata.Source {
	return metadata.Source{
		Type:        metadata.SourceTypeArchive,
		ArchivePath: "./" + bundleName,
		ProjectPath: ".",
	}
}
