// Package gitx reports repository state by shelling out to the git CLI. The
// build orchestrator uses it to decide whether a build can carry git
// provenance; machines without git (or builds outside a working tree) degrade
// to archive provenance instead of failing.
package gitx

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultTimeout bounds each git invocation.
const DefaultTimeout = 5 * time.Second

// Status is a snapshot of the working tree surrounding a project directory.
type Status struct {
	// Root is the absolute path reported by rev-parse --show-toplevel.
	Root string
	// RemoteURL is the origin remote rewritten to a canonical https form
	// with credentials stripped. Empty when the repository has no origin.
	RemoteURL string
	// Commit is the full HEAD commit hash.
	Commit string
	// ShortCommit is the first seven characters of Commit.
	ShortCommit string
	// Branch is the abbreviated ref name, or "HEAD" when detached.
	Branch string
	// Dirty reports whether the working tree has uncommitted changes.
	Dirty bool
	// DirtyCount is the number of paths git status reports as changed.
	DirtyCount int
}

// CLI queries repository state with the git binary.
type CLI struct {
	// Timeout bounds each git subprocess. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Status returns the repository snapshot for the working tree containing dir.
// It returns (nil, nil) when dir is not inside a git working tree, when git
// is not installed, or when the repository has no commits yet: none of those
// states can pin a commit, so callers fall back to archive provenance.
func (c CLI) Status(dir string) (*Status, error) {
	root, err := c.run(dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, nil
	}
	commit, err := c.run(dir, "rev-parse", "HEAD")
	if err != nil {
		// A freshly initialized repository has no HEAD to resolve.
		return nil, nil
	}
	branch, err := c.run(dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("resolve branch: %w", err)
	}
	porcelain, err := c.run(dir, "status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("read worktree status: %w", err)
	}
	dirtyCount := 0
	for _, line := range strings.Split(porcelain, "\n") {
		if strings.TrimSpace(line) != "" {
			dirtyCount++
		}
	}
	// The origin remote is optional; local-only repositories simply omit it.
	remote, _ := c.run(dir, "remote", "get-url", "origin")

	status := &Status{
		Root:       filepath.Clean(root),
		RemoteURL:  NormalizeRemoteURL(remote),
		Commit:     commit,
		Branch:     branch,
		Dirty:      dirtyCount > 0,
		DirtyCount: dirtyCount,
	}
	if len(commit) >= 7 {
		status.ShortCommit = commit[:7]
	} else {
		status.ShortCommit = commit
	}
	return status, nil
}

func (c CLI) run(dir string, args ...string) (string, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	full := append([]string{"-C", dir}, args...)
	command := exec.CommandContext(ctx, "git", full...) // #nosec G204 -- fixed binary, caller-controlled repo path only.
	output, err := command.Output()
	if ctx.Err() != nil {
		return "", fmt.Errorf("git %s timed out after %s", args[0], timeout)
	}
	if err != nil {
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return strings.TrimSpace(string(output)), nil
}

// Detect is shorthand for CLI{}.Status with the default timeout.
func Detect(dir string) (*Status, error) {
	return CLI{}.Status(dir)
}

// ProjectPath returns dir relative to the repository root in forward-slash
// form, "." when they are the same directory. Metadata documents embed this
// so a verifier can locate the project inside a fresh clone.
func ProjectPath(root, dir string) (string, error) {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(dir))
	if err != nil {
		return "", fmt.Errorf("project path outside repository root: %w", err)
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("project path %s escapes repository root %s", dir, root)
	}
	return filepath.ToSlash(rel), nil
}

// NormalizeRemoteURL rewrites a git remote to a canonical https form:
// scp-style and ssh:// remotes become https://, userinfo is stripped, and a
// trailing .git suffix is removed. Unrecognized forms pass through trimmed.
func NormalizeRemoteURL(remote string) string {
	trimmed := strings.TrimSpace(remote)
	if trimmed == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(trimmed, "ssh://"); ok {
		trimmed = rest
		if host, path, found := strings.Cut(trimmed, "/"); found {
			trimmed = stripUserinfo(host) + "/" + path
		}
		return "https://" + strings.TrimSuffix(trimmed, ".git")
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		scheme, rest, _ := strings.Cut(trimmed, "://")
		if host, path, found := strings.Cut(rest, "/"); found {
			rest = stripUserinfo(host) + "/" + path
		}
		return scheme + "://" + strings.TrimSuffix(rest, ".git")
	}
	// scp-style: git@host:org/repo.git
	if at := strings.Index(trimmed, "@"); at >= 0 && !strings.Contains(trimmed[:at], "/") {
		hostAndPath := trimmed[at+1:]
		if host, path, found := strings.Cut(hostAndPath, ":"); found {
			return "https://" + host + "/" + strings.TrimSuffix(path, ".git")
		}
	}
	return strings.TrimSuffix(trimmed, ".git")
}

func stripUserinfo(host string) string {
	if at := strings.LastIndex(host, "@"); at >= 0 {
		return host[at+1:]
	}
	return host
}
