package main

import (
	"fmt"
	"path/filepath"
	"strings"

	coreerrors "github.com/davidahmann/kiln/core/errors"
	"github.com/davidahmann/kiln/core/projectconfig"
)

// resolveProjectDir turns the optional positional argument into an absolute
// project root. No argument means the current directory.
func resolveProjectDir(positionals []string) (string, error) {
	if len(positionals) > 1 {
		return "", coreerrors.Wrap(
			fmt.Errorf("expected at most one project directory, got %d arguments", len(positionals)),
			coreerrors.CategoryInvalidInput, "too_many_arguments",
			"pass a single project directory", false,
		)
	}
	dir := "."
	if len(positionals) == 1 && strings.TrimSpace(positionals[0]) != "" {
		dir = positionals[0]
	}
	absolute, err := filepath.Abs(dir)
	if err != nil {
		return "", coreerrors.Wrap(
			fmt.Errorf("resolve project directory %s: %w", dir, err),
			coreerrors.CategoryInvalidInput, "project_dir_invalid", "", false,
		)
	}
	return absolute, nil
}

func splitCSV(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// loadWorkspace reads the optional .kiln.yaml at the project root. A missing
// file is an empty config, not an error.
func loadWorkspace(projectRoot string) (projectconfig.Config, error) {
	return projectconfig.Load(filepath.Join(projectRoot, projectconfig.DefaultPath), true)
}
