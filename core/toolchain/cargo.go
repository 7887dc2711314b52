// Package toolchain provides the production build collaborators: cargo for
// wasm compilation, an external converter for the rwasm transform, and rustc
// for toolchain metadata. Everything here shells out, so the pipeline's unit
// tests swap these for in-process fakes.
package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/davidahmann/kiln/core/build"
	coreerrors "github.com/davidahmann/kiln/core/errors"
)

// Cargo compiles contract crates by invoking the cargo binary.
type Cargo struct {
	// Bin overrides the cargo executable. Empty means "cargo" from PATH, so
	// rustup's toolchain pinning via rust-toolchain.toml applies as usual.
	Bin string
}

func (c Cargo) binary() string {
	if strings.TrimSpace(c.Bin) == "" {
		return "cargo"
	}
	return c.Bin
}

// Compile runs cargo build for the wasm target and reads back the produced
// artifact. Compiler diagnostics travel inside *build.ExecError so failures
// reach the user verbatim.
func (c Cargo) Compile(ctx context.Context, req build.CompileRequest) ([]byte, error) {
	args := cargoArgs(req)
	command := exec.CommandContext(ctx, c.binary(), args...) // #nosec G204 -- arguments come from the validated build request.
	command.Dir = req.ProjectRoot
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return nil, &build.ExecError{
			Cmd:    c.binary() + " " + strings.Join(args, " "),
			Stdout: stdout.String(),
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	wasmPath := WasmOutputPath(req)
	// #nosec G304 -- path derived from the build request's project root.
	wasm, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, coreerrors.Wrap(
			fmt.Errorf("read compiled wasm %s: %w", wasmPath, err),
			coreerrors.CategoryCompilation, "wasm_output_missing",
			"check that the crate is a cdylib named after the package", false,
		)
	}
	return wasm, nil
}

// cargoArgs assembles the build invocation. The release profile uses cargo's
// dedicated flag; dev (and its directory alias debug) is cargo's default and
// needs none; anything else goes through --profile.
func cargoArgs(req build.CompileRequest) []string {
	args := []string{"build", "--target", req.Target}
	switch req.Profile {
	case "release":
		args = append(args, "--release")
	case "dev", "debug", "":
	default:
		args = append(args, "--profile", req.Profile)
	}
	if req.NoDefaultFeatures {
		args = append(args, "--no-default-features")
	}
	if len(req.Features) > 0 {
		args = append(args, "--features", strings.Join(req.Features, ","))
	}
	if req.Locked {
		args = append(args, "--locked")
	}
	return args
}

// WasmOutputPath is where cargo leaves the compiled artifact:
// target/<target>/<profile dir>/<package name with dashes underscored>.wasm.
func WasmOutputPath(req build.CompileRequest) string {
	profileDir := req.Profile
	switch profileDir {
	case "dev", "debug", "":
		profileDir = "debug"
	}
	name := strings.ReplaceAll(req.ContractName, "-", "_") + ".wasm"
	return filepath.Join(req.ProjectRoot, "target", req.Target, profileDir, name)
}

// RustcVersion reports the rustc --version string recorded in build metadata.
func RustcVersion(ctx context.Context) (string, error) {
	output, err := exec.CommandContext(ctx, "rustc", "--version").Output()
	if err != nil {
		return "", coreerrors.Wrap(
			fmt.Errorf("rustc --version: %w", err),
			coreerrors.CategoryDependencyMissing, "rustc_unavailable",
			"install a Rust toolchain with rustup", false,
		)
	}
	return strings.TrimSpace(string(output)), nil
}
