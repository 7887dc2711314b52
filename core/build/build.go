// Package build orchestrates one contract compilation end to end: resolve the
// project, compile to wasm, transform to rwasm, fingerprint the source tree,
// generate artifacts, and persist everything under the output directory.
//
// The compiler, the wasm transformer, and the signature parser are interfaces
// so the pipeline is testable without a Rust toolchain on the machine.
package build

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/davidahmann/kiln/core/archive"
	"github.com/davidahmann/kiln/core/artifacts"
	"github.com/davidahmann/kiln/core/config"
	coreerrors "github.com/davidahmann/kiln/core/errors"
	"github.com/davidahmann/kiln/core/fingerprint"
	"github.com/davidahmann/kiln/core/gitx"
	"github.com/davidahmann/kiln/core/schema/v1/metadata"
)

// State names a completed pipeline stage. Result.States records the
// traversal in order, ending in StateDone on success.
type State string

const (
	StateResolved           State = "resolved"
	StateCompiled           State = "compiled"
	StateTransformed        State = "transformed"
	StateFingerprinted      State = "fingerprinted"
	StateArtifactsGenerated State = "artifacts_generated"
	StateDone               State = "done"
)

// StateOrder is the linear traversal of a successful build.
var StateOrder = []State{
	StateResolved,
	StateCompiled,
	StateTransformed,
	StateFingerprinted,
	StateArtifactsGenerated,
	StateDone,
}

// CompileRequest is everything a compiler needs for one invocation.
type CompileRequest struct {
	ProjectRoot       string
	ContractName      string
	Target            string
	Profile           string
	Features          []string
	NoDefaultFeatures bool
	Locked            bool
}

// Compiler produces wasm bytecode for a contract project. Failed subprocess
// runs return *ExecError so diagnostics reach the user verbatim.
type Compiler interface {
	Compile(ctx context.Context, req CompileRequest) ([]byte, error)
}

// Transformer lowers wasm bytecode to the deployable rwasm form.
type Transformer interface {
	Transform(wasm []byte) ([]byte, error)
}

// SignatureParser extracts callable method signatures from a contract source
// file.
type SignatureParser interface {
	Parse(sourcePath string) ([]artifacts.MethodSignature, error)
}

// RepoStatus reports version-control state for the provenance decision. A nil
// status with a nil error means the path is not inside a repository.
type RepoStatus interface {
	Status(dir string) (*gitx.Status, error)
}

// ExecError carries a failed subprocess's captured output.
type ExecError struct {
	Cmd    string
	Stdout string
	Stderr string
	Err    error
}

func (e *ExecError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %v\n%s", e.Cmd, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", e.Cmd, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Options wires the pipeline's collaborators to a build configuration.
type Options struct {
	Config config.Config
	// Resolved, when non-nil, is used instead of resolving Config again.
	// The verify engine resolves first for outcome classification and hands
	// the result through so the manifest is parsed once per run.
	Resolved *config.Resolved

	Compiler    Compiler
	Transformer Transformer
	Parser      SignatureParser
	// Repo is consulted for the provenance decision. nil skips detection
	// and records archive provenance.
	Repo RepoStatus

	// Archive shapes the source bundle written next to the artifacts. An
	// empty Format accepts archive.DefaultOptions.
	Archive archive.Options
	// SkipBundle suppresses the source bundle. Verification rebuilds set
	// this: they compare hashes and never republish sources.
	SkipBundle bool
}

// Result is a finished build.
type Result struct {
	Contract  config.Contract  `json:"contract"`
	Toolchain config.Toolchain `json:"toolchain"`
	Config    config.Config    `json:"config"`
	Source    metadata.Source  `json:"source"`

	Fingerprint *fingerprint.Fingerprint `json:"fingerprint"`

	Wasm      []byte `json:"-"`
	Rwasm     []byte `json:"-"`
	WasmHash  string `json:"wasm_hash"`
	RwasmHash string `json:"rwasm_hash"`

	Artifacts *artifacts.Artifacts `json:"-"`
	Saved     *artifacts.Saved     `json:"saved,omitempty"`
	Bundle    *archive.Info        `json:"bundle,omitempty"`

	DurationMS int64   `json:"duration_ms"`
	States     []State `json:"states"`
}

func (r *Result) advance(state State) {
	r.States = append(r.States, state)
}

// Run drives the build pipeline. Any collaborator failure aborts the run with
// the collaborator's diagnostic preserved in the error chain; nothing is
// retried.
func Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	if opts.Compiler == nil || opts.Transformer == nil || opts.Parser == nil {
		return nil, coreerrors.Wrap(
			fmt.Errorf("build pipeline is missing a collaborator"),
			coreerrors.CategoryInternalFailure, "pipeline_misconfigured",
			"", false,
		)
	}

	resolved := opts.Resolved
	if resolved == nil {
		var err error
		resolved, err = config.Resolve(opts.Config)
		if err != nil {
			return nil, err
		}
	}
	cfg := resolved.Config

	result := &Result{
		Contract:  resolved.Contract,
		Toolchain: resolved.Toolchain,
		Config:    cfg,
	}
	result.advance(StateResolved)

	bundleOpts := opts.Archive
	if bundleOpts.Format == "" {
		bundleOpts = archive.DefaultOptions()
	}
	bundleName := "source." + bundleOpts.Format.Extension()

	source, err := resolveProvenance(cfg, opts.Repo, bundleName)
	if err != nil {
		return nil, err
	}
	result.Source = source

	wasm, err := opts.Compiler.Compile(ctx, CompileRequest{
		ProjectRoot:       cfg.ProjectRoot,
		ContractName:      resolved.Contract.Name,
		Target:            resolved.Toolchain.Target,
		Profile:           cfg.Profile,
		Features:          cfg.Features,
		NoDefaultFeatures: cfg.NoDefaultFeatures,
		Locked:            cfg.Locked,
	})
	if err != nil {
		return nil, coreerrors.Wrap(
			fmt.Errorf("compile %s: %w", resolved.Contract.Name, err),
			coreerrors.CategoryCompilation, "compilation_failed",
			"read the compiler diagnostics in the error output", false,
		)
	}
	if len(wasm) == 0 {
		return nil, coreerrors.Wrap(
			fmt.Errorf("compile %s: compiler produced no output", resolved.Contract.Name),
			coreerrors.CategoryCompilation, "compilation_failed",
			"", false,
		)
	}
	result.Wasm = wasm
	result.WasmHash = fingerprint.HashBytes(wasm)
	result.advance(StateCompiled)

	rwasm, err := opts.Transformer.Transform(wasm)
	if err != nil {
		return nil, coreerrors.Wrap(
			fmt.Errorf("transform %s to rwasm: %w", resolved.Contract.Name, err),
			coreerrors.CategoryCompilation, "rwasm_transform_failed",
			"read the transformer diagnostics in the error output", false,
		)
	}
	if len(rwasm) == 0 {
		return nil, coreerrors.Wrap(
			fmt.Errorf("transform %s: transformer produced no output", resolved.Contract.Name),
			coreerrors.CategoryCompilation, "rwasm_transform_failed",
			"", false,
		)
	}
	result.Rwasm = rwasm
	result.RwasmHash = fingerprint.HashBytes(rwasm)
	result.advance(StateTransformed)

	fp, err := fingerprint.Compute(cfg.ProjectRoot, resolved.Toolchain, resolved.Contract)
	if err != nil {
		return nil, err
	}
	result.Fingerprint = fp
	result.advance(StateFingerprinted)

	var signatures []artifacts.MethodSignature
	if resolved.MainSource != "" {
		signatures, err = opts.Parser.Parse(resolved.MainSource)
		if err != nil {
			return nil, err
		}
	}

	var sourceFiles map[string]metadata.SourceFile
	if cfg.Artifacts.GenerateMetadata {
		sourceFiles, err = fingerprint.HashSourceFiles(cfg.ProjectRoot)
		if err != nil {
			return nil, err
		}
	}

	arts, err := artifacts.Generate(artifacts.Input{
		Contract:    resolved.Contract,
		Config:      cfg,
		Toolchain:   resolved.Toolchain,
		Source:      source,
		Signatures:  signatures,
		Wasm:        wasm,
		Rwasm:       rwasm,
		Fingerprint: fp,
		SourceFiles: sourceFiles,
	})
	if err != nil {
		return nil, err
	}
	result.Artifacts = arts
	result.advance(StateArtifactsGenerated)

	saved, err := artifacts.Write(
		cfg.OutputDirectory(),
		resolved.Contract.Name,
		wasm, rwasm, arts,
		artifacts.WriteOptions{
			GenerateABI:       cfg.Artifacts.GenerateABI,
			GenerateInterface: cfg.Artifacts.GenerateInterface,
			GenerateMetadata:  cfg.Artifacts.GenerateMetadata,
			PrettyJSON:        cfg.Artifacts.PrettyJSON,
		},
	)
	if err != nil {
		return nil, err
	}

	if !opts.SkipBundle {
		sources, err := fingerprint.SelectSources(cfg.ProjectRoot)
		if err != nil {
			return nil, err
		}
		bundleOpts.OnlyCompilationFiles = true
		bundleOpts.Sources = sources
		info, err := archive.Create(cfg.ProjectRoot, filepath.Join(saved.OutputDir, bundleName), bundleOpts)
		if err != nil {
			return nil, err
		}
		saved.ArchivePath = info.Path
		result.Bundle = info
	}
	result.Saved = saved

	result.DurationMS = time.Since(start).Milliseconds()
	result.advance(StateDone)
	return result, nil
}

// resolveProvenance picks git or archive provenance from the working-tree
// state. A dirty tree aborts unless the caller opted in with AllowDirty; a
// clean tree without an origin remote records archive provenance, because a
// git claim nobody can fetch is worthless to a verifier.
func resolveProvenance(cfg config.Config, repo RepoStatus, bundleName string) (metadata.Source, error) {
	if !cfg.UseGitSource || repo == nil {
		return ArchiveSource(bundleName), nil
	}
	status, err := repo.Status(cfg.ProjectRoot)
	if err != nil {
		return metadata.Source{}, err
	}
	if status == nil {
		return ArchiveSource(bundleName), nil
	}
	if status.Dirty && !cfg.AllowDirty {
		return metadata.Source{}, coreerrors.Wrap(
			fmt.Errorf("repository has %d uncommitted changes", status.DirtyCount),
			coreerrors.CategoryInvalidInput, "dirty_worktree",
			"commit or stash your changes, or pass --allow-dirty to record archive provenance", false,
		)
	}
	if status.Dirty || status.RemoteURL == "" {
		return ArchiveSource(bundleName), nil
	}
	projectPath, err := gitx.ProjectPath(status.Root, cfg.ProjectRoot)
	if err != nil {
		projectPath = "."
	}
	return GitSource(status, projectPath)
}
