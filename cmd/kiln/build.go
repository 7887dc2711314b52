package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/davidahmann/kiln/core/archive"
	"github.com/davidahmann/kiln/core/artifacts"
	"github.com/davidahmann/kiln/core/build"
	"github.com/davidahmann/kiln/core/config"
	coreerrors "github.com/davidahmann/kiln/core/errors"
	"github.com/davidahmann/kiln/core/fingerprint"
	"github.com/davidahmann/kiln/core/gitx"
	"github.com/davidahmann/kiln/core/sigparse"
	"github.com/davidahmann/kiln/core/toolchain"
)

type gitInfoOutput struct {
	Commit    string `json:"commit"`
	Branch    string `json:"branch"`
	RemoteURL string `json:"remote_url,omitempty"`
	Clean     bool   `json:"is_clean"`
}

type buildOutput struct {
	Status          string                   `json:"status"`
	Command         string                   `json:"command"`
	ContractName    string                   `json:"contract_name"`
	ContractVersion string                   `json:"contract_version,omitempty"`
	WasmHash        string                   `json:"wasm_hash"`
	RwasmHash       string                   `json:"rwasm_hash"`
	WasmSize        int                      `json:"wasm_size"`
	RwasmSize       int                      `json:"rwasm_size"`
	SourceType      string                   `json:"source_type"`
	OutputDir       string                   `json:"output_dir,omitempty"`
	Files           []string                 `json:"files,omitempty"`
	Git             *gitInfoOutput           `json:"git_info,omitempty"`
	Fingerprint     *fingerprint.Fingerprint `json:"fingerprint,omitempty"`
	DurationMS      int64                    `json:"duration_ms"`
}

// staticRepoStatus feeds a pre-queried repository status into the pipeline so
// the CLI and the provenance decision share one git invocation.
type staticRepoStatus struct {
	status *gitx.Status
}

func (s staticRepoStatus) Status(string) (*gitx.Status, error) {
	return s.status, nil
}

func runBuild(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Compile a contract to wasm and rwasm, fingerprint the source tree, and write ABI, interface, and metadata artifacts plus a source bundle.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"out":            true,
		"profile":        true,
		"features":       true,
		"archive-format": true,
	})
	flagSet := flag.NewFlagSet("build", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var outDir string
	var profile string
	var features string
	var noDefaultFeatures bool
	var locked bool
	var allowDirty bool
	var noABI bool
	var noInterface bool
	var noMetadata bool
	var pretty bool
	var archiveFormat string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&outDir, "out", "out", "artifact output directory")
	flagSet.StringVar(&profile, "profile", "release", "build profile: release, debug, or a custom cargo profile")
	flagSet.StringVar(&features, "features", "", "comma-separated cargo features")
	flagSet.BoolVar(&noDefaultFeatures, "no-default-features", true, "do not activate default features")
	flagSet.BoolVar(&locked, "locked", false, "forbid lockfile updates during the build")
	flagSet.BoolVar(&allowDirty, "allow-dirty", false, "allow building from a dirty working tree (archive provenance)")
	flagSet.BoolVar(&noABI, "no-abi", false, "skip abi.json")
	flagSet.BoolVar(&noInterface, "no-interface", false, "skip interface.sol")
	flagSet.BoolVar(&noMetadata, "no-metadata", false, "skip metadata.json")
	flagSet.BoolVar(&pretty, "pretty", true, "indent artifact JSON; false writes canonical compact bytes")
	flagSet.StringVar(&archiveFormat, "archive-format", "", "source bundle format: tar.gz or zip")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeBuildError(jsonOutput, err, exitInvalidInput)
	}
	if helpFlag {
		printBuildUsage()
		return exitOK
	}
	projectRoot, err := resolveProjectDir(flagSet.Args())
	if err != nil {
		return writeBuildError(jsonOutput, err, exitInvalidInput)
	}
	workspace, err := loadWorkspace(projectRoot)
	if err != nil {
		return writeBuildError(jsonOutput, coreerrors.Wrap(
			err, coreerrors.CategoryInvalidInput, "workspace_config_invalid",
			"fix or remove .kiln.yaml", false,
		), exitInvalidInput)
	}
	explicit := explicitFlags(flagSet)
	if !explicit["out"] && workspace.OutputDir != "" {
		outDir = workspace.OutputDir
	}
	if !explicit["allow-dirty"] && workspace.AllowDirty {
		allowDirty = true
	}
	if !explicit["archive-format"] && workspace.ArchiveFormat != "" {
		archiveFormat = workspace.ArchiveFormat
	}

	format, err := archive.ParseFormat(archiveFormat)
	if err != nil {
		return writeBuildError(jsonOutput, err, exitInvalidInput)
	}
	bundle := archive.DefaultOptions()
	bundle.Format = format

	cfg := config.Config{
		ProjectRoot:       projectRoot,
		OutputDir:         outDir,
		Profile:           profile,
		Features:          splitCSV(features),
		NoDefaultFeatures: noDefaultFeatures,
		Locked:            locked,
		Artifacts: config.Artifacts{
			GenerateABI:       !noABI,
			GenerateInterface: !noInterface,
			GenerateMetadata:  !noMetadata,
			PrettyJSON:        pretty,
		},
		UseGitSource: true,
		AllowDirty:   allowDirty,
	}

	repoStatus, err := gitx.CLI{}.Status(projectRoot)
	if err != nil {
		return writeBuildError(jsonOutput, err, exitFailure)
	}

	result, err := build.Run(context.Background(), build.Options{
		Config:      cfg,
		Compiler:    toolchain.Cargo{},
		Transformer: toolchain.RwasmCLI{},
		Parser:      sigparse.Parser{},
		Repo:        staticRepoStatus{status: repoStatus},
		Archive:     bundle,
	})
	if err != nil {
		return writeBuildError(jsonOutput, err, exitFailure)
	}

	output := buildOutput{
		Status:          "success",
		Command:         "build",
		ContractName:    result.Contract.Name,
		ContractVersion: result.Contract.Version,
		WasmHash:        result.WasmHash,
		RwasmHash:       result.RwasmHash,
		WasmSize:        len(result.Wasm),
		RwasmSize:       len(result.Rwasm),
		SourceType:      result.Source.Type,
		Fingerprint:     result.Fingerprint,
		DurationMS:      result.DurationMS,
	}
	if result.Saved != nil {
		output.OutputDir = result.Saved.OutputDir
		output.Files = savedFileNames(result.Saved)
	}
	if repoStatus != nil {
		output.Git = &gitInfoOutput{
			Commit:    repoStatus.ShortCommit,
			Branch:    repoStatus.Branch,
			RemoteURL: repoStatus.RemoteURL,
			Clean:     !repoStatus.Dirty,
		}
	}
	return writeBuildOutput(jsonOutput, output, exitOK)
}

func savedFileNames(saved *artifacts.Saved) []string {
	names := make([]string, 0, 6)
	for _, path := range []string{
		saved.WasmPath,
		saved.RwasmPath,
		saved.ABIPath,
		saved.InterfacePath,
		saved.MetadataPath,
		saved.ArchivePath,
	} {
		if path != "" {
			names = append(names, filepath.Base(path))
		}
	}
	return names
}

func writeBuildOutput(jsonOutput bool, output buildOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	fmt.Printf("build ok: %s %s\n", output.ContractName, output.ContractVersion)
	fmt.Printf("rwasm hash: %s\n", output.RwasmHash)
	fmt.Printf("sizes: wasm %d bytes, rwasm %d bytes\n", output.WasmSize, output.RwasmSize)
	if output.Git != nil {
		state := "clean"
		if !output.Git.Clean {
			state = "dirty"
		}
		fmt.Printf("repository: %s @ %s (%s)\n", output.Git.Branch, output.Git.Commit, state)
	}
	fmt.Printf("source: %s\n", output.SourceType)
	if output.OutputDir != "" {
		fmt.Printf("output: %s\n", output.OutputDir)
	}
	if len(output.Files) > 0 {
		fmt.Printf("files: %s\n", strings.Join(output.Files, ", "))
	}
	fmt.Printf("duration: %dms\n", output.DurationMS)
	return exitCode
}

func writeBuildError(jsonOutput bool, err error, fallbackExit int) int {
	exitCode := exitCodeForError(err, fallbackExit)
	if jsonOutput {
		return writeJSONOutput(newCommandError("build", err), exitCode)
	}
	fmt.Printf("build error: %v\n", err)
	if hint := coreerrors.HintOf(err); hint != "" {
		fmt.Printf("hint: %s\n", hint)
	}
	return exitCode
}

func printBuildUsage() {
	fmt.Println("Usage:")
	fmt.Println("  kiln build [dir] [--out <dir>] [--profile release|debug|<custom>] [--features <csv>] [--no-default-features=<bool>] [--locked] [--allow-dirty] [--no-abi] [--no-interface] [--no-metadata] [--pretty=<bool>] [--archive-format tar.gz|zip] [--json] [--explain]")
}
