package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	coreerrors "github.com/davidahmann/kiln/core/errors"
	"github.com/davidahmann/kiln/core/schema/v1/metadata"
	"github.com/davidahmann/kiln/core/schema/validate"
)

type inspectOutput struct {
	Status          string `json:"status"`
	Command         string `json:"command"`
	Path            string `json:"path"`
	SchemaVersion   int    `json:"schema_version"`
	ContractName    string `json:"contract_name"`
	ContractVersion string `json:"contract_version,omitempty"`
	SDKVersion      string `json:"sdk_version,omitempty"`
	SourceType      string `json:"source_type"`
	Repository      string `json:"repository,omitempty"`
	Commit          string `json:"commit,omitempty"`
	ArchivePath     string `json:"archive_path,omitempty"`
	RustVersion     string `json:"rust_version,omitempty"`
	Target          string `json:"target,omitempty"`
	Profile         string `json:"profile,omitempty"`
	WasmHash        string `json:"wasm_hash"`
	RwasmHash       string `json:"rwasm_hash"`
	SourceFileCount int    `json:"source_file_count"`
	SelectorCount   int    `json:"selector_count"`
	BuiltAt         string `json:"built_at,omitempty"`
}

func runInspect(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Validate a build's metadata.json against the published schema and summarize what it records.")
	}
	arguments = reorderInterspersedFlags(arguments, nil)
	flagSet := flag.NewFlagSet("inspect", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var jsonOutput bool
	var helpFlag bool
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeInspectError(jsonOutput, err, exitInvalidInput)
	}
	if helpFlag {
		printInspectUsage()
		return exitOK
	}
	positionals := flagSet.Args()
	if len(positionals) != 1 {
		return writeInspectError(jsonOutput, coreerrors.Wrap(
			fmt.Errorf("expected one path, got %d", len(positionals)),
			coreerrors.CategoryInvalidInput, "metadata_path_required",
			"pass a project directory or a metadata.json path", false,
		), exitInvalidInput)
	}

	metadataPath, err := locateMetadata(positionals[0])
	if err != nil {
		return writeInspectError(jsonOutput, err, exitInvalidInput)
	}
	data, err := os.ReadFile(metadataPath) // #nosec G304 -- caller-chosen path.
	if err != nil {
		return writeInspectError(jsonOutput, coreerrors.Wrap(
			fmt.Errorf("read metadata: %w", err),
			coreerrors.CategoryIOFailure, "metadata_read_failed",
			"check the path and its permissions", false,
		), exitFailure)
	}
	if err := validate.Metadata(data); err != nil {
		return writeInspectError(jsonOutput, coreerrors.Wrap(
			fmt.Errorf("metadata %s: %w", metadataPath, err),
			coreerrors.CategoryVerification, "metadata_schema_invalid",
			"the document does not match metadata schema v1; rebuild to regenerate it", false,
		), exitFailure)
	}
	var doc metadata.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return writeInspectError(jsonOutput, coreerrors.Wrap(
			fmt.Errorf("decode metadata: %w", err),
			coreerrors.CategoryInvalidInput, "metadata_decode_failed",
			"", false,
		), exitFailure)
	}

	output := inspectOutput{
		Status:          "success",
		Command:         "inspect",
		Path:            metadataPath,
		SchemaVersion:   doc.SchemaVersion,
		ContractName:    doc.Contract.Name,
		ContractVersion: doc.Contract.Version,
		SDKVersion:      doc.Contract.SDKVersion,
		SourceType:      doc.Source.Type,
		Repository:      doc.Source.Repository,
		Commit:          doc.Source.Commit,
		ArchivePath:     doc.Source.ArchivePath,
		RustVersion:     doc.CompilationSettings.Rust.Version,
		Target:          doc.CompilationSettings.Rust.Target,
		Profile:         doc.CompilationSettings.BuildCfg.Profile,
		WasmHash:        doc.Bytecode.Wasm.Hash,
		RwasmHash:       doc.Bytecode.Rwasm.Hash,
		SourceFileCount: len(doc.SourceFiles),
	}
	if doc.SolidityCompat != nil {
		output.SelectorCount = len(doc.SolidityCompat.FunctionSelectors)
	}
	if doc.BuiltAt > 0 {
		output.BuiltAt = time.Unix(doc.BuiltAt, 0).UTC().Format(time.RFC3339)
	}
	return writeInspectOutput(jsonOutput, output, exitOK)
}

// locateMetadata accepts either a metadata.json path or a project directory;
// for a directory it checks the conventional artifact locations.
func locateMetadata(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", coreerrors.Wrap(
			fmt.Errorf("resolve path %q: %w", path, err),
			coreerrors.CategoryInvalidInput, "metadata_path_invalid",
			"", false,
		)
	}
	stat, err := os.Stat(abs)
	if err != nil {
		return "", coreerrors.Wrap(
			fmt.Errorf("stat %s: %w", abs, err),
			coreerrors.CategoryInvalidInput, "metadata_not_found",
			"pass a project directory or a metadata.json path", false,
		)
	}
	if !stat.IsDir() {
		return abs, nil
	}
	if candidate := filepath.Join(abs, "metadata.json"); fileExists(candidate) {
		return candidate, nil
	}
	// The build writer places the document at <out>/<name>.wasm/metadata.json.
	// Accept both the project root and the output directory itself.
	for _, pattern := range []string{
		filepath.Join(abs, "out", "*.wasm", "metadata.json"),
		filepath.Join(abs, "*.wasm", "metadata.json"),
	} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		if len(matches) > 1 {
			return "", coreerrors.Wrap(
				fmt.Errorf("multiple metadata documents under %s", abs),
				coreerrors.CategoryInvalidInput, "metadata_ambiguous",
				"pass the metadata.json path of the contract to inspect", false,
			)
		}
		if len(matches) == 1 {
			return matches[0], nil
		}
	}
	return "", coreerrors.Wrap(
		fmt.Errorf("no metadata.json under %s", abs),
		coreerrors.CategoryInvalidInput, "metadata_not_found",
		"build the project first or pass the metadata.json path directly", false,
	)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func writeInspectOutput(jsonOutput bool, output inspectOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	fmt.Printf("inspect ok: %s\n", output.Path)
	fmt.Printf("schema version: %d\n", output.SchemaVersion)
	fmt.Printf("contract: %s %s (sdk %s)\n", output.ContractName, output.ContractVersion, output.SDKVersion)
	switch output.SourceType {
	case metadata.SourceTypeGit:
		fmt.Printf("source: git %s @ %s\n", output.Repository, output.Commit)
	case metadata.SourceTypeArchive:
		fmt.Printf("source: archive %s\n", output.ArchivePath)
	default:
		fmt.Printf("source: %s\n", output.SourceType)
	}
	fmt.Printf("rust: %s (%s), profile %s\n", output.RustVersion, output.Target, output.Profile)
	fmt.Printf("wasm hash: %s\n", output.WasmHash)
	fmt.Printf("rwasm hash: %s\n", output.RwasmHash)
	fmt.Printf("source files: %d\n", output.SourceFileCount)
	if output.SelectorCount > 0 {
		fmt.Printf("function selectors: %d\n", output.SelectorCount)
	}
	if output.BuiltAt != "" {
		fmt.Printf("built at: %s\n", output.BuiltAt)
	}
	return exitCode
}

func writeInspectError(jsonOutput bool, err error, fallbackExit int) int {
	exitCode := exitCodeForError(err, fallbackExit)
	if jsonOutput {
		return writeJSONOutput(newCommandError("inspect", err), exitCode)
	}
	fmt.Printf("inspect error: %v\n", err)
	if hint := coreerrors.HintOf(err); hint != "" {
		fmt.Printf("hint: %s\n", hint)
	}
	return exitCode
}

func printInspectUsage() {
	fmt.Println("Usage:")
	fmt.Println("  kiln inspect <dir|metadata.json> [--json] [--explain]")
}
