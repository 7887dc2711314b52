package main

import (
	"flag"
	"fmt"
	"io"
	"path/filepath"

	"github.com/davidahmann/kiln/core/archive"
	coreerrors "github.com/davidahmann/kiln/core/errors"
)

type archiveOutput struct {
	Status       string `json:"status"`
	Command      string `json:"command"`
	Path         string `json:"path"`
	Format       string `json:"format"`
	Hash         string `json:"hash"`
	Size         int64  `json:"size"`
	FileCount    int    `json:"file_count"`
	ManifestPath string `json:"manifest_path"`
}

func runArchive(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Bundle a contract's compilation sources into a deterministic tar.gz or zip whose bytes are stable across machines.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"out":    true,
		"format": true,
		"level":  true,
	})
	flagSet := flag.NewFlagSet("archive", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var outPath string
	var format string
	var level int
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&outPath, "out", "", "archive output path (default <out-dir>/source.<ext>)")
	flagSet.StringVar(&format, "format", "", "archive format: tar.gz or zip")
	flagSet.IntVar(&level, "level", archive.DefaultCompressionLevel, "compression level 0-9")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeArchiveError(jsonOutput, err, exitInvalidInput)
	}
	if helpFlag {
		printArchiveUsage()
		return exitOK
	}
	projectRoot, err := resolveProjectDir(flagSet.Args())
	if err != nil {
		return writeArchiveError(jsonOutput, err, exitInvalidInput)
	}
	workspace, err := loadWorkspace(projectRoot)
	if err != nil {
		return writeArchiveError(jsonOutput, coreerrors.Wrap(
			err, coreerrors.CategoryInvalidInput, "workspace_config_invalid",
			"fix or remove .kiln.yaml", false,
		), exitInvalidInput)
	}
	explicit := explicitFlags(flagSet)
	if !explicit["format"] && workspace.ArchiveFormat != "" {
		format = workspace.ArchiveFormat
	}

	parsed, err := archive.ParseFormat(format)
	if err != nil {
		return writeArchiveError(jsonOutput, err, exitInvalidInput)
	}
	opts := archive.DefaultOptions()
	opts.Format = parsed
	opts.CompressionLevel = level

	if outPath == "" {
		outDir := workspace.OutputDir
		if outDir == "" {
			outDir = "out"
		}
		if !filepath.IsAbs(outDir) {
			outDir = filepath.Join(projectRoot, outDir)
		}
		outPath = filepath.Join(outDir, "source."+parsed.Extension())
	}

	info, err := archive.Create(projectRoot, outPath, opts)
	if err != nil {
		return writeArchiveError(jsonOutput, err, exitFailure)
	}

	return writeArchiveOutput(jsonOutput, archiveOutput{
		Status:       "success",
		Command:      "archive",
		Path:         info.Path,
		Format:       string(parsed),
		Hash:         info.Hash,
		Size:         info.Size,
		FileCount:    info.FileCount,
		ManifestPath: info.ManifestPath,
	}, exitOK)
}

func writeArchiveOutput(jsonOutput bool, output archiveOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	fmt.Printf("archive ok: %s\n", output.Path)
	fmt.Printf("format: %s\n", output.Format)
	fmt.Printf("hash: %s\n", output.Hash)
	fmt.Printf("size: %d bytes, %d files\n", output.Size, output.FileCount)
	fmt.Printf("manifest: %s\n", output.ManifestPath)
	return exitCode
}

func writeArchiveError(jsonOutput bool, err error, fallbackExit int) int {
	exitCode := exitCodeForError(err, fallbackExit)
	if jsonOutput {
		return writeJSONOutput(newCommandError("archive", err), exitCode)
	}
	fmt.Printf("archive error: %v\n", err)
	if hint := coreerrors.HintOf(err); hint != "" {
		fmt.Printf("hint: %s\n", hint)
	}
	return exitCode
}

func printArchiveUsage() {
	fmt.Println("Usage:")
	fmt.Println("  kiln archive [dir] [--out <path>] [--format tar.gz|zip] [--level 0-9] [--json] [--explain]")
}
