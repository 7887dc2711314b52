package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/davidahmann/kiln/core/config"
	coreerrors "github.com/davidahmann/kiln/core/errors"
	"github.com/davidahmann/kiln/core/fingerprint"
)

type fingerprintOutput struct {
	Status           string `json:"status"`
	Command          string `json:"command"`
	ContractName     string `json:"contract_name"`
	ContractVersion  string `json:"contract_version,omitempty"`
	ToolchainChannel string `json:"toolchain_channel"`
	SourceTreeHash   string `json:"source_tree_hash"`
	ManifestLockHash string `json:"manifest_lock_hash"`
	ToolchainHash    string `json:"toolchain_hash"`
	FileCount        int    `json:"file_count"`
}

func runFingerprint(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Compute a contract project's deterministic source fingerprint without compiling anything.")
	}
	arguments = reorderInterspersedFlags(arguments, nil)
	flagSet := flag.NewFlagSet("fingerprint", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var jsonOutput bool
	var helpFlag bool
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeFingerprintError(jsonOutput, err, exitInvalidInput)
	}
	if helpFlag {
		printFingerprintUsage()
		return exitOK
	}
	projectRoot, err := resolveProjectDir(flagSet.Args())
	if err != nil {
		return writeFingerprintError(jsonOutput, err, exitInvalidInput)
	}

	resolved, err := config.Resolve(config.Default(projectRoot))
	if err != nil {
		return writeFingerprintError(jsonOutput, err, exitInvalidInput)
	}
	computed, err := fingerprint.Compute(projectRoot, resolved.Toolchain, resolved.Contract)
	if err != nil {
		return writeFingerprintError(jsonOutput, err, exitFailure)
	}
	sources, err := fingerprint.SelectSources(projectRoot)
	if err != nil {
		return writeFingerprintError(jsonOutput, err, exitFailure)
	}

	return writeFingerprintOutput(jsonOutput, fingerprintOutput{
		Status:           "success",
		Command:          "fingerprint",
		ContractName:     resolved.Contract.Name,
		ContractVersion:  resolved.Contract.Version,
		ToolchainChannel: resolved.Toolchain.Channel,
		SourceTreeHash:   computed.SourceTreeHash,
		ManifestLockHash: computed.ManifestLockHash,
		ToolchainHash:    computed.ToolchainHash,
		FileCount:        len(sources),
	}, exitOK)
}

func writeFingerprintOutput(jsonOutput bool, output fingerprintOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	fmt.Printf("fingerprint: %s %s\n", output.ContractName, output.ContractVersion)
	fmt.Printf("toolchain: %s\n", output.ToolchainChannel)
	fmt.Printf("source tree hash: %s\n", output.SourceTreeHash)
	fmt.Printf("manifest lock hash: %s\n", output.ManifestLockHash)
	fmt.Printf("toolchain hash: %s\n", output.ToolchainHash)
	fmt.Printf("files: %d\n", output.FileCount)
	return exitCode
}

func writeFingerprintError(jsonOutput bool, err error, fallbackExit int) int {
	exitCode := exitCodeForError(err, fallbackExit)
	if jsonOutput {
		return writeJSONOutput(newCommandError("fingerprint", err), exitCode)
	}
	fmt.Printf("fingerprint error: %v\n", err)
	if hint := coreerrors.HintOf(err); hint != "" {
		fmt.Printf("hint: %s\n", hint)
	}
	return exitCode
}

func printFingerprintUsage() {
	fmt.Println("Usage:")
	fmt.Println("  kiln fingerprint [dir] [--json] [--explain]")
}
