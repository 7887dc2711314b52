package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/davidahmann/kiln/core/artifacts"
	"github.com/davidahmann/kiln/core/chain"
	"github.com/davidahmann/kiln/core/config"
	coreerrors "github.com/davidahmann/kiln/core/errors"
	"github.com/davidahmann/kiln/core/sigparse"
	"github.com/davidahmann/kiln/core/toolchain"
	"github.com/davidahmann/kiln/core/verify"
)

type verifyOutput struct {
	Status             string        `json:"status"`
	Command            string        `json:"command"`
	Verified           bool          `json:"verified"`
	VerificationStatus string        `json:"verification_status"`
	ContractName       string        `json:"contract_name,omitempty"`
	ExpectedHash       string        `json:"expected_hash,omitempty"`
	ActualHash         string        `json:"actual_hash,omitempty"`
	Address            string        `json:"address,omitempty"`
	Network            string        `json:"network,omitempty"`
	ChainID            uint64        `json:"chain_id,omitempty"`
	CompilerVersion    string        `json:"compiler_version,omitempty"`
	SDKVersion         string        `json:"sdk_version,omitempty"`
	ABI                artifacts.ABI `json:"abi,omitempty"`
	ErrorMessage       string        `json:"error_message,omitempty"`
	DurationMS         int64         `json:"duration_ms"`
}

func runVerify(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Rebuild a contract from its source tree and compare the rwasm hash against an expected hash or the bytecode deployed at an address.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"hash":      true,
		"address":   true,
		"network":   true,
		"rpc":       true,
		"chain-id":  true,
		"profile":   true,
		"features":  true,
		"timeout":   true,
		"audit-log": true,
	})
	flagSet := flag.NewFlagSet("verify", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var expectedHash string
	var address string
	var networkName string
	var rpcURL string
	var chainID uint64
	var profile string
	var features string
	var noDefaultFeatures bool
	var locked bool
	var timeout time.Duration
	var auditLog string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&expectedHash, "hash", "", "expected rwasm bytecode hash")
	flagSet.StringVar(&address, "address", "", "deployed contract address to fetch the expected hash from")
	flagSet.StringVar(&networkName, "network", "", "named network from .kiln.yaml or a preset (local, fluent-dev)")
	flagSet.StringVar(&rpcURL, "rpc", "", "JSON-RPC endpoint URL (overrides --network)")
	flagSet.Uint64Var(&chainID, "chain-id", 0, "expected chain id behind the endpoint")
	flagSet.StringVar(&profile, "profile", "release", "build profile used for the rebuild")
	flagSet.StringVar(&features, "features", "", "comma-separated cargo features")
	flagSet.BoolVar(&noDefaultFeatures, "no-default-features", true, "do not activate default features")
	flagSet.BoolVar(&locked, "locked", false, "forbid lockfile updates during the rebuild")
	flagSet.DurationVar(&timeout, "timeout", 30*time.Second, "bytecode fetch timeout")
	flagSet.StringVar(&auditLog, "audit-log", "", "append one JSON line per outcome to this file")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeVerifyError(jsonOutput, err, exitInvalidInput)
	}
	if helpFlag {
		printVerifyUsage()
		return exitOK
	}
	projectRoot, err := resolveProjectDir(flagSet.Args())
	if err != nil {
		return writeVerifyError(jsonOutput, err, exitInvalidInput)
	}
	workspace, err := loadWorkspace(projectRoot)
	if err != nil {
		return writeVerifyError(jsonOutput, coreerrors.Wrap(
			err, coreerrors.CategoryInvalidInput, "workspace_config_invalid",
			"fix or remove .kiln.yaml", false,
		), exitInvalidInput)
	}

	if expectedHash == "" && address == "" {
		return writeVerifyError(jsonOutput, coreerrors.Wrap(
			fmt.Errorf("nothing to verify against"),
			coreerrors.CategoryInvalidInput, "hash_or_address_required",
			"pass --hash or --address", false,
		), exitInvalidInput)
	}
	if expectedHash != "" && address != "" {
		return writeVerifyError(jsonOutput, coreerrors.Wrap(
			fmt.Errorf("both --hash and --address given"),
			coreerrors.CategoryInvalidInput, "hash_and_address_conflict",
			"pass exactly one of --hash and --address", false,
		), exitInvalidInput)
	}

	var network chain.Network
	if address != "" {
		network, err = resolveNetwork(workspace, networkName, rpcURL, chainID)
		if err != nil {
			return writeVerifyError(jsonOutput, err, exitInvalidInput)
		}
		fetchCtx, cancel := context.WithTimeout(context.Background(), timeout)
		fetched, fetchErr := chain.FetchCodeHash(fetchCtx, network, address)
		cancel()
		if fetchErr != nil {
			return writeVerifyError(jsonOutput, fetchErr, exitFailure)
		}
		expectedHash = fetched
	}

	// The rebuild writes into a throwaway directory so verification never
	// touches the project's published artifacts.
	tempDir, err := os.MkdirTemp("", "kiln-verify-")
	if err != nil {
		return writeVerifyError(jsonOutput, coreerrors.Wrap(
			fmt.Errorf("create verification scratch directory: %w", err),
			coreerrors.CategoryIOFailure, "temp_dir_create_failed",
			"check free space in the system temp directory", false,
		), exitFailure)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	outcome, err := verify.Verify(context.Background(), verify.Options{
		Config: config.Config{
			ProjectRoot:       projectRoot,
			OutputDir:         tempDir,
			Profile:           profile,
			Features:          splitCSV(features),
			NoDefaultFeatures: noDefaultFeatures,
			Locked:            locked,
			Artifacts: config.Artifacts{
				GenerateABI:      true,
				GenerateMetadata: true,
			},
		},
		ExpectedHash: expectedHash,
		Compiler:     toolchain.Cargo{},
		Transformer:  toolchain.RwasmCLI{},
		Parser:       sigparse.Parser{},
		AuditLog:     auditLog,
	})
	if err != nil {
		return writeVerifyError(jsonOutput, err, exitFailure)
	}

	output := verifyOutput{
		Status:             "success",
		Command:            "verify",
		Verified:           outcome.Status.IsSuccess(),
		VerificationStatus: string(outcome.Status),
		ContractName:       outcome.ContractName,
		ExpectedHash:       outcome.ExpectedHash,
		ActualHash:         outcome.ActualHash,
		ErrorMessage:       outcome.ErrorMessage,
		DurationMS:         outcome.DurationMS,
	}
	if address != "" {
		output.Address = address
		output.Network = network.Name
		output.ChainID = network.ChainID
	}
	if outcome.Build != nil {
		output.CompilerVersion = outcome.Build.Toolchain.Channel
		output.SDKVersion = outcome.Build.Contract.SDKVersion
		if outcome.Status.IsSuccess() && outcome.Build.Artifacts != nil {
			output.ABI = outcome.Build.Artifacts.ABI
		}
	}
	exitCode := exitOK
	if !outcome.Status.IsSuccess() {
		exitCode = exitFailure
	}
	return writeVerifyOutput(jsonOutput, output, exitCode)
}

func writeVerifyOutput(jsonOutput bool, output verifyOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}

	if output.Verified {
		fmt.Printf("verify ok: %s\n", output.ContractName)
		fmt.Printf("rwasm hash matches: %s\n", output.ActualHash)
		if output.Address != "" {
			fmt.Printf("address: %s (%s, chain id %d)\n", output.Address, output.Network, output.ChainID)
		}
		if output.CompilerVersion != "" {
			fmt.Printf("compiler: %s\n", output.CompilerVersion)
		}
		if output.SDKVersion != "" {
			fmt.Printf("sdk: %s\n", output.SDKVersion)
		}
		fmt.Printf("duration: %dms\n", output.DurationMS)
		return exitCode
	}
	fmt.Printf("verify failed: %s\n", output.VerificationStatus)
	if output.ContractName != "" {
		fmt.Printf("contract: %s\n", output.ContractName)
	}
	if output.ActualHash != "" {
		fmt.Printf("expected hash: %s\n", output.ExpectedHash)
		fmt.Printf("actual hash:   %s\n", output.ActualHash)
	}
	if output.ErrorMessage != "" {
		fmt.Printf("error: %s\n", output.ErrorMessage)
	}
	return exitCode
}

func writeVerifyError(jsonOutput bool, err error, fallbackExit int) int {
	exitCode := exitCodeForError(err, fallbackExit)
	if jsonOutput {
		return writeJSONOutput(newCommandError("verify", err), exitCode)
	}
	fmt.Printf("verify error: %v\n", err)
	if hint := coreerrors.HintOf(err); hint != "" {
		fmt.Printf("hint: %s\n", hint)
	}
	return exitCode
}

func printVerifyUsage() {
	fmt.Println("Usage:")
	fmt.Println("  kiln verify [dir] --hash <hex> [--profile <name>] [--features <csv>] [--audit-log <file>] [--json] [--explain]")
	fmt.Println("  kiln verify [dir] --address <0x..> [--network <name>|--rpc <url>] [--chain-id <id>] [--timeout <dur>] [--json] [--explain]")
}
