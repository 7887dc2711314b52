package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/davidahmann/kiln/core/chain"
	coreerrors "github.com/davidahmann/kiln/core/errors"
)

type fetchOutput struct {
	Status       string `json:"status"`
	Command      string `json:"command"`
	Address      string `json:"address"`
	Network      string `json:"network"`
	ChainID      uint64 `json:"chain_id"`
	BytecodeHash string `json:"bytecode_hash"`
	BytecodeSize int    `json:"bytecode_size"`
}

func runFetch(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Fetch the bytecode deployed at a contract address and report its hash and size.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"address":  true,
		"network":  true,
		"rpc":      true,
		"chain-id": true,
		"timeout":  true,
	})
	flagSet := flag.NewFlagSet("fetch", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var address string
	var networkName string
	var rpcURL string
	var chainID uint64
	var timeout time.Duration
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&address, "address", "", "deployed contract address")
	flagSet.StringVar(&networkName, "network", "", "named network from .kiln.yaml or a preset (local, fluent-dev)")
	flagSet.StringVar(&rpcURL, "rpc", "", "JSON-RPC endpoint URL (overrides --network)")
	flagSet.Uint64Var(&chainID, "chain-id", 0, "expected chain id behind the endpoint")
	flagSet.DurationVar(&timeout, "timeout", 30*time.Second, "fetch timeout")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeFetchError(jsonOutput, err, exitInvalidInput)
	}
	if helpFlag {
		printFetchUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		return writeFetchError(jsonOutput, coreerrors.Wrap(
			fmt.Errorf("unexpected arguments: %v", flagSet.Args()),
			coreerrors.CategoryInvalidInput, "too_many_arguments",
			"fetch takes flags only", false,
		), exitInvalidInput)
	}
	if address == "" {
		return writeFetchError(jsonOutput, coreerrors.Wrap(
			fmt.Errorf("contract address is required"),
			coreerrors.CategoryInvalidInput, "address_required",
			"pass --address", false,
		), exitInvalidInput)
	}
	workspace, err := loadWorkspace(".")
	if err != nil {
		return writeFetchError(jsonOutput, coreerrors.Wrap(
			err, coreerrors.CategoryInvalidInput, "workspace_config_invalid",
			"fix or remove .kiln.yaml", false,
		), exitInvalidInput)
	}
	network, err := resolveNetwork(workspace, networkName, rpcURL, chainID)
	if err != nil {
		return writeFetchError(jsonOutput, err, exitInvalidInput)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	info, err := chain.FetchCode(ctx, network, address)
	if err != nil {
		return writeFetchError(jsonOutput, err, exitFailure)
	}

	return writeFetchOutput(jsonOutput, fetchOutput{
		Status:       "success",
		Command:      "fetch",
		Address:      info.Address,
		Network:      info.Network.Name,
		ChainID:      info.Network.ChainID,
		BytecodeHash: info.Hash,
		BytecodeSize: info.Size,
	}, exitOK)
}

func writeFetchOutput(jsonOutput bool, output fetchOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	fmt.Printf("fetch ok: %s\n", output.Address)
	fmt.Printf("network: %s (chain id %d)\n", output.Network, output.ChainID)
	fmt.Printf("bytecode hash: %s\n", output.BytecodeHash)
	fmt.Printf("bytecode size: %d bytes\n", output.BytecodeSize)
	return exitCode
}

func writeFetchError(jsonOutput bool, err error, fallbackExit int) int {
	exitCode := exitCodeForError(err, fallbackExit)
	if jsonOutput {
		return writeJSONOutput(newCommandError("fetch", err), exitCode)
	}
	fmt.Printf("fetch error: %v\n", err)
	if hint := coreerrors.HintOf(err); hint != "" {
		fmt.Printf("hint: %s\n", hint)
	}
	return exitCode
}

func printFetchUsage() {
	fmt.Println("Usage:")
	fmt.Println("  kiln fetch --address <0x..> [--network <name>|--rpc <url>] [--chain-id <id>] [--timeout <dur>] [--json] [--explain]")
}
