package main

import (
	"fmt"
	"os"
)

// version is stamped at release time via ldflags; default stays dev for local builds.
var version = "0.0.0-dev"

func main() {
	os.Exit(run(os.Args))
}

func run(arguments []string) int {
	if len(arguments) < 2 {
		fmt.Println("kiln", version)
		return exitOK
	}
	if arguments[1] == "--explain" {
		return writeExplain("Kiln compiles Fluent contracts into content-addressed wasm/rwasm artifacts with a deterministic build fingerprint, and verifies that deployed bytecode still matches the claimed source.")
	}

	switch arguments[1] {
	case "build":
		return runBuild(arguments[2:])
	case "verify":
		return runVerify(arguments[2:])
	case "archive":
		return runArchive(arguments[2:])
	case "fingerprint":
		return runFingerprint(arguments[2:])
	case "fetch":
		return runFetch(arguments[2:])
	case "inspect":
		return runInspect(arguments[2:])
	case "version", "--version", "-v":
		if hasExplainFlag(arguments[2:]) {
			return writeExplain("Print the CLI version.")
		}
		fmt.Println("kiln", version)
		return exitOK
	case "help", "--help", "-h":
		printUsage()
		return exitOK
	default:
		printUsage()
		return exitInvalidInput
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  kiln build [dir] [--out <dir>] [--profile release|debug|<custom>] [--features <csv>] [--no-default-features=<bool>] [--locked] [--allow-dirty] [--no-abi] [--no-interface] [--no-metadata] [--pretty=<bool>] [--archive-format tar.gz|zip] [--json] [--explain]")
	fmt.Println("  kiln verify [dir] --hash <sha256> [--profile <name>] [--features <csv>] [--audit-log <path>] [--json] [--explain]")
	fmt.Println("  kiln verify [dir] --address <0x...> [--network <name>|--rpc <url>] [--chain-id <id>] [--timeout <duration>] [--profile <name>] [--features <csv>] [--audit-log <path>] [--json] [--explain]")
	fmt.Println("  kiln archive [dir] [--out <path>] [--format tar.gz|zip] [--level <0-9>] [--json] [--explain]")
	fmt.Println("  kiln fingerprint [dir] [--json] [--explain]")
	fmt.Println("  kiln fetch --address <0x...> [--network <name>|--rpc <url>] [--chain-id <id>] [--timeout <duration>] [--json] [--explain]")
	fmt.Println("  kiln inspect <dir|metadata.json> [--json] [--explain]")
	fmt.Println("  kiln version")
}
