package artifacts

import (
	"errors"
	"fmt"

	"github.com/davidahmann/kiln/core/config"
	coreerrors "github.com/davidahmann/kiln/core/errors"
	"github.com/davidahmann/kiln/core/fingerprint"
	"github.com/davidahmann/kiln/core/schema/v1/metadata"
)

// Artifacts is everything generated for one compiled contract.
type Artifacts struct {
	ABI       ABI
	Interface string
	Metadata  *metadata.Document
}

// Input carries the compiled bytes and resolved descriptors artifact
// generation consumes. Every field except SourceFiles and WorkspaceRoot is
// required; missing descriptor data fails generation rather than being
// silently defaulted, because the metadata document's correctness is the
// whole point of producing it.
type Input struct {
	Contract  config.Contract
	Config    config.Config
	Toolchain config.Toolchain
	Source    metadata.Source

	Signatures []MethodSignature
	Wasm       []byte
	Rwasm      []byte

	Fingerprint *fingerprint.Fingerprint

	// SourceFiles is the optional per-file hash map recorded alongside the
	// fingerprint.
	SourceFiles map[string]metadata.SourceFile
	// WorkspaceRoot is set when the project lives inside a larger cargo
	// workspace.
	WorkspaceRoot string
}

// Generate builds the ABI, interface source, and metadata document from a
// finished compilation.
func Generate(in Input) (*Artifacts, error) {
	if err := validateInput(in); err != nil {
		return nil, coreerrors.Wrap(fmt.Errorf("generate artifacts: %w", err), coreerrors.CategoryInvalidInput, "metadata_descriptor_incomplete", "resolve the project configuration before generating artifacts", false)
	}
	abi, err := FromSignatures(in.Signatures)
	if err != nil {
		return nil, err
	}
	interfaceSource, err := GenerateInterface(in.Contract.Name, abi)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CategoryInvalidInput, "interface_generation_failed", "fix the method signatures in the contract source", false)
	}

	tag, commit := config.ParseSDKVersion(in.Contract.SDKVersion)
	doc := &metadata.Document{
		SchemaVersion: metadata.SchemaVersion,
		Contract: metadata.Contract{
			Name:       in.Contract.Name,
			Version:    in.Contract.Version,
			SDKVersion: in.Contract.SDKVersion,
		},
		Source: in.Source,
		CompilationSettings: metadata.CompilationSettings{
			Rust: metadata.RustInfo{
				Version: in.Toolchain.Channel,
				Target:  in.Toolchain.Target,
			},
			SDK: metadata.SDKInfo{
				Tag:    tag,
				Commit: commit,
			},
			BuildCfg: metadata.BuildInfo{
				Profile:           in.Config.Profile,
				Features:          in.Config.Features,
				NoDefaultFeatures: in.Config.NoDefaultFeatures,
				Locked:            in.Config.Locked,
			},
		},
		BuiltAt: in.Fingerprint.BuiltAt,
		Bytecode: metadata.Bytecode{
			Wasm: metadata.ArtifactInfo{
				Hash: fingerprint.HashBytes(in.Wasm),
				Size: len(in.Wasm),
				Path: WasmFileName,
			},
			Rwasm: metadata.ArtifactInfo{
				Hash: fingerprint.HashBytes(in.Rwasm),
				Size: len(in.Rwasm),
				Path: RwasmFileName,
			},
		},
		SourceFiles: in.SourceFiles,
		Dependencies: metadata.Dependencies{
			CargoLockHash: in.Fingerprint.ManifestLockHash,
		},
		WorkspaceRoot:  in.WorkspaceRoot,
		ToolchainHash:  in.Fingerprint.ToolchainHash,
		SourceTreeHash: in.Fingerprint.SourceTreeHash,
	}
	// The compatibility block exists exactly when the contract exposes
	// callable methods; its paths name the sibling files in the output dir.
	if len(abi) > 0 {
		doc.SolidityCompat = &metadata.SolidityCompat{
			ABIPath:           ABIFileName,
			InterfacePath:     InterfaceFileName,
			FunctionSelectors: Selectors(abi),
		}
	}

	return &Artifacts{
		ABI:       abi,
		Interface: interfaceSource,
		Metadata:  doc,
	}, nil
}

func validateInput(in Input) error {
	switch {
	case in.Contract.Name == "":
		return errors.New("contract name is empty")
	case in.Contract.Version == "":
		return errors.New("contract version is empty")
	case in.Contract.SDKVersion == "":
		return errors.New("sdk version is empty")
	case in.Toolchain.Channel == "":
		return errors.New("toolchain channel is empty")
	case in.Toolchain.Target == "":
		return errors.New("toolchain target is empty")
	case in.Fingerprint == nil:
		return errors.New("fingerprint is missing")
	case len(in.Wasm) == 0:
		return errors.New("wasm bytecode is empty")
	case len(in.Rwasm) == 0:
		return errors.New("rwasm bytecode is empty")
	}
	return validateSource(in.Source)
}

func validateSource(source metadata.Source) error {
	if source.ProjectPath == "" {
		return errors.New("source project path is empty")
	}
	switch source.Type {
	case metadata.SourceTypeGit:
		if source.Repository == "" || source.Commit == "" {
			return errors.New("git source requires repository and commit")
		}
	case metadata.SourceTypeArchive:
		if source.ArchivePath == "" {
			return errors.New("archive source requires an archive path")
		}
	default:
		return fmt.Errorf("unknown source type %q", source.Type)
	}
	return nil
}
