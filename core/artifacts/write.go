package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	coreerrors "github.com/davidahmann/kiln/core/errors"
	"github.com/davidahmann/kiln/core/fsx"
	"github.com/davidahmann/kiln/core/jcs"
	"github.com/davidahmann/kiln/core/schema/validate"
)

// Fixed file names inside a contract's output directory. External tooling
// navigates by these names; the metadata document references them.
const (
	WasmFileName      = "lib.wasm"
	RwasmFileName     = "lib.rwasm"
	ABIFileName       = "abi.json"
	InterfaceFileName = "interface.sol"
	MetadataFileName  = "metadata.json"
)

// OutputDirName is the per-contract directory under the build output root.
func OutputDirName(contractName string) string {
	return contractName + ".wasm"
}

// WriteOptions gate which artifact files are persisted. The bytecode files
// are always written.
type WriteOptions struct {
	GenerateABI       bool
	GenerateInterface bool
	GenerateMetadata  bool
	// PrettyJSON indents JSON artifacts for human readers; otherwise they
	// are written in canonical compact form.
	PrettyJSON bool
}

// Saved records where Write placed each artifact. Paths for skipped
// artifacts are empty.
type Saved struct {
	OutputDir     string `json:"output_dir"`
	WasmPath      string `json:"wasm_path"`
	RwasmPath     string `json:"rwasm_path"`
	ABIPath       string `json:"abi_path,omitempty"`
	InterfacePath string `json:"interface_path,omitempty"`
	MetadataPath  string `json:"metadata_path,omitempty"`
	ArchivePath   string `json:"archive_path,omitempty"`
}

// Write persists the compiled bytecode and generated artifacts under
// baseDir/<name>.wasm/. Every file lands atomically; the metadata document
// is checked against its published schema before it touches disk, so a
// generation bug can never publish a malformed compatibility contract.
func Write(baseDir, contractName string, wasm, rwasm []byte, arts *Artifacts, opts WriteOptions) (*Saved, error) {
	outputDir := filepath.Join(baseDir, OutputDirName(contractName))
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return nil, coreerrors.Wrap(fmt.Errorf("create output directory %s: %w", outputDir, err), coreerrors.CategoryIOFailure, "output_dir_create_failed", "check permissions on the output directory", false)
	}

	saved := &Saved{
		OutputDir: outputDir,
		WasmPath:  filepath.Join(outputDir, WasmFileName),
		RwasmPath: filepath.Join(outputDir, RwasmFileName),
	}
	if err := fsx.WriteFileAtomic(saved.WasmPath, wasm, 0o644); err != nil {
		return nil, wrapWriteErr(WasmFileName, err)
	}
	if err := fsx.WriteFileAtomic(saved.RwasmPath, rwasm, 0o644); err != nil {
		return nil, wrapWriteErr(RwasmFileName, err)
	}

	if opts.GenerateABI && len(arts.ABI) > 0 {
		data, err := marshalJSON(arts.ABI, opts.PrettyJSON)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(outputDir, ABIFileName)
		if err := fsx.WriteFileAtomic(path, data, 0o644); err != nil {
			return nil, wrapWriteErr(ABIFileName, err)
		}
		saved.ABIPath = path
	}

	if opts.GenerateInterface && arts.Interface != "" {
		path := filepath.Join(outputDir, InterfaceFileName)
		if err := fsx.WriteFileAtomic(path, []byte(arts.Interface), 0o644); err != nil {
			return nil, wrapWriteErr(InterfaceFileName, err)
		}
		saved.InterfacePath = path
	}

	if opts.GenerateMetadata && arts.Metadata != nil {
		data, err := marshalJSON(arts.Metadata, opts.PrettyJSON)
		if err != nil {
			return nil, err
		}
		if err := validate.Metadata(data); err != nil {
			return nil, coreerrors.Wrap(fmt.Errorf("metadata failed its schema self-check: %w", err), coreerrors.CategoryInternalFailure, "metadata_schema_violation", "report this: the generator produced a document outside its published schema", false)
		}
		path := filepath.Join(outputDir, MetadataFileName)
		if err := fsx.WriteFileAtomic(path, data, 0o644); err != nil {
			return nil, wrapWriteErr(MetadataFileName, err)
		}
		saved.MetadataPath = path
	}

	return saved, nil
}

func marshalJSON(value any, pretty bool) ([]byte, error) {
	if pretty {
		data, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return nil, coreerrors.Wrap(fmt.Errorf("marshal artifact: %w", err), coreerrors.CategoryInternalFailure, "artifact_marshal_failed", "", false)
		}
		return append(data, '\n'), nil
	}
	data, err := jcs.MarshalCanonical(value)
	if err != nil {
		return nil, coreerrors.Wrap(fmt.Errorf("marshal artifact: %w", err), coreerrors.CategoryInternalFailure, "artifact_marshal_failed", "", false)
	}
	return data, nil
}

func wrapWriteErr(name string, err error) error {
	return coreerrors.Wrap(fmt.Errorf("write %s: %w", name, err), coreerrors.CategoryIOFailure, "artifact_write_failed", "check permissions and free space under the output directory", false)
}
