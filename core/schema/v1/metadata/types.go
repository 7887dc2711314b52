// Package metadata defines the contract verification metadata document.
//
// The JSON shape produced by these types is a compatibility contract with
// external verifiers and explorers. Any field addition, removal, or
// reinterpretation requires a SchemaVersion bump; consumers key off
// schema_version, never off field presence.
package metadata

// SchemaVersion is the current metadata document revision.
const SchemaVersion = 1

const (
	SourceTypeGit     = "git"
	SourceTypeArchive = "archive"
)

type Document struct {
	SchemaVersion       int                   `json:"schema_version"`
	Contract            Contract              `json:"contract"`
	Source              Source                `json:"source"`
	CompilationSettings CompilationSettings   `json:"compilation_settings"`
	BuiltAt             int64                 `json:"built_at"`
	Bytecode            Bytecode              `json:"bytecode"`
	SolidityCompat      *SolidityCompat       `json:"solidity_compatibility,omitempty"`
	SourceFiles         map[string]SourceFile `json:"source_files,omitempty"`
	Dependencies        Dependencies          `json:"dependencies"`
	WorkspaceRoot       string                `json:"workspace_root,omitempty"`
	ToolchainHash       string                `json:"toolchain_hash"`
	SourceTreeHash      string                `json:"source_tree_hash"`
}

type Contract struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	SDKVersion string `json:"sdk_version"`
}

// Source is the provenance tagged union. Type selects which optional fields
// are populated: git carries repository+commit, archive carries archive_path.
// ProjectPath is always present.
type Source struct {
	Type        string `json:"type"`
	Repository  string `json:"repository,omitempty"`
	Commit      string `json:"commit,omitempty"`
	ArchivePath string `json:"archive_path,omitempty"`
	ProjectPath string `json:"project_path"`
}

func (s Source) IsGit() bool {
	return s.Type == SourceTypeGit
}

func (s Source) IsArchive() bool {
	return s.Type == SourceTypeArchive
}

type CompilationSettings struct {
	Rust     RustInfo  `json:"rust"`
	SDK      SDKInfo   `json:"sdk"`
	BuildCfg BuildInfo `json:"build_cfg"`
}

type RustInfo struct {
	Version string `json:"version"`
	Target  string `json:"target"`
}

type SDKInfo struct {
	Tag    string `json:"tag"`
	Commit string `json:"commit"`
}

type BuildInfo struct {
	Profile           string   `json:"profile"`
	Features          []string `json:"features,omitempty"`
	NoDefaultFeatures bool     `json:"no_default_features"`
	Locked            bool     `json:"locked"`
}

type Bytecode struct {
	Wasm  ArtifactInfo `json:"wasm"`
	Rwasm ArtifactInfo `json:"rwasm"`
}

type ArtifactInfo struct {
	Hash string `json:"hash"`
	Size int    `json:"size"`
	Path string `json:"path"`
}

type SolidityCompat struct {
	ABIPath           string            `json:"abi_path"`
	InterfacePath     string            `json:"interface_path"`
	FunctionSelectors map[string]string `json:"function_selectors"`
}

type SourceFile struct {
	Hash    string `json:"hash"`
	License string `json:"license,omitempty"`
}

type Dependencies struct {
	CargoLockHash string `json:"cargo_lock_hash"`
}
