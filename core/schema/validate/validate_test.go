package validate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davidahmann/kiln/core/jcs"
	"github.com/davidahmann/kiln/core/schema/v1/metadata"
)

const (
	testHashA = "1111111111111111111111111111111111111111111111111111111111111111"
	testHashB = "2222222222222222222222222222222222222222222222222222222222222222"
	testHashC = "3333333333333333333333333333333333333333333333333333333333333333"
)

func validDocument() map[string]any {
	return map[string]any{
		"schema_version": 1,
		"contract": map[string]any{
			"name":        "token-demo",
			"version":     "0.1.0",
			"sdk_version": "0.3.0-8a9b0c1d",
		},
		"source": map[string]any{
			"type":         "git",
			"repository":   "https://github.com/acme/token-demo",
			"commit":       "8a9b0c1d2e3f8a9b0c1d2e3f8a9b0c1d2e3f8a9b",
			"project_path": ".",
		},
		"compilation_settings": map[string]any{
			"rust": map[string]any{
				"version": "1.83.0",
				"target":  "wasm32-unknown-unknown",
			},
			"sdk": map[string]any{
				"tag":    "0.3.0",
				"commit": "8a9b0c1d",
			},
			"build_cfg": map[string]any{
				"profile":             "release",
				"no_default_features": false,
				"locked":              true,
			},
		},
		"built_at": 1756000000,
		"bytecode": map[string]any{
			"wasm": map[string]any{
				"hash": testHashA,
				"size": 1024,
				"path": "lib.wasm",
			},
			"rwasm": map[string]any{
				"hash": testHashB,
				"size": 2048,
				"path": "lib.rwasm",
			},
		},
		"solidity_compatibility": map[string]any{
			"abi_path":       "abi.json",
			"interface_path": "interface.sol",
			"function_selectors": map[string]any{
				"transfer(address,uint256)": "a9059cbb",
			},
		},
		"source_files": map[string]any{
			"src/lib.rs": map[string]any{
				"hash":    testHashC,
				"license": "MIT",
			},
		},
		"dependencies": map[string]any{
			"cargo_lock_hash": testHashC,
		},
		"workspace_root":   "contracts",
		"toolchain_hash":   testHashA,
		"source_tree_hash": testHashB,
	}
}

func marshalDocument(t *testing.T, doc map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal document: %v", err)
	}
	return data
}

func TestMetadataAcceptsFullDocument(t *testing.T) {
	if err := Metadata(marshalDocument(t, validDocument())); err != nil {
		t.Fatalf("expected valid document, got error: %v", err)
	}
}

func TestMetadataAcceptsArchiveSource(t *testing.T) {
	doc := validDocument()
	doc["source"] = map[string]any{
		"type":         "archive",
		"archive_path": "./source.tar.gz",
		"project_path": ".",
	}
	delete(doc, "solidity_compatibility")
	delete(doc, "source_files")
	delete(doc, "workspace_root")
	if err := Metadata(marshalDocument(t, doc)); err != nil {
		t.Fatalf("expected valid archive document, got error: %v", err)
	}
}

func TestMetadataRejectsInvalidDocuments(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(doc map[string]any)
	}{
		{
			name: "wrong schema version",
			mutate: func(doc map[string]any) {
				doc["schema_version"] = 2
			},
		},
		{
			name: "missing contract",
			mutate: func(doc map[string]any) {
				delete(doc, "contract")
			},
		},
		{
			name: "missing toolchain hash",
			mutate: func(doc map[string]any) {
				delete(doc, "toolchain_hash")
			},
		},
		{
			name: "git source without commit",
			mutate: func(doc map[string]any) {
				doc["source"] = map[string]any{
					"type":         "git",
					"repository":   "https://github.com/acme/token-demo",
					"project_path": ".",
				}
			},
		},
		{
			name: "archive source without path",
			mutate: func(doc map[string]any) {
				doc["source"] = map[string]any{
					"type":         "archive",
					"project_path": ".",
				}
			},
		},
		{
			name: "unknown source type",
			mutate: func(doc map[string]any) {
				doc["source"] = map[string]any{
					"type":         "tarball",
					"project_path": ".",
				}
			},
		},
		{
			name: "uppercase tree hash",
			mutate: func(doc map[string]any) {
				doc["source_tree_hash"] = strings.ToUpper(testHashB)
			},
		},
		{
			name: "truncated bytecode hash",
			mutate: func(doc map[string]any) {
				doc["bytecode"].(map[string]any)["wasm"].(map[string]any)["hash"] = "abc123"
			},
		},
		{
			name: "selector too short",
			mutate: func(doc map[string]any) {
				doc["solidity_compatibility"].(map[string]any)["function_selectors"] = map[string]any{
					"transfer(address,uint256)": "a9059c",
				}
			},
		},
		{
			name: "negative built_at",
			mutate: func(doc map[string]any) {
				doc["built_at"] = -1
			},
		},
		{
			name: "unknown top-level field",
			mutate: func(doc map[string]any) {
				doc["extra"] = "value"
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			doc := validDocument()
			c.mutate(doc)
			if err := Metadata(marshalDocument(t, doc)); err == nil {
				t.Fatalf("expected document to fail validation")
			}
		})
	}
}

func TestMetadataRejectsMalformedJSON(t *testing.T) {
	if err := Metadata([]byte("{")); err == nil {
		t.Fatalf("expected malformed json to fail")
	}
}

// The Document struct and the embedded schema describe the same wire shape;
// a document assembled from the typed side must satisfy the schema side.
func TestMetadataMatchesTypedDocument(t *testing.T) {
	doc := metadata.Document{
		SchemaVersion: metadata.SchemaVersion,
		Contract: metadata.Contract{
			Name:       "token-demo",
			Version:    "0.1.0",
			SDKVersion: "0.3.0-8a9b0c1d",
		},
		Source: metadata.Source{
			Type:        metadata.SourceTypeArchive,
			ArchivePath: "./source.tar.gz",
			ProjectPath: ".",
		},
		CompilationSettings: metadata.CompilationSettings{
			Rust: metadata.RustInfo{Version: "1.83.0", Target: "wasm32-unknown-unknown"},
			SDK:  metadata.SDKInfo{Tag: "0.3.0", Commit: "8a9b0c1d"},
			BuildCfg: metadata.BuildInfo{
				Profile:  "release",
				Features: []string{"erc20"},
				Locked:   true,
			},
		},
		BuiltAt: 1756000000,
		Bytecode: metadata.Bytecode{
			Wasm:  metadata.ArtifactInfo{Hash: testHashA, Size: 1024, Path: "lib.wasm"},
			Rwasm: metadata.ArtifactInfo{Hash: testHashB, Size: 2048, Path: "lib.rwasm"},
		},
		Dependencies:   metadata.Dependencies{CargoLockHash: testHashC},
		ToolchainHash:  testHashA,
		SourceTreeHash: testHashB,
	}
	data, err := jcs.MarshalCanonical(doc)
	if err != nil {
		t.Fatalf("marshal canonical: %v", err)
	}
	if err := Metadata(data); err != nil {
		t.Fatalf("typed document failed schema validation: %v", err)
	}
}

func TestValidateJSONFile(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeTestFile(t, dir, "record.schema.json", `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["name", "hash"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"hash": {"type": "string", "pattern": "^[0-9a-f]{64}$"}
		}
	}`)
	valid := writeTestFile(t, dir, "valid.json", `{"name":"demo","hash":"`+testHashA+`"}`)
	invalid := writeTestFile(t, dir, "invalid.json", `{"name":"demo"}`)

	if err := ValidateJSONFile(schemaPath, valid); err != nil {
		t.Fatalf("expected valid record, got error: %v", err)
	}
	if err := ValidateJSONFile(schemaPath, invalid); err == nil {
		t.Fatalf("expected invalid record to fail")
	}
}

func TestValidateJSONL(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeTestFile(t, dir, "line.schema.json", `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["status"],
		"properties": {"status": {"enum": ["success", "failed"]}}
	}`)

	valid := []byte("\n" + `{"status":"success"}` + "\n" + `{"status":"failed"}` + "\n")
	if err := ValidateJSONL(schemaPath, valid); err != nil {
		t.Fatalf("expected valid jsonl, got error: %v", err)
	}

	invalid := []byte(`{"status":"success"}` + "\n" + `{"status":"pending"}` + "\n")
	err := ValidateJSONL(schemaPath, invalid)
	if err == nil {
		t.Fatalf("expected invalid jsonl to fail")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected failure to name line 2, got: %v", err)
	}
}

func TestValidateSchemaMissing(t *testing.T) {
	err := ValidateJSONFile("does-not-exist.json", "also-missing.json")
	if err == nil {
		t.Fatalf("expected error for missing schema file")
	}
}

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
