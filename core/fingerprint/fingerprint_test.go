package fingerprint

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/davidahmann/kiln/core/config"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for relative, content := range files {
		path := filepath.Join(root, filepath.FromSlash(relative))
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatalf("mkdir for %s: %v", relative, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", relative, err)
		}
	}
}

func contractProject() map[string]string {
	return map[string]string{
		"Cargo.toml":          "[package]\nname = \"demo\"\nversion = \"0.1.0\"\n",
		"Cargo.lock":          "version = 3\n",
		"rust-toolchain.toml": "[toolchain]\nchannel = \"1.83.0\"\n",
		"src/lib.rs":          "pub fn main() {}\n",
		"src/router.rs":       "pub fn dispatch() {}\n",
	}
}

func TestSelectSourcesFiltersAndSorts(t *testing.T) {
	root := t.TempDir()
	files := contractProject()
	files["target/release/demo.wasm"] = "binary"
	files["out/demo.wasm/lib.wasm"] = "binary"
	files[".git/config"] = "[core]\n"
	files["README.md"] = "# demo\n"
	files["src/.hidden.rs"] = "ignored\n"
	writeTree(t, root, files)

	got, err := SelectSources(root)
	if err != nil {
		t.Fatalf("select sources: %v", err)
	}
	want := []string{
		"Cargo.lock",
		"Cargo.toml",
		"rust-toolchain.toml",
		"src/lib.rs",
		"src/router.rs",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected selection:\n got %v\nwant %v", got, want)
	}
}

func TestSourceTreeHashDeterministic(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeTree(t, first, contractProject())

	// Write the second copy in a different order to vary directory state.
	files := contractProject()
	writeTree(t, second, map[string]string{"src/router.rs": files["src/router.rs"]})
	writeTree(t, second, map[string]string{
		"rust-toolchain.toml": files["rust-toolchain.toml"],
		"Cargo.toml":          files["Cargo.toml"],
		"src/lib.rs":          files["src/lib.rs"],
		"Cargo.lock":          files["Cargo.lock"],
	})

	firstHash, err := SourceTreeHash(first)
	if err != nil {
		t.Fatalf("hash first tree: %v", err)
	}
	secondHash, err := SourceTreeHash(second)
	if err != nil {
		t.Fatalf("hash second tree: %v", err)
	}
	if firstHash != secondHash {
		t.Fatalf("identical trees hashed differently: %s vs %s", firstHash, secondHash)
	}
}

func TestSourceTreeHashSensitivity(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, contractProject())
	baseline, err := SourceTreeHash(root)
	if err != nil {
		t.Fatalf("baseline hash: %v", err)
	}

	// A change inside an excluded directory must not move the hash.
	writeTree(t, root, map[string]string{"target/release/build.log": "noise\n"})
	unchanged, err := SourceTreeHash(root)
	if err != nil {
		t.Fatalf("hash after excluded change: %v", err)
	}
	if unchanged != baseline {
		t.Fatal("change under target/ moved the source tree hash")
	}

	// A one-byte change in an included file must move it.
	writeTree(t, root, map[string]string{"src/lib.rs": "pub fn main() {}!\n"})
	changed, err := SourceTreeHash(root)
	if err != nil {
		t.Fatalf("hash after source change: %v", err)
	}
	if changed == baseline {
		t.Fatal("source edit did not move the source tree hash")
	}
}

func TestComputeUsesLockSentinelWhenAbsent(t *testing.T) {
	root := t.TempDir()
	files := contractProject()
	delete(files, "Cargo.lock")
	writeTree(t, root, files)

	fp, err := Compute(root, config.Toolchain{Channel: "1.83.0", Target: config.Target}, config.Contract{Name: "demo", Version: "0.1.0", SDKVersion: "0.3.0"})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if fp.ManifestLockHash != HashBytes([]byte(lockSentinel)) {
		t.Fatalf("expected sentinel lock hash, got %s", fp.ManifestLockHash)
	}
	if fp.BuiltAt == 0 {
		t.Fatal("expected built_at to be populated")
	}
}

func TestComputeHashesLockFileBytes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, contractProject())

	fp, err := Compute(root, config.Toolchain{Channel: "1.83.0", Target: config.Target}, config.Contract{Name: "demo", Version: "0.1.0", SDKVersion: "0.3.0"})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if fp.ManifestLockHash != HashBytes([]byte("version = 3\n")) {
		t.Fatalf("lock hash does not match raw lock bytes: %s", fp.ManifestLockHash)
	}
}

func TestToolchainHashSensitivity(t *testing.T) {
	contract := config.Contract{Name: "demo", Version: "0.1.0", SDKVersion: "0.3.0-8a9b0c1d"}
	base := ToolchainHash(config.Toolchain{Channel: "1.83.0"}, contract)
	if base != ToolchainHash(config.Toolchain{Channel: "1.83.0"}, contract) {
		t.Fatal("toolchain hash is not stable")
	}
	if base == ToolchainHash(config.Toolchain{Channel: "1.84.0"}, contract) {
		t.Fatal("channel change did not move the toolchain hash")
	}
	other := config.Contract{Name: "demo", Version: "0.1.0", SDKVersion: "0.3.1"}
	if base == ToolchainHash(config.Toolchain{Channel: "1.83.0"}, other) {
		t.Fatal("sdk change did not move the toolchain hash")
	}
}

func TestHashSourceFilesRecordsLicenses(t *testing.T) {
	root := t.TempDir()
	files := contractProject()
	files["src/lib.rs"] = "// SPDX-License-Identifier: MIT\npub fn main() {}\n"
	files["src/late.rs"] = "//\n//\n//\n//\n//\n// SPDX-License-Identifier: Apache-2.0\n"
	writeTree(t, root, files)

	hashed, err := HashSourceFiles(root)
	if err != nil {
		t.Fatalf("hash source files: %v", err)
	}
	lib, ok := hashed["src/lib.rs"]
	if !ok {
		t.Fatal("missing src/lib.rs entry")
	}
	if lib.License != "MIT" {
		t.Fatalf("unexpected license: %q", lib.License)
	}
	if lib.Hash != HashBytes([]byte(files["src/lib.rs"])) {
		t.Fatalf("unexpected file hash: %s", lib.Hash)
	}
	late, ok := hashed["src/late.rs"]
	if !ok {
		t.Fatal("missing src/late.rs entry")
	}
	if late.License != "" {
		t.Fatalf("license marker beyond the scan window should be ignored, got %q", late.License)
	}
	router := hashed["src/router.rs"]
	if router.License != "" {
		t.Fatalf("file without marker should carry no license, got %q", router.License)
	}
}

func TestHashFileMatchesHashBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	payload := []byte{0x00, 0x01, 0x02, 0xff}
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("hash file: %v", err)
	}
	if got != HashBytes(payload) {
		t.Fatalf("hash mismatch: %s vs %s", got, HashBytes(payload))
	}
}
