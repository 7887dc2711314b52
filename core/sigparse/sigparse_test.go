package sigparse

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davidahmann/kiln/core/artifacts"
	coreerrors "github.com/davidahmann/kiln/core/errors"
)

const tokenSource = `
use fluentbase_sdk::{derive::function_id, derive::router, Address, SharedAPI, U256};

pub struct TokenDemo<SDK> {
    sdk: SDK,
}

#[router(mode = "solidity")]
impl<SDK: SharedAPI> TokenDemo<SDK> {
    #[function_id("balanceOf(address)")]
    pub fn balance_of(&self, owner: Address) -> U256 {
        self.balance(owner)
    }

    pub fn transfer(&mut self, to: Address, amount: U256) -> bool {
        self.move_tokens(to, amount)
    }

    #[payable]
    pub fn deposit(&mut self) {
        let value = self.sdk.value();
        self.credit(value);
    }

    fn move_tokens(&mut self, to: Address, amount: U256) -> bool {
        true
    }
}
`

func TestParseSourceTokenContract(t *testing.T) {
	signatures, err := ParseSource(tokenSource)
	if err != nil {
		t.Fatalf("ParseSource: %v", err)
	}
	if len(signatures) != 3 {
		t.Fatalf("expected 3 routed methods, got %d: %+v", len(signatures), signatures)
	}

	balanceOf := signatures[0]
	if balanceOf.Name != "balanceOf" {
		t.Fatalf("snake_case name not converted: %q", balanceOf.Name)
	}
	if balanceOf.Mutability != artifacts.MutabilityView {
		t.Fatalf("balanceOf mutability = %q", balanceOf.Mutability)
	}
	if len(balanceOf.Inputs) != 1 || balanceOf.Inputs[0].Name != "owner" || balanceOf.Inputs[0].Type != "address" {
		t.Fatalf("balanceOf inputs = %+v", balanceOf.Inputs)
	}
	if len(balanceOf.Outputs) != 1 || balanceOf.Outputs[0].Type != "uint256" {
		t.Fatalf("balanceOf outputs = %+v", balanceOf.Outputs)
	}

	transfer := signatures[1]
	if transfer.Name != "transfer" || transfer.Mutability != artifacts.MutabilityNonPayable {
		t.Fatalf("transfer = %+v", transfer)
	}
	if len(transfer.Inputs) != 2 || transfer.Inputs[0].Name != "to" || transfer.Inputs[1].Type != "uint256" {
		t.Fatalf("transfer inputs = %+v", transfer.Inputs)
	}
	if len(transfer.Outputs) != 1 || transfer.Outputs[0].Type != "bool" {
		t.Fatalf("transfer outputs = %+v", transfer.Outputs)
	}

	deposit := signatures[2]
	if deposit.Name != "deposit" || deposit.Mutability != artifacts.MutabilityPayable {
		t.Fatalf("deposit = %+v", deposit)
	}
	if len(deposit.Inputs) != 0 || len(deposit.Outputs) != 0 {
		t.Fatalf("deposit must have no parameters: %+v", deposit)
	}

	for _, signature := range signatures {
		if signature.Name == "moveTokens" {
			t.Fatalf("private method leaked into the routed set")
		}
	}
}

func TestParseSourceTraitImpl(t *testing.T) {
	source := `
pub trait TokenAPI {
    fn total_supply(&self) -> U256;
}

#[router(mode = "solidity")]
impl<SDK: SharedAPI> TokenAPI for TokenDemo<SDK> {
    fn total_supply(&self) -> U256 {
        self.supply
    }
}
`
	signatures, err := ParseSource(source)
	if err != nil {
		t.Fatalf("ParseSource: %v", err)
	}
	if len(signatures) != 1 {
		t.Fatalf("expected 1 method from the trait impl, got %d", len(signatures))
	}
	if signatures[0].Name != "totalSupply" {
		t.Fatalf("name = %q", signatures[0].Name)
	}
	if signatures[0].Mutability != artifacts.MutabilityView {
		t.Fatalf("mutability = %q", signatures[0].Mutability)
	}
}

func TestParseSourceNoRouter(t *testing.T) {
	source := `
pub struct Plain {
    field: u32,
}

impl Plain {
    pub fn new() -> Self {
        Self { field: 0 }
    }
}
`
	signatures, err := ParseSource(source)
	if err != nil {
		t.Fatalf("ParseSource: %v", err)
	}
	if len(signatures) != 0 {
		t.Fatalf("expected no signatures, got %+v", signatures)
	}
}

func TestParseSourceMultipleRouterBlocks(t *testing.T) {
	source := `
#[router]
impl<SDK: SharedAPI> ReadAPI for Contract<SDK> {
    fn owner(&self) -> Address {
        self.owner
    }
}

#[router]
impl<SDK: SharedAPI> WriteAPI for Contract<SDK> {
    fn set_owner(&mut self, next_owner: Address) {
        self.owner = next_owner;
    }
}
`
	signatures, err := ParseSource(source)
	if err != nil {
		t.Fatalf("ParseSource: %v", err)
	}
	if len(signatures) != 2 {
		t.Fatalf("expected methods from both blocks, got %d", len(signatures))
	}
	if signatures[0].Name != "owner" || signatures[1].Name != "setOwner" {
		t.Fatalf("source order not preserved: %q, %q", signatures[0].Name, signatures[1].Name)
	}
	if signatures[1].Inputs[0].Name != "nextOwner" {
		t.Fatalf("parameter name not converted: %q", signatures[1].Inputs[0].Name)
	}
}

func TestParseSourceMutability(t *testing.T) {
	cases := []struct {
		name   string
		method string
		want   artifacts.Mutability
	}{
		{"borrowed receiver", "pub fn get(&self) -> U256 { self.value }", artifacts.MutabilityView},
		{"mutable receiver", "pub fn set(&mut self, value: U256) { self.value = value; }", artifacts.MutabilityNonPayable},
		{"no receiver", "pub fn version() -> String { String::new() }", artifacts.MutabilityPure},
		{"payable attribute", "#[payable]\n    pub fn fund(&mut self) { }", artifacts.MutabilityPayable},
	}
	for _, c := range cases {
		source := "#[router(mode = \"solidity\")]\nimpl<SDK: SharedAPI> Contract<SDK> {\n    " + c.method + "\n}\n"
		signatures, err := ParseSource(source)
		if err != nil {
			t.Fatalf("%s: ParseSource: %v", c.name, err)
		}
		if len(signatures) != 1 {
			t.Fatalf("%s: expected 1 method, got %d", c.name, len(signatures))
		}
		if signatures[0].Mutability != c.want {
			t.Fatalf("%s: mutability = %q, want %q", c.name, signatures[0].Mutability, c.want)
		}
	}
}

func TestParseSourceTupleReturn(t *testing.T) {
	source := `
#[router]
impl<SDK: SharedAPI> Contract<SDK> {
    pub fn get_pair(&self) -> (U256, Address) {
        (self.amount, self.owner)
    }
}
`
	signatures, err := ParseSource(source)
	if err != nil {
		t.Fatalf("ParseSource: %v", err)
	}
	if signatures[0].Name != "getPair" {
		t.Fatalf("name = %q", signatures[0].Name)
	}
	outputs := signatures[0].Outputs
	if len(outputs) != 2 || outputs[0].Type != "uint256" || outputs[1].Type != "address" {
		t.Fatalf("tuple return not expanded: %+v", outputs)
	}
}

func TestParseSourceUnsupportedType(t *testing.T) {
	source := `
#[router]
impl<SDK: SharedAPI> Contract<SDK> {
    pub fn register(&mut self, entries: HashMap<Address, U256>) { }
}
`
	_, err := ParseSource(source)
	if err == nil {
		t.Fatalf("expected error for unmapped type")
	}
	if coreerrors.CodeOf(err) != "signature_type_unsupported" {
		t.Fatalf("code = %q", coreerrors.CodeOf(err))
	}
	if !strings.Contains(err.Error(), "HashMap") {
		t.Fatalf("error does not name the offending token: %v", err)
	}
}

func TestParseSourceCommentedRouterIgnored(t *testing.T) {
	source := `
// #[router]
// impl<SDK: SharedAPI> Old for Contract<SDK> { fn gone(&self) { } }

/* #[router]
impl Dead for Contract {
    fn buried(&self) { }
} */

#[router(mode = "solidity")]
impl<SDK: SharedAPI> Live for Contract<SDK> {
    fn current(&self) -> bool {
        true
    }
}
`
	signatures, err := ParseSource(source)
	if err != nil {
		t.Fatalf("ParseSource: %v", err)
	}
	if len(signatures) != 1 || signatures[0].Name != "current" {
		t.Fatalf("commented-out routers leaked: %+v", signatures)
	}
}

func TestMapType(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"U256", "uint256"},
		{"Address", "address"},
		{"Bytes", "bytes"},
		{"String", "string"},
		{"&str", "string"},
		{"bool", "bool"},
		{"u8", "uint8"},
		{"u32", "uint32"},
		{"u128", "uint128"},
		{"i8", "int8"},
		{"i64", "int64"},
		{"i128", "int128"},
		{"FixedBytes<32>", "bytes32"},
		{"FixedBytes<1>", "bytes1"},
		{"Vec<U256>", "uint256[]"},
		{"Vec<Vec<u8>>", "uint8[][]"},
		{"fluentbase_sdk::U256", "uint256"},
		{" U256 ", "uint256"},
	}
	for _, c := range cases {
		got, err := MapType(c.in)
		if err != nil {
			t.Fatalf("MapType(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("MapType(%q) = %q, want %q", c.in, got, c.want)
		}
	}

	rejected := []string{"Duck", "FixedBytes<0>", "FixedBytes<33>", "HashMap<u32, bool>", "u24", "Vec<Duck>", ""}
	for _, in := range rejected {
		if _, err := MapType(in); err == nil {
			t.Fatalf("MapType(%q) succeeded, want error", in)
		}
	}
}

func TestParserReadsSourceFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lib.rs")
	if err := os.WriteFile(path, []byte(tokenSource), 0o600); err != nil {
		t.Fatalf("write source: %v", err)
	}
	signatures, err := Parser{}.Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(signatures) != 3 {
		t.Fatalf("expected 3 methods, got %d", len(signatures))
	}
}

func TestParserMissingSourceFile(t *testing.T) {
	_, err := Parser{}.Parse(filepath.Join(t.TempDir(), "absent.rs"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
	if coreerrors.CodeOf(err) != "source_unreadable" {
		t.Fatalf("code = %q", coreerrors.CodeOf(err))
	}
	if coreerrors.CategoryOf(err) != coreerrors.CategoryIOFailure {
		t.Fatalf("category = %q", coreerrors.CategoryOf(err))
	}
}
