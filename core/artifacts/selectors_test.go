package artifacts

import (
	"regexp"
	"testing"
)

func TestCanonicalSignature(t *testing.T) {
	cases := []struct {
		name  string
		entry Entry
		want  string
	}{
		{
			name: "no parameters",
			entry: Entry{
				Name: "totalSupply",
				Type: "function",
			},
			want: "totalSupply()",
		},
		{
			name: "two primitives",
			entry: Entry{
				Name: "transfer",
				Type: "function",
				Inputs: []Param{
					{Name: "to", Type: "address"},
					{Name: "amount", Type: "uint256"},
				},
			},
			want: "transfer(address,uint256)",
		},
		{
			name: "tuple expands to components",
			entry: Entry{
				Name: "submitOrder",
				Type: "function",
				Inputs: []Param{
					{
						Name:         "order",
						Type:         "tuple",
						InternalType: "struct Order",
						Components: []Param{
							{Name: "id", Type: "uint256"},
							{Name: "owner", Type: "address"},
						},
					},
				},
			},
			want: "submitOrder((uint256,address))",
		},
		{
			name: "tuple array expands with suffix",
			entry: Entry{
				Name: "submitBatch",
				Type: "function",
				Inputs: []Param{
					{
						Type:         "tuple[]",
						InternalType: "struct Order[]",
						Components: []Param{
							{Name: "id", Type: "uint256"},
						},
					},
				},
			},
			want: "submitBatch((uint256)[])",
		},
		{
			name: "primitive array",
			entry: Entry{
				Name:   "airdrop",
				Type:   "function",
				Inputs: []Param{{Name: "recipients", Type: "address[]"}},
			},
			want: "airdrop(address[])",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := CanonicalSignature(c.entry); got != c.want {
				t.Fatalf("CanonicalSignature = %q, want %q", got, c.want)
			}
		})
	}
}

// Selector values are checked against the ERC-20 dispatch identifiers every
// EVM toolchain agrees on.
func TestSelectorKnownValues(t *testing.T) {
	cases := []struct {
		signature string
		want      string
	}{
		{"transfer(address,uint256)", "a9059cbb"},
		{"balanceOf(address)", "70a08231"},
		{"approve(address,uint256)", "095ea7b3"},
		{"transferFrom(address,address,uint256)", "23b872dd"},
		{"totalSupply()", "18160ddd"},
		{"allowance(address,address)", "dd62ed3e"},
	}
	for _, c := range cases {
		if got := Selector(c.signature); got != c.want {
			t.Fatalf("Selector(%q) = %q, want %q", c.signature, got, c.want)
		}
	}
}

func TestSelectorsTable(t *testing.T) {
	abi := ABI{
		{
			Name: "transfer",
			Type: "function",
			Inputs: []Param{
				{Name: "to", Type: "address"},
				{Name: "amount", Type: "uint256"},
			},
			StateMutability: MutabilityNonPayable,
		},
		{
			Name:            "balanceOf",
			Type:            "function",
			Inputs:          []Param{{Name: "owner", Type: "address"}},
			Outputs:         []Param{{Type: "uint256"}},
			StateMutability: MutabilityView,
		},
	}
	table := Selectors(abi)
	if len(table) != 2 {
		t.Fatalf("expected 2 selectors, got %d", len(table))
	}
	if got := table["transfer(address,uint256)"]; got != "a9059cbb" {
		t.Fatalf("transfer selector = %q, want a9059cbb", got)
	}
	if got := table["balanceOf(address)"]; got != "70a08231" {
		t.Fatalf("balanceOf selector = %q, want 70a08231", got)
	}

	selectorShape := regexp.MustCompile(`^[0-9a-f]{8}$`)
	for signature, selector := range table {
		if !selectorShape.MatchString(selector) {
			t.Fatalf("selector for %q has wrong shape: %q", signature, selector)
		}
	}
}

func TestSelectorsSkipsNonFunctions(t *testing.T) {
	abi := ABI{
		{Name: "Transfer", Type: "event"},
		{
			Name:            "decimals",
			Type:            "function",
			StateMutability: MutabilityView,
		},
	}
	table := Selectors(abi)
	if len(table) != 1 {
		t.Fatalf("expected 1 selector, got %d", len(table))
	}
	if got := table["decimals()"]; got != "313ce567" {
		t.Fatalf("decimals selector = %q, want 313ce567", got)
	}
}
