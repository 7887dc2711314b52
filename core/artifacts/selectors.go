package artifacts

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// CanonicalSignature renders a function as name(type1,type2,...) with no
// spaces and tuple parameters expanded to parenthesized component lists, the
// exact form selector hashing is defined over.
func CanonicalSignature(entry Entry) string {
	types := make([]string, 0, len(entry.Inputs))
	for _, param := range entry.Inputs {
		types = append(types, canonicalType(param))
	}
	return entry.Name + "(" + strings.Join(types, ",") + ")"
}

func canonicalType(param Param) string {
	switch param.Kind() {
	case KindArray:
		return canonicalType(param.Elem()) + "[]"
	case KindTuple:
		components := make([]string, 0, len(param.Components))
		for _, component := range param.Components {
			components = append(components, canonicalType(component))
		}
		return "(" + strings.Join(components, ",") + ")"
	default:
		return param.Type
	}
}

// Selector returns the 4-byte dispatch identifier for a canonical signature
// as 8 hex characters without a 0x prefix.
func Selector(signature string) string {
	return hex.EncodeToString(crypto.Keccak256([]byte(signature))[:4])
}

// Selectors maps every function's canonical signature to its selector, the
// table published under solidity_compatibility.function_selectors.
func Selectors(abi ABI) map[string]string {
	table := make(map[string]string, len(abi))
	for _, entry := range abi {
		if entry.Type != "function" {
			continue
		}
		signature := CanonicalSignature(entry)
		table[signature] = Selector(signature)
	}
	return table
}
