package sigparse

import (
	"fmt"
	"strconv"
	"strings"

	coreerrors "github.com/davidahmann/kiln/core/errors"
)

// MapType converts an SDK parameter type to its ABI equivalent: U256 to
// uint256, Address to address, Bytes to bytes, String and &str to string,
// the fixed-width integers to uintN/intN, FixedBytes<N> to bytesN, and
// Vec<T> to T[] recursively. Module path qualifiers are ignored. Types
// outside this table fail with the offending token in the error.
func MapType(rustType string) (string, error) {
	trimmed := strings.TrimSpace(rustType)
	if inner, ok := strings.CutPrefix(trimmed, "&"); ok {
		trimmed = strings.TrimSpace(inner)
		if strings.HasPrefix(trimmed, "'") {
			_, rest, found := strings.Cut(trimmed, " ")
			if !found {
				return "", typeError(rustType)
			}
			trimmed = strings.TrimSpace(rest)
		}
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "mut "))
	}

	head, args, generic := cutGeneric(trimmed)
	if j := strings.LastIndex(head, "::"); j >= 0 {
		head = head[j+2:]
	}

	switch head {
	case "Vec":
		element, err := MapType(args)
		if err != nil {
			return "", err
		}
		return element + "[]", nil
	case "FixedBytes":
		width, convErr := strconv.Atoi(strings.TrimSpace(args))
		if convErr != nil || width < 1 || width > 32 {
			return "", typeError(rustType)
		}
		return "bytes" + strconv.Itoa(width), nil
	}
	if generic {
		return "", typeError(rustType)
	}

	switch head {
	case "U256":
		return "uint256", nil
	case "Address":
		return "address", nil
	case "Bytes":
		return "bytes", nil
	case "String", "str":
		return "string", nil
	case "bool":
		return "bool", nil
	}
	if digits, ok := strings.CutPrefix(head, "u"); ok && validIntWidth(digits) {
		return "uint" + digits, nil
	}
	if digits, ok := strings.CutPrefix(head, "i"); ok && validIntWidth(digits) {
		return "int" + digits, nil
	}
	return "", typeError(rustType)
}

// cutGeneric splits "Vec<U256>" into head "Vec" and args "U256". A type
// with an unterminated argument list comes back whole, so the caller's type
// table rejects it with the full token.
func cutGeneric(typeText string) (head, args string, ok bool) {
	open := strings.IndexByte(typeText, '<')
	if open < 0 || !strings.HasSuffix(typeText, ">") {
		return typeText, "", false
	}
	return typeText[:open], typeText[open+1 : len(typeText)-1], true
}

func validIntWidth(digits string) bool {
	switch digits {
	case "8", "16", "32", "64", "128":
		return true
	}
	return false
}

func typeError(token string) error {
	return coreerrors.Wrap(
		fmt.Errorf("unsupported type %q in routed method signature", strings.TrimSpace(token)),
		coreerrors.CategoryInvalidInput, "signature_type_unsupported",
		"route only SDK types that have an ABI equivalent", false,
	)
}

// camelName converts a snake_case identifier to the camelCase spelling the
// solidity router mode exposes externally. Names without underscores pass
// through unchanged.
func camelName(name string) string {
	if !strings.Contains(name, "_") {
		return name
	}
	segments := strings.Split(name, "_")
	parts := make([]string, 0, len(segments))
	for _, segment := range segments {
		if segment != "" {
			parts = append(parts, segment)
		}
	}
	if len(parts) == 0 {
		return name
	}
	var out strings.Builder
	out.WriteString(parts[0])
	for _, part := range parts[1:] {
		out.WriteString(strings.ToUpper(part[:1]))
		out.WriteString(part[1:])
	}
	return out.String()
}
