// Package sigparse extracts callable method signatures from contract source.
// The scanner walks #[router]-annotated impl blocks and maps SDK parameter
// types onto their ABI equivalents. It reads signatures only; method bodies
// are skipped wholesale. Sources reach this package after a successful
// compile, so the scanner assumes syntactically valid Rust and keeps its own
// failure modes for the signature shapes it cannot express.
package sigparse

import (
	"fmt"
	"os"
	"strings"

	"github.com/davidahmann/kiln/core/artifacts"
	coreerrors "github.com/davidahmann/kiln/core/errors"
)

// Parser extracts method signatures from a contract's main source file. It
// satisfies the build pipeline's signature parser seam.
type Parser struct{}

// Parse reads the source file and returns the method signatures of every
// router impl block, in source order. A file without router blocks yields an
// empty list.
func (Parser) Parse(sourcePath string) ([]artifacts.MethodSignature, error) {
	// #nosec G304 -- the build pipeline resolves the path inside the project root.
	raw, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, coreerrors.Wrap(
			fmt.Errorf("read contract source %s: %w", sourcePath, err),
			coreerrors.CategoryIOFailure, "source_unreadable",
			"check that the manifest's lib path points at the contract source", false,
		)
	}
	return ParseSource(string(raw))
}

// ParseSource scans source text for #[router(...)]-annotated impl blocks and
// extracts their routed method signatures.
func ParseSource(source string) ([]artifacts.MethodSignature, error) {
	text := stripComments(source)
	var signatures []artifacts.MethodSignature
	cursor := 0
	for {
		after := nextRouterAttribute(text, cursor)
		if after < 0 {
			return signatures, nil
		}
		cursor = after
		header, body, next, found, err := implBlockAt(text, cursor)
		if err != nil {
			return nil, err
		}
		if !found {
			// Router attribute on something other than an impl block;
			// not a router, keep scanning.
			continue
		}
		parsed, err := parseImplBody(body, strings.Contains(header, " for "))
		if err != nil {
			return nil, err
		}
		signatures = append(signatures, parsed...)
		cursor = next
	}
}

// nextRouterAttribute returns the index just past the closing bracket of the
// next #[router] or #[router(...)] attribute at or after from, or -1.
func nextRouterAttribute(text string, from int) int {
	for {
		rel := strings.Index(text[from:], "#[")
		if rel < 0 {
			return -1
		}
		open := from + rel + 1
		name, _ := readIdent(text, skipSpaces(text, open+1))
		end, err := matchDelim(text, open)
		if err != nil {
			return -1
		}
		if name == "router" {
			return end + 1
		}
		from = end + 1
	}
}

// implBlockAt parses the impl block following a router attribute. found is
// false when the attribute annotates a different kind of item.
func implBlockAt(text string, pos int) (header, body string, next int, found bool, err error) {
	i := pos
	for {
		i = skipSpaces(text, i)
		if !strings.HasPrefix(text[i:], "#[") {
			break
		}
		end, derr := matchDelim(text, i+1)
		if derr != nil {
			return "", "", 0, false, derr
		}
		i = end + 1
	}
	word, _ := readIdent(text, i)
	if word != "impl" {
		return "", "", pos, false, nil
	}
	rel := strings.IndexByte(text[i:], '{')
	if rel < 0 {
		return "", "", 0, false, malformed("router impl block has no body")
	}
	open := i + rel
	end, err := matchDelim(text, open)
	if err != nil {
		return "", "", 0, false, err
	}
	return text[i:open], text[open+1 : end], end + 1, true, nil
}

// parseImplBody walks the top level of an impl block and extracts routed
// methods. Trait impls route every method (Rust forbids pub there); inherent
// impls route only pub methods.
func parseImplBody(body string, includePrivate bool) ([]artifacts.MethodSignature, error) {
	var signatures []artifacts.MethodSignature
	var attrs []string
	isPub := false
	i := 0
	for i < len(body) {
		c := body[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '#' && i+1 < len(body) && body[i+1] == '[':
			end, err := matchDelim(body, i+1)
			if err != nil {
				return nil, err
			}
			attrs = append(attrs, body[i+2:end])
			i = end + 1
		case c == ';':
			attrs = attrs[:0]
			isPub = false
			i++
		case c == '{':
			end, err := matchDelim(body, i)
			if err != nil {
				return nil, err
			}
			attrs = attrs[:0]
			isPub = false
			i = end + 1
		case c == '"':
			i = skipStringLiteral(body, i)
		case c == '\'':
			if end, ok := charLiteralEnd(body, i); ok {
				i = end
			} else {
				i++
			}
		case isIdentStart(c):
			word, end := readIdent(body, i)
			i = end
			switch word {
			case "pub":
				isPub = true
				j := skipSpaces(body, i)
				if j < len(body) && body[j] == '(' {
					// pub(crate) and friends
					scopeEnd, err := matchDelim(body, j)
					if err != nil {
						return nil, err
					}
					i = scopeEnd + 1
				}
			case "fn":
				signature, next, err := parseFn(body, i)
				if err != nil {
					return nil, err
				}
				if includePrivate || isPub {
					applyAttributes(&signature, attrs)
					signatures = append(signatures, signature)
				}
				attrs = attrs[:0]
				isPub = false
				i = next
			}
		default:
			i++
		}
	}
	return signatures, nil
}

// parseFn parses one method signature starting just after the fn keyword and
// returns the position past the method body.
func parseFn(body string, pos int) (artifacts.MethodSignature, int, error) {
	var signature artifacts.MethodSignature
	i := skipSpaces(body, pos)
	name, end := readIdent(body, i)
	if name == "" {
		return signature, 0, malformed("method declaration is missing a name")
	}
	signature.Name = camelName(name)
	i = skipSpaces(body, end)
	if i < len(body) && body[i] == '<' {
		genericEnd, err := matchAngle(body, i)
		if err != nil {
			return signature, 0, err
		}
		i = skipSpaces(body, genericEnd+1)
	}
	if i >= len(body) || body[i] != '(' {
		return signature, 0, malformed("method %s has no parameter list", name)
	}
	parenEnd, err := matchDelim(body, i)
	if err != nil {
		return signature, 0, err
	}
	if err := parseParams(body[i+1:parenEnd], &signature); err != nil {
		return signature, 0, fmt.Errorf("method %s: %w", name, err)
	}
	i = skipSpaces(body, parenEnd+1)

	returnText := ""
	if strings.HasPrefix(body[i:], "->") {
		i += 2
		start := i
	scan:
		for i < len(body) {
			switch body[i] {
			case '{', ';':
				break scan
			case '(', '[':
				groupEnd, derr := matchDelim(body, i)
				if derr != nil {
					return signature, 0, derr
				}
				i = groupEnd + 1
			case '<':
				angleEnd, derr := matchAngle(body, i)
				if derr != nil {
					return signature, 0, derr
				}
				i = angleEnd + 1
			default:
				i++
			}
		}
		returnText = body[start:i]
		if idx := strings.Index(returnText, " where "); idx >= 0 {
			returnText = returnText[:idx]
		}
	}
	if err := parseReturn(returnText, &signature); err != nil {
		return signature, 0, fmt.Errorf("method %s: %w", name, err)
	}

	for i < len(body) && body[i] != '{' && body[i] != ';' {
		i++
	}
	if i >= len(body) {
		return signature, 0, malformed("method %s has no body", name)
	}
	if body[i] == ';' {
		return signature, i + 1, nil
	}
	bodyEnd, err := matchDelim(body, i)
	if err != nil {
		return signature, 0, err
	}
	return signature, bodyEnd + 1, nil
}

// parseParams maps the raw parameter list onto typed inputs and derives the
// receiver's mutability: &self reads state, &mut self (or a consuming self)
// may write it, and a method with no receiver touches neither.
func parseParams(raw string, signature *artifacts.MethodSignature) error {
	signature.Mutability = artifacts.MutabilityPure
	for index, part := range splitTopLevel(raw, ',') {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		if index == 0 && isReceiver(trimmed) {
			signature.Mutability = receiverMutability(trimmed)
			continue
		}
		name, typeText, ok := strings.Cut(trimmed, ":")
		if !ok {
			return malformed("parameter %q has no type annotation", trimmed)
		}
		abiType, err := MapType(typeText)
		if err != nil {
			return err
		}
		paramName := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), "mut "))
		signature.Inputs = append(signature.Inputs, artifacts.Param{
			Name: camelName(paramName),
			Type: abiType,
		})
	}
	return nil
}

// parseReturn maps the return type onto outputs. A unit return means no
// outputs; a tuple return contributes one output per element.
func parseReturn(raw string, signature *artifacts.MethodSignature) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "()" {
		return nil
	}
	if strings.HasPrefix(trimmed, "(") && strings.HasSuffix(trimmed, ")") {
		for _, part := range splitTopLevel(trimmed[1:len(trimmed)-1], ',') {
			element := strings.TrimSpace(part)
			if element == "" {
				continue
			}
			abiType, err := MapType(element)
			if err != nil {
				return err
			}
			signature.Outputs = append(signature.Outputs, artifacts.Param{Type: abiType})
		}
		return nil
	}
	abiType, err := MapType(trimmed)
	if err != nil {
		return err
	}
	signature.Outputs = append(signature.Outputs, artifacts.Param{Type: abiType})
	return nil
}

func isReceiver(param string) bool {
	stripped := strings.TrimSpace(strings.TrimPrefix(param, "&"))
	if strings.HasPrefix(stripped, "'") {
		_, rest, ok := strings.Cut(stripped, " ")
		if !ok {
			return false
		}
		stripped = strings.TrimSpace(rest)
	}
	stripped = strings.TrimSpace(strings.TrimPrefix(stripped, "mut"))
	return stripped == "self"
}

func receiverMutability(receiver string) artifacts.Mutability {
	if !strings.HasPrefix(receiver, "&") {
		// Consuming receiver: treated like a mutable borrow.
		return artifacts.MutabilityNonPayable
	}
	if strings.Contains(receiver, "mut") {
		return artifacts.MutabilityNonPayable
	}
	return artifacts.MutabilityView
}

// applyAttributes handles the method attributes the router understands. Only
// #[payable] changes the signature; selector overrides like #[function_id]
// do not alter the method's shape.
func applyAttributes(signature *artifacts.MethodSignature, attrs []string) {
	for _, attr := range attrs {
		if attributeName(attr) == "payable" {
			signature.Mutability = artifacts.MutabilityPayable
		}
	}
}

func attributeName(attr string) string {
	name, _ := readIdent(attr, skipSpaces(attr, 0))
	return name
}

func malformed(format string, args ...any) error {
	return coreerrors.Wrap(
		fmt.Errorf(format, args...),
		coreerrors.CategoryInvalidInput, "router_impl_malformed",
		"", false,
	)
}
