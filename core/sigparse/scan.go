package sigparse

import "strings"

// stripComments removes line and block comments while leaving string and
// char literals intact, so the signature scanner never matches keywords
// inside commented-out code. Block comments nest, as in Rust.
func stripComments(source string) string {
	var out strings.Builder
	out.Grow(len(source))
	i := 0
	for i < len(source) {
		c := source[i]
		switch {
		case c == '"':
			end := skipStringLiteral(source, i)
			out.WriteString(source[i:end])
			i = end
		case c == '\'':
			if end, ok := charLiteralEnd(source, i); ok {
				out.WriteString(source[i:end])
				i = end
			} else {
				out.WriteByte(c)
				i++
			}
		case c == '/' && i+1 < len(source) && source[i+1] == '/':
			for i < len(source) && source[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(source) && source[i+1] == '*':
			depth := 1
			i += 2
			for i < len(source) && depth > 0 {
				switch {
				case source[i] == '/' && i+1 < len(source) && source[i+1] == '*':
					depth++
					i += 2
				case source[i] == '*' && i+1 < len(source) && source[i+1] == '/':
					depth--
					i += 2
				default:
					i++
				}
			}
			out.WriteByte(' ')
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String()
}

// matchDelim returns the index of the delimiter closing the one at open.
// String and char literals inside the span are skipped.
func matchDelim(text string, open int) (int, error) {
	opening := text[open]
	var closing byte
	switch opening {
	case '{':
		closing = '}'
	case '[':
		closing = ']'
	case '(':
		closing = ')'
	default:
		return 0, malformed("internal scan error: %q is not a delimiter", string(opening))
	}
	depth := 0
	for i := open; i < len(text); i++ {
		switch text[i] {
		case opening:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return i, nil
			}
		case '"':
			i = skipStringLiteral(text, i) - 1
		case '\'':
			if end, ok := charLiteralEnd(text, i); ok {
				i = end - 1
			}
		}
	}
	return 0, malformed("unbalanced %q in router impl block", string(opening))
}

// matchAngle brace-matches generic argument brackets. Angle brackets do not
// appear as bare comparison operators inside type position, which is the
// only place the scanner uses this.
func matchAngle(text string, open int) (int, error) {
	depth := 0
	for i := open; i < len(text); i++ {
		switch text[i] {
		case '<':
			depth++
		case '>':
			depth--
			if depth == 0 {
				return i, nil
			}
		case '"':
			i = skipStringLiteral(text, i) - 1
		}
	}
	return 0, malformed("unbalanced angle brackets in router impl block")
}

// skipStringLiteral returns the index just past the string literal whose
// opening quote sits at i.
func skipStringLiteral(text string, i int) int {
	i++
	for i < len(text) {
		switch text[i] {
		case '\\':
			i += 2
		case '"':
			return i + 1
		default:
			i++
		}
	}
	return i
}

// charLiteralEnd distinguishes char literals from lifetime names: a literal
// closes with a quote, a lifetime ('a) never does.
func charLiteralEnd(text string, i int) (int, bool) {
	j := i + 1
	if j >= len(text) {
		return 0, false
	}
	if text[j] == '\\' {
		j += 2
		for j < len(text) && text[j] != '\'' {
			j++
		}
		if j < len(text) {
			return j + 1, true
		}
		return 0, false
	}
	if j+1 < len(text) && text[j+1] == '\'' && text[j] != '\'' {
		return j + 2, true
	}
	return 0, false
}

// splitTopLevel splits list at separators that sit outside every paren,
// bracket, angle, and string group.
func splitTopLevel(list string, sep byte) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(list); i++ {
		switch list[i] {
		case '(', '[', '<':
			depth++
		case ')', ']', '>':
			depth--
		case '"':
			i = skipStringLiteral(list, i) - 1
		case sep:
			if depth == 0 {
				parts = append(parts, list[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, list[start:])
}

// readIdent reads the identifier starting at i, or returns an empty string
// when i does not start one.
func readIdent(text string, i int) (string, int) {
	if i >= len(text) || !isIdentStart(text[i]) {
		return "", i
	}
	start := i
	for i < len(text) && isIdentChar(text[i]) {
		i++
	}
	return text[start:i], i
}

func skipSpaces(text string, i int) int {
	for i < len(text) {
		switch text[i] {
		case ' ', '\t', '\n', '\r':
			i++
		default:
			return i
		}
	}
	return i
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
