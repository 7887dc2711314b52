package artifacts

import (
	"fmt"
	"strings"
	"unicode"
)

// GenerateInterface emits Solidity interface source for the ABI. Struct
// parameters become struct declarations, emitted once per unique name no
// matter how many functions reference them, with nested struct and
// array-of-struct fields resolved to their declared names.
func GenerateInterface(contractName string, abi ABI) (string, error) {
	var b strings.Builder
	b.WriteString("// SPDX-License-Identifier: MIT\n")
	b.WriteString("// Auto-generated from Rust source\n")
	b.WriteString("pragma solidity ^0.8.0;\n\n")
	fmt.Fprintf(&b, "interface I%s {\n", pascalCase(contractName))

	seen := map[string]bool{}
	var structs []string
	for _, entry := range abi {
		if entry.Type != "function" {
			continue
		}
		if err := entry.Validate(); err != nil {
			return "", fmt.Errorf("generate interface: %w", err)
		}
		collectStructs(entry.Inputs, seen, &structs)
		collectStructs(entry.Outputs, seen, &structs)
	}
	for _, declaration := range structs {
		b.WriteString(declaration)
		b.WriteString("\n\n")
	}

	for _, entry := range abi {
		if entry.Type != "function" {
			continue
		}
		b.WriteString("    ")
		b.WriteString(formatFunction(entry))
		b.WriteString("\n")
	}
	b.WriteString("}\n")
	return b.String(), nil
}

func formatFunction(entry Entry) string {
	params := make([]string, 0, len(entry.Inputs))
	for _, param := range entry.Inputs {
		params = append(params, formatParameter(param))
	}
	line := fmt.Sprintf("function %s(%s) external", entry.Name, strings.Join(params, ", "))
	switch entry.StateMutability {
	case MutabilityPure:
		line += " pure"
	case MutabilityView:
		line += " view"
	case MutabilityPayable:
		line += " payable"
	}
	if len(entry.Outputs) > 0 {
		returns := make([]string, 0, len(entry.Outputs))
		for _, param := range entry.Outputs {
			returns = append(returns, formatParameter(param))
		}
		line += fmt.Sprintf(" returns (%s)", strings.Join(returns, ", "))
	}
	return line + ";"
}

func formatParameter(param Param) string {
	ty := solidityType(param)
	location := dataLocation(param, ty)
	if param.Name == "" {
		return ty + location
	}
	return ty + location + " " + param.Name
}

// solidityType renders the type as it appears in interface source: named
// structs by their declared name, arrays by their element type plus "[]",
// anonymous tuples as a parenthesized field list.
func solidityType(param Param) string {
	if name := param.StructName(); name != "" {
		suffix := strings.Repeat("[]", strings.Count(param.Type, "[]"))
		return name + suffix
	}
	switch param.Kind() {
	case KindArray:
		return solidityType(param.Elem()) + "[]"
	case KindTuple:
		fields := make([]string, 0, len(param.Components))
		for _, component := range param.Components {
			fields = append(fields, solidityType(component))
		}
		return "(" + strings.Join(fields, ",") + ")"
	default:
		return param.Type
	}
}

// dataLocation returns the reference-location qualifier for a rendered type:
// structs, arrays, and tuples live in memory, the two dynamic primitives
// take calldata, and value primitives take no qualifier.
func dataLocation(param Param, rendered string) string {
	switch {
	case param.StructName() != "" && !strings.HasSuffix(rendered, "[]"):
		return " memory"
	case rendered == "string" || rendered == "bytes":
		return " calldata"
	case strings.HasSuffix(rendered, "[]"):
		return " memory"
	case strings.HasPrefix(rendered, "(") && strings.HasSuffix(rendered, ")"):
		return " memory"
	default:
		return ""
	}
}

// collectStructs walks parameters in declaration order and appends one
// rendered declaration per newly seen struct name, recursing through struct
// fields and array elements so nested shapes are declared too.
func collectStructs(params []Param, seen map[string]bool, structs *[]string) {
	for _, param := range params {
		target := param
		for target.Kind() == KindArray {
			target = target.Elem()
		}
		if target.Kind() != KindTuple {
			continue
		}
		name := target.StructName()
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		fields := make([]string, 0, len(target.Components))
		for _, field := range target.Components {
			fieldName := field.Name
			if fieldName == "" {
				fieldName = "_"
			}
			fields = append(fields, fmt.Sprintf("        %s %s;", solidityType(field), fieldName))
		}
		*structs = append(*structs, fmt.Sprintf("    struct %s {\n%s\n    }", name, strings.Join(fields, "\n")))
		collectStructs(target.Components, seen, structs)
	}
}

// pascalCase converts kebab/snake/space separated names to PascalCase,
// leaving existing interior capitalization alone so acronyms survive.
func pascalCase(name string) string {
	var b strings.Builder
	upperNext := true
	for _, r := range name {
		if r == '-' || r == '_' || r == ' ' {
			upperNext = true
			continue
		}
		if upperNext {
			b.WriteRune(unicode.ToUpper(r))
			upperNext = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
