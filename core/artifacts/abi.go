// Package artifacts turns compiler output plus parsed method signatures into
// the contract's external surface: a Solidity-style ABI, a typed interface
// source file, a selector table, and the schema-versioned metadata document.
//
// ABI parameters use a closed type model (primitive, array, tuple) validated
// at construction, so malformed descriptors fail generation instead of
// leaking into published JSON.
package artifacts

import (
	"fmt"
	"strconv"
	"strings"

	coreerrors "github.com/davidahmann/kiln/core/errors"
)

// Mutability is the declared side-effect class of a callable method.
type Mutability string

const (
	MutabilityPure       Mutability = "pure"
	MutabilityView       Mutability = "view"
	MutabilityNonPayable Mutability = "nonpayable"
	MutabilityPayable    Mutability = "payable"
)

func validMutability(m Mutability) bool {
	switch m {
	case MutabilityPure, MutabilityView, MutabilityNonPayable, MutabilityPayable:
		return true
	}
	return false
}

// Kind classifies a parameter type.
type Kind int

const (
	KindPrimitive Kind = iota
	KindArray
	KindTuple
)

// Param is one typed ABI parameter. Tuples carry their field list in
// Components and, when they mirror a named source struct, an InternalType of
// the form "struct Name" (or "struct Name[]" on arrays of structs).
type Param struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	InternalType string  `json:"internalType,omitempty"`
	Components   []Param `json:"components,omitempty"`
}

// Kind reports the type class. Arrays win over tuples: "tuple[]" is an array
// whose element is a tuple.
func (p Param) Kind() Kind {
	switch {
	case strings.HasSuffix(p.Type, "[]"):
		return KindArray
	case strings.HasPrefix(p.Type, "tuple"):
		return KindTuple
	default:
		return KindPrimitive
	}
}

// Elem returns the element parameter of an array type: one "[]" suffix is
// stripped from both the ABI type and the internal type, components carry
// over unchanged. Calling Elem on a non-array returns the receiver.
func (p Param) Elem() Param {
	if p.Kind() != KindArray {
		return p
	}
	elem := p
	elem.Type = strings.TrimSuffix(p.Type, "[]")
	elem.InternalType = strings.TrimSuffix(p.InternalType, "[]")
	return elem
}

// StructName returns the declared source struct name for tuple types tagged
// with a "struct Name" internal type, with any array suffixes stripped.
// Empty for anonymous tuples and non-struct parameters.
func (p Param) StructName() string {
	name, ok := strings.CutPrefix(p.InternalType, "struct ")
	if !ok {
		return ""
	}
	for strings.HasSuffix(name, "[]") {
		name = strings.TrimSuffix(name, "[]")
	}
	return name
}

// Validate checks the parameter tree against the closed type model.
func (p Param) Validate() error {
	if strings.TrimSpace(p.Type) == "" {
		return fmt.Errorf("parameter %q has no type", p.Name)
	}
	switch p.Kind() {
	case KindArray:
		return p.Elem().Validate()
	case KindTuple:
		if p.Type != "tuple" {
			return fmt.Errorf("parameter %q has malformed tuple type %q", p.Name, p.Type)
		}
		if len(p.Components) == 0 {
			return fmt.Errorf("tuple parameter %q has no components", p.Name)
		}
		for _, component := range p.Components {
			if err := component.Validate(); err != nil {
				return err
			}
		}
		return nil
	default:
		if len(p.Components) > 0 {
			return fmt.Errorf("primitive parameter %q carries components", p.Name)
		}
		if !validPrimitive(p.Type) {
			return fmt.Errorf("parameter %q has unsupported type %q", p.Name, p.Type)
		}
		return nil
	}
}

func validPrimitive(t string) bool {
	switch t {
	case "address", "bool", "string", "bytes":
		return true
	}
	if digits, ok := strings.CutPrefix(t, "bytes"); ok {
		n, err := strconv.Atoi(digits)
		return err == nil && n >= 1 && n <= 32
	}
	trimmed := strings.TrimPrefix(t, "u")
	if digits, ok := strings.CutPrefix(trimmed, "int"); ok {
		n, err := strconv.Atoi(digits)
		return err == nil && n >= 8 && n <= 256 && n%8 == 0
	}
	return false
}

// Entry is one ABI function descriptor in the published JSON shape.
type Entry struct {
	Name            string     `json:"name"`
	Type            string     `json:"type"`
	Inputs          []Param    `json:"inputs"`
	Outputs         []Param    `json:"outputs"`
	StateMutability Mutability `json:"stateMutability"`
}

// Validate checks the descriptor and its full parameter tree.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("function descriptor has no name")
	}
	if e.Type != "function" {
		return fmt.Errorf("function %q has descriptor type %q", e.Name, e.Type)
	}
	if !validMutability(e.StateMutability) {
		return fmt.Errorf("function %q has unknown mutability %q", e.Name, e.StateMutability)
	}
	for _, param := range e.Inputs {
		if err := param.Validate(); err != nil {
			return fmt.Errorf("function %q: %w", e.Name, err)
		}
	}
	for _, param := range e.Outputs {
		if err := param.Validate(); err != nil {
			return fmt.Errorf("function %q: %w", e.Name, err)
		}
	}
	return nil
}

// ABI is the ordered list of function descriptors. It marshals to the JSON
// array external tooling consumes.
type ABI []Entry

// MethodSignature is one callable method extracted from contract source by a
// signature parser. Mutability defaults to nonpayable when unset.
type MethodSignature struct {
	Name       string
	Inputs     []Param
	Outputs    []Param
	Mutability Mutability
}

// FromSignatures converts parsed method signatures into a validated ABI. An
// empty signature list yields an empty ABI, not an error: contracts without
// routed methods are legal.
func FromSignatures(signatures []MethodSignature) (ABI, error) {
	abi := make(ABI, 0, len(signatures))
	for _, signature := range signatures {
		mutability := signature.Mutability
		if mutability == "" {
			mutability = MutabilityNonPayable
		}
		entry := Entry{
			Name:            signature.Name,
			Type:            "function",
			Inputs:          signature.Inputs,
			Outputs:         signature.Outputs,
			StateMutability: mutability,
		}
		if entry.Inputs == nil {
			entry.Inputs = []Param{}
		}
		if entry.Outputs == nil {
			entry.Outputs = []Param{}
		}
		if err := entry.Validate(); err != nil {
			return nil, coreerrors.Wrap(fmt.Errorf("build abi: %w", err), coreerrors.CategoryInvalidInput, "abi_descriptor_invalid", "fix the method signature in the contract source", false)
		}
		abi = append(abi, entry)
	}
	return abi, nil
}
