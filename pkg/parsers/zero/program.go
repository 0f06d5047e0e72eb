// Package zero parses the external compiled-program artifact the core
// consumes: bytecode, builtin list, entrypoints, hint table, identifiers
// and error-message attributes (spec.md §6, "external format; core only
// consumes it").
package zero

import (
	"encoding/json"
	"fmt"

	"github.com/cairo-vm/cairo-vm-go/pkg/vm/memory"
)

// ApTracking records the compiler's static knowledge of ap's relative
// position at a hint's program point, used to correct cell references
// across ap changes the compiler introduced between compile time and run
// time (spec.md §4.6).
type ApTracking struct {
	Group  int `json:"group"`
	Offset int `json:"offset"`
}

// Identifier is a named program symbol: a function, a constant, or a
// struct member layout.
type Identifier struct {
	Type        string          `json:"type"`
	Value       *string         `json:"value,omitempty"`
	PC          *uint64         `json:"pc,omitempty"`
	Size        *uint64         `json:"size,omitempty"`
	References  []ReferenceInfo `json:"references,omitempty"`
	Members     map[string]Member `json:"members,omitempty"`
	CairoType   string          `json:"cairo_type,omitempty"`
}

// Member is one field of a struct identifier: its position in the struct's
// memory layout.
type Member struct {
	CairoType string `json:"cairo_type"`
	Offset    uint64 `json:"offset"`
}

// ReferenceInfo is the raw, not-yet-compiled form of a hint-visible
// reference: a register-relative expression plus the ap_tracking state it
// was recorded under.
type ReferenceInfo struct {
	ApTracking ApTracking `json:"ap_tracking_data"`
	PC         uint64     `json:"pc"`
	Value      string     `json:"value"`
}

// Hint is one hint attached to a pc: its Python source and the ids this
// hint's compiler resolved into flat references.
type Hint struct {
	Code        string            `json:"code"`
	ApTracking  ApTracking        `json:"flow_tracking_data"`
	ReferenceIDs map[string]int   `json:"reference_ids"`
}

// ErrorMessageAttribute is a user-provided `with_attr error_message(...)`
// range: any failing pc within [StartPC, EndPC] gets Message attached to
// its error (spec.md §4.5).
type ErrorMessageAttribute struct {
	Name      string `json:"name"`
	StartPC   uint64 `json:"start_pc"`
	EndPC     uint64 `json:"end_pc"`
	Message   string `json:"value"`
	Flow      ApTracking `json:"flow_tracking_data"`
}

// Program is the deserialized compiled-program artifact (cairo-lang's
// `.json` compilation output): prime, bytecode, builtin list, hints keyed
// by pc, identifiers and attributes.
type Program struct {
	Prime                  string                   `json:"prime"`
	Data                   []string                 `json:"data"`
	Builtins               []string                 `json:"builtins"`
	Hints                  map[uint64][]Hint         `json:"hints"`
	Identifiers            map[string]Identifier    `json:"identifiers"`
	MainScope              string                   `json:"main_scope"`
	Attributes             []ErrorMessageAttribute  `json:"attributes"`
	ReferenceManager       ReferenceManager         `json:"reference_manager"`
}

// ReferenceManager is the compiler's flat table of every reference ever
// recorded; a Hint's ReferenceIDs index into it.
type ReferenceManager struct {
	References []ReferenceInfo `json:"references"`
}

// Bytecode decodes Data (hex-string field elements) into Felts, the form
// the memory package consumes directly.
func (p *Program) Bytecode() ([]*memory.Felt, error) {
	felts := make([]*memory.Felt, len(p.Data))
	for i, word := range p.Data {
		var felt memory.Felt
		if _, err := felt.SetString(word); err != nil {
			return nil, fmt.Errorf("decoding data[%d] %q: %w", i, word, err)
		}
		felts[i] = &felt
	}
	return felts, nil
}

// Entrypoint resolves a named function identifier (e.g. "__main__.main")
// to its program counter. A name not found as given is looked up again
// under the program's main scope, so "main" also finds "__main__.main".
func (p *Program) Entrypoint(name string) (uint64, error) {
	ident, ok := p.Identifiers[name]
	if (!ok || ident.PC == nil) && p.MainScope != "" {
		ident, ok = p.Identifiers[p.MainScope+"."+name]
	}
	if !ok || ident.PC == nil {
		return 0, fmt.Errorf("entrypoint %q not found", name)
	}
	return *ident.PC, nil
}

// AttributeFor returns the error-message attribute enclosing pc, if any
// (spec.md §4.5's traceback annotation step).
func (p *Program) AttributeFor(pc uint64) (string, bool) {
	for _, attr := range p.Attributes {
		if pc >= attr.StartPC && pc <= attr.EndPC {
			return attr.Message, true
		}
	}
	return "", false
}

// ParseProgram decodes a compiled-program JSON document.
func ParseProgram(raw []byte) (*Program, error) {
	var program Program
	if err := json.Unmarshal(raw, &program); err != nil {
		return nil, fmt.Errorf("parsing program: %w", err)
	}
	return &program, nil
}
