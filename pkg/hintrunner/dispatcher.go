// Package hintrunner implements the VM's HintRunner: it compiles each
// program pc's hint list once, then re-executes the compiled handles on
// every subsequent visit to that pc (spec.md §4.6).
package hintrunner

import (
	"fmt"
	"strings"

	"github.com/cairo-vm/cairo-vm-go/pkg/hintrunner/hinter"
	"github.com/cairo-vm/cairo-vm-go/pkg/parsers/zero"
	VM "github.com/cairo-vm/cairo-vm-go/pkg/vm"
	mem "github.com/cairo-vm/cairo-vm-go/pkg/vm/memory"
)

// CompileFunc builds a Hinter from one hint's source code and its resolved
// reference table. The zero-program parser hands the dispatcher the raw
// code string; CompileFunc owns the mapping from that string to behavior.
type CompileFunc func(code string, data hinter.HintData) (hinter.Hinter, error)

// HintRunner compiles and executes hints for a single program run. It
// satisfies vm.HintRunner.
type HintRunner struct {
	byPC    map[uint64][]hinter.Hinter
	scopes  *hinter.ExecutionScopes
	compile CompileFunc

	// installed tracks compiled-handle identity per pc so re-installing an
	// equal handle via hint extension is a no-op rather than a duplicate.
	installed map[uint64]map[string]bool
}

// NewHintRunner compiles every hint in program against its reference
// manager and builtin hint library, keyed by pc.
func NewHintRunner(program *zero.Program, compile CompileFunc) (*HintRunner, error) {
	if compile == nil {
		compile = CompileBuiltinHint
	}
	runner := &HintRunner{
		byPC:      make(map[uint64][]hinter.Hinter),
		scopes:    hinter.NewExecutionScopes(),
		compile:   compile,
		installed: make(map[uint64]map[string]bool),
	}

	for pc, hints := range program.Hints {
		for _, hint := range hints {
			references, err := resolveReferences(program, hint)
			if err != nil {
				return nil, fmt.Errorf("compiling hint at pc %d: %w", pc, err)
			}
			compiled, err := runner.compile(hint.Code, hinter.HintData{Name: hint.Code, References: references})
			if err != nil {
				return nil, fmt.Errorf("compiling hint at pc %d: %w", pc, err)
			}
			runner.install(pc, compiled)
		}
	}
	return runner, nil
}

func (r *HintRunner) install(pc uint64, h hinter.Hinter) {
	if r.installed[pc] == nil {
		r.installed[pc] = make(map[string]bool)
	}
	key := h.String()
	if r.installed[pc][key] {
		return
	}
	r.installed[pc][key] = true
	r.byPC[pc] = append(r.byPC[pc], h)
}

// RunHint executes, in order, every hint compiled for the VM's current pc.
// A hint that implements hinter.Extensive may return further hints to
// install at other pcs; those are merged immediately so a hint scheduled
// at a pc still to come in this run takes effect when the VM gets there.
func (r *HintRunner) RunHint(vm *VM.VirtualMachine) error {
	hints, ok := r.byPC[vm.Context.Pc.Offset]
	if !ok {
		return nil
	}

	for _, h := range hints {
		if extensive, ok := h.(hinter.Extensive); ok {
			extension, err := extensive.ExecuteExtensive(vm, r.scopes)
			if err != nil {
				return fmt.Errorf("hint %s: %w", h.String(), err)
			}
			for pc, extra := range extension {
				for _, e := range extra {
					r.install(pc, e)
				}
			}
			continue
		}
		if err := h.Execute(vm, r.scopes); err != nil {
			return fmt.Errorf("hint %s: %w", h.String(), err)
		}
	}
	return nil
}

// resolveReferences builds the name->Reference table a hint's Execute
// pulls its `ids.*` operands from, applying each reference's recorded
// ap_tracking correction against the hint's own.
func resolveReferences(program *zero.Program, hint zero.Hint) (map[string]hinter.Reference, error) {
	references := make(map[string]hinter.Reference, len(hint.ReferenceIDs))
	for name, id := range hint.ReferenceIDs {
		if id < 0 || id >= len(program.ReferenceManager.References) {
			return nil, fmt.Errorf("reference id %d for %q out of range", id, name)
		}
		info := program.ReferenceManager.References[id]
		ref, err := parseReferenceExpr(info.Value)
		if err != nil {
			return nil, fmt.Errorf("parsing reference %q: %w", name, err)
		}
		references[name] = ref.ApplyApTracking(hint.ApTracking, info.ApTracking)
	}
	return references, nil
}

// parseReferenceExpr is a minimal parser for the compiler's reference
// expression grammar: `[ap + k]`, `[fp + k]`, `[[ap + k] + j]`, `[[fp + k]
// + j]` and bare immediates. cairo-lang's real grammar covers more
// expression shapes (casts, binary ops between two cells); this parser
// handles the common cases every builtin hint in the standard library
// needs, and returns an error for anything else rather than mis-resolving
// it silently.
func parseReferenceExpr(expr string) (hinter.Reference, error) {
	return parseCellExpr(expr)
}

func parseCellExpr(expr string) (hinter.Reference, error) {
	trimmed := strings.TrimSpace(expr)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty reference expression")
	}
	if trimmed[0] != '[' || trimmed[len(trimmed)-1] != ']' {
		felt, err := parseImmediate(trimmed)
		if err != nil {
			return nil, err
		}
		return hinter.Immediate(felt), nil
	}
	inner := trimmed[1 : len(trimmed)-1]
	base, _, err := parseRegisterOffset(inner)
	if err == nil {
		return hinter.Deref{Deref: base}, nil
	}
	// not a direct register cell: may be a double-deref `[[ap + k] + j]`.
	if inner[0] != '[' {
		return nil, fmt.Errorf("unsupported reference expression %q", expr)
	}
	closeIdx := strings.IndexByte(inner, ']')
	if closeIdx < 0 {
		return nil, fmt.Errorf("unbalanced reference expression %q", expr)
	}
	innerBase, _, err := parseRegisterOffset(inner[1:closeIdx])
	if err != nil {
		return nil, fmt.Errorf("unsupported reference expression %q: %w", expr, err)
	}
	rest := strings.TrimSpace(inner[closeIdx+1:])
	outerOffset, err := parseSignedOffset(rest)
	if err != nil {
		return nil, fmt.Errorf("unsupported reference expression %q: %w", expr, err)
	}
	return hinter.DoubleDeref{Deref: hinter.Deref{Deref: innerBase}, Offset: outerOffset}, nil
}

func parseRegisterOffset(expr string) (hinter.Reference, int16, error) {
	expr = strings.TrimSpace(expr)
	switch {
	case strings.HasPrefix(expr, "ap"):
		offset, err := parseSignedOffset(strings.TrimSpace(expr[2:]))
		if err != nil {
			return nil, 0, err
		}
		return hinter.ApCellRef(offset), offset, nil
	case strings.HasPrefix(expr, "fp"):
		offset, err := parseSignedOffset(strings.TrimSpace(expr[2:]))
		if err != nil {
			return nil, 0, err
		}
		return hinter.FpCellRef(offset), offset, nil
	default:
		return nil, 0, fmt.Errorf("expected ap/fp-relative expression, got %q", expr)
	}
}

func parseSignedOffset(expr string) (int16, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, nil
	}
	sign := int16(1)
	if expr[0] == '+' || expr[0] == '-' {
		if expr[0] == '-' {
			sign = -1
		}
		expr = strings.TrimSpace(expr[1:])
	}
	var value int16
	for _, c := range expr {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("expected integer offset, got %q", expr)
		}
		value = value*10 + int16(c-'0')
	}
	return sign * value, nil
}

func parseImmediate(expr string) (mem.Felt, error) {
	var felt mem.Felt
	if _, err := felt.SetString(expr); err != nil {
		return mem.Felt{}, fmt.Errorf("expected immediate literal, got %q", expr)
	}
	return felt, nil
}
