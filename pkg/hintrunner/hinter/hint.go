package hinter

import (
	VM "github.com/cairo-vm/cairo-vm-go/pkg/vm"
)

// HintData is the dispatcher's compiled form of one `(pc, code,
// ap_tracking, references)` tuple (spec.md §4.6): a human-readable name
// for diagnostics and the resolved reference table an implementation
// pulls its operands from. The ap_tracking record itself is not kept.
type HintData struct {
	Name       string
	References map[string]Reference
}

// Hinter is the capability every compiled hint implements: ordinary
// execution, plus an optional hint-extension hook a hint uses to install
// further hints at later program points (spec.md §4.6, "hint extension").
type Hinter interface {
	String() string
	Execute(vm *VM.VirtualMachine, scopes *ExecutionScopes) error
}

// Extensive is implemented by hints that may install additional hints at
// other program counters as a side effect (e.g. a loop unroller that
// schedules its body's hints just-in-time).
type Extensive interface {
	Hinter
	ExecuteExtensive(vm *VM.VirtualMachine, scopes *ExecutionScopes) (map[uint64][]Hinter, error)
}
