package vm

import "fmt"

// The error types below give the step loop's failures the stable shape
// spec.md §7 requires, while remaining plain Go errors usable with
// errors.As/errors.Is. Call sites build them as struct literals.

type DiffAssertValuesError struct {
	Dst Felt
	Res Felt
}

func (e *DiffAssertValuesError) Error() string {
	return fmt.Sprintf("assertion failed: dst (%s) != res (%s)", e.Dst.String(), e.Res.String())
}

type UnconstrainedResAssertEqError struct{}

func (e *UnconstrainedResAssertEqError) Error() string {
	return "assert_eq with unconstrained res"
}

type UnconstrainedResJumpError struct{}

func (e *UnconstrainedResJumpError) Error() string {
	return "jump with unconstrained res"
}

type UnconstrainedResJumpRelError struct{}

func (e *UnconstrainedResJumpRelError) Error() string {
	return "jump rel with unconstrained res"
}

type CantWriteReturnPcError struct{ Msg string }

func (e *CantWriteReturnPcError) Error() string { return "can't write return pc: " + e.Msg }

type CantWriteReturnFpError struct{ Msg string }

func (e *CantWriteReturnFpError) Error() string { return "can't write return fp: " + e.Msg }

type FailedToComputeOperandsError struct {
	Op   string
	Addr Address
}

func (e *FailedToComputeOperandsError) Error() string {
	return fmt.Sprintf("failed to compute operand %s at %s", e.Op, e.Addr.String())
}

type ResourcesExhaustedError struct{}

func (e *ResourcesExhaustedError) Error() string { return "resources exhausted: max step count reached" }

type NoScopeError struct{}

func (e *NoScopeError) Error() string { return "expected another scope to exit from, found none" }

type RunNotFinishedError struct{}

func (e *RunNotFinishedError) Error() string { return "run has not finished" }

type InconsistentAutoDeductionError struct {
	Addr     Address
	Expected MemoryValueRepr
	Actual   MemoryValueRepr
}

func (e *InconsistentAutoDeductionError) Error() string {
	return fmt.Sprintf(
		"inconsistent auto-deduction at %s: deduced %s, stored %s",
		e.Addr.String(), e.Expected, e.Actual,
	)
}

// MemoryValueRepr is a stringer alias used only to keep the error type
// above decoupled from the memory package's concrete value type in this
// file's imports.
type MemoryValueRepr = fmt.Stringer
