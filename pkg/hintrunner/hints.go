package hintrunner

import (
	"fmt"
	"math/big"

	"github.com/cairo-vm/cairo-vm-go/pkg/hintrunner/hinter"
	VM "github.com/cairo-vm/cairo-vm-go/pkg/vm"
	mem "github.com/cairo-vm/cairo-vm-go/pkg/vm/memory"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
)

// The hint code constants below match the common-library hints every
// cairo-lang program linking starkware.cairo.common.* compiles to; a
// dispatcher keys its lookup table on the exact source string the
// compiler embedded, the same way the hint travels from Python source to
// Go behavior in every other implementation of this VM.
const (
	hintAllocSegment      = "memory[ap] = segments.add()"
	hintIsNN              = "memory[ap] = 0 if 0 <= (ids.a % PRIME) < range_check_builtin.bound else 1"
	hintAssertNN          = "from starkware.cairo.common.math_utils import assert_integer\nassert_integer(ids.a)\nassert 0 <= ids.a % PRIME < range_check_builtin.bound, f'a = {ids.a} is out of range.'"
	hintAssertNotZero     = "from starkware.cairo.common.math_utils import assert_integer\nassert_integer(ids.value)\nassert ids.value % PRIME != 0, f'value is zero.'"
	hintUnsignedDivRem    = "from starkware.cairo.common.math_utils import assert_integer\nassert_integer(ids.div)\nassert 0 < ids.div <= PRIME // range_check_builtin.bound, f'div={hex(ids.div)} is out of the valid range.'\nids.q, ids.r = divmod(ids.value, ids.div)"
	hintSqrt              = "from starkware.python.math_utils import isqrt\nvalue = ids.value % PRIME\nids.root = isqrt(value)"
	hintAssertLtFelt      = "from starkware.cairo.common.math_utils import assert_integer\nassert_integer(ids.a)\nassert_integer(ids.b)\nassert (ids.a % PRIME) < (ids.b % PRIME), f'a = {ids.a} is not less than b = {ids.b}.'"
)

// CompileBuiltinHint maps a hint's source code to its compiled behavior.
// It recognizes a representative subset of the cairo-lang common-library
// hints; unrecognized code compiles to an error so a missing hint fails
// loudly at load time rather than silently doing nothing at run time.
func CompileBuiltinHint(code string, data hinter.HintData) (hinter.Hinter, error) {
	switch code {
	case hintAllocSegment:
		return allocSegmentHint{data}, nil
	case hintIsNN:
		return isNNHint{data}, nil
	case hintAssertNN:
		return assertNNHint{data}, nil
	case hintAssertNotZero:
		return assertNotZeroHint{data}, nil
	case hintUnsignedDivRem:
		return unsignedDivRemHint{data}, nil
	case hintSqrt:
		return sqrtHint{data}, nil
	case hintAssertLtFelt:
		return assertLtFeltHint{data}, nil
	default:
		return nil, fmt.Errorf("unrecognized hint code: %q", code)
	}
}

func reference(data hinter.HintData, name string) (hinter.Reference, error) {
	ref, ok := data.References[name]
	if !ok {
		return nil, fmt.Errorf("hint %s: missing reference %q", data.Name, name)
	}
	return ref, nil
}

func resolveFelt(vm *VM.VirtualMachine, data hinter.HintData, name string) (*mem.Felt, error) {
	ref, err := reference(data, name)
	if err != nil {
		return nil, err
	}
	value, err := ref.Resolve(vm)
	if err != nil {
		return nil, fmt.Errorf("hint %s: resolving %q: %w", data.Name, name, err)
	}
	felt, err := value.ToFieldElement()
	if err != nil {
		return nil, fmt.Errorf("hint %s: %q: %w", data.Name, name, err)
	}
	return felt, nil
}

func writeIdent(vm *VM.VirtualMachine, data hinter.HintData, name string, value mem.MemoryValue) error {
	ref, err := reference(data, name)
	if err != nil {
		return err
	}
	addr, err := ref.Get(vm)
	if err != nil {
		return fmt.Errorf("hint %s: address of %q: %w", data.Name, name, err)
	}
	return vm.Memory.WriteToAddress(&addr, &value)
}

// allocSegmentHint backs `segments.add()`: allocates a fresh execution
// segment and writes its base address to the ap cell the compiler
// reserved for the call's result.
type allocSegmentHint struct{ data hinter.HintData }

func (h allocSegmentHint) String() string { return "AllocSegment" }

func (h allocSegmentHint) Execute(vm *VM.VirtualMachine, scopes *hinter.ExecutionScopes) error {
	segmentIndex := vm.Memory.AllocateEmptySegment()
	address := mem.MemoryAddress{SegmentIndex: segmentIndex, Offset: 0}
	apAddr := mem.MemoryAddress{SegmentIndex: VM.ExecutionSegment, Offset: vm.Context.Ap}
	value := mem.MemoryValueFromMemoryAddress(&address)
	return vm.Memory.WriteToAddress(&apAddr, &value)
}

// isNNHint backs `is_nn`: tags ids.a as nonnegative (0) or not (1) under
// the range-check builtin's bound, without itself constraining anything —
// the program is expected to follow up with a range-check assertion.
type isNNHint struct{ data hinter.HintData }

func (h isNNHint) String() string { return "IsNN" }

func (h isNNHint) Execute(vm *VM.VirtualMachine, scopes *hinter.ExecutionScopes) error {
	a, err := resolveFelt(vm, h.data, "a")
	if err != nil {
		return err
	}
	result := mem.MemoryValueFromUint(boolToUint(isInRangeCheckBound(a)))
	apAddr := mem.MemoryAddress{SegmentIndex: VM.ExecutionSegment, Offset: vm.Context.Ap}
	return vm.Memory.WriteToAddress(&apAddr, &result)
}

// assertNNHint backs `assert_nn`: aborts the run if ids.a, reduced modulo
// the field prime, falls outside the range-check builtin's bound.
type assertNNHint struct{ data hinter.HintData }

func (h assertNNHint) String() string { return "AssertNN" }

func (h assertNNHint) Execute(vm *VM.VirtualMachine, scopes *hinter.ExecutionScopes) error {
	a, err := resolveFelt(vm, h.data, "a")
	if err != nil {
		return err
	}
	if !isInRangeCheckBound(a) {
		return fmt.Errorf("a = %s is out of range", a.String())
	}
	return nil
}

// assertNotZeroHint backs `assert_not_zero`: aborts the run if ids.value
// is congruent to zero modulo the field prime.
type assertNotZeroHint struct{ data hinter.HintData }

func (h assertNotZeroHint) String() string { return "AssertNotZero" }

func (h assertNotZeroHint) Execute(vm *VM.VirtualMachine, scopes *hinter.ExecutionScopes) error {
	value, err := resolveFelt(vm, h.data, "value")
	if err != nil {
		return err
	}
	if value.IsZero() {
		return fmt.Errorf("value is zero")
	}
	return nil
}

// unsignedDivRemHint backs `unsigned_div_rem`: computes q, r = divmod(value,
// div) over the integers (not the field), requiring div to fall within the
// range the builtin can later bound-check.
type unsignedDivRemHint struct{ data hinter.HintData }

func (h unsignedDivRemHint) String() string { return "UnsignedDivRem" }

func (h unsignedDivRemHint) Execute(vm *VM.VirtualMachine, scopes *hinter.ExecutionScopes) error {
	value, err := resolveFelt(vm, h.data, "value")
	if err != nil {
		return err
	}
	div, err := resolveFelt(vm, h.data, "div")
	if err != nil {
		return err
	}
	valueBig := value.BigInt(new(big.Int))
	divBig := div.BigInt(new(big.Int))
	// PRIME // 2^128: the largest div whose quotient the range-check
	// builtin can still bound.
	maxDiv := new(big.Int).Rsh(fp.Modulus(), 128)
	if div.IsZero() || divBig.Cmp(maxDiv) > 0 {
		return fmt.Errorf("div=%s is out of the valid range", div.String())
	}
	q, r := new(big.Int), new(big.Int)
	q.DivMod(valueBig, divBig, r)

	var qFelt, rFelt mem.Felt
	qFelt.SetBigInt(q)
	rFelt.SetBigInt(r)

	if err := writeIdent(vm, h.data, "q", mem.MemoryValueFromFieldElement(&qFelt)); err != nil {
		return err
	}
	return writeIdent(vm, h.data, "r", mem.MemoryValueFromFieldElement(&rFelt))
}

// sqrtHint backs `sqrt`: writes the integer square root of ids.value
// (reduced modulo the field prime) to ids.root.
type sqrtHint struct{ data hinter.HintData }

func (h sqrtHint) String() string { return "Sqrt" }

func (h sqrtHint) Execute(vm *VM.VirtualMachine, scopes *hinter.ExecutionScopes) error {
	value, err := resolveFelt(vm, h.data, "value")
	if err != nil {
		return err
	}
	valueBig := value.BigInt(new(big.Int))
	root := new(big.Int).Sqrt(valueBig)
	var rootFelt mem.Felt
	rootFelt.SetBigInt(root)
	return writeIdent(vm, h.data, "root", mem.MemoryValueFromFieldElement(&rootFelt))
}

// assertLtFeltHint backs `assert_lt_felt`: aborts the run unless ids.a is
// strictly less than ids.b, both reduced modulo the field prime.
type assertLtFeltHint struct{ data hinter.HintData }

func (h assertLtFeltHint) String() string { return "AssertLtFelt" }

func (h assertLtFeltHint) Execute(vm *VM.VirtualMachine, scopes *hinter.ExecutionScopes) error {
	a, err := resolveFelt(vm, h.data, "a")
	if err != nil {
		return err
	}
	b, err := resolveFelt(vm, h.data, "b")
	if err != nil {
		return err
	}
	aBig := a.BigInt(new(big.Int))
	bBig := b.BigInt(new(big.Int))
	if aBig.Cmp(bBig) >= 0 {
		return fmt.Errorf("a = %s is not less than b = %s", a.String(), b.String())
	}
	return nil
}

func boolToUint(b bool) uint64 {
	if b {
		return 0
	}
	return 1
}

// isInRangeCheckBound reports whether a fits the range-check builtin's
// 2^128 bound; a value here never needs the field's full width.
func isInRangeCheckBound(a *mem.Felt) bool {
	big := a.BigInt(new(big.Int))
	return big.BitLen() <= 128
}
