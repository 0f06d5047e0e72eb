package builtins

import "fmt"

// defaultRatios holds the per-builtin steps-per-instance used when a
// layout's own table (pkg/layout) doesn't override it; these match the
// values cairo-lang's `all_cairo` layout assigns, the layout most
// programs compiled without an explicit `--layout` flag target.
var defaultRatios = map[string]uint64{
	HashName:      32,
	RangeCheckName: 16,
	BitwiseName:   16,
	EcOpName:      256,
	SignatureName: 2048,
	KeccakName:    2048,
	PoseidonName:  32,
}

// NewBuiltinRunner constructs the named builtin with its package default
// ratio, included.
func NewBuiltinRunner(name string) (BuiltinRunner, error) {
	return NewBuiltinRunnerWithRatio(name, defaultRatios[name])
}

// NewBuiltinRunnerWithRatio constructs the named builtin at an explicit
// ratio (e.g. one a named layout's table specifies); a ratio of 0 falls
// back to the package default for ratioed builtins, and is ignored
// outright for the unratioed output builtin.
func NewBuiltinRunnerWithRatio(name string, ratio uint64) (BuiltinRunner, error) {
	if ratio == 0 {
		ratio = defaultRatios[name]
	}
	switch name {
	case OutputName:
		return NewOutput(true), nil
	case HashName:
		return NewHash(ratio, true), nil
	case RangeCheckName:
		return NewRangeCheck(ratio, true), nil
	case BitwiseName:
		return NewBitwise(ratio, true), nil
	case EcOpName:
		return NewEcOp(ratio, true), nil
	case SignatureName:
		return NewSignature(ratio, true), nil
	case KeccakName:
		return NewKeccak(ratio, true), nil
	case PoseidonName:
		return NewPoseidon(ratio, true), nil
	default:
		return nil, fmt.Errorf("unknown builtin: %q", name)
	}
}
