package vm

import (
	"fmt"

	"github.com/cairo-vm/cairo-vm-go/pkg/safemath"
	mem "github.com/cairo-vm/cairo-vm-go/pkg/vm/memory"
)

const (
	ProgramSegment = iota
	ExecutionSegment
)

// Felt and Address are the package-local names the VM's error types and
// step logic use for the two memory package types they touch most. They
// exist only to keep this package's signatures readable; nothing in
// `memory` depends on them.
type (
	Felt    = mem.Felt
	Address = mem.MemoryAddress
)

// HintRunner is the VM's sole hook into hint execution. It is defined as an
// external component so the dispatch, reference-resolution and
// hint-extension machinery of the hint runner package never needs to be
// imported by the stepping loop itself.
type HintRunner interface {
	RunHint(vm *VirtualMachine) error
}

// Context is the vm's register file: pc, ap and fp (spec.md §2).
type Context struct {
	Pc mem.MemoryAddress
	Fp uint64
	Ap uint64
}

func (ctx *Context) String() string {
	return fmt.Sprintf("Context {pc: %s, fp: %d, ap: %d}", ctx.Pc.String(), ctx.Fp, ctx.Ap)
}

func (ctx *Context) AddressAp() mem.MemoryAddress {
	return mem.MemoryAddress{SegmentIndex: ExecutionSegment, Offset: ctx.Ap}
}

func (ctx *Context) AddressFp() mem.MemoryAddress {
	return mem.MemoryAddress{SegmentIndex: ExecutionSegment, Offset: ctx.Fp}
}

func (ctx *Context) AddressPc() mem.MemoryAddress {
	return ctx.Pc
}

// Relocate turns a raw register snapshot into a prover-facing trace entry:
// pc becomes its 1-based linear program address, ap/fp become their linear
// execution-segment address (spec.md §6).
func (ctx *Context) Relocate(executionSegmentOffset uint64) Trace {
	return Trace{
		Pc: ctx.Pc.Offset + 1,
		Ap: ctx.Ap + executionSegmentOffset,
		Fp: ctx.Fp + executionSegmentOffset,
	}
}

// Trace is one relocated register snapshot, in the layout the prover reads
// off disk (spec.md §6): 24 bytes, three little-endian u64s.
type Trace struct {
	Pc uint64
	Fp uint64
	Ap uint64
}

// RunResources bounds how many deterministic steps a run may take before
// failing with ResourcesExhaustedError (spec.md §4.5). A nil max means
// unlimited.
type RunResources struct {
	used uint64
	max  *uint64
}

func NewUnlimitedRunResources() *RunResources {
	return &RunResources{}
}

func NewRunResources(maxSteps uint64) *RunResources {
	return &RunResources{max: &maxSteps}
}

// consume reports whether another step may run, incrementing the used
// counter when it does.
func (r *RunResources) consume() bool {
	if r.max != nil && r.used >= *r.max {
		return false
	}
	r.used++
	return true
}

func (r *RunResources) Used() uint64 { return r.used }

// VirtualMachineConfig toggles the bookkeeping the core loop performs that
// proof-mode runs need but a plain execution does not (spec.md §4.5,
// §6).
type VirtualMachineConfig struct {
	// ProofMode makes RunStep record every pre-step register snapshot into
	// Trace, so ExecutionTrace can later produce the relocated trace file.
	ProofMode bool
}

// VirtualMachine is the Cairo VM's deterministic step engine: it owns the
// register file and the memory, decodes and executes one instruction at a
// time, and defers everything nondeterministic (hints) and everything
// domain-specific (builtins) to collaborators installed on Memory's
// segments (spec.md §9).
type VirtualMachine struct {
	Context Context
	Memory  *mem.Memory
	Step    uint64
	Trace   []Context

	RunResources *RunResources

	config VirtualMachineConfig
	// instructions caches decoded instructions by pc offset, so a loop
	// body is only decoded once no matter how many times it runs.
	instructions map[uint64]*Instruction
}

// NewVirtualMachine creates a VM positioned at initialContext, over memory,
// with no step limit. Callers that need one set vm.RunResources afterwards.
func NewVirtualMachine(initialContext Context, memory *mem.Memory, config VirtualMachineConfig) (*VirtualMachine, error) {
	var trace []Context
	if config.ProofMode {
		trace = make([]Context, 0)
	}

	return &VirtualMachine{
		Context:      initialContext,
		Memory:       memory,
		Trace:        trace,
		RunResources: NewUnlimitedRunResources(),
		config:       config,
		instructions: make(map[uint64]*Instruction),
	}, nil
}

// RunStep decodes (or fetches from cache) the instruction at pc, gives the
// hint runner a chance to act before it executes, then runs it.
func (vm *VirtualMachine) RunStep(hintRunner HintRunner) error {
	if !vm.RunResources.consume() {
		return &ResourcesExhaustedError{}
	}

	instruction, ok := vm.instructions[vm.Context.Pc.Offset]
	if !ok {
		memoryValue, err := vm.Memory.ReadFromAddress(&vm.Context.Pc)
		if err != nil {
			return fmt.Errorf("reading instruction: %w", err)
		}

		bytecodeInstruction, err := memoryValue.ToFieldElement()
		if err != nil {
			return fmt.Errorf("reading instruction: %w", err)
		}

		instruction, err = DecodeInstruction(bytecodeInstruction)
		if err != nil {
			return fmt.Errorf("decoding instruction: %w", err)
		}
		vm.instructions[vm.Context.Pc.Offset] = instruction
	}

	if vm.config.ProofMode {
		vm.Trace = append(vm.Trace, vm.Context)
	}

	if hintRunner != nil {
		if err := hintRunner.RunHint(vm); err != nil {
			return fmt.Errorf("running hint at %s: %w", vm.Context.Pc.String(), err)
		}
	}

	if err := vm.RunInstruction(instruction); err != nil {
		return fmt.Errorf("running instruction at %s: %w", vm.Context.Pc.String(), err)
	}

	vm.Step++
	return nil
}

func (vm *VirtualMachine) RunInstruction(instruction *Instruction) error {
	dstAddr, err := vm.getDstAddr(instruction)
	if err != nil {
		return fmt.Errorf("dst cell: %w", err)
	}

	op0Addr, err := vm.getOp0Addr(instruction)
	if err != nil {
		return fmt.Errorf("op0 cell: %w", err)
	}

	op1Addr, err := vm.getOp1Addr(instruction, &op0Addr)
	if err != nil {
		return fmt.Errorf("op1 cell: %w", err)
	}

	res, err := vm.inferOperand(instruction, &dstAddr, &op0Addr, &op1Addr)
	if err != nil {
		return fmt.Errorf("res infer: %w", err)
	}
	if !res.Known() {
		res, err = vm.computeRes(instruction, &op0Addr, &op1Addr)
		if err != nil {
			return fmt.Errorf("compute res: %w", err)
		}
	}

	if err := vm.opcodeAssertions(instruction, &dstAddr, &op0Addr, &op1Addr, &res); err != nil {
		return fmt.Errorf("opcode assertions: %w", err)
	}

	nextPc, err := vm.updatePc(instruction, &dstAddr, &op1Addr, &res)
	if err != nil {
		return fmt.Errorf("pc update: %w", err)
	}

	nextAp, err := vm.updateAp(instruction, &res)
	if err != nil {
		return fmt.Errorf("ap update: %w", err)
	}

	nextFp, err := vm.updateFp(instruction, &dstAddr)
	if err != nil {
		return fmt.Errorf("fp update: %w", err)
	}

	vm.Memory.MarkAccessed(dstAddr)
	vm.Memory.MarkAccessed(op0Addr)
	vm.Memory.MarkAccessed(op1Addr)

	vm.Context.Pc = nextPc
	vm.Context.Ap = nextAp
	vm.Context.Fp = nextFp

	return nil
}

// ExecutionTrace returns the relocated trace recorded so far; only valid
// when the VM was built with ProofMode.
func (vm *VirtualMachine) ExecutionTrace(executionSegmentOffset uint64) ([]Trace, error) {
	if !vm.config.ProofMode {
		return nil, fmt.Errorf("proof mode is off")
	}
	relocated := make([]Trace, len(vm.Trace))
	for i := range vm.Trace {
		relocated[i] = vm.Trace[i].Relocate(executionSegmentOffset)
	}
	return relocated, nil
}

// Traceback walks the call-frame chain backwards from the current fp,
// collecting the return address recorded in each frame (spec.md §4.5's
// "attach a traceback" failure-reporting requirement). It stops once fp
// stops decreasing, which happens once it walks off the first frame.
func (vm *VirtualMachine) Traceback() []mem.MemoryAddress {
	var frames []mem.MemoryAddress
	fp := vm.Context.Fp
	for {
		if fp < 2 {
			break
		}
		retPcAddr := mem.MemoryAddress{SegmentIndex: ExecutionSegment, Offset: fp - 1}
		retPcValue, err := vm.Memory.PeekFromAddress(&retPcAddr)
		if err != nil || !retPcValue.Known() {
			break
		}
		retPc, err := retPcValue.ToMemoryAddress()
		if err != nil {
			break
		}
		frames = append(frames, *retPc)

		retFpAddr := mem.MemoryAddress{SegmentIndex: ExecutionSegment, Offset: fp - 2}
		retFpValue, err := vm.Memory.PeekFromAddress(&retFpAddr)
		if err != nil || !retFpValue.Known() {
			break
		}
		retFpRel, err := retFpValue.ToMemoryAddress()
		if err != nil {
			break
		}
		if retFpRel.Offset >= fp {
			break
		}
		fp = retFpRel.Offset
	}
	return frames
}

func (vm *VirtualMachine) getDstAddr(instruction *Instruction) (mem.MemoryAddress, error) {
	var dstRegister uint64
	if instruction.DstRegister == Ap {
		dstRegister = vm.Context.Ap
	} else {
		dstRegister = vm.Context.Fp
	}

	addr, overflow := safemath.SafeOffset(dstRegister, instruction.OffDest)
	if overflow {
		return mem.UnknownAddress, fmt.Errorf("offset overflow: %d + %d", dstRegister, instruction.OffDest)
	}
	return mem.MemoryAddress{SegmentIndex: ExecutionSegment, Offset: addr}, nil
}

func (vm *VirtualMachine) getOp0Addr(instruction *Instruction) (mem.MemoryAddress, error) {
	var op0Register uint64
	if instruction.Op0Register == Ap {
		op0Register = vm.Context.Ap
	} else {
		op0Register = vm.Context.Fp
	}

	addr, overflow := safemath.SafeOffset(op0Register, instruction.OffOp0)
	if overflow {
		return mem.UnknownAddress, fmt.Errorf("offset overflow: %d + %d", op0Register, instruction.OffOp0)
	}
	return mem.MemoryAddress{SegmentIndex: ExecutionSegment, Offset: addr}, nil
}

func (vm *VirtualMachine) getOp1Addr(instruction *Instruction, op0Addr *mem.MemoryAddress) (mem.MemoryAddress, error) {
	var op1Address mem.MemoryAddress
	switch instruction.Op1Source {
	case Op0:
		op0Value, err := vm.Memory.ReadFromAddress(op0Addr)
		if err != nil {
			return mem.UnknownAddress, fmt.Errorf("cannot read op0: %w", err)
		}
		op0Address, err := op0Value.ToMemoryAddress()
		if err != nil {
			return mem.UnknownAddress, fmt.Errorf("op0 is not an address: %w", err)
		}
		op1Address = *op0Address
	case Imm:
		op1Address = vm.Context.AddressPc()
	case FpPlusOffOp1:
		op1Address = vm.Context.AddressFp()
	case ApPlusOffOp1:
		op1Address = vm.Context.AddressAp()
	}

	addr, overflow := safemath.SafeOffset(op1Address.Offset, instruction.OffOp1)
	if overflow {
		return mem.UnknownAddress, fmt.Errorf("offset overflow: %d + %d", op1Address.Offset, instruction.OffOp1)
	}
	op1Address.Offset = addr
	return op1Address, nil
}

// inferOperand handles the case where an AssertEq was compiled from a
// subtraction or division (x = y - z becomes y = x + z at the bytecode
// level): dst and exactly one of op0/op1 are known, and the missing
// operand is derived and written back (spec.md §4.5 step 4).
func (vm *VirtualMachine) inferOperand(
	instruction *Instruction, dstAddr, op0Addr, op1Addr *mem.MemoryAddress,
) (mem.MemoryValue, error) {
	if instruction.Opcode != AssertEq ||
		(instruction.Res != AddOperands && instruction.Res != MulOperands) {
		return mem.MemoryValue{}, nil
	}

	op0Value, err := vm.Memory.PeekFromAddress(op0Addr)
	if err != nil {
		return mem.MemoryValue{}, fmt.Errorf("cannot read op0: %w", err)
	}
	op1Value, err := vm.Memory.PeekFromAddress(op1Addr)
	if err != nil {
		return mem.MemoryValue{}, fmt.Errorf("cannot read op1: %w", err)
	}

	if op0Value.Known() && op1Value.Known() {
		return mem.MemoryValue{}, nil
	}
	if !op0Value.Known() && !op1Value.Known() {
		return mem.MemoryValue{}, &FailedToComputeOperandsError{Op: "op0,op1", Addr: *op1Addr}
	}

	dstValue, err := vm.Memory.PeekFromAddress(dstAddr)
	if err != nil {
		return mem.MemoryValue{}, fmt.Errorf("cannot read dst: %w", err)
	}
	if !dstValue.Known() {
		return mem.MemoryValue{}, &FailedToComputeOperandsError{Op: "dst", Addr: *dstAddr}
	}

	var knownOpValue mem.MemoryValue
	var unknownOpAddr *mem.MemoryAddress
	if op0Value.Known() {
		knownOpValue = op0Value
		unknownOpAddr = op1Addr
	} else {
		knownOpValue = op1Value
		unknownOpAddr = op0Addr
	}

	var missingVal mem.MemoryValue
	if instruction.Res == AddOperands {
		missingVal = mem.EmptyMemoryValueAs(dstValue.IsAddress())
		err = missingVal.Sub(&dstValue, &knownOpValue)
	} else {
		missingVal = mem.EmptyMemoryValueAsFelt()
		err = missingVal.Div(&dstValue, &knownOpValue)
	}
	if err != nil {
		return mem.MemoryValue{}, err
	}

	if err := vm.Memory.WriteToAddress(unknownOpAddr, &missingVal); err != nil {
		return mem.MemoryValue{}, err
	}
	return dstValue, nil
}

func (vm *VirtualMachine) computeRes(
	instruction *Instruction, op0Addr, op1Addr *mem.MemoryAddress,
) (mem.MemoryValue, error) {
	switch instruction.Res {
	case Unconstrained:
		return mem.MemoryValue{}, nil
	case Op1Res:
		return vm.Memory.ReadFromAddress(op1Addr)
	default:
		op0, err := vm.Memory.ReadFromAddress(op0Addr)
		if err != nil {
			return mem.MemoryValue{}, fmt.Errorf("cannot read op0: %w", err)
		}
		op1, err := vm.Memory.ReadFromAddress(op1Addr)
		if err != nil {
			return mem.MemoryValue{}, fmt.Errorf("cannot read op1: %w", err)
		}

		res := mem.EmptyMemoryValueAs(op0.IsAddress() || op1.IsAddress())
		switch instruction.Res {
		case AddOperands:
			err = res.Add(&op0, &op1)
		case MulOperands:
			err = res.Mul(&op0, &op1)
		default:
			return mem.MemoryValue{}, fmt.Errorf("invalid res flag value: %d", instruction.Res)
		}
		return res, err
	}
}

func (vm *VirtualMachine) opcodeAssertions(
	instruction *Instruction, dstAddr, op0Addr, op1Addr *mem.MemoryAddress, res *mem.MemoryValue,
) error {
	switch instruction.Opcode {
	case Call:
		fpAddr := vm.Context.AddressFp()
		fpMv := mem.MemoryValueFromMemoryAddress(&fpAddr)
		if err := vm.Memory.WriteToAddress(dstAddr, &fpMv); err != nil {
			return &CantWriteReturnFpError{Msg: err.Error()}
		}

		nextInstrAddr := mem.MemoryAddress{
			SegmentIndex: vm.Context.Pc.SegmentIndex,
			Offset:       vm.Context.Pc.Offset + instruction.Size(),
		}
		nextInstrMv := mem.MemoryValueFromMemoryAddress(&nextInstrAddr)
		if err := vm.Memory.WriteToAddress(op0Addr, &nextInstrMv); err != nil {
			return &CantWriteReturnPcError{Msg: err.Error()}
		}
	case AssertEq:
		if !res.Known() {
			// res_logic Op1 with a still-missing op1 cell is a failed
			// deduction, not a genuinely unconstrained res; the spec's
			// taxonomy keeps these distinct (FailedToComputeOperands vs.
			// UnconstrainedResAssertEq).
			if instruction.Res == Op1Res {
				return &FailedToComputeOperandsError{Op: "op1", Addr: *op1Addr}
			}
			return &UnconstrainedResAssertEqError{}
		}
		dstValue, err := vm.Memory.PeekFromAddress(dstAddr)
		if err != nil {
			return fmt.Errorf("cannot read dst: %w", err)
		}
		if dstValue.Known() && !dstValue.Equal(res) {
			dstFelt, dstErr := dstValue.ToFieldElement()
			resFelt, resErr := res.ToFieldElement()
			if dstErr == nil && resErr == nil {
				return &DiffAssertValuesError{Dst: *dstFelt, Res: *resFelt}
			}
			return fmt.Errorf("assertion failed: dst (%s) != res (%s)", dstValue.String(), res.String())
		}
		if err := vm.Memory.WriteToAddress(dstAddr, res); err != nil {
			return err
		}
	}
	return nil
}

func (vm *VirtualMachine) updatePc(
	instruction *Instruction, dstAddr, op1Addr *mem.MemoryAddress, res *mem.MemoryValue,
) (mem.MemoryAddress, error) {
	switch instruction.PcUpdate {
	case NextInstr:
		return mem.MemoryAddress{
			SegmentIndex: vm.Context.Pc.SegmentIndex,
			Offset:       vm.Context.Pc.Offset + instruction.Size(),
		}, nil
	case Jump:
		if !res.Known() {
			return mem.UnknownAddress, &UnconstrainedResJumpError{}
		}
		addr, err := res.ToMemoryAddress()
		if err != nil {
			return mem.UnknownAddress, fmt.Errorf("absolute jump: %w", err)
		}
		return *addr, nil
	case JumpRel:
		if !res.Known() {
			return mem.UnknownAddress, &UnconstrainedResJumpRelError{}
		}
		val, err := res.ToFieldElement()
		if err != nil {
			return mem.UnknownAddress, fmt.Errorf("relative jump: %w", err)
		}
		newPc := vm.Context.Pc
		err = newPc.Add(&newPc, val)
		return newPc, err
	case Jnz:
		destMv, err := vm.Memory.ReadFromAddress(dstAddr)
		if err != nil {
			return mem.UnknownAddress, err
		}
		dest, err := destMv.ToFieldElement()
		if err != nil {
			return mem.UnknownAddress, err
		}
		if dest.IsZero() {
			return mem.MemoryAddress{
				SegmentIndex: vm.Context.Pc.SegmentIndex,
				Offset:       vm.Context.Pc.Offset + instruction.Size(),
			}, nil
		}

		op1Mv, err := vm.Memory.ReadFromAddress(op1Addr)
		if err != nil {
			return mem.UnknownAddress, err
		}
		val, err := op1Mv.ToFieldElement()
		if err != nil {
			return mem.UnknownAddress, err
		}
		newPc := vm.Context.Pc
		err = newPc.Add(&newPc, val)
		return newPc, err
	}
	return mem.UnknownAddress, fmt.Errorf("unknown pc update value: %d", instruction.PcUpdate)
}

func (vm *VirtualMachine) updateAp(instruction *Instruction, res *mem.MemoryValue) (uint64, error) {
	switch instruction.ApUpdate {
	case SameAp:
		return vm.Context.Ap, nil
	case AddImm:
		res64, err := res.Uint64()
		if err != nil {
			return 0, err
		}
		return vm.Context.Ap + res64, nil
	case Add1:
		return vm.Context.Ap + 1, nil
	case Add2:
		return vm.Context.Ap + 2, nil
	}
	return 0, fmt.Errorf("cannot update ap, unknown ApUpdate flag: %d", instruction.ApUpdate)
}

func (vm *VirtualMachine) updateFp(instruction *Instruction, dstAddr *mem.MemoryAddress) (uint64, error) {
	switch instruction.Opcode {
	case Call:
		return vm.Context.Ap + 2, nil
	case Ret:
		destMv, err := vm.Memory.ReadFromAddress(dstAddr)
		if err != nil {
			return 0, err
		}
		if dst, err := destMv.ToMemoryAddress(); err == nil {
			return dst.Offset, nil
		}
		dstFelt, err := destMv.ToFieldElement()
		if err != nil {
			return 0, fmt.Errorf("ret: dst is neither an address nor a field element: %w", err)
		}
		if !dstFelt.IsUint64() {
			return 0, fmt.Errorf("ret: dst field element does not fit a size type: %s", dstFelt.String())
		}
		return dstFelt.Uint64(), nil
	default:
		return vm.Context.Fp, nil
	}
}
