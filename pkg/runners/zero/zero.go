// Package zero drives a compiled cairo-lang ("Cairo zero") program through
// the VM: entrypoint setup, the run loop, proof-mode trace padding, and the
// on-disk trace/memory encodings the prover consumes (spec.md §6).
package zero

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/cairo-vm/cairo-vm-go/pkg/hintrunner"
	"github.com/cairo-vm/cairo-vm-go/pkg/layout"
	"github.com/cairo-vm/cairo-vm-go/pkg/parsers/zero"
	"github.com/cairo-vm/cairo-vm-go/pkg/safemath"
	VM "github.com/cairo-vm/cairo-vm-go/pkg/vm"
	"github.com/cairo-vm/cairo-vm-go/pkg/vm/builtins"
	"github.com/cairo-vm/cairo-vm-go/pkg/vm/memory"
	f "github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
)

// ZeroRunner owns a single run of a compiled Cairo zero program: its
// memory, register file, installed builtins and hint runner.
type ZeroRunner struct {
	memoryManager  *memory.MemoryManager
	program        *zero.Program
	vm             *VM.VirtualMachine
	hintRunner     *hintrunner.HintRunner
	builtinRunners []builtins.BuiltinRunner

	entrypoint string
	proofMode  bool
	maxSteps   uint64
	layoutName string

	runFinished bool
}

// RunnerOptions configures a ZeroRunner beyond the program itself.
type RunnerOptions struct {
	Layout     string
	// LayoutFile, when set, loads a custom layout from a YAML file instead
	// of resolving Layout against the named table.
	LayoutFile string
	ProofMode  bool
	MaxSteps   uint64
	// Entrypoint names the function to call when ProofMode is off; the
	// zero value defaults to "main". Proof-mode runs always enter at the
	// compiler-emitted `__start__` label regardless of this field.
	Entrypoint string
}

// NewRunner builds a runner for program: it allocates the program and
// execution segments, installs the builtins the program's builtin list
// names at the ratios the selected layout's table specifies, and
// compiles every hint the program carries.
func NewRunner(program *zero.Program, opts RunnerOptions) (*ZeroRunner, error) {
	layoutName := opts.Layout
	memoryManager := memory.CreateMemoryManager()

	bytecode, err := program.Bytecode()
	if err != nil {
		return nil, fmt.Errorf("decoding program bytecode: %w", err)
	}
	programSegmentIndex, err := memoryManager.Memory.AllocateSegment(bytecode) // ProgramSegment
	if err != nil {
		return nil, fmt.Errorf("allocating program segment: %w", err)
	}
	// The program's bytecode is always public memory (spec.md §6).
	programSegment := memoryManager.Memory.Segments[programSegmentIndex]
	programSegment.PublicMemoryOffsets = make([]uint64, len(bytecode))
	for i := range programSegment.PublicMemoryOffsets {
		programSegment.PublicMemoryOffsets[i] = uint64(i)
	}
	memoryManager.Memory.AllocateEmptySegment() // ExecutionSegment

	var selectedLayout layout.Layout
	if opts.LayoutFile != "" {
		selectedLayout, err = layout.LoadFile(opts.LayoutFile)
	} else if layoutName == "dynamic" {
		// A ratio of 0 makes each builtin fall back to its package default.
		selectedLayout = layout.Dynamic(program.Builtins, func(string) uint64 { return 0 })
	} else {
		selectedLayout, err = layout.Get(layoutName)
	}
	if err != nil {
		return nil, err
	}

	runners, err := installBuiltins(memoryManager.Memory, program.Builtins, selectedLayout)
	if err != nil {
		return nil, fmt.Errorf("installing builtins: %w", err)
	}

	virtualMachine, err := VM.NewVirtualMachine(
		VM.Context{}, memoryManager.Memory, VM.VirtualMachineConfig{ProofMode: opts.ProofMode},
	)
	if err != nil {
		return nil, fmt.Errorf("initializing vm: %w", err)
	}
	if opts.MaxSteps > 0 {
		virtualMachine.RunResources = VM.NewRunResources(opts.MaxSteps)
	}

	hr, err := hintrunner.NewHintRunner(program, hintrunner.CompileBuiltinHint)
	if err != nil {
		return nil, fmt.Errorf("compiling hints: %w", err)
	}

	entrypoint := opts.Entrypoint
	if entrypoint == "" {
		entrypoint = "main"
	}

	return &ZeroRunner{
		memoryManager:  memoryManager,
		program:        program,
		vm:             virtualMachine,
		hintRunner:     hr,
		builtinRunners: runners,
		entrypoint:     entrypoint,
		proofMode:      opts.ProofMode,
		maxSteps:       opts.MaxSteps,
		layoutName:     selectedLayout.Name,
	}, nil
}

// installBuiltins allocates one segment per builtin the program declares
// and installs its validation/auto-deduction rules, in declared order
// (spec.md §4.4): the builtin segments immediately follow the program and
// execution segments. A builtin the program names but the active layout
// does not include is rejected outright, matching cairo-lang's own
// layout-mismatch check at load time; the output builtin is the exception
// and is accepted under every layout.
func installBuiltins(mem *memory.Memory, names []string, l layout.Layout) ([]builtins.BuiltinRunner, error) {
	runners := make([]builtins.BuiltinRunner, 0, len(names))
	for _, name := range names {
		ratio, ok := l.RatioFor(name)
		if !ok && name != builtins.OutputName {
			return nil, fmt.Errorf("builtin %q is not included in layout %q", name, l.Name)
		}
		runner, err := builtins.NewBuiltinRunnerWithRatio(name, ratio)
		if err != nil {
			return nil, err
		}
		segmentIndex := mem.AllocateEmptySegment()
		runner.SetBase(int64(segmentIndex))
		if err := runner.AddValidationRule(mem); err != nil {
			return nil, fmt.Errorf("builtin %s: %w", name, err)
		}
		if err := mem.AddAutoDeductionRule(int64(segmentIndex), runner); err != nil {
			return nil, fmt.Errorf("builtin %s: %w", name, err)
		}
		runners = append(runners, runner)
	}
	return runners, nil
}

// Run executes the program's main entrypoint to completion, then, in
// proof mode, pads the trace out to a power of two (spec.md §6).
func (runner *ZeroRunner) Run() error {
	if runner.runFinished {
		return errors.New("cannot re-run using the same runner")
	}

	end, err := runner.InitializeMainEntrypoint()
	if err != nil {
		return fmt.Errorf("initializing main entrypoint: %w", err)
	}

	if err := runner.RunUntilPc(&end); err != nil {
		return err
	}

	if runner.proofMode {
		// proof mode requires one extra instruction beyond the `__end__`
		// label, then padding to a power-of-two step count.
		if err := runner.RunFor(runner.vm.Step + 1); err != nil {
			return err
		}
		pow2Steps := safemath.NextPowerOfTwo(runner.vm.Step)
		if err := runner.RunFor(pow2Steps); err != nil {
			return err
		}
	}

	runner.runFinished = true
	return nil
}

// InitializeMainEntrypoint sets up the initial register file for either
// the proof-mode `__start__`/`__end__` pair or a normal call into `main`,
// and returns the pc the run should stop at.
func (runner *ZeroRunner) InitializeMainEntrypoint() (memory.MemoryAddress, error) {
	if runner.proofMode {
		startPc, err := runner.program.Entrypoint("__start__")
		if err != nil {
			return memory.UnknownAddress, fmt.Errorf("start label not found, try compiling with --proof_mode: %w", err)
		}
		endPc, err := runner.program.Entrypoint("__end__")
		if err != nil {
			return memory.UnknownAddress, fmt.Errorf("end label not found, try compiling with --proof_mode: %w", err)
		}

		offset := runner.segments()[VM.ExecutionSegment].Len()

		dummyFPValue := memory.MemoryValueFromSegmentAndOffset(
			VM.ProgramSegment,
			runner.segments()[VM.ProgramSegment].Len()+offset+2,
		)
		if err := runner.memory().Write(VM.ExecutionSegment, offset, &dummyFPValue); err != nil {
			return memory.UnknownAddress, err
		}

		dummyPCValue := memory.MemoryValueFromUint[uint64](0)
		if err := runner.memory().Write(VM.ExecutionSegment, offset+1, &dummyPCValue); err != nil {
			return memory.UnknownAddress, err
		}

		runner.vm.Context.Pc = memory.MemoryAddress{SegmentIndex: VM.ProgramSegment, Offset: startPc}
		runner.vm.Context.Ap = offset + 2
		runner.vm.Context.Fp = runner.vm.Context.Ap
		return memory.MemoryAddress{SegmentIndex: VM.ProgramSegment, Offset: endPc}, nil
	}

	returnFp := memory.MemoryValueFromSegmentAndOffset(int64(runner.memory().AllocateEmptySegment()), 0)
	return runner.InitializeEntrypoint(runner.entrypoint, nil, &returnFp)
}

// InitializeEntrypoint lays out a call frame for funcName in the execution
// segment: the arguments, a return-fp sentinel and a return-pc sentinel,
// then points pc/ap/fp at it. A fresh, empty segment is allocated only to
// serve as the return-pc target, which is also the returned end address.
func (runner *ZeroRunner) InitializeEntrypoint(
	funcName string, arguments []*f.Element, returnFp *memory.MemoryValue,
) (memory.MemoryAddress, error) {
	segmentIndex := runner.memory().AllocateEmptySegment()
	end := memory.MemoryAddress{SegmentIndex: int64(segmentIndex), Offset: 0}

	for i := range arguments {
		v := memory.MemoryValueFromFieldElement(arguments[i])
		if err := runner.memory().Write(VM.ExecutionSegment, uint64(i), &v); err != nil {
			return memory.UnknownAddress, err
		}
	}

	offset := runner.segments()[VM.ExecutionSegment].Len()
	if err := runner.memory().Write(VM.ExecutionSegment, offset, returnFp); err != nil {
		return memory.UnknownAddress, err
	}
	endMv := memory.MemoryValueFromMemoryAddress(&end)
	if err := runner.memory().Write(VM.ExecutionSegment, offset+1, &endMv); err != nil {
		return memory.UnknownAddress, err
	}

	pc, err := runner.program.Entrypoint(funcName)
	if err != nil {
		return memory.UnknownAddress, fmt.Errorf("unknown entrypoint: %s", funcName)
	}

	runner.vm.Context.Pc = memory.MemoryAddress{SegmentIndex: VM.ProgramSegment, Offset: pc}
	runner.vm.Context.Ap = offset + 2
	runner.vm.Context.Fp = runner.vm.Context.Ap

	return end, nil
}

// RunUntilPc steps the VM until pc is reached, annotating a failure with
// the enclosing error-message attribute when the program declared one
// (spec.md §4.5's traceback/attribute policy).
func (runner *ZeroRunner) RunUntilPc(pc *memory.MemoryAddress) error {
	for !runner.vm.Context.Pc.Equal(pc) {
		if err := runner.vm.RunStep(runner.hintRunner); err != nil {
			return runner.annotate(err)
		}
	}
	return nil
}

// RunFor steps the VM until it has executed at least steps deterministic
// steps in total.
func (runner *ZeroRunner) RunFor(steps uint64) error {
	for runner.steps() < steps {
		if err := runner.vm.RunStep(runner.hintRunner); err != nil {
			return runner.annotate(err)
		}
	}
	return nil
}

func (runner *ZeroRunner) annotate(err error) error {
	pc := runner.pc()
	if frames := runner.vm.Traceback(); len(frames) > 0 {
		returnPcs := make([]string, len(frames))
		for i := range frames {
			returnPcs[i] = frames[i].String()
		}
		err = fmt.Errorf("%w (traceback: %s)", err, strings.Join(returnPcs, ", "))
	}
	if message, ok := runner.program.AttributeFor(pc.Offset); ok {
		return fmt.Errorf("pc %s step %d (%s): %w", pc.String(), runner.steps(), message, err)
	}
	return fmt.Errorf("pc %s step %d: %w", pc.String(), runner.steps(), err)
}

// CheckSecureRun performs the checks a non-proof, "secure" run still owes
// the caller even without a prover downstream: every installed builtin's
// auto-deductions agree with what was actually written, and every
// builtin's final stack pointer (written by the program's epilogue,
// immediately below the final ap, in reverse declaration order per the
// standard calling convention) matches its used-instance accounting.
func (runner *ZeroRunner) CheckSecureRun() error {
	if err := runner.memory().RunValidationRules(); err != nil {
		return fmt.Errorf("secure run: %w", err)
	}
	if err := runner.VerifyAutoDeductions(); err != nil {
		return fmt.Errorf("secure run: %w", err)
	}
	stackPointer := runner.vm.Context.AddressAp()
	for i := len(runner.builtinRunners) - 1; i >= 0; i-- {
		b := runner.builtinRunners[i]
		corrected, err := b.FinalStack(runner.memory(), stackPointer)
		if err != nil {
			return fmt.Errorf("secure run: builtin %s: %w", b.String(), err)
		}
		stackPointer = corrected
	}
	return nil
}

// VerifyAutoDeductions re-runs each installed builtin's deduction against
// every written cell of its own segment and compares the result against
// what is actually stored there (spec.md §4.4 `verify_auto_deductions`).
// A builtin that doesn't deduce a given cell (e.g. an input cell, or the
// output builtin, which never deduces anything) is skipped for that cell.
func (runner *ZeroRunner) VerifyAutoDeductions() error {
	mem := runner.memory()
	for _, b := range runner.builtinRunners {
		segmentIndex := b.Base()
		segment := mem.Segments[segmentIndex]
		for offset := uint64(0); offset < segment.Len(); offset++ {
			stored := segment.Data[offset]
			if !stored.Known() {
				continue
			}
			address := memory.MemoryAddress{SegmentIndex: segmentIndex, Offset: offset}
			deduced, err := b.DeduceMemoryCell(address, mem)
			if err != nil {
				return fmt.Errorf("builtin %s: auto-deduction at %s: %w", b.String(), address.String(), err)
			}
			if deduced == nil {
				continue
			}
			if !deduced.Equal(&stored) {
				return &VM.InconsistentAutoDeductionError{
					Addr:     address,
					Expected: deduced,
					Actual:   &stored,
				}
			}
		}
	}
	return nil
}

// Finished reports whether Run has completed on this runner.
func (runner *ZeroRunner) Finished() bool {
	return runner.runFinished
}

// MarkFinished records that the run has completed. Run calls this itself;
// callers that drive the step loop directly (e.g. to skip Run's automatic
// proof-mode trace padding) must call it once they consider the run done,
// or BuildProof will refuse to relocate an unfinished run.
func (runner *ZeroRunner) MarkFinished() {
	runner.runFinished = true
}

// BuildProof relocates memory and trace and returns their on-disk
// encodings (spec.md §6).
func (runner *ZeroRunner) BuildProof() ([]byte, []byte, error) {
	if !runner.runFinished {
		return nil, nil, &VM.RunNotFinishedError{}
	}
	relocatedMemory, err := runner.memoryManager.RelocateMemory()
	if err != nil {
		return nil, nil, err
	}
	relocatedTrace, err := runner.vm.ExecutionTrace(runner.memoryManager.SegmentOffset(VM.ExecutionSegment))
	if err != nil {
		return nil, nil, err
	}
	return EncodeTrace(relocatedTrace), EncodeMemory(relocatedMemory), nil
}

func (runner *ZeroRunner) memory() *memory.Memory {
	return runner.memoryManager.Memory
}

func (runner *ZeroRunner) segments() []*memory.Segment {
	return runner.memoryManager.Memory.Segments
}

func (runner *ZeroRunner) pc() memory.MemoryAddress {
	return runner.vm.Context.Pc
}

func (runner *ZeroRunner) steps() uint64 {
	return runner.vm.Step
}

// Steps returns the number of deterministic steps run so far.
func (runner *ZeroRunner) Steps() uint64 {
	return runner.vm.Step
}

const ctxSize = 3 * 8

// EncodeTrace serializes a relocated trace as the prover's fixed 24-byte
// little-endian (ap, fp, pc) records.
func EncodeTrace(trace []VM.Trace) []byte {
	content := make([]byte, 0, len(trace)*ctxSize)
	for i := range trace {
		content = binary.LittleEndian.AppendUint64(content, trace[i].Ap)
		content = binary.LittleEndian.AppendUint64(content, trace[i].Fp)
		content = binary.LittleEndian.AppendUint64(content, trace[i].Pc)
	}
	return content
}

func DecodeTrace(content []byte) []VM.Trace {
	trace := make([]VM.Trace, 0, len(content)/ctxSize)
	for i := 0; i < len(content); i += ctxSize {
		trace = append(trace, VM.Trace{
			Ap: binary.LittleEndian.Uint64(content[i : i+8]),
			Fp: binary.LittleEndian.Uint64(content[i+8 : i+16]),
			Pc: binary.LittleEndian.Uint64(content[i+16 : i+24]),
		})
	}
	return trace
}

const addrSize = 8
const feltSize = 32

// EncodeMemory serializes relocated memory as consecutive (linear address,
// field element) records, skipping holes (spec.md §6).
func EncodeMemory(relocated []*f.Element) []byte {
	nonNil := 0
	for i := range relocated {
		if relocated[i] != nil {
			nonNil++
		}
	}
	content := make([]byte, nonNil*(addrSize+feltSize))

	count := 0
	for i := range relocated {
		if relocated[i] == nil {
			continue
		}
		j := count * (addrSize + feltSize)
		binary.LittleEndian.PutUint64(content[j:j+addrSize], uint64(i+1))
		f.LittleEndian.PutElement((*[32]byte)(content[j+addrSize:j+addrSize+feltSize]), *relocated[i])
		count++
	}
	return content
}

func DecodeMemory(content []byte) []*f.Element {
	if len(content) == 0 {
		return nil
	}
	lastContentIdx := len(content) - (addrSize + feltSize)
	lastMemIndex := binary.LittleEndian.Uint64(content[lastContentIdx : lastContentIdx+addrSize])

	relocated := make([]*f.Element, lastMemIndex)
	for i := 0; i < len(content); i += addrSize + feltSize {
		memIndex := binary.LittleEndian.Uint64(content[i : i+addrSize])
		felt, err := f.LittleEndian.Element((*[32]byte)(content[i+addrSize : i+addrSize+feltSize]))
		if err != nil {
			panic(err)
		}
		relocated[memIndex-1] = &felt
	}
	return relocated
}
