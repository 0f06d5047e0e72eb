package vm

import (
	"fmt"

	"github.com/cairo-vm/cairo-vm-go/pkg/vm/memory"
)

// Register selects which of ap/fp a register-relative offset is taken
// from (spec.md §4.3, DST_REG / OP0_REG flags).
type Register uint8

const (
	Ap Register = iota
	Fp
)

// Op1Src selects the base address op1 is computed relative to.
type Op1Src uint8

const (
	Op0 Op1Src = iota
	Imm
	ApPlusOffOp1
	FpPlusOffOp1
)

// ResLogic selects how `res` is computed from op0 and op1.
type ResLogic uint8

const (
	Op1Res ResLogic = iota
	AddOperands
	MulOperands
	Unconstrained
)

// PcUpdate selects how pc advances after the step.
type PcUpdate uint8

const (
	NextInstr PcUpdate = iota
	Jump
	JumpRel
	Jnz
)

// ApUpdate selects how ap advances after the step.
type ApUpdate uint8

const (
	SameAp ApUpdate = iota
	AddImm
	Add1
	Add2
)

// FpUpdate selects how fp advances after the step.
type FpUpdate uint8

const (
	SameFp FpUpdate = iota
	APPlus2
	Dst
)

// Opcode selects the instruction's assertion/side-effect semantics.
type Opcode uint8

const (
	NOp Opcode = iota
	Call
	Ret
	AssertEq
)

const offsetBias = int64(1) << 15

// flag bit offsets, relative to the 48-bit flags shift (spec.md §4.3).
const (
	dstRegBit    = 0
	op0RegBit    = 1
	op1SrcShift  = 2 // 3-bit one-hot group: Imm, Fp, Ap (all-zero: Op0)
	resLogShift  = 5 // 2-bit group: Add, Mul (all-zero: Op1 or Unconstrained by context)
	pcUpdShift   = 7 // 3-bit one-hot group: Jump, JumpRel, Jnz (all-zero: Regular)
	apUpdShift   = 10 // 2-bit one-hot group: Add, Add1 (all-zero: Regular)
	opcodeShift  = 12 // 3-bit one-hot group: Call, Ret, AssertEq (all-zero: NOp)
	flagsShift   = 48
)

// Instruction is the decoded form of a 63-bit Cairo instruction word, plus
// an optional immediate (spec.md §3).
type Instruction struct {
	OffDest int16
	OffOp0  int16
	OffOp1  int16

	DstRegister Register
	Op0Register Register
	Op1Source   Op1Src

	Res ResLogic

	PcUpdate PcUpdate
	ApUpdate ApUpdate
	FpUpdate FpUpdate
	Opcode   Opcode
}

// Size returns 2 when the instruction carries an immediate (op1 source is
// Imm), else 1.
func (instruction *Instruction) Size() uint64 {
	if instruction.Op1Source == Imm {
		return 2
	}
	return 1
}

func (instruction *Instruction) String() string {
	return fmt.Sprintf(
		"Instruction{offDst: %d, offOp0: %d, offOp1: %d, dstReg: %d, op0Reg: %d, op1Src: %d, res: %d, pcUpd: %d, apUpd: %d, fpUpd: %d, opcode: %d}",
		instruction.OffDest, instruction.OffOp0, instruction.OffOp1,
		instruction.DstRegister, instruction.Op0Register, instruction.Op1Source,
		instruction.Res, instruction.PcUpdate, instruction.ApUpdate, instruction.FpUpdate, instruction.Opcode,
	)
}

// DecodeInstruction decodes a single field element into a structured
// instruction, per the bitfield layout of spec.md §4.3. It never reads the
// immediate cell itself; the caller fetches pc+1 separately when
// Op1Source == Imm.
func DecodeInstruction(word *memory.Felt) (*Instruction, error) {
	if !word.IsUint64() {
		return nil, fmt.Errorf("invalid instruction: doesn't fit in 63 bits: %s", word.String())
	}
	raw := word.Uint64()
	if raw>>63 != 0 {
		return nil, fmt.Errorf("invalid instruction: high bit set: %d", raw)
	}

	offDst := decodeOffset(raw, 0)
	offOp0 := decodeOffset(raw, 16)
	offOp1 := decodeOffset(raw, 32)

	flags := raw >> flagsShift

	instruction := &Instruction{
		OffDest: offDst,
		OffOp0:  offOp0,
		OffOp1:  offOp1,
	}

	if bit(flags, dstRegBit) == 0 {
		instruction.DstRegister = Ap
	} else {
		instruction.DstRegister = Fp
	}
	if bit(flags, op0RegBit) == 0 {
		instruction.Op0Register = Ap
	} else {
		instruction.Op0Register = Fp
	}

	op1Src, err := decodeOneHot3(flags, op1SrcShift)
	if err != nil {
		return nil, fmt.Errorf("invalid instruction: bad op1_src flags: %w", err)
	}
	switch op1Src {
	case -1:
		instruction.Op1Source = Op0
	case 0:
		instruction.Op1Source = Imm
	case 1:
		instruction.Op1Source = FpPlusOffOp1
	case 2:
		instruction.Op1Source = ApPlusOffOp1
	}
	if instruction.Op1Source == Imm && offOp1 != 1 {
		return nil, fmt.Errorf("invalid instruction: off_op1 must be 1 when op1_src is Imm, got %d", offOp1)
	}

	resBits := (flags >> resLogShift) & 0b11
	if resBits == 0b11 {
		return nil, fmt.Errorf("invalid instruction: bad res_logic flags: %02b", resBits)
	}

	pcUpdate, err := decodeOneHot3(flags, pcUpdShift)
	if err != nil {
		return nil, fmt.Errorf("invalid instruction: bad pc_update flags: %w", err)
	}
	switch pcUpdate {
	case -1:
		instruction.PcUpdate = NextInstr
	case 0:
		instruction.PcUpdate = Jump
	case 1:
		instruction.PcUpdate = JumpRel
	case 2:
		instruction.PcUpdate = Jnz
	}

	apBits := (flags >> apUpdShift) & 0b11
	switch apBits {
	case 0b00:
		instruction.ApUpdate = SameAp
	case 0b01:
		instruction.ApUpdate = AddImm
	case 0b10:
		instruction.ApUpdate = Add1
	default:
		return nil, fmt.Errorf("invalid instruction: bad ap_update flags: %02b", apBits)
	}

	opcode, err := decodeOneHot3(flags, opcodeShift)
	if err != nil {
		return nil, fmt.Errorf("invalid instruction: bad opcode flags: %w", err)
	}
	switch opcode {
	case -1:
		instruction.Opcode = NOp
	case 0:
		instruction.Opcode = Call
	case 1:
		instruction.Opcode = Ret
	case 2:
		instruction.Opcode = AssertEq
	}

	// res_logic: 00 means Op1 in general, except for Jnz, whose branch
	// test reads dst and whose jump offset reads op1 directly -- that case
	// is Unconstrained. Call keeps Op1: its jump target is res.
	switch resBits {
	case 0b01:
		instruction.Res = AddOperands
	case 0b10:
		instruction.Res = MulOperands
	default:
		if instruction.PcUpdate == Jnz {
			instruction.Res = Unconstrained
		} else {
			instruction.Res = Op1Res
		}
	}

	// fp_update has no dedicated flag bits: it is implied by the opcode
	// (spec.md §3/§4.3 list it as a decoded field, but the encoding
	// derives it rather than spending bits on it).
	switch instruction.Opcode {
	case Call:
		instruction.FpUpdate = APPlus2
	case Ret:
		instruction.FpUpdate = Dst
	default:
		instruction.FpUpdate = SameFp
	}

	if instruction.Opcode == Call {
		// Call always implies ap_update = Add2; the two AP_UPDATE bits
		// must be zero in the encoding (spec.md §4.3).
		if instruction.ApUpdate != SameAp {
			return nil, fmt.Errorf("invalid instruction: call opcode requires ap_update bits to be zero")
		}
		instruction.ApUpdate = Add2
	}

	return instruction, nil
}

func decodeOffset(raw uint64, shift uint) int16 {
	field := (raw >> shift) & 0xFFFF
	return int16(int64(field) - offsetBias)
}

func bit(flags uint64, n uint) uint64 {
	return (flags >> n) & 1
}

// decodeOneHot3 decodes a 3-flag one-hot group starting at `start`,
// returning -1 when all flags are zero, or an error when more than one
// flag is set.
func decodeOneHot3(flags uint64, start uint) (int, error) {
	group := (flags >> start) & 0b111
	switch group {
	case 0:
		return -1, nil
	case 0b001:
		return 0, nil
	case 0b010:
		return 1, nil
	case 0b100:
		return 2, nil
	default:
		return 0, fmt.Errorf("non one-hot group: %03b", group)
	}
}
