package builtins

import (
	"fmt"

	"github.com/cairo-vm/cairo-vm-go/pkg/vm/memory"
)

const SignatureName = "ecdsa"

// signatureCellsPerInstance is the public-key cell and the message-hash
// cell (spec.md §4.4). The signature itself is never stored in memory: it
// is registered out-of-band against the public-key address before the run,
// and checked by a validation rule when the message-hash cell is written.
const signatureCellsPerInstance = 2
const signatureInputCells = 2

// Signature is the 2-cell ECDSA builtin. Unlike the others it never
// deduces a cell; it only validates, binding the registered signature to
// whatever message hash the program later writes at [pubkey_addr + 1].
type Signature struct {
	base
	ratio    uint64
	included bool

	signatures map[uint64]StarkSignature
}

// StarkSignature is a Stark-curve ECDSA signature registered against a
// public-key cell, independent of the program's own memory writes (spec.md
// §4.4: "a validation rule verifies the Stark-curve ECDSA signature
// registered for the public-key address").
type StarkSignature struct {
	R memory.Felt
	S memory.Felt
}

func NewSignature(ratio uint64, included bool) *Signature {
	return &Signature{ratio: ratio, included: included, signatures: make(map[uint64]StarkSignature)}
}

func (s *Signature) String() string { return SignatureName }

func (s *Signature) CellsPerInstance() uint64 { return signatureCellsPerInstance }

func (s *Signature) NInputCells() uint64 { return signatureInputCells }

func (s *Signature) Ratio() (uint64, bool) { return s.ratio, s.ratio != 0 }

func (s *Signature) Included() bool { return s.included }

// AddSignature registers a signature against a public-key cell offset,
// analogous to cairo-lang's `ecdsa_additional_data`/`add_signature` hint
// surface: signatures arrive out-of-band, not through a memory write.
func (s *Signature) AddSignature(pubKeyOffset uint64, sig StarkSignature) {
	s.signatures[pubKeyOffset] = sig
}

func (s *Signature) DeduceMemoryCell(address memory.MemoryAddress, mem *memory.Memory) (*memory.MemoryValue, error) {
	return nil, nil
}

func (s *Signature) AddValidationRule(mem *memory.Memory) error {
	return mem.AddValidationRule(s.Base(), memory.ValidationRuleFunc(
		func(mem *memory.Memory, address memory.MemoryAddress, value *memory.MemoryValue) error {
			indexInInstance := address.Offset % signatureCellsPerInstance
			if indexInInstance != 1 {
				return nil
			}
			pubKeyOffset := address.Offset - 1
			sig, ok := s.signatures[pubKeyOffset]
			if !ok {
				// no signature registered for this instance: nothing to
				// check against, the program is free to use the cell as
				// a plain value.
				return nil
			}

			pubKeyAddr := memory.MemoryAddress{SegmentIndex: address.SegmentIndex, Offset: pubKeyOffset}
			pubKeyValue, err := mem.PeekFromAddress(&pubKeyAddr)
			if err != nil || !pubKeyValue.Known() {
				return fmt.Errorf("ecdsa: public key cell at %s is not set", pubKeyAddr.String())
			}
			pubKey, err := pubKeyValue.ToFieldElement()
			if err != nil {
				return fmt.Errorf("ecdsa: public key: %w", err)
			}
			msgHash, err := value.ToFieldElement()
			if err != nil {
				return fmt.Errorf("ecdsa: message hash: %w", err)
			}

			if !verifyStarkSignature(pubKey, msgHash, &sig) {
				return fmt.Errorf("ecdsa: signature verification failed for public key %s", pubKey.String())
			}
			return nil
		},
	))
}

func (s *Signature) GetUsedCells(mem *memory.Memory) (uint64, error) {
	return segmentLen(mem, s.Base())
}

func (s *Signature) GetUsedInstances(mem *memory.Memory) (uint64, error) {
	cells, err := s.GetUsedCells(mem)
	if err != nil {
		return 0, err
	}
	return (cells + signatureCellsPerInstance - 1) / signatureCellsPerInstance, nil
}

func (s *Signature) GetAllocatedMemoryUnits(currentStep uint64) (uint64, error) {
	return allocatedUnits(s.ratio, currentStep, s.CellsPerInstance())
}

func (s *Signature) FinalStack(mem *memory.Memory, stackPointerAddr memory.MemoryAddress) (memory.MemoryAddress, error) {
	used, err := s.GetUsedInstances(mem)
	if err != nil {
		return memory.UnknownAddress, err
	}
	return finalStack(&s.base, SignatureName, s.CellsPerInstance(), mem, used, stackPointerAddr)
}
