package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Operand is one decoded operand field. Value holds the register index,
// the immediate, or the address, depending on Kind.
type Operand struct {
	Kind  OperandKind
	Value int64
}

// Reg returns a register operand.
func Reg(n int) Operand { return Operand{Kind: KindRegister, Value: int64(n)} }

// Imm returns a 64-bit immediate operand.
func Imm(v int64) Operand { return Operand{Kind: KindImm64, Value: v} }

// Imm8 returns an 8-bit immediate operand.
func Imm8(v uint8) Operand { return Operand{Kind: KindImm8, Value: int64(v)} }

// Addr returns a code address operand.
func Addr(a uint32) Operand { return Operand{Kind: KindAddress, Value: int64(a)} }

// Mem returns a memory cell operand.
func Mem(a uint32) Operand { return Operand{Kind: KindMemory, Value: int64(a)} }

// Instruction is an opcode with its operands.
type Instruction struct {
	Op       Opcode
	Operands [MaxOperands]Operand
	Size     int
}

// NewInstruction builds an instruction and fills in its encoded size.
func NewInstruction(op Opcode, operands ...Operand) Instruction {
	in := Instruction{Op: op, Size: op.InstructionLen()}
	copy(in.Operands[:], operands)
	return in
}

// Arg returns the value of operand slot i.
func (in Instruction) Arg(i int) int64 {
	return in.Operands[i].Value
}

var (
	// ErrInvalidOpcode is returned for a byte outside the opcode table.
	ErrInvalidOpcode = errors.New("invalid opcode")

	// ErrTruncated is returned when an instruction runs past the end of the code.
	ErrTruncated = errors.New("truncated instruction")

	// ErrInvalidRegister is returned for a register index >= NumRegisters.
	ErrInvalidRegister = errors.New("invalid register")

	// ErrOperandRange is returned by Encode for an operand that does not fit its slot.
	ErrOperandRange = errors.New("operand out of range")
)

// DecodeError describes a failure to decode the instruction at Offset.
type DecodeError struct {
	Offset int
	Op     Opcode
	Err    error
}

func (e *DecodeError) Error() string {
	if errors.Is(e.Err, ErrInvalidOpcode) {
		return fmt.Sprintf("offset 0x%04X: %v 0x%02X", e.Offset, e.Err, byte(e.Op))
	}
	// NOP is one byte, so a truncated NOP means the offset is past the end.
	if e.Op == OpNop {
		return fmt.Sprintf("offset 0x%04X: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("offset 0x%04X: %s: %v", e.Offset, e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode reads exactly one instruction starting at offset and returns it with
// the offset of the following instruction. It never reads past len(code).
func Decode(code []byte, offset int) (Instruction, int, error) {
	if offset < 0 || offset >= len(code) {
		return Instruction{}, offset, &DecodeError{Offset: offset, Err: ErrTruncated}
	}

	op := Opcode(code[offset])
	oi := opcodeTable[op]
	if !oi.valid {
		return Instruction{}, offset, &DecodeError{Offset: offset, Op: op, Err: ErrInvalidOpcode}
	}
	if offset+oi.Size > len(code) {
		return Instruction{}, offset, &DecodeError{Offset: offset, Op: op, Err: ErrTruncated}
	}

	in := Instruction{Op: op, Size: oi.Size}
	pos := offset + 1
	for i := 0; i < oi.Arity; i++ {
		kind := oi.Operands[i]
		var v int64
		switch kind {
		case KindRegister:
			v = int64(code[pos])
			if v >= NumRegisters {
				return Instruction{}, offset, &DecodeError{Offset: offset, Op: op, Err: ErrInvalidRegister}
			}
		case KindImm8:
			v = int64(code[pos])
		case KindImm64:
			v = int64(binary.LittleEndian.Uint64(code[pos:]))
		case KindAddress, KindMemory:
			v = int64(binary.LittleEndian.Uint32(code[pos:]))
		}
		in.Operands[i] = Operand{Kind: kind, Value: v}
		pos += kind.Width()
	}
	return in, pos, nil
}

// Encode returns the binary form of an instruction.
func Encode(in Instruction) ([]byte, error) {
	return AppendInstruction(make([]byte, 0, in.Op.InstructionLen()), in)
}

// AppendInstruction appends the binary form of an instruction to dst.
// Operand kinds are taken from the opcode table; the Kind stored in the
// instruction is not consulted.
func AppendInstruction(dst []byte, in Instruction) ([]byte, error) {
	oi := opcodeTable[in.Op]
	if !oi.valid {
		return dst, fmt.Errorf("encode 0x%02X: %w", byte(in.Op), ErrInvalidOpcode)
	}

	dst = append(dst, byte(in.Op))
	for i := 0; i < oi.Arity; i++ {
		v := in.Operands[i].Value
		switch kind := oi.Operands[i]; kind {
		case KindRegister:
			if v < 0 || v >= NumRegisters {
				return dst, fmt.Errorf("encode %s: register %d: %w", in.Op, v, ErrInvalidRegister)
			}
			dst = append(dst, byte(v))
		case KindImm8:
			if v < 0 || v > math.MaxUint8 {
				return dst, fmt.Errorf("encode %s: %s %d: %w", in.Op, kind, v, ErrOperandRange)
			}
			dst = append(dst, byte(v))
		case KindImm64:
			dst = binary.LittleEndian.AppendUint64(dst, uint64(v))
		case KindAddress, KindMemory:
			if v < 0 || v > math.MaxUint32 {
				return dst, fmt.Errorf("encode %s: %s %d: %w", in.Op, kind, v, ErrOperandRange)
			}
			dst = binary.LittleEndian.AppendUint32(dst, uint32(v))
		}
	}
	return dst, nil
}

// PutAddress writes a 4-byte little-endian address at code[at:].
func PutAddress(code []byte, at int, addr uint32) {
	binary.LittleEndian.PutUint32(code[at:], addr)
}
