package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// The set is closed: every byte outside the table decodes as an invalid opcode.
type Opcode byte

const (
	// ========================================================================
	// Control (0x00-0x02)
	// ========================================================================

	OpNop Opcode = 0x00 // No operation
	OpHlt Opcode = 0x01 // Halt execution
	OpInt Opcode = 0x02 // Host interrupt: OpInt <n:u8>

	// ========================================================================
	// Stack and registers (0x03-0x07)
	// ========================================================================

	OpPush  Opcode = 0x03 // Push immediate: OpPush <imm:i64>
	OpPushR Opcode = 0x04 // Push register: OpPushR <reg>
	OpPop   Opcode = 0x05 // Pop into register: OpPop <reg>
	OpLdi   Opcode = 0x06 // Load immediate: OpLdi <reg> <imm:i64>
	OpCpy   Opcode = 0x07 // Copy register a into b: OpCpy <reg> <reg>

	// ========================================================================
	// Control flow (0x08-0x0D)
	// ========================================================================

	OpJmp Opcode = 0x08 // Unconditional jump: OpJmp <addr:u32>
	OpJe  Opcode = 0x09 // Jump if equal flag
	OpJne Opcode = 0x0A // Jump if not equal flag
	OpJg  Opcode = 0x0B // Jump if greater flag
	OpJl  Opcode = 0x0C // Jump if less flag
	OpCmp Opcode = 0x0D // Compare two registers, set flags

	// ========================================================================
	// Arithmetic and logic, result pushed on the stack (0x0E-0x16)
	// ========================================================================

	OpAdd Opcode = 0x0E
	OpSub Opcode = 0x0F
	OpMul Opcode = 0x10
	OpDiv Opcode = 0x11
	OpAnd Opcode = 0x12
	OpOr  Opcode = 0x13
	OpXor Opcode = 0x14
	OpShr Opcode = 0x15 // OpShr <reg> <n:u8>
	OpShl Opcode = 0x16 // OpShl <reg> <n:u8>

	// ========================================================================
	// Memory (0x17-0x1A)
	// ========================================================================

	OpStore  Opcode = 0x17 // memory[mem] = imm: OpStore <mem:u32> <imm:i64>
	OpLoad   Opcode = 0x18 // push memory[mem]: OpLoad <mem:u32>
	OpStoreR Opcode = 0x19 // memory[mem] = reg: OpStoreR <mem:u32> <reg>
	OpLoadR  Opcode = 0x1A // reg = memory[mem]: OpLoadR <reg> <mem:u32>

	// ========================================================================
	// Extensions (0x1B-0x1D)
	// ========================================================================

	OpMod  Opcode = 0x1B
	OpCall Opcode = 0x1C // Push return address and jump: OpCall <addr:u32>
	OpRet  Opcode = 0x1D // Pop return address and jump

	opcodeLimit = 0x1E
)

// OperandKind is the type of one operand slot.
type OperandKind uint8

const (
	KindNone     OperandKind = iota
	KindRegister             // 1 byte register index
	KindImm8                 // 1 byte unsigned immediate
	KindImm64                // 8 byte signed immediate, little-endian
	KindAddress              // 4 byte code address, little-endian
	KindMemory               // 4 byte memory cell index, little-endian
)

var operandKindNames = [...]string{
	KindNone:     "none",
	KindRegister: "reg",
	KindImm8:     "imm8",
	KindImm64:    "imm64",
	KindAddress:  "addr",
	KindMemory:   "mem",
}

func (k OperandKind) String() string {
	if int(k) < len(operandKindNames) {
		return operandKindNames[k]
	}
	return fmt.Sprintf("OperandKind(%d)", k)
}

// Width returns the encoded size of an operand of this kind in bytes.
func (k OperandKind) Width() int {
	switch k {
	case KindRegister, KindImm8:
		return 1
	case KindImm64:
		return 8
	case KindAddress, KindMemory:
		return 4
	}
	return 0
}

const (
	// NumRegisters is the size of the register file.
	NumRegisters = 16

	// MaxOperands is the largest arity of any opcode.
	MaxOperands = 2
)

// OpcodeInfo provides metadata about each opcode for decoding, assembly and listings.
type OpcodeInfo struct {
	Name     string                   // Canonical mnemonic
	Alias    string                   // Sigil alias accepted by the assembler ("" if none)
	Operands [MaxOperands]OperandKind // Operand slots in encoding order
	Arity    int                      // Number of operands
	Size     int                      // Encoded size in bytes, opcode included
	valid    bool
}

func info(name, alias string, kinds ...OperandKind) OpcodeInfo {
	oi := OpcodeInfo{Name: name, Alias: alias, Arity: len(kinds), Size: 1, valid: true}
	for i, k := range kinds {
		oi.Operands[i] = k
		oi.Size += k.Width()
	}
	return oi
}

// opcodeTable is indexed by opcode byte.
var opcodeTable = [256]OpcodeInfo{
	OpNop: info("NOP", "_"),
	OpHlt: info("HLT", ""),
	OpInt: info("INT", "", KindImm8),

	OpPush:  info("PUSH", "$", KindImm64),
	OpPushR: info("PUSHR", "$$", KindRegister),
	OpPop:   info("POP", "%", KindRegister),
	OpLdi:   info("LDI", "@", KindRegister, KindImm64),
	OpCpy:   info("CPY", ":", KindRegister, KindRegister),

	OpJmp: info("JMP", "//", KindAddress),
	OpJe:  info("JE", "/=", KindAddress),
	OpJne: info("JNE", "/!", KindAddress),
	OpJg:  info("JG", "/>", KindAddress),
	OpJl:  info("JL", "/<", KindAddress),
	OpCmp: info("CMP", "=", KindRegister, KindRegister),

	OpAdd: info("ADD", "+", KindRegister, KindRegister),
	OpSub: info("SUB", "-", KindRegister, KindRegister),
	OpMul: info("MUL", "*", KindRegister, KindRegister),
	OpDiv: info("DIV", "/", KindRegister, KindRegister),
	OpAnd: info("AND", "&", KindRegister, KindRegister),
	OpOr:  info("OR", "|", KindRegister, KindRegister),
	OpXor: info("XOR", "^", KindRegister, KindRegister),
	OpShr: info("SHR", ">", KindRegister, KindImm8),
	OpShl: info("SHL", "<", KindRegister, KindImm8),

	OpStore:  info("STORE", "STR", KindMemory, KindImm64),
	OpLoad:   info("LOAD", "LD", KindMemory),
	OpStoreR: info("STORER", "STRR", KindMemory, KindRegister),
	OpLoadR:  info("LOADR", "LDR", KindRegister, KindMemory),

	OpMod:  info("MOD", "", KindRegister, KindRegister),
	OpCall: info("CALL", "", KindAddress),
	OpRet:  info("RET", ""),
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if oi := opcodeTable[op]; oi.valid {
		return oi
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	return opcodeTable[op].valid
}

// String returns the canonical mnemonic of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Arity returns the number of operands the opcode takes.
func (op Opcode) Arity() int {
	return opcodeTable[op].Arity
}

// InstructionLen returns the total encoded length of an instruction (1 + operand bytes).
// Returns 0 for an invalid opcode.
func (op Opcode) InstructionLen() int {
	return opcodeTable[op].Size
}

// IsJump returns true if the opcode transfers control to an address operand.
func (op Opcode) IsJump() bool {
	return op >= OpJmp && op <= OpJl || op == OpCall
}

// OperandOffset returns the byte offset of operand slot within an encoded instruction.
func OperandOffset(op Opcode, slot int) int {
	oi := opcodeTable[op]
	off := 1
	for i := 0; i < slot && i < oi.Arity; i++ {
		off += oi.Operands[i].Width()
	}
	return off
}

// AllOpcodes returns a slice of all defined opcodes in numeric order.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, opcodeLimit)
	for i := range opcodeTable {
		if opcodeTable[i].valid {
			opcodes = append(opcodes, Opcode(i))
		}
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(AllOpcodes())
}

// mnemonics maps upper-case names and aliases to opcodes.
var mnemonics = func() map[string]Opcode {
	m := make(map[string]Opcode, 2*opcodeLimit)
	for _, op := range AllOpcodes() {
		oi := opcodeTable[op]
		m[oi.Name] = op
		if oi.Alias != "" {
			m[oi.Alias] = op
		}
	}
	return m
}()

// LookupMnemonic resolves an upper-cased mnemonic or alias.
func LookupMnemonic(name string) (Opcode, bool) {
	op, ok := mnemonics[name]
	return op, ok
}
