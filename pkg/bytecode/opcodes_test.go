package bytecode

import (
	"strings"
	"testing"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if info.Name == "" || strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("Opcode 0x%02X has no metadata", byte(op))
		}
		if info.Size != op.InstructionLen() {
			t.Errorf("%s: Size %d != InstructionLen %d", op, info.Size, op.InstructionLen())
		}
	}
}

func TestOpcodeCount(t *testing.T) {
	if got := OpcodeCount(); got != 30 {
		t.Errorf("OpcodeCount() = %d, want 30", got)
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpNop, "NOP"},
		{OpHlt, "HLT"},
		{OpPush, "PUSH"},
		{OpLdi, "LDI"},
		{OpJne, "JNE"},
		{OpShr, "SHR"},
		{OpStoreR, "STORER"},
		{OpRet, "RET"},
	}

	for _, tt := range tests {
		got := tt.op.String()
		if got != tt.want {
			t.Errorf("Opcode(0x%02X).String() = %q, want %q", byte(tt.op), got, tt.want)
		}
	}
}

func TestUnknownOpcodeString(t *testing.T) {
	op := Opcode(0xEE)
	if got := op.String(); got != "UNKNOWN(0xEE)" {
		t.Errorf("Unknown opcode String() = %q, want UNKNOWN(0xEE)", got)
	}
	if op.Valid() {
		t.Error("0xEE should not be valid")
	}
	if op.InstructionLen() != 0 {
		t.Errorf("InstructionLen of invalid opcode = %d, want 0", op.InstructionLen())
	}
}

func TestInstructionLen(t *testing.T) {
	tests := []struct {
		op   Opcode
		want int
	}{
		{OpNop, 1},
		{OpHlt, 1},
		{OpInt, 2},
		{OpPush, 9},
		{OpPushR, 2},
		{OpPop, 2},
		{OpLdi, 10},
		{OpCpy, 3},
		{OpJmp, 5},
		{OpCmp, 3},
		{OpAdd, 3},
		{OpShl, 3},
		{OpStore, 13},
		{OpLoad, 5},
		{OpStoreR, 6},
		{OpLoadR, 6},
		{OpCall, 5},
		{OpRet, 1},
	}

	for _, tt := range tests {
		if got := tt.op.InstructionLen(); got != tt.want {
			t.Errorf("%s.InstructionLen() = %d, want %d", tt.op, got, tt.want)
		}
	}
}

func TestOperandOffset(t *testing.T) {
	tests := []struct {
		op   Opcode
		slot int
		want int
	}{
		{OpJmp, 0, 1},
		{OpLdi, 0, 1},
		{OpLdi, 1, 2},
		{OpStore, 1, 5},
		{OpStoreR, 1, 5},
		{OpLoadR, 1, 2},
	}

	for _, tt := range tests {
		if got := OperandOffset(tt.op, tt.slot); got != tt.want {
			t.Errorf("OperandOffset(%s, %d) = %d, want %d", tt.op, tt.slot, got, tt.want)
		}
	}
}

func TestLookupMnemonic(t *testing.T) {
	tests := []struct {
		name string
		want Opcode
	}{
		{"LDI", OpLdi},
		{"@", OpLdi},
		{"$", OpPush},
		{"$$", OpPushR},
		{"//", OpJmp},
		{"/=", OpJe},
		{"/", OpDiv},
		{"STR", OpStore},
		{"LDR", OpLoadR},
		{"_", OpNop},
	}

	for _, tt := range tests {
		got, ok := LookupMnemonic(tt.name)
		if !ok || got != tt.want {
			t.Errorf("LookupMnemonic(%q) = %s, %v; want %s", tt.name, got, ok, tt.want)
		}
	}

	if _, ok := LookupMnemonic("FROB"); ok {
		t.Error("LookupMnemonic(FROB) should fail")
	}
}

func TestIsJump(t *testing.T) {
	for _, op := range []Opcode{OpJmp, OpJe, OpJne, OpJg, OpJl, OpCall} {
		if !op.IsJump() {
			t.Errorf("%s.IsJump() = false, want true", op)
		}
	}
	for _, op := range []Opcode{OpCmp, OpRet, OpHlt, OpLoad} {
		if op.IsJump() {
			t.Errorf("%s.IsJump() = true, want false", op)
		}
	}
}
