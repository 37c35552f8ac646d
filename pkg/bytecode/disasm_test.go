package bytecode

import (
	"errors"
	"strings"
	"testing"
)

func mustAppend(t *testing.T, code []byte, ins ...Instruction) []byte {
	t.Helper()
	for _, in := range ins {
		var err error
		code, err = AppendInstruction(code, in)
		if err != nil {
			t.Fatalf("AppendInstruction: %v", err)
		}
	}
	return code
}

func TestDisassembleEmpty(t *testing.T) {
	ins, err := Disassemble(nil)
	if err != nil || len(ins) != 0 {
		t.Errorf("Disassemble(nil) = %v, %v; want empty, nil", ins, err)
	}
}

func TestDisassemblePartialOnError(t *testing.T) {
	code := mustAppend(t, nil,
		NewInstruction(OpLdi, Reg(0), Imm(1)),
		NewInstruction(OpPushR, Reg(0)),
	)
	code = append(code, 0xFE)

	ins, err := Disassemble(code)
	if !errors.Is(err, ErrInvalidOpcode) {
		t.Fatalf("error = %v, want ErrInvalidOpcode", err)
	}
	if len(ins) != 2 {
		t.Errorf("decoded %d instructions before error, want 2", len(ins))
	}
}

func TestFormatInstruction(t *testing.T) {
	tests := []struct {
		in   Instruction
		want string
	}{
		{NewInstruction(OpHlt), "HLT"},
		{NewInstruction(OpLdi, Reg(0), Imm(42)), "LDI R0, 42"},
		{NewInstruction(OpCpy, Reg(1), Reg(2)), "CPY R1, R2"},
		{NewInstruction(OpJmp, Addr(16)), "JMP 0x0010"},
		{NewInstruction(OpStore, Mem(3), Imm(-5)), "STORE 3, -5"},
		{NewInstruction(OpInt, Imm8(0)), "INT 0"},
	}

	for _, tt := range tests {
		if got := FormatInstruction(tt.in); got != tt.want {
			t.Errorf("FormatInstruction = %q, want %q", got, tt.want)
		}
	}
}

func TestListing(t *testing.T) {
	code := mustAppend(t, nil,
		NewInstruction(OpLdi, Reg(0), Imm(42)),
		NewInstruction(OpHlt),
	)

	want := "0000  LDI R0, 42\n000A  HLT\n"
	if got := Listing(code); got != want {
		t.Errorf("Listing =\n%s\nwant\n%s", got, want)
	}
}

func TestListingWithLabels(t *testing.T) {
	code := mustAppend(t, nil,
		NewInstruction(OpNop),
		NewInstruction(OpJmp, Addr(0)),
		NewInstruction(OpHlt),
	)

	out := ListingWithLabels(code, map[string]int{"top": 0})
	if !strings.HasPrefix(out, ".top\n0000  NOP\n") {
		t.Errorf("missing label line:\n%s", out)
	}
	if !strings.Contains(out, "0001  JMP top") {
		t.Errorf("jump target not named:\n%s", out)
	}
}

func TestListingStopsAtBadByte(t *testing.T) {
	out := Listing([]byte{0x00, 0x03, 0x01})
	if !strings.Contains(out, "0001  ; ") || !strings.Contains(out, "truncated") {
		t.Errorf("Listing should report truncation at 0001:\n%s", out)
	}
}
