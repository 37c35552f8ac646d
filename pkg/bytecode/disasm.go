package bytecode

import (
	"fmt"
	"sort"
	"strings"
)

// Disassemble decodes code linearly from offset 0. On a decode error it
// returns the instructions decoded so far together with the error.
func Disassemble(code []byte) ([]Instruction, error) {
	var out []Instruction
	offset := 0
	for offset < len(code) {
		in, next, err := Decode(code, offset)
		if err != nil {
			return out, err
		}
		out = append(out, in)
		offset = next
	}
	return out, nil
}

// FormatOperand renders one operand the way the assembler accepts it.
func FormatOperand(o Operand) string {
	switch o.Kind {
	case KindRegister:
		return fmt.Sprintf("R%d", o.Value)
	case KindAddress:
		return fmt.Sprintf("0x%04X", o.Value)
	default:
		return fmt.Sprintf("%d", o.Value)
	}
}

// FormatInstruction renders an instruction as assembler text, e.g. "LDI R0, 42".
func FormatInstruction(in Instruction) string {
	return formatWith(in, FormatOperand)
}

func formatWith(in Instruction, operand func(Operand) string) string {
	var sb strings.Builder
	sb.WriteString(in.Op.String())
	for i := 0; i < in.Op.Arity(); i++ {
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(operand(in.Operands[i]))
	}
	return sb.String()
}

// Listing returns a human-readable listing of code, one instruction per line.
// Undecodable bytes end the listing with an error line.
func Listing(code []byte) string {
	return ListingWithLabels(code, nil)
}

// ListingWithLabels is Listing with label annotations. Addresses that match a
// label are printed by name and each labelled offset gets a ".name" line.
func ListingWithLabels(code []byte, labels map[string]int) string {
	byOffset := make(map[int][]string, len(labels))
	for name, off := range labels {
		byOffset[off] = append(byOffset[off], name)
	}
	for _, names := range byOffset {
		sort.Strings(names)
	}

	operand := func(o Operand) string {
		if o.Kind == KindAddress {
			if names := byOffset[int(o.Value)]; len(names) > 0 {
				return names[0]
			}
		}
		return FormatOperand(o)
	}

	var sb strings.Builder
	offset := 0
	for offset < len(code) {
		for _, name := range byOffset[offset] {
			sb.WriteString(fmt.Sprintf(".%s\n", name))
		}
		in, next, err := Decode(code, offset)
		if err != nil {
			sb.WriteString(fmt.Sprintf("%04X  ; %v\n", offset, err))
			break
		}
		sb.WriteString(fmt.Sprintf("%04X  %s\n", offset, formatWith(in, operand)))
		offset = next
	}
	return sb.String()
}
