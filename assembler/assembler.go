// Package assembler translates assembly source into bytecode.
//
// Assembly is two-pass. Pass 1 tokenizes the source, computes every
// instruction's offset from the fixed opcode widths and records label
// definitions. Pass 2 emits bytes: references to labels defined at or before
// the referencing instruction are written directly, all others get a zero
// placeholder and a Relocation that is patched once the end of input is
// reached. Any error aborts assembly and no bytecode is returned.
package assembler

import (
	"sort"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("artvm.assembler")

// Program is assembled bytecode plus its debug information.
type Program struct {
	Code   []byte
	Labels map[string]int // label name -> code offset
	Lines  map[int]int    // instruction offset -> source line
}

// Assemble assembles source into a Program. The returned error is an *Error.
func Assemble(source string) (*Program, error) {
	unit, err := Parse(source)
	if err != nil {
		return nil, err
	}
	return emit(unit)
}

// LineFor returns the source line of the instruction at offset, or 0.
func (p *Program) LineFor(offset int) int {
	return p.Lines[offset]
}

// LabelsAt returns the sorted names of labels bound to offset.
func (p *Program) LabelsAt(offset int) []string {
	var names []string
	for name, off := range p.Labels {
		if off == offset {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
