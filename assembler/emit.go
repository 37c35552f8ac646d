package assembler

import (
	"github.com/chazu/artvm/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Pass 2: emit bytecode, backpatch forward references
// ---------------------------------------------------------------------------

// Relocation is a pending patch of a 4-byte address placeholder.
type Relocation struct {
	Offset int      // byte offset of the placeholder in the code
	Label  string   // label whose address goes there
	Pos    Position // source position of the reference
}

type emitter struct {
	unit   *Unit
	code   []byte
	lines  map[int]int
	relocs []Relocation
}

func emit(unit *Unit) (*Program, error) {
	e := &emitter{
		unit:  unit,
		code:  make([]byte, 0, unit.Size+1),
		lines: make(map[int]int, len(unit.Statements)),
	}

	for _, stmt := range unit.Statements {
		if err := e.emitStatement(stmt); err != nil {
			return nil, err
		}
	}

	// A program always ends in HLT, and a label bound to the end of the code
	// must address an instruction.
	if n := len(unit.Statements); n == 0 || unit.Statements[n-1].Op != bytecode.OpHlt || unit.labelAtEnd() {
		e.code = append(e.code, byte(bytecode.OpHlt))
	}

	if err := e.resolve(); err != nil {
		return nil, err
	}

	labels := make(map[string]int, len(unit.Labels))
	for name, def := range unit.Labels {
		labels[name] = def.Offset
	}

	log.Debugf("emitted %d bytes, %d labels, %d relocations", len(e.code), len(labels), len(e.relocs))
	return &Program{Code: e.code, Labels: labels, Lines: e.lines}, nil
}

func (u *Unit) labelAtEnd() bool {
	for _, def := range u.Labels {
		if def.Offset == u.Size {
			return true
		}
	}
	return false
}

func (e *emitter) emitStatement(stmt Statement) error {
	in := bytecode.Instruction{Op: stmt.Op}
	for i := 0; i < stmt.Op.Arity(); i++ {
		operand := stmt.Operands[i]
		in.Operands[i] = bytecode.Operand{Kind: operand.Kind, Value: operand.Value}
		if operand.Label == "" {
			continue
		}
		// Backward references are known; anything else waits for resolve.
		if def, ok := e.unit.Labels[operand.Label]; ok && def.Offset <= stmt.Offset {
			in.Operands[i].Value = int64(def.Offset)
			continue
		}
		e.relocs = append(e.relocs, Relocation{
			Offset: stmt.Offset + bytecode.OperandOffset(stmt.Op, i),
			Label:  operand.Label,
			Pos:    operand.Pos,
		})
	}

	code, err := bytecode.AppendInstruction(e.code, in)
	if err != nil {
		return errorf(MalformedOperand, stmt.Pos, "%v", err)
	}
	e.code = code
	e.lines[stmt.Offset] = stmt.Pos.Line
	return nil
}

// resolve patches every relocation. An undefined label aborts assembly.
func (e *emitter) resolve() error {
	for _, r := range e.relocs {
		def, ok := e.unit.Labels[r.Label]
		if !ok {
			return errorf(UndefinedLabel, r.Pos, "%q", r.Label)
		}
		bytecode.PutAddress(e.code, r.Offset, uint32(def.Offset))
	}
	return nil
}
