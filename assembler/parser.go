package assembler

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/chazu/artvm/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Pass 1: scan source into statements and a label table
// ---------------------------------------------------------------------------

// Operand is a parsed operand. Address operands that name a label carry
// Label and leave Value zero until emission.
type Operand struct {
	Kind  bytecode.OperandKind
	Value int64
	Label string
	Pos   Position
}

// Statement is one parsed instruction with its final code offset.
type Statement struct {
	Op       bytecode.Opcode
	Operands [bytecode.MaxOperands]Operand
	Offset   int
	Pos      Position
}

// LabelDef is a label definition.
type LabelDef struct {
	Name   string
	Offset int
	Pos    Position
}

// LabelRef is a use of a label as an address operand.
type LabelRef struct {
	Name string
	Pos  Position
}

// Unit is the result of pass 1.
type Unit struct {
	Statements []Statement
	Labels     map[string]LabelDef
	Defs       []LabelDef // in source order
	Refs       []LabelRef // in source order
	Size       int        // code size before halt enforcement
}

// Parse runs pass 1 over source. On error the returned Unit holds everything
// parsed before the failing token; it is never nil.
func Parse(source string) (*Unit, error) {
	p := newParser(source)
	err := p.parse()
	return p.unit, err
}

type parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	offset    int
	unit      *Unit
}

func newParser(source string) *parser {
	p := &parser{
		lexer: NewLexer(source),
		unit:  &Unit{Labels: make(map[string]LabelDef)},
	}
	p.nextToken()
	p.nextToken()
	return p
}

func (p *parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

func (p *parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

func (p *parser) parse() error {
	for !p.curTokenIs(TokenEOF) {
		switch p.curToken.Type {
		case TokenNewline:
			p.nextToken()
		case TokenLabel:
			if err := p.parseLabel(); err != nil {
				return err
			}
		case TokenIdentifier, TokenSigil:
			if err := p.parseStatement(); err != nil {
				return err
			}
		case TokenError:
			return errorf(Syntax, p.curToken.Pos, "%s", p.curToken.Literal)
		default:
			return errorf(Syntax, p.curToken.Pos, "expected instruction or label, got %s", p.curToken)
		}
	}
	p.unit.Size = p.offset
	return nil
}

func (p *parser) parseLabel() error {
	tok := p.curToken
	if _, ok := parseRegister(tok.Literal); ok {
		return errorf(Syntax, tok.Pos, "label name %q is a register", tok.Literal)
	}
	if prev, ok := p.unit.Labels[tok.Literal]; ok {
		return errorf(DuplicateLabel, tok.Pos, "%q already defined at %s", tok.Literal, prev.Pos)
	}
	def := LabelDef{Name: tok.Literal, Offset: p.offset, Pos: tok.Pos}
	p.unit.Labels[tok.Literal] = def
	p.unit.Defs = append(p.unit.Defs, def)
	p.nextToken()
	return nil
}

func (p *parser) parseStatement() error {
	tok := p.curToken
	op, ok := bytecode.LookupMnemonic(strings.ToUpper(tok.Literal))
	if !ok {
		return errorf(UnknownOpcode, tok.Pos, "%q", tok.Literal)
	}
	p.nextToken()

	info := bytecode.GetOpcodeInfo(op)
	stmt := Statement{Op: op, Offset: p.offset, Pos: tok.Pos}
	for i := 0; i < info.Arity; i++ {
		if i > 0 && p.curTokenIs(TokenComma) {
			p.nextToken()
		}
		if p.curTokenIs(TokenNewline) || p.curTokenIs(TokenEOF) {
			return errorf(MalformedOperand, p.curToken.Pos, "%s expects %d operands, got %d", op, info.Arity, i)
		}
		operand, err := p.parseOperand(info.Operands[i])
		if err != nil {
			return err
		}
		stmt.Operands[i] = operand
	}

	switch p.curToken.Type {
	case TokenNewline, TokenEOF:
	case TokenError:
		return errorf(Syntax, p.curToken.Pos, "%s", p.curToken.Literal)
	default:
		return errorf(MalformedOperand, p.curToken.Pos, "unexpected %s after %s", p.curToken, op)
	}

	p.unit.Statements = append(p.unit.Statements, stmt)
	p.offset += info.Size
	return nil
}

func (p *parser) parseOperand(kind bytecode.OperandKind) (Operand, error) {
	tok := p.curToken
	p.nextToken()
	operand := Operand{Kind: kind, Pos: tok.Pos}

	if tok.Type == TokenError {
		return operand, errorf(Syntax, tok.Pos, "%s", tok.Literal)
	}

	switch kind {
	case bytecode.KindRegister:
		n, ok := parseRegister(tok.Literal)
		if tok.Type != TokenIdentifier || !ok {
			return operand, errorf(MalformedOperand, tok.Pos, "expected register, got %s", tok)
		}
		operand.Value = int64(n)

	case bytecode.KindAddress:
		if tok.Type == TokenIdentifier {
			if _, isReg := parseRegister(tok.Literal); isReg {
				return operand, errorf(MalformedOperand, tok.Pos, "expected address, got register %s", tok.Literal)
			}
			operand.Label = tok.Literal
			p.unit.Refs = append(p.unit.Refs, LabelRef{Name: tok.Literal, Pos: tok.Pos})
			return operand, nil
		}
		fallthrough

	case bytecode.KindImm8, bytecode.KindImm64, bytecode.KindMemory:
		v, err := literalValue(tok)
		if err != nil {
			return operand, errorf(MalformedOperand, tok.Pos, "%v", err)
		}
		if !fits(kind, v) {
			return operand, errorf(MalformedOperand, tok.Pos, "%s out of range for %s", tok.Literal, kind)
		}
		operand.Value = v
	}
	return operand, nil
}

// parseRegister accepts r0..r15 in either case.
func parseRegister(s string) (int, bool) {
	if len(s) < 2 || (s[0] != 'r' && s[0] != 'R') {
		return 0, false
	}
	for i := 1; i < len(s); i++ {
		if !isDigit(rune(s[i])) {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n >= bytecode.NumRegisters {
		return 0, false
	}
	return n, true
}

// IsRegister reports whether s names a register, r0..r15 in either case.
func IsRegister(s string) bool {
	_, ok := parseRegister(s)
	return ok
}

var errNotLiteral = errors.New("expected number or character literal")

func literalValue(tok Token) (int64, error) {
	switch tok.Type {
	case TokenCharacter:
		r, _ := utf8.DecodeRuneInString(tok.Literal)
		return int64(r), nil
	case TokenTyped:
		return typedValue(tok.Literal)
	case TokenInteger:
		v, err := strconv.ParseInt(tok.Literal, 0, 64)
		if err == nil {
			return v, nil
		}
		// Unsigned bit patterns such as 0xFFFFFFFFFFFFFFFF are accepted as imm64.
		if !strings.HasPrefix(tok.Literal, "-") {
			if u, uerr := strconv.ParseUint(tok.Literal, 0, 64); uerr == nil {
				return int64(u), nil
			}
		}
		return 0, errors.New("invalid number " + strconv.Quote(tok.Literal))
	}
	return 0, errNotLiteral
}

// immediateType describes a typed immediate prefix such as "i32".
type immediateType struct {
	bits   int
	signed bool
	float  bool
}

var immediateTypes = map[string]immediateType{
	"i8":  {bits: 8, signed: true},
	"i16": {bits: 16, signed: true},
	"i32": {bits: 32, signed: true},
	"i64": {bits: 64, signed: true},
	"u8":  {bits: 8},
	"u16": {bits: 16},
	"u32": {bits: 32},
	"u64": {bits: 64},
	"f32": {bits: 32, float: true},
	"f64": {bits: 64, float: true},
}

func isImmediateType(s string) bool {
	_, ok := immediateTypes[strings.ToLower(s)]
	return ok
}

// typedValue parses "[-]type$[-]value". The value must fit the declared
// width; unsigned values are stored as their 64-bit pattern.
func typedValue(lit string) (int64, error) {
	neg := strings.HasPrefix(lit, "-")
	lit = strings.TrimPrefix(lit, "-")
	name, digits, _ := strings.Cut(lit, "$")
	if strings.HasPrefix(digits, "-") {
		if neg {
			return 0, fmt.Errorf("%s$ value has two signs", name)
		}
		neg = true
		digits = digits[1:]
	}

	typ, ok := immediateTypes[strings.ToLower(name)]
	switch {
	case !ok:
		return 0, fmt.Errorf("unknown immediate type %q", name)
	case typ.float:
		return 0, fmt.Errorf("%s immediates are not supported: registers hold 64-bit integers", name)
	case !typ.signed && neg:
		return 0, fmt.Errorf("negative value for unsigned %s", name)
	}

	if typ.signed {
		sign := ""
		if neg {
			sign = "-"
		}
		v, err := strconv.ParseInt(sign+digits, 0, typ.bits)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value %q", name, sign+digits)
		}
		return v, nil
	}
	u, err := strconv.ParseUint(digits, 0, typ.bits)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q", name, digits)
	}
	return int64(u), nil
}

func fits(kind bytecode.OperandKind, v int64) bool {
	switch kind {
	case bytecode.KindImm8:
		return v >= 0 && v <= math.MaxUint8
	case bytecode.KindAddress, bytecode.KindMemory:
		return v >= 0 && v <= math.MaxUint32
	}
	return true
}
