package assembler

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an assembly failure.
type ErrorKind int

const (
	UnknownOpcode ErrorKind = iota + 1
	MalformedOperand
	DuplicateLabel
	UndefinedLabel
	Syntax
)

var errorKindNames = map[ErrorKind]string{
	UnknownOpcode:    "unknown opcode",
	MalformedOperand: "malformed operand",
	DuplicateLabel:   "duplicate label",
	UndefinedLabel:   "undefined label",
	Syntax:           "syntax error",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Sentinels for errors.Is matching against an *Error's kind.
var (
	ErrUnknownOpcode    = errors.New("unknown opcode")
	ErrMalformedOperand = errors.New("malformed operand")
	ErrDuplicateLabel   = errors.New("duplicate label")
	ErrUndefinedLabel   = errors.New("undefined label")
	ErrSyntax           = errors.New("syntax error")
)

var kindSentinels = map[ErrorKind]error{
	UnknownOpcode:    ErrUnknownOpcode,
	MalformedOperand: ErrMalformedOperand,
	DuplicateLabel:   ErrDuplicateLabel,
	UndefinedLabel:   ErrUndefinedLabel,
	Syntax:           ErrSyntax,
}

// Error is an assembly failure at a source position.
type Error struct {
	Kind   ErrorKind
	Pos    Position
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Pos, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Pos, e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return kindSentinels[e.Kind]
}

func errorf(kind ErrorKind, pos Position, format string, args ...any) *Error {
	return &Error{Kind: kind, Pos: pos, Detail: fmt.Sprintf(format, args...)}
}
