package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/artvm/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Faults
// ---------------------------------------------------------------------------

// FaultKind classifies a runtime fault.
type FaultKind int

const (
	NoFault FaultKind = iota
	InvalidOpcode
	TruncatedInstruction
	InvalidRegister
	StackUnderflow
	StackOverflow
	OutOfBoundsMemory
	ArithmeticFault
	InvalidJump
	Interrupt
)

var faultNames = map[FaultKind]string{
	NoFault:              "none",
	InvalidOpcode:        "invalid opcode",
	TruncatedInstruction: "truncated instruction",
	InvalidRegister:      "invalid register",
	StackUnderflow:       "stack underflow",
	StackOverflow:        "stack overflow",
	OutOfBoundsMemory:    "out of bounds memory",
	ArithmeticFault:      "arithmetic fault",
	InvalidJump:          "invalid jump",
	Interrupt:            "interrupt",
}

func (k FaultKind) String() string {
	if name, ok := faultNames[k]; ok {
		return name
	}
	return fmt.Sprintf("FaultKind(%d)", int(k))
}

// Fault describes why a machine stopped in the Faulted state. IP is the
// offset of the faulting instruction.
type Fault struct {
	Kind   FaultKind
	IP     int
	Op     bytecode.Opcode
	Detail string
	Err    error // underlying decode or host error, if any
}

func (f *Fault) Error() string {
	msg := fmt.Sprintf("%s at 0x%04X", f.Kind, f.IP)
	switch f.Kind {
	case InvalidOpcode:
		msg += fmt.Sprintf(" (byte 0x%02X)", byte(f.Op))
	case TruncatedInstruction:
	default:
		msg += fmt.Sprintf(" (%s)", f.Op)
	}
	if f.Detail != "" {
		msg += ": " + f.Detail
	}
	return msg
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// decodeFault maps a bytecode decode error onto a fault.
func decodeFault(ip int, err error) *Fault {
	f := &Fault{Kind: InvalidOpcode, IP: ip, Err: err}
	var de *bytecode.DecodeError
	if errors.As(err, &de) {
		f.Op = de.Op
	}
	switch {
	case errors.Is(err, bytecode.ErrTruncated):
		f.Kind = TruncatedInstruction
	case errors.Is(err, bytecode.ErrInvalidRegister):
		f.Kind = InvalidRegister
	}
	return f
}

// ---------------------------------------------------------------------------
// Load errors
// ---------------------------------------------------------------------------

var (
	// ErrEmptyProgram is returned by Load for zero-length code.
	ErrEmptyProgram = errors.New("empty program")

	// ErrMissingHalt is returned by Load when the final instruction is not HLT.
	ErrMissingHalt = errors.New("program does not end in HLT")
)

// LoadError reports a structural problem found by Load.
type LoadError struct {
	Offset int
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load: offset 0x%04X: %v", e.Offset, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
