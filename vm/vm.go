package vm

import (
	"errors"
	"fmt"
	"io"

	"github.com/chazu/artvm/pkg/bytecode"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("artvm.vm")

const (
	// DefaultMemorySize is the number of memory cells in a new machine.
	DefaultMemorySize = 1024

	// DefaultStackDepth is the maximum number of values on the data stack.
	DefaultStackDepth = 1024
)

// RunState is the lifecycle state of a machine.
type RunState int

const (
	Running RunState = iota
	Halted
	Faulted
)

func (s RunState) String() string {
	switch s {
	case Running:
		return "running"
	case Halted:
		return "halted"
	case Faulted:
		return "faulted"
	}
	return "unknown"
}

// Flags are the comparison flags set by CMP.
type Flags struct {
	Eq bool
	Gt bool
	Lt bool
}

// Machine is a single VM instance. It is not safe for concurrent use; run one
// Machine per goroutine. The code buffer is never written.
type Machine struct {
	code   []byte
	ip     int
	regs   [bytecode.NumRegisters]int64
	flags  Flags
	stack  []int64
	memory []int64
	state  RunState
	fault  *Fault
	steps  uint64

	memorySize  int
	stackDepth  int
	out         io.Writer
	trace       bool
	breakpoints map[int]bool
}

// Option configures a Machine.
type Option func(*Machine)

// WithMemorySize sets the number of memory cells.
func WithMemorySize(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.memorySize = n
		}
	}
}

// WithStackDepth sets the maximum stack depth.
func WithStackDepth(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.stackDepth = n
		}
	}
}

// WithOutput sets the sink for INT output. The default discards output.
func WithOutput(w io.Writer) Option {
	return func(m *Machine) {
		if w != nil {
			m.out = w
		}
	}
}

// WithTrace enables per-step debug logging.
func WithTrace(enabled bool) Option {
	return func(m *Machine) {
		m.trace = enabled
	}
}

// New creates a machine for code without validating it. Malformed code
// faults when execution reaches it.
func New(code []byte, opts ...Option) *Machine {
	m := &Machine{
		code:        code,
		memorySize:  DefaultMemorySize,
		stackDepth:  DefaultStackDepth,
		out:         io.Discard,
		breakpoints: make(map[int]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.Reset()
	return m
}

// Load validates code and creates a machine for it. The code must be
// non-empty, decode linearly from offset 0, and end with HLT.
func Load(code []byte, opts ...Option) (*Machine, error) {
	if err := Validate(code); err != nil {
		return nil, err
	}
	return New(code, opts...), nil
}

// Validate performs the structural checks of Load. The returned error is a
// *LoadError.
func Validate(code []byte) error {
	if len(code) == 0 {
		return &LoadError{Err: ErrEmptyProgram}
	}
	ins, err := bytecode.Disassemble(code)
	if err != nil {
		offset := 0
		var de *bytecode.DecodeError
		if errors.As(err, &de) {
			offset = de.Offset
		}
		return &LoadError{Offset: offset, Err: err}
	}
	last := ins[len(ins)-1]
	if last.Op != bytecode.OpHlt {
		return &LoadError{Offset: len(code) - last.Size, Err: ErrMissingHalt}
	}
	return nil
}

// Reset returns the machine to its initial state. Breakpoints are kept.
func (m *Machine) Reset() {
	m.ip = 0
	m.regs = [bytecode.NumRegisters]int64{}
	m.flags = Flags{}
	m.stack = make([]int64, 0, min(m.stackDepth, 64))
	m.memory = make([]int64, m.memorySize)
	m.state = Running
	m.fault = nil
	m.steps = 0
}

// Code returns the program being executed.
func (m *Machine) Code() []byte { return m.code }

// IP returns the instruction pointer.
func (m *Machine) IP() int { return m.ip }

// State returns the run state.
func (m *Machine) State() RunState { return m.state }

// Fault returns the fault that stopped the machine, or nil.
func (m *Machine) Fault() *Fault { return m.fault }

// Steps returns the number of instructions retired.
func (m *Machine) Steps() uint64 { return m.steps }

// Register returns the value of register n. It panics unless
// 0 <= n < bytecode.NumRegisters.
func (m *Machine) Register(n int) int64 { return m.regs[n] }

// Flags returns the comparison flags.
func (m *Machine) Flags() Flags { return m.flags }

// Stack returns a copy of the data stack, bottom first.
func (m *Machine) Stack() []int64 {
	return append([]int64(nil), m.stack...)
}

// Memory returns memory cell n. It panics unless n is within the configured
// memory size; use Snapshot to read memory without indexing.
func (m *Machine) Memory(n int) int64 { return m.memory[n] }

// State is a deep copy of a machine's observable state.
type State struct {
	IP        int
	Registers [bytecode.NumRegisters]int64
	Flags     Flags
	Stack     []int64
	Memory    []int64
	RunState  RunState
	Steps     uint64
}

// Snapshot returns a deep copy of the machine state.
func (m *Machine) Snapshot() State {
	return State{
		IP:        m.ip,
		Registers: m.regs,
		Flags:     m.flags,
		Stack:     append([]int64{}, m.stack...),
		Memory:    append([]int64{}, m.memory...),
		RunState:  m.state,
		Steps:     m.steps,
	}
}

// ExitResult reports how a run ended.
type ExitResult struct {
	State RunState
	Fault FaultKind // NoFault unless State is Faulted
	IP    int
	Op    bytecode.Opcode
	Steps uint64
}

// Exit returns the exit condition for the current state.
func (m *Machine) Exit() ExitResult {
	res := ExitResult{State: m.state, IP: m.ip, Steps: m.steps}
	if m.fault != nil {
		res.Fault = m.fault.Kind
		res.Op = m.fault.Op
	}
	return res
}

func (r ExitResult) String() string {
	switch r.State {
	case Faulted:
		return fmt.Sprintf("faulted: %s at 0x%04X", r.Fault, r.IP)
	case Halted:
		return fmt.Sprintf("halted at 0x%04X", r.IP)
	}
	return fmt.Sprintf("running at 0x%04X", r.IP)
}
