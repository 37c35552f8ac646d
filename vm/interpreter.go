package vm

import (
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/chazu/artvm/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Interpreter: decode-execute loop
// ---------------------------------------------------------------------------

// Interrupt numbers accepted by INT.
const (
	IntWriteChar    = 0 // pop a value and write it as a character
	IntWriteDecimal = 1 // pop a value and write it in decimal
	IntNewline      = 2 // write a newline
)

// StepResult reports the outcome of a single Step.
type StepResult struct {
	State RunState
	IP    int             // offset of the instruction that was executed
	Op    bytecode.Opcode // opcode executed (undefined when nothing decoded)
	Fault *Fault
}

// Step executes exactly one instruction. On a halted or faulted machine it
// executes nothing and reports the terminal state.
func (m *Machine) Step() StepResult {
	if m.state != Running {
		return StepResult{State: m.state, IP: m.ip, Fault: m.fault}
	}

	ip := m.ip
	in, next, err := bytecode.Decode(m.code, ip)
	if err != nil {
		return m.fail(decodeFault(ip, err))
	}

	if m.trace {
		log.Debugf("%04X  %-24s stack=%d", ip, bytecode.FormatInstruction(in), len(m.stack))
	}

	if f := m.execute(in, next); f != nil {
		f.IP = ip
		f.Op = in.Op
		return m.fail(f)
	}

	m.steps++
	return StepResult{State: m.state, IP: ip, Op: in.Op}
}

// Run steps until the machine halts or faults.
func (m *Machine) Run() ExitResult {
	for m.state == Running {
		m.Step()
	}
	return m.Exit()
}

func (m *Machine) fail(f *Fault) StepResult {
	m.state = Faulted
	m.fault = f
	if m.trace {
		log.Debugf("%04X  fault: %v", f.IP, f)
	}
	return StepResult{State: Faulted, IP: f.IP, Op: f.Op, Fault: f}
}

func fault(kind FaultKind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// execute runs one decoded instruction. It validates before mutating so a
// faulting instruction leaves the machine unchanged apart from the run state.
func (m *Machine) execute(in bytecode.Instruction, next int) *Fault {
	a := in.Arg(0)
	b := in.Arg(1)

	switch in.Op {
	// --- Control ---
	case bytecode.OpNop:

	case bytecode.OpHlt:
		m.state = Halted

	case bytecode.OpInt:
		if f := m.interrupt(int(a)); f != nil {
			return f
		}

	// --- Stack and registers ---
	case bytecode.OpPush:
		if f := m.push(a); f != nil {
			return f
		}

	case bytecode.OpPushR:
		if f := m.push(m.regs[a]); f != nil {
			return f
		}

	case bytecode.OpPop:
		v, f := m.pop()
		if f != nil {
			return f
		}
		m.regs[a] = v

	case bytecode.OpLdi:
		m.regs[a] = b

	case bytecode.OpCpy:
		m.regs[b] = m.regs[a]

	// --- Control flow ---
	case bytecode.OpJmp, bytecode.OpJe, bytecode.OpJne, bytecode.OpJg, bytecode.OpJl:
		if !m.taken(in.Op) {
			break
		}
		if f := m.checkTarget(a); f != nil {
			return f
		}
		m.ip = int(a)
		return nil

	case bytecode.OpCmp:
		x, y := m.regs[a], m.regs[b]
		m.flags = Flags{Eq: x == y, Gt: x > y, Lt: x < y}

	case bytecode.OpCall:
		if f := m.checkTarget(a); f != nil {
			return f
		}
		if f := m.push(int64(next)); f != nil {
			return f
		}
		m.ip = int(a)
		return nil

	case bytecode.OpRet:
		if len(m.stack) == 0 {
			return fault(StackUnderflow, "return with empty stack")
		}
		target := m.stack[len(m.stack)-1]
		if f := m.checkTarget(target); f != nil {
			return f
		}
		m.stack = m.stack[:len(m.stack)-1]
		m.ip = int(target)
		return nil

	// --- Arithmetic and logic ---
	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod,
		bytecode.OpAnd, bytecode.OpOr, bytecode.OpXor:
		v, f := arith(in.Op, m.regs[a], m.regs[b])
		if f != nil {
			return f
		}
		if f := m.push(v); f != nil {
			return f
		}

	case bytecode.OpShr, bytecode.OpShl:
		if b >= 64 {
			return fault(ArithmeticFault, "shift by %d", b)
		}
		v := m.regs[a] >> uint(b)
		if in.Op == bytecode.OpShl {
			v = m.regs[a] << uint(b)
		}
		if f := m.push(v); f != nil {
			return f
		}

	// --- Memory ---
	case bytecode.OpStore:
		if f := m.checkCell(a); f != nil {
			return f
		}
		m.memory[a] = b

	case bytecode.OpLoad:
		if f := m.checkCell(a); f != nil {
			return f
		}
		if f := m.push(m.memory[a]); f != nil {
			return f
		}

	case bytecode.OpStoreR:
		if f := m.checkCell(a); f != nil {
			return f
		}
		m.memory[a] = m.regs[b]

	case bytecode.OpLoadR:
		if f := m.checkCell(b); f != nil {
			return f
		}
		m.regs[a] = m.memory[b]

	default:
		return fault(InvalidOpcode, "no handler")
	}

	m.ip = next
	return nil
}

func (m *Machine) taken(op bytecode.Opcode) bool {
	switch op {
	case bytecode.OpJe:
		return m.flags.Eq
	case bytecode.OpJne:
		return !m.flags.Eq
	case bytecode.OpJg:
		return m.flags.Gt
	case bytecode.OpJl:
		return m.flags.Lt
	}
	return true
}

func arith(op bytecode.Opcode, x, y int64) (int64, *Fault) {
	switch op {
	case bytecode.OpAdd:
		return x + y, nil
	case bytecode.OpSub:
		return x - y, nil
	case bytecode.OpMul:
		return x * y, nil
	case bytecode.OpDiv:
		if y == 0 {
			return 0, fault(ArithmeticFault, "division by zero")
		}
		if x == math.MinInt64 && y == -1 {
			return 0, fault(ArithmeticFault, "division overflow")
		}
		return x / y, nil
	case bytecode.OpMod:
		if y == 0 {
			return 0, fault(ArithmeticFault, "modulo by zero")
		}
		return x % y, nil
	case bytecode.OpAnd:
		return x & y, nil
	case bytecode.OpOr:
		return x | y, nil
	case bytecode.OpXor:
		return x ^ y, nil
	}
	return 0, fault(InvalidOpcode, "not arithmetic")
}

func (m *Machine) push(v int64) *Fault {
	if len(m.stack) >= m.stackDepth {
		return fault(StackOverflow, "depth %d", m.stackDepth)
	}
	m.stack = append(m.stack, v)
	return nil
}

func (m *Machine) pop() (int64, *Fault) {
	if len(m.stack) == 0 {
		return 0, fault(StackUnderflow, "")
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v, nil
}

func (m *Machine) checkTarget(target int64) *Fault {
	if target < 0 || target >= int64(len(m.code)) {
		return fault(InvalidJump, "target 0x%04X outside program of %d bytes", target, len(m.code))
	}
	return nil
}

func (m *Machine) checkCell(cell int64) *Fault {
	if cell < 0 || cell >= int64(len(m.memory)) {
		return fault(OutOfBoundsMemory, "cell %d of %d", cell, len(m.memory))
	}
	return nil
}

// interrupt services INT n. The stack is popped only after the write succeeds.
func (m *Machine) interrupt(n int) *Fault {
	var buf []byte
	pops := 0

	switch n {
	case IntWriteChar:
		if len(m.stack) == 0 {
			return fault(StackUnderflow, "INT %d", n)
		}
		v := m.stack[len(m.stack)-1]
		if v < 0 || v > utf8.MaxRune || !utf8.ValidRune(rune(v)) {
			return fault(Interrupt, "invalid character %d", v)
		}
		buf = utf8.AppendRune(nil, rune(v))
		pops = 1
	case IntWriteDecimal:
		if len(m.stack) == 0 {
			return fault(StackUnderflow, "INT %d", n)
		}
		buf = strconv.AppendInt(nil, m.stack[len(m.stack)-1], 10)
		pops = 1
	case IntNewline:
		buf = []byte{'\n'}
	default:
		return fault(Interrupt, "unknown interrupt %d", n)
	}

	if _, err := m.out.Write(buf); err != nil {
		f := fault(Interrupt, "write failed")
		f.Err = err
		return f
	}
	m.stack = m.stack[:len(m.stack)-pops]
	return nil
}
