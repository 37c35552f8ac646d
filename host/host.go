// Package host exposes the four operations the CLI and the network service
// build on: assemble, disassemble, execute and benchmark.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/chazu/artvm/assembler"
	"github.com/chazu/artvm/pkg/bytecode"
	"github.com/chazu/artvm/vm"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("artvm.host")

// stepBatch is the number of steps between context checks.
const stepBatch = 4096

// ErrStepBudget is returned when execution exceeds Options.MaxSteps.
var ErrStepBudget = errors.New("step budget exhausted")

// Options configure execution.
type Options struct {
	MemorySize int       // memory cells, 0 for the default
	StackDepth int       // stack depth, 0 for the default
	MaxSteps   uint64    // step budget, 0 for unbounded
	Output     io.Writer // INT output, nil discards
	Trace      bool      // per-step debug logging
}

func (o Options) machineOptions() []vm.Option {
	return []vm.Option{
		vm.WithMemorySize(o.MemorySize),
		vm.WithStackDepth(o.StackDepth),
		vm.WithOutput(o.Output),
		vm.WithTrace(o.Trace),
	}
}

// Assemble assembles source text.
func Assemble(source string) (*assembler.Program, error) {
	start := time.Now()
	prog, err := assembler.Assemble(source)
	if err != nil {
		return nil, err
	}
	log.Debugf("assembled %d bytes in %s", len(prog.Code), time.Since(start))
	return prog, nil
}

// Record is one line of a disassembly.
type Record struct {
	Offset int
	Size   int
	Text   string
}

// Disassemble decodes code into records. On a decode error the records
// decoded so far are returned with the error.
func Disassemble(code []byte) ([]Record, error) {
	ins, err := bytecode.Disassemble(code)
	records := make([]Record, 0, len(ins))
	offset := 0
	for _, in := range ins {
		records = append(records, Record{Offset: offset, Size: in.Size, Text: bytecode.FormatInstruction(in)})
		offset += in.Size
	}
	return records, err
}

// Execution is the outcome of Execute.
type Execution struct {
	Exit    vm.ExitResult
	Final   vm.State
	Elapsed time.Duration
}

// Execute loads code and runs it on a fresh machine until it halts, faults,
// exceeds opts.MaxSteps, or ctx is done. A fault is reported in the
// Execution, not as an error. On ErrStepBudget or cancellation the partial
// Execution is returned alongside the error.
func Execute(ctx context.Context, code []byte, opts Options) (*Execution, error) {
	m, err := vm.Load(code, opts.machineOptions()...)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	err = drive(ctx, m, opts.MaxSteps)
	exec := &Execution{Exit: m.Exit(), Final: m.Snapshot(), Elapsed: time.Since(start)}
	if err != nil {
		return exec, err
	}
	log.Debugf("execute: %s after %d steps in %s", exec.Exit, exec.Exit.Steps, exec.Elapsed)
	return exec, nil
}

// drive steps m in batches, checking ctx and the step budget between batches.
func drive(ctx context.Context, m *vm.Machine, maxSteps uint64) error {
	for m.State() == vm.Running {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := 0; i < stepBatch && m.State() == vm.Running; i++ {
			if maxSteps > 0 && m.Steps() >= maxSteps {
				return fmt.Errorf("%w after %d steps", ErrStepBudget, m.Steps())
			}
			m.Step()
		}
	}
	return nil
}
