package host

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chazu/artvm/pkg/bytecode"
	"github.com/chazu/artvm/vm"
)

const countdown = `
    ldi r0, 0
    ldi r1, 3
.loop
    cmp r0, r1
    je done
    ldi r2, 1
    add r0, r2
    pop r0
    jmp loop
.done
    hlt
`

func mustAssemble(t *testing.T, src string) []byte {
	t.Helper()
	prog, err := Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	return prog.Code
}

func TestDisassembleRecords(t *testing.T) {
	records, err := Disassemble(mustAssemble(t, "ldi r0, 42\nhlt"))
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	want := []Record{
		{Offset: 0, Size: 10, Text: "LDI R0, 42"},
		{Offset: 10, Size: 1, Text: "HLT"},
	}
	if len(records) != len(want) {
		t.Fatalf("got %d records, want %d", len(records), len(want))
	}
	for i := range want {
		if records[i] != want[i] {
			t.Errorf("record %d = %+v, want %+v", i, records[i], want[i])
		}
	}
}

func TestDisassemblePartial(t *testing.T) {
	records, err := Disassemble([]byte{0x00, 0x00, 0xEE})
	if !errors.Is(err, bytecode.ErrInvalidOpcode) {
		t.Fatalf("error = %v, want ErrInvalidOpcode", err)
	}
	if len(records) != 2 || records[1].Offset != 1 {
		t.Errorf("records = %+v", records)
	}
}

func TestExecute(t *testing.T) {
	exec, err := Execute(context.Background(), mustAssemble(t, countdown), Options{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if exec.Exit.State != vm.Halted {
		t.Errorf("exit = %v, want halted", exec.Exit)
	}
	if exec.Final.Registers[0] != 3 {
		t.Errorf("r0 = %d, want 3", exec.Final.Registers[0])
	}
}

func TestExecuteFaultIsNotAnError(t *testing.T) {
	exec, err := Execute(context.Background(), mustAssemble(t, "pop r0"), Options{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if exec.Exit.State != vm.Faulted || exec.Exit.Fault != vm.StackUnderflow {
		t.Errorf("exit = %v, want stack underflow", exec.Exit)
	}
}

func TestExecuteRejectsMalformedCode(t *testing.T) {
	_, err := Execute(context.Background(), []byte{0x00}, Options{})
	if !errors.Is(err, vm.ErrMissingHalt) {
		t.Errorf("error = %v, want ErrMissingHalt", err)
	}
}

func TestExecuteStepBudget(t *testing.T) {
	exec, err := Execute(context.Background(), mustAssemble(t, ".spin jmp spin"), Options{MaxSteps: 100})
	if !errors.Is(err, ErrStepBudget) {
		t.Fatalf("error = %v, want ErrStepBudget", err)
	}
	if exec == nil || exec.Exit.Steps != 100 || exec.Exit.State != vm.Running {
		t.Errorf("partial execution = %+v", exec)
	}
}

func TestExecuteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Execute(ctx, mustAssemble(t, ".spin jmp spin"), Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestExecuteOutput(t *testing.T) {
	var out bytes.Buffer
	_, err := Execute(context.Background(), mustAssemble(t, "push 7\nint 1\nint 2"), Options{Output: &out})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.String() != "7\n" {
		t.Errorf("output = %q, want %q", out.String(), "7\n")
	}
}

func TestBenchmarkSanity(t *testing.T) {
	stats, err := Benchmark(context.Background(), []byte{byte(bytecode.OpHlt)}, 1000, Options{})
	if err != nil {
		t.Fatalf("Benchmark: %v", err)
	}
	if stats.Iterations != 1000 {
		t.Errorf("iterations = %d, want 1000", stats.Iterations)
	}
	if stats.Min < 0 {
		t.Errorf("min = %s, want non-negative", stats.Min)
	}
	// Median <= mean holds only for right-skewed samples; both must lie within [min, max].
	if stats.Median < stats.Min || stats.Median > stats.Max || stats.Mean < stats.Min || stats.Mean > stats.Max {
		t.Errorf("median and mean outside [min, max]: %s %s %s %s",
			stats.Min, stats.Median, stats.Mean, stats.Max)
	}
	if stats.Exit.State != vm.Halted {
		t.Errorf("exit = %v, want halted", stats.Exit)
	}
}

func TestBenchmarkDefaultIterations(t *testing.T) {
	stats, err := Benchmark(context.Background(), mustAssemble(t, "nop"), 0, Options{})
	if err != nil {
		t.Fatalf("Benchmark: %v", err)
	}
	if stats.Iterations != DefaultIterations {
		t.Errorf("iterations = %d, want %d", stats.Iterations, DefaultIterations)
	}
}

func TestBenchmarkStepBudget(t *testing.T) {
	_, err := Benchmark(context.Background(), mustAssemble(t, ".spin jmp spin"), 3, Options{MaxSteps: 10})
	if !errors.Is(err, ErrStepBudget) {
		t.Errorf("error = %v, want ErrStepBudget", err)
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name    string
		samples []time.Duration
		want    Stats
	}{
		{"odd", []time.Duration{3, 1, 2}, Stats{Iterations: 3, Min: 1, Max: 3, Median: 2, Mean: 2}},
		{"even", []time.Duration{100, 2, 6, 4}, Stats{Iterations: 4, Min: 2, Max: 100, Median: 5, Mean: 28}},
		{"single", []time.Duration{7}, Stats{Iterations: 1, Min: 7, Max: 7, Median: 7, Mean: 7}},
		{"empty", nil, Stats{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := *Summarize(tt.samples); got != tt.want {
				t.Errorf("Summarize = %+v, want %+v", got, tt.want)
			}
		})
	}
}
