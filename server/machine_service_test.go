package server

import (
	"bytes"
	"testing"

	"connectrpc.com/connect"
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

// ---------------------------------------------------------------------------
// Direct handler calls
// ---------------------------------------------------------------------------

func TestAssemble_Labels(t *testing.T) {
	svc := newTestService()

	resp, err := svc.Assemble(bg(), connectReq(&AssembleRequest{Source: countdown}))
	if err != nil {
		t.Fatalf("Assemble returned error: %v", err)
	}
	if len(resp.Msg.Code) != 0x31 {
		t.Errorf("code length = %d, want %d", len(resp.Msg.Code), 0x31)
	}
	if resp.Msg.Labels["loop"] != 0x14 || resp.Msg.Labels["done"] != 0x30 {
		t.Errorf("labels = %v", resp.Msg.Labels)
	}
}

func TestAssemble_ErrorIsInvalidArgument(t *testing.T) {
	svc := newTestService()

	_, err := svc.Assemble(bg(), connectReq(&AssembleRequest{Source: "frob r0"}))
	if err == nil {
		t.Fatal("expected error for unknown opcode")
	}
	if code := connect.CodeOf(err); code != connect.CodeInvalidArgument {
		t.Errorf("code = %v, want %v", code, connect.CodeInvalidArgument)
	}
}

func TestDisassemble_PartialResult(t *testing.T) {
	svc := newTestService()
	code := append(mustAssemble(t, "nop\nhlt"), 0xFF)

	resp, err := svc.Disassemble(bg(), connectReq(&DisassembleRequest{Code: code}))
	if err != nil {
		t.Fatalf("Disassemble returned error: %v", err)
	}
	if len(resp.Msg.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(resp.Msg.Records))
	}
	if resp.Msg.Records[1].Text != "HLT" || resp.Msg.Records[1].Offset != 1 {
		t.Errorf("record 1 = %+v", resp.Msg.Records[1])
	}
	if resp.Msg.Error == "" {
		t.Error("expected decode error for trailing 0xFF")
	}
}

func TestDisassemble_EmptyCode(t *testing.T) {
	svc := newTestService()
	_, err := svc.Disassemble(bg(), connectReq(&DisassembleRequest{}))
	if code := connect.CodeOf(err); code != connect.CodeInvalidArgument {
		t.Errorf("code = %v, want %v", code, connect.CodeInvalidArgument)
	}
}

func TestExecute_Halts(t *testing.T) {
	svc := newTestService()

	resp, err := svc.Execute(bg(), connectReq(&ExecuteRequest{Code: mustAssemble(t, countdown)}))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if resp.Msg.Exit.State != "halted" {
		t.Errorf("state = %q, want halted", resp.Msg.Exit.State)
	}
	if resp.Msg.Exit.IP != 0x31 {
		t.Errorf("ip = 0x%X, want 0x31", resp.Msg.Exit.IP)
	}
	if len(resp.Msg.Registers) != 16 || resp.Msg.Registers[1] != 3 {
		t.Errorf("registers = %v", resp.Msg.Registers)
	}
}

func TestExecute_FaultIsNotAnError(t *testing.T) {
	svc := newTestService()
	code := mustAssemble(t, "ldi r0, 1\nldi r1, 0\ndiv r0, r1\nhlt")

	resp, err := svc.Execute(bg(), connectReq(&ExecuteRequest{Code: code}))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if resp.Msg.Exit.State != "faulted" {
		t.Errorf("state = %q, want faulted", resp.Msg.Exit.State)
	}
	if resp.Msg.Exit.Fault != "arithmetic fault" || resp.Msg.Exit.Op != "DIV" {
		t.Errorf("exit = %+v", resp.Msg.Exit)
	}
}

func TestExecute_Output(t *testing.T) {
	svc := newTestService()
	code := mustAssemble(t, "push 42\nint 1\nint 2\nhlt")

	resp, err := svc.Execute(bg(), connectReq(&ExecuteRequest{Code: code}))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !bytes.Equal(resp.Msg.Output, []byte("42\n")) {
		t.Errorf("output = %q, want %q", resp.Msg.Output, "42\n")
	}
}

func TestExecute_OutputLimit(t *testing.T) {
	svc := newTestService(WithOutputLimit(1))
	code := mustAssemble(t, "push 42\nint 1\nhlt")

	resp, err := svc.Execute(bg(), connectReq(&ExecuteRequest{Code: code}))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if resp.Msg.Exit.Fault != "interrupt" {
		t.Errorf("fault = %q, want interrupt", resp.Msg.Exit.Fault)
	}
}

func TestExecute_StepBudget(t *testing.T) {
	svc := newTestService(WithStepBudget(1000))
	code := mustAssemble(t, ".top\njmp top")

	_, err := svc.Execute(bg(), connectReq(&ExecuteRequest{Code: code}))
	if code := connect.CodeOf(err); code != connect.CodeResourceExhausted {
		t.Errorf("code = %v, want %v", code, connect.CodeResourceExhausted)
	}
}

func TestExecute_RequestCannotRaiseBudget(t *testing.T) {
	svc := newTestService(WithStepBudget(100))
	if got := svc.budget(1 << 40); got != 100 {
		t.Errorf("budget(huge) = %d, want 100", got)
	}
	if got := svc.budget(10); got != 10 {
		t.Errorf("budget(10) = %d, want 10", got)
	}
	if got := svc.budget(0); got != 100 {
		t.Errorf("budget(0) = %d, want 100", got)
	}
}

func TestExecute_ResourceLimits(t *testing.T) {
	svc := newTestService(WithMaxMemorySize(4096), WithMaxStackDepth(256))
	code := []byte{0x01}

	tests := []struct {
		name string
		req  ExecuteRequest
		want connect.Code
	}{
		{"huge memory", ExecuteRequest{Code: code, MemorySize: 1 << 62}, connect.CodeInvalidArgument},
		{"memory over limit", ExecuteRequest{Code: code, MemorySize: 4097}, connect.CodeInvalidArgument},
		{"negative memory", ExecuteRequest{Code: code, MemorySize: -1}, connect.CodeInvalidArgument},
		{"stack over limit", ExecuteRequest{Code: code, StackDepth: 257}, connect.CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := svc.Execute(bg(), connectReq(&req))
			if code := connect.CodeOf(err); code != tt.want {
				t.Errorf("code = %v, want %v (%v)", code, tt.want, err)
			}
		})
	}

	resp, err := svc.Execute(bg(), connectReq(&ExecuteRequest{Code: code, MemorySize: 4096, StackDepth: 256}))
	if err != nil {
		t.Fatalf("Execute at the limits: %v", err)
	}
	if resp.Msg.Exit.State != "halted" {
		t.Errorf("state = %q, want halted", resp.Msg.Exit.State)
	}
}

func TestExecute_DefaultResourceLimit(t *testing.T) {
	svc := newTestService()
	_, err := svc.Execute(bg(), connectReq(&ExecuteRequest{Code: []byte{0x01}, MemorySize: 1 << 62}))
	if code := connect.CodeOf(err); code != connect.CodeInvalidArgument {
		t.Errorf("code = %v, want %v", code, connect.CodeInvalidArgument)
	}
}

func TestExecute_MalformedCode(t *testing.T) {
	svc := newTestService()

	_, err := svc.Execute(bg(), connectReq(&ExecuteRequest{Code: []byte{0xFF}}))
	if code := connect.CodeOf(err); code != connect.CodeInvalidArgument {
		t.Errorf("code = %v, want %v", code, connect.CodeInvalidArgument)
	}
}

func TestBenchmark_Summary(t *testing.T) {
	svc := newTestService()

	resp, err := svc.Benchmark(bg(), connectReq(&BenchmarkRequest{
		Code:       mustAssemble(t, countdown),
		Iterations: 5,
	}))
	if err != nil {
		t.Fatalf("Benchmark returned error: %v", err)
	}
	m := resp.Msg
	if m.Iterations != 5 {
		t.Errorf("iterations = %d, want 5", m.Iterations)
	}
	if m.MinNs < 0 || m.MinNs > m.MedianNs || m.MedianNs > m.MaxNs || m.MeanNs > m.MaxNs || m.MeanNs < m.MinNs {
		t.Errorf("inconsistent stats: %+v", m)
	}
	if m.Exit.State != "halted" {
		t.Errorf("exit = %+v", m.Exit)
	}
}

func TestBenchmark_IterationLimit(t *testing.T) {
	svc := newTestService(WithMaxIterations(10))

	_, err := svc.Benchmark(bg(), connectReq(&BenchmarkRequest{
		Code:       mustAssemble(t, "hlt"),
		Iterations: 11,
	}))
	if code := connect.CodeOf(err); code != connect.CodeInvalidArgument {
		t.Errorf("code = %v, want %v", code, connect.CodeInvalidArgument)
	}
}

// ---------------------------------------------------------------------------
// Over HTTP with the CBOR codec
// ---------------------------------------------------------------------------

func TestClient_RoundTrip(t *testing.T) {
	client := newTestClient(t)

	asm, err := client.Assemble(bg(), &AssembleRequest{Source: countdown})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	dis, err := client.Disassemble(bg(), &DisassembleRequest{Code: asm.Code})
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	if dis.Error != "" || len(dis.Records) != 9 {
		t.Errorf("disassembly = %d records, error %q", len(dis.Records), dis.Error)
	}
	if dis.Records[0].Text != "LDI R0, 0" {
		t.Errorf("first record = %q", dis.Records[0].Text)
	}

	exec, err := client.Execute(bg(), &ExecuteRequest{Code: asm.Code})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if exec.Exit.State != "halted" || exec.Exit.Text != "halted at 0x0031" {
		t.Errorf("exit = %+v", exec.Exit)
	}

	bench, err := client.Benchmark(bg(), &BenchmarkRequest{Code: asm.Code, Iterations: 3})
	if err != nil {
		t.Fatalf("Benchmark: %v", err)
	}
	if bench.Iterations != 3 || bench.Exit != exec.Exit {
		t.Errorf("benchmark = %+v", bench)
	}
}

func TestClient_ErrorCodes(t *testing.T) {
	client := newTestClient(t, WithStepBudget(50))

	_, err := client.Assemble(bg(), &AssembleRequest{Source: "jmp nowhere"})
	if code := connect.CodeOf(err); code != connect.CodeInvalidArgument {
		t.Errorf("assemble code = %v, want %v", code, connect.CodeInvalidArgument)
	}

	_, err = client.Execute(bg(), &ExecuteRequest{Code: mustAssemble(t, ".l\njmp l")})
	if code := connect.CodeOf(err); code != connect.CodeResourceExhausted {
		t.Errorf("execute code = %v, want %v", code, connect.CodeResourceExhausted)
	}
}
