package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"

	"github.com/chazu/artvm/assembler"
	"github.com/chazu/artvm/host"
)

const (
	// MachineServiceName is the fully-qualified name of the service.
	MachineServiceName = "artvm.v1.MachineService"

	MachineServiceAssembleProcedure    = "/artvm.v1.MachineService/Assemble"
	MachineServiceDisassembleProcedure = "/artvm.v1.MachineService/Disassemble"
	MachineServiceExecuteProcedure     = "/artvm.v1.MachineService/Execute"
	MachineServiceBenchmarkProcedure   = "/artvm.v1.MachineService/Benchmark"
)

var errOutputLimit = errors.New("output limit exceeded")

// MachineService implements the four host operations over Connect. Every
// Execute and Benchmark request gets fresh machines; nothing is shared
// between requests except read-only configuration.
type MachineService struct {
	stepBudget    uint64
	maxIterations int
	outputLimit   int
	maxMemory     int
	maxStack      int
}

// NewMachineService creates a service with the given limits.
func NewMachineService(cfg *serverConfig) *MachineService {
	return &MachineService{
		stepBudget:    cfg.stepBudget,
		maxIterations: cfg.maxIterations,
		outputLimit:   cfg.outputLimit,
		maxMemory:     cfg.maxMemory,
		maxStack:      cfg.maxStack,
	}
}

// Assemble assembles source text.
func (s *MachineService) Assemble(
	ctx context.Context,
	req *connect.Request[AssembleRequest],
) (*connect.Response[AssembleResponse], error) {
	prog, err := host.Assemble(req.Msg.Source)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	resp := &AssembleResponse{Code: prog.Code}
	if len(prog.Labels) > 0 {
		resp.Labels = make(map[string]uint32, len(prog.Labels))
		for name, off := range prog.Labels {
			resp.Labels[name] = uint32(off)
		}
	}
	return connect.NewResponse(resp), nil
}

// Disassemble decodes bytecode. A decode error is reported in the response
// together with the records decoded before it.
func (s *MachineService) Disassemble(
	ctx context.Context,
	req *connect.Request[DisassembleRequest],
) (*connect.Response[DisassembleResponse], error) {
	if len(req.Msg.Code) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("code is required"))
	}

	records, err := host.Disassemble(req.Msg.Code)
	resp := &DisassembleResponse{Records: recordsToWire(records)}
	if err != nil {
		resp.Error = err.Error()
	}
	return connect.NewResponse(resp), nil
}

// Execute runs bytecode to completion under the step budget.
func (s *MachineService) Execute(
	ctx context.Context,
	req *connect.Request[ExecuteRequest],
) (*connect.Response[ExecuteResponse], error) {
	if err := s.checkResources(req.Msg); err != nil {
		return nil, err
	}

	out := &limitedBuffer{max: s.outputLimit}
	opts := host.Options{
		MemorySize: req.Msg.MemorySize,
		StackDepth: req.Msg.StackDepth,
		MaxSteps:   s.budget(req.Msg.MaxSteps),
		Output:     out,
	}

	exec, err := host.Execute(ctx, req.Msg.Code, opts)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&ExecuteResponse{
		Exit:      exitToWire(exec.Exit),
		Registers: exec.Final.Registers[:],
		Stack:     exec.Final.Stack,
		Output:    out.Bytes(),
		ElapsedNs: exec.Elapsed.Nanoseconds(),
	}), nil
}

// Benchmark runs bytecode repeatedly and summarizes the timings.
func (s *MachineService) Benchmark(
	ctx context.Context,
	req *connect.Request[BenchmarkRequest],
) (*connect.Response[BenchmarkResponse], error) {
	n := req.Msg.Iterations
	if n < 0 || (s.maxIterations > 0 && n > s.maxIterations) {
		return nil, connect.NewError(connect.CodeInvalidArgument,
			fmt.Errorf("iterations must be between 0 and %d", s.maxIterations))
	}

	stats, err := host.Benchmark(ctx, req.Msg.Code, n, host.Options{MaxSteps: s.stepBudget})
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&BenchmarkResponse{
		Iterations: stats.Iterations,
		MinNs:      stats.Min.Nanoseconds(),
		MaxNs:      stats.Max.Nanoseconds(),
		MedianNs:   stats.Median.Nanoseconds(),
		MeanNs:     stats.Mean.Nanoseconds(),
		Exit:       exitToWire(stats.Exit),
	}), nil
}

// budget caps a requested step count to the service budget.
func (s *MachineService) budget(requested uint64) uint64 {
	if requested == 0 || (s.stepBudget > 0 && requested > s.stepBudget) {
		return s.stepBudget
	}
	return requested
}

// checkResources rejects machine sizes outside the service limits. Zero asks
// for the machine defaults.
func (s *MachineService) checkResources(req *ExecuteRequest) error {
	if req.MemorySize < 0 || (s.maxMemory > 0 && req.MemorySize > s.maxMemory) {
		return connect.NewError(connect.CodeInvalidArgument,
			fmt.Errorf("memory size must be between 0 and %d", s.maxMemory))
	}
	if req.StackDepth < 0 || (s.maxStack > 0 && req.StackDepth > s.maxStack) {
		return connect.NewError(connect.CodeInvalidArgument,
			fmt.Errorf("stack depth must be between 0 and %d", s.maxStack))
	}
	return nil
}

func toConnectError(err error) error {
	var asmErr *assembler.Error
	switch {
	case errors.Is(err, host.ErrStepBudget):
		return connect.NewError(connect.CodeResourceExhausted, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, host.ErrBehaviorVariance):
		return connect.NewError(connect.CodeInternal, err)
	case errors.As(err, &asmErr):
		return connect.NewError(connect.CodeInvalidArgument, err)
	}
	// Remaining errors are load errors: the submitted code is unusable.
	return connect.NewError(connect.CodeInvalidArgument, err)
}

// NewMachineServiceHandler builds an HTTP handler serving every procedure
// of the service. It returns the path to mount the handler on.
func NewMachineServiceHandler(svc *MachineService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(cborCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(MachineServiceAssembleProcedure,
		connect.NewUnaryHandler(MachineServiceAssembleProcedure, svc.Assemble, opts...))
	mux.Handle(MachineServiceDisassembleProcedure,
		connect.NewUnaryHandler(MachineServiceDisassembleProcedure, svc.Disassemble, opts...))
	mux.Handle(MachineServiceExecuteProcedure,
		connect.NewUnaryHandler(MachineServiceExecuteProcedure, svc.Execute, opts...))
	mux.Handle(MachineServiceBenchmarkProcedure,
		connect.NewUnaryHandler(MachineServiceBenchmarkProcedure, svc.Benchmark, opts...))
	return "/" + MachineServiceName + "/", mux
}

// limitedBuffer collects program output up to max bytes. Writes past the
// limit fail, which faults the program with an Interrupt fault.
type limitedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.max > 0 && b.buf.Len()+len(p) > b.max {
		return 0, errOutputLimit
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) Bytes() []byte { return b.buf.Bytes() }
