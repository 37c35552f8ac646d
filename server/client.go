package server

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// MachineServiceClient calls a remote MachineService.
type MachineServiceClient struct {
	assemble    *connect.Client[AssembleRequest, AssembleResponse]
	disassemble *connect.Client[DisassembleRequest, DisassembleResponse]
	execute     *connect.Client[ExecuteRequest, ExecuteResponse]
	benchmark   *connect.Client[BenchmarkRequest, BenchmarkResponse]
}

// NewMachineServiceClient creates a client for the service at baseURL
// (for example "http://localhost:4567"). Requests use the CBOR codec.
func NewMachineServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *MachineServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(cborCodec{})}, opts...)
	return &MachineServiceClient{
		assemble: connect.NewClient[AssembleRequest, AssembleResponse](
			httpClient, baseURL+MachineServiceAssembleProcedure, opts...),
		disassemble: connect.NewClient[DisassembleRequest, DisassembleResponse](
			httpClient, baseURL+MachineServiceDisassembleProcedure, opts...),
		execute: connect.NewClient[ExecuteRequest, ExecuteResponse](
			httpClient, baseURL+MachineServiceExecuteProcedure, opts...),
		benchmark: connect.NewClient[BenchmarkRequest, BenchmarkResponse](
			httpClient, baseURL+MachineServiceBenchmarkProcedure, opts...),
	}
}

// Assemble calls artvm.v1.MachineService.Assemble.
func (c *MachineServiceClient) Assemble(ctx context.Context, req *AssembleRequest) (*AssembleResponse, error) {
	resp, err := c.assemble.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Disassemble calls artvm.v1.MachineService.Disassemble.
func (c *MachineServiceClient) Disassemble(ctx context.Context, req *DisassembleRequest) (*DisassembleResponse, error) {
	resp, err := c.disassemble.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Execute calls artvm.v1.MachineService.Execute.
func (c *MachineServiceClient) Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error) {
	resp, err := c.execute.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Benchmark calls artvm.v1.MachineService.Benchmark.
func (c *MachineServiceClient) Benchmark(ctx context.Context, req *BenchmarkRequest) (*BenchmarkResponse, error) {
	resp, err := c.benchmark.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
