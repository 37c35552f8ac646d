package server

import (
	"context"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"

	"github.com/chazu/artvm/assembler"
)

func bg() context.Context { return context.Background() }

func connectReq[T any](msg *T) *connect.Request[T] {
	return connect.NewRequest(msg)
}

func newTestService(opts ...ServerOption) *MachineService {
	return New(opts...).service
}

// newTestClient starts an httptest server and returns a client for it.
func newTestClient(t *testing.T, opts ...ServerOption) *MachineServiceClient {
	t.Helper()
	srv := httptest.NewServer(New(opts...).Handler())
	t.Cleanup(srv.Close)
	return NewMachineServiceClient(srv.Client(), srv.URL)
}

func mustAssemble(t *testing.T, src string) []byte {
	t.Helper()
	prog, err := assembler.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	return prog.Code
}
