// Package server exposes artvm over the network: a Connect RPC service for
// the four host operations, and a language server for assembly source.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("artvm.server")

// Service limits applied when no option overrides them.
const (
	DefaultStepBudget    = 10_000_000
	DefaultMaxIterations = 10_000
	DefaultOutputLimit   = 1 << 20
	DefaultMaxMemorySize = 1 << 20 // cells
	DefaultMaxStackDepth = 1 << 16
)

// Server serves the MachineService over HTTP. Connect, gRPC-Web and gRPC
// clients are all accepted by the underlying handlers.
type Server struct {
	service *MachineService
	mux     *http.ServeMux
	http    *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	stepBudget    uint64
	maxIterations int
	outputLimit   int
	maxMemory     int
	maxStack      int
}

// WithStepBudget sets the per-run step budget for Execute and Benchmark.
// Zero keeps the default.
func WithStepBudget(n uint64) ServerOption {
	return func(c *serverConfig) {
		if n > 0 {
			c.stepBudget = n
		}
	}
}

// WithMaxIterations caps the iteration count a Benchmark request may ask for.
func WithMaxIterations(n int) ServerOption {
	return func(c *serverConfig) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

// WithOutputLimit caps the bytes of INT output returned by Execute.
func WithOutputLimit(n int) ServerOption {
	return func(c *serverConfig) {
		if n > 0 {
			c.outputLimit = n
		}
	}
}

// WithMaxMemorySize caps the memory size an Execute request may ask for.
func WithMaxMemorySize(n int) ServerOption {
	return func(c *serverConfig) {
		if n > 0 {
			c.maxMemory = n
		}
	}
}

// WithMaxStackDepth caps the stack depth an Execute request may ask for.
func WithMaxStackDepth(n int) ServerOption {
	return func(c *serverConfig) {
		if n > 0 {
			c.maxStack = n
		}
	}
}

// New creates a Server.
func New(opts ...ServerOption) *Server {
	cfg := &serverConfig{
		stepBudget:    DefaultStepBudget,
		maxIterations: DefaultMaxIterations,
		outputLimit:   DefaultOutputLimit,
		maxMemory:     DefaultMaxMemorySize,
		maxStack:      DefaultMaxStackDepth,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &Server{
		service: NewMachineService(cfg),
		mux:     http.NewServeMux(),
	}

	path, handler := NewMachineServiceHandler(s.service,
		connect.WithInterceptors(logRequests()))
	s.mux.Handle(path, handler)

	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe starts the HTTP server on the given address ("host:port"
// or ":port"). It returns nil after Stop.
func (s *Server) ListenAndServe(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Infof("artvm server listening on %s", addr)
	log.Infof("  Connect (CBOR): http://%s%s", addr, MachineServiceExecuteProcedure)

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the server down, waiting up to five seconds for in-flight
// requests.
func (s *Server) Stop() error {
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func logRequests() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			if err != nil {
				log.Infof("%s from %s: %s after %s", req.Spec().Procedure, req.Peer().Addr, connect.CodeOf(err), time.Since(start))
			} else {
				log.Infof("%s from %s: ok in %s", req.Spec().Procedure, req.Peer().Addr, time.Since(start))
			}
			return resp, err
		}
	}
}
