package server

import (
	"github.com/chazu/artvm/host"
	"github.com/chazu/artvm/vm"
)

// AssembleRequest carries assembly source.
type AssembleRequest struct {
	Source string `cbor:"1,keyasint"`
}

// AssembleResponse carries the assembled program.
type AssembleResponse struct {
	Code   []byte            `cbor:"1,keyasint"`
	Labels map[string]uint32 `cbor:"2,keyasint,omitempty"`
}

// DisassembleRequest carries raw bytecode.
type DisassembleRequest struct {
	Code []byte `cbor:"1,keyasint"`
}

// Record is one disassembled instruction.
type Record struct {
	Offset uint32 `cbor:"1,keyasint"`
	Size   uint32 `cbor:"2,keyasint"`
	Text   string `cbor:"3,keyasint"`
}

// DisassembleResponse lists the decoded instructions. Error is set when
// decoding stopped early; Records then holds the prefix decoded before it.
type DisassembleResponse struct {
	Records []Record `cbor:"1,keyasint"`
	Error   string   `cbor:"2,keyasint,omitempty"`
}

// ExecuteRequest runs bytecode on a fresh machine. A zero MaxSteps uses the
// server's step budget; larger values are capped to it.
type ExecuteRequest struct {
	Code       []byte `cbor:"1,keyasint"`
	MaxSteps   uint64 `cbor:"2,keyasint,omitempty"`
	MemorySize int    `cbor:"3,keyasint,omitempty"`
	StackDepth int    `cbor:"4,keyasint,omitempty"`
}

// Exit mirrors vm.ExitResult on the wire.
type Exit struct {
	State string `cbor:"1,keyasint"`
	Fault string `cbor:"2,keyasint,omitempty"`
	IP    uint32 `cbor:"3,keyasint"`
	Op    string `cbor:"4,keyasint,omitempty"`
	Steps uint64 `cbor:"5,keyasint"`
	Text  string `cbor:"6,keyasint"`
}

// ExecuteResponse reports the exit condition and final registers.
type ExecuteResponse struct {
	Exit      Exit    `cbor:"1,keyasint"`
	Registers []int64 `cbor:"2,keyasint"`
	Stack     []int64 `cbor:"3,keyasint,omitempty"`
	Output    []byte  `cbor:"4,keyasint,omitempty"`
	ElapsedNs int64   `cbor:"5,keyasint"`
}

// BenchmarkRequest benchmarks bytecode. Zero Iterations uses the default.
type BenchmarkRequest struct {
	Code       []byte `cbor:"1,keyasint"`
	Iterations int    `cbor:"2,keyasint,omitempty"`
}

// BenchmarkResponse carries the timing summary in nanoseconds.
type BenchmarkResponse struct {
	Iterations int   `cbor:"1,keyasint"`
	MinNs      int64 `cbor:"2,keyasint"`
	MaxNs      int64 `cbor:"3,keyasint"`
	MedianNs   int64 `cbor:"4,keyasint"`
	MeanNs     int64 `cbor:"5,keyasint"`
	Exit       Exit  `cbor:"6,keyasint"`
}

func exitToWire(r vm.ExitResult) Exit {
	e := Exit{
		State: r.State.String(),
		IP:    uint32(r.IP),
		Steps: r.Steps,
		Text:  r.String(),
	}
	if r.State == vm.Faulted {
		e.Fault = r.Fault.String()
		e.Op = r.Op.String()
	}
	return e
}

func recordsToWire(records []host.Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = Record{Offset: uint32(r.Offset), Size: uint32(r.Size), Text: r.Text}
	}
	return out
}
