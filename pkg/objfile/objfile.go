// Package objfile reads and writes assembled programs as CBOR container
// files (".avm"). A container carries the bytecode, its SHA-256 and,
// optionally, the label and line tables as debug symbols. Symbols never
// appear inside the code itself.
package objfile

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"

	"github.com/chazu/artvm/assembler"
	"github.com/fxamacker/cbor/v2"
)

const (
	// Magic identifies a container file.
	Magic = "AVM1"

	// Version is the container format version written by this package.
	Version = 1

	// Ext is the conventional file extension.
	Ext = ".avm"
)

var (
	ErrBadMagic     = errors.New("objfile: not an artvm container")
	ErrVersion      = errors.New("objfile: unsupported version")
	ErrHashMismatch = errors.New("objfile: code hash mismatch")
)

// File is the container layout.
type File struct {
	Magic   string            `cbor:"1,keyasint"`
	Version uint              `cbor:"2,keyasint"`
	Code    []byte            `cbor:"3,keyasint"`
	Hash    [32]byte          `cbor:"4,keyasint"`
	Labels  map[string]uint32 `cbor:"5,keyasint,omitempty"`
	Lines   map[uint32]uint32 `cbor:"6,keyasint,omitempty"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("objfile: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// FromProgram builds a container for an assembled program.
func FromProgram(p *assembler.Program) *File {
	f := &File{Magic: Magic, Version: Version, Code: p.Code, Hash: sha256.Sum256(p.Code)}
	if len(p.Labels) > 0 {
		f.Labels = make(map[string]uint32, len(p.Labels))
		for name, off := range p.Labels {
			f.Labels[name] = uint32(off)
		}
	}
	if len(p.Lines) > 0 {
		f.Lines = make(map[uint32]uint32, len(p.Lines))
		for off, line := range p.Lines {
			f.Lines[uint32(off)] = uint32(line)
		}
	}
	return f
}

// Program converts the container back into a Program.
func (f *File) Program() *assembler.Program {
	p := &assembler.Program{
		Code:   f.Code,
		Labels: make(map[string]int, len(f.Labels)),
		Lines:  make(map[int]int, len(f.Lines)),
	}
	for name, off := range f.Labels {
		p.Labels[name] = int(off)
	}
	for off, line := range f.Lines {
		p.Lines[int(off)] = int(line)
	}
	return p
}

// Marshal serializes a container in canonical CBOR.
func Marshal(f *File) ([]byte, error) {
	return cborEncMode.Marshal(f)
}

// Unmarshal deserializes a container and verifies its magic, version and hash.
func Unmarshal(data []byte) (*File, error) {
	var f File
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("objfile: unmarshal: %w", err)
	}
	if f.Magic != Magic {
		return nil, ErrBadMagic
	}
	if f.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, f.Version)
	}
	if sum := sha256.Sum256(f.Code); !bytes.Equal(sum[:], f.Hash[:]) {
		return nil, ErrHashMismatch
	}
	return &f, nil
}

// WriteFile writes p to path as a container.
func WriteFile(path string, p *assembler.Program) error {
	data, err := Marshal(FromProgram(p))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadFile reads and verifies a container.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}
