package main

import (
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/artvm/assembler"
	"github.com/chazu/artvm/host"
	"github.com/chazu/artvm/pkg/objfile"
)

// loadProgram reads a container file, or assembles path when it ends in
// ".asm".
func loadProgram(path string) (*assembler.Program, error) {
	if strings.EqualFold(filepath.Ext(path), ".asm") {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		prog, err := host.Assemble(string(src))
		if err != nil {
			return nil, fmt.Errorf("%s:%w", path, err)
		}
		return prog, nil
	}

	f, err := objfile.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return f.Program(), nil
}

// codeHash returns the hex SHA-256 of code, the key benchmark history is
// grouped by.
func codeHash(code []byte) string {
	sum := sha256.Sum256(code)
	return hex.EncodeToString(sum[:])
}

// interspersed parses fs over args, allowing flags after positional
// arguments, and returns the positional arguments.
func interspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return positional, nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}
