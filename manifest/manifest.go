// Package manifest handles artvm.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "artvm.toml"

// Defaults applied after decoding.
const (
	DefaultMemorySize = 1024
	DefaultStackDepth = 1024
	DefaultIterations = 1000
	DefaultAddress    = ":4567"
)

// Manifest represents an artvm.toml configuration.
type Manifest struct {
	Machine   Machine   `toml:"machine"`
	Benchmark Benchmark `toml:"benchmark"`
	Log       Log       `toml:"log"`
	Server    Server    `toml:"server"`

	// Dir is the directory containing the artvm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Machine configures VM resource bounds.
type Machine struct {
	MemorySize int    `toml:"memory-size"`
	StackDepth int    `toml:"stack-depth"`
	MaxSteps   uint64 `toml:"max-steps"`
}

// Benchmark configures the benchmark command.
type Benchmark struct {
	Iterations int    `toml:"iterations"`
	History    string `toml:"history"` // SQLite path, relative to Dir; empty disables history
}

// Log configures logging.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Server configures the network service.
type Server struct {
	Address string `toml:"address"`
}

// Default returns a manifest with every default applied, rooted at dir.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Machine.MemorySize <= 0 {
		m.Machine.MemorySize = DefaultMemorySize
	}
	if m.Machine.StackDepth <= 0 {
		m.Machine.StackDepth = DefaultStackDepth
	}
	if m.Benchmark.Iterations <= 0 {
		m.Benchmark.Iterations = DefaultIterations
	}
	if m.Server.Address == "" {
		m.Server.Address = DefaultAddress
	}
}

// Load parses an artvm.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	return &m, nil
}

// FindAndLoad walks up from startDir to find an artvm.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// HistoryPath returns the absolute benchmark history path, or "" when
// history is disabled.
func (m *Manifest) HistoryPath() string {
	if m.Benchmark.History == "" {
		return ""
	}
	if filepath.IsAbs(m.Benchmark.History) {
		return m.Benchmark.History
	}
	return filepath.Join(m.Dir, m.Benchmark.History)
}

// LogPath returns the log file path, or nil to log to stderr.
func (m *Manifest) LogPath() *string {
	if m.Log.File == "" {
		return nil
	}
	path := m.Log.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.Dir, path)
	}
	return &path
}
