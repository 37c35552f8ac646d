package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[machine]
memory-size = 4096
stack-depth = 64
max-steps = 1000000

[benchmark]
iterations = 50
history = ".artvm/history.db"

[log]
verbosity = 2
file = "artvm.log"

[server]
address = "127.0.0.1:9000"
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Machine.MemorySize != 4096 {
		t.Errorf("memory-size = %d, want 4096", m.Machine.MemorySize)
	}
	if m.Machine.StackDepth != 64 {
		t.Errorf("stack-depth = %d, want 64", m.Machine.StackDepth)
	}
	if m.Machine.MaxSteps != 1000000 {
		t.Errorf("max-steps = %d, want 1000000", m.Machine.MaxSteps)
	}
	if m.Benchmark.Iterations != 50 {
		t.Errorf("iterations = %d, want 50", m.Benchmark.Iterations)
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("verbosity = %d, want 2", m.Log.Verbosity)
	}
	if m.Server.Address != "127.0.0.1:9000" {
		t.Errorf("address = %q, want 127.0.0.1:9000", m.Server.Address)
	}

	absDir, _ := filepath.Abs(dir)
	if m.Dir != absDir {
		t.Errorf("Dir = %q, want %q", m.Dir, absDir)
	}
	if got, want := m.HistoryPath(), filepath.Join(absDir, ".artvm", "history.db"); got != want {
		t.Errorf("HistoryPath = %q, want %q", got, want)
	}
	if p := m.LogPath(); p == nil || *p != filepath.Join(absDir, "artvm.log") {
		t.Errorf("LogPath = %v", p)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("[machine]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Machine.MemorySize != DefaultMemorySize {
		t.Errorf("memory-size = %d, want %d", m.Machine.MemorySize, DefaultMemorySize)
	}
	if m.Machine.StackDepth != DefaultStackDepth {
		t.Errorf("stack-depth = %d, want %d", m.Machine.StackDepth, DefaultStackDepth)
	}
	if m.Machine.MaxSteps != 0 {
		t.Errorf("max-steps = %d, want 0", m.Machine.MaxSteps)
	}
	if m.Benchmark.Iterations != DefaultIterations {
		t.Errorf("iterations = %d, want %d", m.Benchmark.Iterations, DefaultIterations)
	}
	if m.Server.Address != DefaultAddress {
		t.Errorf("address = %q, want %q", m.Server.Address, DefaultAddress)
	}
	if m.HistoryPath() != "" {
		t.Errorf("HistoryPath = %q, want empty", m.HistoryPath())
	}
	if m.LogPath() != nil {
		t.Errorf("LogPath = %v, want nil", *m.LogPath())
	}
}

func TestLoadParseError(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("[machine\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Error("expected parse error")
	}
}

func TestFindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, FileName), []byte("[server]\naddress = \":1\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("expected manifest, got nil")
	}
	if m.Server.Address != ":1" {
		t.Errorf("address = %q, want :1", m.Server.Address)
	}
	absRoot, _ := filepath.Abs(root)
	if m.Dir != absRoot {
		t.Errorf("Dir = %q, want %q", m.Dir, absRoot)
	}
}

func TestDefault(t *testing.T) {
	m := Default("/tmp/x")
	if m.Dir != "/tmp/x" || m.Machine.MemorySize != DefaultMemorySize || m.Benchmark.Iterations != DefaultIterations {
		t.Errorf("Default = %+v", m)
	}
}
