// artvm CLI - assemble, run, benchmark and debug artvm programs
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tebeka/atexit"
	"github.com/tliron/commonlog"

	"github.com/chazu/artvm/manifest"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("artvm")

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1 // usage, assembly or load errors
	exitFaulted = 2 // the program ran and faulted
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output (info logging)")
	debug := flag.Bool("vv", false, "Debug logging, including per-step VM traces")
	configDir := flag.String("C", ".", "Directory to start the artvm.toml search from")

	flag.Usage = usage
	flag.Parse()

	m, err := loadManifest(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", manifest.FileName, err)
		atexit.Exit(exitFailure)
	}

	verbosity := m.Log.Verbosity
	if *verbose && verbosity < 1 {
		verbosity = 1
	}
	if *debug {
		verbosity = 2
	}
	commonlog.Configure(verbosity, m.LogPath())
	if m.Dir != "" {
		log.Debugf("using configuration from %s", m.Dir)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		atexit.Exit(exitFailure)
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "assemble":
		handleAssembleCommand(rest)
	case "exe":
		handleExeCommand(rest, m, *debug)
	case "benchmark":
		handleBenchmarkCommand(rest, m)
	case "dbg":
		handleDbgCommand(rest)
	case "disasm":
		handleDisasmCommand(rest)
	case "debug":
		handleDebugCommand(rest, m)
	case "serve":
		handleServeCommand(rest, m)
	case "lsp":
		handleLspCommand(rest)
	case "help", "-h", "--help":
		flag.Usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		flag.Usage()
		atexit.Exit(exitFailure)
	}
	atexit.Exit(exitOK)
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: artvm [options] <command> [args]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  assemble <src> <out>       Assemble source into a %s container\n", ".avm")
	fmt.Fprintf(os.Stderr, "  exe <file>                 Run a program and report how it exited\n")
	fmt.Fprintf(os.Stderr, "  benchmark <file> [-n N]    Time N runs (fastest/slowest/median/average)\n")
	fmt.Fprintf(os.Stderr, "  benchmark --history [file] Show recorded benchmark runs\n")
	fmt.Fprintf(os.Stderr, "  dbg <file>                 Dump raw machine code bytes\n")
	fmt.Fprintf(os.Stderr, "  disasm <file>              Disassemble with label annotations\n")
	fmt.Fprintf(os.Stderr, "  debug <file>               Interactive stepper\n")
	fmt.Fprintf(os.Stderr, "  serve [--addr host:port]   Start the RPC service\n")
	fmt.Fprintf(os.Stderr, "  lsp                        Start the assembly language server on stdio\n")
	fmt.Fprintf(os.Stderr, "\nFiles ending in .asm are assembled on the fly.\n")
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
}

// loadManifest finds artvm.toml from dir upward, falling back to defaults
// rooted at dir.
func loadManifest(dir string) (*manifest.Manifest, error) {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default(dir)
	}
	return m, nil
}

// fail prints an error and exits with code.
func fail(code int, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	atexit.Exit(code)
}
