package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/tebeka/atexit"

	"github.com/chazu/artvm/history"
	"github.com/chazu/artvm/host"
	"github.com/chazu/artvm/manifest"
	"github.com/chazu/artvm/pkg/bytecode"
	"github.com/chazu/artvm/pkg/objfile"
	"github.com/chazu/artvm/server"
	"github.com/chazu/artvm/vm"
)

// handleAssembleCommand processes `artvm assemble <src> <out>`.
func handleAssembleCommand(args []string) {
	if len(args) != 2 {
		fail(exitFailure, "usage: artvm assemble <src> <out>")
	}
	src, out := args[0], args[1]

	text, err := os.ReadFile(src)
	if err != nil {
		fail(exitFailure, "%v", err)
	}

	start := time.Now()
	prog, err := host.Assemble(string(text))
	if err != nil {
		fail(exitFailure, "%s:%v", src, err)
	}
	elapsed := time.Since(start)

	if err := objfile.WriteFile(out, prog); err != nil {
		fail(exitFailure, "writing %s: %v", out, err)
	}
	log.Infof("assembled %s in %s", src, elapsed)
	fmt.Printf("Assembled %s -> %s (%d bytes, %d labels) in %s\n",
		src, out, len(prog.Code), len(prog.Labels), elapsed)
}

// handleExeCommand processes `artvm exe <file>`. A faulted program exits
// with exitFaulted.
func handleExeCommand(args []string, m *manifest.Manifest, trace bool) {
	if len(args) != 1 {
		fail(exitFailure, "usage: artvm exe <file>")
	}
	prog, err := loadProgram(args[0])
	if err != nil {
		fail(exitFailure, "%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	exec, err := host.Execute(ctx, prog.Code, host.Options{
		MemorySize: m.Machine.MemorySize,
		StackDepth: m.Machine.StackDepth,
		MaxSteps:   m.Machine.MaxSteps,
		Output:     os.Stdout,
		Trace:      trace,
	})
	if err != nil {
		if exec == nil {
			fail(exitFailure, "%v", err)
		}
		fail(exitFailure, "%v (%s)", err, exec.Exit)
	}

	fmt.Printf("%s after %d steps in %s\n", exec.Exit, exec.Exit.Steps, exec.Elapsed)
	if exec.Exit.State == vm.Faulted {
		if line := prog.LineFor(exec.Exit.IP); line > 0 {
			fmt.Fprintf(os.Stderr, "fault in %s at source line %d\n", exec.Exit.Op, line)
		}
		atexit.Exit(exitFaulted)
	}
}

// handleBenchmarkCommand processes `artvm benchmark <file> [-n N]` and
// `artvm benchmark --history [file]`.
func handleBenchmarkCommand(args []string, m *manifest.Manifest) {
	fs := flag.NewFlagSet("benchmark", flag.ExitOnError)
	n := fs.Int("n", m.Benchmark.Iterations, "Number of iterations")
	showHistory := fs.Bool("history", false, "Print recorded runs instead of benchmarking")
	limit := fs.Int("limit", 10, "Number of runs printed by --history")

	files, err := interspersed(fs, args)
	if err != nil {
		fail(exitFailure, "%v", err)
	}

	var store *history.Store
	if path := m.HistoryPath(); path != "" {
		store, err = history.Open(path)
		if err != nil {
			fail(exitFailure, "%v", err)
		}
		atexit.Register(func() { store.Close() })
	}

	if *showHistory {
		if store == nil {
			fail(exitFailure, "no [benchmark] history configured in %s", manifest.FileName)
		}
		printHistory(store, files, *limit)
		return
	}

	if len(files) != 1 {
		fail(exitFailure, "usage: artvm benchmark <file> [-n N]")
	}
	prog, err := loadProgram(files[0])
	if err != nil {
		fail(exitFailure, "%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stats, err := host.Benchmark(ctx, prog.Code, *n, host.Options{
		MemorySize: m.Machine.MemorySize,
		StackDepth: m.Machine.StackDepth,
		MaxSteps:   m.Machine.MaxSteps,
	})
	if err != nil {
		fail(exitFailure, "%v", err)
	}

	fmt.Printf("%s %s (%d iterations)\n", titleStyle.Render("benchmark"), files[0], stats.Iterations)
	fmt.Printf("  fastest: %s µs\n", micros(stats.Min))
	fmt.Printf("  slowest: %s µs\n", micros(stats.Max))
	fmt.Printf("  median:  %s µs\n", micros(stats.Median))
	fmt.Printf("  average: %s µs\n", micros(stats.Mean))
	fmt.Printf("  exit:    %s\n", stats.Exit)

	if store != nil {
		run, err := store.Record(ctx, history.Run{
			Program:    files[0],
			CodeHash:   codeHash(prog.Code),
			Iterations: stats.Iterations,
			Min:        stats.Min,
			Max:        stats.Max,
			Median:     stats.Median,
			Mean:       stats.Mean,
			Exit:       stats.Exit.String(),
		})
		if err != nil {
			fail(exitFailure, "%v", err)
		}
		log.Infof("recorded benchmark run %s in %s", run.ID, store.Path())
	}
}

// micros formats d in microseconds with nanosecond precision.
func micros(d time.Duration) string {
	return strconv.FormatFloat(float64(d)/float64(time.Microsecond), 'f', 3, 64)
}

func printHistory(store *history.Store, files []string, limit int) {
	ctx := context.Background()
	var runs []history.Run
	var err error
	if len(files) > 0 {
		prog, lerr := loadProgram(files[0])
		if lerr != nil {
			fail(exitFailure, "%v", lerr)
		}
		runs, err = store.ForCode(ctx, codeHash(prog.Code), limit)
	} else {
		runs, err = store.Recent(ctx, limit)
	}
	if err != nil {
		fail(exitFailure, "%v", err)
	}
	if len(runs) == 0 {
		fmt.Println("No recorded runs.")
		return
	}
	fmt.Println(historyTable(runs))
}

func historyTable(runs []history.Run) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(offsetStyle).
		Headers("WHEN", "PROGRAM", "N", "FASTEST µs", "MEDIAN µs", "AVERAGE µs", "SLOWEST µs", "EXIT")
	for _, r := range runs {
		t.Row(
			r.RecordedAt.Format(time.DateTime),
			r.Program,
			strconv.Itoa(r.Iterations),
			micros(r.Min),
			micros(r.Median),
			micros(r.Mean),
			micros(r.Max),
			r.Exit,
		)
	}
	return t.String()
}

// handleDbgCommand processes `artvm dbg <file>`: a hex dump of the raw code.
func handleDbgCommand(args []string) {
	if len(args) != 1 {
		fail(exitFailure, "usage: artvm dbg <file>")
	}
	prog, err := loadProgram(args[0])
	if err != nil {
		fail(exitFailure, "%v", err)
	}
	fmt.Print(hex.Dump(prog.Code))
	fmt.Printf("%d bytes, sha256 %s\n", len(prog.Code), codeHash(prog.Code))
}

// handleDisasmCommand processes `artvm disasm <file>`.
func handleDisasmCommand(args []string) {
	if len(args) != 1 {
		fail(exitFailure, "usage: artvm disasm <file>")
	}
	prog, err := loadProgram(args[0])
	if err != nil {
		fail(exitFailure, "%v", err)
	}

	listing := bytecode.ListingWithLabels(prog.Code, prog.Labels)
	if isTerminal(os.Stdout) {
		listing = styleListing(listing)
	}
	fmt.Print(listing)
}

// handleServeCommand processes `artvm serve [--addr host:port]`.
func handleServeCommand(args []string, m *manifest.Manifest) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", m.Server.Address, "Listen address")
	if err := fs.Parse(args); err != nil {
		fail(exitFailure, "%v", err)
	}

	srv := server.New(
		server.WithStepBudget(m.Machine.MaxSteps),
		server.WithMaxMemorySize(m.Machine.MemorySize),
		server.WithMaxStackDepth(m.Machine.StackDepth),
	)
	atexit.Register(func() { srv.Stop() })

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt)
		<-sig
		srv.Stop()
	}()

	if err := srv.ListenAndServe(*addr); err != nil {
		fail(exitFailure, "server: %v", err)
	}
}

// handleLspCommand processes `artvm lsp`.
func handleLspCommand(args []string) {
	if len(args) != 0 {
		fail(exitFailure, "usage: artvm lsp")
	}
	if err := server.NewLSP().Run(); err != nil && !errors.Is(err, os.ErrClosed) {
		fail(exitFailure, "lsp: %v", err)
	}
}
