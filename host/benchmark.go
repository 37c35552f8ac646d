package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/chazu/artvm/vm"
)

// DefaultIterations is the benchmark iteration count when none is given.
const DefaultIterations = 1000

// ErrBehaviorVariance is returned when benchmark iterations disagree on the
// exit condition.
var ErrBehaviorVariance = errors.New("exit condition differs between iterations")

// Stats summarizes benchmark timings.
type Stats struct {
	Iterations int
	Min        time.Duration
	Max        time.Duration
	Median     time.Duration
	Mean       time.Duration
	Exit       vm.ExitResult
}

// Benchmark runs code iterations times, each on a fresh machine sharing the
// same read-only code, and summarizes the wall-clock time of each run.
func Benchmark(ctx context.Context, code []byte, iterations int, opts Options) (*Stats, error) {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	if err := vm.Validate(code); err != nil {
		return nil, err
	}

	samples := make([]time.Duration, 0, iterations)
	var first vm.ExitResult
	for i := 0; i < iterations; i++ {
		m := vm.New(code, opts.machineOptions()...)

		start := time.Now()
		err := drive(ctx, m, opts.MaxSteps)
		elapsed := time.Since(start)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}

		exit := m.Exit()
		if i == 0 {
			first = exit
		} else if exit != first {
			return nil, fmt.Errorf("iteration %d: %w: %s, first run %s", i, ErrBehaviorVariance, exit, first)
		}
		samples = append(samples, elapsed)
	}

	stats := Summarize(samples)
	stats.Exit = first
	log.Infof("benchmark: %d iterations, median %s", stats.Iterations, stats.Median)
	return stats, nil
}

// Summarize computes min, max, median and mean of samples. The median of an
// even count is the mean of the two middle samples.
func Summarize(samples []time.Duration) *Stats {
	n := len(samples)
	if n == 0 {
		return &Stats{}
	}

	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, s := range sorted {
		total += s
	}

	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	return &Stats{
		Iterations: n,
		Min:        sorted[0],
		Max:        sorted[n-1],
		Median:     median,
		Mean:       total / time.Duration(n),
	}
}
