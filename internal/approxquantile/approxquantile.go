// Package approxquantile provides diagnostic tooling that sits alongside
// the exact rolling quantile engine rather than on its hot path: an
// approximate, unbounded-window estimator for drift comparisons, and a
// harness for driving several independent pipelines concurrently.
//
// Nothing here participates in Monitor.Update; the engine's Non-goals
// explicitly exclude sketch quantiles from the core algorithm.
package approxquantile

import (
	"context"
	"math"

	"github.com/influxdata/tdigest"
	"golang.org/x/sync/errgroup"

	"github.com/streamquantile/rollingquantiles"
)

// Estimator tracks an approximate quantile over an unbounded stream using a
// t-digest. Unlike a Monitor, it never forgets a sample, so it is only
// useful as a coarse drift diagnostic against an exact, windowed Pipeline,
// not as a replacement for one.
type Estimator struct {
	quantile float64
	digest   *tdigest.TDigest
	count    uint
}

// NewEstimator returns an Estimator tracking the given quantile (in [0, 1])
// with a t-digest of standard compression.
func NewEstimator(quantile float64) *Estimator {
	return &Estimator{quantile: quantile, digest: tdigest.NewWithCompression(100)}
}

// Add records a sample and returns the estimator's current value. A NaN
// sample is ignored, matching a Monitor's "no sample this step" semantics.
func (e *Estimator) Add(x float64) float64 {
	if !math.IsNaN(x) {
		e.digest.Add(x, 1)
		e.count++
	}
	return e.Value()
}

// Value returns the current estimate, or NaN before any sample has arrived.
func (e *Estimator) Value() float64 {
	if e.count == 0 {
		return math.NaN()
	}
	return e.digest.Quantile(e.quantile)
}

// Count returns the number of non-NaN samples observed.
func (e *Estimator) Count() uint { return e.count }

// AccuracyReport summarizes how far an Estimator's unwindowed sketch
// drifted from an exact Pipeline's windowed output across a run.
type AccuracyReport struct {
	MeanAbsoluteError float64
	MaxAbsoluteError  float64
	Samples           int
}

// CompareAccuracy feeds samples through an exact Pipeline and an
// approximate Estimator in lockstep, reporting the drift between the two.
// The comparison is inherently apples-to-oranges once the pipeline's window
// starts expiring samples the sketch still remembers; this is a diagnostic
// on sketch drift, not a correctness check on the exact pipeline.
func CompareAccuracy(p rollingquantiles.Pipeline, estimator *Estimator, samples []float64) AccuracyReport {
	var report AccuracyReport
	for _, x := range samples {
		exact := p.Feed(x)
		approx := estimator.Add(x)
		if math.IsNaN(exact) || math.IsNaN(approx) {
			continue
		}
		diff := math.Abs(exact - approx)
		report.MeanAbsoluteError += diff
		if diff > report.MaxAbsoluteError {
			report.MaxAbsoluteError = diff
		}
		report.Samples++
	}
	if report.Samples > 0 {
		report.MeanAbsoluteError /= float64(report.Samples)
	}
	return report
}

// RunConcurrentPipelines drives n independently-built Pipelines over the
// same sample sequence concurrently, exercising spec.md §5's claim that
// independent pipelines require no coordination between them: each
// goroutine only ever touches the one Pipeline it built.
func RunConcurrentPipelines(ctx context.Context, n int, build func() (rollingquantiles.Pipeline, error), samples []float64) ([]float64, error) {
	results := make([]float64, n)
	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			p, err := build()
			if err != nil {
				return err
			}
			var last float64
			for _, x := range samples {
				last = p.Feed(x)
			}
			results[i] = last
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
