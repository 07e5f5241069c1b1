// Package rollingquantiles implements a streaming, exact rolling-quantile
// filter engine: an ordered chain of cascades, each tracking a positional
// statistic over a fixed window of recent samples via two complementary
// heaps partitioned around a pivot.
//
// The package exposes only pipeline-level operations. The heap, age-queue,
// and single-stage monitor machinery that makes this work lives under
// internal/ and is not part of this module's public surface.
package rollingquantiles

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/streamquantile/rollingquantiles/internal/cascade"
	"github.com/streamquantile/rollingquantiles/internal/monitor"
)

// Mode selects whether a stage reports its quantile directly (LowPass) or
// the residual between a raw sample and it (HighPass).
type Mode = cascade.Mode

const (
	LowPass  = cascade.LowPass
	HighPass = cascade.HighPass
)

// Interpolation describes the (q, alpha, beta) blend used to report a
// quantile between two live samples rather than snapping to one of them. A
// zero Q value is a real, valid interpolation target; use NoInterpolation
// for the "report the pivot as-is" sentinel.
type Interpolation = monitor.Interpolation

// NoInterpolation returns the sentinel Interpolation meaning "no blending:
// report the tracked rank's value directly."
func NoInterpolation() Interpolation { return monitor.NoInterpolation() }

// StageDescriptor configures one stage of a Pipeline.
type StageDescriptor struct {
	Window        uint
	Portion       uint
	SubsampleRate uint
	Mode          Mode
	Interpolation Interpolation
}

// ErrNoStages reports an attempt to build a pipeline with zero stages.
var ErrNoStages = errors.New("rollingquantiles: pipeline needs at least one stage")

// ConstructionError reports why building a Pipeline was rejected, naming
// the 0-based index of the offending stage descriptor.
type ConstructionError struct {
	Stage int
	Err   error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("rollingquantiles: stage %d: %v", e.Stage, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// Pipeline trickles samples through an ordered chain of cascades.
type Pipeline interface {
	// Feed pushes one sample through every stage in order, returning the
	// final stage's output, or NaN if any stage's subsample clock did not
	// fire this step.
	Feed(x float64) float64
	// FeedSlice feeds a slice of samples through the pipeline in order,
	// returning one output per input.
	FeedSlice(xs []float64) []float64
	// Stride is the number of raw inputs between two consecutive non-NaN
	// outputs of the final stage, once warmed up: the product of every
	// stage's subsample rate.
	Stride() uint
	// Lag estimates the number of raw inputs between an input sample and
	// the first output that reflects it, accounting for every stage's
	// window and the compounding effect of upstream subsampling.
	Lag() float64
	// Verify reports whether every stage's internal invariants currently
	// hold. Intended as a diagnostic; never called on the hot path.
	Verify() bool
}

type pipeline struct {
	stages []*cascade.Cascade
	stride uint
	lag    float64
	logger *slog.Logger
}

// Builder configures and constructs a Pipeline.
type Builder interface {
	// WithLogger attaches a logger used for debug-level construction and
	// diagnostic messages; nil (the default) disables all logging.
	WithLogger(logger *slog.Logger) Builder
	// Build validates every stage descriptor and constructs the pipeline,
	// rejecting the whole thing before anything is allocated if any stage
	// is invalid.
	Build(descriptors ...StageDescriptor) (Pipeline, error)
}

type builder struct {
	logger *slog.Logger
}

// NewBuilder returns a Builder with no logger configured.
func NewBuilder() Builder { return &builder{} }

func (b *builder) WithLogger(logger *slog.Logger) Builder {
	b.logger = logger
	return b
}

func (b *builder) Build(descriptors ...StageDescriptor) (Pipeline, error) {
	return newPipeline(descriptors, b.logger)
}

// New builds a Pipeline directly from stage descriptors, with no logger
// configured. Equivalent to NewBuilder().Build(descriptors...).
func New(descriptors ...StageDescriptor) (Pipeline, error) {
	return newPipeline(descriptors, nil)
}

func toCascadeDescriptor(d StageDescriptor) cascade.Descriptor {
	return cascade.Descriptor{
		Window:        d.Window,
		Portion:       d.Portion,
		SubsampleRate: d.SubsampleRate,
		Mode:          d.Mode,
		Interpolation: d.Interpolation,
	}
}

func newPipeline(descriptors []StageDescriptor, logger *slog.Logger) (Pipeline, error) {
	if len(descriptors) == 0 {
		return nil, ErrNoStages
	}

	// Validate every stage before allocating any of them.
	for i, d := range descriptors {
		if err := cascade.Validate(toCascadeDescriptor(d)); err != nil {
			return nil, &ConstructionError{Stage: i, Err: err}
		}
	}

	stages := make([]*cascade.Cascade, len(descriptors))
	var stride uint = 1
	var lag float64
	for i, d := range descriptors {
		c, err := cascade.New(toCascadeDescriptor(d))
		if err != nil {
			// Unreachable given the pre-validation pass above, but kept so
			// a future divergence between Validate and New fails loudly
			// instead of silently constructing a half-built pipeline.
			return nil, &ConstructionError{Stage: i, Err: err}
		}
		stages[i] = c
		lag += 0.5 * float64(d.Window) * float64(stride)
		stride *= d.SubsampleRate
	}

	if logger != nil && logger.Enabled(nil, slog.LevelDebug) {
		logger.Debug("rollingquantiles: pipeline built",
			"stages", len(stages), "stride", stride, "lag", lag)
	}

	return &pipeline{stages: stages, stride: stride, lag: lag, logger: logger}, nil
}

func (p *pipeline) Feed(x float64) float64 {
	trickle := x
	for _, stage := range p.stages {
		var fired bool
		trickle, fired = stage.Step(trickle)
		if !fired {
			return math.NaN()
		}
	}
	return trickle
}

func (p *pipeline) FeedSlice(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = p.Feed(x)
	}
	return out
}

func (p *pipeline) Stride() uint { return p.stride }

func (p *pipeline) Lag() float64 { return p.lag }

func (p *pipeline) Verify() bool {
	for i, stage := range p.stages {
		if !stage.Verify() {
			if p.logger != nil {
				p.logger.Warn("rollingquantiles: invariant check failed", "stage", i)
			}
			return false
		}
	}
	return true
}
