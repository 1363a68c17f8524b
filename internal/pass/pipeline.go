package pass

import (
	"errors"
	"log/slog"

	"github.com/cinder-ml/cinder/internal/ir"
)

// Pipeline is an ordered, named sequence of passes executed once per Run.
//
// INVARIANTS:
//   - Execution order is exactly insertion order. No reordering, no
//     parallelism within one pipeline.
//   - The first failing pass aborts the run; later passes never execute.
//     Prior passes' mutations are NOT rolled back.
//
// Pipeline itself implements Pass, so pipelines nest and FixedPoint can
// wrap one.
type Pipeline struct {
	name     string
	passes   []Pass
	observer Observer
	logger   *slog.Logger
}

// Option configures a pipeline.
type Option func(*Pipeline)

// WithObserver attaches a pass-execution observer (e.g. the trace store).
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithLogger attaches a logger for per-pass debug output.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline creates an empty pipeline.
func NewPipeline(name string, opts ...Option) *Pipeline {
	p := &Pipeline{name: name, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Add appends passes in execution order and returns the pipeline for
// chaining.
func (p *Pipeline) Add(passes ...Pass) *Pipeline {
	p.passes = append(p.passes, passes...)
	return p
}

// Name implements Pass.
func (p *Pipeline) Name() string { return p.name }

// Len returns the number of contained passes.
func (p *Pipeline) Len() int { return len(p.passes) }

// Run executes each pass in order against the module.
//
// Returns the OR of all changed flags on full success. On failure the
// returned error is a *PipelineError identifying this pipeline and the
// failing pass; the aggregate changed flag up to that point is returned
// alongside it so fixed-point callers can account for partial progress.
func (p *Pipeline) Run(m *ir.Module) (bool, error) {
	changed := false
	for i, ps := range p.passes {
		passChanged, err := ps.Run(m)
		changed = changed || passChanged

		if p.observer != nil {
			p.observer.PassRan(Record{
				Pipeline: p.name,
				Pass:     ps.Name(),
				Seq:      i,
				Changed:  passChanged,
				Err:      err,
			})
		}

		if err != nil {
			return changed, p.wrapPassError(ps, i, err)
		}
		p.logger.Debug("pass complete",
			"pipeline", p.name, "pass", ps.Name(), "changed", passChanged)
	}
	return changed, nil
}

// wrapPassError tags a pass failure with this pipeline's identity. Errors
// already carrying pipeline identity (nested pipelines, fixed points) pass
// through untouched so the innermost pipeline is the one reported.
func (p *Pipeline) wrapPassError(ps Pass, index int, err error) error {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return err
	}
	code := ErrCodePassFailed
	var ve ir.VerifyError
	if errors.As(err, &ve) {
		code = ErrCodeVerifyFailed
	}
	return &PipelineError{
		Code:     code,
		Pipeline: p.name,
		Pass:     ps.Name(),
		Index:    index,
		Err:      err,
	}
}
