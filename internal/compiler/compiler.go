// Package compiler orchestrates device compilation: the convolution
// canonicalization pipeline, the post-layout-assignment rewrites around
// the shared base pipeline, and final binary assembly with optional
// operator-supplied IR overrides.
//
// A Compiler is explicitly constructed and dependency-injected; there is
// no process-wide instance. Callers that want one compiler per process
// own that registration themselves.
package compiler

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/cinder-ml/cinder/internal/codegen"
	"github.com/cinder-ml/cinder/internal/device"
	"github.com/cinder-ml/cinder/internal/ir"
	"github.com/cinder-ml/cinder/internal/pass"
)

// Default target description carried to code generation.
const (
	DefaultTriple     = "spir64-unknown-unknown"
	DefaultDataLayout = "e-i64:64-v16:16-v24:32-v32:32-v48:64-" +
		"v96:128-v192:256-v256:256-v512:512-v1024:1024"
)

// TargetConfig names the code generation target.
type TargetConfig struct {
	Triple     string
	DataLayout string
}

// CompileOptions are per-compilation settings. This core forwards them to
// the shared base pipeline without inspecting them.
type CompileOptions struct {
	// SkipExpensivePasses asks the base pipeline for a faster, less
	// optimized compilation.
	SkipExpensivePasses bool
}

// Pool is an opaque worker pool the base pipeline may use for parallel
// sub-compilations. Never scheduled on directly by this package.
type Pool interface {
	Go(func())
}

// BasePipeline is the shared post-layout-assignment routine common to all
// backends. Its failure is propagated verbatim.
type BasePipeline interface {
	RunPostLayoutAssignment(m *ir.Module, exec device.Executor, opts CompileOptions, target TargetConfig, pool Pool) error
}

// nopBasePipeline is the default delegation target: structural
// compilation without a backend attached.
type nopBasePipeline struct{}

func (nopBasePipeline) RunPostLayoutAssignment(*ir.Module, device.Executor, CompileOptions, TargetConfig, Pool) error {
	return nil
}

// Compiler drives target-specific optimization and binary assembly.
type Compiler struct {
	generator codegen.Generator
	base      BasePipeline
	observer  pass.Observer
	logger    *slog.Logger
	target    TargetConfig

	// fatalf terminates the process. Injectable so tests can observe the
	// escalation without dying.
	fatalf func(format string, args ...any)
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithGenerator injects the device code generator.
func WithGenerator(g codegen.Generator) Option {
	return func(c *Compiler) { c.generator = g }
}

// WithBasePipeline injects the shared base pipeline delegation target.
func WithBasePipeline(b BasePipeline) Option {
	return func(c *Compiler) { c.base = b }
}

// WithObserver attaches a pass-execution observer to every pipeline the
// compiler builds.
func WithObserver(o pass.Observer) Option {
	return func(c *Compiler) { c.observer = o }
}

// WithLogger sets the compiler's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) { c.logger = l }
}

// WithTargetConfig overrides the default triple and data layout.
func WithTargetConfig(t TargetConfig) Option {
	return func(c *Compiler) { c.target = t }
}

// WithFatalHandler overrides process termination on a broken override
// setup. Test use only.
func WithFatalHandler(f func(format string, args ...any)) Option {
	return func(c *Compiler) { c.fatalf = f }
}

// New constructs a Compiler. Without options it uses the reference kernel
// generator, a no-op base pipeline, and the default target config.
func New(opts ...Option) *Compiler {
	c := &Compiler{
		generator: codegen.NewKernelGenerator(),
		base:      nopBasePipeline{},
		logger:    slog.Default(),
		target:    TargetConfig{Triple: DefaultTriple, DataLayout: DefaultDataLayout},
	}
	c.fatalf = func(format string, args ...any) {
		c.logger.Error(fmt.Sprintf(format, args...))
		os.Exit(1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Target returns the code generation target description.
func (c *Compiler) Target() TargetConfig { return c.target }

// pipelineOptions are the options every compiler-built pipeline carries.
func (c *Compiler) pipelineOptions() []pass.Option {
	opts := []pass.Option{pass.WithLogger(c.logger)}
	if c.observer != nil {
		opts = append(opts, pass.WithObserver(c.observer))
	}
	return opts
}
