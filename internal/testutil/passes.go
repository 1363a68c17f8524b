// Package testutil provides deterministic helpers for compiler tests:
// scripted passes with controllable changed/error behavior and an
// in-memory pass-execution recorder.
package testutil

import (
	"errors"

	"github.com/cinder-ml/cinder/internal/ir"
	"github.com/cinder-ml/cinder/internal/pass"
)

// ScriptedPass replays a fixed sequence of (changed, err) results, one per
// Run call. After the script is exhausted it reports unchanged success.
type ScriptedPass struct {
	PassName string
	Script   []ScriptStep
	Calls    int
}

// ScriptStep is one scripted Run result.
type ScriptStep struct {
	Changed bool
	Err     error
}

// Name implements pass.Pass.
func (p *ScriptedPass) Name() string { return p.PassName }

// Run implements pass.Pass.
func (p *ScriptedPass) Run(*ir.Module) (bool, error) {
	step := ScriptStep{}
	if p.Calls < len(p.Script) {
		step = p.Script[p.Calls]
	}
	p.Calls++
	return step.Changed, step.Err
}

// ChangesOnce returns a pass that reports changed on its first run and
// unchanged afterwards - the well-behaved fixed-point citizen.
func ChangesOnce(name string) *ScriptedPass {
	return &ScriptedPass{PassName: name, Script: []ScriptStep{{Changed: true}}}
}

// AlwaysChanges returns a pass that reports changed forever - the
// pathological oscillator fixed-point caps exist for.
func AlwaysChanges(name string) *pathologicalPass {
	return &pathologicalPass{name: name}
}

type pathologicalPass struct {
	name  string
	Calls int
}

func (p *pathologicalPass) Name() string { return p.name }

func (p *pathologicalPass) Run(*ir.Module) (bool, error) {
	p.Calls++
	return true, nil
}

// FailsWith returns a pass that always fails with the given message.
func FailsWith(name, message string) pass.Pass {
	return &failingPass{name: name, err: errors.New(message)}
}

type failingPass struct {
	name string
	err  error
}

func (p *failingPass) Name() string { return p.name }

func (p *failingPass) Run(*ir.Module) (bool, error) { return false, p.err }

// Recorder is an in-memory pass.Observer.
type Recorder struct {
	Records []pass.Record
}

// PassRan implements pass.Observer.
func (r *Recorder) PassRan(rec pass.Record) {
	r.Records = append(r.Records, rec)
}

// PassNames returns the recorded pass names in execution order.
func (r *Recorder) PassNames() []string {
	names := make([]string, len(r.Records))
	for i, rec := range r.Records {
		names[i] = rec.Pass
	}
	return names
}
