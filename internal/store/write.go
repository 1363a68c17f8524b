package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/cinder-ml/cinder/internal/pass"
)

// BeginCompilation opens a trace for one compilation attempt and returns
// the recorder that collects its pass runs. The returned trace implements
// pass.Observer and can be attached to the compiler directly.
func (s *Store) BeginCompilation(ctx context.Context, moduleName, fingerprint, device string) (*Trace, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO compilations (id, module_name, fingerprint, device)
		VALUES (?, ?, ?, ?)
	`, id, moduleName, fingerprint, device)
	if err != nil {
		return nil, fmt.Errorf("begin compilation: %w", err)
	}
	return &Trace{store: s, id: id}, nil
}

// Trace records the pass runs of one compilation.
//
// PassRan has no error return (the observer contract keeps pipelines
// oblivious to tracing), so write failures are latched and surfaced via
// Err. A trace that failed to write stops recording; a partial trace with
// a latched error beats a silently incomplete one.
type Trace struct {
	store *Store
	id    string

	mu      sync.Mutex
	written int
	err     error
}

// ID returns the compilation's UUID.
func (t *Trace) ID() string { return t.id }

// PassRan implements pass.Observer.
func (t *Trace) PassRan(r pass.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return
	}

	var errText any
	if r.Err != nil {
		errText = r.Err.Error()
	}
	_, err := t.store.db.Exec(`
		INSERT INTO pass_runs (compilation_id, pipeline, pass, seq, changed, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.id, r.Pipeline, r.Pass, r.Seq, r.Changed, errText)
	if err != nil {
		t.err = fmt.Errorf("record pass run: %w", err)
		return
	}
	t.written++
}

// Err returns the first write failure, if any.
func (t *Trace) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Written returns the number of pass runs recorded so far.
func (t *Trace) Written() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written
}
