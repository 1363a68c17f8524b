package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinder-ml/cinder/internal/device"
	"github.com/cinder-ml/cinder/internal/ir"
	"github.com/cinder-ml/cinder/internal/pass"
	"github.com/cinder-ml/cinder/internal/store"
	"github.com/cinder-ml/cinder/internal/testutil"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestStore_OpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.db")

	s1, err := store.Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := store.Open(path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestTrace_RecordsPassRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	trace, err := s.BeginCompilation(ctx, "conv_main", "abc123", "xe_hpc(gen12)")
	require.NoError(t, err)
	require.NoError(t, uuid.Validate(trace.ID()))

	trace.PassRan(pass.Record{Pipeline: "p", Pass: "a", Seq: 0, Changed: true})
	trace.PassRan(pass.Record{Pipeline: "p", Pass: "b", Seq: 1})
	trace.PassRan(pass.Record{Pipeline: "p", Pass: "c", Seq: 2, Err: errors.New("graph is malformed")})
	require.NoError(t, trace.Err())
	assert.Equal(t, 3, trace.Written())

	runs, err := s.PassRuns(ctx, trace.ID())
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "a", runs[0].Pass)
	assert.True(t, runs[0].Changed)
	assert.Empty(t, runs[0].Error)
	assert.False(t, runs[1].Changed)
	assert.Equal(t, "graph is malformed", runs[2].Error)
	assert.Equal(t, 2, runs[2].Seq)
}

func TestStore_CompilationsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.BeginCompilation(ctx, "first", "f1", "gen9(gen9)")
	require.NoError(t, err)
	_, err = s.BeginCompilation(ctx, "second", "f2", "gen9(gen9)")
	require.NoError(t, err)

	all, err := s.Compilations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	limited, err := s.Compilations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

// The trace plugs into a pipeline as its observer and captures the runs
// of a real compilation.
func TestTrace_ObservesPipeline(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m := ir.NewModule("observed")
	c := ir.NewComputation("main")
	m.AddComputation(c)
	c.Root = c.Add(&ir.Instruction{Name: "p0", Op: ir.OpParameter, Shape: ir.MakeShape(ir.F32, 2)})

	trace, err := s.BeginCompilation(ctx, m.Name, ir.Fingerprint(m), device.Capability{Name: "gen9", Generation: 9}.String())
	require.NoError(t, err)

	p := pass.NewPipeline("traced", pass.WithObserver(trace)).Add(
		testutil.ChangesOnce("x"),
		&testutil.ScriptedPass{PassName: "y"},
	)
	_, err = p.Run(m)
	require.NoError(t, err)
	require.NoError(t, trace.Err())

	runs, err := s.PassRuns(ctx, trace.ID())
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "traced", runs[0].Pipeline)
	assert.Equal(t, []string{"x", "y"}, []string{runs[0].Pass, runs[1].Pass})
}

// Compile-time check that a trace satisfies the observer contract the
// compiler expects.
var _ pass.Observer = (*store.Trace)(nil)
