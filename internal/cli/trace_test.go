package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinder-ml/cinder/internal/pass"
	"github.com/cinder-ml/cinder/internal/store"
)

// seedTrace records one compilation with two pass runs and returns the
// database path and compilation ID.
func seedTrace(t *testing.T) (string, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "traces.db")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	trace, err := st.BeginCompilation(context.Background(), "seeded", "fp", "gen9(gen9)")
	require.NoError(t, err)
	trace.PassRan(pass.Record{Pipeline: "p", Pass: "first", Seq: 0, Changed: true})
	trace.PassRan(pass.Record{Pipeline: "p", Pass: "second", Seq: 1})
	require.NoError(t, trace.Err())

	return dbPath, trace.ID()
}

func TestTraceListsCompilations(t *testing.T) {
	dbPath, id := seedTrace(t)

	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--db", dbPath})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), id)
	assert.Contains(t, buf.String(), "seeded")
}

func TestTraceShowsPassRuns(t *testing.T) {
	dbPath, id := seedTrace(t)

	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--id", id})

	require.NoError(t, cmd.Execute())
	output := buf.String()
	assert.Contains(t, output, "p/first")
	assert.Contains(t, output, "p/second")
}

func TestTraceUnknownID(t *testing.T) {
	dbPath, _ := seedTrace(t)

	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--id", "no-such-id"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "No pass runs found")
}

func TestTraceJSON(t *testing.T) {
	dbPath, id := seedTrace(t)

	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", dbPath, "--id", id})

	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	detail := resp.Data.(map[string]any)
	assert.Equal(t, id, detail["id"])
	runs := detail["pass_runs"].([]any)
	require.Len(t, runs, 2)
}

func TestTraceRequiresDB(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(nil)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db")
}
