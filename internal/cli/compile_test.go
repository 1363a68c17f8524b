package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validModuleText = `module cli_main {
  entry main {
    p0 = f32[4] parameter(0)
    zero = f32[4] constant(0 0 0 0)
    ROOT sum = f32[4] add(p0, zero)
  }
}
`

// writeModuleFile drops a parseable module into a temp dir and returns
// its path.
func writeModuleFile(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "module.txt")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestCompileWritesBinary(t *testing.T) {
	modulePath := writeModuleFile(t, validModuleText)
	outputPath := filepath.Join(t.TempDir(), "module.bin")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{modulePath, "-o", outputPath, "--device", "gen9"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ Compiled cli_main for gen9(gen9)")

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	// Payload starts with the little-endian magic word "CNDR".
	require.GreaterOrEqual(t, len(data), 4)
	assert.Equal(t, []byte{0x43, 0x4e, 0x44, 0x52}, data[:4])
}

func TestCompileJSONOutput(t *testing.T) {
	modulePath := writeModuleFile(t, validModuleText)
	outputPath := filepath.Join(t.TempDir(), "module.bin")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{modulePath, "-o", outputPath})

	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "cli_main", data["module"])
	assert.Equal(t, "xe_hpc(gen12)", data["device"])
	assert.NotEmpty(t, data["fingerprint"])
	assert.Greater(t, data["binary_size"], float64(0))
}

func TestCompileRecordsTrace(t *testing.T) {
	modulePath := writeModuleFile(t, validModuleText)
	tmpDir := t.TempDir()
	outputPath := filepath.Join(tmpDir, "module.bin")
	dbPath := filepath.Join(tmpDir, "traces.db")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{modulePath, "-o", outputPath, "--trace-db", dbPath})

	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	data := resp.Data.(map[string]any)
	traceID, _ := data["trace_id"].(string)
	require.NotEmpty(t, traceID)

	// The recorded trace is visible through the trace command.
	traceBuf := &bytes.Buffer{}
	traceCmd := NewTraceCommand(&RootOptions{Format: "text"})
	traceCmd.SetOut(traceBuf)
	traceCmd.SetErr(traceBuf)
	traceCmd.SetArgs([]string{"--db", dbPath, "--id", traceID})

	require.NoError(t, traceCmd.Execute())
	assert.Contains(t, traceBuf.String(), "conv-canonicalization/verifier")
}

func TestCompileNonExistentFile(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"/nonexistent/module.txt"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCompileUnknownDevice(t *testing.T) {
	modulePath := writeModuleFile(t, validModuleText)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{modulePath, "--device", "not_a_device"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "unknown device")
}

func TestCompileMalformedModule(t *testing.T) {
	modulePath := writeModuleFile(t, "module broken {\n")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{modulePath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestCanonicalizePrintsIR(t *testing.T) {
	modulePath := writeModuleFile(t, validModuleText)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCanonicalizeCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{modulePath})

	require.NoError(t, cmd.Execute())
	output := buf.String()
	assert.Contains(t, output, "module cli_main {")
	// The add-of-zero identity is simplified away.
	assert.NotContains(t, output, "add(")
	assert.Contains(t, output, "ROOT p0")
}

func TestCanonicalizeToFile(t *testing.T) {
	modulePath := writeModuleFile(t, validModuleText)
	outputPath := filepath.Join(t.TempDir(), "canonical.txt")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCanonicalizeCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{modulePath, "-o", outputPath})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ Canonicalized")

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "module cli_main {")
}
