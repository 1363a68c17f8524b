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

func TestDevicesListsBuiltins(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewDevicesCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(nil)

	require.NoError(t, cmd.Execute())
	output := buf.String()
	assert.Contains(t, output, "gen9")
	assert.Contains(t, output, "xe_hpc")
	assert.Contains(t, output, "fused-attention")
}

func TestDevicesJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewDevicesCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(nil)

	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	devices, ok := resp.Data.([]any)
	require.True(t, ok)
	require.NotEmpty(t, devices)

	first := devices[0].(map[string]any)
	assert.NotEmpty(t, first["name"])
	assert.Greater(t, first["generation"], float64(0))
}

func TestDevicesExtraCatalog(t *testing.T) {
	extra := filepath.Join(t.TempDir(), "site.cue")
	require.NoError(t, os.WriteFile(extra, []byte(`
devices: site_special: {generation: 13, fused_conv: true}
`), 0o644))

	buf := &bytes.Buffer{}
	cmd := NewDevicesCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--catalog", extra})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "site_special")
}

func TestDevicesBrokenCatalog(t *testing.T) {
	extra := filepath.Join(t.TempDir(), "broken.cue")
	require.NoError(t, os.WriteFile(extra, []byte(`devices: bad: {generation: "nope"}`), 0o644))

	buf := &bytes.Buffer{}
	cmd := NewDevicesCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--catalog", extra})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
