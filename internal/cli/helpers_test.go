package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const layersManifest = `package plans

plan: layer: {
	state: {
		w: {shape: [2], data: [0.5, -1.0], param: true}
		b: {shape: [1], data: [0.1]}
	}
}

plan: model: {
	state: scale: {shape: [1], data: [2.0]}
	nested: ["layer"]
	reads: 2
}
`

// writeManifest creates a manifest directory holding the layers plans.
func writeManifest(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "plans")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plans.cue"), []byte(layersManifest), 0644))
	return dir
}

// writeConfig creates a config file with sequential identities.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "planstate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("id_prefix: ph\n"+extra), 0644))
	return path
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// decodeData unmarshals the data field of a JSON CLIResponse into v.
func decodeData(t *testing.T, out string, v any) string {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	if v != nil && len(resp.Data) > 0 {
		require.NoError(t, json.Unmarshal(resp.Data, v))
	}
	return resp.Status
}
