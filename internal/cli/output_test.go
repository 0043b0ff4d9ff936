package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/planstate/internal/manifest"
)

// decoded mirrors CLIResponse with concrete Data and Details.
type decoded struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func jsonFormatter() (*OutputFormatter, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &OutputFormatter{Format: "json", Writer: out}, out
}

func decode(t *testing.T, out *bytes.Buffer) decoded {
	t.Helper()
	var d decoded
	require.NoError(t, json.Unmarshal(out.Bytes(), &d), "output: %s", out.String())
	return d
}

func TestOutputFormatter_JSONEnvelope(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f, out := jsonFormatter()
		require.NoError(t, f.Success(CaptureResult{Plan: "model", State: 1}))

		d := decode(t, out)
		assert.Equal(t, "ok", d.Status)
		assert.Nil(t, d.Error)
		assert.Contains(t, string(d.Data), `"plan":"model"`)
	})

	t.Run("error without details", func(t *testing.T) {
		f, out := jsonFormatter()
		require.NoError(t, f.Error(ErrCodeManifest, "manifest failed to load", nil))

		d := decode(t, out)
		assert.Equal(t, "error", d.Status)
		require.NotNil(t, d.Error)
		assert.Equal(t, ErrCodeManifest, d.Error.Code)
		assert.Equal(t, "manifest failed to load", d.Error.Message)
		assert.Empty(t, d.Error.Details)
		assert.Empty(t, d.Data)
	})

	t.Run("error with details", func(t *testing.T) {
		f, out := jsonFormatter()
		require.NoError(t, f.Error(ErrCodeManifest, "bad tensor", ErrorDetails{Cause: "shape mismatch"}))

		d := decode(t, out)
		require.NotNil(t, d.Error)
		assert.JSONEq(t, `{"cause":"shape mismatch"}`, string(d.Error.Details))
	})
}

func TestOutputFormatter_Text(t *testing.T) {
	cases := []struct {
		name    string
		verbose bool
		call    func(f *OutputFormatter) error
		want    []string
		notWant []string
	}{
		{
			name: "success uses String",
			call: func(f *OutputFormatter) error {
				return f.Success(TestResult{})
			},
			want: []string{"No scenarios found."},
		},
		{
			name: "error",
			call: func(f *OutputFormatter) error {
				return f.Error(ErrCodeManifest, "manifest failed to load", ErrorDetails{Cause: "eof"})
			},
			want:    []string{"Error [" + ErrCodeManifest + "]: manifest failed to load"},
			notWant: []string{"Details:"},
		},
		{
			name:    "verbose error shows details",
			verbose: true,
			call: func(f *OutputFormatter) error {
				return f.Error(ErrCodeManifest, "manifest failed to load", ErrorDetails{Cause: "eof", Position: "m.cue:3:1"})
			},
			want: []string{"Details: eof (at m.cue:3:1)"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			f := &OutputFormatter{Format: "text", Writer: out, Verbose: tc.verbose}
			require.NoError(t, tc.call(f))
			for _, s := range tc.want {
				assert.Contains(t, out.String(), s)
			}
			for _, s := range tc.notWant {
				assert.NotContains(t, out.String(), s)
			}
		})
	}
}

func TestOutputFormatter_TextErrorGoesToErrWriter(t *testing.T) {
	out, diag := &bytes.Buffer{}, &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: out, ErrWriter: diag, Verbose: true}

	require.NoError(t, f.Error(ErrCodeNotFound, "path not found", nil))
	f.VerboseLog("opened %s", "states.db")

	assert.Empty(t, out.String())
	assert.Contains(t, diag.String(), "Error ["+ErrCodeNotFound+"]: path not found")
	assert.Contains(t, diag.String(), "opened states.db")
}

func TestOutputFormatter_VerboseLogQuiet(t *testing.T) {
	out := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: out}
	f.VerboseLog("opened %s", "states.db")
	assert.Zero(t, out.Len())
}

func TestOutputFormatter_Fail(t *testing.T) {
	f, out := jsonFormatter()

	cause := errors.New("no such table")
	err := f.Fail(ExitCommandError, ErrCodeStore, "failed to open database", cause)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, cause)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, ErrCodeStore, exitErr.ErrCode)

	d := decode(t, out)
	require.NotNil(t, d.Error)
	assert.Equal(t, ErrCodeStore, d.Error.Code)

	var details ErrorDetails
	require.NoError(t, json.Unmarshal(d.Error.Details, &details))
	assert.Equal(t, "no such table", details.Cause)
	assert.Empty(t, details.ManifestCode)
}

func TestOutputFormatter_FailManifestPosition(t *testing.T) {
	f, out := jsonFormatter()

	_, loadErr := manifest.LoadString("bad.cue", "plan: m: state: w: {shape: [2], data: [1]}\n")
	require.Error(t, loadErr)

	require.Error(t, f.Fail(ExitCommandError, ErrCodeManifest, "failed to load manifest", loadErr))

	d := decode(t, out)
	require.NotNil(t, d.Error)
	var details ErrorDetails
	require.NoError(t, json.Unmarshal(d.Error.Details, &details))
	assert.Equal(t, manifest.ErrCodeInvalidState, details.ManifestCode)
	assert.Contains(t, details.Position, "bad.cue:1:")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))
	wrapped := fmt.Errorf("outer: %w", NewExitError(ExitFailure, "inner"))
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
}
