package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("E020", "unknown field \"colour\" on Resource", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.Equal(t, "E020", resp.Error.Code)
	assert.Equal(t, `unknown field "colour" on Resource`, resp.Error.Message)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"file": "alerts.yaml", "field": "sort"}
	err := formatter.Error("E010", "invalid ordering", details)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("AlertDefinition#1")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "AlertDefinition#1")
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error("E020", "unknown field \"colour\" on Resource", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E020]")
	assert.Contains(t, buf.String(), `unknown field "colour"`)
	assert.NotContains(t, buf.String(), "Details:")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	details := map[string]string{"file": "alerts.yaml"}
	err := formatter.Error("E010", "entity is required", details)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E010]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("Loaded request for %s", "Resource")

			if tt.wantLog {
				assert.Contains(t, buf.String(), "Loaded request for Resource")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestOutputFormatter_VerboseLogUsesErrWriter(t *testing.T) {
	out, diag := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: true}

	formatter.VerboseLog("opening %s", "demo.db")
	assert.Empty(t, out.String())
	assert.Equal(t, "opening demo.db\n", diag.String())
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Fail(ExitCommandError, ErrCodeDatabase, errors.New("connection refused"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "E030")
	assert.Contains(t, buf.String(), "Error [E030]: connection refused")
}

// brokenWriter fails every write.
type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestOutputFormatter_FailReportsWriteError(t *testing.T) {
	for _, format := range []string{"text", "json"} {
		t.Run(format, func(t *testing.T) {
			formatter := &OutputFormatter{Format: format, Writer: brokenWriter{}}

			err := formatter.Fail(ExitCommandError, ErrCodeDatabase, errors.New("connection refused"))
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), "E030: connection refused")
			assert.Contains(t, err.Error(), "write error output: broken pipe")
		})
	}
}

func TestOutputFormatter_TextErrorWriteFails(t *testing.T) {
	formatter := &OutputFormatter{Format: "text", Writer: brokenWriter{}}
	assert.EqualError(t, formatter.Error("E020", "bad", nil), "broken pipe")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitFailure, ErrCodePhantomRead, errors.New("inconsistent")))
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
	assert.Equal(t, "outer: E032: inconsistent", wrapped.Error())
}

func TestCLIResponse_FetchID(t *testing.T) {
	data, err := json.Marshal(CLIResponse{Status: "ok", FetchID: "fetch-1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","fetch_id":"fetch-1"}`, string(data))

	data, err = json.Marshal(CLIResponse{Status: "ok"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))
}
