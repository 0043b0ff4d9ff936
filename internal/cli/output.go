package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/planstate/internal/manifest"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Scenario failure or a document that does not decode
	ExitCommandError = 2 // Command error (invalid paths, unreadable database, etc.)
)

// ExitError is a command failure with the process exit code it maps to.
// ErrCode is the CLIError code it was reported under, if any.
type ExitError struct {
	Code    int
	ErrCode string
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code to err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code carried by err, or ExitFailure when
// err is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the envelope of every JSON result.
type CLIResponse struct {
	Status string      `json:"status"` // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`
	Error  *CLIError   `json:"error,omitempty"`
}

// CLIError describes a failed command.
type CLIError struct {
	Code    string      `json:"code"` // "E001", "E002", ...
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ErrorDetails is the Details payload Fail attaches for a cause.
// Manifest errors also carry their own code and CUE position.
type ErrorDetails struct {
	Cause        string `json:"cause"`
	ManifestCode string `json:"manifest_code,omitempty"`
	Position     string `json:"position,omitempty"`
}

func (d ErrorDetails) String() string {
	if d.Position != "" {
		return fmt.Sprintf("%s (at %s)", d.Cause, d.Position)
	}
	return d.Cause
}

func detailsOf(err error) *ErrorDetails {
	if err == nil {
		return nil
	}
	d := &ErrorDetails{Cause: err.Error()}
	var le *manifest.LoadError
	if errors.As(err, &le) {
		d.ManifestCode = le.Code
		if le.Pos.IsValid() {
			d.Position = le.Pos.String()
		}
	}
	return d
}

// OutputFormatter renders command results as text or as a JSON
// CLIResponse. Results go to Writer; text errors and verbose logs go to
// ErrWriter when it is set.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// Success writes data. In text mode data is printed with its String
// method, if it has one.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return f.writeJSON(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes a failure report. In JSON mode the report is the result,
// so it goes to Writer.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return f.writeJSON(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	w := f.diagnostics()
	if _, err := fmt.Fprintf(w, "Error [%s]: %s\n", code, message); err != nil {
		return err
	}
	if f.Verbose && details != nil {
		_, err := fmt.Fprintf(w, "Details: %v\n", details)
		return err
	}
	return nil
}

// Fail reports err under code and returns it as an ExitError carrying
// exitCode, ready to be returned from RunE.
func (f *OutputFormatter) Fail(exitCode int, code, message string, err error) error {
	var details interface{}
	if d := detailsOf(err); d != nil {
		details = d
	}
	if outErr := f.Error(code, message, details); outErr != nil {
		return outErr
	}
	return &ExitError{Code: exitCode, ErrCode: code, Message: message, Err: err}
}

// VerboseLog writes a diagnostic line when verbose mode is on.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.diagnostics(), format+"\n", args...)
}

func (f *OutputFormatter) writeJSON(resp CLIResponse) error {
	return json.NewEncoder(f.Writer).Encode(resp)
}

func (f *OutputFormatter) diagnostics() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
