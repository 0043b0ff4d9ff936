package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/planstate/internal/ir"
	"github.com/roach88/planstate/internal/manifest"
	"github.com/roach88/planstate/internal/metrics"
	"github.com/roach88/planstate/internal/plan"
	"github.com/roach88/planstate/internal/tensor"
)

// CaptureOptions holds flags for the capture command.
type CaptureOptions struct {
	*RootOptions
	Plan     string
	Args     []string // "id=1,2.5"
	Output   string
	Database string
	Worker   string
}

// CaptureResult summarizes one capture.
type CaptureResult struct {
	Plan     string           `json:"plan"`
	Worker   string           `json:"worker"`
	Digest   string           `json:"digest"`
	State    int              `json:"state"`
	Nested   int              `json:"nested"`
	VarCount int              `json:"var_count"`
	Outputs  []float64        `json:"outputs"`
	File     string           `json:"file,omitempty"`
	Saved    bool             `json:"saved"`
	Metrics  []metrics.Sample `json:"metrics,omitempty"`
}

func (r CaptureResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Captured plan %s on %s\n", r.Plan, r.Worker)
	fmt.Fprintf(&b, "  digest:   %s\n", r.Digest)
	fmt.Fprintf(&b, "  state:    %d placeholders (%d nested states)\n", r.State, r.Nested)
	fmt.Fprintf(&b, "  outputs:  %v\n", r.Outputs)
	if r.File != "" {
		fmt.Fprintf(&b, "  written:  %s\n", r.File)
	}
	if r.Saved {
		fmt.Fprintf(&b, "  saved to database\n")
	}
	for _, s := range r.Metrics {
		fmt.Fprintf(&b, "  %s %g\n", s.Name, s.Value)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewCaptureCommand creates the capture command.
func NewCaptureCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CaptureOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "capture <manifest-dir>",
		Short: "Build a plan and serialize its state",
		Long: `Build a plan declared in a CUE manifest and write its canonical document.

Building traces the plan: every nested plan state read during the trace is
promoted into the plan's state, so the document carries it.

Without --output the document is printed to stdout.

Examples:
  planstate capture ./plans --plan model
  planstate capture ./plans --plan model --arg x=1,2 -o model.json
  planstate capture ./plans --plan model --db ./planstate.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Plan, "plan", "", "plan to build (required)")
	_ = cmd.MarkFlagRequired("plan")
	cmd.Flags().StringArrayVar(&opts.Args, "arg", nil, "argument tensor as id=v1,v2,... (repeatable)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the document to this file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "save the document in this SQLite database")
	cmd.Flags().StringVar(&opts.Worker, "worker", "", "worker id (default from config)")

	return cmd
}

func runCapture(opts *CaptureOptions, manifestDir string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	f := opts.formatter(cmd)

	args, err := parseTensorArgs(opts.Args)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "invalid --arg", err)
	}

	m, err := manifest.Load(manifestDir)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeManifest, "failed to load manifest", err)
	}
	f.VerboseLog("Loaded %d plans from %d files", len(m.Plans), m.FileCount)

	dbPath := opts.database(opts.Database)
	e, err := openEnv(ctx, opts.RootOptions, cmd, dbPath, opts.workerID(opts.Worker))
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer e.Close()
	w := e.worker

	plans, err := manifest.Instantiate(w, opts.Config.IDs(), m)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeManifest, "failed to instantiate plans", err)
	}
	p, ok := plans[opts.Plan]
	if !ok {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("plan %q not declared in %s", opts.Plan, manifestDir), nil)
	}

	out, err := p.Build(ctx, args...)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeBuild, fmt.Sprintf("failed to build plan %s", opts.Plan), err)
	}

	data, err := w.Codec().Marshal(w, p)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeGeneric, "failed to serialize plan", err)
	}

	result := CaptureResult{
		Plan:     p.Name(),
		Worker:   w.ID(),
		State:    p.State().Len(),
		Nested:   len(p.NestedStates()),
		VarCount: p.VarCount(),
		Outputs:  outputValues(out),
	}
	if dbPath != "" {
		result.Digest, err = w.SaveDocument(ctx, p.Name(), data)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, "failed to save document", err)
		}
		result.Saved = true
	} else {
		result.Digest, err = ir.StateDigest(data)
		if err != nil {
			return f.Fail(ExitFailure, ErrCodeGeneric, "failed to digest document", err)
		}
	}

	if opts.Output == "" {
		if _, err := cmd.OutOrStdout().Write(append(data, '\n')); err != nil {
			return err
		}
		f.VerboseLog("%s", result)
		return nil
	}

	if err := os.WriteFile(opts.Output, data, 0644); err != nil {
		return f.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to write document", err)
	}
	result.File = opts.Output
	if opts.Verbose {
		result.Metrics = e.metrics()
	}
	return f.Success(result)
}

// parseTensorArgs parses "id=v1,v2,..." into 1-D tensors.
func parseTensorArgs(specs []string) ([]plan.Value, error) {
	values := make([]plan.Value, 0, len(specs))
	for _, spec := range specs {
		id, list, ok := strings.Cut(spec, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("%q: want id=v1,v2,...", spec)
		}
		var data []float64
		if list != "" {
			for _, field := range strings.Split(list, ",") {
				v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
				if err != nil {
					return nil, fmt.Errorf("%q: %w", spec, err)
				}
				data = append(data, v)
			}
		}
		t, err := tensor.New(ir.ID(id), []int{len(data)}, data)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", spec, err)
		}
		values = append(values, t)
	}
	return values, nil
}

func outputValues(values []plan.Value) []float64 {
	out := []float64{}
	for _, v := range values {
		if t, ok := v.(*tensor.Tensor); ok {
			out = append(out, t.Data()...)
		}
	}
	return out
}
