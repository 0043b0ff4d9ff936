package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/planstate/internal/ir"
	"github.com/roach88/planstate/internal/plan"
	"github.com/roach88/planstate/internal/serde"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions
	Database string
	Worker   string
}

// SlotSummary describes one state placeholder.
type SlotSummary struct {
	Placeholder ir.ID    `json:"placeholder"`
	Tags        []string `json:"tags"`
	Value       ir.ID    `json:"value"`
}

// LoadResult summarizes one decoded document.
type LoadResult struct {
	Kind       string        `json:"kind"`
	Digest     string        `json:"digest"`
	Worker     string        `json:"worker"`
	Plan       string        `json:"plan,omitempty"`
	Slots      []SlotSummary `json:"slots"`
	Registered int           `json:"registered"`
	Saved      bool          `json:"saved"`
}

func (r LoadResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Loaded %s %s onto %s", r.Kind, r.Digest, r.Worker)
	if r.Plan != "" {
		fmt.Fprintf(&b, " (plan %s)", r.Plan)
	}
	b.WriteByte('\n')
	for _, s := range r.Slots {
		fmt.Fprintf(&b, "  %s %v -> %s\n", s.Placeholder, s.Tags, s.Value)
	}
	fmt.Fprintf(&b, "  %d objects registered", r.Registered)
	return b.String()
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "load <document>",
		Short: "Decode a state or plan document onto a worker",
		Long: `Decode a document written by capture onto a worker.

Every value in the document is registered on the worker under its own
identity and bound to the placeholder at the same position. With --db the
registrations and the document are persisted.

Exit codes:
  0 - Document decoded
  1 - Document is malformed
  2 - Command error (unreadable file, database error)

Examples:
  planstate load model.json
  planstate load model.json --worker bob --db ./planstate.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "persist registrations in this SQLite database")
	cmd.Flags().StringVar(&opts.Worker, "worker", "", "worker id (default from config)")

	return cmd
}

func runLoad(opts *LoadOptions, path string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	f := opts.formatter(cmd)

	data, err := os.ReadFile(path)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeNotFound, "failed to read document", err)
	}
	kind, err := serde.Kind(data)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeDecode, "not a planstate document", err)
	}

	dbPath := opts.database(opts.Database)
	e, err := openEnv(ctx, opts.RootOptions, cmd, dbPath, opts.workerID(opts.Worker))
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer e.Close()
	w := e.worker

	v, err := w.Codec().Unmarshal(w, data)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeDecode, fmt.Sprintf("failed to decode %s", path), err)
	}

	result := LoadResult{Kind: kind, Worker: w.ID()}
	switch x := v.(type) {
	case *plan.State:
		result.Slots = slotSummaries(x)
	case *plan.Plan:
		result.Plan = x.Name()
		result.Slots = slotSummaries(x.State())
	}

	if dbPath != "" {
		result.Digest, err = w.SaveDocument(ctx, filepath.Base(path), data)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, "failed to save document", err)
		}
		result.Saved = true
	} else if result.Digest, err = ir.StateDigest(data); err != nil {
		return f.Fail(ExitFailure, ErrCodeDecode, "failed to digest document", err)
	}
	result.Registered = len(w.Objects())

	return f.Success(result)
}

func slotSummaries(s *plan.State) []SlotSummary {
	phs := s.Placeholders()
	out := make([]SlotSummary, len(phs))
	for i, ph := range phs {
		out[i] = SlotSummary{Placeholder: ph.ID(), Tags: ph.Tags().Strings()}
		if v, ok := ph.Value(); ok {
			out[i].Value = v.ID()
		}
	}
	return out
}
