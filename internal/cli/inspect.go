package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/planstate/internal/plan"
	"github.com/roach88/planstate/internal/store"
	"github.com/roach88/planstate/internal/worker"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Database string
	Worker   string
}

// StateEntry is one saved document.
type StateEntry struct {
	Digest string `json:"digest"`
	Label  string `json:"label"`
	Kind   string `json:"kind"`
	Worker string `json:"worker"`
	Seq    int64  `json:"seq"`
	Size   int    `json:"size"`
}

// ObjectEntry is one registry row.
type ObjectEntry struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Seq  int64  `json:"seq"`
}

// InspectResult lists the database contents, or one document's slots.
type InspectResult struct {
	States  []StateEntry  `json:"states,omitempty"`
	Worker  string        `json:"worker,omitempty"`
	Objects []ObjectEntry `json:"objects,omitempty"`
	Slots   []SlotSummary `json:"slots,omitempty"`
}

func (r InspectResult) String() string {
	var b strings.Builder
	if r.Slots != nil {
		for _, s := range r.Slots {
			fmt.Fprintf(&b, "%s %v -> %s\n", s.Placeholder, s.Tags, s.Value)
		}
		return strings.TrimRight(b.String(), "\n")
	}
	fmt.Fprintf(&b, "States (%d):\n", len(r.States))
	for _, s := range r.States {
		fmt.Fprintf(&b, "  [%d] %s %-5s %s by %s (%d bytes)\n", s.Seq, s.Digest, s.Kind, s.Label, s.Worker, s.Size)
	}
	fmt.Fprintf(&b, "Objects on %s (%d):\n", r.Worker, len(r.Objects))
	for _, o := range r.Objects {
		fmt.Fprintf(&b, "  [%d] %s %s\n", o.Seq, o.ID, o.Kind)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect [digest]",
		Short: "List saved documents and registered objects",
		Long: `List the documents saved in a database and the objects registered by a
worker. Given a digest, decode that document and print its state slots.

The database is never modified.

Examples:
  planstate inspect --db ./planstate.db
  planstate inspect --db ./planstate.db --worker bob
  planstate inspect --db ./planstate.db 3f9a...e1`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			digest := ""
			if len(args) == 1 {
				digest = args[0]
			}
			return runInspect(opts, digest, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Worker, "worker", "", "worker whose objects are listed (default from config)")

	return cmd
}

func runInspect(opts *InspectOptions, digest string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	f := opts.formatter(cmd)

	dbPath := opts.database(opts.Database)
	if dbPath == "" {
		return f.Fail(ExitCommandError, ErrCodeNotFound, "no database: pass --db or set db in the config file", nil)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	if digest != "" {
		rec, err := st.ReadState(ctx, digest)
		if errors.Is(err, store.ErrNotFound) {
			return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("no document %s", digest), err)
		}
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, "failed to read document", err)
		}

		// A storeless worker, so decoding registers nothing in the database.
		w := worker.New(opts.workerID(opts.Worker), worker.WithLogger(opts.logger(cmd.ErrOrStderr())))
		v, err := w.Codec().Unmarshal(w, rec.Wire)
		if err != nil {
			return f.Fail(ExitFailure, ErrCodeDecode, fmt.Sprintf("failed to decode %s", digest), err)
		}
		result := InspectResult{Slots: []SlotSummary{}}
		switch x := v.(type) {
		case *plan.State:
			result.Slots = slotSummaries(x)
		case *plan.Plan:
			result.Slots = slotSummaries(x.State())
		}
		return f.Success(result)
	}

	recs, err := st.ListStates(ctx)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to list documents", err)
	}
	workerID := opts.workerID(opts.Worker)
	objs, err := st.ListObjects(ctx, workerID)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to list objects", err)
	}

	result := InspectResult{
		States:  make([]StateEntry, len(recs)),
		Worker:  workerID,
		Objects: make([]ObjectEntry, len(objs)),
	}
	for i, r := range recs {
		result.States[i] = StateEntry{
			Digest: r.Digest,
			Label:  r.Label,
			Kind:   r.Kind,
			Worker: r.WorkerID,
			Seq:    r.Seq,
			Size:   len(r.Wire),
		}
	}
	for i, o := range objs {
		result.Objects[i] = ObjectEntry{ID: o.ID.String(), Kind: o.Kind, Seq: o.Seq}
	}
	return f.Success(result)
}
