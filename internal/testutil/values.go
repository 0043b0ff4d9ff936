package testutil

import (
	"io"
	"log/slog"
	"testing"

	"github.com/roach88/planstate/internal/ir"
	"github.com/roach88/planstate/internal/tensor"
)

// Vec creates a 1-D tensor holding data, failing the test on error.
func Vec(t testing.TB, id string, data ...float64) *tensor.Tensor {
	t.Helper()
	v, err := tensor.New(ir.ID(id), []int{len(data)}, data)
	if err != nil {
		t.Fatalf("tensor %s: %v", id, err)
	}
	return v
}

// Param creates a 1-D trainable tensor holding data.
func Param(t testing.TB, id string, data ...float64) *tensor.Tensor {
	t.Helper()
	return Vec(t, id, data...).RequireGrad()
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// IDs returns a provider numbering identities prefix-1, prefix-2, ...
func IDs(prefix string) ir.IDProvider {
	return ir.NewSequentialProvider(prefix)
}
