package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/planstate/internal/ir"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, DefaultWorker, cfg.Worker)
	assert.IsType(t, ir.UUIDv7Provider{}, cfg.IDs())
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := Parse([]byte("db: /tmp/p.db\nworker: bob\nformat: json\nverbose: true\nid_prefix: ph\n"))
	require.NoError(t, err)

	assert.Equal(t, Config{
		Database: "/tmp/p.db",
		Worker:   "bob",
		Format:   "json",
		Verbose:  true,
		IDPrefix: "ph",
	}, cfg)
	ids := cfg.IDs()
	assert.Equal(t, ir.ID("ph-1"), ids.New())
	assert.Equal(t, ir.ID("ph-2"), ids.New())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "database: x\n", "field database not found"},
		{"bad format", "format: xml\n", `invalid format "xml"`},
		{"empty worker", "worker: \"\"\n", "worker must not be empty"},
		{"wrong type", "verbose: [1]\n", "failed to parse YAML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planstate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worker: carol\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "carol", cfg.Worker)
	assert.Equal(t, "text", cfg.Format)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
