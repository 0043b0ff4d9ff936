// Package config loads planstate CLI defaults from a YAML file.
//
// Flags given on the command line always win over file values.
//
//	db: ./planstate.db
//	worker: alice
//	format: json
//	verbose: false
//	id_prefix: ph      # sequential identities ph-1, ph-2, ... instead of UUIDv7
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/planstate/internal/ir"
)

// DefaultWorker is the worker id used when neither flag nor file names one.
const DefaultWorker = "local"

// Config holds CLI defaults.
type Config struct {
	Database string `yaml:"db"`
	Worker   string `yaml:"worker"`
	Format   string `yaml:"format"`
	Verbose  bool   `yaml:"verbose"`
	IDPrefix string `yaml:"id_prefix"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Worker: DefaultWorker,
		Format: "text",
	}
}

// Load reads path over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. An empty document yields the
// defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field values.
func (c Config) Validate() error {
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid format %q: must be text or json", c.Format)
	}
	if c.Worker == "" {
		return fmt.Errorf("worker must not be empty")
	}
	return nil
}

// IDs returns the identity provider for new plans and placeholders:
// sequential when IDPrefix is set, UUIDv7 otherwise.
func (c Config) IDs() ir.IDProvider {
	if c.IDPrefix != "" {
		return ir.NewSequentialProvider(c.IDPrefix)
	}
	return ir.UUIDv7Provider{}
}
