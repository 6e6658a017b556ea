// Package config loads the runtime configuration of the simulation driver.
// Values come from defaults, then an optional YAML file, then SOSIM_*
// environment variables.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/talgya/sosim/internal/agents"
	"github.com/talgya/sosim/internal/logging"
)

//go:embed schema.json
var schemaJSON string

// Config contains every setting of the sosim binary.
type Config struct {
	Sim     SimConfig     `json:"sim" yaml:"sim"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	API     APIConfig     `json:"api" yaml:"api"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SimConfig controls the tick loop and the size of the demo world.
type SimConfig struct {
	// Ticks is how many ticks "run" executes.
	Ticks int `json:"ticks" yaml:"ticks"`

	// Seed makes runs reproducible. 0 draws a random seed.
	Seed uint64 `json:"seed" yaml:"seed"`

	// Parallel runs independent subtrees concurrently during the Run phase.
	Parallel      bool `json:"parallel" yaml:"parallel"`
	ParallelLimit int  `json:"parallel_limit" yaml:"parallel_limit"`

	// MovePolicy is "random" (default) or "first".
	MovePolicy string `json:"move_policy" yaml:"move_policy"`

	// ReportEvery logs a summary every n ticks (0 = never).
	ReportEvery int `json:"report_every" yaml:"report_every"`

	Width      int `json:"width" yaml:"width"`
	Height     int `json:"height" yaml:"height"`
	Patrols    int `json:"patrols" yaml:"patrols"`
	Medics     int `json:"medics" yaml:"medics"`
	AlertLevel int `json:"alert_level" yaml:"alert_level"`
}

// StorageConfig locates the SQLite store and the compressed event export.
// Empty paths disable the corresponding output.
type StorageConfig struct {
	DBPath       string `json:"db_path" yaml:"db_path"`
	ExportDir    string `json:"export_dir" yaml:"export_dir"`
	TicksPerFile int    `json:"ticks_per_file" yaml:"ticks_per_file"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Addr string `json:"addr" yaml:"addr"`

	// AdminKey is the bearer token for POST endpoints. Supports ${VAR}.
	AdminKey string `json:"admin_key,omitempty" yaml:"admin_key,omitempty"`

	CORSOrigins     []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`
	EventsPerMinute int      `json:"events_per_minute" yaml:"events_per_minute"`
}

// String keeps the admin key out of logs.
func (c APIConfig) String() string {
	key := ""
	if c.AdminKey != "" {
		key = "(set)"
	}
	return fmt.Sprintf("APIConfig{Addr:%s, AdminKey:%s}", c.Addr, key)
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is "trace", "debug", "info" (default), "warn" or "error".
	Level string `json:"level" yaml:"level"`

	// Format is "text" (default) or "json".
	Format string `json:"format" yaml:"format"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Sim: SimConfig{
			Ticks:       100,
			MovePolicy:  "random",
			ReportEvery: 50,
			Width:       32,
			Height:      24,
			Patrols:     4,
			Medics:      2,
			AlertLevel:  5,
		},
		Storage: StorageConfig{
			DBPath:       "data/sosim.db",
			ExportDir:    "data/events",
			TicksPerFile: 1000,
		},
		API: APIConfig{
			Addr:            ":8080",
			EventsPerMinute: 120,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (when
// non-empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file. The document is checked
// against the schema before it is decoded, so unknown keys are rejected.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if doc != nil {
		if err := validateDocument(doc); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.API.AdminKey = expandEnvVars(cfg.API.AdminKey)
	return cfg, nil
}

// Validate checks the configuration against the schema and then applies
// the checks a schema cannot express.
func (c *Config) Validate() error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	if err := validateDocument(doc); err != nil {
		return err
	}

	if _, err := agents.PolicyByName(c.Sim.MovePolicy, 1); err != nil {
		return err
	}
	if c.Logging.Level != "" && !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Sim.Patrols+c.Sim.Medics == 0 {
		return fmt.Errorf("sim: at least one patrol or medic is required")
	}
	return nil
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("config.schema.json", schemaJSON)
	})
	return schema, schemaErr
}

// validateDocument checks a decoded YAML or JSON document. YAML maps and
// integers are normalized through JSON first.
func validateDocument(doc any) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("normalize config: %w", err)
	}
	var norm any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&norm); err != nil {
		return fmt.Errorf("normalize config: %w", err)
	}
	if err := s.Validate(norm); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies SOSIM_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SOSIM_TICKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sim.Ticks = n
		}
	}
	if v := os.Getenv("SOSIM_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Sim.Seed = n
		}
	}
	if v := os.Getenv("SOSIM_PARALLEL"); v != "" {
		cfg.Sim.Parallel = v == "true" || v == "1"
	}
	if v := os.Getenv("SOSIM_MOVE_POLICY"); v != "" {
		cfg.Sim.MovePolicy = v
	}
	if v := os.Getenv("SOSIM_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("SOSIM_EXPORT_DIR"); v != "" {
		cfg.Storage.ExportDir = v
	}
	if v := os.Getenv("SOSIM_API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("SOSIM_ADMIN_KEY"); v != "" {
		cfg.API.AdminKey = v
	}
	if v := os.Getenv("SOSIM_CORS_ORIGINS"); v != "" {
		cfg.API.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("SOSIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
