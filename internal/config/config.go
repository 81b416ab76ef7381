package config

import (
	"fmt"
	"os"
	"sync"

	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the configuration file inside the store directory.
const ConfigFileName = "config.yaml"

// schemaCUE is the validation schema for config.yaml. Keys not listed
// here are rejected, as are wrongly typed values.
const schemaCUE = `
#Config: {
	user?:           string
	editor?:         string
	default_branch?: string
	restack?: {
		no_conflict?:           bool
		children_only?:         bool
		max_predecessor_depth?: int & >=0
	}
	attribution?: {
		enabled?:       bool
		section?:       string
		operation_key?: string
	}
}
#Config
`

// RestackConfig carries restack defaults.
type RestackConfig struct {
	NoConflict          bool `yaml:"no_conflict"`
	ChildrenOnly        bool `yaml:"children_only"`
	MaxPredecessorDepth int  `yaml:"max_predecessor_depth"`
}

// AttributionConfig describes the optional attribution capability:
// when enabled, engines force the provenance operation tag through the
// named override key so downstream tooling labels results uniformly.
type AttributionConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Section      string `yaml:"section"`
	OperationKey string `yaml:"operation_key"`
}

// Config is validated repository configuration plus the call-scoped
// override layer.
type Config struct {
	User          string            `yaml:"user"`
	Editor        string            `yaml:"editor"`
	DefaultBranch string            `yaml:"default_branch"`
	Restack       RestackConfig     `yaml:"restack"`
	Attribution   AttributionConfig `yaml:"attribution"`

	mu        sync.Mutex
	overrides map[string]string
}

// Default returns a Config with defaults applied and no file loaded.
func Default() *Config {
	return &Config{
		DefaultBranch: "default",
		Attribution: AttributionConfig{
			Section:      "mutation",
			OperationKey: "operation",
		},
	}
}

// Load reads and validates the config file at path. A missing file is
// not an error: defaults are returned.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse validates raw YAML against the embedded CUE schema and decodes
// it.
func Parse(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cuectx := cuecontext.New()
	schema := cuectx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("config schema: %w", err)
	}
	value := cuectx.Encode(raw)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("config encode: %w", err)
	}
	unified := schema.Unify(value)
	if err := unified.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Value returns the overridden value for key, if one is in effect.
func (c *Config) Value(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.overrides[key]
	return v, ok
}

// Override applies a set of override values and returns a restore
// function that reinstates the previous state. The effect is strictly
// scoped: callers must defer the restore in the same call that applied
// the overrides.
func (c *Config) Override(ov Overrides) (restore func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.overrides == nil {
		c.overrides = make(map[string]string)
	}
	prev := make(map[string]*string, len(ov))
	for key, val := range ov {
		if old, ok := c.overrides[key]; ok {
			o := old
			prev[key] = &o
		} else {
			prev[key] = nil
		}
		c.overrides[key] = val
	}

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for key, old := range prev {
			if old == nil {
				delete(c.overrides, key)
			} else {
				c.overrides[key] = *old
			}
		}
	}
}
