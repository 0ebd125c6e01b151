package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level tsolve.yaml configuration.
type Config struct {
	// Compiler holds the checker flags that change relation semantics.
	Compiler CompilerOptions `yaml:"compiler"`

	// Limits overrides the recursion and expansion caps.
	Limits Limits `yaml:"limits"`
}

// CompilerOptions mirrors the subset of compiler flags the engine consults.
type CompilerOptions struct {
	StrictNullChecks           bool `yaml:"strict_null_checks"`
	StrictFunctionTypes        bool `yaml:"strict_function_types"`
	ExactOptionalPropertyTypes bool `yaml:"exact_optional_property_types"`
	NoUncheckedIndexedAccess   bool `yaml:"no_unchecked_indexed_access"`

	// StrictSubtypeChecking disables method bivariance in the assignability
	// relation.
	StrictSubtypeChecking bool `yaml:"strict_subtype_checking"`
}

// Limits are the caps that keep pathological types from running forever.
// Zero values are replaced with the package defaults.
type Limits struct {
	SubtypeDepth           int `yaml:"subtype_depth,omitempty"`
	EvalDepth              int `yaml:"eval_depth,omitempty"`
	TemplateExpansionLimit int `yaml:"template_expansion_limit,omitempty"`
}

// Default returns the configuration used when no tsolve.yaml is present:
// strict mode, package default limits.
func Default() *Config {
	cfg := &Config{
		Compiler: CompilerOptions{
			StrictNullChecks:    true,
			StrictFunctionTypes: true,
		},
	}
	cfg.setDefaults()
	return cfg
}

// LoadConfig reads and parses a tsolve.yaml file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses tsolve.yaml content from bytes.
// Fields missing from the document keep their Default values.
// The path argument is used only for error messages.
func ParseConfig(data []byte, path string) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return cfg, nil
}

// FindConfig searches for tsolve.yaml starting from dir and walking up
// to parent directories.
// Returns the path to the config file and nil error if found,
// or empty string and nil error if not found.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		candidate = filepath.Join(dir, "tsolve.yml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			return "", nil
		}
		dir = parent
	}
}

// validate checks the configuration for semantic errors.
func (c *Config) validate(path string) error {
	if c.Limits.SubtypeDepth < 0 {
		return fmt.Errorf("%s: limits.subtype_depth must not be negative", path)
	}
	if c.Limits.EvalDepth < 0 {
		return fmt.Errorf("%s: limits.eval_depth must not be negative", path)
	}
	if c.Limits.TemplateExpansionLimit < 0 {
		return fmt.Errorf("%s: limits.template_expansion_limit must not be negative", path)
	}
	if c.Limits.SubtypeDepth > 10*MaxSubtypeDepth {
		return fmt.Errorf("%s: limits.subtype_depth %d exceeds %d", path, c.Limits.SubtypeDepth, 10*MaxSubtypeDepth)
	}
	if c.Compiler.ExactOptionalPropertyTypes && !c.Compiler.StrictNullChecks {
		return fmt.Errorf("%s: exact_optional_property_types requires strict_null_checks", path)
	}
	return nil
}

// setDefaults fills in default values for optional fields.
func (c *Config) setDefaults() {
	if c.Limits.SubtypeDepth == 0 {
		c.Limits.SubtypeDepth = MaxSubtypeDepth
	}
	if c.Limits.EvalDepth == 0 {
		c.Limits.EvalDepth = MaxEvalDepth
	}
	if c.Limits.TemplateExpansionLimit == 0 {
		c.Limits.TemplateExpansionLimit = TemplateExpansionLimit
	}
}
