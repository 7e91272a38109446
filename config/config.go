// Package config loads and validates the exporter's YAML configuration.
package config

import (
	"fmt"
	"os"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/goccy/go-yaml"
)

// Config is the full application configuration.
type Config struct {
	Redmine    Redmine    `yaml:"redmine"`
	Outputs    []Output   `yaml:"outputs"`
	Processing Processing `yaml:"processing"`
	Logging    Logging    `yaml:"logging"`
	State      State      `yaml:"state"`
}

// Redmine holds server connection settings.
type Redmine struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// Output selects projects to export and where their documents go.
type Output struct {
	Path               string   `yaml:"path"`
	Projects           []string `yaml:"projects"`
	IncludeSubprojects bool     `yaml:"include_subprojects"`
}

// Processing tunes conversion and attachment handling.
type Processing struct {
	SkipAttachments bool              `yaml:"skip_attachments"`
	SkipWiki        bool              `yaml:"skip_wiki"`
	UnderlineStyle  string            `yaml:"underline_style"`
	LanguageMap     map[string]string `yaml:"language_map"`
}

// Logging selects log verbosity and format.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// State locates the incremental-state database.
type State struct {
	Path string `yaml:"path"`
}

// Load reads, expands and validates the configuration at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes raw YAML, resolving ${VAR} environment references, and
// validates the result.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(expandEnv(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "auto"
	}
	if c.State.Path == "" {
		c.State.Path = "rmx-state.db"
	}
}

// Validate checks the configuration is complete enough to run an export.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Redmine, validation.Required),
		validation.Field(&c.Outputs, validation.Required.Error("at least one output is required")),
		validation.Field(&c.Logging),
	)
	if err != nil {
		return err
	}
	for i, out := range c.Outputs {
		if err := out.validate(); err != nil {
			return fmt.Errorf("outputs[%d]: %w", i, err)
		}
	}
	return nil
}

// Validate implements validation.Validatable for the nested struct.
func (r Redmine) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.URL, validation.Required, is.URL),
		validation.Field(&r.APIKey, validation.Required),
	)
}

// Validate implements validation.Validatable for the nested struct.
func (l Logging) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("trace", "debug", "info", "warn", "error")),
		validation.Field(&l.Format, validation.In("auto", "console", "json")),
	)
}

func (o Output) validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Path, validation.Required),
		validation.Field(&o.Projects, validation.Required.Error("at least one project is required")),
	)
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${VAR} references with environment values before
// YAML decoding, so secrets like the API key stay out of the file.
// Unset variables expand to the empty string and fail validation later.
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envRef.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}
