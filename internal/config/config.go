package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	// InlinerConfig holds configuration options for the inlining process
	InlinerConfig struct {
		// AllowConditionalComments restores markup inside conditional comments
		AllowConditionalComments bool `yaml:"allow_conditional_comments"`

		// PreserveMediaQueries keeps @media, @import and @font-face rules in <style> tags
		PreserveMediaQueries bool `yaml:"preserve_media_queries"`

		// PreserveUnknownRules keeps unrecognized at-rules too, requires PreserveMediaQueries
		PreserveUnknownRules bool `yaml:"preserve_unknown_rules"`

		// IgnoreUnsupportedSelectors skips selectors the matcher cannot evaluate
		IgnoreUnsupportedSelectors bool `yaml:"ignore_unsupported_selectors"`
	}

	// FetchConfig controls retrieval of remote documents and stylesheets
	FetchConfig struct {
		Timeout   time.Duration `yaml:"timeout" validate:"gte=0"`
		UserAgent string        `yaml:"user_agent"`
	}

	Config struct {
		Version int           `yaml:"version" validate:"eq=1"`
		Inliner InlinerConfig `yaml:"inliner"`
		Fetch   FetchConfig   `yaml:"fetch"`
		Logging LoggingConfig `yaml:"logging"`
	}
)

// Default returns the inliner options of the embedded configuration: every
// optional behavior disabled.
func Default() InlinerConfig {
	return InlinerConfig{}
}

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// only fields we defined are accepted, so no yaml.Unmarshal here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of the expanded configuration template,
// which provides defaults, and validates the result.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl)
}

// Dump marshals the active configuration.
func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %w", err)
	}
	return data, nil
}
