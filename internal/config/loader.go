// Package config loads and validates larder.yml.
//
// Values come from the YAML file first and are then overridden by LARDER_
// environment variables, split on the first underscore after the prefix:
// LARDER_GENERATOR_API_KEY sets generator.api_key and LARDER_REDIS_URL sets
// redis.url.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LARDER_"

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "larder.yml"

// Load reads the configuration at path, applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*LarderConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(content)
}

// Parse is Load over already-read YAML content.
func Parse(content []byte) (*LarderConfig, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg LarderConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// topLevel lists top-level keys that contain an underscore.
var topLevel = map[string]bool{"defaults_file": true}

// envKey maps LARDER_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if topLevel[lower] {
		return lower
	}
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}
