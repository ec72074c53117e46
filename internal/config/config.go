package config

import (
	"fmt"
	"time"

	"github.com/dyluth/larder/pkg/larder"
	"github.com/redis/go-redis/v9"
)

// LarderConfig represents the top-level larder.yml configuration
type LarderConfig struct {
	Version      string                `koanf:"version"`
	Namespace    string                `koanf:"namespace"` // Redis key namespace of this deployment
	Redis        RedisConfig           `koanf:"redis"`
	Records      RecordsConfig         `koanf:"records"`
	Timezone     string                `koanf:"timezone"`  // Quota days roll over at midnight here
	Retention    Duration              `koanf:"retention"` // How long expired entries stay available for degraded responses
	Kinds        map[string]KindConfig `koanf:"kinds"`
	Generator    GeneratorConfig       `koanf:"generator"`
	Gate         GateConfig            `koanf:"gate"`
	Server       ServerConfig          `koanf:"server"`
	Log          LogConfig             `koanf:"log"`
	DefaultsFile string                `koanf:"defaults_file"` // Optional override of the normalizer default tables

	location *time.Location
}

// RedisConfig locates the Redis instance holding entries and quota counters.
type RedisConfig struct {
	URL string `koanf:"url"`
}

// RecordsConfig locates the SQLite upstream records store.
type RecordsConfig struct {
	Path string `koanf:"path"`
}

// KindConfig holds the per-kind quota, lifetime and freshness dependencies.
type KindConfig struct {
	DailyLimit *int     `koanf:"daily_limit"`
	TTL        Duration `koanf:"ttl"`
	Sources    []string `koanf:"sources"`
}

// GeneratorConfig selects and configures the generator backend.
type GeneratorConfig struct {
	Backend    string   `koanf:"backend"` // "genai" or "static"
	APIKey     string   `koanf:"api_key"`
	Model      string   `koanf:"model"`
	RatePerSec float64  `koanf:"rate_per_sec"`
	Burst      int      `koanf:"burst"`
	MaxRetries int      `koanf:"max_retries"`
	Timeout    Duration `koanf:"timeout"`     // Per backend call
	StaticText string   `koanf:"static_text"` // Answer of the static backend
}

// GateConfig holds recomputation gate switches.
type GateConfig struct {
	Coalesce          *bool    `koanf:"coalesce"`
	GenerationTimeout Duration `koanf:"generation_timeout"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port int `koanf:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "console"
}

type kindDefaults struct {
	limit   int
	ttl     time.Duration
	sources []larder.Source
}

var builtinKinds = map[larder.Kind]kindDefaults{
	larder.KindCompatibility: {
		limit:   15,
		ttl:     5 * Day,
		sources: []larder.Source{larder.SourceProfile, larder.SourceExtendedProfile},
	},
	larder.KindBeliefAnalysis: {
		limit:   10,
		ttl:     30 * Day,
		sources: []larder.Source{larder.SourceProfile, larder.SourceExtendedProfile, larder.SourceQuestionnaire},
	},
	larder.KindRecommendations: {
		limit:   10,
		ttl:     30 * Day,
		sources: []larder.Source{larder.SourceProfile, larder.SourceExtendedProfile, larder.SourceQuestionnaire, larder.SourceMatches},
	},
	larder.KindInsights: {
		limit:   15,
		ttl:     7 * Day,
		sources: []larder.Source{larder.SourceProfile, larder.SourceDocuments, larder.SourceMatches, larder.SourceTasks},
	},
	larder.KindTaskVerification: {
		limit: 15,
		ttl:   7 * Day,
		// Task verdicts are scoped by the task's category
	},
}

// applyDefaults fills every unset value with its default.
func applyDefaults(c *LarderConfig) {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.Namespace == "" {
		c.Namespace = "default"
	}
	if c.Redis.URL == "" {
		c.Redis.URL = "redis://localhost:6379/0"
	}
	if c.Records.Path == "" {
		c.Records.Path = "larder-records.db"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.Retention == 0 {
		c.Retention = Duration(30 * Day)
	}

	if c.Kinds == nil {
		c.Kinds = make(map[string]KindConfig)
	}
	for kind, def := range builtinKinds {
		kc := c.Kinds[string(kind)]
		if kc.DailyLimit == nil {
			limit := def.limit
			kc.DailyLimit = &limit
		}
		if kc.TTL == 0 {
			kc.TTL = Duration(def.ttl)
		}
		if kc.Sources == nil {
			for _, src := range def.sources {
				kc.Sources = append(kc.Sources, string(src))
			}
		}
		c.Kinds[string(kind)] = kc
	}

	if c.Generator.Backend == "" {
		c.Generator.Backend = "genai"
	}
	if c.Generator.Model == "" {
		c.Generator.Model = "gemini-2.0-flash"
	}
	if c.Generator.Timeout == 0 {
		c.Generator.Timeout = Duration(60 * time.Second)
	}

	if c.Gate.Coalesce == nil {
		coalesce := true
		c.Gate.Coalesce = &coalesce
	}
	if c.Gate.GenerationTimeout == 0 {
		c.Gate.GenerationTimeout = Duration(2 * time.Minute)
	}

	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate performs strict validation on the configuration
func (c *LarderConfig) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if err := (larder.Subject{UserID: c.Namespace}).Validate(); err != nil {
		return fmt.Errorf("invalid namespace: %w", err)
	}

	if _, err := redis.ParseURL(c.Redis.URL); err != nil {
		return fmt.Errorf("invalid redis.url: %w", err)
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	c.location = loc

	for name, kc := range c.Kinds {
		if err := larder.Kind(name).Validate(); err != nil {
			return fmt.Errorf("kinds: %w", err)
		}
		if kc.DailyLimit != nil && *kc.DailyLimit < 0 {
			return fmt.Errorf("kinds.%s.daily_limit must be >= 0, got %d", name, *kc.DailyLimit)
		}
		if kc.TTL < 0 {
			return fmt.Errorf("kinds.%s.ttl must be positive", name)
		}
		for _, src := range kc.Sources {
			if err := larder.Source(src).Validate(); err != nil {
				return fmt.Errorf("kinds.%s.sources: %w", name, err)
			}
		}
	}

	switch c.Generator.Backend {
	case "genai":
		if c.Generator.APIKey == "" {
			return fmt.Errorf("generator.api_key is required for the genai backend")
		}
	case "static":
	default:
		return fmt.Errorf("invalid generator.backend: %s (must be 'genai' or 'static')", c.Generator.Backend)
	}
	if c.Generator.RatePerSec < 0 {
		return fmt.Errorf("generator.rate_per_sec must be >= 0")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log.format: %s (must be 'json' or 'console')", c.Log.Format)
	}

	return nil
}

// Location returns the quota time zone. Valid after Validate.
func (c *LarderConfig) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// RedisOptions returns connection options parsed from redis.url.
func (c *LarderConfig) RedisOptions() (*redis.Options, error) {
	return redis.ParseURL(c.Redis.URL)
}

// DailyLimits returns the quota ceiling of every kind.
func (c *LarderConfig) DailyLimits() map[larder.Kind]int {
	out := make(map[larder.Kind]int, len(c.Kinds))
	for name, kc := range c.Kinds {
		if kc.DailyLimit != nil {
			out[larder.Kind(name)] = *kc.DailyLimit
		}
	}
	return out
}

// TTLs returns the entry lifetime of every kind.
func (c *LarderConfig) TTLs() map[larder.Kind]time.Duration {
	out := make(map[larder.Kind]time.Duration, len(c.Kinds))
	for name, kc := range c.Kinds {
		out[larder.Kind(name)] = kc.TTL.Duration()
	}
	return out
}

// Sources returns the upstream sources each kind depends on.
func (c *LarderConfig) Sources() map[larder.Kind][]larder.Source {
	out := make(map[larder.Kind][]larder.Source, len(c.Kinds))
	for name, kc := range c.Kinds {
		for _, src := range kc.Sources {
			out[larder.Kind(name)] = append(out[larder.Kind(name)], larder.Source(src))
		}
	}
	return out
}
