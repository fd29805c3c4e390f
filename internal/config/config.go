package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Telemetry  TelemetryConfig  `json:"telemetry"`
	Cache      CacheConfig      `json:"cache"`
	Memory     MemoryConfig     `json:"memory"`
	Embedding  EmbeddingConfig  `json:"embedding"`
	Generation []ProviderConfig `json:"generation"`
	Actuators  ActuatorConfig   `json:"actuators"`
	Database   DatabaseConfig   `json:"database"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

// TelemetryConfig holds the classification weights and thresholds. The exact
// formula is deliberately configuration, not code: deployments tune weights
// per signal source quality.
type TelemetryConfig struct {
	Signals            []SignalConfig `json:"signals"`
	OverloadThreshold  float64        `json:"overload_threshold"`  // score above -> Overload candidate
	ApproachThreshold  float64        `json:"approach_threshold"`  // score above -> ApproachingOverload candidate
	DwellSamples       int            `json:"dwell_samples"`       // consecutive samples before a candidate commits
	StaleAfterSeconds  int            `json:"stale_after_seconds"` // no samples for this long -> Stale
	EvictAfterSeconds  int            `json:"evict_after_seconds"` // no samples for this long -> user entry dropped
	SweepSeconds       int            `json:"sweep_seconds"`       // stale/evict sweep interval
	HyperfocusSwitches float64        `json:"hyperfocus_switches"` // context switches below this suggest absorption
	HyperfocusPauses   float64        `json:"hyperfocus_pauses"`   // pause frequency below this suggests absorption
	HyperfocusKeys     float64        `json:"hyperfocus_keystrokes"`
}

// SignalConfig describes one telemetry channel: its expected domain and its
// weight in the load score. Weights should sum to 1.0.
type SignalConfig struct {
	Name   string  `json:"name"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Weight float64 `json:"weight"`
}

type CacheConfig struct {
	RedisURL   string `json:"redis_url"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// TTL returns the configured cache TTL, defaulting to seven days.
func (c CacheConfig) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

type MemoryConfig struct {
	Collection       string  `json:"collection"`
	SearchThreshold  float64 `json:"search_threshold"`
	ContextThreshold float64 `json:"context_threshold"`
	TopK             int     `json:"top_k"`
}

type EmbeddingConfig struct {
	Provider  string `json:"provider"` // "api" or "local"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

type ProviderConfig struct {
	ID       string `json:"id"`
	Type     string `json:"type"` // "openai" or "anthropic"
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
}

type ActuatorConfig struct {
	Slack   SlackActuatorConfig   `json:"slack"`
	Discord DiscordActuatorConfig `json:"discord"`
}

type SlackActuatorConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	Channel  string `json:"channel"`
}

type DiscordActuatorConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Qdrant   QdrantConfig   `json:"qdrant"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type QdrantConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// DefaultSignals is the stock signal table: domains chosen from observed
// capture ranges, weights favoring the behavioral channels over the noisier
// physiological ones. Weights sum to 1.0.
func DefaultSignals() []SignalConfig {
	return []SignalConfig{
		{Name: "keystroke_rate", Min: 0, Max: 400, Weight: 0.10},
		{Name: "pause_frequency", Min: 0, Max: 30, Weight: 0.15},
		{Name: "context_switches", Min: 0, Max: 40, Weight: 0.25},
		{Name: "error_rate", Min: 0, Max: 1, Weight: 0.20},
		{Name: "facial_tension", Min: 0, Max: 1, Weight: 0.10},
		{Name: "gaze_wander", Min: 0, Max: 1, Weight: 0.12},
		{Name: "vocal_energy", Min: 0, Max: 1, Weight: 0.08},
	}
}

// ApplyDefaults fills zero-valued tuning knobs with documented defaults.
func (c *Config) ApplyDefaults() {
	if len(c.Telemetry.Signals) == 0 {
		c.Telemetry.Signals = DefaultSignals()
	}
	if c.Telemetry.OverloadThreshold == 0 {
		c.Telemetry.OverloadThreshold = 65
	}
	if c.Telemetry.ApproachThreshold == 0 {
		c.Telemetry.ApproachThreshold = 40
	}
	if c.Telemetry.DwellSamples == 0 {
		c.Telemetry.DwellSamples = 3
	}
	if c.Telemetry.StaleAfterSeconds == 0 {
		c.Telemetry.StaleAfterSeconds = 90
	}
	if c.Telemetry.EvictAfterSeconds == 0 {
		c.Telemetry.EvictAfterSeconds = 3600
	}
	if c.Telemetry.SweepSeconds == 0 {
		c.Telemetry.SweepSeconds = 30
	}
	if c.Telemetry.HyperfocusSwitches == 0 {
		c.Telemetry.HyperfocusSwitches = 3
	}
	if c.Telemetry.HyperfocusPauses == 0 {
		c.Telemetry.HyperfocusPauses = 4
	}
	if c.Telemetry.HyperfocusKeys == 0 {
		c.Telemetry.HyperfocusKeys = 120
	}
	if c.Memory.Collection == "" {
		c.Memory.Collection = "user_memories"
	}
	if c.Memory.SearchThreshold == 0 {
		c.Memory.SearchThreshold = 0.72
	}
	if c.Memory.ContextThreshold == 0 {
		c.Memory.ContextThreshold = 0.70
	}
	if c.Memory.TopK == 0 {
		c.Memory.TopK = 5
	}
}
