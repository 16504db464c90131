package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full application configuration, loaded from prospector.yaml
// with PROSPECTOR_* environment overrides.
type Config struct {
	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`

	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`

	Tracing struct {
		Enabled      bool   `mapstructure:"enabled"`
		ServiceName  string `mapstructure:"service_name"`
		OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	} `mapstructure:"tracing"`

	Planner struct {
		// Mode selects the planner backend: "heuristic" (offline) or "http"
		// (external LLM sidecar).
		Mode           string `mapstructure:"mode"`
		BaseURL        string `mapstructure:"base_url"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"planner"`

	Policy   PolicyConfig   `mapstructure:"policy"`
	Approval ApprovalConfig `mapstructure:"approval"`

	Connectors ConnectorsConfig `mapstructure:"connectors"`

	Archive ArchiveConfig `mapstructure:"archive"`
}

// PolicyConfig holds the workflow policy knobs. These are the values the
// watcher hot-reloads.
type PolicyConfig struct {
	// MaxRetryRounds bounds the sufficiency retry loop.
	MaxRetryRounds int `mapstructure:"max_retry_rounds"`
}

// ApprovalConfig selects and configures the approval gate.
type ApprovalConfig struct {
	// Mode is one of "policy", "static", "interactive".
	Mode string `mapstructure:"mode"`
	// PolicyPath is the directory of .rego files for the policy gate.
	PolicyPath string `mapstructure:"policy_path"`
	// FailClosed rejects plans when policies cannot be loaded or evaluated.
	FailClosed bool `mapstructure:"fail_closed"`
}

// RateLimit is a per-source token bucket setting.
type RateLimit struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// ConnectorsConfig configures the mock data source connectors.
type ConnectorsConfig struct {
	LatencyMinMs int                  `mapstructure:"latency_min_ms"`
	LatencyMaxMs int                  `mapstructure:"latency_max_ms"`
	RateLimits   map[string]RateLimit `mapstructure:"rate_limits"`
}

// ArchiveConfig configures the optional history archive sinks. The in-memory
// session remains the source of truth; archival is best-effort.
type ArchiveConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Redis   struct {
		Addr     string `mapstructure:"addr"`
		TTLHours int    `mapstructure:"ttl_hours"`
	} `mapstructure:"redis"`
	Postgres struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"postgres"`
}

// Load reads configuration from path, or from CONFIG_PATH, or from
// ./prospector.yaml, applying defaults and environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "prospector.yaml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("PROSPECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; defaults and env cover everything.
		if _, ok := err.(*os.PathError); !ok {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				if !os.IsNotExist(err) {
					return nil, fmt.Errorf("read config %s: %w", path, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 2112)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "prospector")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")
	v.SetDefault("planner.mode", "heuristic")
	v.SetDefault("planner.base_url", "http://localhost:8000")
	v.SetDefault("planner.timeout_seconds", 30)
	v.SetDefault("policy.max_retry_rounds", 2)
	v.SetDefault("approval.mode", "interactive")
	v.SetDefault("approval.policy_path", "config/policies")
	v.SetDefault("approval.fail_closed", false)
	v.SetDefault("connectors.latency_min_ms", 100)
	v.SetDefault("connectors.latency_max_ms", 500)
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.redis.addr", "localhost:6379")
	v.SetDefault("archive.redis.ttl_hours", 24)
}

// Validate rejects configurations the workflow cannot run with.
func (c *Config) Validate() error {
	if c.Policy.MaxRetryRounds < 0 {
		return fmt.Errorf("policy.max_retry_rounds must be >= 0, got %d", c.Policy.MaxRetryRounds)
	}
	switch c.Approval.Mode {
	case "policy", "static", "interactive":
	default:
		return fmt.Errorf("approval.mode must be policy, static or interactive, got %q", c.Approval.Mode)
	}
	switch c.Planner.Mode {
	case "heuristic", "http":
	default:
		return fmt.Errorf("planner.mode must be heuristic or http, got %q", c.Planner.Mode)
	}
	if c.Connectors.LatencyMinMs > c.Connectors.LatencyMaxMs {
		return fmt.Errorf("connectors.latency_min_ms exceeds latency_max_ms")
	}
	for src, rl := range c.Connectors.RateLimits {
		if rl.RPS < 0 || rl.Burst < 0 {
			return fmt.Errorf("connectors.rate_limits.%s has negative values", src)
		}
	}
	return nil
}
