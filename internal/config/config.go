package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is the full advisor configuration, loaded once at process start and
// immutable for the duration of every request.
type Config struct {
	Admission   AdmissionConfig   `mapstructure:"admission"`
	Routing     RoutingConfig     `mapstructure:"routing"`
	Fanout      FanoutConfig      `mapstructure:"fanout"`
	Synthesis   SynthesisConfig   `mapstructure:"synthesis"`
	Inference   InferenceConfig   `mapstructure:"inference"`
	Tools       ToolsConfig       `mapstructure:"tools"`
	Knowledge   KnowledgeConfig   `mapstructure:"knowledge"`
	Guard       GuardConfig       `mapstructure:"guard"`
	Session     SessionConfig     `mapstructure:"session"`
	Audit       AuditConfig       `mapstructure:"audit"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Observe     ObservabilityConfig `mapstructure:"observability"`
}

type AdmissionConfig struct {
	RepairThreshold   float64 `mapstructure:"repair_threshold"`
	FailFastThreshold float64 `mapstructure:"fail_fast_threshold"`
	MinRepairDelta    float64 `mapstructure:"min_repair_delta"`
}

type RoutingConfig struct {
	PolicyVersion          string  `mapstructure:"policy_version"`
	ConfidenceMin          float64 `mapstructure:"confidence_min"`
	Top2GapMin             float64 `mapstructure:"top2_gap_min"`
	ScenarioConfidenceMin  float64 `mapstructure:"scenario_confidence_min"`
	DomainRelevanceMin     float64 `mapstructure:"domain_relevance_min"`
	MaxClarifyQuestions    int     `mapstructure:"max_clarify_questions"`
	ExtractorMaxAttempts   int     `mapstructure:"extractor_max_attempts"`
}

type FanoutConfig struct {
	MaxWorkers int           `mapstructure:"max_workers"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type SynthesisConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"` // generation attempts, corrective retry included
	MaxRepairs  int `mapstructure:"max_repairs"`  // mechanical repairs per attempt
}

type InferenceConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type ToolsConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	RetryBase   time.Duration `mapstructure:"retry_base"`
	RateLimit   float64       `mapstructure:"rate_limit"`  // requests/sec per tool
	RateBurst   int           `mapstructure:"rate_burst"`
	CatalogPath string        `mapstructure:"catalog_path"` // optional override of the embedded catalog
}

type KnowledgeConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxCitations int           `mapstructure:"max_citations"`
}

type GuardConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Mode       string `mapstructure:"mode"` // off | dry-run | enforce
	PolicyPath string `mapstructure:"policy_path"`
	FailClosed bool   `mapstructure:"fail_closed"`
}

type SessionConfig struct {
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type AuditConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	Enabled  bool   `mapstructure:"enabled"`
}

type AuthConfig struct {
	SigningKey string `mapstructure:"signing_key"`
	Issuer     string `mapstructure:"issuer"`
}

type ObservabilityConfig struct {
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`
	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`
}

// Load reads features.yaml from CONFIG_PATH (default /app/config/features.yaml),
// applies defaults, then env overrides.
func Load() (*Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "/app/config/features.yaml"
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(cfgPath)
	if err := v.ReadInConfig(); err != nil {
		// Missing config file is not fatal; defaults plus env cover everything.
		if _, ok := err.(*os.PathError); !ok {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyEnvOverrides(&c)
	return &c, nil
}

// Default returns the built-in configuration without touching the filesystem.
// Used by tests and as the fallback when no config file is mounted.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	_ = v.Unmarshal(&c)
	return &c
}

func setDefaults(v *viper.Viper) {
	// Score is a weighted sum of disjoint ratios; 0.5 is its ceiling.
	v.SetDefault("admission.repair_threshold", 0.15)
	v.SetDefault("admission.fail_fast_threshold", 0.30)
	v.SetDefault("admission.min_repair_delta", 0.05)

	v.SetDefault("routing.policy_version", "route-v2")
	v.SetDefault("routing.confidence_min", 0.60)
	v.SetDefault("routing.top2_gap_min", 0.15)
	v.SetDefault("routing.scenario_confidence_min", 0.55)
	v.SetDefault("routing.domain_relevance_min", 0.35)
	v.SetDefault("routing.max_clarify_questions", 2)
	v.SetDefault("routing.extractor_max_attempts", 2)

	v.SetDefault("fanout.max_workers", 4)
	v.SetDefault("fanout.timeout", "20s")

	v.SetDefault("synthesis.max_attempts", 2)
	v.SetDefault("synthesis.max_repairs", 1)

	v.SetDefault("inference.base_url", "http://llm-service:8000")
	v.SetDefault("inference.model", "advisor-intent-v1")
	v.SetDefault("inference.temperature", 0.0)
	v.SetDefault("inference.timeout", "30s")

	v.SetDefault("tools.base_url", "http://analytics-tools:8100")
	v.SetDefault("tools.timeout", "8s")
	v.SetDefault("tools.max_retries", 2)
	v.SetDefault("tools.retry_base", "200ms")
	v.SetDefault("tools.rate_limit", 20.0)
	v.SetDefault("tools.rate_burst", 10)

	v.SetDefault("knowledge.base_url", "http://knowledge-base:8200")
	v.SetDefault("knowledge.timeout", "5s")
	v.SetDefault("knowledge.max_citations", 4)

	v.SetDefault("guard.enabled", true)
	v.SetDefault("guard.mode", "enforce")
	v.SetDefault("guard.policy_path", "/app/config/policies")
	v.SetDefault("guard.fail_closed", false)

	v.SetDefault("session.redis_addr", "redis:6379")
	v.SetDefault("session.ttl", "24h")

	v.SetDefault("audit.host", "postgres")
	v.SetDefault("audit.port", 5432)
	v.SetDefault("audit.user", "advisor")
	v.SetDefault("audit.database", "advisor")
	v.SetDefault("audit.ssl_mode", "disable")
	v.SetDefault("audit.enabled", true)

	v.SetDefault("auth.issuer", "vantage-advisor")

	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.port", 2112)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
}

func applyEnvOverrides(c *Config) {
	if v := os.Getenv("INFERENCE_SERVICE_URL"); v != "" {
		c.Inference.BaseURL = v
	}
	if v := os.Getenv("TOOLS_SERVICE_URL"); v != "" {
		c.Tools.BaseURL = v
	}
	if v := os.Getenv("KNOWLEDGE_SERVICE_URL"); v != "" {
		c.Knowledge.BaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Session.RedisAddr = v
	}
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		c.Audit.Host = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		c.Audit.Password = v
	}
	if v := os.Getenv("JWT_SIGNING_KEY"); v != "" {
		c.Auth.SigningKey = v
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		var p int
		if _, err := fmt.Sscanf(v, "%d", &p); err == nil && p > 0 {
			c.Observe.Metrics.Port = p
		}
	}
	if v := os.Getenv("GUARD_MODE"); v != "" {
		c.Guard.Mode = v
	}
}
