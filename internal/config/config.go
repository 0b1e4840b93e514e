// Package config loads layered configuration (defaults, config file, env
// overrides) the way the teacher's internal/agent/config package does.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	General     GeneralConfig     `mapstructure:"general"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Browser     BrowserConfig     `mapstructure:"browser"`
	Agents      AgentsConfig      `mapstructure:"agents"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	CrawlPolicy CrawlPolicyConfig `mapstructure:"crawl_policy"`
}

type GeneralConfig struct {
	Debug      bool   `mapstructure:"debug"`
	LogLevel   string `mapstructure:"log_level"`
	TimeWindow time.Duration `mapstructure:"time_window"`
}

type LLMConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
}

type BrowserConfig struct {
	TimeoutMS       time.Duration `mapstructure:"timeout_ms"`
	MaxChars        int           `mapstructure:"max_chars"`
	UserAgent       string        `mapstructure:"user_agent"`
	HostPacingDelay time.Duration `mapstructure:"host_pacing_delay"`
}

type AgentsConfig struct {
	MaxSections int `mapstructure:"max_sections"`
	MaxTurns    int `mapstructure:"max_turns"`
}

type SchedulerConfig struct {
	MaxConcurrentSources int           `mapstructure:"max_concurrent_sources"`
	TickInterval         time.Duration `mapstructure:"tick_interval"`
	LockTTL              time.Duration `mapstructure:"lock_ttl"`
}

type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	URL     string        `mapstructure:"url"`
	SSLMode string        `mapstructure:"sslmode"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// Load reads "policywatch" config from ./config and "." plus environment
// overrides, the way the teacher's LoadConfig does for "agent_config".
func Load() (*Config, error) {
	viper.SetConfigName("policywatch")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("POLICYWATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	overrideFromEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("general.debug", false)
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.time_window", "168h")

	viper.SetDefault("llm.base_url", "https://api.openai.com/v1")
	viper.SetDefault("llm.model", "gpt-5")
	viper.SetDefault("llm.timeout", "60s")
	viper.SetDefault("llm.max_retries", 3)
	viper.SetDefault("llm.max_concurrency", 3)

	viper.SetDefault("browser.timeout_ms", "30s")
	viper.SetDefault("browser.max_chars", 15000)
	viper.SetDefault("browser.user_agent", "Mozilla/5.0 (compatible; policywatch/1.0)")
	viper.SetDefault("browser.host_pacing_delay", "2s")

	viper.SetDefault("agents.max_sections", 5)
	viper.SetDefault("agents.max_turns", 15)

	viper.SetDefault("scheduler.max_concurrent_sources", 5)
	viper.SetDefault("scheduler.tick_interval", "1m")
	viper.SetDefault("scheduler.lock_ttl", "2m")

	viper.SetDefault("storage.postgres.sslmode", "disable")
	viper.SetDefault("storage.postgres.timeout", "5s")
	viper.SetDefault("storage.redis.host", "localhost")
	viper.SetDefault("storage.redis.port", 6379)
	viper.SetDefault("storage.redis.db", 0)
	viper.SetDefault("storage.redis.timeout", "5s")

	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.metrics_port", 9090)

	viper.SetDefault("crawl_policy.respect_robots", true)
}

func overrideFromEnv() {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		viper.Set("llm.api_key", apiKey)
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		viper.Set("storage.postgres.url", url)
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		viper.Set("storage.redis.host", host)
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("storage.redis.port", p)
		}
	}
	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		viper.Set("storage.redis.password", pass)
	}
}

func validate(cfg *Config) error {
	if cfg.LLM.Model == "" {
		return fmt.Errorf("llm.model must be set")
	}
	if cfg.Agents.MaxSections <= 0 {
		return fmt.Errorf("agents.max_sections must be positive")
	}
	if cfg.Scheduler.MaxConcurrentSources <= 0 {
		return fmt.Errorf("scheduler.max_concurrent_sources must be positive")
	}
	if err := cfg.CrawlPolicy.Validate(); err != nil {
		return fmt.Errorf("crawl_policy invalid: %w", err)
	}
	return nil
}
