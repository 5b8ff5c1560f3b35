package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration loaded from comprec.yaml.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Agents   AgentsConfig   `mapstructure:"agents"`
	Data     DataConfig     `mapstructure:"data"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	MetricsPort     int           `mapstructure:"metrics_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// DSN renders the lib/pq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RoleConfig selects the model parameters for one agent role.
type RoleConfig struct {
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

type LLMConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKeyEnv string        `mapstructure:"api_key_env"`
	Timeout   time.Duration `mapstructure:"timeout"`

	Coordinator RoleConfig `mapstructure:"coordinator"`
	Research    RoleConfig `mapstructure:"research"`
	Judge       RoleConfig `mapstructure:"judge"`
}

// APIKey resolves the key from the configured environment variable.
func (l LLMConfig) APIKey() string {
	if l.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(l.APIKeyEnv)
}

type AgentsConfig struct {
	EnableJudge     bool `mapstructure:"enable_judge"`
	HistoryLimit    int  `mapstructure:"history_limit"`
	RateLimitPerMin int  `mapstructure:"rate_limit_per_min"`
}

type DataConfig struct {
	CompRangesPath     string `mapstructure:"comp_ranges_path"`
	EmployeeRosterPath string `mapstructure:"employee_roster_path"`
	Watch              bool   `mapstructure:"watch"`
}

type AuthConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`
	JWTSecretEnv string        `mapstructure:"jwt_secret_env"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
	UsersFile    string        `mapstructure:"users_file"`
}

// Secret resolves the signing secret, preferring the env indirection.
func (a AuthConfig) Secret() string {
	if a.JWTSecretEnv != "" {
		if v := os.Getenv(a.JWTSecretEnv); v != "" {
			return v
		}
	}
	return a.JWTSecret
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
	ServiceName  string  `mapstructure:"service_name"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads comprec.yaml from CONFIG_PATH (default ./config/comprec.yaml),
// applies defaults, then env overrides. A missing file is tolerated;
// defaults plus env still make a runnable local config.
func Load() (*Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "./config/comprec.yaml"
	}

	v := viper.New()
	v.SetConfigFile(cfgPath)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Only a missing file falls back to defaults. Anything else
		// (permissions, a directory at the path) is a real error.
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.metrics_port", 2112)
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "comprec")
	v.SetDefault("postgres.database", "comprec")
	v.SetDefault("postgres.ssl_mode", "disable")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.coordinator.model", "gpt-4o")
	v.SetDefault("llm.coordinator.temperature", 0.1)
	v.SetDefault("llm.coordinator.max_tokens", 1024)
	v.SetDefault("llm.research.model", "gpt-4o")
	v.SetDefault("llm.research.temperature", 0.2)
	v.SetDefault("llm.research.max_tokens", 2048)
	v.SetDefault("llm.judge.model", "gpt-4o-mini")
	v.SetDefault("llm.judge.temperature", 0.0)
	v.SetDefault("llm.judge.max_tokens", 512)

	v.SetDefault("agents.enable_judge", true)
	v.SetDefault("agents.history_limit", 10)
	v.SetDefault("agents.rate_limit_per_min", 30)

	v.SetDefault("data.comp_ranges_path", "./data/comp_ranges.csv")
	v.SetDefault("data.employee_roster_path", "./data/employee_roster.csv")
	v.SetDefault("data.watch", true)

	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.users_file", "./config/users.yaml")
	v.SetDefault("auth.jwt_secret_env", "COMPREC_JWT_SECRET")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.sampling_rate", 1.0)
	v.SetDefault("tracing.service_name", "comprec")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func applyEnvOverrides(cfg *Config) {
	if p := os.Getenv("COMPREC_PORT"); p != "" {
		var x int
		_, _ = fmt.Sscanf(p, "%d", &x)
		if x > 0 {
			cfg.Server.Port = x
		}
	}
	if p := os.Getenv("METRICS_PORT"); p != "" {
		var x int
		_, _ = fmt.Sscanf(p, "%d", &x)
		if x > 0 {
			cfg.Server.MetricsPort = x
		}
	}
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.OTLPEndpoint = v
		cfg.Tracing.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
