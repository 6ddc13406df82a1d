package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const configPathEnv = "TRIAGE_CONFIG"

// ErrMissingAPIKey is returned when no generative-model key is configured.
var ErrMissingAPIKey = errors.New("GEMINI_API_KEY is not set in environment variables")

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Store    StoreConfig    `yaml:"store"`
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Redis    RedisConfig    `yaml:"redis"`
	Logger   LoggerConfig   `yaml:"logger"`
	LLM      LLMConfig      `yaml:"llm"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Events   EventsConfig   `yaml:"events"`
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `yaml:"name"`
	Env                   string `yaml:"env"`
	Host                  string `yaml:"host"`
	Port                  string `yaml:"port"`
	Version               string `yaml:"version"`
	RequestTimeoutSeconds int    `yaml:"requestTimeoutSeconds"`
}

// StoreConfig selects the document store backend: memory, postgres or sqlite.
type StoreConfig struct {
	Backend string `yaml:"backend"`
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	MaxConns       int32  `yaml:"maxConns"`
	MinConns       int32  `yaml:"minConns"`
	RunMigrations  bool   `yaml:"runMigrations"`
	MigrationsDir  string `yaml:"migrationsDir"`
	ConnMaxIdleSec int32  `yaml:"connMaxIdleSec"`
	ConnMaxLifeSec int32  `yaml:"connMaxLifeSec"`
}

// SQLiteConfig points at the local database file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string `yaml:"level"`
}

// LLMConfig configures the generative-model client.
type LLMConfig struct {
	Provider       string `yaml:"provider"`
	Model          string `yaml:"model"`
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"-"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

// WorkflowConfig holds the triage retry policy.
type WorkflowConfig struct {
	MaxRetries                int           `yaml:"maxRetries"`
	BaseBackoff               time.Duration `yaml:"baseBackoff"`
	MaxBackoff                time.Duration `yaml:"maxBackoff"`
	RetryClassification       bool          `yaml:"retryClassification"`
	RetryTransientModelErrors bool          `yaml:"retryTransientModelErrors"`
	Journal                   string        `yaml:"journal"`
	JournalTTL                time.Duration `yaml:"journalTTL"`
}

// EventsConfig selects the event bus transport: memory or redis.
type EventsConfig struct {
	Transport     string `yaml:"transport"`
	Stream        string `yaml:"stream"`
	ConsumerGroup string `yaml:"consumerGroup"`
	ConsumerName  string `yaml:"consumerName"`
	Concurrency   int    `yaml:"concurrency"`
}

// Load reads configuration from an optional YAML file and environment
// variables. Environment values win over the file.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(configPathEnv))
}

// LoadFile is Load with an explicit YAML path; an empty path skips the file.
func LoadFile(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:                  "ticket-triage",
			Env:                   "development",
			Host:                  "0.0.0.0",
			Port:                  "8080",
			Version:               "dev",
			RequestTimeoutSeconds: 30,
		},
		Store: StoreConfig{Backend: "memory"},
		Postgres: PostgresConfig{
			MaxConns:       10,
			MinConns:       2,
			RunMigrations:  true,
			MigrationsDir:  "migrations",
			ConnMaxIdleSec: 30,
			ConnMaxLifeSec: 300,
		},
		SQLite: SQLiteConfig{Path: "triage.db"},
		Logger: LoggerConfig{Level: "info"},
		LLM: LLMConfig{
			Provider:       "gemini",
			Model:          "gemini-1.5-flash-8b",
			TimeoutSeconds: 60,
		},
		Workflow: WorkflowConfig{
			MaxRetries:  3,
			BaseBackoff: time.Second,
			MaxBackoff:  30 * time.Second,
			Journal:     "memory",
			JournalTTL:  24 * time.Hour,
		},
		Events: EventsConfig{
			Transport:     "memory",
			Stream:        "triage-events",
			ConsumerGroup: "on-ticket-create",
			ConsumerName:  hostname(),
			Concurrency:   4,
		},
	}
}

func (c *Config) applyEnv() error {
	c.App.Name = getEnv("APP_NAME", c.App.Name)
	c.App.Env = getEnv("APP_ENV", c.App.Env)
	c.App.Host = getEnv("APP_HOST", c.App.Host)
	c.App.Port = getEnv("APP_PORT", c.App.Port)
	c.App.Version = getEnv("APP_VERSION", c.App.Version)
	c.App.RequestTimeoutSeconds = getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", c.App.RequestTimeoutSeconds)

	c.Store.Backend = strings.ToLower(getEnv("STORE_BACKEND", c.Store.Backend))

	c.Postgres.DSN = getEnv("POSTGRES_DSN", c.Postgres.DSN)
	c.Postgres.MaxConns = int32(getEnvAsInt("POSTGRES_MAX_CONNS", int(c.Postgres.MaxConns)))
	c.Postgres.MinConns = int32(getEnvAsInt("POSTGRES_MIN_CONNS", int(c.Postgres.MinConns)))
	c.Postgres.RunMigrations = getEnvAsBool("POSTGRES_RUN_MIGRATIONS", c.Postgres.RunMigrations)
	c.Postgres.MigrationsDir = getEnv("POSTGRES_MIGRATIONS_DIR", c.Postgres.MigrationsDir)
	c.Postgres.ConnMaxIdleSec = int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", int(c.Postgres.ConnMaxIdleSec)))
	c.Postgres.ConnMaxLifeSec = int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", int(c.Postgres.ConnMaxLifeSec)))

	c.SQLite.Path = getEnv("SQLITE_PATH", c.SQLite.Path)

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", strconv.Itoa(c.Redis.DB)))
	if err != nil {
		return fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = redisDB

	c.Logger.Level = getEnv("LOG_LEVEL", c.Logger.Level)

	c.LLM.Provider = strings.ToLower(getEnv("LLM_PROVIDER", c.LLM.Provider))
	c.LLM.Model = getEnv("LLM_MODEL", c.LLM.Model)
	c.LLM.Endpoint = getEnv("LLM_ENDPOINT", c.LLM.Endpoint)
	c.LLM.APIKey = getEnv("GEMINI_API_KEY", getEnv("LLM_API_KEY", c.LLM.APIKey))
	c.LLM.TimeoutSeconds = getEnvAsInt("LLM_TIMEOUT_SECONDS", c.LLM.TimeoutSeconds)

	c.Workflow.MaxRetries = getEnvAsInt("TRIAGE_MAX_RETRIES", c.Workflow.MaxRetries)
	c.Workflow.BaseBackoff = getEnvAsDuration("TRIAGE_BASE_BACKOFF", c.Workflow.BaseBackoff)
	c.Workflow.MaxBackoff = getEnvAsDuration("TRIAGE_MAX_BACKOFF", c.Workflow.MaxBackoff)
	c.Workflow.RetryClassification = getEnvAsBool("TRIAGE_RETRY_CLASSIFICATION", c.Workflow.RetryClassification)
	c.Workflow.RetryTransientModelErrors = getEnvAsBool("TRIAGE_RETRY_TRANSIENT_MODEL_ERRORS", c.Workflow.RetryTransientModelErrors)
	c.Workflow.Journal = strings.ToLower(getEnv("TRIAGE_JOURNAL", c.Workflow.Journal))
	c.Workflow.JournalTTL = getEnvAsDuration("TRIAGE_JOURNAL_TTL", c.Workflow.JournalTTL)

	c.Events.Transport = strings.ToLower(getEnv("EVENTS_TRANSPORT", c.Events.Transport))
	c.Events.Stream = getEnv("EVENTS_STREAM", c.Events.Stream)
	c.Events.ConsumerGroup = getEnv("EVENTS_CONSUMER_GROUP", c.Events.ConsumerGroup)
	c.Events.ConsumerName = getEnv("EVENTS_CONSUMER_NAME", c.Events.ConsumerName)
	c.Events.Concurrency = getEnvAsInt("EVENTS_CONCURRENCY", c.Events.Concurrency)
	return nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return ErrMissingAPIKey
	}
	switch c.LLM.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLM.Provider)
	}
	switch c.Store.Backend {
	case "memory", "sqlite":
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("POSTGRES_DSN is required for the postgres store backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}
	if c.Workflow.Journal != "memory" && c.Workflow.Journal != "redis" {
		return fmt.Errorf("unknown TRIAGE_JOURNAL %q", c.Workflow.Journal)
	}
	if c.Events.Transport != "memory" && c.Events.Transport != "redis" {
		return fmt.Errorf("unknown EVENTS_TRANSPORT %q", c.Events.Transport)
	}
	if (c.Workflow.Journal == "redis" || c.Events.Transport == "redis") && c.Redis.Addr == "" {
		return errors.New("REDIS_ADDR is required when redis journal or transport is selected")
	}
	if c.Workflow.MaxRetries < 0 {
		return fmt.Errorf("TRIAGE_MAX_RETRIES must be >= 0, got %d", c.Workflow.MaxRetries)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the per-call model timeout.
func (l LLMConfig) Timeout() time.Duration {
	if l.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(l.TimeoutSeconds) * time.Second
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "triage-worker"
	}
	return name
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
