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

	"speedliner/pkg/logger"
)

type Config struct {
	Environment string        `yaml:"environment"`
	Logger      logger.Config `yaml:"logger"`
	Server      struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
		ClientCookie    string        `yaml:"client_cookie"`
		SecureCookie    bool          `yaml:"secure_cookie"`
		PingInterval    time.Duration `yaml:"ping_interval"`
		RateLimit       struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled       bool          `yaml:"enabled"`
		Path          string        `yaml:"path"`
		SlowThreshold time.Duration `yaml:"slow_threshold"`
	} `yaml:"metrics"`
	Express struct {
		CooldownMinutes  int           `yaml:"cooldown_minutes"`
		Debounce         time.Duration `yaml:"debounce"`
		Note             string        `yaml:"note"`
		SubmissionURL    string        `yaml:"submission_url"`
		IdentityURL      string        `yaml:"identity_url"`
		RequestTimeout   time.Duration `yaml:"request_timeout"`
		FallbackIdentity struct {
			ID   int64  `yaml:"id"`
			Name string `yaml:"name"`
		} `yaml:"fallback_identity"`
		RateLimit struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rate_limit"`
	} `yaml:"express"`
	Routes struct {
		SourceURL       string        `yaml:"source_url"`
		RefreshInterval time.Duration `yaml:"refresh_interval"`
		Topic           string        `yaml:"topic"`
		AdminToken      string        `yaml:"admin_token"`
		CacheTTL        time.Duration `yaml:"cache_ttl"`
	} `yaml:"routes"`
	CooldownStore struct {
		Type      string `yaml:"type"` // layered | redis | memory (development and test only)
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"cooldown_store"`
	Redis struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`
	Audit struct {
		Backend string `yaml:"backend"` // none | kafka | clickhouse
		Topic   string `yaml:"topic"`
		Table   string `yaml:"table"`
	} `yaml:"audit"`
	LogCollector struct {
		Enabled        bool          `yaml:"enabled"`
		Topic          string        `yaml:"topic"`
		FlushInterval  time.Duration `yaml:"flush_interval"`
		CountThreshold int           `yaml:"count_threshold"`
	} `yaml:"log_collector"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts      int           `yaml:"max_attempts"`
			Linger           time.Duration `yaml:"linger"`
			BatchSize        int           `yaml:"batch_size"`
			WriteTimeout     time.Duration `yaml:"write_timeout"`
			AutoCreateTopics bool          `yaml:"auto_create_topics"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host         string        `yaml:"host"`
		Port         int           `yaml:"port"`
		Database     string        `yaml:"database"`
		User         string        `yaml:"user"`
		Password     string        `yaml:"password"`
		DialTimeout  time.Duration `yaml:"dial_timeout"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		AsyncInsert  bool          `yaml:"async_insert"`
		WaitForAsync bool          `yaml:"wait_for_async_insert"`
	} `yaml:"clickhouse"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// A .env file next to the process is read first when present.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("EXPRESS_COOLDOWN_MINUTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EXPRESS_COOLDOWN_MINUTES: %w", err)
		}
		c.Express.CooldownMinutes = n
	}
	if v := os.Getenv("EXPRESS_SUBMISSION_URL"); v != "" {
		c.Express.SubmissionURL = v
	}
	if v := os.Getenv("EXPRESS_IDENTITY_URL"); v != "" {
		c.Express.IdentityURL = v
	}
	if v := os.Getenv("ROUTES_SOURCE_URL"); v != "" {
		c.Routes.SourceURL = v
	}
	if v := os.Getenv("ROUTES_ADMIN_TOKEN"); v != "" {
		c.Routes.AdminToken = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("AUDIT_BACKEND"); v != "" {
		c.Audit.Backend = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.ClientCookie == "" {
		c.Server.ClientCookie = "speedliner_client"
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.PingInterval == 0 {
		c.Server.PingInterval = 30 * time.Second
	}
	if c.Server.RateLimit.RPS == 0 {
		c.Server.RateLimit.RPS = 20
	}
	if c.Server.RateLimit.Burst == 0 {
		c.Server.RateLimit.Burst = 40
	}
	if c.Express.RateLimit.RPS == 0 {
		c.Express.RateLimit.RPS = 0.2
	}
	if c.Express.RateLimit.Burst == 0 {
		c.Express.RateLimit.Burst = 3
	}
	if c.Routes.CacheTTL == 0 {
		c.Routes.CacheTTL = 30 * time.Second
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Express.CooldownMinutes == 0 {
		c.Express.CooldownMinutes = 5
	}
	if c.Express.Debounce == 0 {
		c.Express.Debounce = 120 * time.Millisecond
	}
	if c.Express.Note == "" {
		c.Express.Note = "Express request from the rate calculator."
	}
	if c.Express.RequestTimeout == 0 {
		c.Express.RequestTimeout = 15 * time.Second
	}
	if c.Express.FallbackIdentity.Name == "" {
		c.Express.FallbackIdentity.Name = "Unknown pilot"
	}
	if c.CooldownStore.Type == "" {
		c.CooldownStore.Type = "layered"
	}
	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.CooldownStore.KeyPrefix == "" {
		c.CooldownStore.KeyPrefix = "express:cooldown"
	}
	if c.Audit.Backend == "" {
		c.Audit.Backend = "none"
	}
	if c.Audit.Topic == "" {
		c.Audit.Topic = "express.submissions"
	}
	if c.Audit.Table == "" {
		c.Audit.Table = "speedliner.express_submissions"
	}
	if c.LogCollector.Topic == "" {
		c.LogCollector.Topic = "logs.aggregated"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Express.CooldownMinutes < 0 {
		return fmt.Errorf("express.cooldown_minutes must be >= 0, got %d", c.Express.CooldownMinutes)
	}
	if c.Express.SubmissionURL == "" {
		return fmt.Errorf("express.submission_url is required")
	}
	switch c.CooldownStore.Type {
	case "memory":
		// A restart would forget every armed cooldown.
		if !c.localOnly() {
			return fmt.Errorf("cooldown_store.type=memory is only allowed for development or test, got environment '%s'", c.Environment)
		}
	case "redis", "layered":
		if c.Redis.Host == "" {
			return fmt.Errorf("redis.host is required for cooldown_store.type=%s", c.CooldownStore.Type)
		}
	default:
		return fmt.Errorf("cooldown_store.type must be 'memory', 'redis' or 'layered', got '%s'", c.CooldownStore.Type)
	}
	switch c.Audit.Backend {
	case "none":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required for audit.backend=kafka")
		}
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for audit.backend=clickhouse")
		}
	default:
		return fmt.Errorf("audit.backend must be 'none', 'kafka' or 'clickhouse', got '%s'", c.Audit.Backend)
	}
	if c.Routes.AdminToken == "" && !c.localOnly() {
		return fmt.Errorf("routes.admin_token is required outside development and test (PUT /api/routes)")
	}
	if c.Routes.Topic != "" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when routes.topic is set")
	}
	if c.LogCollector.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when log_collector is enabled")
	}
	return nil
}

func (c *Config) localOnly() bool {
	return c.Environment == "development" || c.Environment == "test"
}

// CooldownWindow is the express lockout after a successful submission.
func (c *Config) CooldownWindow() time.Duration {
	return time.Duration(c.Express.CooldownMinutes) * time.Minute
}

// KafkaEnabled reports whether any component needs a Kafka connection.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}
