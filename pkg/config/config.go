package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from yaml strings like "5m" or "24h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	dur, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the value as a time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int      `yaml:"port"`
		ReadTimeout     Duration `yaml:"read_timeout"`
		WriteTimeout    Duration `yaml:"write_timeout"`
		ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	Postgres struct {
		Host         string   `yaml:"host"`
		Port         int      `yaml:"port"`
		Database     string   `yaml:"database"`
		User         string   `yaml:"user"`
		Password     string   `yaml:"password"`
		SSLMode      string   `yaml:"ssl_mode"`
		MaxConns     int      `yaml:"max_conns"`
		MinConns     int      `yaml:"min_conns"`
		ConnLifetime Duration `yaml:"conn_lifetime"`
	} `yaml:"postgres"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int      `yaml:"max_attempts"`
			Linger       Duration `yaml:"linger"`
			BatchBytes   int      `yaml:"batch_bytes"`
			BatchSize    int      `yaml:"batch_size"`
			WriteTimeout Duration `yaml:"write_timeout"`
			ReadTimeout  Duration `yaml:"read_timeout"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string   `yaml:"group_id"`
			Workers    int      `yaml:"workers"`
			BufferSize int      `yaml:"buffer_size"`
			RetryMax   int      `yaml:"retry_max"`
			BackoffMin Duration `yaml:"backoff_min"`
			BackoffMax Duration `yaml:"backoff_max"`
			DLQTopic   string   `yaml:"dlq_topic"`
			MinBytes   int      `yaml:"min_bytes"`
			MaxBytes   int      `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Audit struct {
		Enabled     bool     `yaml:"enabled"`
		Host        string   `yaml:"host"`
		Port        int      `yaml:"port"`
		Database    string   `yaml:"database"`
		User        string   `yaml:"user"`
		Password    string   `yaml:"password"`
		DialTimeout Duration `yaml:"dial_timeout"`
	} `yaml:"audit"`
	Identity struct {
		ProviderURL string   `yaml:"provider_url"`
		Timeout     Duration `yaml:"timeout"`
		// StaticTokens maps token -> "user_id:tier[:admin]" for dev setups
		// without an external provider.
		StaticTokens map[string]string `yaml:"static_tokens"`
	} `yaml:"identity"`
	Gateway struct {
		SendBuffer   int      `yaml:"send_buffer"`
		WriteTimeout Duration `yaml:"write_timeout"`
		PingInterval Duration `yaml:"ping_interval"`
	} `yaml:"gateway"`
	Signals struct {
		DedupBucket        Duration `yaml:"dedup_bucket"`
		RecommendThreshold float64  `yaml:"recommend_threshold"`
		PublishRetryMax    int      `yaml:"publish_retry_max"`
		PublishBackoffMin  Duration `yaml:"publish_backoff_min"`
		PublishBackoffMax  Duration `yaml:"publish_backoff_max"`
	} `yaml:"signals"`
	Sync struct {
		MaxLimit      int      `yaml:"max_limit"`
		RecentWindow  Duration `yaml:"recent_window"`
		StatsCacheTTL Duration `yaml:"stats_cache_ttl"`
		Redis         struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"sync"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

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
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		c.Postgres.Host = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		c.Postgres.Password = v
	}
	if v := os.Getenv("IDENTITY_PROVIDER_URL"); v != "" {
		c.Identity.ProviderURL = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "signals.fanout"
	}
	if c.Kafka.Consumer.GroupID == "" {
		c.Kafka.Consumer.GroupID = "tradecast-fanout"
	}
	if c.Gateway.SendBuffer == 0 {
		c.Gateway.SendBuffer = 16
	}
	if c.Gateway.WriteTimeout == 0 {
		c.Gateway.WriteTimeout = Duration(5 * time.Second)
	}
	if c.Signals.DedupBucket == 0 {
		c.Signals.DedupBucket = Duration(5 * time.Minute)
	}
	if c.Signals.RecommendThreshold == 0 {
		c.Signals.RecommendThreshold = 80
	}
	if c.Signals.PublishRetryMax == 0 {
		c.Signals.PublishRetryMax = 3
	}
	if c.Signals.PublishBackoffMin == 0 {
		c.Signals.PublishBackoffMin = Duration(50 * time.Millisecond)
	}
	if c.Signals.PublishBackoffMax == 0 {
		c.Signals.PublishBackoffMax = Duration(2 * time.Second)
	}
	if c.Sync.MaxLimit == 0 {
		c.Sync.MaxLimit = 200
	}
	if c.Sync.RecentWindow == 0 {
		c.Sync.RecentWindow = Duration(24 * time.Hour)
	}
	if c.Sync.StatsCacheTTL == 0 {
		c.Sync.StatsCacheTTL = Duration(30 * time.Second)
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Postgres.Host == "" {
		return fmt.Errorf("postgres.host is required")
	}
	if c.Postgres.Database == "" {
		return fmt.Errorf("postgres.database is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty")
	}
	if c.Identity.ProviderURL == "" && len(c.Identity.StaticTokens) == 0 {
		return fmt.Errorf("identity.provider_url or identity.static_tokens is required")
	}
	if c.Audit.Enabled && c.Audit.Host == "" {
		return fmt.Errorf("audit.host is required when audit is enabled")
	}
	return nil
}
