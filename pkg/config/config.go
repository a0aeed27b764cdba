// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for the index,
// search, schema, record sources, caching, and the optional Kafka, Redis,
// PostgreSQL and metrics integrations.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Index    IndexConfig    `yaml:"index"`
	Search   SearchConfig   `yaml:"search"`
	Schema   SchemaConfig   `yaml:"schema"`
	Source   SourceConfig   `yaml:"source"`
	Cache    CacheConfig    `yaml:"cache"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// IndexConfig controls where the index lives, how text is analyzed, how the
// write lock is acquired, and how often dirty state is committed.
type IndexConfig struct {
	DataDir          string        `yaml:"dataDir"`
	StopWords        bool          `yaml:"stopWords"`
	CommitInterval   time.Duration `yaml:"commitInterval"`
	LockRetries      int           `yaml:"lockRetries"`
	LockRetryDelay   time.Duration `yaml:"lockRetryDelay"`
	ForceUnlockStale bool          `yaml:"forceUnlockStale"`
}

// SearchConfig controls result limits and scoring.
type SearchConfig struct {
	MaxResults   int    `yaml:"maxResults"`
	DefaultLimit int    `yaml:"defaultLimit"`
	Scoring      string `yaml:"scoring"`
}

// FieldConfig is the per-field indexing configuration.
type FieldConfig struct {
	Name    string `yaml:"name"`
	Stored  bool   `yaml:"stored"`
	Indexed bool   `yaml:"indexed"`
}

// SchemaConfig names the key field and the ordered field list.
type SchemaConfig struct {
	KeyField string        `yaml:"keyField"`
	Fields   []FieldConfig `yaml:"fields"`
}

// SourceConfig selects where the index command reads records from.
type SourceConfig struct {
	Type  string `yaml:"type"`
	Path  string `yaml:"path"`
	Table string `yaml:"table"`
}

// CacheConfig selects the result cache backend ("none", "memory", "redis").
type CacheConfig struct {
	Backend string `yaml:"backend"`
	Size    int    `yaml:"size"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	RecordEvents string `yaml:"recordEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config suitable for local use: an index under ./data, the
// flight schema, a 1000 result cap, and no external services.
func Default() *Config {
	return &Config{
		Index: IndexConfig{
			DataDir:          "data/index",
			StopWords:        true,
			CommitInterval:   5 * time.Second,
			LockRetries:      3,
			LockRetryDelay:   100 * time.Millisecond,
			ForceUnlockStale: true,
		},
		Search: SearchConfig{
			MaxResults:   1000,
			DefaultLimit: 1000,
			Scoring:      "tf",
		},
		Schema: SchemaConfig{
			KeyField: "id",
			Fields: []FieldConfig{
				{Name: "id", Stored: true, Indexed: true},
				{Name: "name", Stored: true, Indexed: true},
				{Name: "destination", Stored: true, Indexed: true},
			},
		},
		Source: SourceConfig{
			Type:  "file",
			Path:  "configs/flights.yaml",
			Table: "flights",
		},
		Cache: CacheConfig{
			Backend: "none",
			Size:    512,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "flights",
			User:            "flights",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "flightsearch-indexer",
			Topics: KafkaTopics{
				RecordEvents: "flight-records",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Index.DataDir == "" {
		return fmt.Errorf("index.dataDir must not be empty")
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.maxResults must be positive, got %d", c.Search.MaxResults)
	}
	if c.Search.DefaultLimit <= 0 || c.Search.DefaultLimit > c.Search.MaxResults {
		return fmt.Errorf("search.defaultLimit must be in 1..%d, got %d", c.Search.MaxResults, c.Search.DefaultLimit)
	}
	switch c.Search.Scoring {
	case "tf", "bm25":
	default:
		return fmt.Errorf("search.scoring must be tf or bm25, got %q", c.Search.Scoring)
	}
	switch c.Cache.Backend {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be none, memory or redis, got %q", c.Cache.Backend)
	}
	if len(c.Schema.Fields) == 0 {
		return fmt.Errorf("schema.fields must not be empty")
	}
	return nil
}

// applyEnvOverrides reads FS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FS_INDEX_DIR"); v != "" {
		cfg.Index.DataDir = v
	}
	if v := os.Getenv("FS_INDEX_STOPWORDS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Index.StopWords = b
		}
	}
	if v := os.Getenv("FS_INDEX_FORCE_UNLOCK_STALE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Index.ForceUnlockStale = b
		}
	}
	if v := os.Getenv("FS_SEARCH_SCORING"); v != "" {
		cfg.Search.Scoring = v
	}
	if v := os.Getenv("FS_SEARCH_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.MaxResults = n
		}
	}
	if v := os.Getenv("FS_SOURCE_TYPE"); v != "" {
		cfg.Source.Type = v
	}
	if v := os.Getenv("FS_SOURCE_PATH"); v != "" {
		cfg.Source.Path = v
	}
	if v := os.Getenv("FS_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("FS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("FS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("FS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("FS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("FS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("FS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("FS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("FS_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
	if v := os.Getenv("FS_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
