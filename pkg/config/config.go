// Package config loads and validates miner configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Mining, Ontologies, Output, Postgres, Kafka, Redis, etc.).
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/logger"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Mining      MiningConfig      `yaml:"mining"`
	Ontologies  OntologiesConfig  `yaml:"ontologies"`
	Annotations AnnotationsConfig `yaml:"annotations"`
	Output      OutputConfig      `yaml:"output"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Redis       RedisConfig       `yaml:"redis"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// MiningConfig controls the level-wise miner: support threshold, worker
// pool width and the per-level hardening limits.
type MiningConfig struct {
	MinSupport            int           `yaml:"minSupport"`
	Workers               int           `yaml:"workers"`
	BatchSize             int           `yaml:"batchSize"`
	MaxCandidatesPerLevel int           `yaml:"maxCandidatesPerLevel"`
	LevelTimeout          time.Duration `yaml:"levelTimeout"`
	MaxLevel              int           `yaml:"maxLevel"`
}

// OntologySource points at one OBO file and names its root placeholders.
type OntologySource struct {
	Path  string   `yaml:"path"`
	Roots []string `yaml:"roots"`
}

// OntologiesConfig holds the two vocabularies. Function is indexed first.
type OntologiesConfig struct {
	Function  OntologySource `yaml:"function"`
	Phenotype OntologySource `yaml:"phenotype"`
}

type AnnotationsConfig struct {
	Path string `yaml:"path"`
}

// OutputConfig controls the primary result stream.
type OutputConfig struct {
	Path        string `yaml:"path"`
	Compression string `yaml:"compression"`
}

// PostgresConfig holds PostgreSQL connection parameters for the pattern store.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
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
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// RedisConfig holds Redis connection parameters and the leaderboard TTL.
type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	PoolSize  int           `yaml:"poolSize"`
	KeyPrefix string        `yaml:"keyPrefix"`
	TTL       time.Duration `yaml:"ttl"`
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

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result.
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

// Default returns a Config matching the reference mining run: support 100,
// 48 workers, gzip output.
func Default() *Config {
	return &Config{
		Mining: MiningConfig{
			MinSupport: 100,
			Workers:    48,
			BatchSize:  4096,
		},
		Ontologies: OntologiesConfig{
			Function: OntologySource{
				Path:  "data/go.obo",
				Roots: []string{"GO:0008150", "GO:0003674", "GO:0005575"},
			},
			Phenotype: OntologySource{
				Path:  "data/hp.obo",
				Roots: []string{"HP:0000001"},
			},
		},
		Annotations: AnnotationsConfig{
			Path: "data/annotations.tsv",
		},
		Output: OutputConfig{
			Path:        "data/results.gz",
			Compression: "gzip",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "termsets",
			User:            "termsets",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "termset-patterns",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "cooccur",
			TTL:       7 * 24 * time.Hour,
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

// Validate rejects settings the miner cannot run with. A support threshold
// below 2 enumerates the near-complete powerset and is refused.
func (c *Config) Validate() error {
	if c.Mining.MinSupport < 2 {
		return fmt.Errorf("%w: mining.minSupport must be at least 2, got %d",
			apperrors.ErrInvalidThreshold, c.Mining.MinSupport)
	}
	if c.Mining.Workers < 1 {
		return fmt.Errorf("%w: mining.workers must be positive, got %d",
			apperrors.ErrInvalidConfig, c.Mining.Workers)
	}
	if c.Mining.BatchSize < 1 {
		return fmt.Errorf("%w: mining.batchSize must be positive, got %d",
			apperrors.ErrInvalidConfig, c.Mining.BatchSize)
	}
	if c.Mining.MaxCandidatesPerLevel < 0 || c.Mining.MaxLevel < 0 || c.Mining.LevelTimeout < 0 {
		return fmt.Errorf("%w: mining limits must not be negative", apperrors.ErrInvalidConfig)
	}
	switch c.Output.Compression {
	case "gzip", "zstd", "none":
	default:
		return fmt.Errorf("%w: unknown output.compression %q", apperrors.ErrInvalidConfig, c.Output.Compression)
	}
	if c.Output.Path == "" {
		return fmt.Errorf("%w: output.path is required", apperrors.ErrInvalidConfig)
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %v", apperrors.ErrInvalidConfig, err)
	}
	if !slices.Contains(logger.Formats(), c.Logging.Format) {
		return fmt.Errorf("%w: logging.format %q, want one of %v",
			apperrors.ErrInvalidConfig, c.Logging.Format, logger.Formats())
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("%w: kafka.brokers and kafka.topic are required when kafka is enabled",
			apperrors.ErrInvalidConfig)
	}
	return nil
}

// applyEnvOverrides reads CO_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CO_MIN_SUPPORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Mining.MinSupport = n
		}
	}
	if v := os.Getenv("CO_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Mining.Workers = n
		}
	}
	if v := os.Getenv("CO_MAX_CANDIDATES_PER_LEVEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Mining.MaxCandidatesPerLevel = n
		}
	}
	if v := os.Getenv("CO_LEVEL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Mining.LevelTimeout = d
		}
	}
	if v := os.Getenv("CO_FUNCTION_OBO"); v != "" {
		cfg.Ontologies.Function.Path = v
	}
	if v := os.Getenv("CO_PHENOTYPE_OBO"); v != "" {
		cfg.Ontologies.Phenotype.Path = v
	}
	if v := os.Getenv("CO_ANNOTATIONS"); v != "" {
		cfg.Annotations.Path = v
	}
	if v := os.Getenv("CO_OUTPUT_PATH"); v != "" {
		cfg.Output.Path = v
	}
	if v := os.Getenv("CO_OUTPUT_COMPRESSION"); v != "" {
		cfg.Output.Compression = v
	}
	if v := os.Getenv("CO_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("CO_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("CO_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CO_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CO_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CO_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
