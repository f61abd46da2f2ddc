// Package config loads and validates watcher configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

// Archive backends.
const (
	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
	ArchiveS3     = "s3"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Gazette   GazetteConfig   `mapstructure:"gazette"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int  `mapstructure:"port"`
	RequestTimeoutSeconds int  `mapstructure:"request_timeout_seconds"`
	LiveFeed              bool `mapstructure:"live_feed"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// GazetteConfig describes the listing page to scrape.
type GazetteConfig struct {
	URL            string `mapstructure:"url"`
	Origin         string `mapstructure:"origin"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// SchedulerConfig controls the background fetch loop.
type SchedulerConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	WarmupSeconds   int  `mapstructure:"warmup_seconds"`
	IntervalSeconds int  `mapstructure:"interval_seconds"`
}

// NotifyConfig configures the Telegram client and pacing.
type NotifyConfig struct {
	APIBaseURL     string  `mapstructure:"api_base_url"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	BatchSize      int     `mapstructure:"batch_size"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	Burst          int     `mapstructure:"burst"`
}

// StorageConfig selects and configures the post store.
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// MongoConfig holds the MongoDB connection settings.
type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// PostgresConfig holds the Postgres pool settings.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ArchiveConfig selects where raw listing pages are snapshotted.
type ArchiveConfig struct {
	Backend string           `mapstructure:"backend"`
	Prefix  string           `mapstructure:"prefix"`
	Local   LocalArchiveConf `mapstructure:"local"`
	GCS     GCSArchiveConf   `mapstructure:"gcs"`
	S3      S3ArchiveConf    `mapstructure:"s3"`
}

// LocalArchiveConf configures the filesystem archive.
type LocalArchiveConf struct {
	BaseDir string `mapstructure:"base_dir"`
}

// GCSArchiveConf configures the Cloud Storage archive.
type GCSArchiveConf struct {
	Bucket string `mapstructure:"bucket"`
}

// S3ArchiveConf configures an S3-compatible archive. Empty keys fall back to
// the AWS default credential chain.
type S3ArchiveConf struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// PubSubConfig holds metadata for new-post events.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// KafkaConfig routes new-post events to Kafka instead of Pub/Sub.
type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	ClientID string   `mapstructure:"client_id"`
}

// RedisConfig routes new-post events to a Redis stream.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// Load builds a Config from disk/environment. Environment variables use the
// GAZETTE_ prefix with dots replaced by underscores; PORT overrides
// server.port.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GAZETTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.port", "PORT", "GAZETTE_SERVER_PORT"); err != nil {
		return Config{}, fmt.Errorf("bind PORT: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.live_feed", true)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("gazette.url", "https://gazette.gov.mv/iulaan?type=&job-category="+
		"&office=%DE%8A%DE%AA%DE%82%DE%A6%DE%8B%DE%AB&q=&start-date=&end-date=")
	v.SetDefault("gazette.origin", "https://gazette.gov.mv")
	v.SetDefault("gazette.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 "+
		"(KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	v.SetDefault("gazette.timeout_seconds", 20)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.warmup_seconds", 5)
	v.SetDefault("scheduler.interval_seconds", 1800)
	v.SetDefault("notify.api_base_url", "https://api.telegram.org")
	v.SetDefault("notify.timeout_seconds", 20)
	v.SetDefault("notify.batch_size", 20)
	v.SetDefault("notify.rate_per_second", 1.0)
	v.SetDefault("notify.burst", 1)
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.mongo.uri", "")
	v.SetDefault("storage.mongo.database", "gazette")
	v.SetDefault("storage.mongo.collection", "gazettepost")
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.table", "gazettepost")
	v.SetDefault("storage.postgres.max_conns", 4)
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.prefix", "snapshots")
	v.SetDefault("archive.local.base_dir", "")
	v.SetDefault("archive.gcs.bucket", "")
	v.SetDefault("archive.s3.bucket", "")
	v.SetDefault("archive.s3.region", "us-east-1")
	v.SetDefault("archive.s3.endpoint", "")
	v.SetDefault("archive.s3.access_key", "")
	v.SetDefault("archive.s3.secret_key", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "gazette-posts")
	v.SetDefault("kafka.client_id", "gazette-watcher")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "gazette:posts")
	v.SetDefault("redis.max_len", 10000)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if strings.TrimSpace(c.Gazette.URL) == "" {
		return fmt.Errorf("gazette.url is required")
	}
	if c.Gazette.TimeoutSeconds <= 0 {
		return fmt.Errorf("gazette.timeout_seconds must be > 0")
	}
	if c.Scheduler.WarmupSeconds < 0 {
		return fmt.Errorf("scheduler.warmup_seconds must be >= 0")
	}
	if c.Scheduler.IntervalSeconds <= 0 {
		return fmt.Errorf("scheduler.interval_seconds must be > 0")
	}
	if c.Notify.TimeoutSeconds <= 0 {
		return fmt.Errorf("notify.timeout_seconds must be > 0")
	}
	if c.Notify.BatchSize <= 0 {
		return fmt.Errorf("notify.batch_size must be > 0")
	}
	if c.Notify.RatePerSecond < 0 || c.Notify.Burst < 0 {
		return fmt.Errorf("notify.rate_per_second and notify.burst must be >= 0")
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendMongo:
		if c.Storage.Mongo.URI == "" || c.Storage.Mongo.Database == "" {
			return fmt.Errorf("storage.mongo.uri and storage.mongo.database are required for the mongo backend")
		}
	case BackendPostgres:
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}

	switch c.Archive.Backend {
	case ArchiveNone, ArchiveMemory:
	case ArchiveLocal:
		if c.Archive.Local.BaseDir == "" {
			return fmt.Errorf("archive.local.base_dir is required for the local archive")
		}
	case ArchiveGCS:
		if c.Archive.GCS.Bucket == "" {
			return fmt.Errorf("archive.gcs.bucket is required for the gcs archive")
		}
	case ArchiveS3:
		if c.Archive.S3.Bucket == "" {
			return fmt.Errorf("archive.s3.bucket is required for the s3 archive")
		}
	default:
		return fmt.Errorf("unknown archive.backend %q", c.Archive.Backend)
	}

	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	sinks := 0
	for _, on := range []bool{c.PubSub.ProjectID != "", len(c.Kafka.Brokers) > 0, c.Redis.Addr != ""} {
		if on {
			sinks++
		}
	}
	if sinks > 1 {
		return fmt.Errorf("configure at most one event sink among pubsub, kafka and redis")
	}
	if len(c.Kafka.Brokers) > 0 && strings.TrimSpace(c.Kafka.Topic) == "" {
		return fmt.Errorf("kafka.topic is required when kafka.brokers is set")
	}
	if c.Redis.Addr != "" && strings.TrimSpace(c.Redis.Stream) == "" {
		return fmt.Errorf("redis.stream is required when redis.addr is set")
	}
	if c.Redis.MaxLen < 0 {
		return fmt.Errorf("redis.max_len must be >= 0")
	}
	return nil
}

// GazetteTimeout returns the listing fetch timeout.
func (c Config) GazetteTimeout() time.Duration {
	return time.Duration(c.Gazette.TimeoutSeconds) * time.Second
}

// NotifyTimeout returns the per-message Bot API timeout.
func (c Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notify.TimeoutSeconds) * time.Second
}

// RequestTimeout returns the HTTP request deadline.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// SchedulerWarmup returns the delay before the first scheduled cycle.
func (c Config) SchedulerWarmup() time.Duration {
	return time.Duration(c.Scheduler.WarmupSeconds) * time.Second
}

// SchedulerInterval returns the delay between scheduled cycles.
func (c Config) SchedulerInterval() time.Duration {
	return time.Duration(c.Scheduler.IntervalSeconds) * time.Second
}
