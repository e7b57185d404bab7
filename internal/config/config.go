package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Logging   LoggingConfig   `yaml:"logging"`
	Batch     BatchConfig     `yaml:"batch"`
	Netting   NettingConfig   `yaml:"netting"`
	Intents   IntentsConfig   `yaml:"intents"`
	Prices    PricesConfig    `yaml:"prices"`
	Security  SecurityConfig  `yaml:"security"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Dedupe    DedupeConfig    `yaml:"dedupe"`
	Stores    StoresConfig    `yaml:"stores"`
	PubSub    PubSubConfig    `yaml:"pubsub"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type AppConfig struct {
	InstanceID      string        `yaml:"instance_id"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

type BatchConfig struct {
	Enabled         bool          `yaml:"enabled"` // run the periodic scheduler
	Interval        time.Duration `yaml:"interval"`
	MinBatchSize    int           `yaml:"min_batch_size"`
	PriceTimeout    time.Duration `yaml:"price_timeout"`
	DistributedLock bool          `yaml:"distributed_lock"` // redis lock instead of in-process
	LockKey         string        `yaml:"lock_key"`
	LockTTL         time.Duration `yaml:"lock_ttl"`
}

type NettingConfig struct {
	DustEpsilon string `yaml:"dust_epsilon"` // decimal, "0" disables
}

type IntentsConfig struct {
	Driver   string `yaml:"driver"` // memory|bolt
	BoltPath string `yaml:"bolt_path"`
}

type PricesConfig struct {
	Source         string            `yaml:"source"` // static|hermes|none
	HermesURL      string            `yaml:"hermes_url"`
	FeedIDs        map[string]string `yaml:"feed_ids"`        // token -> pyth feed id
	Static         map[string]string `yaml:"static"`          // token -> usd price
	FallbackStatic bool              `yaml:"fallback_static"` // hermes: static prices when the feed fails
}

type JWTConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Alg           string        `yaml:"alg"` // RS256
	PublicKeyPath string        `yaml:"public_key_path"`
	Audience      string        `yaml:"audience"`
	Issuer        string        `yaml:"issuer"`
	Leeway        time.Duration `yaml:"leeway"`
}

type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

type RateBucket struct {
	RefillPerSec int           `yaml:"refill_per_sec"`
	Burst        int           `yaml:"burst"`
	TTL          time.Duration `yaml:"ttl"`
}

type RateLimitConfig struct {
	Enabled bool       `yaml:"enabled"`
	ByJWT   RateBucket `yaml:"by_jwt"`
	ByIP    RateBucket `yaml:"by_ip"`
}

type IngestConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Brokers        []string      `yaml:"brokers"`
	Topic          string        `yaml:"topic"`
	GroupID        string        `yaml:"group_id"`
	MinBytes       int           `yaml:"min_bytes"`
	MaxBytes       int           `yaml:"max_bytes"`
	MaxWait        time.Duration `yaml:"max_wait"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

type DedupeConfig struct {
	Driver string        `yaml:"driver"` // memory|redis
	Prefix string        `yaml:"prefix"`
	TTL    time.Duration `yaml:"ttl"`
}

type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Prefix       string        `yaml:"prefix"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type ClickHouseWriterConfig struct {
	BatchMaxRows     int           `yaml:"batch_max_rows"`
	BatchMaxInterval time.Duration `yaml:"batch_max_interval"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
}

type ClickHouseConfig struct {
	Enabled bool                   `yaml:"enabled"`
	DSN     string                 `yaml:"dsn"`
	Writer  ClickHouseWriterConfig `yaml:"writer"`
}

type StoresConfig struct {
	Redis      RedisConfig      `yaml:"redis"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

type NATSConfig struct {
	Enabled         bool   `yaml:"enabled"`
	URL             string `yaml:"url"`
	BroadcastPrefix string `yaml:"broadcast_prefix"`
}

type PubSubConfig struct {
	NATS NATSConfig `yaml:"nats"`
}

type CORSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
	Headers []string `yaml:"headers"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	GzipLevel    int           `yaml:"gzip_level"`
	CORS         CORSConfig    `yaml:"cors"`
}

type APIConfig struct {
	HTTP HTTPConfig `yaml:"http"`
}

type PyroscopeConfig struct {
	Enabled    bool              `yaml:"enabled"`
	AppName    string            `yaml:"app_name"`
	ServerAddr string            `yaml:"server_addr"`
	AuthToken  string            `yaml:"auth_token"`
	Tags       map[string]string `yaml:"tags"`
}

type MetricsConfig struct {
	Pyroscope PyroscopeConfig `yaml:"pyroscope"`
}

// Load reads the yaml file, expanding ${VAR} placeholders from the environment
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err = yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
