package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"FinShock/pkg/logger"
	"FinShock/pkg/util"
)

type Config struct {
	Environment string           `yaml:"environment"`
	Server      ServerConfig     `yaml:"server"`
	Logging     LoggingConfig    `yaml:"logging"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Detector    DetectorConfig   `yaml:"detector"`
	Analytics   AnalyticsConfig  `yaml:"analytics"`
	Redis       RedisConfig      `yaml:"redis"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	RateLimit   RateLimitConfig  `yaml:"ratelimit"`
	Feed        FeedConfig       `yaml:"feed"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	SlowThreshold   time.Duration `yaml:"slow_threshold" default:"1s"`
	CORSOrigins     []string      `yaml:"cors_origins" default:"[\"*\"]"`
}

type LoggingConfig struct {
	logger.Config `yaml:",inline"`
	Collector     struct {
		Enabled   bool          `yaml:"enabled"`
		Topic     string        `yaml:"topic" default:"finshock.logs"`
		Interval  time.Duration `yaml:"interval" default:"30s"`
		Threshold int           `yaml:"threshold" default:"100"`
	} `yaml:"collector"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

// DetectorConfig holds the detection parameters applied when a request does
// not carry its own.
type DetectorConfig struct {
	Alpha           float64       `yaml:"alpha" default:"0.05"`
	MaxOutliers     int           `yaml:"max_outliers" default:"10"`
	ZScoreThreshold float64       `yaml:"zscore_threshold" default:"3.5"`
	Period          int           `yaml:"period"`
	Timeout         time.Duration `yaml:"timeout" default:"5s"`
	BatchMaxItems   int           `yaml:"batch_max_items" default:"100"`
	BatchWorkers    int           `yaml:"batch_workers" default:"4"`
}

type AnalyticsConfig struct {
	Mode      string        `yaml:"mode" default:"local"`
	RemoteURL string        `yaml:"remote_url"`
	Timeout   time.Duration `yaml:"timeout" default:"10s"`
	Retries   int           `yaml:"retries" default:"2"`
	CacheTTL  struct {
		Anomaly time.Duration `yaml:"anomaly" default:"1m"`
	} `yaml:"cache_ttl"`
	Features struct {
		VolWindow   int    `yaml:"vol_window" default:"60"`
		DefaultBars int    `yaml:"default_bars" default:"300"`
		MaxBars     int    `yaml:"max_bars" default:"5000"`
		Timeframe   string `yaml:"timeframe" default:"1m"`
	} `yaml:"features"`
}

type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr" default:"localhost:6379"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix" default:"finshock:"`
	PoolSize  int           `yaml:"pool_size" default:"10"`
	Timeout   time.Duration `yaml:"timeout" default:"2s"`
	L1Size    int           `yaml:"l1_size" default:"1000"`
}

type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
	RequestTopic string   `yaml:"request_topic" default:"finshock.detect.requests"`
	ResultTopic  string   `yaml:"result_topic" default:"finshock.detect.results"`
	RequiredAcks int      `yaml:"required_acks" default:"-1"`
	Compression  string   `yaml:"compression" default:"gzip"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		Linger       time.Duration `yaml:"linger" default:"50ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"finshock-detector"`
		Workers    int           `yaml:"workers" default:"4"`
		BufferSize int           `yaml:"buffer_size" default:"64"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
		DLQTopic   string        `yaml:"dlq_topic" default:"finshock.detect.dlq"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
	} `yaml:"consumer"`
}

type ClickHouseConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"finshock"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert" default:"true"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	MaxOpenConns     int           `yaml:"max_open_conns" default:"10"`
	MaxIdleConns     int           `yaml:"max_idle_conns" default:"5"`
	CandleTable1s    string        `yaml:"candle_table_1s" default:"rt_candles_1s"`
	CandleTable1m    string        `yaml:"candle_table_1m" default:"rt_candles_1m"`
}

type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" default:"true"`
	RPS     float64       `yaml:"rps" default:"20"`
	Burst   int           `yaml:"burst" default:"40"`
	TTL     time.Duration `yaml:"ttl" default:"10m"`
}

type FeedConfig struct {
	Enabled      bool          `yaml:"enabled" default:"true"`
	SendBuffer   int           `yaml:"send_buffer" default:"64"`
	PingInterval time.Duration `yaml:"ping_interval" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	MaxClients   int           `yaml:"max_clients" default:"1000"`
}

// Load reads a YAML file on top of the struct defaults and validates it.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Parse decodes YAML without validating. Defaults are applied first so that
// explicit zero values in the file win.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads .env (when present), then the YAML file, then applies
// environment overrides before validating.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, err
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	c.Server.Port = util.ParseIntDefault(os.Getenv("HTTP_PORT"), c.Server.Port)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitTrim(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("ANALYTICS_MODE"); v != "" {
		c.Analytics.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("ANALYTICS_REMOTE_URL"); v != "" {
		c.Analytics.RemoteURL = v
	}
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Environment == "" {
		errs = append(errs, errors.New("environment is required"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}

	switch c.Analytics.Mode {
	case "local":
	case "remote":
		if c.Analytics.RemoteURL == "" {
			errs = append(errs, errors.New("analytics.remote_url is required in remote mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("analytics.mode must be 'local' or 'remote', got '%s'", c.Analytics.Mode))
	}

	d := c.Detector
	if d.Alpha <= 0 || d.Alpha >= 1 {
		errs = append(errs, fmt.Errorf("detector.alpha must be in (0,1), got %v", d.Alpha))
	}
	if d.MaxOutliers < 1 {
		errs = append(errs, fmt.Errorf("detector.max_outliers must be >= 1, got %d", d.MaxOutliers))
	}
	if d.ZScoreThreshold <= 0 {
		errs = append(errs, fmt.Errorf("detector.zscore_threshold must be > 0, got %v", d.ZScoreThreshold))
	}
	if d.Period != 0 && d.Period < 2 {
		errs = append(errs, fmt.Errorf("detector.period must be 0 or >= 2, got %d", d.Period))
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers cannot be empty when kafka is enabled"))
	}
	if c.Kafka.Enabled && (c.Kafka.RequestTopic == "" || c.Kafka.ResultTopic == "") {
		errs = append(errs, errors.New("kafka.request_topic and kafka.result_topic are required"))
	}
	if c.Logging.Collector.Enabled && !c.Kafka.Enabled {
		errs = append(errs, errors.New("logging.collector requires kafka.enabled"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst < 1) {
		errs = append(errs, errors.New("ratelimit.rps and ratelimit.burst must be positive"))
	}
	return errors.Join(errs...)
}
