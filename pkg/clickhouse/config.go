package clickhouse

import (
	"errors"
	"net/url"
	"strconv"
	"time"
)

// Defaults applied by NewClient to zero Config fields. The anomaly store
// writes one small block per detection and the candle reader issues short
// range scans, so a modest pool is enough for both.
const (
	DefaultPort            = 9000
	DefaultDatabase        = "default"
	DefaultUser            = "default"
	DefaultMaxOpenConns    = 10
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 5 * time.Minute
	DefaultDialTimeout     = 5 * time.Second
	DefaultReadTimeout     = 10 * time.Second
)

var errNoHost = errors.New("clickhouse: host is required")

// Config is the connection shared by the anomaly store and the candle reader.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string

	// UseHTTP talks to the HTTP interface (8123) instead of the native one.
	UseHTTP bool

	// AsyncInsert lets the server buffer detection rows. WaitForAsyncInsert
	// keeps SaveDetection synchronous with the flush.
	AsyncInsert        bool
	WaitForAsyncInsert bool

	DialTimeout time.Duration
	ReadTimeout time.Duration
	// MaxExecutionTime caps candle range scans server-side. Zero leaves the
	// server setting alone.
	MaxExecutionTime time.Duration

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.User == "" {
		c.User = DefaultUser
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = DefaultMaxOpenConns
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = min(DefaultMaxIdleConns, c.MaxOpenConns)
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = DefaultConnMaxLifetime
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	return c
}

func (c Config) validate() error {
	if c.Host == "" {
		return errNoHost
	}
	return nil
}

func (c Config) addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// dsn renders the driver URL. Write timeouts stay client-side: some server
// versions reject write_timeout as a setting.
func (c Config) dsn() string {
	scheme := "clickhouse"
	if c.UseHTTP {
		scheme = "http"
	}
	u := url.URL{
		Scheme: scheme,
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.addr(),
		Path:   "/" + c.Database,
	}

	q := url.Values{}
	if c.DialTimeout > 0 {
		q.Set("dial_timeout", c.DialTimeout.String())
	}
	if c.ReadTimeout > 0 {
		q.Set("read_timeout", c.ReadTimeout.String())
	}
	if c.MaxExecutionTime > 0 {
		q.Set("max_execution_time", strconv.Itoa(int(c.MaxExecutionTime.Seconds())))
	}
	if c.AsyncInsert {
		q.Set("async_insert", "1")
		if c.WaitForAsyncInsert {
			q.Set("wait_for_async_insert", "1")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
