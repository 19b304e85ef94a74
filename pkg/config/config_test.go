package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, []string{"*"}, c.Server.CORSOrigins)
	assert.Equal(t, "info", c.Logging.Level)
	assert.Equal(t, 0.05, c.Detector.Alpha)
	assert.Equal(t, 10, c.Detector.MaxOutliers)
	assert.Equal(t, 3.5, c.Detector.ZScoreThreshold)
	assert.Equal(t, 5*time.Second, c.Detector.Timeout)
	assert.Equal(t, "local", c.Analytics.Mode)
	assert.Equal(t, time.Minute, c.Analytics.CacheTTL.Anomaly)
	assert.Equal(t, 60, c.Analytics.Features.VolWindow)
	assert.Equal(t, []string{"localhost:9092"}, c.Kafka.Brokers)
	assert.Equal(t, -1, c.Kafka.RequiredAcks)
	assert.Equal(t, "finshock.detect.dlq", c.Kafka.Consumer.DLQTopic)
	assert.True(t, c.ClickHouse.WaitForAsync)
	assert.True(t, c.RateLimit.Enabled)
	assert.True(t, c.Feed.Enabled)
	assert.NoError(t, c.Validate())
}

func TestParse_ExplicitValuesWin(t *testing.T) {
	c, err := Parse([]byte(`
environment: prod
metrics:
  enabled: false
ratelimit:
  enabled: false
clickhouse:
  wait_for_async_insert: false
detector:
  alpha: 0.01
kafka:
  required_acks: 1
`))
	require.NoError(t, err)
	assert.False(t, c.Metrics.Enabled)
	assert.False(t, c.RateLimit.Enabled)
	assert.False(t, c.ClickHouse.WaitForAsync)
	assert.Equal(t, 0.01, c.Detector.Alpha)
	assert.Equal(t, 1, c.Kafka.RequiredAcks)
}

func TestParse_BadYAML(t *testing.T) {
	_, err := Parse([]byte("server: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		yaml string
		want string
	}{
		"no environment":   {"server: {port: 80}", "environment is required"},
		"bad port":         {"environment: x\nserver: {port: 70000}", "server.port"},
		"bad mode":         {"environment: x\nanalytics: {mode: gpu}", "analytics.mode"},
		"remote needs url": {"environment: x\nanalytics: {mode: remote}", "remote_url"},
		"alpha":            {"environment: x\ndetector: {alpha: 1.5}", "detector.alpha"},
		"max outliers":     {"environment: x\ndetector: {max_outliers: -1}", "detector.max_outliers"},
		"zscore":           {"environment: x\ndetector: {zscore_threshold: -2}", "detector.zscore_threshold"},
		"period":           {"environment: x\ndetector: {period: 1}", "detector.period"},
		"collector":        {"environment: x\nlogging: {collector: {enabled: true}}", "logging.collector"},
		"kafka brokers":    {"environment: x\nkafka: {enabled: true, brokers: []}", "kafka.brokers"},
		"ratelimit":        {"environment: x\nratelimit: {rps: 0}", "ratelimit"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c, err := Parse([]byte(tc.yaml))
			require.NoError(t, err)
			err = c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadWithEnv_Overrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: dev\n"), 0o600))
	t.Chdir(dir)

	t.Setenv("ENVIRONMENT", "staging")
	t.Setenv("HTTP_PORT", " 9090 ")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("CLICKHOUSE_HOST", "ch")
	t.Setenv("ANALYTICS_MODE", "REMOTE")
	t.Setenv("ANALYTICS_REMOTE_URL", "http://detector:8000")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", c.Environment)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "redis:6379", c.Redis.Addr)
	assert.Equal(t, "ch", c.ClickHouse.Host)
	assert.Equal(t, "remote", c.Analytics.Mode)
	assert.Equal(t, "http://detector:8000", c.Analytics.RemoteURL)
}

func TestLoadWithEnv_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: dev\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("HTTP_PORT=7070\n"), 0o600))
	t.Chdir(dir)
	t.Setenv("HTTP_PORT", "")
	os.Unsetenv("HTTP_PORT")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, c.Server.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestLoad_RepoConfig(t *testing.T) {
	c, err := Load("../../config/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "development", c.Environment)
	assert.False(t, c.Kafka.Enabled)
}
