package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ParsesSectionsAndExpandsEnv(t *testing.T) {
	t.Setenv("ANCHOR_TEST_REDIS_PASSWORD", "s3cret")

	raw := `
app:
  instance_id: "batcher-1"
logging:
  level: debug
  format: json
batch:
  enabled: true
  interval: 5s
  min_batch_size: 2
  price_timeout: 3s
netting:
  dust_epsilon: "0.01"
intents:
  driver: bolt
  bolt_path: /tmp/intents.db
prices:
  source: static
  static:
    ETH: "2000"
stores:
  redis:
    enabled: true
    addr: localhost:6379
    password: ${ANCHOR_TEST_REDIS_PASSWORD}
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "batcher-1", cfg.App.InstanceID)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Batch.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Batch.Interval)
	assert.Equal(t, 2, cfg.Batch.MinBatchSize)
	assert.Equal(t, "0.01", cfg.Netting.DustEpsilon)
	assert.Equal(t, "bolt", cfg.Intents.Driver)
	assert.Equal(t, "2000", cfg.Prices.Static["ETH"])
	assert.Equal(t, "s3cret", cfg.Stores.Redis.Password)
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
