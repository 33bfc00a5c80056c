package envconf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type nested struct {
	Brokers []string `env:"ENVCONF_TEST_BROKERS" default:""`
	Limit   int      `env:"ENVCONF_TEST_LIMIT" default:"3"`
}

type testConfig struct {
	Port     uint16        `env:"ENVCONF_TEST_PORT"`
	Timeout  time.Duration `env:"ENVCONF_TEST_TIMEOUT" default:"15s"`
	Level    zapcore.Level `env:"ENVCONF_TEST_LEVEL" default:"info"`
	Enabled  *bool         `env:"ENVCONF_TEST_ENABLED" default:"true"`
	Nested   nested
	internal string
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("ENVCONF_TEST_PORT", "8081")
	t.Setenv("ENVCONF_TEST_BROKERS", "kafka-1:9092, kafka-2:9092,,")
	t.Setenv("ENVCONF_TEST_LEVEL", "debug")

	cfg := new(testConfig)

	err := Load(cfg)
	require.NoError(t, err)

	assert.Equal(t, uint16(8081), cfg.Port)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level)
	require.NotNil(t, cfg.Enabled)
	assert.True(t, *cfg.Enabled)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Nested.Brokers)
	assert.Equal(t, 3, cfg.Nested.Limit)
}

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv("ENVCONF_TEST_PORT")

	err := Load(new(testConfig))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingRequired))
}

func TestLoad_EmptyDefaultSlice(t *testing.T) {
	t.Setenv("ENVCONF_TEST_PORT", "1")

	cfg := new(testConfig)
	require.NoError(t, Load(cfg))
	assert.Empty(t, cfg.Nested.Brokers)
}

func TestLoad_BadValue(t *testing.T) {
	t.Setenv("ENVCONF_TEST_PORT", "not-a-port")

	err := Load(new(testConfig))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENVCONF_TEST_PORT")
}

func TestLoad_RejectsNonPointer(t *testing.T) {
	require.Error(t, Load(testConfig{}))
	require.Error(t, Load(nil))
}

func TestLoadWithDotenv(t *testing.T) {
	os.Unsetenv("ENVCONF_TEST_PORT")
	t.Cleanup(func() { os.Unsetenv("ENVCONF_TEST_PORT") })

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("ENVCONF_TEST_PORT=9090\n"), 0o600))

	cfg := new(testConfig)
	require.NoError(t, LoadWithDotenv(cfg, path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, uint16(9090), cfg.Port)
}
