package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadWithArgs(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	flags := pflag.NewFlagSet("salogger", pflag.ContinueOnError)
	registerFlags(flags)
	require.NoError(t, flags.Parse(args))

	v := viper.New()
	require.NoError(t, v.BindPFlags(flags))
	return loadConfig(v)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadWithArgs(t)
	require.NoError(t, err)

	assert.False(t, cfg.Server)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "192.168.0.124", cfg.Address)
	assert.Equal(t, "measurement_data", cfg.DataDir)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, "9.9995e9", cfg.Run.StartFreq)
	assert.Equal(t, "10.0005e9", cfg.Run.StopFreq)
	assert.Equal(t, "401", cfg.Run.Points)
	assert.Equal(t, "50", cfg.Run.Samples)
	assert.Equal(t, "0.2", cfg.Run.Interval)
	assert.Empty(t, cfg.S3.Bucket)
	assert.Equal(t, "us-east-1", cfg.S3.Region)
}

func TestLoadConfigFlagsAndEnv(t *testing.T) {
	t.Setenv("SALOG_DATA_DIR", "/srv/fieldfox")
	t.Setenv("SALOG_S3_BUCKET", "traces")
	t.Setenv("SALOG_S3_ACCESS_KEY", "minioadmin")
	t.Setenv("SALOG_N_SAMPLES", "7")

	cfg, err := loadWithArgs(t, "--server", "-p", "9090", "--site", "roof", "--n-samples", "3", "--sim")
	require.NoError(t, err)

	assert.True(t, cfg.Server)
	assert.True(t, cfg.Sim)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "roof", cfg.Run.Site)
	assert.Equal(t, "/srv/fieldfox", cfg.DataDir)
	assert.Equal(t, "traces", cfg.S3.Bucket)
	assert.Equal(t, "minioadmin", cfg.S3.AccessKey)
	// an explicit flag beats the environment
	assert.Equal(t, "3", cfg.Run.Samples)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "salogger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
address: TCPIP0::10.0.0.5::inst0::INSTR
n-points: "201"
parquet: true
s3:
  bucket: archive
  endpoint: localhost:9000
`), 0644))

	cfg, err := loadWithArgs(t, "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "TCPIP0::10.0.0.5::inst0::INSTR", cfg.Address)
	assert.Equal(t, "201", cfg.Run.Points)
	assert.True(t, cfg.Parquet)
	assert.Equal(t, "archive", cfg.S3.Bucket)
	assert.Equal(t, "localhost:9000", cfg.S3.Endpoint)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := loadWithArgs(t, "-p", "0")
	assert.Error(t, err)

	_, err = loadWithArgs(t, "--timeout", "0s")
	assert.Error(t, err)

	_, err = loadWithArgs(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
