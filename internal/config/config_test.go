package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadClientConfigMissingEverythingFailsFastCombined(t *testing.T) {
	t.Setenv(EnvBaseDir, "")
	t.Setenv(EnvSQSName, "")

	_, err := LoadClientConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvBaseDir)
	assert.Contains(t, err.Error(), EnvSQSName)
}

func TestLoadClientConfigHonorsEnvAndStripsTrailingSlash(t *testing.T) {
	t.Setenv(EnvBaseDir, "s3://my-bucket/jobs/")
	t.Setenv(EnvSQSName, "my-queue")

	cfg, err := LoadClientConfig()
	require.NoError(t, err)
	assert.Equal(t, "s3://my-bucket/jobs", cfg.BaseDir)
	assert.Equal(t, "my-queue", cfg.QueueName)
}

func TestLoadDispatcherConfigMissingQueueNameFailsFast(t *testing.T) {
	t.Setenv(EnvSQSName, "")
	t.Setenv(EnvMaxWorker, "")
	t.Setenv(EnvMaxRetry, "")

	_, err := LoadDispatcherConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvSQSName)
}

func TestLoadDispatcherConfigCollectsAllErrorsTogether(t *testing.T) {
	t.Setenv(EnvSQSName, "")
	t.Setenv(EnvMaxWorker, "not-a-number")
	t.Setenv(EnvMaxRetry, "-1")

	_, err := LoadDispatcherConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvSQSName)
	assert.Contains(t, err.Error(), EnvMaxWorker)
	assert.Contains(t, err.Error(), EnvMaxRetry)
}

func TestLoadDispatcherConfigDefaultsAndECRAccounts(t *testing.T) {
	t.Setenv(EnvSQSName, "my-queue")
	t.Setenv(EnvMaxWorker, "")
	t.Setenv(EnvMaxRetry, "")
	t.Setenv(EnvECRAccountIDs, "111111111111,222222222222")

	cfg, err := LoadDispatcherConfig()
	require.NoError(t, err)
	assert.Equal(t, "my-queue", cfg.QueueName)
	assert.Equal(t, DefaultMaxWorker, cfg.MaxWorker)
	assert.Equal(t, DefaultMaxRetry, cfg.MaxRetry)
	assert.Equal(t, []string{"111111111111", "222222222222"}, cfg.ECRAccounts)
}

func TestLoadDispatcherConfigHonorsExplicitValues(t *testing.T) {
	t.Setenv(EnvSQSName, "my-queue")
	t.Setenv(EnvMaxWorker, "8")
	t.Setenv(EnvMaxRetry, "3")
	t.Setenv(EnvECRAccountIDs, "")

	cfg, err := LoadDispatcherConfig()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.MaxWorker)
	assert.Equal(t, 3, cfg.MaxRetry)
	assert.Empty(t, cfg.ECRAccounts)
}
