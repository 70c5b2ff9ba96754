package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsECRImage(t *testing.T) {
	tests := []struct {
		imageID string
		want    bool
	}{
		{"123456789012.dkr.ecr.ap-northeast-1.amazonaws.com/my-worker:latest", true},
		{"123456789012.dkr.ecr.us-east-1.amazonaws.com/repo", true},
		{"docker.io/library/alpine:3.20", false},
		{"alpine:3.20", false},
		{"ghcr.io/org/worker:v1", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, isECRImage(tt.imageID), tt.imageID)
	}
}

func TestSplitRuntimeConfigEnvironment(t *testing.T) {
	envList, labels := splitRuntimeConfig(map[string]any{
		"environment": map[string]string{"FOO": "bar"},
	})
	assert.Equal(t, []string{"FOO=bar"}, envList)
	assert.Nil(t, labels)
}

func TestSplitRuntimeConfigEnvironmentFromJSONDecode(t *testing.T) {
	// A runtime_config that travelled through JSON arrives as map[string]any.
	envList, _ := splitRuntimeConfig(map[string]any{
		"environment": map[string]any{"FOO": "bar"},
	})
	assert.Equal(t, []string{"FOO=bar"}, envList)
}

func TestSplitRuntimeConfigUnknownKeysBecomeLabels(t *testing.T) {
	envList, labels := splitRuntimeConfig(map[string]any{
		"mem_limit": "512m",
		"cpu_count": 2,
	})
	assert.Empty(t, envList)
	assert.Equal(t, map[string]string{"mem_limit": "512m", "cpu_count": "2"}, labels)
}

func TestSplitRuntimeConfigNil(t *testing.T) {
	envList, labels := splitRuntimeConfig(nil)
	assert.Empty(t, envList)
	assert.Nil(t, labels)
}
