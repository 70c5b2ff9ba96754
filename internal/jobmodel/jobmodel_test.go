package jobmodel

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env := Envelope{FuncID: "test.echo", PrefixURI: "s3://bucket/prefix/20260101T000000-test.echo-abcd"}

	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `["test.echo", "s3://bucket/prefix/20260101T000000-test.echo-abcd"]`, string(data))

	var decoded Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, env, decoded)
}

func TestEnvelopeUnmarshalRejectsMalformedShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not an array", `{"func_id": "x", "prefix_uri": "y"}`},
		{"wrong length", `["only-one"]`},
		{"too many elements", `["a", "b", "c"]`},
		{"non-string element", `["a", 123]`},
		{"not json at all", `not-json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var env Envelope
			err := json.Unmarshal([]byte(tt.body), &env)
			assert.Error(t, err)
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusWillDequeue.Terminal())
	assert.False(t, StatusDequeued.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusSuccess.Terminal())
	assert.True(t, StatusError.Terminal())
}

func TestNewProcessIDFormat(t *testing.T) {
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	id, err := NewProcessID("test.echo", now)
	require.NoError(t, err)

	// "{timestamp}-{func_id}-{random}" — timestamp is 15 chars (20060102T150405),
	// func_id is literal, random is 32 hex chars (16 bytes).
	assert.Regexp(t, `^\d{8}T\d{6}-test\.echo-[0-9a-f]{32}$`, id)
}

func TestNewProcessIDIsUnique(t *testing.T) {
	now := time.Now()
	id1, err := NewProcessID("test.echo", now)
	require.NoError(t, err)
	id2, err := NewProcessID("test.echo", now)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestPathHelpers(t *testing.T) {
	assert.Equal(t, "input/foo.txt", PathInput("foo.txt"))
	assert.Equal(t, "input/foo.txt", PathInput("/foo.txt"))
	assert.Equal(t, "output/foo.txt", PathOutput("foo.txt"))
	assert.Equal(t, "run-1", RunDir(1))
	assert.Equal(t, "run-3", RunDir(3))
}
