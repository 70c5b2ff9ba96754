package blobio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitBucketAndKey(t *testing.T) {
	tests := []struct {
		uri        string
		wantOK     bool
		wantBucket string
		wantKey    string
	}{
		{"s3://my-bucket/some/prefix", true, "my-bucket", "some/prefix"},
		{"s3://my-bucket", true, "my-bucket", ""},
		{"s3://my-bucket/", true, "my-bucket", ""},
		{"not-an-s3-uri", false, "", ""},
		{"s3:///missing-bucket", false, "", ""},
	}

	for _, tt := range tests {
		bucket, key, err := splitBucketAndKey(tt.uri)
		if !tt.wantOK {
			assert.Error(t, err, tt.uri)
			continue
		}
		require.NoError(t, err, tt.uri)
		assert.Equal(t, tt.wantBucket, bucket)
		assert.Equal(t, tt.wantKey, key)
	}
}

func TestS3IOKeyPrefixing(t *testing.T) {
	s := &S3IO{bucket: "my-bucket", prefix: "jobs/20260101-test.echo-abcd"}
	assert.Equal(t, "jobs/20260101-test.echo-abcd/status", s.key("status"))
	assert.Equal(t, "jobs/20260101-test.echo-abcd/input/a.txt", s.key("/input/a.txt"))
}

func TestS3IOKeyWithEmptyPrefix(t *testing.T) {
	s := &S3IO{bucket: "my-bucket", prefix: ""}
	assert.Equal(t, "status", s.key("status"))
}
