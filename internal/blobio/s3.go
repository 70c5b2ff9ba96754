package blobio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3IO is the S3-compatible-store-backed BlobIO. The bucket and key prefix
// are derived once from the s3:// base URI; every operation below prefixes
// its path with that key prefix and strips it back off again for List.
type S3IO struct {
	client *s3.Client
	bucket string
	prefix string // key prefix, no leading or trailing slash
}

// NewS3IO parses an "s3://bucket/prefix" URI and builds an S3 client.
//
// Credential resolution uses the SDK's default chain via
// config.LoadDefaultConfig: environment variables, shared
// config/credentials files, then EC2/ECS/EKS instance roles, in that order.
// Explicit credentials therefore win over any configured role assumption.
//
// S3_ENDPOINT_URL, when set, overrides the service endpoint so tests can
// point at a local S3-compatible server (e.g. MinIO).
func NewS3IO(baseURI string) (*S3IO, error) {
	bucket, prefix, err := splitBucketAndKey(baseURI)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("blobio: failed to load AWS config: %w", err)
	}

	var optFns []func(*s3.Options)
	if endpoint := os.Getenv("S3_ENDPOINT_URL"); endpoint != "" {
		optFns = append(optFns, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3IO{
		client: s3.NewFromConfig(cfg, optFns...),
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

// splitBucketAndKey parses "s3://bucket-name/path/to/prefix" into its parts.
func splitBucketAndKey(uri string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(uri, "s3://")
	if rest == uri {
		return "", "", fmt.Errorf("blobio: not an s3:// URI: %q", uri)
	}
	parts := strings.SplitN(rest, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("blobio: s3 URI missing bucket: %q", uri)
	}
	bucket = parts[0]
	if len(parts) == 2 {
		key = parts[1]
	}
	return bucket, key, nil
}

func (s *S3IO) key(path string) string {
	path = strings.TrimPrefix(path, "/")
	if s.prefix == "" {
		return path
	}
	return s.prefix + "/" + path
}

func (s *S3IO) Write(ctx context.Context, path string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("blobio: s3 put %s: %w", path, err)
	}
	return nil
}

func (s *S3IO) WriteFile(ctx context.Context, path, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("blobio: read local file %s: %w", localPath, err)
	}
	return s.Write(ctx, path, data)
}

func (s *S3IO) Read(ctx context.Context, path string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("blobio: s3 get %s: %w", path, err)
	}
	defer out.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, fmt.Errorf("blobio: s3 read body %s: %w", path, err)
	}
	return buf.Bytes(), nil
}

func (s *S3IO) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("blobio: s3 delete %s: %w", path, err)
	}
	return nil
}

func (s *S3IO) List(ctx context.Context, subPrefix string) ([]string, error) {
	listPrefix := s.key(subPrefix)

	var out []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(listPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("blobio: s3 list %s: %w", subPrefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			rel := strings.TrimPrefix(key, s.prefix+"/")
			out = append(out, rel)
		}
	}
	return out, nil
}

// isNotFound reports whether err represents an S3 "object does not exist"
// response — the Go SDK v2 surfaces this as either a typed *types.NoSuchKey
// or a generic smithy.APIError with code "NoSuchKey"/"NotFound" depending on
// the call, so both are checked.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

var _ BlobIO = (*S3IO)(nil)
