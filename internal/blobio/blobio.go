// Package blobio provides a uniform blob-store interface over either a
// local filesystem directory or an S3-compatible object store, selected by
// the scheme of the base URI a JobPrefix is rooted at. Every role (client,
// dispatcher, worker) talks to its JobPrefix exclusively through this
// interface so none of them needs to know which backend it is running
// against.
//
// The interface intentionally does not distinguish "not found" from success
// at the Read call: an absent object is a nil-error, nil-bytes result, not
// an error. Only genuine transport failures are returned as errors.
package blobio

import (
	"context"
	"fmt"
	"strings"
)

// BlobIO is the capability set every backend implements.
type BlobIO interface {
	// Write creates or overwrites path with data.
	Write(ctx context.Context, path string, data []byte) error

	// WriteFile uploads the contents of localPath to path.
	WriteFile(ctx context.Context, path, localPath string) error

	// Read returns the bytes at path, or (nil, nil) if the object does not
	// exist. Any other error is a transport failure and is propagated.
	Read(ctx context.Context, path string) ([]byte, error)

	// Delete removes path if present. Deleting an absent path is not an
	// error — the operation is idempotent.
	Delete(ctx context.Context, path string) error

	// List returns all paths under subPrefix, relative to the JobPrefix
	// root (not to subPrefix), using forward-slash separators. Pass "" to
	// list everything under the JobPrefix.
	List(ctx context.Context, subPrefix string) ([]string, error)
}

// ListInputs returns List(ctx, "input/") — the client-supplied input files.
func ListInputs(ctx context.Context, b BlobIO) ([]string, error) {
	return b.List(ctx, "input/")
}

// ListOutputs returns List(ctx, "output/") — the worker-produced outputs.
func ListOutputs(ctx context.Context, b BlobIO) ([]string, error) {
	return b.List(ctx, "output/")
}

// New constructs the appropriate backend for baseURI's scheme. A trailing
// slash on baseURI is stripped, so ADBI_BASE_DIR may be given either way.
func New(baseURI string) (BlobIO, error) {
	baseURI = strings.TrimSuffix(baseURI, "/")
	switch {
	case strings.HasPrefix(baseURI, "s3://"):
		return NewS3IO(baseURI)
	case baseURI == "":
		return nil, fmt.Errorf("blobio: empty base URI")
	default:
		return NewLocalIO(baseURI), nil
	}
}
