package blobio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalIO is the filesystem-backed BlobIO, rooted at baseDir. It is used
// whenever ADBI_BASE_DIR does not start with "s3://" — in tests, in local
// development, and for the filesystem-backed example wiring.
type LocalIO struct {
	baseDir string
}

// NewLocalIO creates a LocalIO rooted at baseDir. The directory is created
// lazily on first write — not here — so that a freshly-constructed LocalIO
// for an as-yet-nonexistent prefix does not leave an empty directory behind
// if the caller never writes anything.
func NewLocalIO(baseDir string) *LocalIO {
	return &LocalIO{baseDir: baseDir}
}

func (l *LocalIO) resolve(path string) string {
	return filepath.Join(l.baseDir, filepath.FromSlash(path))
}

func (l *LocalIO) Write(_ context.Context, path string, data []byte) error {
	full := l.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("blobio: mkdir for %s: %w", path, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("blobio: write %s: %w", path, err)
	}
	return nil
}

func (l *LocalIO) WriteFile(_ context.Context, path, localPath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("blobio: open local file %s: %w", localPath, err)
	}
	defer src.Close()

	full := l.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("blobio: mkdir for %s: %w", path, err)
	}
	dst, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("blobio: create %s: %w", path, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("blobio: copy %s to %s: %w", localPath, path, err)
	}
	return nil
}

func (l *LocalIO) Read(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(l.resolve(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("blobio: read %s: %w", path, err)
	}
	return data, nil
}

func (l *LocalIO) Delete(_ context.Context, path string) error {
	if err := os.Remove(l.resolve(path)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("blobio: delete %s: %w", path, err)
	}
	return nil
}

func (l *LocalIO) List(_ context.Context, subPrefix string) ([]string, error) {
	root := l.resolve(subPrefix)
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(l.baseDir, p)
		if relErr != nil {
			return relErr
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("blobio: list %s: %w", subPrefix, err)
	}
	return out, nil
}

var _ BlobIO = (*LocalIO)(nil)
