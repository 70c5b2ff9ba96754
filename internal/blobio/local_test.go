package blobio

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalIOWriteRead(t *testing.T) {
	io := NewLocalIO(t.TempDir())
	ctx := context.Background()

	require.NoError(t, io.Write(ctx, "status", []byte("RUNNING")))

	data, err := io.Read(ctx, "status")
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", string(data))
}

func TestLocalIOReadAbsentReturnsNilNil(t *testing.T) {
	io := NewLocalIO(t.TempDir())
	ctx := context.Background()

	data, err := io.Read(ctx, "does/not/exist")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestLocalIODeleteIsIdempotent(t *testing.T) {
	io := NewLocalIO(t.TempDir())
	ctx := context.Background()

	require.NoError(t, io.Write(ctx, "progress", []byte("50%")))
	require.NoError(t, io.Delete(ctx, "progress"))
	// Deleting an already-absent path must not error.
	require.NoError(t, io.Delete(ctx, "progress"))

	data, err := io.Read(ctx, "progress")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestLocalIOWriteFile(t *testing.T) {
	srcDir := t.TempDir()
	localPath := filepath.Join(srcDir, "source.txt")
	require.NoError(t, os.WriteFile(localPath, []byte("hello"), 0o644))

	io := NewLocalIO(t.TempDir())
	ctx := context.Background()

	require.NoError(t, io.WriteFile(ctx, "input/source.txt", localPath))

	data, err := io.Read(ctx, "input/source.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestLocalIOList(t *testing.T) {
	io := NewLocalIO(t.TempDir())
	ctx := context.Background()

	require.NoError(t, io.Write(ctx, "input/a.txt", []byte("a")))
	require.NoError(t, io.Write(ctx, "input/nested/b.txt", []byte("b")))
	require.NoError(t, io.Write(ctx, "output/result.txt", []byte("r")))

	inputs, err := ListInputs(ctx, io)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"input/a.txt", "input/nested/b.txt"}, inputs)

	outputs, err := ListOutputs(ctx, io)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"output/result.txt"}, outputs)
}

func TestLocalIOListNonexistentPrefixReturnsEmpty(t *testing.T) {
	io := NewLocalIO(t.TempDir())
	ctx := context.Background()

	names, err := io.List(ctx, "input/")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestNewDispatchesOnScheme(t *testing.T) {
	local, err := New(t.TempDir())
	require.NoError(t, err)
	_, ok := local.(*LocalIO)
	assert.True(t, ok)

	_, err = New("")
	assert.Error(t, err)
}
