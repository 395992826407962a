package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "tasks/t1.yaml", []byte("a")))

	data, err := s.Read(ctx, "tasks/t1.yaml")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data)

	ok, err := s.Exists(ctx, "tasks/t1.yaml")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "tasks/t1.yaml"))
	ok, err = s.Exists(ctx, "tasks/t1.yaml")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStorageNotFound(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Read(ctx, "missing.yaml")
	assert.True(t, errors.Is(err, ErrNotFound))

	err = s.Delete(ctx, "missing.yaml")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalStorageListRecursive(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "d1/tasks/t1/2026/03/10/proof_a.png", []byte("x")))
	require.NoError(t, s.Write(ctx, "d1/tasks/t1/2026/03/11/proof_b.png", []byte("y")))
	require.NoError(t, s.Write(ctx, "d2/tasks/t2/note.yaml", []byte("z")))

	paths, err := s.List(ctx, "d1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"d1/tasks/t1/2026/03/10/proof_a.png",
		"d1/tasks/t1/2026/03/11/proof_b.png",
	}, paths)

	empty, err := s.List(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLocalStorageListSkipsStagingFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "tasks/t1.yaml", []byte("a")))

	// A crash between write and rename leaves a .tmp behind; it must never
	// surface as an object.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tasks", "t2.yaml.tmp"), []byte("b"), 0o644))

	paths, err := s.List(ctx, "tasks")
	require.NoError(t, err)
	assert.Equal(t, []string{"tasks/t1.yaml"}, paths)
}
