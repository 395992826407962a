package filejob

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJanitorSweepRemovesStaleTempFiles(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "d1", "tasks")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	stale := filepath.Join(nested, "t1.yaml.tmp")
	fresh := filepath.Join(nested, "t2.yaml.tmp")
	object := filepath.Join(nested, "t3.yaml")
	for _, p := range []string{stale, fresh, object} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	j := NewJanitor(dir)
	require.NoError(t, j.sweep(context.Background()))

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))

	// A .tmp inside the age window may still be an in-flight write.
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
	_, err = os.Stat(object)
	assert.NoError(t, err)
}

func TestJanitorSweepMissingDir(t *testing.T) {
	j := NewJanitor(filepath.Join(t.TempDir(), "never-created"))
	assert.NoError(t, j.sweep(context.Background()))
}
