package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepfake-detector/api/internal/domain/evidence"
)

func TestLocalStorage(t *testing.T) {
	tmpDir := t.TempDir()
	storage, err := NewLocalStorage(tmpDir)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("Put and Get", func(t *testing.T) {
		content := []byte("jpeg bytes")
		require.NoError(t, storage.Put(ctx, "frames/a.jpg", bytes.NewReader(content), int64(len(content)), "image/jpeg"))

		_, err := os.Stat(filepath.Join(tmpDir, "frames", "a.jpg"))
		require.NoError(t, err)

		rc, err := storage.Get(ctx, "frames/a.jpg")
		require.NoError(t, err)
		defer rc.Close()
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, content, got)
	})

	t.Run("Put leaves no temp files", func(t *testing.T) {
		entries, err := os.ReadDir(filepath.Join(tmpDir, "frames"))
		require.NoError(t, err)
		for _, e := range entries {
			assert.NotContains(t, e.Name(), ".tmp-")
		}
	})

	t.Run("Get missing", func(t *testing.T) {
		_, err := storage.Get(ctx, "frames/missing.jpg")
		assert.ErrorIs(t, err, evidence.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, storage.Delete(ctx, "frames/a.jpg"))
		_, err := storage.Get(ctx, "frames/a.jpg")
		assert.ErrorIs(t, err, evidence.ErrNotFound)
		assert.NoError(t, storage.Delete(ctx, "frames/a.jpg"))
	})

	t.Run("Path traversal", func(t *testing.T) {
		for _, key := range []string{"../escape.jpg", "frames/../../x", "/etc/passwd"} {
			assert.Error(t, storage.Put(ctx, key, bytes.NewReader(nil), 0, ""), key)
			_, err := storage.Get(ctx, key)
			assert.Error(t, err, key)
			assert.Error(t, storage.Delete(ctx, key), key)
		}
	})

	t.Run("Check", func(t *testing.T) {
		assert.NoError(t, storage.Check(ctx))
	})
}
