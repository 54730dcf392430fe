package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreUploadAndRemove(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root, "http://localhost:8080")
	ctx := context.Background()

	obj, err := store.Upload(ctx, BucketUploads, "u1/abc.pdf", strings.NewReader("hello"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(5), obj.Size)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", obj.SHA256)

	data, err := os.ReadFile(filepath.Join(root, BucketUploads, "u1", "abc.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "http://localhost:8080/media/uploads/u1/abc.pdf", store.PublicURL(BucketUploads, "u1/abc.pdf"))

	require.NoError(t, store.Remove(ctx, BucketUploads, "u1/abc.pdf"))
	assert.ErrorIs(t, store.Remove(ctx, BucketUploads, "u1/abc.pdf"), ErrNotFound)
}

func TestLocalStoreRejectsEmptyAndEscapingPaths(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root, "")
	ctx := context.Background()

	_, err := store.Upload(ctx, BucketUploads, "u1/empty.txt", strings.NewReader(""), "text/plain")
	assert.ErrorIs(t, err, ErrEmptyObject)
	_, statErr := os.Stat(filepath.Join(root, BucketUploads, "u1", "empty.txt"))
	assert.True(t, os.IsNotExist(statErr))

	for _, p := range []string{"../secret", "/etc/passwd", "u1/../../x", "", "a//b"} {
		_, err := store.Upload(ctx, BucketUploads, p, strings.NewReader("x"), "")
		assert.ErrorIs(t, err, ErrInvalidPath, p)
	}
	_, err = store.Upload(ctx, "../up", "a.txt", strings.NewReader("x"), "")
	assert.ErrorIs(t, err, ErrInvalidPath)
}
