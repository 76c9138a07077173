package objectstore

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	content := []byte("hello, world!")
	etag, err := store.Put(ctx, "test/file.txt", bytes.NewReader(content), PutOptions{ContentType: "text/plain"})
	require.NoError(t, err)
	assert.NotEmpty(t, etag)

	reader, attrs, err := store.Get(ctx, "test/file.txt")
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, content, data)
	assert.Equal(t, "test/file.txt", attrs.Key)
	assert.Equal(t, int64(len(content)), attrs.Size)
	assert.Equal(t, "text/plain", attrs.ContentType)
	assert.Equal(t, etag, attrs.ETag)
}

func TestMemoryStorePutIsContentAddressed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	etagA, err := store.Put(ctx, "a", bytes.NewReader([]byte("same bytes")), PutOptions{})
	require.NoError(t, err)
	etagB, err := store.Put(ctx, "b", bytes.NewReader([]byte("same bytes")), PutOptions{})
	require.NoError(t, err)
	assert.Equal(t, etagA, etagB, "identical content must produce identical ETags regardless of key")

	etagC, err := store.Put(ctx, "c", bytes.NewReader([]byte("different bytes")), PutOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, etagA, etagC)
}

func TestMemoryStorePutRejectsEmptyKey(t *testing.T) {
	t.Parallel()
	_, err := NewMemoryStore().Put(context.Background(), "", bytes.NewReader([]byte("x")), PutOptions{})
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestMemoryStorePutEnforcesConfiguredLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStoreWithLimit(4)

	_, err := store.Put(ctx, "small", bytes.NewReader([]byte("ok")), PutOptions{})
	require.NoError(t, err)

	_, err = store.Put(ctx, "big", bytes.NewReader([]byte("too long")), PutOptions{})
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestMemoryStoreGetNotFound(t *testing.T) {
	t.Parallel()
	_, _, err := NewMemoryStore().Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Put(ctx, "to-delete", bytes.NewReader([]byte("data")), PutOptions{})
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "to-delete"))

	_, _, err = store.Get(ctx, "to-delete")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	files := []string{
		"dir1/file1.txt",
		"dir1/file2.txt",
		"dir1/sub/file3.txt",
		"dir2/file4.txt",
		"root.txt",
	}
	for _, f := range files {
		_, err := store.Put(ctx, f, bytes.NewReader([]byte("content")), PutOptions{})
		require.NoError(t, err)
	}

	result, err := store.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, result.Objects, 5)

	result, err = store.List(ctx, ListOptions{Prefix: "dir1/"})
	require.NoError(t, err)
	assert.Len(t, result.Objects, 3)

	result, err = store.List(ctx, ListOptions{Prefix: "", Delimiter: "/"})
	require.NoError(t, err)
	assert.Len(t, result.Objects, 1) // root.txt
	assert.Contains(t, result.CommonPrefixes, "dir1/")
	assert.Contains(t, result.CommonPrefixes, "dir2/")
}

func TestMemoryStoreHead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	content := []byte("test content")
	_, err := store.Put(ctx, "test.txt", bytes.NewReader(content), PutOptions{ContentType: "text/plain"})
	require.NoError(t, err)

	attrs, err := store.Head(ctx, "test.txt")
	require.NoError(t, err)
	assert.Equal(t, "test.txt", attrs.Key)
	assert.Equal(t, int64(len(content)), attrs.Size)
	assert.Equal(t, "text/plain", attrs.ContentType)

	_, err = store.Head(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	content := []byte("copy me")
	srcETag, err := store.Put(ctx, "original", bytes.NewReader(content), PutOptions{})
	require.NoError(t, err)
	require.NoError(t, store.Copy(ctx, "original", "copy"))

	reader, attrs, err := store.Get(ctx, "copy")
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, content, data)
	assert.Equal(t, srcETag, attrs.ETag)

	err = store.Copy(ctx, "nonexistent", "dest")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreExists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	exists, err := store.Exists(ctx, "test")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Put(ctx, "test", bytes.NewReader([]byte("data")), PutOptions{})
	require.NoError(t, err)

	exists, err = store.Exists(ctx, "test")
	require.NoError(t, err)
	assert.True(t, exists)
}
