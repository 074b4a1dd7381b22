package objectstore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_PutGetDelete(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	url, err := store.Put(ctx, "documents/user-1/doc-1/report.pdf", []byte("raw bytes"), "application/pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "file://"))

	data, err := store.Get(ctx, "documents/user-1/doc-1/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("raw bytes"), data)

	require.NoError(t, store.Delete(ctx, "documents/user-1/doc-1/report.pdf"))

	_, err = store.Get(ctx, "documents/user-1/doc-1/report.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalStore_PutOverwrites(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Put(ctx, "pages/u/d/page-1.svg", []byte("v1"), "image/svg+xml")
	require.NoError(t, err)
	_, err = store.Put(ctx, "pages/u/d/page-1.svg", []byte("v2"), "image/svg+xml")
	require.NoError(t, err)

	data, err := store.Get(ctx, "pages/u/d/page-1.svg")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
}

func TestLocalStore_DeleteMissingKey(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, store.Delete(context.Background(), "documents/u/d/missing.pdf"))
}

func TestLocalStore_RejectsEscapingKey(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "../outside.txt", []byte("x"), "text/plain")
	assert.Error(t, err)
}

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "documents/user-1/doc-1/report.pdf", DocumentKey("user-1", "doc-1", "report.pdf"))
	assert.Equal(t, "pages/user-1/doc-1/page-3.svg", PageKey("user-1", "doc-1", 3))
	assert.Equal(t, "thumbnails/user-1/doc-1.svg", ThumbnailKey("user-1", "doc-1"))
}

func TestDocumentKey_SanitizesName(t *testing.T) {
	assert.Equal(t, "documents/u/d/report.pdf", DocumentKey("u", "d", "../../report.pdf"))
	assert.Equal(t, "documents/u/d/report.pdf", DocumentKey("u", "d", `C:\files\report.pdf`))
	assert.Equal(t, "documents/u/d/document", DocumentKey("u", "d", ""))
}
