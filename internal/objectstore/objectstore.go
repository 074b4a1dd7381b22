// Package objectstore abstracts the blob storage backends used for raw
// documents and their derived assets.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrObjectNotFound is returned when a requested key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Store is the blob storage interface. Put returns a URL that can be
// persisted and served to clients.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// DocumentKey builds the storage key for an uploaded document's raw bytes.
func DocumentKey(ownerID, documentID, displayName string) string {
	return path.Join("documents", ownerID, documentID, sanitizeName(displayName))
}

// PageKey builds the storage key for a rendered page image.
func PageKey(ownerID, documentID string, pageNumber int) string {
	return path.Join("pages", ownerID, documentID, fmt.Sprintf("page-%d.svg", pageNumber))
}

// ThumbnailKey builds the storage key for a document's cover thumbnail.
func ThumbnailKey(ownerID, documentID string) string {
	return path.Join("thumbnails", ownerID, documentID+".svg")
}

// sanitizeName strips path separators and traversal sequences from a
// client-supplied file name so it is safe inside a storage key.
func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "")
	if name == "" || name == "." || name == "/" {
		return "document"
	}
	return name
}
