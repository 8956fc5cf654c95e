// Package storage keeps uploaded originals and page previews in a blob store.
package storage

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Folders used by the extraction flow.
const (
	FolderDocuments = "documents"
	FolderPreviews  = "previews"
)

// Object describes a stored blob.
type Object struct {
	Key          string
	URL          string // public URL, not signed
	Size         int64
	LastModified time.Time
}

// BlobStore is the slice of S3/GCS the service uses.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (Object, error)
	Get(ctx context.Context, key string) ([]byte, error)
	// SignedURL returns a time-limited GET URL for key.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	List(ctx context.Context, prefix string, max int) ([]Object, error)
	Delete(ctx context.Context, key string) error
}

// BuildKey lays out keys as folder/{YYYYMMDD_HHMMSS}_{uuid8}_{filename}.
func BuildKey(folder, filename string, now time.Time, id uuid.UUID) string {
	name := sanitizeName(filename)
	leaf := now.Format("20060102_150405") + "_" + id.String()[:8] + "_" + name
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return leaf
	}
	return folder + "/" + leaf
}

// NewKey is BuildKey with the current time and a fresh id.
func NewKey(folder, filename string) string {
	return BuildKey(folder, filename, time.Now(), uuid.New())
}

// PreviewName names the preview PNG that belongs to an uploaded file.
func PreviewName(filename string) string {
	base := strings.TrimSuffix(path.Base(filename), path.Ext(filename))
	return base + "_preview.png"
}

func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "document"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '?', '#', '%', '&', '+':
			return '_'
		}
		return r
	}, name)
}
