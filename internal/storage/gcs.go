package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
	logger *slog.Logger
}

var _ BlobStore = (*GCSStore)(nil)

// NewGCSStore opens a client with application default credentials.
func NewGCSStore(ctx context.Context, bucket string, logger *slog.Logger) (*GCSStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: client.Bucket(bucket), name: bucket, logger: logger}, nil
}

func (g *GCSStore) Close() error {
	return g.client.Close()
}

func (g *GCSStore) PublicURL(key string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.name, key)
}

func (g *GCSStore) Put(ctx context.Context, key string, data []byte, contentType string) (Object, error) {
	start := time.Now()
	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		g.logger.Error("storage.gcs.put_failed", "bucket", g.name, "key", key, "error", err)
		return Object{}, fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		g.logger.Error("storage.gcs.finalize_failed", "bucket", g.name, "key", key, "error", err)
		return Object{}, fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	g.logger.Info("storage.gcs.put", "bucket", g.name, "key", key, "bytes", len(data), "elapsed_ms", time.Since(start).Milliseconds())
	return Object{Key: key, URL: g.PublicURL(key), Size: int64(len(data)), LastModified: time.Now().UTC()}, nil
}

func (g *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := g.bucket.Object(key).NewReader(ctx)
	if err != nil {
		g.logger.Error("storage.gcs.get_failed", "bucket", g.name, "key", key, "error", err)
		return nil, fmt.Errorf("gcs get %s: %w", key, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (g *GCSStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	u, err := g.bucket.SignedURL(key, &storage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		g.logger.Error("storage.gcs.sign_failed", "key", key, "error", err)
		return "", fmt.Errorf("gcs sign %s: %w", key, err)
	}
	return u, nil
}

func (g *GCSStore) List(ctx context.Context, prefix string, max int) ([]Object, error) {
	if max <= 0 {
		max = 100
	}
	it := g.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	var out []Object
	for len(out) < max {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			g.logger.Error("storage.gcs.list_failed", "bucket", g.name, "prefix", prefix, "error", err)
			return nil, fmt.Errorf("gcs list %s: %w", prefix, err)
		}
		out = append(out, Object{Key: attrs.Name, URL: g.PublicURL(attrs.Name), Size: attrs.Size, LastModified: attrs.Updated})
	}
	return out, nil
}

func (g *GCSStore) Delete(ctx context.Context, key string) error {
	if err := g.bucket.Object(key).Delete(ctx); err != nil {
		g.logger.Error("storage.gcs.delete_failed", "bucket", g.name, "key", key, "error", err)
		return fmt.Errorf("gcs delete %s: %w", key, err)
	}
	return nil
}
