package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3API is the subset of *s3.Client used here.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type S3Store struct {
	api     s3API
	presign func(ctx context.Context, key string, ttl time.Duration) (string, error)
	bucket  string
	region  string
	logger  *slog.Logger
}

var _ BlobStore = (*S3Store)(nil)

// NewS3Store builds a store on an SDK config (see config.LoadDefaultConfig).
func NewS3Store(cfg aws.Config, bucket string, logger *slog.Logger) *S3Store {
	client := s3.NewFromConfig(cfg)
	pc := s3.NewPresignClient(client)
	st := newS3Store(client, bucket, cfg.Region, logger)
	st.presign = func(ctx context.Context, key string, ttl time.Duration) (string, error) {
		req, err := pc.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(ttl))
		if err != nil {
			return "", err
		}
		return req.URL, nil
	}
	return st
}

func newS3Store(api s3API, bucket, region string, logger *slog.Logger) *S3Store {
	if logger == nil {
		logger = slog.Default()
	}
	if region == "" {
		region = "us-east-1"
	}
	return &S3Store{api: api, bucket: bucket, region: region, logger: logger}
}

// PublicURL is the virtual-hosted URL of key.
func (s *S3Store) PublicURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (Object, error) {
	start := time.Now()
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		s.logger.Error("storage.s3.put_failed", "bucket", s.bucket, "key", key, "error", err)
		return Object{}, fmt.Errorf("s3 put %s: %w", key, err)
	}
	s.logger.Info("storage.s3.put", "bucket", s.bucket, "key", key, "bytes", len(data), "elapsed_ms", time.Since(start).Milliseconds())
	return Object{Key: key, URL: s.PublicURL(key), Size: int64(len(data)), LastModified: time.Now().UTC()}, nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		s.logger.Error("storage.s3.get_failed", "bucket", s.bucket, "key", key, "error", err)
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			s.logger.Warn("storage.s3.body_close_error", "key", key, "error", err)
		}
	}(out.Body)
	return io.ReadAll(out.Body)
}

func (s *S3Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if s.presign == nil {
		return s.PublicURL(key), nil
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	u, err := s.presign(ctx, key, ttl)
	if err != nil {
		s.logger.Error("storage.s3.presign_failed", "key", key, "error", err)
		return "", fmt.Errorf("s3 presign %s: %w", key, err)
	}
	return u, nil
}

func (s *S3Store) List(ctx context.Context, prefix string, max int) ([]Object, error) {
	if max <= 0 {
		max = 100
	}
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(int32(max)),
	})
	var out []Object
	for p.HasMorePages() && len(out) < max {
		page, err := p.NextPage(ctx)
		if err != nil {
			s.logger.Error("storage.s3.list_failed", "bucket", s.bucket, "prefix", prefix, "error", err)
			return nil, fmt.Errorf("s3 list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			out = append(out, Object{
				Key:          key,
				URL:          s.PublicURL(key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
			if len(out) == max {
				break
			}
		}
	}
	return out, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	if _, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		s.logger.Error("storage.s3.delete_failed", "bucket", s.bucket, "key", key, "error", err)
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}
