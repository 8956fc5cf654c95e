package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/async"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/pipeline"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/storage"
)

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Request is the message body a producer sends to ask for an extraction of
// an object already in the bucket. S3 event notifications are accepted too.
type Request struct {
	Key          string `json:"key"`
	Filename     string `json:"filename,omitempty"`
	DocumentType string `json:"document_type,omitempty"`
	PageLimit    int    `json:"page_limit,omitempty"`
}

type s3Event struct {
	Records []struct {
		S3 struct {
			Object struct {
				Key string `json:"key"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// SQSConfig controls polling.
type SQSConfig struct {
	QueueURL          string
	MaxMessages       int32         // per receive, 1..10; default 5
	WaitTime          time.Duration // long poll; default 20s
	VisibilityTimeout time.Duration // default 5m
}

// SQSSource long-polls a queue, downloads each referenced object from the
// blob store and enqueues it. A message is deleted only after its job
// finished without a processing error, so failed uploads are redelivered.
type SQSSource struct {
	api    sqsAPI
	blobs  storage.BlobStore
	cfg    SQSConfig
	logger *slog.Logger
}

func NewSQSSource(client *sqs.Client, blobs storage.BlobStore, cfg SQSConfig, logger *slog.Logger) *SQSSource {
	return newSQSSource(client, blobs, cfg, logger)
}

func newSQSSource(api sqsAPI, blobs storage.BlobStore, cfg SQSConfig, logger *slog.Logger) *SQSSource {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxMessages <= 0 || cfg.MaxMessages > 10 {
		cfg.MaxMessages = 5
	}
	if cfg.WaitTime <= 0 {
		cfg.WaitTime = 20 * time.Second
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 5 * time.Minute
	}
	return &SQSSource{api: api, blobs: blobs, cfg: cfg, logger: logger}
}

// Run polls until ctx is done.
func (s *SQSSource) Run(ctx context.Context, q Enqueuer) error {
	s.logger.Info("ingest.sqs.start", "queue_url", s.cfg.QueueURL)
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			s.logger.Info("ingest.sqs.stop")
			return nil
		}
		n, err := s.Poll(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("ingest.sqs.receive_failed", "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, time.Minute)
			continue
		}
		backoff = time.Second
		if n > 0 {
			s.logger.Debug("ingest.sqs.batch", "messages", n)
		}
	}
}

// Poll runs one receive and enqueues what it got. It returns how many
// messages were received.
func (s *SQSSource) Poll(ctx context.Context, q Enqueuer) (int, error) {
	out, err := s.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(s.cfg.QueueURL),
		MaxNumberOfMessages: s.cfg.MaxMessages,
		WaitTimeSeconds:     int32(s.cfg.WaitTime / time.Second),
		VisibilityTimeout:   int32(s.cfg.VisibilityTimeout / time.Second),
	})
	if err != nil {
		return 0, fmt.Errorf("receive: %w", err)
	}
	for _, m := range out.Messages {
		s.handle(ctx, q, m)
	}
	return len(out.Messages), nil
}

func (s *SQSSource) handle(ctx context.Context, q Enqueuer, m types.Message) {
	msgID := aws.ToString(m.MessageId)
	reqs, err := ParseRequests(aws.ToString(m.Body))
	if err != nil {
		// poison message: drop it so it does not loop forever
		s.logger.Error("ingest.sqs.bad_message", "message_id", msgID, "error", err)
		s.delete(ctx, m)
		return
	}

	remaining := len(reqs)
	var failed atomic.Bool
	done := make(chan struct{}, len(reqs))
	for _, r := range reqs {
		data, err := s.blobs.Get(ctx, r.Key)
		if err != nil {
			s.logger.Error("ingest.sqs.download_failed", "message_id", msgID, "key", r.Key, "error", err)
			failed.Store(true)
			remaining--
			continue
		}
		_, err = q.Enqueue(ctx, async.Job{
			TraceID: msgID,
			Upload: pipeline.Upload{
				Filename:     r.Filename,
				Data:         data,
				DocumentType: r.DocumentType,
				PageLimit:    r.PageLimit,
			},
			Done: func(_ context.Context, _ pipeline.Outcome, err error) {
				if err != nil {
					failed.Store(true)
				}
				done <- struct{}{}
			},
		})
		if err != nil {
			s.logger.Error("ingest.sqs.enqueue_failed", "message_id", msgID, "key", r.Key, "error", err)
			failed.Store(true)
			remaining--
		}
	}

	go func() {
		for i := 0; i < remaining; i++ {
			<-done
		}
		if failed.Load() {
			s.logger.Warn("ingest.sqs.kept_for_retry", "message_id", msgID)
			return
		}
		// the poll context may be gone by now
		dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.delete(dctx, m)
	}()
}

func (s *SQSSource) delete(ctx context.Context, m types.Message) {
	_, err := s.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.cfg.QueueURL),
		ReceiptHandle: m.ReceiptHandle,
	})
	if err != nil {
		s.logger.Error("ingest.sqs.delete_failed", "message_id", aws.ToString(m.MessageId), "error", err)
		return
	}
	s.logger.Debug("ingest.sqs.deleted", "message_id", aws.ToString(m.MessageId))
}

// ParseRequests decodes a message body: either a Request or an S3 event
// notification with one or more records.
func ParseRequests(body string) ([]Request, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: empty message", common.ErrInvalidInput)
	}

	var ev s3Event
	if err := json.Unmarshal([]byte(body), &ev); err == nil && len(ev.Records) > 0 {
		out := make([]Request, 0, len(ev.Records))
		for _, rec := range ev.Records {
			key, err := url.QueryUnescape(rec.S3.Object.Key)
			if err != nil || key == "" {
				return nil, fmt.Errorf("%w: bad s3 key %q", common.ErrInvalidInput, rec.S3.Object.Key)
			}
			out = append(out, Request{Key: key, Filename: path.Base(key)})
		}
		return out, nil
	}

	var r Request
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("%w: decode message: %v", common.ErrInvalidInput, err)
	}
	if strings.TrimSpace(r.Key) == "" {
		return nil, fmt.Errorf("%w: message has no key", common.ErrInvalidInput)
	}
	if r.Filename == "" {
		r.Filename = path.Base(r.Key)
	}
	return []Request{r}, nil
}
