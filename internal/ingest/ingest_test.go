package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/async"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/pipeline"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/storage"
)

// syncQueue runs Done inline with a canned processing error per filename.
type syncQueue struct {
	mu   sync.Mutex
	jobs []async.Job
	fail map[string]error
}

func (q *syncQueue) Enqueue(ctx context.Context, job async.Job) (uuid.UUID, error) {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()
	if job.Done != nil {
		job.Done(ctx, pipeline.Outcome{}, q.fail[job.Upload.Filename])
	}
	return uuid.New(), nil
}

func (q *syncQueue) names() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, j.Upload.Filename)
	}
	sort.Strings(out)
	return out
}

func TestParseRequests(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []Request
		wantErr bool
	}{
		{
			name: "request",
			body: `{"key":"documents/20250101_000000_abcd1234_cnh.png","document_type":"CNH"}`,
			want: []Request{{Key: "documents/20250101_000000_abcd1234_cnh.png", Filename: "20250101_000000_abcd1234_cnh.png", DocumentType: "CNH"}},
		},
		{
			name: "request with filename",
			body: `{"key":"k/1","filename":"conta.pdf"}`,
			want: []Request{{Key: "k/1", Filename: "conta.pdf"}},
		},
		{
			name: "s3 event",
			body: `{"Records":[{"s3":{"object":{"key":"uploads/certificado+antt%282%29.pdf"}}}]}`,
			want: []Request{{Key: "uploads/certificado antt(2).pdf", Filename: "certificado antt(2).pdf"}},
		},
		{name: "empty", body: "  ", wantErr: true},
		{name: "no key", body: `{"filename":"x.pdf"}`, wantErr: true},
		{name: "garbage", body: "hello", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRequests(tt.body)
			if tt.wantErr {
				if !errors.Is(err, common.ErrInvalidInput) {
					t.Fatalf("err = %v, want ErrInvalidInput", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) || got[0] != tt.want[0] {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

type fakeSQS struct {
	mu       sync.Mutex
	batches  [][]types.Message
	deleted  []string
	received int
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if aws.ToString(in.QueueUrl) != "https://sqs.test/queue" || in.MaxNumberOfMessages != 5 {
		return nil, errors.New("unexpected input")
	}
	if f.received >= len(f.batches) {
		return &sqs.ReceiveMessageOutput{}, nil
	}
	b := f.batches[f.received]
	f.received++
	return &sqs.ReceiveMessageOutput{Messages: b}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) deletedHandles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.deleted...)
	sort.Strings(out)
	return out
}

type mapStore map[string][]byte

func (m mapStore) Put(_ context.Context, key string, data []byte, _ string) (storage.Object, error) {
	m[key] = data
	return storage.Object{Key: key}, nil
}
func (m mapStore) Get(_ context.Context, key string) ([]byte, error) {
	b, ok := m[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	return b, nil
}
func (m mapStore) SignedURL(context.Context, string, time.Duration) (string, error) { return "", nil }
func (m mapStore) List(context.Context, string, int) ([]storage.Object, error)      { return nil, nil }
func (m mapStore) Delete(context.Context, string) error                             { return nil }

func msg(id, body string) types.Message {
	return types.Message{MessageId: aws.String(id), ReceiptHandle: aws.String("rh-" + id), Body: aws.String(body)}
}

func TestSQSSourcePoll(t *testing.T) {
	api := &fakeSQS{batches: [][]types.Message{{
		msg("ok", `{"key":"documents/cnh.png"}`),
		msg("failing", `{"key":"documents/bad.pdf"}`),
		msg("missing", `{"key":"documents/nope.pdf"}`),
		msg("poison", `not json`),
	}}}
	blobs := mapStore{"documents/cnh.png": []byte("img"), "documents/bad.pdf": []byte("pdf")}
	q := &syncQueue{fail: map[string]error{"bad.pdf": common.ErrInvalidInput}}

	src := newSQSSource(api, blobs, SQSConfig{QueueURL: "https://sqs.test/queue"}, nil)
	n, err := src.Poll(context.Background(), q)
	if err != nil || n != 4 {
		t.Fatalf("Poll = %d, %v", n, err)
	}

	if got := q.names(); len(got) != 2 || got[0] != "bad.pdf" || got[1] != "cnh.png" {
		t.Fatalf("enqueued = %v", got)
	}

	// deletes for successful jobs happen asynchronously
	want := []string{"rh-ok", "rh-poison"}
	deadline := time.Now().Add(2 * time.Second)
	for {
		got := src.api.(*fakeSQS).deletedHandles()
		if len(got) == len(want) && got[0] == want[0] && got[1] == want[1] {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("deleted = %v, want %v", got, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEnqueueDirectory(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"cnh.png":            "a",
		"sub/conta.pdf":      "b",
		"notes.txt":          "c",
		".hidden/secret.pdf": "d",
		".skip.jpg":          "e",
	}
	for name, body := range files {
		p := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	q := &syncQueue{}
	results, stats, err := EnqueueDirectory(context.Background(), q, root, DirectoryOptions{SkipHidden: true, DocumentType: "GENERICO"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Matched != 2 || stats.Succeeded != 2 || stats.Failed != 0 || len(results) != 2 {
		t.Fatalf("stats = %+v results = %+v", stats, results)
	}
	if got := q.names(); got[0] != "cnh.png" || got[1] != "conta.pdf" {
		t.Fatalf("enqueued = %v", got)
	}
	for _, j := range q.jobs {
		if j.Upload.DocumentType != "GENERICO" || len(j.Upload.Data) != 1 {
			t.Fatalf("job = %+v", j.Upload)
		}
	}

	if _, _, err := EnqueueDirectory(context.Background(), q, " ", DirectoryOptions{}, nil); err == nil {
		t.Fatal("blank root should fail")
	}
}

func TestWatcherInitialScan(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.pdf", "b.txt", "c.jpeg"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	paths, _, err := StartWatcher(ctx, WatchConfig{Roots: []string{root}, InitialScan: true}, nil)
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case p := <-paths:
			got = append(got, filepath.Base(p))
		case <-timeout:
			t.Fatalf("initial scan emitted %v", got)
		}
	}
	sort.Strings(got)
	if got[0] != "a.pdf" || got[1] != "c.jpeg" {
		t.Fatalf("emitted %v", got)
	}

	if _, _, err := StartWatcher(ctx, WatchConfig{}, nil); err == nil {
		t.Fatal("no roots should fail")
	}
}
