package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

func TestBuildKey(t *testing.T) {
	id := uuid.MustParse("1a2b3c4d-0000-4000-8000-000000000000")
	now := time.Date(2025, 7, 14, 9, 5, 3, 0, time.UTC)

	tests := []struct {
		folder, name, want string
	}{
		{"documents", "cnh.pdf", "documents/20250714_090503_1a2b3c4d_cnh.pdf"},
		{"/previews/", "a b.png", "previews/20250714_090503_1a2b3c4d_a_b.png"},
		{"", "../../etc/passwd", "20250714_090503_1a2b3c4d_passwd"},
		{"documents", "", "documents/20250714_090503_1a2b3c4d_document"},
	}
	for _, tt := range tests {
		if got := BuildKey(tt.folder, tt.name, now, id); got != tt.want {
			t.Errorf("BuildKey(%q, %q) = %q, want %q", tt.folder, tt.name, got, tt.want)
		}
	}
}

func TestPreviewName(t *testing.T) {
	if got := PreviewName("certificado antt.pdf"); got != "certificado antt_preview.png" {
		t.Fatalf("PreviewName = %q", got)
	}
}

type fakeS3 struct {
	objects map[string][]byte
	putType string
	failPut bool
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failPut {
		return nil, errors.New("access denied")
	}
	b, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Key)] = b
	f.putType = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for k, v := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(int64(len(v)))})
		}
	}
	return out, nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	api := &fakeS3{objects: map[string][]byte{}}
	st := newS3Store(api, "docs-bucket", "us-east-2", nil)

	obj, err := st.Put(ctx, "documents/x.pdf", []byte("%PDF-1.4"), "application/pdf")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if obj.URL != "https://docs-bucket.s3.us-east-2.amazonaws.com/documents/x.pdf" || obj.Size != 8 {
		t.Fatalf("obj = %+v", obj)
	}
	if api.putType != "application/pdf" {
		t.Fatalf("content type = %q", api.putType)
	}

	got, err := st.Get(ctx, "documents/x.pdf")
	if err != nil || string(got) != "%PDF-1.4" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	_, _ = st.Put(ctx, "previews/x.png", []byte("png"), "image/png")
	list, err := st.List(ctx, "documents/", 10)
	if err != nil || len(list) != 1 || list[0].Key != "documents/x.pdf" {
		t.Fatalf("List = %+v, %v", list, err)
	}

	// Without a presigner the public URL is returned.
	u, err := st.SignedURL(ctx, "documents/x.pdf", time.Minute)
	if err != nil || u != obj.URL {
		t.Fatalf("SignedURL = %q, %v", u, err)
	}

	if err := st.Delete(ctx, "documents/x.pdf"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := st.Get(ctx, "documents/x.pdf"); err == nil {
		t.Fatalf("Get after delete should fail")
	}

	api.failPut = true
	if _, err := st.Put(ctx, "k", nil, "application/pdf"); err == nil {
		t.Fatalf("Put should surface SDK errors")
	}
}
