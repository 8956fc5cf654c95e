package bootstrap

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/repository"
)

func testConfig(t *testing.T) *common.Config {
	t.Helper()
	cfg := common.LoadConfig()
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = "file:" + filepath.Join(t.TempDir(), "app.db")
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = "sk-test"
	cfg.OCR.Engine = "tesseract"
	cfg.Storage.Backend = "none"
	cfg.Queue.SQSQueueURL = ""
	cfg.Queue.Workers = 1
	return cfg
}

func TestNewWiresLocalStack(t *testing.T) {
	ctx := context.Background()
	app, err := New(ctx, testConfig(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer app.Close()

	if app.Processor == nil || app.Service == nil || app.Exporter == nil || app.Engine == nil {
		t.Fatalf("app not wired: %+v", app)
	}
	if app.Store != nil {
		t.Fatalf("Store = %v, want nil for backend none", app.Store)
	}
	if got := len(app.Registry.Types()); got == 0 {
		t.Fatal("registry has no types")
	}

	n, err := app.Logs.Count(ctx, repository.LogFilter{})
	if err != nil || n != 0 {
		t.Fatalf("Count = %d, %v", n, err)
	}

	src, err := app.NewSQSSource(ctx)
	if err != nil || src != nil {
		t.Fatalf("NewSQSSource = %v, %v", src, err)
	}

	q := app.NewQueue()
	defer q.Shutdown(ctx)
	deps := app.ServerDeps(q)
	if deps.Queue == nil || deps.Logs == nil || deps.Structurer == nil {
		t.Fatalf("deps = %+v", deps)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.APIKey = ""
	_, err := New(context.Background(), cfg, nil)
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code != common.CodeConfig {
		t.Fatalf("err = %v, want config error", err)
	}
}

func TestSQSNeedsStorage(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	app, err := New(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer app.Close()

	app.Config.Queue.SQSQueueURL = "https://sqs.us-east-1.amazonaws.com/123/docs"
	if _, err := app.NewSQSSource(ctx); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestNewTextStackSkipsDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.APIKey = ""
	app, err := NewTextStack(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewTextStack: %v", err)
	}
	defer app.Close()
	if app.Assembler == nil || app.Rasterizer == nil {
		t.Fatal("text stack not wired")
	}
	if app.DB != nil || app.Processor != nil {
		t.Fatal("text stack should not open the database or build the processor")
	}
}
