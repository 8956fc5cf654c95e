// Package bootstrap wires the extraction stack from a common.Config.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/async"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/export"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/extract"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/ingest"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/llm"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/llm/openai"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/llm/vertex"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/ocr"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/pipeline"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/repository"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/server"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/storage"
)

// App holds every long lived component. Build it once per process.
type App struct {
	Config     *common.Config
	DB         *repository.DB
	Logs       repository.ExtractionLogRepository
	Registry   *llm.Registry
	Engine     ocr.Engine // nil when OCR is unavailable
	Rasterizer ocr.Rasterizer
	Assembler  *extract.Assembler
	Service    *pipeline.Service
	Processor  *pipeline.Processor
	Store      storage.BlobStore // nil when STORAGE_BACKEND=none
	Exporter   *export.Service

	logger  *slog.Logger
	aws     *aws.Config
	closers []func() error
}

// New opens the database, migrates it and builds the pipeline. On error
// everything opened so far is closed.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger) (app *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.DB, err = repository.Open(ctx, repository.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.closers = append(a.closers, func() error { a.DB.Close(logger); return nil })

	a.Logs = repository.NewExtractionLogRepository(a.DB.Driver, logger)
	if err := a.Logs.Migrate(ctx); err != nil {
		return nil, err
	}

	a.Registry, err = llm.NewRegistry(logger)
	if err != nil {
		return nil, err
	}

	structurer, err := a.structurer(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.buildText(ctx); err != nil {
		return nil, err
	}
	a.Store, err = a.blobStore(ctx)
	if err != nil {
		return nil, err
	}

	a.Service = pipeline.NewService(a.Registry, structurer, logger)
	a.Processor = pipeline.NewProcessor(pipeline.Config{
		MaxPages:   cfg.Extract.MaxPages,
		PreviewDPI: cfg.Extract.PreviewDPI,
	}, a.Assembler, a.Service, a.Rasterizer, a.Store, a.Logs, logger)
	a.Exporter = export.NewService(a.Logs, logger)

	logger.Info("bootstrap.ready",
		"db_driver", cfg.Database.Driver,
		"llm_provider", cfg.LLM.Provider,
		"ocr_engine", cfg.OCR.Engine,
		"storage", cfg.Storage.Backend,
	)
	return a, nil
}

// NewTextStack builds only text extraction: no database, LLM or storage.
func NewTextStack(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, logger: logger}
	if err := a.buildText(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) buildText(ctx context.Context) error {
	cfg := a.Config
	engine, err := a.ocrEngine(ctx)
	if err != nil {
		return err
	}
	a.Engine = engine
	a.Rasterizer = ocr.NewPdftoppmRasterizer(cfg.OCR.Pdftoppm, ocr.ExecRunner{}, a.logger)
	pages := extract.NewPageExtractor(extract.Config{
		MinDirectChars:     cfg.Extract.MinDirectChars,
		DPI:                cfg.Extract.OCRDPI,
		SignatureHeuristic: cfg.Extract.SignatureHeuristic,
		PageWorkers:        cfg.Extract.PageWorkers,
	}, engine, a.logger)
	a.Assembler = extract.NewAssembler(pages, a.logger)
	return nil
}

// NewQueue starts a worker pool over the processor.
func (a *App) NewQueue() *async.ProcessorQueue {
	return async.NewProcessorQueue(a.Processor, a.logger,
		async.WithWorkers(a.Config.Queue.Workers),
		async.WithQueueSize(a.Config.Queue.Size),
		async.WithProcessTimeout(a.Config.Queue.Timeout),
	)
}

// NewSQSSource returns nil when SQS_QUEUE_URL is unset. Messages reference
// objects in the configured blob store, so one is required.
func (a *App) NewSQSSource(ctx context.Context) (*ingest.SQSSource, error) {
	if a.Config.Queue.SQSQueueURL == "" {
		return nil, nil
	}
	if a.Store == nil {
		return nil, common.NewAppError(common.CodeConfig, "SQS_QUEUE_URL needs a STORAGE_BACKEND", common.ErrInvalidInput)
	}
	awsCfg, err := a.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	return ingest.NewSQSSource(sqs.NewFromConfig(awsCfg), a.Store, ingest.SQSConfig{
		QueueURL:          a.Config.Queue.SQSQueueURL,
		VisibilityTimeout: a.Config.Queue.Timeout + time.Minute,
	}, a.logger), nil
}

// ServerDeps exposes the app to the gRPC service. Pass a nil interface, not
// a nil *ProcessorQueue, to disable async extraction.
func (a *App) ServerDeps(q server.JobQueue) server.Deps {
	return server.Deps{
		Processor:  a.Processor,
		Structurer: a.Service,
		Queue:      q,
		Logs:       a.Logs,
		Exporter:   a.Exporter,
		Store:      a.Store,
		PresignTTL: a.Config.Storage.PresignTTL,
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("bootstrap.close_failed", "error", err)
		}
	}
	a.closers = nil
}

func (a *App) structurer(ctx context.Context) (llm.Structurer, error) {
	c := a.Config.LLM
	switch c.Provider {
	case "vertex":
		client, err := vertex.NewClient(ctx, vertex.Config{
			Project:     c.VertexProject,
			Location:    c.VertexLocation,
			Model:       c.VertexModel,
			Temperature: c.Temperature,
			MaxTokens:   c.MaxTokens,
			Timeout:     c.Timeout,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return client, nil
	default:
		return openai.NewClient(openai.Config{
			APIKey:      c.APIKey,
			BaseURL:     c.BaseURL,
			Model:       c.Model,
			Temperature: c.Temperature,
			MaxTokens:   c.MaxTokens,
			Timeout:     c.Timeout,
		}, a.logger), nil
	}
}

func (a *App) ocrEngine(ctx context.Context) (ocr.Engine, error) {
	c := a.Config.OCR
	switch c.Engine {
	case "tesseract":
		return ocr.NewTesseractEngine(ocr.TesseractConfig{
			Binary:      c.Tesseract,
			Lang:        c.TesseractLang,
			TessdataDir: c.TessdataDir,
		}, ocr.ExecRunner{}, a.logger), nil
	case "openai":
		return ocr.NewVisionEngine(ocr.VisionConfig{
			APIKey:  a.Config.LLM.APIKey,
			BaseURL: a.Config.LLM.BaseURL,
			Model:   c.VisionModel,
		}, a.logger), nil
	default:
		awsCfg, err := a.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		return ocr.NewTextractEngine(awsCfg, a.logger), nil
	}
}

func (a *App) blobStore(ctx context.Context) (storage.BlobStore, error) {
	c := a.Config.Storage
	switch c.Backend {
	case "s3":
		awsCfg, err := a.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		return storage.NewS3Store(awsCfg, c.S3Bucket, a.logger), nil
	case "gcs":
		st, err := storage.NewGCSStore(ctx, c.GCSBucket, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st.Close)
		return st, nil
	default:
		return nil, nil
	}
}

// awsConfig loads the shared SDK config once.
func (a *App) awsConfig(ctx context.Context) (aws.Config, error) {
	if a.aws != nil {
		return *a.aws, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(a.Config.OCR.AWSRegion))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	a.aws = &cfg
	return cfg, nil
}
