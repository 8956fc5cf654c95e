package async

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/pipeline"
)

// ErrClosed is returned by Enqueue after Shutdown has started.
var ErrClosed = errors.New("queue is shutting down")

// Job is one upload waiting for a worker.
type Job struct {
	ID          uuid.UUID
	Upload      pipeline.Upload
	SubmittedAt time.Time
	TraceID     string
	// Done, when set, is called once the job finishes, with the processing
	// error (nil on success). Sources use it to ack their messages.
	Done func(ctx context.Context, out pipeline.Outcome, err error)
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) (uuid.UUID, error)
	Shutdown(ctx context.Context)
}

// Processor is the part of pipeline.Processor the workers need.
type Processor interface {
	Process(ctx context.Context, up pipeline.Upload) (pipeline.Outcome, error)
}
