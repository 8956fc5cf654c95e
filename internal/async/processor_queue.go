package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KeyCoreSH/extractBrowser-EC2/constants"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
)

// JobState is the last known state of a job.
type JobState struct {
	ID         uuid.UUID
	Filename   string
	Status     constants.JobStatus
	LogID      uuid.UUID
	Confidence float64
	Error      string
	UpdatedAt  time.Time
}

type ProcessorQueue struct {
	proc    Processor
	logger  *slog.Logger
	workers int
	timeout time.Duration
	keep    int

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool

	statesMu sync.Mutex
	states   map[uuid.UUID]*JobState
	order    []uuid.UUID
}

var _ Queue = (*ProcessorQueue)(nil)

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithHistory bounds how many finished job states are remembered.
func WithHistory(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.keep = n
		}
	}
}

func NewProcessorQueue(proc Processor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		keep:    1024,
		ch:      make(chan Job, 256),
		states:  make(map[uuid.UUID]*JobState),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("queue.worker.started", "worker_id", workerID)
				for job := range q.ch {
					q.run(workerID, job)
				}
				q.logger.Info("queue.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) run(workerID int, job Job) {
	q.setState(job.ID, func(s *JobState) { s.Status = constants.JobStatusRunning })

	ctx := context.Background()
	if job.TraceID != "" {
		ctx = common.WithRequestID(ctx, job.TraceID)
	}
	ctx, cancel := common.WithTimeout(ctx, q.timeout)
	defer cancel()

	out, err := q.proc.Process(ctx, job.Upload)
	if err == nil && !out.Result.Success {
		q.logger.Warn("queue.job.no_data", "worker_id", workerID, "job_id", job.ID, "error", out.Result.Error)
	}
	q.setState(job.ID, func(s *JobState) {
		s.LogID = out.LogID
		s.Confidence = out.Result.Confidence
		if err != nil {
			s.Status = constants.JobStatusFailed
			s.Error = err.Error()
			return
		}
		s.Status = constants.JobStatusDone
		s.Error = out.Result.Error
	})

	if err != nil {
		q.logger.Error("queue.job.failed",
			"worker_id", workerID, "job_id", job.ID, "filename", job.Upload.Filename,
			"wait_ms", time.Since(job.SubmittedAt).Milliseconds(), "error", err)
	} else {
		q.logger.Info("queue.job.done",
			"worker_id", workerID, "job_id", job.ID, "filename", job.Upload.Filename,
			"log_id", out.LogID, "success", out.Result.Success,
			"wait_ms", time.Since(job.SubmittedAt).Milliseconds())
	}
	if job.Done != nil {
		job.Done(ctx, out, err)
	}
}

// Enqueue blocks while the buffer is full, until ctx is done.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) (uuid.UUID, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("queue.enqueue.closed", "filename", job.Upload.Filename)
		return uuid.Nil, ErrClosed
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	if job.TraceID == "" {
		job.TraceID = common.RequestIDFromContext(ctx)
	}
	q.setState(job.ID, func(s *JobState) {
		s.Filename = job.Upload.Filename
		s.Status = constants.JobStatusQueued
	})

	select {
	case q.ch <- job:
		q.logger.Info("queue.enqueue.ok", "job_id", job.ID, "filename", job.Upload.Filename)
		return job.ID, nil
	default:
	}
	q.logger.Warn("queue.enqueue.backpressure", "job_id", job.ID, "filename", job.Upload.Filename)
	select {
	case q.ch <- job:
		return job.ID, nil
	case <-ctx.Done():
		q.setState(job.ID, func(s *JobState) {
			s.Status = constants.JobStatusFailed
			s.Error = ctx.Err().Error()
		})
		return uuid.Nil, ctx.Err()
	}
}

// State returns a copy of the job's last known state.
func (q *ProcessorQueue) State(id uuid.UUID) (JobState, bool) {
	q.statesMu.Lock()
	defer q.statesMu.Unlock()
	s, ok := q.states[id]
	if !ok {
		return JobState{}, false
	}
	return *s, true
}

// Pending is the number of jobs waiting for a worker.
func (q *ProcessorQueue) Pending() int { return len(q.ch) }

func (q *ProcessorQueue) setState(id uuid.UUID, fn func(*JobState)) {
	q.statesMu.Lock()
	defer q.statesMu.Unlock()
	s, ok := q.states[id]
	if !ok {
		s = &JobState{ID: id}
		q.states[id] = s
		q.order = append(q.order, id)
		if len(q.order) > q.keep {
			delete(q.states, q.order[0])
			q.order = q.order[1:]
		}
	}
	fn(s)
	s.UpdatedAt = time.Now()
}

func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted")
	case <-done:
		q.logger.Info("queue.shutdown.drained")
	}
}
