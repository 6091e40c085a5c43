package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"log/slog"

	"prepflow/internal/config"
	"prepflow/internal/storage"
)

// JobType enumerates supported job categories.
type JobType string

const (
	JobScan     JobType = "scan"
	JobGenerate JobType = "generate"
	JobRun      JobType = "run"
)

// Job represents a single request. SessionDir is the directory holding the
// biases/flats/darks/lights layout; Output is where the script text lands.
type Job struct {
	ID         string
	Type       JobType
	SessionDir string
	Output     string
	// Mode selects how a run job reaches the host: "pipe" or "batch".
	Mode string
	// Stages overrides the configured stage options when non-nil.
	Stages *config.Stages
}

// Result captures the outcome of a Job.
type Result struct {
	Job   Job
	Error error
	Meta  map[string]any
}

// Processor executes a job and returns a Result.
type Processor interface {
	Process(ctx context.Context, job Job) Result
}

// Pipeline orchestrates job dispatch across workers.
type Pipeline struct {
	processor Processor
	log       *slog.Logger
	jobs      chan Job
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	startOnce sync.Once
	stopOnce  sync.Once
	store     *storage.Store
	cfg       *config.Config
	mu        sync.Mutex
	subs      map[int]chan Result
	nextSubID int
}

// New creates a new Pipeline with the given concurrency. Runs against a
// single host instance, so concurrency is usually 1.
func New(ctx context.Context, concurrency int, logger *slog.Logger, store *storage.Store, cfg *config.Config) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pipeline{
		log:    logger,
		jobs:   make(chan Job, concurrency*2),
		cancel: cancel,
		store:  store,
		cfg:    cfg,
		subs:   make(map[int]chan Result),
	}

	p.startOnce.Do(func() {
		p.processor = newRouter(logger, store, cfg)
		for i := 0; i < concurrency; i++ {
			p.wg.Add(1)
			go p.worker(ctx, i)
		}
	})

	return p
}

// Submit adds a job to the queue.
func (p *Pipeline) Submit(job Job) error {
	if p.store != nil {
		_ = p.store.RecordRunQueued(storage.RunRecord{
			ID:         job.ID,
			ScriptID:   job.ID,
			Mode:       jobMode(job),
			Status:     "queued",
			SessionDir: job.SessionDir,
		})
	}

	select {
	case p.jobs <- job:
		return nil
	default:
		return errors.New("job queue is full")
	}
}

// Stop signals workers to exit and waits for completion.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.cancel()
		close(p.jobs)
		p.wg.Wait()
		p.mu.Lock()
		for id, ch := range p.subs {
			close(ch)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	})
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			start := time.Now()

			p.log.Info("job started",
				"type", job.Type,
				"id", job.ID,
				"session", job.SessionDir,
				"mode", jobMode(job),
			)

			if p.store != nil {
				_ = p.store.RecordRunStart(job.ID)
			}
			res := p.processor.Process(ctx, job)
			duration := time.Since(start)

			if res.Error != nil {
				p.log.Error("job failed",
					"type", job.Type,
					"id", job.ID,
					"duration_ms", duration.Milliseconds(),
					"error", res.Error.Error(),
				)
				if p.store != nil {
					_ = p.store.RecordRunResult(job.ID, "failed", errString(res.Error))
				}
			} else {
				p.log.Info("job completed",
					"type", job.Type,
					"id", job.ID,
					"duration_ms", duration.Milliseconds(),
				)
				if p.store != nil {
					_ = p.store.RecordRunResult(job.ID, "completed", "")
				}
			}

			p.broadcast(res)
		}
	}
}

// Subscribe returns a channel for receiving job results and an unsubscribe function.
func (p *Pipeline) Subscribe() (<-chan Result, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSubID
	p.nextSubID++
	ch := make(chan Result, 8)
	p.subs[id] = ch
	unsub := func() {
		p.mu.Lock()
		if c, ok := p.subs[id]; ok {
			close(c)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	}
	return ch, unsub
}

func jobMode(job Job) string {
	if job.Type != JobRun {
		return string(job.Type)
	}
	if job.Mode == "" {
		return "pipe"
	}
	return job.Mode
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (p *Pipeline) broadcast(res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.subs {
		select {
		case ch <- res:
		default:
			p.log.Warn("result channel full", "subscriber", id, "job", res.Job.ID)
		}
	}
}
