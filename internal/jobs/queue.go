// Package jobs provides the asynchronous trigger for reconciliation runs.
//
// A Queue holds reconciliation ids and a pool of workers that invoke the
// pipeline for each. Delivery is at-least-once: retryable failures are
// re-enqueued with exponentially growing delays up to a bounded attempt
// count, permanent failures are discarded after the record has been marked
// failed. The pipeline's idempotent preconditions make duplicate delivery
// harmless.
package jobs

import (
	"context"
	"sync"
	"time"

	"feed-reconciliation-service/pkg/errors"
	"feed-reconciliation-service/pkg/logger"
)

// Invoker runs the reconciliation pipeline for one record.
type Invoker interface {
	Invoke(ctx context.Context, id string) error
}

// Config controls the worker pool and retry policy.
type Config struct {
	// Workers is the number of concurrent pipeline invocations.
	Workers int
	// MaxAttempts bounds deliveries per id, first attempt included.
	MaxAttempts int
	// InitialBackoff is the delay before the first retry; each further
	// retry doubles it.
	InitialBackoff time.Duration
	// QueueSize is the channel capacity; Enqueue rejects when full.
	QueueSize int
}

// DefaultConfig returns the standard queue configuration.
func DefaultConfig() *Config {
	return &Config{
		Workers:        4,
		MaxAttempts:    3,
		InitialBackoff: 2 * time.Second,
		QueueSize:      256,
	}
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return errors.ValidationError(errors.CodeInvalidConfig, "workers", c.Workers, nil)
	}
	if c.MaxAttempts < 1 {
		return errors.ValidationError(errors.CodeInvalidConfig, "max_attempts", c.MaxAttempts, nil)
	}
	if c.QueueSize < 1 {
		return errors.ValidationError(errors.CodeInvalidConfig, "queue_size", c.QueueSize, nil)
	}
	return nil
}

type job struct {
	id      string
	attempt int
}

// Queue dispatches reconciliation ids to a fixed pool of workers.
type Queue struct {
	invoker Invoker
	config  *Config
	logger  logger.Logger

	jobs   chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewQueue creates a queue over the given invoker. The workers are not
// started until Start is called.
func NewQueue(invoker Invoker, config *Config) (*Queue, error) {
	if invoker == nil {
		return nil, errors.ValidationError(errors.CodeInvalidConfig, "invoker", nil, nil)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		invoker: invoker,
		config:  config,
		logger:  logger.GetGlobalLogger().WithComponent("jobs"),
		jobs:    make(chan job, config.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start launches the worker pool.
func (q *Queue) Start() {
	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.logger.WithField("workers", q.config.Workers).Info("Job workers started")
}

// Enqueue submits a reconciliation id for processing. It never blocks;
// the return value reports whether the id was accepted.
func (q *Queue) Enqueue(id string) bool {
	return q.push(job{id: id, attempt: 1})
}

func (q *Queue) push(j job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	select {
	case q.jobs <- j:
		return true
	default:
		q.logger.WithField("reconciliation_id", j.id).Warn("Job queue full, submission rejected")
		return false
	}
}

// Close stops accepting work, cancels in-flight invocations, and waits for
// the workers to drain.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

func (q *Queue) worker(n int) {
	defer q.wg.Done()
	log := q.logger.WithField("worker", n)
	for j := range q.jobs {
		q.process(log, j)
	}
}

func (q *Queue) process(log logger.Logger, j job) {
	log = log.WithFields(logger.Fields{
		"reconciliation_id": j.id,
		"attempt":           j.attempt,
	})

	err := q.invoker.Invoke(q.ctx, j.id)
	if err == nil {
		return
	}

	if !errors.IsRetryable(err) {
		log.WithError(err).Warn("Job failed permanently, discarding")
		return
	}

	if j.attempt >= q.config.MaxAttempts {
		log.WithError(err).Error("Job exhausted retry attempts, discarding")
		return
	}

	delay := q.backoff(j.attempt)
	log.WithError(err).WithField("retry_in", delay.String()).Info("Job failed transiently, scheduling retry")

	retry := job{id: j.id, attempt: j.attempt + 1}
	time.AfterFunc(delay, func() {
		if !q.push(retry) {
			q.logger.WithField("reconciliation_id", retry.id).Warn("Retry dropped, queue closed or full")
		}
	})
}

// backoff returns the delay before the retry following the given attempt.
func (q *Queue) backoff(attempt int) time.Duration {
	delay := q.config.InitialBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}
