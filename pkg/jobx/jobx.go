// Package jobx runs background jobs with at-least-once delivery.
//
// Jobs are JSON payloads tagged with a type. A Client enqueues them on a
// Queue backend and, once started, runs a pool of workers that dispatch each
// job to the handler registered for its type. A failed job is retried with a
// linearly growing delay until its retry budget is spent, so handlers must
// tolerate running more than once.
package jobx

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/logx"
	"github.com/google/uuid"
)

// HandlerFunc processes a job. Return nil on success, an error to trigger retry/fail.
type HandlerFunc func(ctx context.Context, job *JobInfo) error

// Enqueuer is the producer side of the client.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload any, opts ...EnqueueOption) (string, error)
}

// Queue is the storage backend.
type Queue interface {
	// Push makes job available for dequeue at or after at.
	Push(ctx context.Context, job *JobInfo, at time.Time) error
	// Dequeue waits up to timeout for a ready job. It returns nil, nil on timeout.
	Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*JobInfo, error)
	// Save persists the job's status fields.
	Save(ctx context.Context, job *JobInfo) error
	Get(ctx context.Context, jobID string) (*JobInfo, error)
	// PromoteDue moves scheduled jobs whose time has come to the ready queue.
	PromoteDue(ctx context.Context, queues []string, now time.Time) error
}

// Client is the main entry point for enqueuing and processing jobs.
type Client struct {
	queue    Queue
	opts     WorkerOptions
	now      func() time.Time
	handlers map[string]HandlerFunc
	mu       sync.RWMutex
	running  bool
}

var _ Enqueuer = (*Client)(nil)

// NewClient creates a new job processing client.
func NewClient(queue Queue, options ...WorkerOption) *Client {
	opts := defaultWorkerOptions()
	for _, o := range options {
		o(&opts)
	}
	return &Client{
		queue:    queue,
		opts:     opts,
		now:      time.Now,
		handlers: make(map[string]HandlerFunc),
	}
}

// Register adds a handler for a given job type.
func (c *Client) Register(jobType string, handler HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[jobType] = handler
}

// Enqueue stores a job of jobType carrying payload encoded as JSON.
func (c *Client) Enqueue(ctx context.Context, jobType string, payload any, options ...EnqueueOption) (string, error) {
	if jobType == "" {
		return "", ErrInvalidJob("job type is required")
	}
	opts := EnqueueOptions{Queue: DefaultQueue, MaxRetries: DefaultMaxRetries}
	for _, o := range options {
		o(&opts)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", ErrInvalidJob("payload is not JSON encodable").WithDetail("error", err.Error())
	}

	now := c.now().UTC()
	job := &JobInfo{
		ID:         uuid.NewString(),
		Type:       jobType,
		Queue:      opts.Queue,
		Payload:    raw,
		Status:     JobStatusPending,
		MaxRetries: opts.MaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := c.queue.Push(ctx, job, now.Add(opts.Delay)); err != nil {
		return "", err
	}
	return job.ID, nil
}

// GetJob returns the current state of a job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*JobInfo, error) {
	return c.queue.Get(ctx, jobID)
}

// Start begins processing jobs. It blocks until ctx is cancelled.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrRegistry.New(CodeAlreadyRunning)
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	logx.Infof("jobx: starting %d workers on queues %v", c.opts.Concurrency, c.opts.Queues)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.schedulerLoop(ctx)
	}()

	for i := range c.opts.Concurrency {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.workerLoop(ctx, id)
		}(i)
	}

	<-ctx.Done()
	logx.Info("jobx: shutting down workers...")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logx.Info("jobx: all workers stopped")
	case <-time.After(c.opts.ShutdownTimeout):
		logx.Warn("jobx: shutdown timed out, some jobs may not have completed")
	}

	return nil
}

func (c *Client) schedulerLoop(ctx context.Context) {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.queue.PromoteDue(ctx, c.opts.Queues, c.now().UTC()); err != nil {
				if ctx.Err() != nil {
					return
				}
				logx.WithError(err).Warn("jobx: failed to promote scheduled jobs")
			}
		}
	}
}

func (c *Client) workerLoop(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := c.queue.Dequeue(ctx, c.opts.Queues, c.opts.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logx.WithError(err).Warnf("jobx: worker %d dequeue error", id)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.opts.PollInterval):
			}
			continue
		}
		if job == nil {
			continue
		}

		c.processJob(ctx, job)
	}
}

// processJob runs one attempt of job. The job was marked active by Dequeue.
func (c *Client) processJob(ctx context.Context, job *JobInfo) {
	c.mu.RLock()
	handler, ok := c.handlers[job.Type]
	c.mu.RUnlock()

	log := logx.WithFields(logx.Fields{"job_id": job.ID, "job_type": job.Type, "attempt": job.Attempts})

	if !ok {
		log.Warn("jobx: no handler registered for job type")
		c.finish(ctx, job, JobStatusFailed, "no handler registered for job type")
		return
	}

	err := safeRun(ctx, handler, job)
	if err == nil {
		c.finish(ctx, job, JobStatusCompleted, "")
		return
	}

	if !job.CanRetry() {
		log.WithError(err).Error("jobx: job failed permanently")
		c.finish(ctx, job, JobStatusFailed, err.Error())
		return
	}

	log.WithError(err).Warn("jobx: job failed, scheduling retry")
	job.Status = JobStatusRetrying
	job.Error = err.Error()
	job.UpdatedAt = c.now().UTC()
	delay := c.opts.DefaultRetryDelay * time.Duration(job.Attempts)
	if pushErr := c.queue.Push(ctx, job, job.UpdatedAt.Add(delay)); pushErr != nil {
		log.WithError(pushErr).Error("jobx: failed to schedule retry")
	}
}

func (c *Client) finish(ctx context.Context, job *JobInfo, status JobStatus, errMsg string) {
	job.Status = status
	job.Error = errMsg
	job.UpdatedAt = c.now().UTC()
	if err := c.queue.Save(ctx, job); err != nil {
		logx.WithError(err).Errorf("jobx: failed to save job %s as %s", job.ID, status)
	}
}

// safeRun turns a handler panic into an error so one bad job cannot stop a
// worker.
func safeRun(ctx context.Context, handler HandlerFunc, job *JobInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, job)
}
