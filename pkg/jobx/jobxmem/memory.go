// Package jobxmem is an in-process jobx.Queue for tests and single-node
// development.
package jobxmem

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/jobx"
)

type scheduled struct {
	id string
	at time.Time
}

// Queue keeps jobs in memory. Jobs are lost when the process exits.
type Queue struct {
	mu        sync.Mutex
	jobs      map[string]jobx.JobInfo
	ready     map[string][]string
	scheduled map[string][]scheduled
	notify    chan struct{}
}

var _ jobx.Queue = (*Queue)(nil)

func New() *Queue {
	return &Queue{
		jobs:      make(map[string]jobx.JobInfo),
		ready:     make(map[string][]string),
		scheduled: make(map[string][]scheduled),
		notify:    make(chan struct{}, 1),
	}
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) Push(_ context.Context, job *jobx.JobInfo, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.jobs[job.ID] = *job
	if !at.After(job.UpdatedAt) {
		q.ready[job.Queue] = append(q.ready[job.Queue], job.ID)
		q.signal()
		return nil
	}
	q.scheduled[job.Queue] = append(q.scheduled[job.Queue], scheduled{id: job.ID, at: at})
	return nil
}

func (q *Queue) Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*jobx.JobInfo, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if job := q.pop(queues); job != nil {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, nil
		case <-timer.C:
			return nil, nil
		case <-q.notify:
		}
	}
}

func (q *Queue) pop(queues []string) *jobx.JobInfo {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, name := range queues {
		ids := q.ready[name]
		if len(ids) == 0 {
			continue
		}
		id := ids[0]
		q.ready[name] = ids[1:]
		if len(ids) > 1 {
			q.signal()
		}

		job := q.jobs[id]
		job.Status = jobx.JobStatusActive
		job.Attempts++
		job.UpdatedAt = time.Now().UTC()
		q.jobs[id] = job
		return &job
	}
	return nil
}

func (q *Queue) Save(_ context.Context, job *jobx.JobInfo) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.jobs[job.ID]; !ok {
		return jobx.ErrJobNotFound(job.ID)
	}
	q.jobs[job.ID] = *job
	return nil
}

func (q *Queue) Get(_ context.Context, jobID string) (*jobx.JobInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return nil, jobx.ErrJobNotFound(jobID)
	}
	return &job, nil
}

func (q *Queue) PromoteDue(_ context.Context, queues []string, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	promoted := false
	for _, name := range queues {
		pending := q.scheduled[name]
		q.scheduled[name] = slices.DeleteFunc(pending, func(s scheduled) bool {
			if s.at.After(now) {
				return false
			}
			q.ready[name] = append(q.ready[name], s.id)
			promoted = true
			return true
		})
	}
	if promoted {
		q.signal()
	}
	return nil
}
