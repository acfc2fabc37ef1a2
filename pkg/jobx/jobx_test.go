package jobx_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/jobx"
	"github.com/Abraxas-365/gatekeeper/pkg/jobx/jobxmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeting struct {
	Name string `json:"name"`
}

func newClient(q jobx.Queue) *jobx.Client {
	return jobx.NewClient(q,
		jobx.WithConcurrency(2),
		jobx.WithPollInterval(10*time.Millisecond),
		jobx.WithDequeueTimeout(20*time.Millisecond),
		jobx.WithDefaultRetryDelay(time.Millisecond),
		jobx.WithShutdownTimeout(time.Second),
	)
}

func start(t *testing.T, c *jobx.Client) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitStatus(t *testing.T, c *jobx.Client, id string, want jobx.JobStatus) *jobx.JobInfo {
	t.Helper()
	var job *jobx.JobInfo
	require.Eventually(t, func() bool {
		var err error
		job, err = c.GetJob(context.Background(), id)
		return err == nil && job.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestClient_RunsHandlerWithPayload(t *testing.T) {
	c := newClient(jobxmem.New())
	got := make(chan string, 1)
	c.Register("greet", func(ctx context.Context, job *jobx.JobInfo) error {
		var g greeting
		if err := job.Decode(&g); err != nil {
			return err
		}
		got <- g.Name
		return nil
	})
	start(t, c)

	id, err := c.Enqueue(context.Background(), "greet", greeting{Name: "trinity"})
	require.NoError(t, err)

	select {
	case name := <-got:
		assert.Equal(t, "trinity", name)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not called")
	}
	job := waitStatus(t, c, id, jobx.JobStatusCompleted)
	assert.Equal(t, 1, job.Attempts)
}

func TestClient_RetriesUntilSuccess(t *testing.T) {
	c := newClient(jobxmem.New())
	var calls atomic.Int32
	c.Register("flaky", func(ctx context.Context, job *jobx.JobInfo) error {
		if calls.Add(1) < 3 {
			return errors.New("database is restarting")
		}
		return nil
	})
	start(t, c)

	id, err := c.Enqueue(context.Background(), "flaky", nil, jobx.MaxRetries(5))
	require.NoError(t, err)

	job := waitStatus(t, c, id, jobx.JobStatusCompleted)
	assert.Equal(t, 3, job.Attempts)
}

func TestClient_FailsAfterRetryBudget(t *testing.T) {
	c := newClient(jobxmem.New())
	c.Register("broken", func(ctx context.Context, job *jobx.JobInfo) error {
		return errors.New("always")
	})
	start(t, c)

	id, err := c.Enqueue(context.Background(), "broken", nil, jobx.MaxRetries(1))
	require.NoError(t, err)

	job := waitStatus(t, c, id, jobx.JobStatusFailed)
	assert.Equal(t, 2, job.Attempts)
	assert.Equal(t, "always", job.Error)
}

func TestClient_RecoversHandlerPanic(t *testing.T) {
	c := newClient(jobxmem.New())
	c.Register("panics", func(ctx context.Context, job *jobx.JobInfo) error {
		panic("nil map")
	})
	start(t, c)

	id, err := c.Enqueue(context.Background(), "panics", nil, jobx.MaxRetries(0))
	require.NoError(t, err)

	job := waitStatus(t, c, id, jobx.JobStatusFailed)
	assert.Contains(t, job.Error, "handler panic")
}

func TestClient_UnknownTypeFails(t *testing.T) {
	c := newClient(jobxmem.New())
	start(t, c)

	id, err := c.Enqueue(context.Background(), "nobody-handles-this", nil)
	require.NoError(t, err)
	waitStatus(t, c, id, jobx.JobStatusFailed)
}

func TestClient_EnqueueValidation(t *testing.T) {
	c := newClient(jobxmem.New())

	_, err := c.Enqueue(context.Background(), "", nil)
	assert.True(t, errx.HasCode(err, jobx.CodeInvalidJob))

	_, err = c.Enqueue(context.Background(), "bad", make(chan int))
	assert.True(t, errx.HasCode(err, jobx.CodeInvalidJob))
}
