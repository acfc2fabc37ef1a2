package iamcontainer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/config"
	"github.com/Abraxas-365/gatekeeper/pkg/credstore/credstoremem"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/account"
	"github.com/Abraxas-365/gatekeeper/pkg/jobx"
	"github.com/Abraxas-365/gatekeeper/pkg/jobx/jobxmem"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/Abraxas-365/gatekeeper/pkg/notifx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Name: "gatekeeper", Address: "https://auth.example.com", InMemory: true},
		Token:     config.TokenConfig{Secret: "test-secret-that-is-long-enough-for-hs256", AliveHours: 1, RefreshAliveHours: 24},
		Limiter:   config.LimiterConfig{RateLimitPerMinute: 20},
		Captcha:   config.CaptchaConfig{MaxCount: 1, BlockingTime: time.Minute},
		TwoFactor: config.TwoFactorConfig{Issuer: "gatekeeper"},
		Password:  config.PasswordConfig{BcryptCost: 4},
		Notify:    config.NotifyConfig{Provider: "console", From: "no-reply@example.com"},
		OAuth: config.OAuthConfig{
			VK:       config.OAuthClient{ClientID: "vk-id", ClientSecret: "vk-secret"},
			StateTTL: 10 * time.Minute,
		},
	}
}

func TestNew_InMemory(t *testing.T) {
	c := New(Deps{Cfg: testConfig()})

	assert.IsType(t, &credstoremem.Store{}, c.Store)
	assert.Equal(t, []string{"vk"}, c.Federation.Providers())
	assert.Equal(t, time.Hour, c.Codec.SessionTTL())

	ctx := context.Background()
	_, err := c.AccountService.Register(ctx, account.RegisterRequest{Login: "alice", Password: "correct-horse"})
	require.NoError(t, err)

	result, err := c.AccountService.Login(ctx, account.LoginRequest{Login: "alice", Password: "correct-horse"})
	require.NoError(t, err)

	_, err = c.Gate.Authorize(ctx, result.Token)
	require.NoError(t, err)
}

type outbox struct {
	mu   sync.Mutex
	sent []notifx.EmailMessage
}

func (o *outbox) SendEmail(_ context.Context, msg notifx.EmailMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}

func newWorker() *jobx.Client {
	return jobx.NewClient(jobxmem.New(),
		jobx.WithPollInterval(10*time.Millisecond),
		jobx.WithDequeueTimeout(20*time.Millisecond),
		jobx.WithShutdownTimeout(time.Second),
	)
}

// runWorker starts worker until the test ends. Handlers must be registered
// first.
func runWorker(t *testing.T, worker *jobx.Client) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ctx
}

func TestNew_LoginHistoryThroughJobs(t *testing.T) {
	worker := newWorker()
	c := New(Deps{Cfg: testConfig(), Jobs: worker})
	c.RegisterJobs(worker)
	ctx := runWorker(t, worker)

	_, err := c.AccountService.Register(ctx, account.RegisterRequest{Login: "alice", Password: "correct-horse"})
	require.NoError(t, err)
	result, err := c.AccountService.Login(ctx, account.LoginRequest{Login: "alice", Password: "correct-horse", IP: "10.0.0.1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		page, err := c.AccountService.LoginHistory(ctx, result.User.ID, kernel.PaginationOptions{})
		return err == nil && len(page.Items) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNew_SecurityAlertsThroughJobs(t *testing.T) {
	worker := newWorker()
	box := &outbox{}
	c := New(Deps{Cfg: testConfig(), Jobs: worker, Mailer: box})
	c.RegisterJobs(worker)
	ctx := runWorker(t, worker)

	u, err := c.AccountService.Register(ctx, account.RegisterRequest{
		Login:    "alice",
		Email:    "alice@example.com",
		Password: "correct-horse",
	})
	require.NoError(t, err)

	_, err = c.AccountService.Block(ctx, u.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return box.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	box.mu.Lock()
	defer box.mu.Unlock()
	assert.Equal(t, "no-reply@example.com", box.sent[0].From)
	assert.Equal(t, []string{"alice@example.com"}, box.sent[0].To)
}
