package notification

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/firetrack360/identity/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeEmailSender struct {
	mu        sync.Mutex
	sent      []domain.NotificationJob
	attempts  atomic.Int64
	err       error
	delivered chan struct{}
}

func newFakeEmailSender(err error) *fakeEmailSender {
	return &fakeEmailSender{err: err, delivered: make(chan struct{}, 64)}
}

func (f *fakeEmailSender) SendEmail(to, subject, body string) error {
	f.attempts.Add(1)
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.sent = append(f.sent, domain.NotificationJob{Recipient: to, Subject: subject, Body: body})
	f.mu.Unlock()
	f.delivered <- struct{}{}
	return nil
}

type fakeSMSSender struct {
	attempts  atomic.Int64
	delivered chan struct{}
}

func (f *fakeSMSSender) SendSMS(ctx context.Context, to, message string) error {
	f.attempts.Add(1)
	f.delivered <- struct{}{}
	return nil
}

type fakeArchiver struct {
	mu       sync.Mutex
	archived []domain.NotificationJob
	notify   chan struct{}
}

func newFakeArchiver() *fakeArchiver {
	return &fakeArchiver{notify: make(chan struct{}, 8)}
}

func (f *fakeArchiver) ArchiveJob(ctx context.Context, job domain.NotificationJob) error {
	f.mu.Lock()
	f.archived = append(f.archived, job)
	f.mu.Unlock()
	f.notify <- struct{}{}
	return nil
}

// --- helpers ---

func testConfig() Config {
	return Config{
		Workers:        2,
		MaxAttempts:    3,
		QueueSize:      16,
		BaseDelay:      time.Millisecond,
		MaxDelay:       10 * time.Millisecond,
		AttemptTimeout: time.Second,
	}
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for dispatcher")
	}
}

// --- tests ---

func TestDispatcher_DeliversEmail(t *testing.T) {
	email := newFakeEmailSender(nil)
	d := NewDispatcher(testConfig(), DispatcherDeps{Email: email})
	defer d.Close()

	err := d.Enqueue(context.Background(), domain.NotificationJob{
		Recipient: "a@x.com",
		Subject:   "Verify your account",
		Body:      "Your code is 123456",
	})
	require.NoError(t, err)

	waitFor(t, email.delivered)

	email.mu.Lock()
	defer email.mu.Unlock()
	require.Len(t, email.sent, 1)
	assert.Equal(t, "a@x.com", email.sent[0].Recipient)
	assert.Equal(t, "Verify your account", email.sent[0].Subject)
}

func TestDispatcher_RoutesSMSChannel(t *testing.T) {
	sms := &fakeSMSSender{delivered: make(chan struct{}, 8)}
	d := NewDispatcher(testConfig(), DispatcherDeps{Email: newFakeEmailSender(nil), SMS: sms})
	defer d.Close()

	err := d.Enqueue(context.Background(), domain.NotificationJob{
		Recipient: "+15550100",
		Body:      "Your code is 123456",
		Channel:   domain.ChannelSMS,
	})
	require.NoError(t, err)

	waitFor(t, sms.delivered)
	assert.Equal(t, int64(1), sms.attempts.Load())
}

func TestDispatcher_RetriesThenAbandons(t *testing.T) {
	email := newFakeEmailSender(errors.New("relay down"))
	archive := newFakeArchiver()
	cfg := testConfig()
	d := NewDispatcher(cfg, DispatcherDeps{Email: email, Archive: archive})
	defer d.Close()

	err := d.Enqueue(context.Background(), domain.NotificationJob{
		JobID:     "job-1",
		Recipient: "a@x.com",
		Subject:   "s",
		Body:      "b",
	})
	require.NoError(t, err)

	waitFor(t, archive.notify)

	// A job that always fails is attempted exactly MaxAttempts+1 times,
	// then archived once and never touched again.
	assert.Equal(t, int64(cfg.MaxAttempts+1), email.attempts.Load())

	archive.mu.Lock()
	require.Len(t, archive.archived, 1)
	assert.Equal(t, "job-1", archive.archived[0].JobID)
	assert.Equal(t, cfg.MaxAttempts+1, archive.archived[0].Attempts)
	archive.mu.Unlock()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(cfg.MaxAttempts+1), email.attempts.Load())
	assert.Equal(t, 0, d.Pending())
}

func TestDispatcher_EnqueueAfterClose(t *testing.T) {
	d := NewDispatcher(testConfig(), DispatcherDeps{Email: newFakeEmailSender(nil)})
	d.Close()

	err := d.Enqueue(context.Background(), domain.NotificationJob{Recipient: "a@x.com"})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestDispatcher_EnqueueWhenFull(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	cfg.QueueSize = 1
	email := newFakeEmailSender(errors.New("relay down"))
	cfg.BaseDelay = time.Minute
	cfg.MaxDelay = time.Minute

	d := NewDispatcher(cfg, DispatcherDeps{Email: email})
	defer d.Close()

	require.NoError(t, d.Enqueue(context.Background(), domain.NotificationJob{Recipient: "a@x.com"}))

	// The first job is stuck in its retry delay, so the arena stays full.
	err := d.Enqueue(context.Background(), domain.NotificationJob{Recipient: "b@x.com"})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestDispatcher_AssignsJobID(t *testing.T) {
	email := newFakeEmailSender(nil)
	d := NewDispatcher(testConfig(), DispatcherDeps{Email: email})
	defer d.Close()

	require.NoError(t, d.Enqueue(context.Background(), domain.NotificationJob{Recipient: "a@x.com"}))
	waitFor(t, email.delivered)
}

func TestNextDelay_StrictlyIncreasingThenCapped(t *testing.T) {
	base := time.Second
	limit := time.Minute

	prev := time.Duration(0)
	capped := false
	for attempt := 1; attempt <= 10; attempt++ {
		d := nextDelay(base, limit, attempt)
		if capped {
			assert.Equal(t, limit, d)
			continue
		}
		assert.Greater(t, d, prev)
		prev = d
		if d == limit {
			capped = true
		}
	}
	assert.True(t, capped)
	assert.Equal(t, limit, nextDelay(base, limit, 1000))
}
