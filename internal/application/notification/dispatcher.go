package notification

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/firetrack360/identity/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrQueueClosed = errors.New("notification queue is closed")
	ErrQueueFull   = errors.New("notification queue is full")
)

type emailSender interface {
	SendEmail(to, subject, body string) error
}

type smsSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

// archiver receives jobs that exhausted their retry budget. Optional.
type archiver interface {
	ArchiveJob(ctx context.Context, job domain.NotificationJob) error
}

// Config controls dispatcher concurrency and retry behavior.
type Config struct {
	Workers        int
	MaxAttempts    int
	QueueSize      int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

type DispatcherDeps struct {
	Email   emailSender
	SMS     smsSender
	Archive archiver
}

// jobState is an arena entry. A job is leased by at most one worker at a
// time; NextAttemptAt gates when an unleased job becomes eligible again.
type jobState struct {
	job    domain.NotificationJob
	leased bool
}

// Dispatcher delivers notification jobs asynchronously with bounded retry.
// Enqueue never blocks on delivery; delivery failures are retried with
// exponential backoff and decreasing priority until the attempt budget is
// spent, after which the job is logged and archived, never retried again.
type Dispatcher struct {
	cfg  Config
	deps DispatcherDeps

	mu    sync.Mutex
	arena map[string]*jobState

	wake      chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewDispatcher(cfg Config, deps DispatcherDeps) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 10 * time.Second
	}

	d := &Dispatcher{
		cfg:   cfg,
		deps:  deps,
		arena: make(map[string]*jobState),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.run()
	}

	return d
}

// Enqueue registers a job for asynchronous delivery and returns immediately.
// It errors only when the queue itself is unavailable (closed or full);
// delivery outcomes are never reported back through this path.
func (d *Dispatcher) Enqueue(ctx context.Context, job domain.NotificationJob) error {
	if d.closed.Load() {
		return ErrQueueClosed
	}
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.Channel == "" {
		job.Channel = domain.ChannelEmail
	}
	job.NextAttemptAt = time.Now()

	d.mu.Lock()
	if len(d.arena) >= d.cfg.QueueSize {
		d.mu.Unlock()
		return ErrQueueFull
	}
	d.arena[job.JobID] = &jobState{job: job}
	d.mu.Unlock()

	d.signal()
	return nil
}

// Pending reports how many jobs are queued or in flight.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.arena)
}

// Close stops the workers. In-flight attempts finish; queued jobs that were
// never leased are dropped without delivery.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case <-d.done:
			return
		case <-d.wake:
		}

		for {
			state, ok := d.lease()
			if !ok {
				break
			}
			d.attempt(state)
			select {
			case <-d.done:
				return
			default:
			}
		}
	}
}

// lease picks the eligible unleased job with the highest priority and marks
// it owned by the calling worker. No two workers can hold the same job.
func (d *Dispatcher) lease() (*jobState, bool) {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	var best *jobState
	for _, s := range d.arena {
		if s.leased || s.job.NextAttemptAt.After(now) {
			continue
		}
		if best == nil || s.job.Priority > best.job.Priority ||
			(s.job.Priority == best.job.Priority && s.job.NextAttemptAt.Before(best.job.NextAttemptAt)) {
			best = s
		}
	}
	if best == nil {
		return nil, false
	}
	best.leased = true
	return best, true
}

func (d *Dispatcher) attempt(state *jobState) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.AttemptTimeout)
	err := d.deliver(ctx, state.job)
	cancel()

	d.mu.Lock()
	if err == nil {
		delete(d.arena, state.job.JobID)
		d.mu.Unlock()
		return
	}

	state.job.Attempts++
	if state.job.Attempts > d.cfg.MaxAttempts {
		job := state.job
		delete(d.arena, job.JobID)
		d.mu.Unlock()
		d.abandon(job, err)
		return
	}

	delay := nextDelay(d.cfg.BaseDelay, d.cfg.MaxDelay, state.job.Attempts)
	state.job.NextAttemptAt = time.Now().Add(delay)
	state.job.Priority--
	job := state.job
	state.leased = false
	d.mu.Unlock()

	slog.Warn("notification delivery failed, will retry",
		"job_id", job.JobID,
		"channel", job.Channel,
		"attempt", job.Attempts,
		"retry_in", delay,
		"err", err,
	)

	time.AfterFunc(delay, func() {
		select {
		case <-d.done:
		default:
			d.signal()
		}
	})
}

func (d *Dispatcher) deliver(ctx context.Context, job domain.NotificationJob) error {
	switch job.Channel {
	case domain.ChannelSMS:
		if d.deps.SMS == nil {
			return errors.New("no sms sender configured")
		}
		return d.deps.SMS.SendSMS(ctx, job.Recipient, job.Body)
	default:
		if d.deps.Email == nil {
			return errors.New("no email sender configured")
		}
		return d.deps.Email.SendEmail(job.Recipient, job.Subject, job.Body)
	}
}

// abandon is the terminal path for a job whose retry budget is spent.
func (d *Dispatcher) abandon(job domain.NotificationJob, lastErr error) {
	slog.Error("notification abandoned after final attempt",
		"job_id", job.JobID,
		"channel", job.Channel,
		"recipient", job.Recipient,
		"attempts", job.Attempts,
		"err", lastErr,
	)
	if d.deps.Archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.AttemptTimeout)
	defer cancel()
	if err := d.deps.Archive.ArchiveJob(ctx, job); err != nil {
		slog.Error("failed to archive abandoned notification", "job_id", job.JobID, "err", err)
	}
}

// signal wakes a worker without blocking; a full wake channel means one is
// already pending.
func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// nextDelay doubles per attempt, capped. The shift saturates before it can
// overflow into a negative duration.
func nextDelay(base, limit time.Duration, attempt int) time.Duration {
	if attempt > 30 {
		return limit
	}
	delay := base << attempt
	if delay > limit || delay <= 0 {
		return limit
	}
	return delay
}
