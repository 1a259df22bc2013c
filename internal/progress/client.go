package progress

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/interview-prep/internal/notify"
	"github.com/jonathan/interview-prep/internal/resilience"
	"github.com/jonathan/interview-prep/internal/types"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
)

// ErrJobNotFound is reported as the last update when the tracked job disappears.
var ErrJobNotFound = errors.New("job not found")

// Source reads job state. GetJob returns nil, nil when the job does not exist.
type Source interface {
	GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error)
}

// Notifier delivers change hints for a job.
type Notifier interface {
	Subscribe(ctx context.Context, jobID uuid.UUID) (<-chan notify.Event, error)
}

// Update is one observation of a tracked job.
type Update struct {
	Job          *types.Job
	Stall        StallInfo
	PollInterval time.Duration
	// Retryable is true when the job failed or has stalled long enough to offer a retry.
	Retryable bool
	// Err is set when a poll failed. Polling continues unless the job is gone.
	Err error
}

// Client tracks jobs. Source is required; the rest have defaults.
type Client struct {
	Source   Source
	Notifier Notifier
	Cadence  Cadence
	Stall    StallPolicy
	// SubscribeTimeout bounds the push subscription handshake.
	SubscribeTimeout time.Duration
	// PollTimeout bounds each GetJob call.
	PollTimeout time.Duration
	// Jitter is the standard deviation added to each poll interval.
	Jitter time.Duration
	Clock  func() time.Time
	Log    *zap.Logger
}

// NewClient creates a Client with default cadence and stall policy.
func NewClient(source Source, notifier Notifier, logger *zap.Logger) *Client {
	return &Client{
		Source:           source,
		Notifier:         notifier,
		Cadence:          DefaultCadence(),
		Stall:            DefaultStallPolicy(),
		SubscribeTimeout: 5 * time.Second,
		PollTimeout:      10 * time.Second,
		Jitter:           100 * time.Millisecond,
		Log:              logger,
	}
}

func (c *Client) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

func (c *Client) logger() *zap.Logger {
	if c.Log != nil {
		return c.Log
	}
	return zap.NewNop()
}

// Track polls job id and sends an Update per observation. The channel is closed
// once the job is completed or failed, when it no longer exists, or when ctx is done.
func (c *Client) Track(ctx context.Context, id uuid.UUID) <-chan Update {
	out := make(chan Update, 1)
	go c.track(ctx, id, out)
	return out
}

func (c *Client) track(ctx context.Context, id uuid.UUID, out chan<- Update) {
	defer close(out)
	logger := c.logger().With(zap.String("job_id", id.String()))

	subCtx, cancelSub := context.WithCancel(ctx)
	defer cancelSub()
	events := c.subscribe(subCtx, cancelSub, id, logger)

	interval := c.Cadence.Pending
	if interval <= 0 {
		interval = c.Cadence.Interval(0)
	}
	var (
		ticker      *jitterbug.Ticker
		tickerEvery time.Duration
	)
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		upd, done := c.poll(ctx, id)
		if upd.Job != nil {
			interval = upd.PollInterval
		} else {
			upd.PollInterval = interval
		}
		select {
		case out <- upd:
		case <-ctx.Done():
			return
		}
		if done {
			return
		}

		if ticker == nil || tickerEvery != interval {
			if ticker != nil {
				ticker.Stop()
			}
			ticker = jitterbug.New(interval, &jitterbug.Norm{Stdev: c.Jitter})
			tickerEvery = interval
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case _, ok := <-events:
			if !ok {
				logger.Debug("push subscription ended, polling only")
				events = nil
				continue
			}
			drain(events)
		}
	}
}

// subscribe opens the push channel. Any failure leaves a nil channel, which
// never fires, so tracking falls back to polling alone.
func (c *Client) subscribe(ctx context.Context, cancel context.CancelFunc, id uuid.UUID, logger *zap.Logger) <-chan notify.Event {
	if c.Notifier == nil {
		return nil
	}
	events, err := resilience.WithTimeout(ctx, c.SubscribeTimeout, "progress subscribe", func(context.Context) (<-chan notify.Event, error) {
		// The subscription must outlive this call, so it takes the tracking context.
		return c.Notifier.Subscribe(ctx, id)
	})
	if err != nil {
		if ctx.Err() == nil {
			logger.Debug("push subscription unavailable, polling only", zap.Error(err))
		}
		// A late subscription is torn down with the tracking context; stop it now.
		if resilience.IsTimeout(err) {
			cancel()
		}
		return nil
	}
	return events
}

// poll reads the job once. done reports that tracking should stop.
func (c *Client) poll(ctx context.Context, id uuid.UUID) (Update, bool) {
	job, err := resilience.WithTimeout(ctx, c.PollTimeout, "progress poll", func(ctx context.Context) (*types.Job, error) {
		return c.Source.GetJob(ctx, id)
	})
	if err != nil {
		return Update{Err: err}, false
	}
	if job == nil {
		return Update{Err: ErrJobNotFound}, true
	}

	now := c.now()
	stall := c.Stall.Evaluate(job, now)
	return Update{
		Job:          job,
		Stall:        stall,
		PollInterval: c.Cadence.For(job, now),
		Retryable:    job.Status == types.JobStatusFailed || stall.CanRetry,
	}, job.Status.IsTerminal()
}

// drain discards queued hints; one poll covers all of them.
func drain(events <-chan notify.Event) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
