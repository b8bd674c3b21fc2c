package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/apperrors"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/metrics"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/models"
)

// ErrQueueFull is returned when the in-memory queue cannot take more work
var ErrQueueFull = errors.New("delivery queue is full")

// job wraps a work token with retry info. A finish job only reports
// completion for a campaign whose messages already went out.
type job struct {
	token   models.WorkToken
	attempt int
	finish  bool
}

// QueueConfig tunes the in-memory dispatcher
type QueueConfig struct {
	Workers    int
	Capacity   int
	MaxRetries int
	RetryDelay time.Duration
}

// MemoryDispatcher runs delivery in process. It stands in for the external
// delivery subsystem: it resolves messages, hands them to a Mailer and reports
// completion back to the engine.
type MemoryDispatcher struct {
	resolver *Resolver
	mailer   Mailer
	logger   log.Logger
	metrics  *metrics.Metrics
	cfg      QueueConfig

	jobs   chan job
	engine Engine
	wg     sync.WaitGroup

	mu       sync.Mutex
	running  map[int]context.CancelFunc
	progress map[int]int
	discard  map[int]struct{}
}

// NewMemoryDispatcher creates an in-memory dispatcher. Call Start before use.
func NewMemoryDispatcher(resolver *Resolver, mailer Mailer, cfg QueueConfig, logger log.Logger, m *metrics.Metrics) *MemoryDispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 2
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = 100
	}
	return &MemoryDispatcher{
		resolver: resolver,
		mailer:   mailer,
		logger:   logger,
		metrics:  m,
		cfg:      cfg,
		jobs:     make(chan job, cfg.Capacity),
		running:  make(map[int]context.CancelFunc),
		progress: make(map[int]int),
		discard:  make(map[int]struct{}),
	}
}

// Start launches the workers. They exit when ctx is done.
func (d *MemoryDispatcher) Start(ctx context.Context, engine Engine) {
	d.engine = engine
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-d.jobs:
					d.process(ctx, j)
				}
			}
		}()
	}
}

// Wait blocks until all workers have exited
func (d *MemoryDispatcher) Wait() {
	d.wg.Wait()
}

// Dispatch implements service.Dispatcher
func (d *MemoryDispatcher) Dispatch(ctx context.Context, token models.WorkToken) error {
	return d.enqueue(job{token: token})
}

func (d *MemoryDispatcher) enqueue(j job) error {
	select {
	case d.jobs <- j:
		return nil
	default:
		d.metrics.RecordDispatchError("memory", "token")
		return ErrQueueFull
	}
}

// Signal implements service.Dispatcher. A campaign being sent stops at the
// next subscriber; queued tokens are dropped when a worker sees the campaign
// is no longer running.
func (d *MemoryDispatcher) Signal(ctx context.Context, sig models.ControlSignal) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cancel, ok := d.running[sig.CampaignID]; ok {
		cancel()
		if sig.Action == models.ActionCancel {
			d.discard[sig.CampaignID] = struct{}{}
		}
	}
	if sig.Action == models.ActionCancel {
		delete(d.progress, sig.CampaignID)
	}
	return nil
}

func (d *MemoryDispatcher) process(ctx context.Context, j job) {
	id := j.token.CampaignID
	logger := log.With(d.logger, "campaign_id", id, "attempt", j.attempt)

	if j.finish {
		d.finish(ctx, j, logger)
		return
	}

	// registered before the status check so a signal sent after the check
	// still stops this run
	runCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.running[id] = cancel
	after := d.progress[id]
	d.mu.Unlock()

	c, err := d.engine.GetCampaign(ctx, id)
	if err != nil || c.Status != models.StatusRunning {
		cancel()
		d.mu.Lock()
		delete(d.running, id)
		delete(d.discard, id)
		d.mu.Unlock()

		switch {
		case err == nil:
			level.Debug(logger).Log("msg", "dropping token", "status", c.Status)
		case !apperrors.IsNotFound(err):
			level.Error(logger).Log("msg", "failed to load campaign", "err", err)
		}
		return
	}

	last, sent, err := d.resolver.Resolve(runCtx, c, after, func(msg models.Message) error {
		return d.mailer.Send(runCtx, msg)
	})
	stopped := runCtx.Err() != nil
	cancel()

	d.mu.Lock()
	delete(d.running, id)
	_, discard := d.discard[id]
	delete(d.discard, id)
	if discard || (err == nil && !stopped) {
		delete(d.progress, id)
	} else {
		d.progress[id] = last
	}
	d.mu.Unlock()
	d.metrics.RecordMessages("memory", sent)

	switch {
	case stopped:
		level.Info(logger).Log("msg", "delivery stopped", "sent", sent, "last_subscriber_id", last)
		return

	case err != nil:
		if apperrors.IsValidation(err) || j.attempt >= d.cfg.MaxRetries {
			level.Error(logger).Log("msg", "delivery failed permanently", "err", err)
			return
		}
		d.retry(j, err, logger)
		return
	}

	level.Info(logger).Log("msg", "messages sent", "sent", sent)
	d.finish(ctx, job{token: j.token, finish: true}, logger)
}

// finish reports completion to the engine. Lock contention that outlasts
// finishCampaign's own retries puts a finish job back on the queue.
func (d *MemoryDispatcher) finish(ctx context.Context, j job, logger log.Logger) {
	_, err := finishCampaign(ctx, d.engine, j.token.CampaignID)
	switch {
	case err == nil:
		level.Info(logger).Log("msg", "campaign delivered")
	case apperrors.IsConcurrentModification(err) && j.attempt < d.cfg.MaxRetries:
		d.retry(j, err, logger)
	default:
		level.Warn(logger).Log("msg", "could not finish campaign", "err", err)
	}
}

func (d *MemoryDispatcher) retry(j job, err error, logger log.Logger) {
	j.attempt++
	delay := time.Duration(j.attempt) * d.cfg.RetryDelay
	level.Warn(logger).Log("msg", "delivery step failed, retrying", "err", err, "retry_in", delay, "finish", j.finish)
	time.AfterFunc(delay, func() {
		if err := d.enqueue(j); err != nil {
			level.Error(logger).Log("msg", "failed to requeue", "err", err)
		}
	})
}

// Progress returns the last subscriber id handled for a stopped campaign
func (d *MemoryDispatcher) Progress(id int) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	last, ok := d.progress[id]
	return last, ok
}
