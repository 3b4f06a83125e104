// Package liveness checks many onion targets concurrently and classifies
// each one as alive or dead.
//
// Checks run on an errgroup with a concurrency limit. Completed records are
// handed to a single driving goroutine that persists them, reports them to
// the caller's progress callback in completion order, and then waits a short
// delay before accepting the next completion to avoid hammering the Tor
// network.
package liveness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/onionwatch/internal/fetch"
	"github.com/nao1215/onionwatch/internal/model"
	"github.com/nao1215/tornago"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultConcurrency is the worker limit used when CheckBulk is given
	// a non-positive maxConcurrency.
	DefaultConcurrency = 20

	// DefaultDelay is the pause after each reported completion.
	DefaultDelay = 500 * time.Millisecond

	// DefaultTimeout is the per-target fetch timeout.
	DefaultTimeout = 30 * time.Second

	// ReasonCanceled is the reason recorded for targets that never started
	// because the batch was canceled.
	ReasonCanceled = "canceled"
)

// Recorder persists liveness records. *database.Store implements it.
type Recorder interface {
	Record(ctx context.Context, record model.LivenessRecord) error
}

// Summary aggregates one CheckBulk run.
// Alive+Dead always equals len(Records), which equals the number of targets.
type Summary struct {
	Alive   int                    `json:"alive"`
	Dead    int                    `json:"dead"`
	Records []model.LivenessRecord `json:"records"`
}

// Total returns the number of checked targets.
func (s Summary) Total() int {
	return s.Alive + s.Dead
}

// Checker runs liveness checks.
type Checker struct {
	fetcher  fetch.Fetcher
	timeout  time.Duration
	delay    time.Duration
	recorder Recorder
	limiter  *tornago.RateLimiter
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Checker.
type Option func(*Checker)

// WithTimeout sets the per-target fetch timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithDelay sets the pause after each reported completion. Zero disables it.
func WithDelay(d time.Duration) Option {
	return func(c *Checker) {
		if d >= 0 {
			c.delay = d
		}
	}
}

// WithRecorder persists every record as it completes.
func WithRecorder(r Recorder) Option {
	return func(c *Checker) {
		c.recorder = r
	}
}

// WithRateLimit paces task starts to rate per second with the given burst.
// A non-positive rate disables pacing.
func WithRateLimit(rate float64, burst int) Option {
	return func(c *Checker) {
		if rate <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = tornago.NewRateLimiter(rate, burst)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// NewChecker returns a Checker that fetches through f.
func NewChecker(f fetch.Fetcher, opts ...Option) *Checker {
	c := &Checker{
		fetcher: f,
		timeout: DefaultTimeout,
		delay:   DefaultDelay,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// completion carries a finished record and its position in the input.
type completion struct {
	index  int
	record model.LivenessRecord
}

// CheckBulk checks every target with at most maxConcurrency fetches in
// flight and returns one record per target, in input order.
//
// onProgress, when non-nil, is called from the calling goroutine once per
// target in completion order. It must not block for long.
//
// Cancelling ctx aborts in-flight fetches and marks targets that have not
// started as dead with reason "canceled"; CheckBulk still returns a record
// for every target.
func (c *Checker) CheckBulk(
	ctx context.Context,
	targets []model.Target,
	maxConcurrency int,
	onProgress func(model.LivenessRecord),
) Summary {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultConcurrency
	}

	c.logger.Info("starting liveness check",
		"targets", len(targets),
		"concurrency", maxConcurrency,
	)
	startTime := time.Now()

	// Buffered so that workers never wait on the delay in the driver.
	done := make(chan completion, len(targets))

	var g errgroup.Group
	g.SetLimit(maxConcurrency)

	go func() {
		for i, target := range targets {
			if ctx.Err() != nil {
				done <- completion{index: i, record: c.canceled(target)}
				continue
			}
			g.Go(func() error {
				done <- completion{index: i, record: c.checkOne(ctx, target)}
				return nil
			})
		}
		_ = g.Wait() //nolint:errcheck // tasks never return errors
		close(done)
	}()

	summary := Summary{Records: make([]model.LivenessRecord, len(targets))}
	received := 0
	for comp := range done {
		received++
		summary.Records[comp.index] = comp.record
		if comp.record.IsAlive() {
			summary.Alive++
		} else {
			summary.Dead++
		}

		if c.recorder != nil {
			if err := c.recorder.Record(context.WithoutCancel(ctx), comp.record); err != nil {
				c.logger.Warn("failed to persist liveness record",
					"url", comp.record.URL,
					"error", err,
				)
			}
		}
		if onProgress != nil {
			onProgress(comp.record)
		}

		if received < len(targets) {
			c.pause(ctx)
		}
	}

	c.logger.Info("liveness check complete",
		"alive", summary.Alive,
		"dead", summary.Dead,
		"elapsed", time.Since(startTime),
	)
	return summary
}

// Check checks a single target.
func (c *Checker) Check(ctx context.Context, target model.Target) model.LivenessRecord {
	return c.checkOne(ctx, target)
}

func (c *Checker) checkOne(ctx context.Context, target model.Target) (record model.LivenessRecord) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("liveness check panicked", "url", target.URL, "panic", r)
			record = c.dead(target, 0, fmt.Sprintf("panic: %v", r), model.FailureInternal)
		}
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return c.canceled(target)
		}
	}
	if ctx.Err() != nil {
		return c.canceled(target)
	}

	c.logger.Debug("checking target", "url", target.URL)
	start := time.Now()
	result := c.fetcher.FetchContent(ctx, target.URL, c.timeout)
	elapsed := time.Since(start)

	if result.IsOK() {
		return model.LivenessRecord{
			TargetID:     target.ID,
			URL:          target.URL,
			Status:       model.StatusAlive,
			StatusCode:   result.StatusCode,
			ResponseTime: elapsed,
			CheckedAt:    c.now(),
		}
	}

	kind := model.FailureHTTPStatus
	switch {
	case result.Err != nil:
		kind = result.Err.Kind
	case !result.Success:
		kind = model.FailureInternal
	}
	return c.dead(target, result.StatusCode, result.Reason(), kind)
}

func (c *Checker) dead(target model.Target, status int, reason string, kind model.FailureKind) model.LivenessRecord {
	if reason == "" {
		reason = "unknown failure"
	}
	return model.LivenessRecord{
		TargetID:    target.ID,
		URL:         target.URL,
		Status:      model.StatusDead,
		StatusCode:  status,
		Reason:      reason,
		FailureKind: kind,
		CheckedAt:   c.now(),
	}
}

func (c *Checker) canceled(target model.Target) model.LivenessRecord {
	return c.dead(target, 0, ReasonCanceled, model.FailureCanceled)
}

// pause waits the configured delay or until ctx is done.
func (c *Checker) pause(ctx context.Context) {
	if c.delay <= 0 || ctx.Err() != nil {
		return
	}
	timer := time.NewTimer(c.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
