// Package pager executes a data query and a count query as one page and
// retries while the two disagree.
//
// The data and count queries run moments apart, so a commit from another
// transaction can land between them. Such a phantom read shows up as a page
// whose row count does not fit the total; Fetch detects it and repeats both
// queries with a geometric backoff.
package pager

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/criteria/internal/criteria"
	"github.com/roach88/criteria/internal/metrics"
)

// Query is a bound data query and its count query.
type Query[T any] struct {
	// Data returns the rows of the page described by pc.
	Data func(ctx context.Context, pc criteria.PageControl) ([]T, error)

	// Count returns the number of rows matching the query on all pages.
	Count func(ctx context.Context) (int64, error)
}

// Page is one page of rows and the total they belong to.
type Page[T any] struct {
	Rows        []T
	Total       int64
	PageControl criteria.PageControl

	// Attempts is the number of query rounds it took to produce the page.
	Attempts int
}

// Consistent reports whether the row count fits the total and the paging.
//
// An unlimited page holds every row. The last page holds the remainder,
// and nothing when it starts past the total. Every other page is full.
func (p Page[T]) Consistent() bool {
	n := int64(len(p.Rows))
	if p.PageControl.IsUnlimited() {
		return n == p.Total
	}
	offset := int64(p.PageControl.StartRow())
	size := int64(p.PageControl.PageSize)
	switch {
	case offset >= p.Total:
		return n == 0
	case offset+size >= p.Total:
		return offset+n == p.Total
	default:
		return n == size
	}
}

// Snapshot summarizes the page without its rows.
func (p Page[T]) Snapshot() Snapshot {
	return Snapshot{Rows: len(p.Rows), Total: p.Total, PageControl: p.PageControl}
}

// Snapshot is the shape of a page: how many rows it held against which total.
type Snapshot struct {
	Rows        int
	Total       int64
	PageControl criteria.PageControl
}

// Sleeper waits between query rounds. Sleep returns early with the
// context's error when ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f.
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// TimerSleeper sleeps on a real timer.
var TimerSleeper Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
})

type options struct {
	sleeper Sleeper
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures Fetch.
type Option func(*options)

// WithSleeper replaces the timer used for backoff.
func WithSleeper(s Sleeper) Option {
	return func(o *options) {
		o.sleeper = s
	}
}

// WithLogger sets the logger for phantom read diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics records attempts, phantom reads and durations in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithClock replaces time.Now for elapsed time measurement.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// Fetch returns the page of q described by pc.
//
// Both queries run once. While the page is inconsistent they run again,
// after waiting s.Wait(k) before round k+2, up to s.MaxAttempts rounds in
// total. When rounds run out the last page is returned; with
// s.ThrowOnExhaustion it comes back together with a *PhantomReadError.
//
// Query errors are returned wrapped and never retried. A context cancelled
// during backoff stops the retries and returns the last page without
// error; the caller sees ctx.Err().
func Fetch[T any](ctx context.Context, q Query[T], pc criteria.PageControl, s RetrySettings, opts ...Option) (Page[T], error) {
	o := options{
		sleeper: TimerSleeper,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if q.Data == nil || q.Count == nil {
		return Page[T]{}, fmt.Errorf("fetch needs both a data and a count query")
	}
	if err := s.Validate(); err != nil {
		return Page[T]{}, fmt.Errorf("invalid retry settings: %w", err)
	}

	start := o.now()
	defer func() { o.metrics.Observe(o.now().Sub(start)) }()

	backoff := s.Backoff()
	var page Page[T]
	for attempt := 1; ; attempt++ {
		rows, err := q.Data(ctx, pc)
		if err != nil {
			return Page[T]{}, fmt.Errorf("data query (attempt %d): %w", attempt, err)
		}
		total, err := q.Count(ctx)
		if err != nil {
			return Page[T]{}, fmt.Errorf("count query (attempt %d): %w", attempt, err)
		}
		o.metrics.Attempt()

		page = Page[T]{Rows: rows, Total: total, PageControl: pc, Attempts: attempt}
		if page.Consistent() {
			if attempt > 1 {
				o.metrics.PhantomRead(metrics.OutcomeRecovered)
				o.logger.Info("phantom read recovered",
					"attempts", attempt,
					"elapsed", o.now().Sub(start))
			}
			return page, nil
		}

		o.logger.Debug("inconsistent page",
			"attempt", attempt,
			"rows", len(rows),
			"total", total,
			"page", pc.String())

		if attempt >= s.MaxAttempts {
			break
		}
		if err := o.sleeper.Sleep(ctx, backoff.Step()); err != nil {
			o.metrics.PhantomRead(metrics.OutcomeCancelled)
			o.logger.Debug("fetch interrupted during backoff, returning last page",
				"attempts", attempt,
				"error", err)
			return page, nil
		}
	}

	o.metrics.PhantomRead(metrics.OutcomeExhausted)
	perr := &PhantomReadError{
		Attempts: page.Attempts,
		Elapsed:  o.now().Sub(start),
		Page:     page.Snapshot(),
	}
	if s.ThrowOnExhaustion {
		o.logger.Error("phantom read not resolved", "error", perr)
		return page, perr
	}
	o.logger.Warn("phantom read not resolved, returning inconsistent page",
		"attempts", perr.Attempts,
		"elapsed", perr.Elapsed,
		"rows", perr.Page.Rows,
		"total", perr.Page.Total)
	return page, nil
}
