package pager

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/criteria/internal/criteria"
	"github.com/roach88/criteria/internal/metrics"
	"github.com/roach88/criteria/internal/testutil"
)

func rows(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func query(s *testutil.Script[int]) Query[int] {
	return Query[int]{Data: s.Data, Count: s.Count}
}

func fastSettings(attempts int, throw bool) RetrySettings {
	return RetrySettings{
		MaxAttempts:       attempts,
		MinWait:           10 * time.Millisecond,
		MaxWait:           80 * time.Millisecond,
		ThrowOnExhaustion: throw,
	}
}

func TestPage_Consistent(t *testing.T) {
	tests := []struct {
		name  string
		rows  int
		total int64
		pc    criteria.PageControl
		want  bool
	}{
		{"unlimited all rows", 5, 5, criteria.Unlimited(), true},
		{"unlimited missing row", 4, 5, criteria.Unlimited(), false},
		{"full first page", 10, 25, criteria.NewPageControl(0, 10), true},
		{"short middle page", 9, 25, criteria.NewPageControl(1, 10), false},
		{"last page remainder", 5, 25, criteria.NewPageControl(2, 10), true},
		{"last page too short", 4, 25, criteria.NewPageControl(2, 10), false},
		{"exact last page", 10, 20, criteria.NewPageControl(1, 10), true},
		{"beyond total empty", 0, 20, criteria.NewPageControl(3, 10), true},
		{"beyond total rows", 1, 20, criteria.NewPageControl(3, 10), false},
		{"empty result", 0, 0, criteria.NewPageControl(0, 10), true},
		{"rows with zero total", 1, 0, criteria.NewPageControl(0, 10), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := Page[int]{Rows: rows(tc.rows), Total: tc.total, PageControl: tc.pc}
			assert.Equal(t, tc.want, p.Consistent())
		})
	}
}

func TestFetch_ConsistentFirstAttempt(t *testing.T) {
	clock := testutil.NewFakeClock()
	s := testutil.NewScript(testutil.Round[int]{Rows: rows(10), Total: 25})
	pc := criteria.NewPageControl(0, 10)

	page, err := Fetch(context.Background(), query(s), pc, DefaultRetrySettings(), WithSleeper(clock))

	require.NoError(t, err)
	assert.Equal(t, 1, page.Attempts)
	assert.Equal(t, int64(25), page.Total)
	assert.Len(t, page.Rows, 10)
	assert.Equal(t, pc, page.PageControl)
	assert.Empty(t, clock.Slept())
	assert.Equal(t, []criteria.PageControl{pc}, s.DataCalls())
}

func TestFetch_RecoversFromPhantomRead(t *testing.T) {
	clock := testutil.NewFakeClock()
	s := testutil.NewScript(
		testutil.Round[int]{Rows: rows(9), Total: 25},
		testutil.Round[int]{Rows: rows(9), Total: 26},
		testutil.Round[int]{Rows: rows(10), Total: 26},
	)
	settings := fastSettings(5, true)

	page, err := Fetch(context.Background(), query(s), criteria.NewPageControl(0, 10), settings,
		WithSleeper(clock), WithClock(clock.Now))

	require.NoError(t, err)
	assert.Equal(t, 3, page.Attempts)
	assert.Len(t, page.Rows, 10)
	assert.Equal(t, settings.WaitTimes()[:2], clock.Slept())
}

func TestFetch_ExhaustionThrows(t *testing.T) {
	clock := testutil.NewFakeClock()
	s := testutil.NewScript(testutil.Round[int]{Rows: rows(3), Total: 7})
	settings := fastSettings(4, true)

	page, err := Fetch(context.Background(), query(s), criteria.Unlimited(), settings,
		WithSleeper(clock), WithClock(clock.Now))

	require.Error(t, err)
	assert.True(t, IsPhantomReadError(err))
	assert.Equal(t, 4, s.CountCalls())
	assert.Len(t, clock.Slept(), 3)

	var perr *PhantomReadError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 4, perr.Attempts)
	assert.Equal(t, settings.MaxTotalWait().Round(time.Millisecond), perr.Elapsed.Round(time.Millisecond))
	assert.Equal(t, Snapshot{Rows: 3, Total: 7, PageControl: criteria.Unlimited()}, perr.Page)
	assert.Contains(t, err.Error(), "after 4 attempts")

	// The inconsistent page still comes back for diagnostics.
	assert.Len(t, page.Rows, 3)
}

func TestFetch_ExhaustionReturnsLastPage(t *testing.T) {
	clock := testutil.NewFakeClock()
	s := testutil.NewScript(
		testutil.Round[int]{Rows: rows(1), Total: 7},
		testutil.Round[int]{Rows: rows(2), Total: 7},
		testutil.Round[int]{Rows: rows(3), Total: 7},
	)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	page, err := Fetch(context.Background(), query(s), criteria.Unlimited(), fastSettings(3, false),
		WithSleeper(clock), WithLogger(logger))

	require.NoError(t, err)
	assert.Equal(t, 3, page.Attempts)
	assert.Len(t, page.Rows, 3)
	assert.False(t, page.Consistent())
	assert.Contains(t, buf.String(), "phantom read not resolved")
}

func TestFetch_SingleAttemptNeverSleeps(t *testing.T) {
	clock := testutil.NewFakeClock()
	s := testutil.NewScript(testutil.Round[int]{Rows: rows(1), Total: 2})

	_, err := Fetch(context.Background(), query(s), criteria.Unlimited(), fastSettings(1, true), WithSleeper(clock))

	assert.True(t, IsPhantomReadError(err))
	assert.Equal(t, 1, s.CountCalls())
	assert.Empty(t, clock.Slept())
}

func TestFetch_BackendErrorsAreNotRetried(t *testing.T) {
	boom := errors.New("connection reset")

	tests := []struct {
		name  string
		round testutil.Round[int]
		want  string
	}{
		{"data", testutil.Round[int]{DataErr: boom}, "data query (attempt 1)"},
		{"count", testutil.Round[int]{Rows: rows(1), CountErr: boom}, "count query (attempt 1)"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clock := testutil.NewFakeClock()
			s := testutil.NewScript(tc.round)

			_, err := Fetch(context.Background(), query(s), criteria.Unlimited(), fastSettings(5, true), WithSleeper(clock))

			require.Error(t, err)
			assert.ErrorIs(t, err, boom)
			assert.Contains(t, err.Error(), tc.want)
			assert.False(t, IsPhantomReadError(err))
			assert.Len(t, s.DataCalls(), 1)
			assert.Empty(t, clock.Slept())
		})
	}
}

func TestFetch_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := testutil.NewFakeClock()
	s := testutil.NewScript(
		testutil.Round[int]{Rows: rows(1), Total: 5},
		testutil.Round[int]{Rows: rows(2), Total: 5},
	)
	q := Query[int]{
		Data: s.Data,
		Count: func(ctx context.Context) (int64, error) {
			n, err := s.Count(ctx)
			if s.CountCalls() == 2 {
				cancel()
			}
			return n, err
		},
	}

	page, err := Fetch(ctx, q, criteria.Unlimited(), fastSettings(10, true), WithSleeper(clock))

	require.NoError(t, err)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.Equal(t, 2, page.Attempts)
	assert.Len(t, page.Rows, 2)
	assert.Len(t, clock.Slept(), 1)
}

func TestFetch_TimerSleeperStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := TimerSleeper.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, TimerSleeper.Sleep(context.Background(), time.Millisecond))
}

func TestFetch_InvalidInput(t *testing.T) {
	s := testutil.NewScript(testutil.Round[int]{})

	_, err := Fetch(context.Background(), query(s), criteria.Unlimited(), RetrySettings{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid retry settings")

	_, err = Fetch(context.Background(), Query[int]{Data: s.Data}, criteria.Unlimited(), DefaultRetrySettings())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data and a count query")
	assert.Equal(t, 0, s.CountCalls())
}

func TestFetch_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	clock := testutil.NewFakeClock()

	recovering := testutil.NewScript(
		testutil.Round[int]{Rows: rows(1), Total: 2},
		testutil.Round[int]{Rows: rows(2), Total: 2},
	)
	_, err := Fetch(context.Background(), query(recovering), criteria.Unlimited(), fastSettings(3, true),
		WithSleeper(clock), WithMetrics(m))
	require.NoError(t, err)

	failing := testutil.NewScript(testutil.Round[int]{Rows: rows(1), Total: 2})
	_, err = Fetch(context.Background(), query(failing), criteria.Unlimited(), fastSettings(3, false),
		WithSleeper(clock), WithMetrics(m))
	require.NoError(t, err)

	assert.Equal(t, 5.0, promtest.ToFloat64(m.FetchAttempts))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.PhantomReads.WithLabelValues(metrics.OutcomeRecovered)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.PhantomReads.WithLabelValues(metrics.OutcomeExhausted)))
}
