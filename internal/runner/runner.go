// Package runner composes query generation, the paged fetch and the
// initialization of deferred bag associations.
package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/criteria/internal/criteria"
	"github.com/roach88/criteria/internal/pager"
	"github.com/roach88/criteria/internal/querygen"
)

// Backend executes generated queries against a data source.
//
// Select and Count receive the same generated pair for every round of one
// fetch. Initialize loads a deferred bag field of a row fetched by Select.
type Backend[T any] interface {
	Select(ctx context.Context, g *querygen.Generated, pc criteria.PageControl) ([]T, error)
	Count(ctx context.Context, g *querygen.Generated) (int64, error)
	Initialize(ctx context.Context, row T, field string) error
}

// Runner runs criteria requests against one backend.
//
// A Runner holds no per-call state; it is safe for concurrent use when its
// backend is.
type Runner[T any] struct {
	gen       *querygen.Generator
	be        Backend[T]
	settings  pager.RetrySettings
	ids       IDGenerator
	logger    *slog.Logger
	pagerOpts []pager.Option
}

// Option configures a Runner.
type Option func(*config)

type config struct {
	settings  pager.RetrySettings
	ids       IDGenerator
	logger    *slog.Logger
	pagerOpts []pager.Option
}

// WithRetrySettings replaces pager.DefaultRetrySettings.
func WithRetrySettings(s pager.RetrySettings) Option {
	return func(c *config) {
		c.settings = s
	}
}

// WithIDGenerator replaces the UUIDv7 fetch id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *config) {
		c.ids = g
	}
}

// WithLogger sets the logger. Records of one run carry its fetch id.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithPagerOptions passes options to every pager.Fetch call, e.g. a sleeper
// or metrics.
func WithPagerOptions(opts ...pager.Option) Option {
	return func(c *config) {
		c.pagerOpts = append(c.pagerOpts, opts...)
	}
}

// New creates a runner generating queries with gen and executing them on be.
func New[T any](gen *querygen.Generator, be Backend[T], opts ...Option) *Runner[T] {
	cfg := config{
		settings: pager.DefaultRetrySettings(),
		ids:      UUIDv7Generator{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Runner[T]{
		gen:       gen,
		be:        be,
		settings:  cfg.settings,
		ids:       cfg.ids,
		logger:    cfg.logger,
		pagerOpts: cfg.pagerOpts,
	}
}

// Generate returns the query pair for a request without executing it.
func (r *Runner[T]) Generate(c *criteria.Criteria, auth *criteria.AuthorizationContext) (*querygen.Generated, error) {
	return r.gen.Generate(c, auth)
}

// Run fetches the page described by c and initializes every deferred bag
// of every returned row before returning.
//
// Generation and backend errors are returned as is, wrapped. A phantom read
// that outlasts the retry settings with ThrowOnExhaustion comes back as a
// *pager.PhantomReadError next to the inconsistent, uninitialized page.
func (r *Runner[T]) Run(ctx context.Context, c *criteria.Criteria, auth *criteria.AuthorizationContext) (pager.Page[T], error) {
	g, err := r.gen.Generate(c, auth)
	if err != nil {
		return pager.Page[T]{}, fmt.Errorf("generate query: %w", err)
	}

	fp, err := g.Fingerprint()
	if err != nil {
		return pager.Page[T]{}, fmt.Errorf("fingerprint query: %w", err)
	}

	log := r.logger.With("fetch_id", r.ids.Generate(), "entity", g.Entity, "query_fingerprint", fp)
	log.Debug("running criteria query",
		"data", g.DataText(),
		"page", g.PageControl.String())

	q := pager.Query[T]{
		Data: func(ctx context.Context, pc criteria.PageControl) ([]T, error) {
			return r.be.Select(ctx, g, pc)
		},
		Count: func(ctx context.Context) (int64, error) {
			return r.be.Count(ctx, g)
		},
	}
	opts := append(append([]pager.Option(nil), r.pagerOpts...), pager.WithLogger(log))
	page, err := pager.Fetch(ctx, q, g.PageControl, r.settings, opts...)
	if err != nil {
		if pager.IsPhantomReadError(err) {
			return page, err
		}
		return pager.Page[T]{}, err
	}

	// A fetch interrupted during backoff still returns its page, so the
	// bags are loaded even when ctx is already done.
	bagCtx := context.WithoutCancel(ctx)
	for _, field := range g.Bags {
		for _, row := range page.Rows {
			if err := r.be.Initialize(bagCtx, row, field); err != nil {
				return pager.Page[T]{}, fmt.Errorf("initialize %s.%s: %w", g.Entity, field, err)
			}
		}
	}

	log.Debug("criteria query complete",
		"rows", len(page.Rows),
		"total", page.Total,
		"attempts", page.Attempts,
		"bags", len(g.Bags))
	return page, nil
}
