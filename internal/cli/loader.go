package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/criteria/internal/criteria"
	"github.com/roach88/criteria/internal/dialect"
	"github.com/roach88/criteria/internal/metrics"
	"github.com/roach88/criteria/internal/pager"
	"github.com/roach88/criteria/internal/querygen"
	"github.com/roach88/criteria/internal/runner"
	"github.com/roach88/criteria/internal/schema"
	"github.com/roach88/criteria/internal/store"
)

// session is everything a command resolves before doing its work.
type session struct {
	opts *RootOptions
	out  *OutputFormatter
	cmd  *cobra.Command
}

func newSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	s := &session{
		opts: opts,
		cmd:  cmd,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
	}
	if _, err := opts.env(cmd); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) && exitErr.Err != nil {
			_ = s.out.Error(ErrCodeConfig, exitErr.Err.Error(), nil)
		}
		return nil, err
	}
	return s, nil
}

// loadRequest reads a request file.
func (s *session) loadRequest(path string) (*criteria.Criteria, *criteria.AuthorizationContext, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil, s.out.Fail(ExitCommandError, ErrCodeNotFound, fmt.Errorf("request file not found: %s", path))
	}
	c, auth, err := criteria.LoadRequestFile(path)
	if err != nil {
		return nil, nil, s.out.Fail(ExitCommandError, ErrCodeInvalidRequest, err)
	}
	s.out.VerboseLog("Loaded request for %s from %s", c.Entity, path)
	return c, auth, nil
}

// registry returns the configured descriptor table, the demo one by default.
func (s *session) registry() (*schema.Registry, error) {
	path := s.opts.Config.Registry
	if path == "" {
		return store.DemoRegistry(), nil
	}
	reg, err := schema.LoadFile(path)
	if err != nil {
		return nil, s.out.Fail(ExitCommandError, ErrCodeRegistry, err)
	}
	s.out.VerboseLog("Loaded %d entity descriptor(s) from %s", len(reg.Entities()), path)
	return reg, nil
}

func (s *session) dialect() (dialect.Dialect, error) {
	d, err := dialect.ByName(s.opts.Config.Dialect)
	if err != nil {
		return nil, s.out.Fail(ExitCommandError, ErrCodeConfig, err)
	}
	return d, nil
}

// generator builds a query generator without touching the database.
func (s *session) generator() (*querygen.Generator, error) {
	reg, err := s.registry()
	if err != nil {
		return nil, err
	}
	d, err := s.dialect()
	if err != nil {
		return nil, err
	}
	return querygen.New(reg, d, querygen.WithLogger(s.opts.Logger)), nil
}

// openStore connects to the configured database. With seed, the demo data
// set is inserted into an empty database.
func (s *session) openStore(ctx context.Context, seed bool) (*store.Store, error) {
	reg, err := s.registry()
	if err != nil {
		return nil, err
	}
	d, err := s.dialect()
	if err != nil {
		return nil, err
	}

	cfg := s.opts.Config
	s.opts.Logger.Debug("opening database", "dialect", d.Name(), "dsn", cfg.DSN)
	st, err := store.Open(ctx, d, cfg.DSN, store.WithRegistry(reg), store.WithLogger(s.opts.Logger))
	if err != nil {
		return nil, s.out.Fail(ExitCommandError, ErrCodeDatabase, err)
	}
	if seed {
		if err := st.Seed(ctx); err != nil {
			st.Close()
			return nil, s.out.Fail(ExitCommandError, ErrCodeDatabase, err)
		}
	}
	return st, nil
}

// newRunner wires st into a runner using the configured retry settings.
// Fetch metrics are recorded in reg.
func (s *session) newRunner(st *store.Store, reg prometheus.Registerer, ids runner.IDGenerator) *runner.Runner[*store.Entity] {
	logger := s.opts.Logger
	opts := []runner.Option{
		runner.WithRetrySettings(s.opts.Config.Retry),
		runner.WithLogger(logger),
		runner.WithPagerOptions(pager.WithMetrics(metrics.New(reg))),
	}
	if ids != nil {
		opts = append(opts, runner.WithIDGenerator(ids))
	}
	gen := querygen.New(st.Registry(), st.Dialect(), querygen.WithLogger(logger))
	return runner.New[*store.Entity](gen, st, opts...)
}
