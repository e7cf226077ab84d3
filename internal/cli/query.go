package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/criteria/internal/pager"
	"github.com/roach88/criteria/internal/runner"
	"github.com/roach88/criteria/internal/store"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Seed    bool
	Metrics bool

	// IDGenerator allows overriding the fetch id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator runner.IDGenerator
}

// QueryResult is the JSON payload of the query command.
type QueryResult struct {
	Entity     string          `json:"entity"`
	Page       string          `json:"page"`
	Total      int64           `json:"total"`
	Attempts   int             `json:"attempts"`
	Consistent bool            `json:"consistent"`
	Rows       []*store.Entity `json:"rows"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <request.yaml>",
		Short: "Fetch one page of a request from the database",
		Long: `Run a criteria request against the configured database and print one page.

The data and count queries are repeated with backoff while they disagree,
as configured by the retry settings. Deferred bags are initialized for every
returned row.

Example:
  criteria query --seed ./alerts.yaml
  CRITERIA_DSN=/tmp/demo.db criteria query --format json ./alerts.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Seed, "seed", false, "insert the demo data set into an empty database first")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print fetch metrics after the page")

	return cmd
}

func runQuery(opts *QueryOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()

	s, err := newSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	c, auth, err := s.loadRequest(path)
	if err != nil {
		return err
	}
	st, err := s.openStore(ctx, opts.Seed)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	ids := &recordingIDs{next: opts.IDGenerator}
	r := s.newRunner(st, reg, ids)

	page, err := r.Run(ctx, c, auth)
	if err != nil && !pager.IsPhantomReadError(err) {
		return s.out.Fail(ExitCommandError, ErrCodeQuery, err)
	}

	result := &QueryResult{
		Entity:     c.Entity,
		Page:       page.PageControl.String(),
		Total:      page.Total,
		Attempts:   page.Attempts,
		Consistent: page.Consistent(),
		Rows:       page.Rows,
	}

	if s.out.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result, FetchID: ids.last}
		if err != nil {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodePhantomRead, Message: err.Error()}
		}
		if encErr := s.out.encode(resp); encErr != nil {
			return encErr
		}
	} else {
		writePage(s.out.Writer, result)
		if err != nil {
			if werr := s.out.Error(ErrCodePhantomRead, err.Error(), nil); werr != nil {
				return errors.Join(WrapExitError(ExitFailure, ErrCodePhantomRead, err),
					fmt.Errorf("write error output: %w", werr))
			}
		}
	}

	if opts.Metrics {
		if mErr := writeMetrics(s.out.GetErrWriter(), reg); mErr != nil {
			return mErr
		}
	}
	if err != nil {
		return WrapExitError(ExitFailure, ErrCodePhantomRead, err)
	}
	return nil
}

// recordingIDs remembers the last fetch id it handed out.
type recordingIDs struct {
	next runner.IDGenerator
	last string
}

func (r *recordingIDs) Generate() string {
	if r.next == nil {
		r.next = runner.UUIDv7Generator{}
	}
	r.last = r.next.Generate()
	return r.last
}

func writePage(w io.Writer, r *QueryResult) {
	fmt.Fprintf(w, "%s: %d of %d, %s, %s\n",
		r.Entity, len(r.Rows), r.Total, r.Page, plural(r.Attempts, "attempt"))
	for _, e := range r.Rows {
		fmt.Fprintf(w, "  %s\n", formatEntity(e))
	}
	if !r.Consistent {
		fmt.Fprintln(w, "  (page is inconsistent with its total)")
	}
}

// writeMetrics prints every gathered sample as name{labels} value.
func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case m.GetCounter() != nil:
				lines = append(lines, fmt.Sprintf("%s %g", name, m.GetCounter().GetValue()))
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				lines = append(lines, fmt.Sprintf("%s count=%d sum=%gs", name, h.GetSampleCount(), h.GetSampleSum()))
			}
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
	return nil
}
