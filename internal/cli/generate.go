package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/criteria/internal/dialect"
	"github.com/roach88/criteria/internal/querygen"
	"github.com/roach88/criteria/internal/querysql"
	"github.com/roach88/criteria/internal/querytext"
	"github.com/roach88/criteria/internal/schema"
)

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	*RootOptions
	Inline bool // print the data query with parameters replaced
	SQL    bool // print the dialect SQL of the data and count queries
}

// GenerateResult is the JSON payload of the generate command.
type GenerateResult struct {
	Entity      string         `json:"entity"`
	Page        string         `json:"page"`
	Data        string         `json:"data"`
	Count       string         `json:"count"`
	Fingerprint string         `json:"fingerprint"`
	Params      map[string]any `json:"params,omitempty"`
	ParamOrder  []string       `json:"param_order,omitempty"`
	Bags        []string       `json:"bags,omitempty"`
	JoinFetches []string       `json:"join_fetches,omitempty"`
	Inline      string         `json:"inline,omitempty"`
	SQL         *SQLResult     `json:"sql,omitempty"`
}

// SQLResult is the compiled form of a generated pair for one dialect.
type SQLResult struct {
	Dialect string `json:"dialect"`
	Data    string `json:"data"`
	Count   string `json:"count"`
	Args    []any  `json:"args"`
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate <request.yaml>",
		Short: "Generate the data and count queries of a request",
		Long: `Generate the object-query text of a criteria request without running it.

Prints the data query, the count query, the bind parameters and the
fields left for deferred initialization.

Example:
  criteria generate ./alerts.yaml
  criteria generate --inline --sql ./alerts.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Inline, "inline", false, "also print the data query with parameters inlined (debug only)")
	cmd.Flags().BoolVar(&opts.SQL, "sql", false, "also print the SQL for the configured dialect")

	return cmd
}

func runGenerate(opts *GenerateOptions, path string, cmd *cobra.Command) error {
	s, err := newSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	c, auth, err := s.loadRequest(path)
	if err != nil {
		return err
	}
	gen, err := s.generator()
	if err != nil {
		return err
	}

	g, err := gen.Generate(c, auth)
	if err != nil {
		return s.out.Fail(ExitCommandError, ErrCodeGenerate, err)
	}

	fp, err := g.Fingerprint()
	if err != nil {
		return s.out.Fail(ExitCommandError, ErrCodeGenerate, err)
	}

	result := &GenerateResult{
		Entity:      g.Entity,
		Fingerprint: fp,
		Page:        g.PageControl.String(),
		Data:        g.DataText(),
		Count:       g.CountText(),
		Params:      g.Params.Map(),
		ParamOrder:  g.Params.Names(),
		Bags:        g.Bags,
		JoinFetches: g.JoinFetches,
	}
	if opts.Inline {
		result.Inline = querytext.Inline(g.Data, g.Params)
	}
	if opts.SQL {
		d, err := s.dialect()
		if err != nil {
			return err
		}
		sqlRes, err := compileSQL(gen.Registry(), d, g)
		if err != nil {
			return s.out.Fail(ExitCommandError, ErrCodeGenerate, err)
		}
		result.SQL = sqlRes
	}

	if s.out.Format == "json" {
		return s.out.Success(result)
	}
	writeGenerateText(s.out, result, g)
	return nil
}

// compileSQL renders g the way the store would execute it on d.
func compileSQL(reg *schema.Registry, d dialect.Dialect, g *querygen.Generated) (*SQLResult, error) {
	comp := querysql.NewSQLCompiler(reg, d)

	data, err := comp.Compile(g.Data, g.Params)
	if err != nil {
		return nil, fmt.Errorf("compile data query: %w", err)
	}
	count, err := comp.Compile(g.Count, g.Params)
	if err != nil {
		return nil, fmt.Errorf("compile count query: %w", err)
	}
	return &SQLResult{
		Dialect: d.Name(),
		Data:    comp.Page(data, g.PageControl),
		Count:   count.Text(),
		Args:    data.Args,
	}, nil
}

func writeGenerateText(f *OutputFormatter, r *GenerateResult, g *querygen.Generated) {
	w := f.Writer
	fmt.Fprintf(w, "Entity: %s\n", r.Entity)
	fmt.Fprintf(w, "Page:   %s\n\n", r.Page)

	fmt.Fprintln(w, "Data query:")
	fmt.Fprintf(w, "  %s\n\n", r.Data)
	fmt.Fprintln(w, "Count query:")
	fmt.Fprintf(w, "  %s\n\n", r.Count)

	writeParams(w, g.Params)
	if len(r.JoinFetches) > 0 {
		fmt.Fprintf(w, "Join fetches: %s\n", strings.Join(r.JoinFetches, ", "))
	}
	if len(r.Bags) > 0 {
		fmt.Fprintf(w, "Deferred bags: %s\n", strings.Join(r.Bags, ", "))
	}

	if r.Inline != "" {
		fmt.Fprintln(w, "\nInlined data query (debug only):")
		fmt.Fprintf(w, "  %s\n", r.Inline)
	}
	if r.SQL != nil {
		fmt.Fprintf(w, "\nSQL (%s):\n", r.SQL.Dialect)
		fmt.Fprintf(w, "  %s\n", r.SQL.Data)
		fmt.Fprintf(w, "  %s\n", r.SQL.Count)
		fmt.Fprintf(w, "  args: %v\n", r.SQL.Args)
	}
}
