package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/criteria/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "json" | "text"

	// Config and Logger are resolved on first use by env.
	Config *config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the criteria CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "criteria",
		Short: "Criteria query generator and paged fetcher",
		Long: `Generate parameterized queries from declarative criteria requests and
fetch consistent pages from a database, retrying phantom reads.

Configuration is read from --config and CRITERIA_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			_, err := opts.env(cmd)
			return err
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewGenerateCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewIterateCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))

	return cmd
}

// env loads the configuration and installs the logger once. Commands call
// it themselves so they also work when built without the root command.
func (o *RootOptions) env(cmd *cobra.Command) (*config.Config, error) {
	if o.Config != nil {
		return o.Config, nil
	}
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeConfig+": load config", err)
	}
	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log, o.Verbose)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeConfig+": configure logging", err)
	}
	o.Config = &cfg
	o.Logger = logger
	return o.Config, nil
}

// newLogger builds the slog handler described by lc. Verbose forces debug.
func newLogger(w io.Writer, lc config.LogConfig, verbose bool) (*slog.Logger, error) {
	level, err := lc.SlogLevel()
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	ho := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, ho)), nil
	}
	return slog.New(slog.NewTextHandler(w, ho)), nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
