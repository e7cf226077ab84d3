package cli

import (
	"github.com/spf13/cobra"
)

// SchemaEntity is the JSON summary of one entity descriptor.
type SchemaEntity struct {
	Name   string        `json:"name"`
	Table  string        `json:"table"`
	Alias  string        `json:"alias"`
	Fields []SchemaField `json:"fields"`
}

// SchemaField is the JSON summary of one field descriptor.
type SchemaField struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Target string `json:"target,omitempty"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the entity descriptor registry",
		Long: `Print the entity descriptors requests are resolved against, with defaults
applied. Without a configured registry file this is the demo model.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(rootOpts, cmd)
		},
	}
}

func runSchema(opts *RootOptions, cmd *cobra.Command) error {
	s, err := newSession(opts, cmd)
	if err != nil {
		return err
	}
	reg, err := s.registry()
	if err != nil {
		return err
	}

	if s.out.Format == "json" {
		var entities []SchemaEntity
		for _, e := range reg.Entities() {
			se := SchemaEntity{Name: e.Name, Table: e.Table, Alias: e.Alias()}
			for _, f := range e.Fields {
				se.Fields = append(se.Fields, SchemaField{Name: f.Name, Kind: f.Kind.String(), Target: f.Target})
			}
			entities = append(entities, se)
		}
		return s.out.Success(entities)
	}

	data, err := reg.Marshal()
	if err != nil {
		return s.out.Fail(ExitCommandError, ErrCodeRegistry, err)
	}
	_, err = s.out.Writer.Write(data)
	return err
}
