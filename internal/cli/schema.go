package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/coremodel/coremodel/internal/model"
)

func newSchemaCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:         "schema",
		Short:       "Print the field-to-constraint schema contract",
		Annotations: map[string]string{skipConfig: "true"},
		Example: `  datactl schema
  datactl schema --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(model.Schema)
			}
			renderSchema(cmd.OutOrStdout(), model.Schema)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the schema as JSON")
	return cmd
}

func renderSchema(w io.Writer, schema []model.EntitySpec) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Field", "Column", "Type", "Constraints"})

	for i, e := range schema {
		if i > 0 {
			t.AppendSeparator()
		}
		for _, f := range e.Fields {
			t.AppendRow(table.Row{e.Name + "." + f.Field, e.Table + "." + f.Column, string(f.Type), f.Describe()})
		}
	}

	t.Render()
	_, _ = fmt.Fprintf(w, "(%d entities)\n", len(schema))
}
