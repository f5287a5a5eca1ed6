package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newValidateCmd(o *rootOptions) *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Resolve a query and show the SQL it compiles to",
		Long:  "Parses and validates a query without running it. The data source is only used for its dialect.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, err := o.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			rq, err := a.Export.GetQuery(query)
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				args := rq.Args
				if args == nil {
					args = []any{}
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"entity":  rq.Query.Entity,
					"table":   rq.Table,
					"columns": rq.Columns,
					"shape":   rq.Shape,
					"dialect": rq.Dialect,
					"sql":     rq.SQL,
					"args":    args,
				})
			}

			columns := "*"
			if len(rq.Columns) > 0 {
				columns = strings.Join(rq.Columns, ", ")
			}
			printDetail(cmd.OutOrStdout(),
				[]string{"entity", "table", "columns", "shape", "dialect", "sql", "args"},
				map[string]string{
					"entity":  rq.Query.Entity,
					"table":   rq.Table,
					"columns": columns,
					"shape":   string(rq.Shape),
					"dialect": rq.Dialect,
					"sql":     rq.SQL,
					"args":    fmt.Sprint(rq.Args),
				})
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "Query: serialized JSON or expression (required)")
	_ = cmd.MarkFlagRequired("query")

	return cmd
}
