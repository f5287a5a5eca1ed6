package cli

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"duck-export/internal/app"
	"duck-export/internal/db"
	"duck-export/internal/source"
	"duck-export/internal/sqlbuild"
)

func newSeedCmd(o *rootOptions) *cobra.Command {
	var rows int

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create and fill the demo products table",
		Long:  "Creates the products table on the data source if needed and replaces its rows with deterministic demo data.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.config()
			if err != nil {
				return err
			}
			logger := o.logger(cmd, cfg)

			var (
				conn    *sql.DB
				dialect sqlbuild.Dialect
			)
			if cfg.Source.Driver == "sqlite3" {
				conn, err = db.OpenSQLite(cfg.Source.DSN, db.SQLiteWrite, 0)
				dialect = sqlbuild.SQLite
			} else {
				conn, dialect, err = source.Open(cmd.Context(), app.SourceConfig(cfg))
			}
			if err != nil {
				return err
			}
			defer conn.Close() //nolint:errcheck

			n, err := db.Seed(cmd.Context(), conn, dialect, rows)
			if err != nil {
				return err
			}
			logger.Info("seeded products", "rows", n, "driver", cfg.Source.Driver)

			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"status": "ok",
					"table":  "products",
					"rows":   n,
				})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d products\n", n)
			return nil
		},
	}

	cmd.Flags().IntVar(&rows, "rows", 1000, "Number of demo products to insert")

	return cmd
}
