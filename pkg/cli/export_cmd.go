package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"duck-export/internal/domain"
	"duck-export/internal/service/export"
)

// parseColumns turns ordered key=Label pairs into a header. A pair without a
// label uses the key as its label.
func parseColumns(pairs []string) (domain.Header, error) {
	h := make(domain.Header, 0, len(pairs))
	for _, p := range pairs {
		key, label, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok {
			label = key
		}
		h = append(h, domain.Column{Key: key, Label: label})
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

func artifactFields(a *domain.Artifact) map[string]string {
	return map[string]string{
		"id":       a.ID,
		"path":     a.Path,
		"rows":     strconv.FormatInt(a.Rows, 10),
		"chunks":   strconv.Itoa(a.Chunks),
		"bytes":    strconv.FormatInt(a.Bytes, 10),
		"duration": a.Duration.String(),
		"url":      a.URL,
	}
}

var artifactKeys = []string{"id", "path", "rows", "chunks", "bytes", "duration", "url"}

func newExportCmd(o *rootOptions) *cobra.Command {
	var (
		query    string
		columns  []string
		keys     []string
		labels   []string
		pageSize int
		dir      string
		publish  bool
		progress bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a query to a CSV file",
		Long: `Runs a query and streams its rows into a new CSV file, one chunk at a time.

The header is given either as ordered --column key=Label pairs or as parallel
--keys and --labels lists of equal length.`,
		Example: `  csvexport export --dsn shop.duckdb \
    --query 'products.objects.filter(price__gte=10).order_by("name").values("name", "price")' \
    --column name=Name --column price=Price`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				h   domain.Header
				err error
			)
			switch {
			case len(columns) > 0 && (len(keys) > 0 || len(labels) > 0):
				return fmt.Errorf("use either --column or --keys/--labels, not both")
			case len(columns) > 0:
				h, err = parseColumns(columns)
			default:
				h, err = domain.NewHeader(keys, labels)
			}
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("dir") {
				o.flagEnv[envExportDir] = dir
			}
			a, _, err := o.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			opts := export.Options{PageSize: pageSize, Publish: publish}
			if progress {
				opts.OnChunk = func(c domain.ChunkInfo) {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "chunk %d: %d rows at offset %d\n", c.Index, c.Size, c.Offset)
				}
			}

			artifact, err := a.Export.Export(cmd.Context(), query, h, opts)
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), artifact)
			}
			printDetail(cmd.OutOrStdout(), artifactKeys, artifactFields(artifact))
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "Query: serialized JSON or expression (required)")
	cmd.Flags().StringArrayVarP(&columns, "column", "c", nil, "Header column as key=Label; repeat in output order")
	cmd.Flags().StringSliceVar(&keys, "keys", nil, "Header keys, parallel to --labels")
	cmd.Flags().StringSliceVar(&labels, "labels", nil, "Header labels, parallel to --keys")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Rows per chunk (default from EXPORT_PAGE_SIZE)")
	cmd.Flags().StringVar(&dir, "dir", "", "Output directory (default from EXPORT_DIR, else the temp dir)")
	cmd.Flags().BoolVar(&publish, "publish", false, "Upload the file to PUBLISH_URL and print a download URL")
	cmd.Flags().BoolVar(&progress, "progress", false, "Report each written chunk on stderr")
	_ = cmd.MarkFlagRequired("query")

	return cmd
}
