package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"duck-export/internal/service/export"
)

type batchJobOutput struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Path       string `json:"path,omitempty"`
	Rows       int64  `json:"rows"`
	Chunks     int    `json:"chunks"`
	URL        string `json:"url,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

func newBatchCmd(o *rootOptions) *cobra.Command {
	var (
		manifestPath string
		concurrency  int
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run every export listed in a YAML manifest",
		Long:  "Runs the manifest's exports concurrently. A failing job does not stop the others; the command fails if any job failed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := export.LoadManifest(manifestPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("concurrency") {
				m.Concurrency = concurrency
			}

			a, _, err := o.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			results := a.Export.RunBatch(cmd.Context(), m)

			out := make([]batchJobOutput, len(results))
			failed := 0
			for i, r := range results {
				jo := batchJobOutput{Name: r.Name, Status: "ok", DurationMs: r.Duration.Milliseconds()}
				if r.Err != nil {
					failed++
					jo.Status = "failed"
					jo.Error = r.Err.Error()
				} else {
					jo.Path = r.Artifact.Path
					jo.Rows = r.Artifact.Rows
					jo.Chunks = r.Artifact.Chunks
					jo.URL = r.Artifact.URL
				}
				out[i] = jo
			}

			if getOutputFormat(cmd) == "json" {
				if err := printJSON(cmd.OutOrStdout(), out); err != nil {
					return err
				}
			} else {
				rows := make([][]string, len(out))
				for i, jo := range out {
					detail := jo.Path
					if jo.Error != "" {
						detail = jo.Error
					}
					rows[i] = []string{jo.Name, jo.Status, strconv.FormatInt(jo.Rows, 10), strconv.Itoa(jo.Chunks), detail}
				}
				printTable(cmd.OutOrStdout(), []string{"job", "status", "rows", "chunks", "output"}, rows)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d jobs failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "Path to the batch manifest YAML (required)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Override the manifest's concurrency")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}
