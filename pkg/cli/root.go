// Package cli implements the csvexport command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"duck-export/internal/app"
	"duck-export/internal/config"
	"duck-export/internal/domain"
)

var (
	version = "dev"
	commit  = "none"
)

// Environment keys the persistent flags and profiles feed into.
const (
	envDriver     = "SOURCE_DRIVER"
	envDSN        = "SOURCE_DSN"
	envCatalog    = "ENTITY_CATALOG"
	envPaging     = "EXPORT_PAGING"
	envExportDir  = "EXPORT_DIR"
	envPublishURL = "PUBLISH_URL"
	envLogLevel   = "LOG_LEVEL"
	envOutput     = "CSVEXPORT_OUTPUT"
)

// cliDefaults apply when neither flag, environment nor profile sets a key.
var cliDefaults = map[string]string{
	envLogLevel: "warn",
}

// rootOptions holds the persistent flags and the settings resolved from them.
type rootOptions struct {
	driver   string
	dsn      string
	catalog  string
	paging   string
	logLevel string
	output   string
	profile  string

	flagEnv    map[string]string
	profileEnv map[string]string
}

// getenv resolves key with precedence flag > environment > profile > default.
func (o *rootOptions) getenv(key string) string {
	if v, ok := o.flagEnv[key]; ok {
		return v
	}
	if v := os.Getenv(key); v != "" {
		return v
	}
	if v, ok := o.profileEnv[key]; ok {
		return v
	}
	return cliDefaults[key]
}

// config builds the exporter configuration from the resolved settings.
func (o *rootOptions) config() (*config.Config, error) {
	return config.Load(o.getenv)
}

// openApp wires the exporter for a command. The caller must Close the app.
func (o *rootOptions) openApp(cmd *cobra.Command) (*app.App, *config.Config, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, nil, err
	}
	logger := o.logger(cmd, cfg)
	a, err := app.Open(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return a, cfg, nil
}

func (o *rootOptions) logger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	logger := cfg.NewLogger(cmd.ErrOrStderr())
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}
	return logger
}

// Execute runs the CLI.
func Execute() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			errObj := map[string]any{
				"error": err.Error(),
			}
			if kind := errorKind(err); kind != "" {
				errObj["kind"] = kind
			}
			_ = printJSON(os.Stdout, errObj)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// errorKind names the domain error class of err for machine-readable output.
func errorKind(err error) string {
	var (
		invalidQuery *domain.InvalidQueryError
		validation   *domain.ValidationError
		missingField *domain.MissingFieldError
		dataSource   *domain.DataSourceError
		ioErr        *domain.IOError
	)
	switch {
	case errors.As(err, &invalidQuery):
		return "invalid_query"
	case errors.As(err, &missingField):
		return "missing_field"
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &dataSource):
		return "data_source"
	case errors.As(err, &ioErr):
		return "io"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return ""
	}
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "csvexport",
		Short:         "Export database queries to CSV",
		Long:          "Stream query results from DuckDB, SQLite or Postgres into CSV files, chunk by chunk.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Config file is optional
			cfg, err := LoadUserConfig()
			if err != nil {
				cfg = newUserConfig()
			}
			p, err := cfg.ActiveProfile(o.profile)
			if err != nil {
				return err
			}
			o.profileEnv = p.env()

			o.flagEnv = map[string]string{}
			for flag, key := range map[string]string{
				"driver":    envDriver,
				"dsn":       envDSN,
				"catalog":   envCatalog,
				"paging":    envPaging,
				"log-level": envLogLevel,
			} {
				if cmd.Flags().Changed(flag) {
					v, _ := cmd.Flags().GetString(flag)
					o.flagEnv[key] = v
				}
			}

			// Apply precedence: flag > env > profile > default
			if !cmd.Flags().Changed("output") {
				if v := os.Getenv(envOutput); v != "" {
					o.output = v
				} else if p.Output != "" {
					o.output = p.Output
				}
			}
			return validateOutputFormat(o.output)
		},
	}

	rootCmd.PersistentFlags().StringVar(&o.driver, "driver", "", "Data source driver: duckdb, sqlite3 or pgx (env SOURCE_DRIVER)")
	rootCmd.PersistentFlags().StringVar(&o.dsn, "dsn", "", "Data source DSN or file path (env SOURCE_DSN)")
	rootCmd.PersistentFlags().StringVar(&o.catalog, "catalog", "", "Entity catalog YAML file (env ENTITY_CATALOG)")
	rootCmd.PersistentFlags().StringVar(&o.paging, "paging", "", "Paging strategy: cursor or offset (env EXPORT_PAGING)")
	rootCmd.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error (env LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVarP(&o.output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVarP(&o.profile, "profile", "p", "", "Config profile to use")

	rootCmd.AddCommand(newExportCmd(o))
	rootCmd.AddCommand(newValidateCmd(o))
	rootCmd.AddCommand(newBatchCmd(o))
	rootCmd.AddCommand(newSeedCmd(o))
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
}
