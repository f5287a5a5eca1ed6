package cli

import (
	"fmt"
	"net/url"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration profiles",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigSetProfileCmd())
	cmd.AddCommand(newConfigUseProfileCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var reveal, yamlOut bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadUserConfig()
			if err != nil {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "No configuration found at %s\n", ConfigPath())
				return err
			}
			if !reveal {
				cfg = maskConfig(cfg)
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), cfg)
			}
			if yamlOut {
				data, err := yaml.Marshal(cfg)
				if err != nil {
					return fmt.Errorf("marshal config: %w", err)
				}
				_, _ = fmt.Fprint(cmd.OutOrStdout(), string(data))
				return nil
			}
			printTable(cmd.OutOrStdout(), []string{"profile", "active", "driver", "dsn", "catalog", "output"}, profileRows(cfg))
			return nil
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "Show DSN passwords unmasked")
	cmd.Flags().BoolVar(&yamlOut, "yaml", false, "Print the raw config file layout")

	return cmd
}

// profileRows lists profiles sorted by name, marking the current one.
func profileRows(cfg *UserConfig) [][]string {
	names := make([]string, 0, len(cfg.Profiles))
	for name := range cfg.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		p := cfg.Profiles[name]
		active := ""
		if name == cfg.CurrentProfile {
			active = "*"
		}
		rows = append(rows, []string{name, active, p.Driver, p.DSN, p.Catalog, p.Output})
	}
	return rows
}

// maskConfig returns a copy of the config with DSN passwords masked.
func maskConfig(cfg *UserConfig) *UserConfig {
	masked := &UserConfig{
		CurrentProfile: cfg.CurrentProfile,
		Profiles:       make(map[string]Profile, len(cfg.Profiles)),
	}
	for name, p := range cfg.Profiles {
		p.DSN = maskDSN(p.DSN)
		masked.Profiles[name] = p
	}
	return masked
}

// maskDSN hides the password of a URL-style DSN. File paths and DSNs without
// a password are returned unchanged.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); !ok {
		return dsn
	}
	return u.Redacted()
}

func newConfigSetProfileCmd() *cobra.Command {
	var (
		name string
		p    Profile
	)

	cmd := &cobra.Command{
		Use:   "set-profile",
		Short: "Create or update a configuration profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			if cmd.Flags().Changed("output") {
				if err := validateOutputFormat(p.Output); err != nil {
					return err
				}
			}

			cfg, err := LoadUserConfig()
			if err != nil {
				cfg = newUserConfig()
			}

			existing := cfg.Profiles[name]
			fields := map[string]*string{
				"driver":      &existing.Driver,
				"dsn":         &existing.DSN,
				"catalog":     &existing.Catalog,
				"paging":      &existing.Paging,
				"export-dir":  &existing.ExportDir,
				"publish-url": &existing.PublishURL,
				"log-level":   &existing.LogLevel,
				"output":      &existing.Output,
			}
			// Only flags given on the command line overwrite stored values.
			cmd.Flags().Visit(func(f *pflag.Flag) {
				if field, ok := fields[f.Name]; ok {
					*field = f.Value.String()
				}
			})
			cfg.Profiles[name] = existing

			if err := SaveUserConfig(cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Profile %q saved to %s\n", name, ConfigPath())
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Profile name (required)")
	cmd.Flags().StringVar(&p.Driver, "driver", "", "Data source driver")
	cmd.Flags().StringVar(&p.DSN, "dsn", "", "Data source DSN or file path")
	cmd.Flags().StringVar(&p.Catalog, "catalog", "", "Entity catalog YAML file")
	cmd.Flags().StringVar(&p.Paging, "paging", "", "Paging strategy")
	cmd.Flags().StringVar(&p.ExportDir, "export-dir", "", "Output directory")
	cmd.Flags().StringVar(&p.PublishURL, "publish-url", "", "Publish destination URL")
	cmd.Flags().StringVar(&p.LogLevel, "log-level", "", "Log level")
	cmd.Flags().StringVar(&p.Output, "output", "", "Default output format")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newConfigUseProfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use-profile <name>",
		Short: "Set the active configuration profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadUserConfig()
			if err != nil {
				return fmt.Errorf("no config found: %w", err)
			}
			name := args[0]
			if _, ok := cfg.Profiles[name]; !ok {
				return fmt.Errorf("profile %q not found", name)
			}
			cfg.CurrentProfile = name
			if err := SaveUserConfig(cfg); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"status":         "ok",
					"active_profile": name,
				})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Active profile set to %q\n", name)
			return nil
		},
	}
}
