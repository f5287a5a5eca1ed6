// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"
)

// SourceConfig selects the relational data source exports read from.
type SourceConfig struct {
	Driver       string        // duckdb (default), sqlite3 or pgx
	DSN          string        // empty DuckDB DSN means in-memory
	MaxOpenConns int           // pool size; 0 keeps the driver default
	PingTimeout  time.Duration // startup ping timeout (default 5s)
}

// ExportConfig holds export pipeline defaults.
type ExportConfig struct {
	Dir         string // output directory (default: platform temp dir)
	PageSize    int    // rows per chunk (default 1000)
	Paging      string // cursor (default) or offset
	CatalogPath string // optional YAML entity catalog
}

// PublishConfig holds the optional object storage upload target.
type PublishConfig struct {
	URL    string        // s3://bucket/prefix, gs://bucket/prefix or az://container/prefix
	Expiry time.Duration // presigned URL lifetime (default 1h)

	S3KeyID    string
	S3Secret   string
	S3Endpoint string
	S3Region   string

	GCSKeyFile string

	AzureAccountName string
	AzureAccountKey  string
}

// Enabled reports whether a publish target is configured.
func (p *PublishConfig) Enabled() bool { return p.URL != "" }

// Config holds the configuration for the exporter and its HTTP API.
type Config struct {
	Source  SourceConfig
	Export  ExportConfig
	Publish PublishConfig

	ListenAddr string // HTTP listen address (default ":8080")
	LogLevel   string // log level: debug, info, warn, error (default "info")
	LogFormat  string // json, text or auto (default auto: text on a terminal)
	Env        string // environment: "development" (default) or "production"

	// Rate limiting
	RateLimitRPS   float64 // sustained requests per second (default 10)
	RateLimitBurst int     // burst capacity (default 20)

	// MaxConcurrentExports bounds exports streaming at once over HTTP (default 4).
	MaxConcurrentExports int

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// NewLogger builds the process logger writing to w. JSON is used unless
// LogFormat is "text", or "auto" and w is a terminal.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	text := strings.EqualFold(c.LogFormat, "text")
	if c.LogFormat == "" || strings.EqualFold(c.LogFormat, "auto") {
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			text = true
		}
	}
	if text {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// LoadFromEnv loads configuration from environment variables.
// Publishing variables are optional; the exporter runs without them.
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv)
}

// Load builds the configuration from getenv, which is consulted with the
// same keys as the process environment.
func Load(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Source: SourceConfig{
			Driver: getenv("SOURCE_DRIVER"),
			DSN:    getenv("SOURCE_DSN"),
		},
		Export: ExportConfig{
			Dir:         getenv("EXPORT_DIR"),
			Paging:      strings.ToLower(getenv("EXPORT_PAGING")),
			CatalogPath: getenv("ENTITY_CATALOG"),
		},
		Publish: PublishConfig{
			URL:              getenv("PUBLISH_URL"),
			S3KeyID:          getenv("S3_KEY_ID"),
			S3Secret:         getenv("S3_SECRET"),
			S3Endpoint:       getenv("S3_ENDPOINT"),
			S3Region:         getenv("S3_REGION"),
			GCSKeyFile:       getenv("GCS_KEY_FILE"),
			AzureAccountName: getenv("AZURE_ACCOUNT_NAME"),
			AzureAccountKey:  getenv("AZURE_ACCOUNT_KEY"),
		},
		ListenAddr: getenv("LISTEN_ADDR"),
		LogLevel:   getenv("LOG_LEVEL"),
		LogFormat:  strings.ToLower(getenv("LOG_FORMAT")),
		Env:        getenv("ENV"),
	}

	var err error
	if cfg.Source.MaxOpenConns, err = intEnv(getenv, "SOURCE_MAX_OPEN_CONNS", 0); err != nil {
		return nil, err
	}
	if cfg.Source.PingTimeout, err = durationEnv(getenv, "SOURCE_PING_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.Export.PageSize, err = intEnv(getenv, "EXPORT_PAGE_SIZE", 1000); err != nil {
		return nil, err
	}
	if cfg.Publish.Expiry, err = durationEnv(getenv, "PUBLISH_URL_EXPIRY", time.Hour); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrentExports, err = intEnv(getenv, "MAX_CONCURRENT_EXPORTS", 4); err != nil {
		return nil, err
	}

	// Rate limiting
	if v := getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}

	// CORS
	if v := getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = compactNonEmpty(origins)
	}

	// Defaults
	if cfg.Source.Driver == "" {
		cfg.Source.Driver = "duckdb"
	}
	if cfg.Export.Paging == "" {
		cfg.Export.Paging = "cursor"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "auto"
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 10
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 20
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Source.Driver == "duckdb" && cfg.Source.DSN == "" {
		cfg.Warnings = append(cfg.Warnings, "SOURCE_DSN not set: exporting from an empty in-memory DuckDB database")
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.Source.Driver {
	case "duckdb", "sqlite3", "pgx":
	default:
		return fmt.Errorf("SOURCE_DRIVER %q is not supported: use duckdb, sqlite3 or pgx", c.Source.Driver)
	}
	if c.Source.Driver != "duckdb" && c.Source.DSN == "" {
		return fmt.Errorf("SOURCE_DSN is required for driver %s", c.Source.Driver)
	}
	if c.Export.PageSize <= 0 {
		return fmt.Errorf("EXPORT_PAGE_SIZE must be positive, got %d", c.Export.PageSize)
	}
	if c.Export.Paging != "cursor" && c.Export.Paging != "offset" {
		return fmt.Errorf("EXPORT_PAGING %q is not supported: use cursor or offset", c.Export.Paging)
	}
	switch c.LogFormat {
	case "", "auto", "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT %q is not supported: use json, text or auto", c.LogFormat)
	}
	if c.MaxConcurrentExports < 0 {
		return fmt.Errorf("MAX_CONCURRENT_EXPORTS must not be negative")
	}
	if c.Publish.Enabled() && !hasScheme(c.Publish.URL, "s3://", "gs://", "az://") {
		return fmt.Errorf("PUBLISH_URL %q must start with s3://, gs:// or az://", c.Publish.URL)
	}
	return nil
}

func hasScheme(u string, schemes ...string) bool {
	for _, s := range schemes {
		if strings.HasPrefix(u, s) {
			return true
		}
	}
	return false
}

func intEnv(getenv func(string) string, key string, defaultVal int) (int, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}

func durationEnv(getenv func(string) string, key string, defaultVal time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// ParseBool parses a boolean flag value, falling back to defaultVal for
// anything unrecognised.
func ParseBool(v string, defaultVal bool) bool {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
