// Package app provides application-level wiring for the exporter: it turns a
// loaded configuration into a ready export service and HTTP router.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"duck-export/internal/api"
	"duck-export/internal/config"
	"duck-export/internal/metrics"
	"duck-export/internal/middleware"
	"duck-export/internal/publish"
	"duck-export/internal/queryspec"
	"duck-export/internal/service/export"
	"duck-export/internal/source"
	"duck-export/internal/sqlbuild"
)

// Deps holds the external dependencies that main() must provide.
type Deps struct {
	Cfg     *config.Config
	DB      *sql.DB
	Dialect sqlbuild.Dialect
	Logger  *slog.Logger
}

// App holds the fully-wired application.
type App struct {
	Export  *export.Service
	Metrics *metrics.Collector
	Catalog *queryspec.Catalog // nil when no entity catalog is configured

	cfg    *config.Config
	db     *sql.DB
	logger *slog.Logger
}

// SourceConfig extracts the data source settings from cfg.
func SourceConfig(cfg *config.Config) source.Config {
	return source.Config{
		Driver:       cfg.Source.Driver,
		DSN:          cfg.Source.DSN,
		MaxOpenConns: cfg.Source.MaxOpenConns,
		PingTimeout:  cfg.Source.PingTimeout,
	}
}

// PublishConfig extracts the object storage settings from cfg.
func PublishConfig(cfg *config.Config) publish.Config {
	return publish.Config{
		URL:              cfg.Publish.URL,
		Expiry:           cfg.Publish.Expiry,
		S3KeyID:          cfg.Publish.S3KeyID,
		S3Secret:         cfg.Publish.S3Secret,
		S3Endpoint:       cfg.Publish.S3Endpoint,
		S3Region:         cfg.Publish.S3Region,
		GCSKeyFile:       cfg.Publish.GCSKeyFile,
		AzureAccountName: cfg.Publish.AzureAccountName,
		AzureAccountKey:  cfg.Publish.AzureAccountKey,
	}
}

// Open connects to the configured data source and wires the application on
// top of it. The returned App owns the connection; call Close when done.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, dialect, err := source.Open(ctx, SourceConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	a, err := New(ctx, Deps{Cfg: cfg, DB: conn, Dialect: dialect, Logger: logger})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return a, nil
}

// New wires the resolver, chunk reader, metrics and optional publisher into an
// export service.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var catalog *queryspec.Catalog
	if cfg.Export.CatalogPath != "" {
		c, err := queryspec.LoadCatalog(cfg.Export.CatalogPath)
		if err != nil {
			return nil, fmt.Errorf("load entity catalog: %w", err)
		}
		catalog = c
	}

	mode, err := source.ParseMode(cfg.Export.Paging)
	if err != nil {
		return nil, err
	}

	svc := export.NewService(
		queryspec.NewResolver(deps.Dialect, catalog),
		source.NewReader(deps.DB, mode),
		export.Config{Dir: cfg.Export.Dir, PageSize: cfg.Export.PageSize},
		logger.With("component", "export"),
	)
	collector := metrics.NewCollector()
	svc.SetMetrics(collector)

	if cfg.Publish.Enabled() {
		pub, err := publish.New(ctx, PublishConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("configure publishing: %w", err)
		}
		svc.SetPublisher(pub)
	}

	logger.Info("exporter ready",
		"driver", cfg.Source.Driver,
		"dialect", string(deps.Dialect),
		"paging", string(mode),
		"page_size", cfg.Export.PageSize,
		"catalog", cfg.Export.CatalogPath != "",
		"publish", cfg.Publish.Enabled(),
	)

	return &App{
		Export:  svc,
		Metrics: collector,
		Catalog: catalog,
		cfg:     cfg,
		db:      deps.DB,
		logger:  logger,
	}, nil
}

// Router builds the HTTP API for the app. ctx bounds background middleware
// work and should live as long as the server.
func (a *App) Router(ctx context.Context) http.Handler {
	h := api.NewHandler(a.Export, a.db, a.logger.With("component", "api"))
	return api.NewRouter(ctx, h, api.RouterConfig{
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: a.cfg.RateLimitRPS,
			Burst:             a.cfg.RateLimitBurst,
		},
		MaxConcurrentExports: a.cfg.MaxConcurrentExports,
		CORSAllowedOrigins:   a.cfg.CORSAllowedOrigins,
		Metrics:              a.Metrics.Handler(),
		Logger:               a.logger,
	})
}

// DB returns the data source connection.
func (a *App) DB() *sql.DB { return a.db }

// Close releases the data source connection.
func (a *App) Close() error {
	return a.db.Close()
}
