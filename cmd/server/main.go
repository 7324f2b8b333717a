// Package main provides the entry point for the request service HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/culsys/valet-service/internal/availability"
	"github.com/culsys/valet-service/internal/backends/caiasoft"
	"github.com/culsys/valet-service/internal/backends/clio"
	"github.com/culsys/valet-service/internal/backends/folio"
	"github.com/culsys/valet-service/internal/backends/scsb"
	"github.com/culsys/valet-service/internal/backends/voyager"
	"github.com/culsys/valet-service/internal/bib"
	"github.com/culsys/valet-service/internal/config"
	"github.com/culsys/valet-service/internal/database"
	"github.com/culsys/valet-service/internal/mailer"
	"github.com/culsys/valet-service/internal/observability"
	"github.com/culsys/valet-service/internal/repository"
	httpserver "github.com/culsys/valet-service/internal/server/http"
	"github.com/culsys/valet-service/internal/services"
	"github.com/culsys/valet-service/internal/workflow"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("valet-service starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	// Run migrations if configured.
	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	// Backend clients.
	bibs := clio.New(clio.Config{
		BaseURL: cfg.Catalog.SolrURL,
		Timeout: cfg.Catalog.Timeout,
	})
	folioClient := folio.New(folio.Config{
		BaseURL:  cfg.Folio.BaseURL,
		Tenant:   cfg.Folio.Tenant,
		Username: cfg.Folio.Username,
		Password: cfg.Folio.Password,
		Timeout:  cfg.Folio.Timeout,
	})
	scsbClient := scsb.New(scsb.Config{
		BaseURL: cfg.SCSB.BaseURL,
		APIKey:  cfg.SCSB.APIKey,
		Timeout: cfg.SCSB.Timeout,
	}, logger)
	caiasoftClient := caiasoft.New(caiasoft.Config{
		BaseURL: cfg.Caiasoft.BaseURL,
		APIKey:  cfg.Caiasoft.APIKey,
		Timeout: cfg.Caiasoft.Timeout,
	})

	resolver := availability.NewResolver(folioClient, scsbClient, caiasoftClient, logger)

	// Patron barcodes come from FOLIO unless an ils override routes
	// them through the legacy mirror.
	var barcodes httpserver.BarcodeSource = folioClient

	// The legacy mirror is optional; without it inactive barcode notes
	// degrade to "n/a".
	var inactiveBarcodes services.InactiveBarcodeSource
	if cfg.Voyager.Enabled {
		mirror, err := voyager.Open(cfg.Voyager.DSN)
		if err != nil {
			return fmt.Errorf("open voyager mirror: %w", err)
		}
		defer mirror.Close()
		inactiveBarcodes = mirror
		if cfg.ILS == config.ILSVoyager {
			barcodes = voyagerBarcodes{store: mirror}
		}
		logger.Info().Str("ils", cfg.ILS).Msg("voyager mirror connected")
	}

	smtp := mailer.NewSMTP(mailer.Config{
		Addr:     cfg.Mail.Addr,
		From:     cfg.Mail.From,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
	}, logger)

	// Service catalog.
	endpoints := services.Endpoints{
		IlliadBaseURL:    cfg.Endpoints.IlliadBaseURL,
		IlliadZCHBaseURL: cfg.Endpoints.IlliadZCHBaseURL,
		IlliadLoginURL:   cfg.Endpoints.IlliadLoginURL,
		EzproxyLoginURL:  cfg.Endpoints.EzproxyLoginURL,
		ReshareBaseURL:   cfg.Endpoints.ReshareBaseURL,
		AeonLoginURL:     cfg.Endpoints.AeonLoginURL,
		CatalogBaseURL:   cfg.Endpoints.CatalogBaseURL,
		MyAccountURL:     cfg.Endpoints.MyAccountURL,
	}

	catalog := services.NewCatalog(buildDefinitions(cfg.Services), services.Deps{
		Endpoints:        endpoints,
		Mailer:           smtp,
		Folio:            folioClient,
		Resolver:         resolver,
		InactiveBarcodes: inactiveBarcodes,
	})
	logger.Info().Strs("services", catalog.Keys()).Msg("service catalog loaded")

	// Request flow engine.
	metrics := observability.NewMetrics("valet")
	engine := workflow.NewEngine(workflow.Config{
		Catalog:   catalog,
		Bibs:      bibs,
		Locations: bib.NewLocations(cfg.Locations.ClancyCodes),
		Resolver:  resolver,
		Logs:      repository.NewPgRequestLogRepository(db),
		CUMC: workflow.CUMCBlock{
			Affil: cfg.CUMCBlock.Affil,
			URL:   cfg.CUMCBlock.URL,
		},
		Logger:  logger,
		Metrics: metrics,
	})

	// HTTP server.
	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MetricsEnabled:  cfg.Metrics.Enabled,
	}
	httpSrv := httpserver.NewServer(
		httpCfg,
		engine,
		db,
		logger,
		httpserver.RemoteUserMiddleware(barcodes, logger),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	logger.Info().Str("http_address", httpCfg.Address).Msg("valet-service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down valet-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logger.Info().Msg("valet-service stopped")
	return nil
}

// voyagerBarcodes adapts the legacy mirror to the barcode lookup the
// session middleware wants.
type voyagerBarcodes struct {
	store *voyager.Store
}

func (v voyagerBarcodes) GetUserBarcode(ctx context.Context, username string) (string, error) {
	return v.store.PatronBarcode(ctx, username)
}

// buildDefinitions projects the configured services into catalog
// definitions.
func buildDefinitions(configs []config.ServiceConfig) []*services.Definition {
	definitions := make([]*services.Definition, 0, len(configs))
	for _, sc := range configs {
		definitions = append(definitions, &services.Definition{
			Key:             sc.Key,
			Label:           sc.Label,
			Type:            services.Type(sc.Type),
			Authenticate:    sc.Authenticate,
			PermittedAffils: sc.PermittedAffils,
			StaffEmail:      sc.StaffEmail,
			BarnardEmail:    sc.BarnardEmail,
			LocationCode:    sc.LocationCode,
			Locations:       sc.Locations,
			LocationSites:   sc.LocationSites,
			VendorEndpoint:  sc.VendorEndpoint,
		})
	}
	return definitions
}
