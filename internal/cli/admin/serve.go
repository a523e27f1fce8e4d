package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/fhirchat/internal/api/handlers"
	"github.com/cloo-solutions/fhirchat/internal/config"
	"github.com/cloo-solutions/fhirchat/internal/database"
	"github.com/cloo-solutions/fhirchat/internal/jobs"
	"github.com/cloo-solutions/fhirchat/internal/server"
	"github.com/cloo-solutions/fhirchat/internal/telemetry"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat API server",
		Long:  "Start the fhirchat HTTP API: chat, feedback, health and admin endpoints",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides FHIRCHAT_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().String("migrations", database.DefaultMigrationsDir, "Directory holding migration files")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	log := newLogger(cfg)

	shutdownTelemetry, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		Release:          cfg.SentryRelease,
		TracesSampleRate: telemetry.SampleRateFor(cfg.Environment),
		Debug:            cfg.Debug,
	}, log.Sub("telemetry"))
	if err != nil {
		return err
	}
	defer shutdownTelemetry()

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	migrationsDir, _ := cmd.Flags().GetString("migrations")

	a, err := newApp(ctx, cfg, log, appOptions{migrate: !noMigrate, migrationsDir: migrationsDir})
	if err != nil {
		return err
	}
	defer a.close()

	if cfg.KnowledgeDir != "" {
		result, err := a.ingest.IngestDir(ctx, cfg.KnowledgeDir)
		if err != nil {
			return fmt.Errorf("failed to load knowledge from %s: %w", cfg.KnowledgeDir, err)
		}
		log.Info().
			Int("documents", result.Documents).
			Int("snippets", result.Snippets).
			Str("dir", cfg.KnowledgeDir).
			Msg("knowledge loaded")
	}

	if cfg.ScopeTermsFile != "" {
		go func() {
			if err := config.WatchScopeTerms(ctx, cfg.ScopeTermsFile, a.classifier.Update, log.Sub("scope_terms")); err != nil {
				log.Error().Err(err).Msg("scope term watcher stopped")
			}
		}()
	}

	exporter, err := a.newLogExporter(ctx)
	if err != nil {
		return err
	}
	var exportWorker *jobs.Worker
	if exporter != nil {
		exportWorker = jobs.NewWorker(exporter, cfg.ExportInterval, log.Sub("export_worker"))
		// stopped explicitly after the server drains, so late turns are archived
		go exportWorker.Start(context.WithoutCancel(ctx))
		log.Info().Dur("interval", cfg.ExportInterval).Msg("chat log export worker started")
	}

	var adminHandler *handlers.AdminHandler
	if cfg.HasAdmin() {
		adminHandler = handlers.NewAdminHandler(a.ingest, a.snippets, a.interactions)
	} else {
		log.Warn().Msg("ADMIN_TOKEN not set, admin endpoints disabled")
	}

	router := server.NewRouter(server.RouterConfig{
		ChatHandler:    handlers.NewChatHandler(a.chat),
		AdminHandler:   adminHandler,
		AdminToken:     cfg.AdminToken,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdownErr := srv.Shutdown(shutdownCtx)
	if exportWorker != nil {
		exportWorker.Stop()
	}
	if shutdownErr != nil {
		return fmt.Errorf("server forced to shutdown: %w", shutdownErr)
	}

	log.Info().Msg("server exited")
	return nil
}
