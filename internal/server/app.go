// Package server initializes and runs the report service: it wires storage,
// sources, the blob store and the optional mail transport into the
// orchestrator, starts the HTTP API and the batch scheduler, and handles
// graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/insightly/internal/logging"
	"github.com/dmitrijs2005/insightly/internal/server/blob"
	"github.com/dmitrijs2005/insightly/internal/server/config"
	"github.com/dmitrijs2005/insightly/internal/server/httpapi"
	"github.com/dmitrijs2005/insightly/internal/server/mail"
	"github.com/dmitrijs2005/insightly/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/insightly/internal/server/scheduler"
	"github.com/dmitrijs2005/insightly/internal/server/services"
	"github.com/dmitrijs2005/insightly/internal/server/sources"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	service   *services.ReportService
	scheduler *scheduler.Scheduler
}

// NewApp wires all dependencies from the given configuration. The mail
// transport is constructed only when configured; otherwise the orchestrator
// carries no sender and every delivery resolves to skipped.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	repoManager := repomanager.NewPostgresRepositoryManager()
	if err := repoManager.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	source := sources.NewPostgresSource(db)

	blobStore, err := blob.NewS3Store(ctx, blob.S3Config{
		User:         cfg.S3User,
		Password:     cfg.S3Password,
		Bucket:       cfg.S3Bucket,
		Region:       cfg.S3Region,
		BaseEndpoint: cfg.S3BaseEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	var sender mail.Sender
	if cfg.MailConfigured() {
		smtpSender, err := mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		if err != nil {
			return nil, fmt.Errorf("smtp init error: %w", err)
		}
		sender = smtpSender
	} else {
		logger.Info(ctx, "no mail transport configured, deliveries will be skipped")
	}

	svc := services.NewReportService(db, repoManager, source, source, source,
		blobStore, sender, logger, services.Options{
			Workers:      cfg.Workers,
			OpTimeout:    cfg.OpTimeout,
			WindowLength: cfg.WindowLength,
		})

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	sched, err := scheduler.New(cfg.CronSpec, loc, svc, logger)
	if err != nil {
		return nil, fmt.Errorf("scheduler init error: %w", err)
	}

	return &App{config: cfg, logger: logger, db: db, service: svc, scheduler: sched}, nil
}

// Service exposes the orchestrator for one-shot entrypoints.
func (app *App) Service() *services.ReportService {
	return app.service
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run starts the HTTP API and the scheduler and blocks until the context is
// cancelled or a signal arrives, then shuts both down gracefully.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app", "addr", app.config.EndpointAddrHTTP, "cron", app.config.CronSpec)

	app.initSignalHandler(cancelFunc)

	handler := httpapi.NewHandler(app.service, app.logger)
	httpServer := &http.Server{
		Addr:    app.config.EndpointAddrHTTP,
		Handler: httpapi.NewRouter(handler),
	}

	app.scheduler.Start()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			cancelFunc()
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		app.logger.Error(ctx, "http server error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	app.scheduler.Stop(shutdownCtx)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "http shutdown error", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(shutdownCtx, "db close error", "error", err)
	}

	wg.Wait()
	app.logger.Info(context.Background(), "app stopped")
	return nil
}
