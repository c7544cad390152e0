package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tgcircle/tgcircle/internal/database"
	"github.com/tgcircle/tgcircle/internal/effects"
	"github.com/tgcircle/tgcircle/internal/ffmpeg"
	"github.com/tgcircle/tgcircle/internal/gate"
	internalhttp "github.com/tgcircle/tgcircle/internal/http"
	"github.com/tgcircle/tgcircle/internal/http/handlers"
	"github.com/tgcircle/tgcircle/internal/observability"
	"github.com/tgcircle/tgcircle/internal/repository"
	"github.com/tgcircle/tgcircle/internal/scheduler"
	"github.com/tgcircle/tgcircle/internal/service"
	"github.com/tgcircle/tgcircle/internal/startup"
	"github.com/tgcircle/tgcircle/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tgcircle server",
	Long: `Start the tgcircle HTTP server.

The server provides:
- POST /v1/convert for manual video conversion
- Admin reporting API over the metrics store
- Health, liveness and readiness endpoints
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("database", "", "Metrics database DSN")
	serveCmd.Flags().String("temp-dir", "", "Directory for per-job work files")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Explicit flags win over config and environment.
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("database") {
		cfg.Database.DSN, _ = cmd.Flags().GetString("database")
	}
	if cmd.Flags().Changed("temp-dir") {
		cfg.Storage.TempDir, _ = cmd.Flags().GetString("temp-dir")
	}

	logger := observability.NewLogger(cfg.Logging)
	observability.SetDefault(logger)

	if err := startup.EnsureDirectories(cfg.Storage); err != nil {
		return fmt.Errorf("preparing directories: %w", err)
	}
	if _, err := startup.SweepWorkFiles(cfg.Storage, logger); err != nil {
		logger.Warn("sweeping leftover work files failed", slog.String("error", err.Error()))
	}

	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("opening metrics store: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating metrics store: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	detector := ffmpeg.NewBinaryDetector(cfg.FFmpeg)
	binInfo, err := detector.Detect(ctx)
	if err != nil {
		return fmt.Errorf("locating transcode binaries: %w", err)
	}
	logger.Info("transcode binaries located",
		slog.String("ffmpeg", binInfo.FFmpegPath),
		slog.String("ffprobe", binInfo.FFprobePath),
		slog.String("version", binInfo.Version),
	)

	metrics := service.NewMetricsService(
		repository.NewUserRepository(db.DB),
		repository.NewEventRepository(db.DB),
		logger,
	)

	var backups *service.BackupService
	if cfg.Backup.Enabled {
		backups = service.NewBackupService(db.DB, db.Driver(), cfg.Backup, cfg.Storage.TempDir, logger)
	}

	assets := effects.NewFSAssets(cfg.Storage.FlashClipPath(), cfg.Storage.MemesPath())
	builder := effects.NewBuilder(assets, nil)
	prober := ffmpeg.NewProber(binInfo.FFprobePath)
	supervisor := ffmpeg.NewSupervisor(
		binInfo.FFmpegPath,
		cfg.Limits.TranscodeTimeout,
		cfg.Limits.StderrTailLines,
		logger,
	)
	g := gate.New(cfg.Limits.GroupTTL)

	var backupCreator scheduler.BackupCreator
	if backups != nil {
		backupCreator = backups
	}
	sched := scheduler.NewScheduler(cfg.Retention, cfg.Backup, metrics, backupCreator).
		WithLogger(logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	server := internalhttp.NewServer(cfg.Server, logger, version.Version)

	healthHandler := handlers.NewHealthHandler(version.Version).
		WithDB(db).
		WithBinaryDetector(detector)
	healthHandler.Register(server.API())

	if cfg.Server.AdminToken == "" {
		logger.Warn("server.admin_token is empty, admin API is disabled")
	}
	adminHandler := handlers.NewAdminHandler(metrics, backups, cfg.Server.AdminToken)
	adminHandler.Register(server.API())

	convertHandler := handlers.NewConvertHandler(
		g, metrics, prober, builder, supervisor,
		cfg.Limits, cfg.Storage.TempDir, logger,
	)
	convertHandler.RegisterRoutes(server.Router())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting tgcircle server",
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port),
		slog.String("version", version.Version),
	)

	return server.ListenAndServe(ctx)
}
