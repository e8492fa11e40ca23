package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/autobrr/litebase/internal/access"
	"github.com/autobrr/litebase/internal/api"
	"github.com/autobrr/litebase/internal/auth"
	"github.com/autobrr/litebase/internal/config"
	"github.com/autobrr/litebase/internal/engine"
	"github.com/autobrr/litebase/internal/filestore"
	"github.com/autobrr/litebase/internal/metrics"
	"github.com/autobrr/litebase/internal/migrate"
	"github.com/autobrr/litebase/internal/realtime"
	"github.com/autobrr/litebase/internal/recordapi"
	"github.com/autobrr/litebase/internal/schema"
	"github.com/autobrr/litebase/internal/scheduler"
)

// ServeCommand starts the long-running litebase process: migrate, load
// config/schema, wire every internal component, and serve HTTP until
// interrupted. Grounded on the teacher's cmd/qui entrypoint behavior as
// inferred from internal/config, internal/metrics and internal/api's own
// wiring expectations — no teacher main.go/serve.go was retrieved into the
// example pack (see DESIGN.md).
func ServeCommand(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the litebase server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configDir)
		},
	}
}

func runServe(ctx context.Context, configDir string) error {
	path := configPath(configDir)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.WriteDefaultConfig(path); err != nil {
			return fmt.Errorf("serve: write default config: %w", err)
		}
		log.Info().Str("path", path).Msg("serve: wrote default config")
	}

	cfgManager, err := config.NewManager(path)
	if err != nil {
		return fmt.Errorf("serve: load config: %w", err)
	}
	defer cfgManager.Close()
	cfg := cfgManager.Get()

	configureLogging(cfg)

	eng, err := engine.Open(cfg.GetDatabasePath(), engine.Options{ReadThreads: 4})
	if err != nil {
		return fmt.Errorf("serve: open database: %w", err)
	}
	defer eng.Close()

	if err := migrate.Apply(ctx, eng); err != nil {
		return fmt.Errorf("serve: apply migrations: %w", err)
	}

	sc := schema.New(eng)
	if err := sc.Reload(ctx); err != nil {
		return fmt.Errorf("serve: load schema: %w", err)
	}

	store, err := filestore.NewDiskStore(cfg.GetDataDir())
	if err != nil {
		return fmt.Errorf("serve: open file store: %w", err)
	}

	ev := access.New(eng)
	recordService := &recordapi.Service{Eng: eng, Schema: sc, Access: ev, Files: store}
	registry := recordapi.NewRegistry(recordService)
	if err := registry.Load(ctx, eng); err != nil {
		return fmt.Errorf("serve: load record apis: %w", err)
	}

	hub := realtime.New(eng, sc, ev)
	for _, cfg := range registry.All() {
		hub.SetTableConfig(cfg.Table, realtime.TableConfig{Audience: cfg.Audience, ReadRule: cfg.Rules.Read})
	}
	if err := hub.Start(); err != nil {
		return fmt.Errorf("serve: start realtime hub: %w", err)
	}
	defer hub.Stop()

	authService := auth.NewService(eng)
	sessionManager := auth.NewSessionManager(eng)

	sched := scheduler.New()
	if err := registerJobs(sched, eng, store, cfg); err != nil {
		return fmt.Errorf("serve: register scheduled jobs: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	metricsManager := metrics.NewManager(eng, hub, sched)
	var metricsServer *metrics.Server
	if cfg.MetricsPort != 0 {
		metricsServer = metrics.NewMetricsServer(metricsManager, cfg.Host, cfg.MetricsPort, cfg.MetricsBasicAuthUsers)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil {
				log.Error().Err(err).Msg("serve: metrics server stopped")
			}
		}()
	}

	server := api.NewServer(&api.Dependencies{
		Config:         cfg,
		Engine:         eng,
		AuthService:    authService,
		SessionManager: sessionManager,
		RecordAPI:      recordService,
		RecordAPIs:     registry,
		Schema:         sc,
		Realtime:       hub,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("serve: listening")
		if err := server.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: http server: %w", err)
	case <-sigCh:
		log.Info().Msg("serve: shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("serve: http shutdown")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("serve: metrics shutdown")
		}
	}
	return nil
}

func registerJobs(sched *scheduler.Registry, eng *engine.Engine, store filestore.Store, cfg *config.AppConfig) error {
	if err := sched.Register(scheduler.HeartbeatSchedule, scheduler.NewHeartbeat(), true); err != nil {
		return err
	}
	if err := sched.Register(scheduler.FileDeletionsSchedule, scheduler.NewFileDeletions(eng, store), true); err != nil {
		return err
	}
	if err := sched.Register(scheduler.AuthCleanerSchedule, scheduler.NewAuthCleaner(eng), true); err != nil {
		return err
	}
	if err := sched.Register(scheduler.QueryOptimizerSchedule, scheduler.NewQueryOptimizer(eng), true); err != nil {
		return err
	}
	if err := sched.Register(scheduler.LogCleanerSchedule, scheduler.NewLogCleaner(eng, 30*24*time.Hour), true); err != nil {
		return err
	}
	// Backup is disabled by default (spec.md §4.6): a destination path is
	// deployment-specific, so the job is always registered but only enabled
	// once the operator sets one.
	enabled := cfg.BackupPath != ""
	backupPath := cfg.BackupPath
	if backupPath == "" {
		backupPath = cfg.GetDataDir() + "/backup.db"
	}
	return sched.Register(scheduler.BackupSchedule, scheduler.NewBackup(eng, backupPath), enabled)
}

// configureLogging sets zerolog's global level and output, matching the
// teacher's lumberjack-backed rotating file log when LogPath is set.
func configureLogging(cfg *config.AppConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogPath != "" {
		log.Logger = log.Output(&lumberjack.Logger{
			Filename:   cfg.LogPath,
			MaxSize:    cfg.LogMaxSize,
			MaxBackups: cfg.LogMaxBackups,
		})
	}
}
