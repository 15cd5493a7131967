package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/kinodub/dualsub/internal/config"
	"github.com/kinodub/dualsub/internal/httpapi"
	"github.com/kinodub/dualsub/internal/service"
	"github.com/kinodub/dualsub/pkg/log"
)

func main() {
	// Optional .env next to the binary; environment wins over file values.
	_ = godotenv.Load()

	opts := []config.Option{}
	settingsPath := config.SettingsFilePath()
	if persisted, err := config.LoadSettingsFile(settingsPath); err == nil {
		opts = append(opts, config.WithSettings(persisted))
	}

	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	log.InitLogger(log.ParseLevel(cfg.System.LogLevel))

	settings, err := config.NewSettingsStore(settingsPath, cfg.Settings())
	if err != nil {
		log.Fatal("Failed to initialize settings store: %v", err)
	}

	svc, err := service.New(cfg, settings)
	if err != nil {
		log.Fatal("Failed to start service: %v", err)
	}
	defer svc.Close()

	evictionCron := cron.New()
	if err := svc.ScheduleEviction(evictionCron); err != nil {
		log.Fatal("Failed to schedule cache eviction: %v", err)
	}
	evictionCron.Start()
	defer evictionCron.Stop()

	server := httpapi.NewServer(svc, svc,
		httpapi.WithSettingsStore(settings),
		httpapi.WithNotifier(svc.Notifier()),
		httpapi.WithStatus(svc.Status),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("listening on %s", cfg.HTTP.Addr)
		return server.ListenAndServe(cfg.HTTP.Addr)
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		log.Fatal("Server failed: %v", err)
	}
	log.Info("shutdown complete")
}
