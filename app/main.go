package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/cal-comb/app/api"
	"github.com/lysyi3m/cal-comb/app/cache"
	"github.com/lysyi3m/cal-comb/app/cfg"
	"github.com/lysyi3m/cal-comb/app/database"
	"github.com/lysyi3m/cal-comb/app/ics"
	"github.com/lysyi3m/cal-comb/app/orchestrator"
	"github.com/lysyi3m/cal-comb/app/scrape"
	"github.com/lysyi3m/cal-comb/app/sources"
	"github.com/lysyi3m/cal-comb/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	level := slog.LevelInfo
	if appCfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("Starting Cal Comb server", "version", appCfg.Version, "timezone", appCfg.Timezone)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to connect to database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	calendarRepo := database.NewCalendarRepository(db)
	eventRepo := database.NewEventRepository(db)
	cacheRepo := database.NewCacheRepository(db)

	kv, err := cache.OpenKV(ctx, appCfg.RedisAddr, appCfg.KVPath)
	if err != nil {
		slog.Error("Failed to open key-value store", "error", err)
		os.Exit(1)
	}
	defer kv.Close()

	tiered := cache.NewTiered(appCfg.CacheTTL, cache.NewMemory(), cache.NewKVTier(kv), cacheRepo)

	feedFetcher := ics.NewFetcher(appCfg.RequestTimeout, appCfg.UserAgent, ics.ProxiesFromTemplates(appCfg.FeedProxies))

	pageFetchers := []scrape.Fetcher{
		scrape.NewEnvelopeFetcher(appCfg.RequestTimeout, appCfg.PageProxy, appCfg.UserAgent),
		scrape.NewDirectFetcher(appCfg.RequestTimeout, appCfg.UserAgent),
	}
	if appCfg.RenderPages {
		pageFetchers = append(pageFetchers, scrape.NewChromeFetcher(appCfg.RequestTimeout))
	}

	feedAdapter := sources.NewFeedAdapter(feedFetcher, appCfg.YearWindow, time.Local)
	pageAdapter := sources.NewPageAdapter(scrape.NewChainFetcher(pageFetchers...), time.Local)
	registry := sources.NewRegistry(feedAdapter, pageAdapter)

	orch := orchestrator.New(calendarRepo, eventRepo, registry, tiered, kv, orchestrator.NewRateLimiter(kv))

	configCache := sources.NewConfigCache(appCfg.CalendarsDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load calendar configurations", "dir", appCfg.CalendarsDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Calendar configurations loaded", "dir", appCfg.CalendarsDir, "count", configCache.GetConfigCount())

	scheduler := tasks.NewScheduler(configCache, calendarRepo, orch, cacheRepo)
	scheduler.Start()
	defer scheduler.Stop()

	background := orchestrator.NewBackground(kv, registry, orchestrator.BackgroundOptions{
		Support: orchestrator.FeatureSupport{
			BackgroundSync: appCfg.EnableBackgroundSync,
			PeriodicSync:   appCfg.EnablePeriodicSync,
		},
		Schedule: appCfg.BackgroundCron,
		Timeout:  appCfg.BackgroundTimeout,
	})
	go background.Run(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-background.Messages():
				if _, ok := msg.(orchestrator.BackgroundSyncComplete); !ok {
					continue
				}
				if err := scheduler.EnqueueTask(tasks.NewActivateTask(orch)); err != nil {
					slog.Warn("Failed to enqueue ActivateTask", "error", err)
				}
			}
		}
	}()

	if err := orch.PublishCalendars(ctx); err != nil {
		slog.Warn("Failed to publish calendars", "error", err)
	}
	support := orch.Register(ctx, background)
	slog.Info("Background context registered",
		"background_sync", support.BackgroundSync,
		"periodic_sync", support.PeriodicSync)

	apiHandler := api.NewHandler(api.HandlerOptions{
		CalendarRepo: calendarRepo,
		EventRepo:    eventRepo,
		Orchestrator: orch,
		Exporter:     sources.NewExporter(appCfg.Version),
		Inspector:    pageAdapter,
		Messenger:    background,
		ConfigCache:  configCache,
		Scheduler:    scheduler,
		Version:      appCfg.Version,
	})
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * appCfg.RequestTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	slog.Info("Cal Comb server started", "auth_required", appCfg.APIAccessKey != "")

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig)
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	stop()
	slog.Info("Cal Comb server shutdown complete")
}
