package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/clipscribe/internal/cache"
	"github.com/MimeLyc/clipscribe/internal/clipboard"
	"github.com/MimeLyc/clipscribe/internal/config"
	"github.com/MimeLyc/clipscribe/internal/fetcher"
	"github.com/MimeLyc/clipscribe/internal/httpapi"
	"github.com/MimeLyc/clipscribe/internal/monitor"
	"github.com/MimeLyc/clipscribe/internal/notify"
	"github.com/MimeLyc/clipscribe/internal/persistence"
	"github.com/MimeLyc/clipscribe/internal/provider"
	"github.com/MimeLyc/clipscribe/pkg/log"
)

const shutdownTimeout = 10 * time.Second

type pipelineMonitor interface {
	Start(ctx context.Context) error
	Stop()
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func main() {
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	log.InitLogger(log.ParseLevel(cfg.System.LogLevel))

	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		log.Fatal("Failed to open cache index: %v", err)
	}
	defer store.Close()

	transcriptCache, err := cache.New(cfg.BlobDir(), cfg.Cache.MaxEntries, store)
	if err != nil {
		log.Fatal("Failed to initialize transcript cache: %v", err)
	}

	clip, err := clipboard.NewSystemClipboard()
	if err != nil {
		log.Fatal("Failed to access clipboard: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var watcher clipboard.Watcher
	if cfg.Watch.Mode == config.WatchModeSignal {
		name, args, err := clipboard.ChangeSignalCommand()
		if err != nil {
			log.Fatal("Signal watch mode unavailable: %v (set WATCH_MODE=poll)", err)
		}
		signalWatcher := clipboard.NewSignalWatcher(clip)
		if err := signalWatcher.WatchCommand(ctx, name, args...); err != nil {
			log.Fatal("Failed to start clipboard change signal: %v", err)
		}
		watcher = signalWatcher
	} else {
		watcher = clipboard.NewPollWatcher(clip, cfg.PollInterval())
	}

	transcriptFetcher := fetcher.New(provider.NewYouTubeProvider())

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.System.Notifications {
		notifier = notify.NewDesktopNotifier("clipscribe")
	}

	pipeline := monitor.New(
		transcriptFetcher,
		transcriptCache,
		clip,
		watcher,
		cfg.FetchOptions(),
		monitor.WithCallbacks(notificationCallbacks(notifier)),
	)

	settingsStore, err := config.NewRuntimeSettingsStore(cfg.RuntimeSettingsFilePath(), cfg.RuntimeSettings())
	if err != nil {
		log.Fatal("Failed to initialize settings store: %v", err)
	}

	apiServer := httpapi.NewServer(
		transcriptCache,
		httpapi.WithRuntimeSettingsStore(settingsStore),
		httpapi.WithRuntimeSettingsApplier(func(next config.RuntimeSettings) error {
			pipeline.SetOptions(next.FetchOptions())
			transcriptCache.SetMaxEntries(ctx, next.CacheMaxEntries)
			return nil
		}),
	)

	cronRunner := cron.New()
	if _, err := cronRunner.AddFunc(cfg.System.SweepCronExpr, func() {
		if pruned := transcriptCache.Sweep(ctx); pruned > 0 {
			log.Info("Cache sweep pruned %d entries", pruned)
		}
	}); err != nil {
		log.Fatal("Failed to schedule cache sweep: %v", err)
	}

	if err := runWithComponents(ctx, cfg, pipeline, cronRunner, apiServer); err != nil {
		log.Fatal("Daemon exited with error: %v", err)
	}
}

// loadConfig builds the startup config from the environment, overlaid with
// any persisted runtime settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.NewFromEnv()
	if err != nil {
		return nil, err
	}

	settings, err := config.LoadRuntimeSettingsFile(cfg.RuntimeSettingsFilePath())
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("Ignoring unreadable settings file: %v", err)
		}
		return cfg, nil
	}
	return config.NewFromEnv(config.WithRuntimeSettings(settings))
}

func runWithComponents(
	ctx context.Context,
	cfg *config.Config,
	pipeline pipelineMonitor,
	cronRunner cronEngine,
	apiServer httpServer,
) error {
	if err := pipeline.Start(ctx); err != nil {
		return err
	}
	cronRunner.Start()

	httpErrCh := make(chan error, 1)
	if cfg.System.HTTPAddr != "" {
		go func() {
			log.Info("Settings API listening on %s", cfg.System.HTTPAddr)
			if err := apiServer.ListenAndServe(cfg.System.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				httpErrCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-httpErrCh:
		return err
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown failed: %v", err)
	}
	<-cronRunner.Stop().Done()
	pipeline.Stop()
	return nil
}

func notificationCallbacks(notifier notify.Notifier) monitor.Callbacks {
	return monitor.Callbacks{
		OnProcessed: func(outcome monitor.Outcome) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if outcome.Err != nil {
				body := outcome.Hint
				if body == "" {
					body = outcome.Err.Error()
				}
				_ = notifier.Send(ctx, "Transcript failed", body, notify.UrgencyCritical)
				return
			}

			title := "Transcript copied"
			if outcome.FromCache {
				title = "Transcript copied (cached)"
			}
			_ = notifier.Send(ctx, title, outcome.Preview, notify.UrgencyNormal)
		},
	}
}
