package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MRamiBalles/coreria/internal/actors"
	"github.com/MRamiBalles/coreria/internal/engine"
	"github.com/MRamiBalles/coreria/internal/events"
	"github.com/MRamiBalles/coreria/internal/infra/cache"
	"github.com/MRamiBalles/coreria/internal/infra/storage"
	"github.com/MRamiBalles/coreria/internal/network"
	"github.com/MRamiBalles/coreria/internal/platform/config"
	"github.com/MRamiBalles/coreria/internal/platform/metrics"
	"github.com/MRamiBalles/coreria/internal/platform/optimization"
)

const (
	pollInterval    = 100 * time.Millisecond
	shutdownTimeout = 5 * time.Second
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation with the WebSocket feed and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	tuning := cfg.Tuning()
	appLog.Info("starting coreria", "tick_rate", cfg.TickRate, "duration", cfg.Duration, "profile", cfg.Profile)

	appLog.Info("initializing sqlite database", "path", cfg.DBPath)
	db, err := storage.InitSQLite(cfg.DBPath, tuning.DBMaxOpenConns, tuning.DBMaxIdleConns)
	if err != nil {
		return err
	}
	defer db.Close()
	runRepo := storage.NewSQLiteRunRepository(db)
	eventRepo := storage.NewSQLiteEventRepository(db)

	recovered, err := storage.NewReconstructor(runRepo, eventRepo).RecoverRuns(ctx)
	if err != nil {
		appLog.Warn("failed to recover interrupted runs", "error", err)
	}
	for _, r := range recovered {
		appLog.Info("closed interrupted run", "run", r.ID, "ticks", r.Ticks)
	}

	m := metrics.Get()
	eventLog := events.NewEventLog(storage.NewEventPersister(eventRepo, m.RecordEventWrite))
	recorder := events.NewRecorder(eventLog, appLog)

	opts := []engine.Option{
		engine.WithObserver(m),
		engine.WithObserver(storage.NewRunTracker(runRepo, appLog)),
		engine.WithObserver(recorder),
	}

	var status *cache.StatusCache
	if cfg.RedisAddr != "" {
		client, closeRedis, err := cache.NewRedisClient(ctx, cfg.RedisAddr, tuning.RedisPoolSize)
		if err != nil {
			appLog.Warn("redis unavailable, status cache disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer closeRedis()
			status = cache.NewStatusCache(client, cfg.EventEvery, appLog)
			opts = append(opts, engine.WithObserver(status))
		}
	}

	eng := engine.NewEngine(opts...)
	spawner := actors.NewSpawner(eng, tuning.SpawnQueueBuffer, eventLog, recorder, appLog)
	eng.AddEntity(spawner)
	eng.AddEntity(actors.NewHeartbeat(cfg.EventEvery, eventLog, recorder, appLog))
	for i := 0; i < cfg.Players; i++ {
		eng.AddEntity(actors.NewCounter())
	}

	hubCtx, cancelHub := context.WithCancel(context.Background())
	defer cancelHub()
	control := network.NewControl(eng, spawner, eventLog, appLog)
	hub := network.NewHub(control, tuning, m, appLog)
	go hub.Run(hubCtx)
	hub.StartEventPoller(hubCtx, eventLog, pollInterval)

	if watcher, err := config.Watch(cfgPath, cfg, appLog.Slog()); err != nil {
		appLog.Debug("config hot reload disabled", "path", cfgPath, "error", err)
	} else {
		defer watcher.Stop()
		watcher.OnChange(func(c *config.Config, changed []string) {
			if slices.Contains(changed, "log_level") {
				appLog.SetLevel(c.LogLevel)
				appLog.Info("log level reloaded", "level", c.LogLevel)
			}
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWs)
	mux.HandleFunc("/metrics", m.Handler())
	mux.HandleFunc("/metrics/prometheus", m.PrometheusHandler())
	mux.HandleFunc("/api/tuning", tuningHandler(m, tuning))
	control.RegisterRoutes(mux)
	network.NewHistoryHandler(eventLog, runRepo, eventRepo, status, appLog).RegisterRoutes(mux)

	srv, serveErr, err := startHTTP(cfg.ListenAddr, mux)
	if err != nil {
		return err
	}
	appLog.Info("HTTP server listening", "addr", cfg.ListenAddr)

	// The run owns this goroutine; everything else reaches the engine
	// through Stop or the spawner. A failing HTTP server cancels the run.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	httpFailed := make(chan error, 1)
	go func() {
		select {
		case err := <-serveErr:
			appLog.Error("HTTP server failed", "error", err)
			httpFailed <- err
			cancelRun()
		case <-runCtx.Done():
		}
	}()

	runErr := eng.Run(runCtx, cfg.RunSeconds(), cfg.TickRate)
	if errors.Is(runErr, context.Canceled) {
		select {
		case err := <-httpFailed:
			runErr = fmt.Errorf("http server: %w", err)
		default:
			if ctx.Err() != nil {
				appLog.Info("interrupted, shutting down")
				runErr = nil
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("HTTP server shutdown failed", "error", err)
	}
	cancelHub()

	appLog.Info("coreria stopped", "events", eventLog.Len())
	return runErr
}

// startHTTP binds addr before returning so a busy port fails the command
// instead of a run that already started. Serve errors other than
// http.ErrServerClosed arrive on the returned channel.
func startHTTP(addr string, handler http.Handler) (*http.Server, <-chan error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	srv := &http.Server{Addr: ln.Addr().String(), Handler: handler}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	return srv, serveErr, nil
}

// tuningHandler reports profile recommendations from live metrics.
func tuningHandler(m *metrics.Collector, tuning *optimization.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := optimization.Analyze(m.Snapshot())
		suggested := *tuning
		optimization.ApplyRecommendations(&suggested, rec)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"profile":         cfg.Profile,
			"current":         tuning,
			"recommendations": rec,
			"suggested":       suggested,
		})
	}
}
