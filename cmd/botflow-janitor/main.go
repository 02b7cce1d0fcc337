// Botflow Janitor — удаляет просроченные сессии по расписанию.
//
// С PostgreSQL работает ровно один лидер среди реплик (pg advisory lock),
// с SQLite блокировка не нужна: файл БД принадлежит одному процессу.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Botflow/internal/config"
	"github.com/shaiso/Botflow/internal/conversation"
	"github.com/shaiso/Botflow/internal/janitor"
	"github.com/shaiso/Botflow/internal/repo"
	"github.com/shaiso/Botflow/internal/telemetry"
)

const janitorLockKey int64 = 717171

func main() {
	cfg, err := config.LoadAndValidate()
	if err != nil {
		fmt.Fprintln(os.Stderr, "botflow-janitor:", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting botflow-janitor", "cron", cfg.Janitor.Cron)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := repo.Open(ctx, cfg.Store.Options())
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	svc := conversation.New(conversation.Config{
		Sessions: store,
		Events:   store,
		Logger:   logger,
	})

	j, err := janitor.New(janitor.Config{
		Purger:    svc,
		Cron:      cfg.Janitor.Cron,
		BatchSize: cfg.Janitor.BatchSize,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to create janitor", "error", err)
		os.Exit(1)
	}

	var lock *repo.LeaderLock
	if pg, ok := store.(*repo.PostgresStore); ok {
		lock = repo.NewLeaderLock(pg.Pool(), janitorLockKey)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		logger.Info("listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	run(ctx, j, lock, logger)
	logger.Info("botflow-janitor stopped")
}

// run тикает раз в секунду; только лидер вызывает janitor.Tick.
func run(ctx context.Context, j *janitor.Janitor, lock *repo.LeaderLock, logger *slog.Logger) {
	tk := time.NewTicker(time.Second)
	defer tk.Stop()

	if lock != nil {
		defer lock.Release(context.Background())
	}

	var leader bool
	for {
		select {
		case t := <-tk.C:
			if lock != nil {
				ok, err := lock.TryAcquire(ctx)
				if err != nil {
					logger.Error("leader lock", "error", err)
					continue
				}
				if !ok {
					// не лидер — пропускаем тик
					continue
				}
			}
			if !leader {
				leader = true
				logger.Info("janitor is leader")
			}

			if err := j.Tick(ctx, t); err != nil {
				logger.Error("janitor sweep failed", "error", err, "next", j.Next())
			}

		case <-ctx.Done():
			return
		}
	}
}
