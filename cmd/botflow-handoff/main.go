// Botflow Handoff — формирует резюме для оператора.
//
// Worker:
//   - Получает session.handoff_ready из RabbitMQ (если amqp.enabled)
//   - Периодически опрашивает БД на случай потерянных сообщений
//   - Сохраняет резюме и завершает сессию
//
// Handoff идемпотентен, поэтому реплики можно масштабировать горизонтально.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Botflow/internal/config"
	"github.com/shaiso/Botflow/internal/conversation"
	"github.com/shaiso/Botflow/internal/handoff"
	"github.com/shaiso/Botflow/internal/mq"
	"github.com/shaiso/Botflow/internal/repo"
	"github.com/shaiso/Botflow/internal/telemetry"
	"github.com/shaiso/Botflow/internal/templates"
)

func main() {
	cfg, err := config.LoadAndValidate()
	if err != nil {
		fmt.Fprintln(os.Stderr, "botflow-handoff:", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting botflow-handoff")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := repo.Open(ctx, cfg.Store.Options())
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	catalog, err := templates.Default()
	if err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	svc := conversation.New(conversation.Config{
		Sessions: store,
		Events:   store,
		Catalog:  catalog,
		Logger:   logger,
	})

	// RabbitMQ
	var mqConn *mq.Connection
	if cfg.AMQP.Enabled {
		mqConn, err = mq.NewConnection(cfg.AMQP.URL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
			mqConn = nil
		} else {
			defer mqConn.Close()
			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			} else {
				logger.Debug("amqp topology ready", "topology", mq.TopologyInfo())
			}
		}
	}

	w := handoff.New(handoff.Config{
		Service:      svc,
		Conn:         mqConn,
		PollInterval: cfg.Handoff.PollInterval,
		Concurrency:  cfg.Handoff.Concurrency,
		Logger:       logger,
	})

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start handoff worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		// Без брокера worker продолжает работать опросом, это не авария.
		w.WriteHeader(http.StatusOK)
		if mqConn != nil && !mqConn.IsConnected() {
			w.Write([]byte("ok (amqp reconnecting, polling only)"))
			return
		}
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

	// Ожидаем сигнал завершения
	<-ctx.Done()

	w.Stop()
	logger.Info("botflow-handoff stopped")
}
