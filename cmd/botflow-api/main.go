// Botflow API — HTTP сервер сессий чат-бота.
//
// API:
//   - Создаёт сессии из каталога фрагментов (specialty × goal)
//   - Записывает события чата и продвигает курсор сессии
//   - Формирует резюме handoff по запросу клиента
//   - Публикует session.handoff_ready в RabbitMQ (если amqp.enabled)
//
// Реплики API stateless, согласованность обеспечивает ревизия сессии в БД.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Botflow/internal/api"
	"github.com/shaiso/Botflow/internal/config"
	"github.com/shaiso/Botflow/internal/conversation"
	"github.com/shaiso/Botflow/internal/mq"
	"github.com/shaiso/Botflow/internal/repo"
	"github.com/shaiso/Botflow/internal/telemetry"
	"github.com/shaiso/Botflow/internal/templates"
)

func main() {
	cfg, err := config.LoadAndValidate()
	if err != nil {
		fmt.Fprintln(os.Stderr, "botflow-api:", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting botflow-api", "store", cfg.Store.Driver)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := repo.Open(ctx, cfg.Store.Options())
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("store opened")

	catalog, err := templates.Default()
	if err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	// RabbitMQ опционален: без него handoff worker работает опросом БД.
	var notifier conversation.Notifier
	if cfg.AMQP.Enabled {
		mqConn, err := mq.NewConnection(cfg.AMQP.URL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, handoff notifications disabled", "error", err)
		} else {
			defer mqConn.Close()
			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			notifier = mq.NewPublisher(mqConn, logger)
			logger.Info("RabbitMQ connected")
		}
	}

	svc := conversation.New(conversation.Config{
		Sessions:        store,
		Events:          store,
		Notifier:        notifier,
		Catalog:         catalog,
		TTL:             cfg.Session.TTL,
		DefaultLanguage: cfg.Session.DefaultLanguage,
		Logger:          logger,
	})

	handler := api.NewHandler(api.Config{
		Service: svc,
		Catalog: catalog,
		Logger:  logger,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.CORS(cfg.HTTP.CORSOrigins)(mux),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
