// Package handoff формирует резюме для сессий, дошедших до шага handoff.
//
// Worker получает session.handoff_ready из очереди sessions.handoff и
// периодически опрашивает хранилище (fallback, если публикация не прошла
// или брокер отключён). Handoff идемпотентен, поэтому повторная обработка
// одной сессии безопасна.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Botflow/internal/conversation"
	"github.com/shaiso/Botflow/internal/mq"
	"github.com/shaiso/Botflow/internal/repo"
)

// Default configuration values.
const (
	defaultPollInterval = 30 * time.Second
	defaultBatchSize    = 50
	defaultConcurrency  = 4
)

// Service — операции сервиса диалогов, нужные worker.
type Service interface {
	Handoff(ctx context.Context, id uuid.UUID) (*conversation.HandoffResult, error)
	ListPendingHandoffs(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// Worker обрабатывает сессии в статусе handoff_ready.
type Worker struct {
	service Service
	conn    *mq.Connection

	consumer *mq.Consumer

	pollInterval time.Duration
	batchSize    int
	concurrency  int

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Worker.
type Config struct {
	Service Service

	// Conn — соединение с RabbitMQ; nil — только polling.
	Conn *mq.Connection

	PollInterval time.Duration // интервал polling (default: 30s)
	BatchSize    int           // сессий за один poll (default: 50)
	Concurrency  int           // параллельных handoff (default: 4)

	Logger *slog.Logger
}

// New создаёт Worker.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		service:      cfg.Service,
		conn:         cfg.Conn,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		concurrency:  concurrency,
		logger:       logger,
	}
}

// Start запускает consumer (если есть соединение) и polling.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting handoff worker",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
		"concurrency", w.concurrency,
		"amqp", w.conn != nil,
	)

	if w.conn != nil {
		w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueSessionsHandoff),
			Handler:  w.handleHandoffReady,
			Prefetch: w.concurrency,
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("handoff consumer error", "error", err)
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()

	return nil
}

// Stop останавливает Worker и ждёт завершения горутин.
func (w *Worker) Stop() {
	w.logger.Info("stopping handoff worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	if w.consumer != nil {
		w.consumer.Stop()
	}
	w.wg.Wait()

	w.logger.Info("handoff worker stopped")
}

// handleHandoffReady обрабатывает сообщение из sessions.handoff.
func (w *Worker) handleHandoffReady(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.HandoffReadyPayload](&delivery.Message)
	if err != nil {
		return mq.Permanent(fmt.Errorf("parse payload: %w", err))
	}
	if payload.SessionID == uuid.Nil {
		return mq.Permanent(errors.New("empty session id"))
	}

	err = w.process(ctx, payload.SessionID)
	if errors.Is(err, repo.ErrNotFound) {
		// Сессия удалена janitor — повторять нечего.
		w.logger.Debug("handoff session not found", "session_id", payload.SessionID)
		return nil
	}
	return err
}

// pollLoop — цикл polling для fallback.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу: подхватываем сессии, накопленные пока worker был выключен.
	w.Poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll обрабатывает одну пачку ожидающих сессий.
// Возвращает число успешно обработанных.
func (w *Worker) Poll(ctx context.Context) int {
	ids, err := w.service.ListPendingHandoffs(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("failed to list pending handoffs", "error", err)
		return 0
	}
	if len(ids) == 0 {
		return 0
	}

	w.logger.Debug("poll found pending handoffs", "count", len(ids))

	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if err := w.process(gctx, id); err != nil {
				w.logger.Error("failed to process handoff from poll",
					"session_id", id,
					"error", err,
				)
				return nil
			}
			mu.Lock()
			done++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return done
}

// process формирует резюме одной сессии.
func (w *Worker) process(ctx context.Context, id uuid.UUID) error {
	res, err := w.service.Handoff(ctx, id)
	if err != nil {
		return err
	}
	if !res.AlreadyDone {
		w.logger.Info("handoff summary generated", "session_id", id)
	}
	return nil
}
