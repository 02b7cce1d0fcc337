package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Default configuration values.
const (
	defaultCron      = "*/15 * * * *"
	defaultBatchSize = 500

	// maxBatchesPerSweep ограничивает один прогон, чтобы не держать лидерство долго.
	maxBatchesPerSweep = 100
)

// Purger удаляет просроченные сессии.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time, limit int) (int64, error)
}

// Janitor — периодическая очистка просроченных сессий.
type Janitor struct {
	purger    Purger
	schedule  cron.Schedule
	cronExpr  string
	batchSize int
	logger    *slog.Logger

	next time.Time
}

// Config — конфигурация Janitor.
type Config struct {
	Purger    Purger
	Cron      string // расписание (default: */15 * * * *)
	BatchSize int    // сессий за один DELETE (default: 500)
	Logger    *slog.Logger
}

// New создаёт Janitor. Возвращает ошибку для невалидного cron.
func New(cfg Config) (*Janitor, error) {
	expr := cfg.Cron
	if expr == "" {
		expr = defaultCron
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Janitor{
		purger:    cfg.Purger,
		schedule:  schedule,
		cronExpr:  expr,
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

// Next возвращает время следующего прогона (нулевое до первого Tick).
func (j *Janitor) Next() time.Time {
	return j.next
}

// Tick выполняет прогон, если наступило его время.
//
// Первый Tick только планирует прогон. Ошибка прогона не сдвигает
// расписание назад: следующая попытка будет в следующий слот cron.
func (j *Janitor) Tick(ctx context.Context, now time.Time) error {
	now = now.UTC()
	if j.next.IsZero() {
		j.next = j.schedule.Next(now).UTC()
		j.logger.Info("janitor scheduled", "cron", j.cronExpr, "next", j.next)
		return nil
	}
	if now.Before(j.next) {
		return nil
	}

	j.next = j.schedule.Next(now).UTC()
	_, err := j.Sweep(ctx, now)
	return err
}

// Sweep удаляет все сессии, просроченные к now, пачками по batchSize.
// Возвращает общее число удалённых сессий.
func (j *Janitor) Sweep(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for range maxBatchesPerSweep {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := j.purger.PurgeExpired(ctx, now, j.batchSize)
		if err != nil {
			return total, fmt.Errorf("purge batch: %w", err)
		}
		total += n

		if n < int64(j.batchSize) {
			break
		}
	}

	j.logger.Info("janitor sweep completed",
		"purged", total,
		"before", now,
		"next", j.next,
	)
	return total, nil
}
