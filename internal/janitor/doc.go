// Package janitor удаляет просроченные сессии.
//
// Сессия живёт 24 часа (ExpiresAt). Janitor по cron-расписанию удаляет
// сессии с ExpiresAt < now пачками по BatchSize, вместе с событиями.
//
// Структура:
//   - janitor.go — Janitor (Tick, Sweep)
//   - cron.go    — парсинг cron-выражений и вычисление следующего прогона
//
// Использование:
//
//	j, err := janitor.New(janitor.Config{
//	    Purger:    svc,
//	    Cron:      "*/15 * * * *",
//	    BatchSize: 500,
//	    Logger:    logger,
//	})
//
//	// Вызывается каждый тик (обычно раз в несколько секунд)
//	if err := j.Tick(ctx, time.Now()); err != nil {
//	    logger.Error("janitor tick failed", "error", err)
//	}
//
// Leader Election:
//
// Janitor не реализует leader election самостоятельно.
// Это делается в main.go через pg_try_advisory_lock.
// Метод Tick() вызывается только лидером.
package janitor
