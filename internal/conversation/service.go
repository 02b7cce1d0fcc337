// Package conversation связывает движок диалогов с хранилищем.
//
// Service — единственная точка, через которую меняется состояние сессии:
// создание по каталогу шаблонов, запись событий с применением переходов
// Runner, смена языка, handoff и очистка просроченных сессий.
//
// Весь пользовательский текст маскируется до записи в хранилище.
package conversation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Botflow/internal/domain"
	"github.com/shaiso/Botflow/internal/telemetry"
	"github.com/shaiso/Botflow/internal/templates"
)

// Default configuration values.
const (
	defaultMaxAttempts = 3
)

// SessionStore — хранилище сессий.
//
// Advance атомарно добавляет событие и применяет patch, если ревизия
// сессии равна expected; иначе возвращает repo.ErrConflict.
type SessionStore interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	UpdateLanguage(ctx context.Context, id uuid.UUID, language string, now time.Time) error
	Advance(ctx context.Context, event *domain.Event, expected int64, patch domain.SessionPatch) error
	CompleteHandoff(ctx context.Context, id uuid.UUID, summary string, now time.Time) error
	ListPendingHandoffs(ctx context.Context, limit int) ([]uuid.UUID, error)
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int64, error)
}

// EventLog — журнал событий сессий (только добавление).
type EventLog interface {
	Append(ctx context.Context, event *domain.Event) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Event, error)
}

// Notifier сообщает, что сессия готова к handoff.
type Notifier interface {
	PublishHandoffReady(ctx context.Context, sessionID uuid.UUID) error
}

// Service — сервис диалогов.
type Service struct {
	sessions SessionStore
	events   EventLog
	notifier Notifier
	catalog  *templates.Catalog

	ttl             time.Duration
	defaultLanguage string
	maxAttempts     int

	now    func() time.Time
	newID  func() uuid.UUID
	logger *slog.Logger
}

// Config — зависимости и настройки Service.
type Config struct {
	Sessions SessionStore
	Events   EventLog
	Notifier Notifier // опционально
	Catalog  *templates.Catalog

	TTL             time.Duration // время жизни сессии (default: 24h)
	DefaultLanguage string        // язык по умолчанию (default: es)
	MaxAttempts     int           // попытки при конфликте ревизий (default: 3)

	// Now и NewID подменяются в тестах.
	Now   func() time.Time
	NewID func() uuid.UUID

	Logger *slog.Logger
}

// New создаёт Service.
func New(cfg Config) *Service {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = domain.DefaultSessionTTL
	}

	language := cfg.DefaultLanguage
	if !domain.IsSupportedLanguage(language) {
		language = domain.LanguageES
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	newID := cfg.NewID
	if newID == nil {
		newID = uuid.New
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		sessions:        cfg.Sessions,
		events:          cfg.Events,
		notifier:        cfg.Notifier,
		catalog:         cfg.Catalog,
		ttl:             ttl,
		defaultLanguage: language,
		maxAttempts:     maxAttempts,
		now:             now,
		newID:           newID,
		logger:          logger,
	}
}

// log возвращает логгер запроса из контекста, если он там есть,
// иначе логгер сервиса.
func (s *Service) log(ctx context.Context) *slog.Logger {
	if ctx.Value(telemetry.CtxLogger) == nil {
		return s.logger
	}
	return telemetry.FromContext(ctx)
}

// Catalog возвращает каталог шаблонов сервиса.
func (s *Service) Catalog() *templates.Catalog {
	return s.catalog
}
