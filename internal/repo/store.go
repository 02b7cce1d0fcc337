package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Botflow/internal/domain"
)

// Драйверы хранилища.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store — хранилище сессий и журнала событий.
// Реализации: PostgresStore и SQLiteStore.
type Store interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	UpdateLanguage(ctx context.Context, id uuid.UUID, language string, now time.Time) error
	Advance(ctx context.Context, event *domain.Event, expected int64, patch domain.SessionPatch) error
	CompleteHandoff(ctx context.Context, id uuid.UUID, summary string, now time.Time) error
	ListPendingHandoffs(ctx context.Context, limit int) ([]uuid.UUID, error)
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int64, error)

	Append(ctx context.Context, event *domain.Event) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Event, error)

	Close() error
}

// PostgresStore объединяет SessionRepo и EventRepo над одним пулом.
type PostgresStore struct {
	*SessionRepo
	*EventRepo
	pool *pgxpool.Pool
}

// NewPostgresStore создаёт хранилище поверх открытого пула.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		SessionRepo: NewSessionRepo(pool),
		EventRepo:   NewEventRepo(pool),
		pool:        pool,
	}
}

// Pool возвращает пул соединений (нужен для LeaderLock).
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Close закрывает пул.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// SQLiteMemoryPath — путь SQLite для demo режима без файла.
const SQLiteMemoryPath = ":memory:"

// Options — параметры открытия хранилища.
type Options struct {
	Driver      string // postgres | sqlite
	PostgresDSN string
	SQLitePath  string // SQLiteMemoryPath — БД в памяти
	Migrate     bool // применить схему PostgreSQL (SQLite мигрирует всегда)
}

// Open открывает хранилище выбранного драйвера.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case DriverPostgres:
		pool, err := NewPool(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if opts.Migrate {
			if err := Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return NewPostgresStore(pool), nil
	case DriverSQLite:
		if opts.SQLitePath == SQLiteMemoryPath {
			return OpenSQLiteMemory()
		}
		return OpenSQLite(opts.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
