package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/shaiso/Botflow/internal/domain"
)

// sqliteTimeLayout — фиксированная ширина, строки сортируются как время.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore — встраиваемое хранилище сессий и событий на SQLite.
// Реализует тот же контракт, что SessionRepo и EventRepo вместе.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite открывает (или создаёт) файл БД и применяет схему.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	// _txlock=immediate: транзакция Advance сразу берёт блокировку записи,
	// иначе конкурирующие писатели получают SQLITE_BUSY при upgrade.
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return newSQLiteStore(db)
}

// OpenSQLiteMemory открывает БД в памяти. Используется в тестах и demo режиме.
func OpenSQLiteMemory() (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Каждое соединение :memory: — отдельная БД.
	db.SetMaxOpenConns(1)
	return newSQLiteStore(db)
}

func newSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close закрывает БД.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Create сохраняет новую сессию.
func (s *SQLiteStore) Create(ctx context.Context, sess *domain.Session) error {
	leadJSON, botJSON, err := marshalSession(sess)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sessions (id, language, specialty, goal, status, current_flow_id,
		                      current_step_index, lead, bot_instance, summary_text,
		                      handoff_ready, revision, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query,
		sess.ID.String(),
		sess.Language,
		sess.Specialty,
		sess.Goal,
		string(sess.Status),
		sess.CurrentFlowID,
		sess.CurrentStepIndex,
		string(leadJSON),
		string(botJSON),
		sess.SummaryText,
		sess.HandoffReady,
		sess.Revision,
		formatTime(sess.CreatedAt),
		formatTime(sess.UpdatedAt),
		formatTime(sess.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// GetByID возвращает сессию по ID.
func (s *SQLiteStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	return s.getSession(ctx, s.db, id)
}

// UpdateLanguage меняет язык сессии.
func (s *SQLiteStore) UpdateLanguage(ctx context.Context, id uuid.UUID, language string, now time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET language = ?, updated_at = ? WHERE id = ?`,
		language, formatTime(now), id.String(),
	)
	if err != nil {
		return fmt.Errorf("update language: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Advance атомарно добавляет событие и применяет patch к сессии.
// Семантика совпадает с SessionRepo.Advance. Занятая БД (SQLITE_BUSY)
// возвращается как ErrConflict, чтобы вызывающий повторил попытку.
func (s *SQLiteStore) Advance(ctx context.Context, event *domain.Event, expected int64, patch domain.SessionPatch) error {
	err := s.advance(ctx, event, expected, patch)
	if isBusy(err) {
		event.Revision = nil
		return ErrConflict
	}
	return err
}

func (s *SQLiteStore) advance(ctx context.Context, event *domain.Event, expected int64, patch domain.SessionPatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	sess, err := s.getSession(ctx, tx, event.SessionID)
	if err != nil {
		return err
	}
	if sess.Revision != expected {
		return ErrConflict
	}
	sess.Apply(patch, event.TS)

	leadJSON, _, err := marshalSession(sess)
	if err != nil {
		return err
	}

	query := `
		UPDATE sessions
		SET current_flow_id = ?, current_step_index = ?, status = ?, lead = ?,
		    revision = ?, updated_at = ?
		WHERE id = ? AND revision = ?
	`
	result, err := tx.ExecContext(ctx, query,
		sess.CurrentFlowID,
		sess.CurrentStepIndex,
		string(sess.Status),
		string(leadJSON),
		sess.Revision,
		formatTime(sess.UpdatedAt),
		sess.ID.String(),
		expected,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrConflict
	}

	revision := expected + 1
	event.Revision = &revision
	inserted, err := s.insertEvent(ctx, tx, event)
	if err != nil {
		return err
	}
	if !inserted {
		return ErrConflict
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CompleteHandoff сохраняет резюме и завершает сессию.
func (s *SQLiteStore) CompleteHandoff(ctx context.Context, id uuid.UUID, summary string, now time.Time) error {
	query := `
		UPDATE sessions
		SET summary_text = ?, handoff_ready = 1, status = 'completed',
		    revision = revision + 1, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, summary, formatTime(now), id.String())
	if err != nil {
		return fmt.Errorf("complete handoff: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPendingHandoffs возвращает сессии в handoff_ready без резюме.
func (s *SQLiteStore) ListPendingHandoffs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM sessions
		WHERE status = 'handoff_ready' AND handoff_ready = 0
		ORDER BY updated_at ASC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending handoffs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteExpired удаляет до limit сессий с expires_at < before.
func (s *SQLiteStore) DeleteExpired(ctx context.Context, before time.Time, limit int) (int64, error) {
	query := `
		DELETE FROM sessions
		WHERE id IN (
			SELECT id FROM sessions
			WHERE expires_at < ?
			ORDER BY expires_at ASC
			LIMIT ?
		)
	`
	result, err := s.db.ExecContext(ctx, query, formatTime(before), limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}

// Append добавляет событие, не меняющее курсор сессии.
func (s *SQLiteStore) Append(ctx context.Context, event *domain.Event) error {
	inserted, err := s.insertEvent(ctx, s.db, event)
	if err != nil {
		return err
	}
	if !inserted {
		return ErrAlreadyExists
	}
	return nil
}

// ListBySession возвращает события сессии в хронологическом порядке.
func (s *SQLiteStore) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Event, error) {
	query := `
		SELECT id, session_id, ts, type, flow_id, step_id, payload, revision
		FROM session_events
		WHERE session_id = ?
		ORDER BY ts ASC, seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0)
	for rows.Next() {
		var (
			e                domain.Event
			id, sid, ts, typ string
			payload          string
			revision         sql.NullInt64
		)
		if err := rows.Scan(&id, &sid, &ts, &typ, &e.FlowID, &e.StepID, &payload, &revision); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse event id: %w", err)
		}
		if e.SessionID, err = uuid.Parse(sid); err != nil {
			return nil, fmt.Errorf("parse session id: %w", err)
		}
		if e.TS, err = parseTime(ts); err != nil {
			return nil, err
		}
		e.Type = domain.EventType(typ)
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		if revision.Valid {
			r := revision.Int64
			e.Revision = &r
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Helpers ---

// sqlQuerier — общий интерфейс *sql.DB и *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) getSession(ctx context.Context, q sqlQuerier, id uuid.UUID) (*domain.Session, error) {
	query := `
		SELECT id, language, specialty, goal, status, current_flow_id, current_step_index,
		       lead, bot_instance, summary_text, handoff_ready, revision,
		       created_at, updated_at, expires_at
		FROM sessions
		WHERE id = ?
	`
	var (
		sess                        domain.Session
		rawID, status               string
		leadJSON, botJSON           string
		createdAt, updatedAt, expAt string
	)
	err := q.QueryRowContext(ctx, query, id.String()).Scan(
		&rawID,
		&sess.Language,
		&sess.Specialty,
		&sess.Goal,
		&status,
		&sess.CurrentFlowID,
		&sess.CurrentStepIndex,
		&leadJSON,
		&botJSON,
		&sess.SummaryText,
		&sess.HandoffReady,
		&sess.Revision,
		&createdAt,
		&updatedAt,
		&expAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	if sess.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("parse session id: %w", err)
	}
	sess.Status = domain.ParseSessionStatus(status)
	if err := json.Unmarshal([]byte(leadJSON), &sess.Lead); err != nil {
		return nil, fmt.Errorf("unmarshal lead: %w", err)
	}
	if err := json.Unmarshal([]byte(botJSON), &sess.BotInstance); err != nil {
		return nil, fmt.Errorf("unmarshal bot instance: %w", err)
	}
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sess.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if sess.ExpiresAt, err = parseTime(expAt); err != nil {
		return nil, err
	}
	return &sess, nil
}

// insertEvent вставляет событие. Возвращает false при дубликате ID или ревизии.
func (s *SQLiteStore) insertEvent(ctx context.Context, q sqlQuerier, event *domain.Event) (bool, error) {
	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return false, fmt.Errorf("marshal payload: %w", err)
	}

	var revision sql.NullInt64
	if event.Revision != nil {
		revision = sql.NullInt64{Int64: *event.Revision, Valid: true}
	}

	query := `
		INSERT INTO session_events (id, session_id, ts, type, flow_id, step_id, payload, revision)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`
	result, err := q.ExecContext(ctx, query,
		event.ID.String(),
		event.SessionID.String(),
		formatTime(event.TS),
		string(event.Type),
		event.FlowID,
		event.StepID,
		string(payloadJSON),
		revision,
	)
	if err != nil {
		if isSQLiteForeignKey(err) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("insert event: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// isSQLiteForeignKey распознаёт нарушение внешнего ключа.
// ON CONFLICT DO NOTHING не подавляет FOREIGN KEY ошибки.
func isSQLiteForeignKey(err error) bool {
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

// isBusy проверяет, что SQLite не смог взять блокировку за busy_timeout.
func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code() & 0xff
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}
