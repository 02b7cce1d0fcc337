package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Botflow/internal/domain"
)

// SQLSTATE коды PostgreSQL.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// SessionRepo — репозиторий сессий в PostgreSQL.
type SessionRepo struct {
	pool *pgxpool.Pool
}

// NewSessionRepo создаёт новый SessionRepo.
func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

// Create сохраняет новую сессию.
func (r *SessionRepo) Create(ctx context.Context, s *domain.Session) error {
	leadJSON, botJSON, err := marshalSession(s)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sessions (id, language, specialty, goal, status, current_flow_id,
		                      current_step_index, lead, bot_instance, summary_text,
		                      handoff_ready, revision, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = r.pool.Exec(ctx, query,
		s.ID,
		s.Language,
		s.Specialty,
		s.Goal,
		s.Status,
		s.CurrentFlowID,
		s.CurrentStepIndex,
		leadJSON,
		botJSON,
		s.SummaryText,
		s.HandoffReady,
		s.Revision,
		s.CreatedAt,
		s.UpdatedAt,
		s.ExpiresAt,
	)
	if isPgError(err, pgUniqueViolation) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetByID возвращает сессию по ID.
func (r *SessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	query := `
		SELECT id, language, specialty, goal, status, current_flow_id, current_step_index,
		       lead, bot_instance, summary_text, handoff_ready, revision,
		       created_at, updated_at, expires_at
		FROM sessions
		WHERE id = $1
	`
	return scanSession(r.pool.QueryRow(ctx, query, id))
}

// UpdateLanguage меняет язык сессии.
func (r *SessionRepo) UpdateLanguage(ctx context.Context, id uuid.UUID, language string, now time.Time) error {
	query := `
		UPDATE sessions
		SET language = $2, updated_at = $3
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, language, now)
	if err != nil {
		return fmt.Errorf("update language: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Advance атомарно добавляет событие и применяет patch к сессии.
//
// Обновление условно по ревизии: если сессию успели изменить после чтения
// (revision != expected), возвращается ErrConflict и ничего не пишется.
// Событие получает ревизию expected+1; уникальный ключ (session_id, revision)
// гарантирует, что к одной ревизии привязано ровно одно событие.
func (r *SessionRepo) Advance(ctx context.Context, event *domain.Event, expected int64, patch domain.SessionPatch) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var leadKey, leadValue *string
	if patch.LeadField != nil {
		leadKey = &patch.LeadField.Key
		leadValue = &patch.LeadField.Value
	}

	query := `
		UPDATE sessions
		SET current_flow_id    = COALESCE($3, current_flow_id),
		    current_step_index = COALESCE($4, current_step_index),
		    status             = COALESCE($5, status),
		    lead               = CASE WHEN $6::text IS NULL THEN lead
		                              ELSE jsonb_set(lead, ARRAY[$6::text], to_jsonb($7::text)) END,
		    revision           = revision + 1,
		    updated_at         = $8
		WHERE id = $1 AND revision = $2
	`
	result, err := tx.Exec(ctx, query,
		event.SessionID,
		expected,
		patch.CurrentFlowID,
		patch.CurrentStepIndex,
		nullString(string(patch.Status)),
		leadKey,
		leadValue,
		event.TS,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if result.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, event.SessionID).Scan(&exists); err != nil {
			return fmt.Errorf("check session: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}

	revision := expected + 1
	event.Revision = &revision
	inserted, err := insertEvent(ctx, tx, event)
	if err != nil {
		return err
	}
	if !inserted {
		return ErrConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CompleteHandoff сохраняет резюме и завершает сессию.
func (r *SessionRepo) CompleteHandoff(ctx context.Context, id uuid.UUID, summary string, now time.Time) error {
	query := `
		UPDATE sessions
		SET summary_text = $2, handoff_ready = TRUE, status = 'completed',
		    revision = revision + 1, updated_at = $3
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, summary, now)
	if err != nil {
		return fmt.Errorf("complete handoff: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPendingHandoffs возвращает сессии в handoff_ready без резюме.
func (r *SessionRepo) ListPendingHandoffs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id
		FROM sessions
		WHERE status = 'handoff_ready' AND NOT handoff_ready
		ORDER BY updated_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending handoffs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteExpired удаляет до limit сессий с expires_at < before.
// События удаляются каскадно.
func (r *SessionRepo) DeleteExpired(ctx context.Context, before time.Time, limit int) (int64, error) {
	query := `
		DELETE FROM sessions
		WHERE id IN (
			SELECT id FROM sessions
			WHERE expires_at < $1
			ORDER BY expires_at ASC
			LIMIT $2
		)
	`
	result, err := r.pool.Exec(ctx, query, before, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return result.RowsAffected(), nil
}

// --- Helpers ---

// marshalSession сериализует JSONB поля сессии.
func marshalSession(s *domain.Session) (lead, bot []byte, err error) {
	leadMap := s.Lead
	if leadMap == nil {
		leadMap = map[string]any{}
	}
	lead, err = json.Marshal(leadMap)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal lead: %w", err)
	}
	bot, err = json.Marshal(s.BotInstance)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal bot instance: %w", err)
	}
	return lead, bot, nil
}

// scanSession сканирует одну строку в Session.
func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	var leadJSON, botJSON []byte
	var status string

	err := row.Scan(
		&s.ID,
		&s.Language,
		&s.Specialty,
		&s.Goal,
		&status,
		&s.CurrentFlowID,
		&s.CurrentStepIndex,
		&leadJSON,
		&botJSON,
		&s.SummaryText,
		&s.HandoffReady,
		&s.Revision,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	s.Status = domain.ParseSessionStatus(status)

	if err := json.Unmarshal(leadJSON, &s.Lead); err != nil {
		return nil, fmt.Errorf("unmarshal lead: %w", err)
	}
	if err := json.Unmarshal(botJSON, &s.BotInstance); err != nil {
		return nil, fmt.Errorf("unmarshal bot instance: %w", err)
	}

	return &s, nil
}

// isPgError проверяет SQLSTATE ошибки PostgreSQL.
func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// nullString возвращает nil для пустой строки.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
