package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Botflow/internal/domain"
)

// EventRepo — журнал событий сессий в PostgreSQL.
// События только добавляются и никогда не изменяются.
type EventRepo struct {
	pool *pgxpool.Pool
}

// NewEventRepo создаёт новый EventRepo.
func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// Append добавляет событие, не меняющее курсор сессии.
func (r *EventRepo) Append(ctx context.Context, event *domain.Event) error {
	inserted, err := insertEvent(ctx, r.pool, event)
	if err != nil {
		return err
	}
	if !inserted {
		return ErrAlreadyExists
	}
	return nil
}

// ListBySession возвращает события сессии в хронологическом порядке.
func (r *EventRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Event, error) {
	query := `
		SELECT id, session_id, ts, type, flow_id, step_id, payload, revision
		FROM session_events
		WHERE session_id = $1
		ORDER BY ts ASC, seq ASC
	`
	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0)
	for rows.Next() {
		var e domain.Event
		var payloadJSON []byte
		if err := rows.Scan(&e.ID, &e.SessionID, &e.TS, &e.Type, &e.FlowID, &e.StepID, &payloadJSON, &e.Revision); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal(payloadJSON, &e.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// execer — общий интерфейс пула и транзакции.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// insertEvent вставляет событие. Возвращает false, если событие с тем же ID
// или той же ревизией сессии уже есть.
func insertEvent(ctx context.Context, db execer, event *domain.Event) (bool, error) {
	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return false, fmt.Errorf("marshal payload: %w", err)
	}

	query := `
		INSERT INTO session_events (id, session_id, ts, type, flow_id, step_id, payload, revision)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING
	`
	result, err := db.Exec(ctx, query,
		event.ID,
		event.SessionID,
		event.TS,
		event.Type,
		event.FlowID,
		event.StepID,
		payloadJSON,
		event.Revision,
	)
	if isPgError(err, pgForeignKeyViolation) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}
	return result.RowsAffected() == 1, nil
}
