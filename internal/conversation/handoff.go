package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Botflow/internal/domain"
	"github.com/shaiso/Botflow/internal/engine"
	"github.com/shaiso/Botflow/internal/masking"
	"github.com/shaiso/Botflow/internal/telemetry"
)

// HandoffResult — резюме, переданное оператору.
type HandoffResult struct {
	SessionID uuid.UUID `json:"session_id"`
	Summary   string    `json:"summary"`

	// AlreadyDone — резюме было сформировано раньше, повторно не сохранялось.
	AlreadyDone bool `json:"already_done"`
}

// Handoff формирует резюме сессии для оператора и завершает её.
//
// Резюме = summary_template на языке сессии, где {key} берётся из lead
// (приоритет) и переменных шаблона, отсутствующие значения — "N/A".
// Результат маскируется. Повторный вызов возвращает сохранённое резюме.
func (s *Service) Handoff(ctx context.Context, id uuid.UUID) (*HandoffResult, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if session.HandoffReady {
		return &HandoffResult{SessionID: id, Summary: session.SummaryText, AlreadyDone: true}, nil
	}

	summary := Summarize(session)
	if err := s.sessions.CompleteHandoff(ctx, id, summary, s.now()); err != nil {
		return nil, fmt.Errorf("complete handoff: %w", err)
	}

	telemetry.HandoffsCompleted.Inc()
	telemetry.WithSessionID(s.log(ctx), id.String()).Info("handoff completed",
		"lead_fields", len(session.Lead),
	)

	return &HandoffResult{SessionID: id, Summary: summary}, nil
}

// Summarize строит маскированное резюме сессии. Без summary_template — "".
func Summarize(session *domain.Session) string {
	handoff := session.BotInstance.Handoff
	if handoff == nil || handoff.SummaryTemplate == nil || handoff.SummaryTemplate.IsZero() {
		return ""
	}
	text := engine.RenderText(*handoff.SummaryTemplate, session.Language, engine.NewContext(*session), engine.SummaryFallback)
	return masking.Mask(text)
}

// ListPendingHandoffs возвращает сессии в handoff_ready, для которых резюме
// ещё не сформировано.
func (s *Service) ListPendingHandoffs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	ids, err := s.sessions.ListPendingHandoffs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending handoffs: %w", err)
	}
	return ids, nil
}

// PurgeExpired удаляет до limit сессий, у которых ExpiresAt < now,
// вместе с их событиями.
func (s *Service) PurgeExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("purge expired: %w", err)
	}
	if n > 0 {
		telemetry.SessionsPurged.Add(float64(n))
		s.log(ctx).Info("expired sessions purged", "count", n, "before", now)
	}
	return n, nil
}
