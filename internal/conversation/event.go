package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/Botflow/internal/domain"
	"github.com/shaiso/Botflow/internal/engine"
	"github.com/shaiso/Botflow/internal/masking"
	"github.com/shaiso/Botflow/internal/repo"
	"github.com/shaiso/Botflow/internal/telemetry"
)

// RecordEventRequest — событие от клиента чата.
type RecordEventRequest struct {
	SessionID uuid.UUID
	Type      domain.EventType
	FlowID    string
	StepID    string
	Text      string
	Data      map[string]any
}

// EventResult — итог записи события.
type EventResult struct {
	// Event — записанное событие (nil для дубликата).
	Event *domain.Event `json:"event,omitempty"`

	// Transition — применённый переход, если событие продвинуло сессию.
	Transition *engine.Transition `json:"transition,omitempty"`

	// Applied — переход применён к сессии.
	Applied bool `json:"applied"`

	// Duplicate — автоматическое событие для уже пройденного шага, проигнорировано.
	Duplicate bool `json:"duplicate"`
}

// RecordEvent записывает событие и, если оно продвигает сессию, применяет
// переход Runner атомарно с записью.
//
// Продвигают сессию user_message, bot_message и system_handoff, и только
// пока сессия active. В Runner передаётся сырой ввод user_message, в журнал
// и lead попадает только маскированный текст.
//
// Автоматические события (bot_message, system_handoff) с StepID, который
// уже не под курсором, считаются повтором и игнорируются.
//
// При конфликте ревизий сессия перечитывается и переход пересчитывается.
func (s *Service) RecordEvent(ctx context.Context, req RecordEventRequest) (*EventResult, error) {
	if req.SessionID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing session id", ErrInvalidEvent)
	}
	if !req.Type.IsValid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, req.Type)
	}

	event := &domain.Event{
		ID:        s.newID(),
		SessionID: req.SessionID,
		Type:      req.Type,
		FlowID:    req.FlowID,
		StepID:    req.StepID,
		Payload: domain.EventPayload{
			Text: masking.Mask(req.Text),
			Data: masking.MaskDeep(req.Data),
		},
	}

	logger := telemetry.WithSessionID(s.log(ctx), req.SessionID.String())

	if !req.Type.AdvancesSession() {
		event.TS = s.now()
		if err := s.events.Append(ctx, event); err != nil {
			return nil, fmt.Errorf("append event: %w", err)
		}
		telemetry.EventsRecorded.WithLabelValues(string(req.Type)).Inc()
		return &EventResult{Event: event}, nil
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		session, err := s.sessions.GetByID(ctx, req.SessionID)
		if err != nil {
			return nil, fmt.Errorf("get session: %w", err)
		}

		if req.Type.IsAutomatic() && !addressesStep(session, req.FlowID, req.StepID) {
			telemetry.DuplicateEvents.Inc()
			logger.Debug("duplicate automatic event ignored",
				"type", req.Type,
				"flow_id", req.FlowID,
				"step_id", req.StepID,
			)
			return &EventResult{Duplicate: true}, nil
		}

		event.TS = s.now()
		event.Revision = nil

		if session.Status.IsTerminal() {
			if err := s.events.Append(ctx, event); err != nil {
				return nil, fmt.Errorf("append event: %w", err)
			}
			telemetry.EventsRecorded.WithLabelValues(string(req.Type)).Inc()
			return &EventResult{Event: event}, nil
		}

		var input string
		if req.Type == domain.EventTypeUserMessage {
			input = req.Text
		}
		transition := engine.Advance(*session, input)
		patch := s.patchFor(session, transition)

		err = s.sessions.Advance(ctx, event, session.Revision, patch)
		if errors.Is(err, repo.ErrConflict) {
			telemetry.RevisionConflicts.Inc()
			logger.Debug("revision conflict, retrying", "attempt", attempt, "revision", session.Revision)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("advance session: %w", err)
		}

		status := session.Status
		if patch.Status != "" {
			status = patch.Status
		}
		telemetry.EventsRecorded.WithLabelValues(string(req.Type)).Inc()
		telemetry.Transitions.WithLabelValues(string(status)).Inc()

		if patch.CurrentFlowID != nil {
			logger = telemetry.WithFlowID(logger, *patch.CurrentFlowID)
		}
		logger.Debug("transition applied",
			"type", req.Type,
			"status", status,
			"captured", patch.LeadField != nil,
		)

		if status == domain.SessionStatusHandoffReady {
			s.notifyHandoffReady(ctx, req.SessionID)
		}

		return &EventResult{Event: event, Transition: &transition, Applied: true}, nil
	}

	return nil, fmt.Errorf("advance session after %d attempts: %w", s.maxAttempts, repo.ErrConflict)
}

// ListEvents возвращает журнал событий сессии.
func (s *Service) ListEvents(ctx context.Context, sessionID uuid.UUID) ([]domain.Event, error) {
	events, err := s.events.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// patchFor переводит переход в patch сессии: захваченное значение
// маскируется, запрещённая смена статуса отбрасывается.
func (s *Service) patchFor(session *domain.Session, t engine.Transition) domain.SessionPatch {
	patch := t.Patch()
	if patch.LeadField != nil {
		patch.LeadField.Value = masking.Mask(patch.LeadField.Value)
	}
	if patch.Status != "" && !session.Status.CanTransitionTo(patch.Status) {
		patch.Status = ""
	}
	if patch.Status == session.Status {
		patch.Status = ""
	}
	return patch
}

// addressesStep проверяет, что курсор сессии стоит на шаге stepID.
// Пустой stepID не проверяется.
func addressesStep(session *domain.Session, flowID, stepID string) bool {
	if stepID == "" {
		return true
	}
	step, ok := engine.CurrentStep(*session)
	if !ok || step.ID != stepID {
		return false
	}
	if flowID == "" {
		return true
	}
	current := session.CurrentFlowID
	if current == "" {
		current = domain.DefaultFlowID
	}
	return current == flowID
}

// notifyHandoffReady сообщает о готовности к handoff. Ошибка только логируется:
// worker подберёт сессию опросом.
func (s *Service) notifyHandoffReady(ctx context.Context, sessionID uuid.UUID) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishHandoffReady(ctx, sessionID); err != nil {
		s.log(ctx).Warn("failed to publish handoff ready",
			"session_id", sessionID,
			"error", err,
		)
	}
}
