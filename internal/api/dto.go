package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Botflow/internal/conversation"
	"github.com/shaiso/Botflow/internal/domain"
	"github.com/shaiso/Botflow/internal/engine"
)

// Session DTOs

// Зарезервированные ключи тела POST /sessions; остальные — demographics.
const (
	fieldSpecialty = "specialty"
	fieldGoal      = "goal"
	fieldLanguage  = "language"
)

// CreateSessionResponse — ответ на создание сессии.
type CreateSessionResponse struct {
	SessionID uuid.UUID `json:"session_id"`
	Language  string    `json:"language"`
	Goal      string    `json:"goal"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UpdateSessionRequest — PATCH сессии. Разрешено менять только язык.
type UpdateSessionRequest struct {
	Language string `json:"language"`
}

// SessionResponse — сессия с журналом и текущим шагом.
type SessionResponse struct {
	ID               uuid.UUID                  `json:"session_id"`
	Language         string                     `json:"language"`
	Specialty        string                     `json:"specialty,omitempty"`
	Goal             string                     `json:"goal,omitempty"`
	Status           domain.SessionStatus       `json:"status"`
	CurrentFlowID    string                     `json:"current_flow_id"`
	CurrentStepIndex int                        `json:"current_step_index"`
	Lead             map[string]any             `json:"lead"`
	SummaryText      string                     `json:"summary_text,omitempty"`
	HandoffReady     bool                       `json:"handoff_ready"`
	Revision         int64                      `json:"revision"`
	CreatedAt        time.Time                  `json:"created_at"`
	ExpiresAt        time.Time                  `json:"expires_at"`
	Expired          bool                       `json:"expired"`
	CurrentStep      *conversation.RenderedStep `json:"current_step,omitempty"`
	Events           []domain.Event             `json:"events"`
	BotInstance      *domain.Template           `json:"bot_instance,omitempty"`
}

// SessionFromView конвертирует conversation.SessionView в SessionResponse.
// Шаблон бота включается только по запросу (?include=bot_instance).
func SessionFromView(v *conversation.SessionView, withTemplate bool) SessionResponse {
	s := v.Session
	resp := SessionResponse{
		ID:               s.ID,
		Language:         s.Language,
		Specialty:        s.Specialty,
		Goal:             s.Goal,
		Status:           s.Status,
		CurrentFlowID:    s.CurrentFlowID,
		CurrentStepIndex: s.CurrentStepIndex,
		Lead:             s.Lead,
		SummaryText:      s.SummaryText,
		HandoffReady:     s.HandoffReady,
		Revision:         s.Revision,
		CreatedAt:        s.CreatedAt,
		ExpiresAt:        s.ExpiresAt,
		Expired:          v.Expired,
		CurrentStep:      v.CurrentStep,
		Events:           v.Events,
	}
	if resp.Lead == nil {
		resp.Lead = map[string]any{}
	}
	if resp.Events == nil {
		resp.Events = []domain.Event{}
	}
	if withTemplate {
		resp.BotInstance = &s.BotInstance
	}
	return resp
}

// Event DTOs

// RecordEventRequest — событие чата.
type RecordEventRequest struct {
	Type    domain.EventType `json:"type"`
	FlowID  string           `json:"flow_id,omitempty"`
	StepID  string           `json:"step_id,omitempty"`
	Payload EventPayload     `json:"payload"`
}

// EventPayload — содержимое события от клиента (до маскирования).
type EventPayload struct {
	Text string         `json:"text,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// RecordEventResponse — результат записи события.
type RecordEventResponse struct {
	EventID    *uuid.UUID         `json:"event_id,omitempty"`
	Applied    bool               `json:"applied"`
	Duplicate  bool               `json:"duplicate"`
	Transition *engine.Transition `json:"transition,omitempty"`
}

// EventResultToResponse конвертирует conversation.EventResult в RecordEventResponse.
func EventResultToResponse(r *conversation.EventResult) RecordEventResponse {
	resp := RecordEventResponse{
		Applied:    r.Applied,
		Duplicate:  r.Duplicate,
		Transition: r.Transition,
	}
	if r.Event != nil {
		id := r.Event.ID
		resp.EventID = &id
	}
	return resp
}

// Template DTOs

// CatalogResponse — известные отрасли и цели.
type CatalogResponse struct {
	Specialties []string `json:"specialties"`
	Goals       []string `json:"goals"`
}

// ComposeRequest — предпросмотр сборки шаблона.
type ComposeRequest struct {
	Specialty string         `json:"specialty"`
	Goal      string         `json:"goal"`
	Variables map[string]any `json:"variables,omitempty"`
}

// ComposeResponse — собранный шаблон и найденные проблемы.
type ComposeResponse struct {
	Specialty string            `json:"specialty,omitempty"`
	Goal      string            `json:"goal"`
	Fragments []string          `json:"fragments"`
	Template  domain.Template   `json:"template"`
	Issues    []ValidationIssue `json:"issues"`
}

// ValidationIssue — проблема собранного шаблона.
type ValidationIssue struct {
	FlowID  string `json:"flow_id,omitempty"`
	StepID  string `json:"step_id,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// IssuesFromValidation конвертирует ошибки engine.Validate.
func IssuesFromValidation(errs []*engine.ValidationError) []ValidationIssue {
	issues := make([]ValidationIssue, len(errs))
	for i, e := range errs {
		issues[i] = ValidationIssue{
			FlowID:  e.FlowID,
			StepID:  e.StepID,
			Field:   e.Field,
			Message: e.Message,
		}
	}
	return issues
}
