package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event — неизменяемая запись журнала сессии.
//
// События только добавляются, порядок — по TS по возрастанию.
// Журнал — единственный источник истории переписки.
type Event struct {
	// ID — уникальный идентификатор события.
	ID uuid.UUID `json:"event_id"`

	// SessionID — сессия, к которой относится событие.
	SessionID uuid.UUID `json:"session_id"`

	// TS — время создания.
	TS time.Time `json:"ts"`

	// Type — тип события.
	Type EventType `json:"type"`

	// FlowID — flow, в котором возникло событие.
	FlowID string `json:"flow_id,omitempty"`

	// StepID — шаг, в котором возникло событие.
	StepID string `json:"step_id,omitempty"`

	// Payload — замаскированное содержимое.
	Payload EventPayload `json:"payload"`

	// Revision — ревизия сессии, к которой применено событие.
	// Nil для событий, не двигавших курсор.
	Revision *int64 `json:"revision,omitempty"`
}

// EventPayload — содержимое события.
type EventPayload struct {
	// Text — замаскированный текст.
	Text string `json:"text,omitempty"`

	// Data — дополнительные данные (замаскированные).
	Data map[string]any `json:"data,omitempty"`
}
