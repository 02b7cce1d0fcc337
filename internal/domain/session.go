package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTTL — срок хранения сессии (рекомендательный, удаляет janitor).
const DefaultSessionTTL = 24 * time.Hour

// DefaultFlowID — flow, с которого начинается любой диалог.
const DefaultFlowID = "main"

// Поддерживаемые языки.
const (
	LanguageES = "es"
	LanguageEN = "en"
)

// IsSupportedLanguage проверяет код языка.
func IsSupportedLanguage(lang string) bool {
	return lang == LanguageES || lang == LanguageEN
}

// Session — состояние одного диалога.
//
// Сессия владеет собственной копией собранного шаблона (BotInstance),
// созданной один раз при старте. Курсор (CurrentFlowID, CurrentStepIndex)
// указывает на шаг, который будет выполнен следующим.
type Session struct {
	// ID — уникальный идентификатор сессии.
	ID uuid.UUID `json:"session_id"`

	// Language — язык диалога ("es", "en").
	Language string `json:"language"`

	// Specialty — отрасль, выбранная при создании (dental, legal, ...).
	Specialty string `json:"specialty,omitempty"`

	// Goal — цель бота (appointments, faqs, ...).
	Goal string `json:"goal,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt — CreatedAt + TTL. Core не проверяет, удаляет janitor.
	ExpiresAt time.Time `json:"expires_at"`

	// Lead — замаскированные данные, собранные в диалоге.
	// Значения — скаляры (строки, числа, bool).
	Lead map[string]any `json:"lead"`

	// BotInstance — собранный шаблон, приватный для сессии.
	BotInstance Template `json:"bot_instance"`

	// Status — текущий статус.
	Status SessionStatus `json:"status"`

	// CurrentFlowID — flow под курсором. Пустой — диалог ещё не начат.
	CurrentFlowID string `json:"current_flow_id,omitempty"`

	// CurrentStepIndex — индекс шага в CurrentFlowID.
	CurrentStepIndex int `json:"current_step_index"`

	// SummaryText — замаскированное резюме handoff.
	SummaryText string `json:"summary_text,omitempty"`

	// HandoffReady — резюме сформировано.
	HandoffReady bool `json:"handoff_ready"`

	// Revision — номер версии для optimistic concurrency.
	// Увеличивается при каждом применённом переходе.
	Revision int64 `json:"revision"`

	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsExpired возвращает true, если срок хранения истёк.
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// LeadField — значение, сохраняемое в lead.
type LeadField struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SessionPatch — изменения сессии после одного шага runner.
// Nil / пустые поля означают "без изменений".
type SessionPatch struct {
	CurrentFlowID    *string
	CurrentStepIndex *int
	Status           SessionStatus
	LeadField        *LeadField
}

// Apply применяет patch к сессии и увеличивает Revision.
// Статус меняется только по допустимому переходу.
func (s *Session) Apply(p SessionPatch, now time.Time) {
	if p.CurrentFlowID != nil {
		s.CurrentFlowID = *p.CurrentFlowID
	}
	if p.CurrentStepIndex != nil {
		s.CurrentStepIndex = *p.CurrentStepIndex
	}
	if p.Status != "" && s.Status.CanTransitionTo(p.Status) {
		s.Status = p.Status
	}
	if p.LeadField != nil {
		if s.Lead == nil {
			s.Lead = make(map[string]any)
		}
		s.Lead[p.LeadField.Key] = p.LeadField.Value
	}
	s.Revision++
	s.UpdatedAt = now
}
