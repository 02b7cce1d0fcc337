package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Botflow/internal/domain"
	"github.com/shaiso/Botflow/internal/engine"
	"github.com/shaiso/Botflow/internal/masking"
	"github.com/shaiso/Botflow/internal/telemetry"
)

// CreateSessionRequest — параметры новой сессии.
type CreateSessionRequest struct {
	Specialty string
	Goal      string
	Language  string

	// Demographics — произвольные скалярные поля (clinicName, receptionEmail...).
	// Становятся переменными шаблона и полями lead (после маскирования).
	Demographics map[string]any
}

// SessionView — сессия с журналом и отрисованным текущим шагом.
type SessionView struct {
	Session     *domain.Session `json:"session"`
	Events      []domain.Event  `json:"events"`
	CurrentStep *RenderedStep   `json:"current_step,omitempty"`

	// Expired — срок хранения истёк, сессию удалит janitor.
	Expired bool `json:"expired"`
}

// RenderedStep — текущий шаг, готовый к показу в чате.
type RenderedStep struct {
	FlowID      string           `json:"flow_id"`
	StepIndex   int              `json:"step_index"`
	ID          string           `json:"id"`
	Type        domain.StepType  `json:"type"`
	Text        string           `json:"text"`
	Options     []RenderedOption `json:"options,omitempty"`
	AwaitsInput bool             `json:"awaits_input"`
}

// RenderedOption — вариант ответа с локализованной подписью.
type RenderedOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// CreateSession собирает шаблон бота и создаёт сессию в курсоре (main, 0).
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*domain.Session, error) {
	language := req.Language
	if language == "" {
		language = s.defaultLanguage
	}
	if !domain.IsSupportedLanguage(language) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLanguage, language)
	}

	for key, value := range req.Demographics {
		if !isScalar(value) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidDemographics, key)
		}
	}
	demographics := masking.MaskDeep(req.Demographics)
	if demographics == nil {
		demographics = make(map[string]any)
	}

	sel := s.catalog.Select(req.Specialty, req.Goal)

	variables := domain.CloneValues(demographics)
	variables["specialty"] = req.Specialty
	variables["goal"] = sel.Goal

	tmpl := engine.Compose(sel.Fragments, engine.ComposeOptions{
		Routes:    sel.Routes,
		Variables: variables,
	})

	now := s.now()
	session := &domain.Session{
		ID:               s.newID(),
		Language:         language,
		Specialty:        req.Specialty,
		Goal:             sel.Goal,
		CreatedAt:        now,
		UpdatedAt:        now,
		ExpiresAt:        now.Add(s.ttl),
		Lead:             demographics,
		BotInstance:      tmpl,
		Status:           domain.SessionStatusActive,
		CurrentFlowID:    domain.DefaultFlowID,
		CurrentStepIndex: 0,
	}

	logger := telemetry.WithSessionID(s.log(ctx), session.ID.String())
	for _, issue := range engine.Validate(&tmpl) {
		logger.Warn("composed template issue", "error", issue.Error())
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	telemetry.SessionsCreated.WithLabelValues(sel.Specialty, sel.Goal).Inc()
	logger.Info("session created",
		"specialty", req.Specialty,
		"goal", sel.Goal,
		"fragments", sel.Names,
		"language", language,
	)

	return session, nil
}

// GetSession возвращает сессию, её события (по возрастанию ts) и текущий шаг.
func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (*SessionView, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	events, err := s.ListEvents(ctx, id)
	if err != nil {
		return nil, err
	}

	return &SessionView{
		Session:     session,
		Events:      events,
		CurrentStep: RenderCurrentStep(session),
		Expired:     session.IsExpired(s.now()),
	}, nil
}

// UpdateLanguage меняет язык сессии. Допустимы только es и en.
func (s *Service) UpdateLanguage(ctx context.Context, id uuid.UUID, language string) error {
	if !domain.IsSupportedLanguage(language) {
		return fmt.Errorf("%w: %q", ErrInvalidLanguage, language)
	}
	if err := s.sessions.UpdateLanguage(ctx, id, language, s.now()); err != nil {
		return fmt.Errorf("update language: %w", err)
	}
	s.log(ctx).Debug("session language updated",
		slog.String("session_id", id.String()),
		slog.String("language", language),
	)
	return nil
}

// RenderCurrentStep отрисовывает шаг под курсором сессии.
// Возвращает nil, если сессия завершена или курсор не указывает на шаг.
func RenderCurrentStep(session *domain.Session) *RenderedStep {
	if session.Status == domain.SessionStatusCompleted {
		return nil
	}
	step, ok := engine.CurrentStep(*session)
	if !ok {
		return nil
	}

	ctx := engine.NewContext(*session)
	flowID := session.CurrentFlowID
	if flowID == "" {
		flowID = domain.DefaultFlowID
	}

	rendered := &RenderedStep{
		FlowID:      flowID,
		StepIndex:   session.CurrentStepIndex,
		ID:          step.ID,
		Type:        step.Type,
		Text:        engine.RenderText(step.Text, session.Language, ctx, engine.ChatFallback),
		AwaitsInput: step.Type.AwaitsInput(),
	}
	for _, opt := range step.Options {
		rendered.Options = append(rendered.Options, RenderedOption{
			Value: opt.Value,
			Label: engine.RenderText(opt.Label, session.Language, ctx, engine.ChatFallback),
		})
	}
	return rendered
}

// isScalar — строка, число, bool или nil.
func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool,
		int, int32, int64, uint, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}
