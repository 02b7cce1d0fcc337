package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Botflow/internal/conversation"
)

// CreateSession создаёт сессию для пары specialty × goal.
// POST /api/v1/sessions
//
// Ключи тела кроме specialty, goal и language считаются demographics
// (clinicName, receptionEmail...) и должны быть скалярами.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	req := conversation.CreateSessionRequest{Demographics: make(map[string]any)}
	for key, value := range body {
		switch key {
		case fieldSpecialty, fieldGoal, fieldLanguage:
			s, ok := value.(string)
			if !ok && value != nil {
				BadRequest(w, fmt.Sprintf("%s must be a string", key))
				return
			}
			switch key {
			case fieldSpecialty:
				req.Specialty = s
			case fieldGoal:
				req.Goal = s
			default:
				req.Language = s
			}
		default:
			req.Demographics[key] = value
		}
	}

	session, err := h.service.CreateSession(r.Context(), req)
	if HandleServiceError(w, h.logger, err, "") {
		return
	}

	Created(w, CreateSessionResponse{
		SessionID: session.ID,
		Language:  session.Language,
		Goal:      session.Goal,
		ExpiresAt: session.ExpiresAt,
	})
}

// GetSession возвращает сессию, события и текущий шаг.
// GET /api/v1/sessions/{id}?include=bot_instance
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	view, err := h.service.GetSession(r.Context(), id)
	if HandleServiceError(w, h.logger, err, "session not found") {
		return
	}

	Success(w, SessionFromView(view, r.URL.Query().Get("include") == "bot_instance"))
}

// UpdateSession меняет язык сессии.
// PATCH /api/v1/sessions/{id}
func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var req UpdateSessionRequest
	if err := dec.Decode(&req); err != nil {
		BadRequest(w, "only language can be updated")
		return
	}
	if req.Language == "" {
		BadRequest(w, "language is required")
		return
	}

	err := h.service.UpdateLanguage(r.Context(), id, req.Language)
	if HandleServiceError(w, h.logger, err, "session not found") {
		return
	}

	view, err := h.service.GetSession(r.Context(), id)
	if HandleServiceError(w, h.logger, err, "session not found") {
		return
	}

	Success(w, SessionFromView(view, false))
}

// RecordEvent записывает событие и продвигает сессию.
// POST /api/v1/sessions/{id}/events
func (h *Handler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req RecordEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Type == "" {
		BadRequest(w, "type is required")
		return
	}

	result, err := h.service.RecordEvent(r.Context(), conversation.RecordEventRequest{
		SessionID: id,
		Type:      req.Type,
		FlowID:    req.FlowID,
		StepID:    req.StepID,
		Text:      req.Payload.Text,
		Data:      req.Payload.Data,
	})
	if HandleServiceError(w, h.logger, err, "session not found") {
		return
	}

	Success(w, EventResultToResponse(result))
}

// Handoff формирует резюме для оператора и завершает сессию.
// POST /api/v1/sessions/{id}/handoff
func (h *Handler) Handoff(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	result, err := h.service.Handoff(r.Context(), id)
	if HandleServiceError(w, h.logger, err, "session not found") {
		return
	}

	Success(w, result)
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}
