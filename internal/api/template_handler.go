package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/Botflow/internal/engine"
)

// GetCatalog возвращает известные отрасли и цели.
// GET /api/v1/catalog
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	Success(w, CatalogResponse{
		Specialties: h.catalog.Specialties(),
		Goals:       h.catalog.Goals(),
	})
}

// ComposeTemplate собирает шаблон без создания сессии.
// POST /api/v1/templates/compose
//
// Проблемы сборки (недостижимые flows, висячие ссылки) возвращаются
// в issues, а не как ошибка запроса.
func (h *Handler) ComposeTemplate(w http.ResponseWriter, r *http.Request) {
	var req ComposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	tmpl, sel := h.catalog.Compose(req.Specialty, req.Goal, req.Variables)

	Success(w, ComposeResponse{
		Specialty: sel.Specialty,
		Goal:      sel.Goal,
		Fragments: sel.Names,
		Template:  tmpl,
		Issues:    IssuesFromValidation(engine.Validate(&tmpl)),
	})
}
