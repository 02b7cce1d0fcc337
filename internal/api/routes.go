package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Metrics(),
		Logging(h.logger),
	)

	// Sessions
	mux.Handle("POST /api/v1/sessions", chain(http.HandlerFunc(h.CreateSession)))
	mux.Handle("GET /api/v1/sessions/{id}", chain(http.HandlerFunc(h.GetSession)))
	mux.Handle("PATCH /api/v1/sessions/{id}", chain(http.HandlerFunc(h.UpdateSession)))
	mux.Handle("POST /api/v1/sessions/{id}/events", chain(http.HandlerFunc(h.RecordEvent)))
	mux.Handle("POST /api/v1/sessions/{id}/handoff", chain(http.HandlerFunc(h.Handoff)))

	// Templates
	mux.Handle("GET /api/v1/catalog", chain(http.HandlerFunc(h.GetCatalog)))
	mux.Handle("POST /api/v1/templates/compose", chain(http.HandlerFunc(h.ComposeTemplate)))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}
