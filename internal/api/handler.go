package api

import (
	"log/slog"

	"github.com/shaiso/Botflow/internal/conversation"
	"github.com/shaiso/Botflow/internal/templates"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	service *conversation.Service
	catalog *templates.Catalog
	logger  *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Service *conversation.Service
	Catalog *templates.Catalog // default: Service.Catalog()
	Logger  *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	catalog := cfg.Catalog
	if catalog == nil && cfg.Service != nil {
		catalog = cfg.Service.Catalog()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		service: cfg.Service,
		catalog: catalog,
		logger:  logger.With("component", "api"),
	}
}
