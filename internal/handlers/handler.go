package handlers

import (
	"log/slog"

	"github.com/aeturnal/claude-code-responses-proxy/internal/config"
	"github.com/aeturnal/claude-code-responses-proxy/internal/modelmap"
	"github.com/aeturnal/claude-code-responses-proxy/internal/observability"
	"github.com/aeturnal/claude-code-responses-proxy/internal/openaiclient"
)

// Handler aggregates dependencies used by HTTP handlers.
type Handler struct {
	Config    config.Config
	Client    *openaiclient.Client
	ModelMap  *modelmap.Table
	Sink      observability.Sink
	Logger    *slog.Logger
}

// New constructs a Handler.
func New(cfg config.Config, client *openaiclient.Client, modelMap *modelmap.Table, sink observability.Sink, logger *slog.Logger) *Handler {
	return &Handler{Config: cfg, Client: client, ModelMap: modelMap, Sink: sink, Logger: logger}
}
