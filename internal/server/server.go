package server

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/aeturnal/claude-code-responses-proxy/internal/config"
	"github.com/aeturnal/claude-code-responses-proxy/internal/handlers"
	"github.com/aeturnal/claude-code-responses-proxy/internal/modelmap"
	"github.com/aeturnal/claude-code-responses-proxy/internal/observability"
	"github.com/aeturnal/claude-code-responses-proxy/internal/openaiclient"
)

// Server wraps the Gin engine and its dependencies.
type Server struct {
	Engine  *gin.Engine
	Handler *handlers.Handler
	Client  *openaiclient.Client
}

// New constructs a configured Gin server with routes and middleware.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Correlation-ID"},
		ExposeHeaders:    []string{"X-Correlation-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	table, err := modelmap.Parse([]byte(cfg.ModelMapJSON))
	if err != nil {
		return nil, fmt.Errorf("parse MODEL_MAP_JSON: %w", err)
	}

	client := openaiclient.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.RequestTimeout)
	sink := observability.Sink(observability.NoopSink{})
	if logger != nil {
		sink = observability.NewSlogSink(logger)
	}
	handler := handlers.New(cfg, client, table, sink, logger)

	r.GET("/health", handler.Health)
	r.GET("/", handler.Root)

	r.POST("/v1/messages", handler.PostMessages)
	r.POST("/v1/messages/stream", handler.PostMessagesStream)
	r.POST("/v1/messages/count_tokens", handler.CountTokens)
	r.POST("/v1/messages/token_count", handler.CountTokens)

	return &Server{Engine: r, Handler: handler, Client: client}, nil
}

// Run starts the HTTP server.
func (s *Server) Run(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	return s.Engine.Run(addr)
}

