package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aeturnal/claude-code-responses-proxy/pkg/types"
)

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, types.HealthResponse{
		Status:    "ok",
		Service:   "messages-gateway",
		Version:   "1.0.0-go",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		TechStack: "gin + go",
	})
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Claude Messages to OpenAI Responses gateway",
		"description": "Translates Anthropic Messages API requests into OpenAI Responses API calls and back",
		"version":     "1.0.0-go",
		"endpoints": gin.H{
			"health":       "/health",
			"messages":     "/v1/messages",
			"stream":       "/v1/messages/stream",
			"count_tokens": "/v1/messages/count_tokens",
			"token_count":  "/v1/messages/token_count",
		},
	})
}
