package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aeturnal/claude-code-responses-proxy/internal/converter"
	"github.com/aeturnal/claude-code-responses-proxy/internal/gatewayerrors"
	"github.com/aeturnal/claude-code-responses-proxy/internal/observability"
	"github.com/aeturnal/claude-code-responses-proxy/internal/openaiclient"
	"github.com/aeturnal/claude-code-responses-proxy/internal/stream"
	"github.com/aeturnal/claude-code-responses-proxy/internal/tokencount"
	"github.com/aeturnal/claude-code-responses-proxy/pkg/types"
)

// PostMessages handles POST /v1/messages: non-streaming unless the body
// sets stream=true.
func (h *Handler) PostMessages(c *gin.Context) {
	var req types.MessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, gatewayerrors.KindInvalidRequest, err.Error())
		return
	}
	if req.Stream {
		h.serveStream(c, req)
		return
	}
	h.serveNonStream(c, req)
}

// PostMessagesStream handles POST /v1/messages/stream: always streams
// regardless of the body's stream field.
func (h *Handler) PostMessagesStream(c *gin.Context) {
	var req types.MessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, gatewayerrors.KindInvalidRequest, err.Error())
		return
	}
	h.serveStream(c, req)
}

// CountTokens handles POST /v1/messages/count_tokens and its
// /v1/messages/token_count alias: validate -> map -> count, no upstream
// call.
func (h *Handler) CountTokens(c *gin.Context) {
	var req types.TokenCountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, gatewayerrors.KindInvalidRequest, err.Error())
		return
	}

	upstreamModel := h.resolveModel(req.Model)
	mapped, _, err := converter.ConvertAnthropicToOpenAI(types.MessagesRequest{
		Model:      req.Model,
		Messages:   req.Messages,
		System:     req.System,
		Tools:      req.Tools,
		ToolChoice: req.ToolChoice,
	}, upstreamModel)
	if err != nil {
		h.respondMappingError(c, err)
		return
	}

	count, err := tokencount.Count(mapped)
	if err != nil {
		h.respondError(c, gatewayerrors.KindAPIError, err.Error())
		return
	}

	c.JSON(http.StatusOK, types.TokenCountResponse{InputTokens: count})
}

func (h *Handler) resolveModel(inbound string) string {
	def := h.Config.OpenAIDefaultModel
	if def == "" {
		def = inbound
	}
	return h.ModelMap.Resolve(inbound, def)
}

func (h *Handler) serveNonStream(c *gin.Context, req types.MessagesRequest) {
	if h.Config.OpenAIAPIKey == "" {
		h.respondError(c, gatewayerrors.KindAuthentication, "missing OPENAI_API_KEY credential")
		return
	}

	upstreamModel := h.resolveModel(req.Model)
	mapped, names, err := converter.ConvertAnthropicToOpenAI(req, upstreamModel)
	if err != nil {
		h.respondMappingError(c, err)
		return
	}

	correlationID := correlationIDFromRequest(c)
	ctx := c.Request.Context()

	h.Sink.Log(ctx, "upstream_request", observability.Fields{"correlation_id": correlationID, "model": upstreamModel})
	env, err := h.Client.CreateResponse(ctx, correlationID, mapped)
	if err != nil {
		h.respondUpstreamError(c, err)
		return
	}

	resp := converter.ConvertOpenAIToAnthropic(*env, req.Model, names)
	h.Sink.Log(ctx, "response", observability.Fields{"correlation_id": correlationID, "stop_reason": resp.StopReason})
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) serveStream(c *gin.Context, req types.MessagesRequest) {
	if h.Config.OpenAIAPIKey == "" {
		h.respondError(c, gatewayerrors.KindAuthentication, "missing OPENAI_API_KEY credential")
		return
	}

	upstreamModel := h.resolveModel(req.Model)
	mapped, names, err := converter.ConvertAnthropicToOpenAI(req, upstreamModel)
	if err != nil {
		h.respondMappingError(c, err)
		return
	}

	localTokens, err := tokencount.Count(mapped)
	if err != nil {
		h.respondError(c, gatewayerrors.KindAPIError, err.Error())
		return
	}

	correlationID := correlationIDFromRequest(c)
	ctx := c.Request.Context()

	sw := newSSEWriter(c)
	tr := stream.New(ctx, req.Model, localTokens, sw.Write, h.Sink, correlationID, names)

	h.Sink.Log(ctx, "upstream_request", observability.Fields{"correlation_id": correlationID, "model": upstreamModel, "stream": true})
	upstream, err := h.Client.OpenStream(ctx, correlationID, mapped)
	if err != nil {
		h.handleStreamOpenError(c, tr, sw, err)
		return
	}
	defer upstream.Close()

	for {
		event, err := upstream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				_ = tr.Finalize()
				return
			}
			_ = tr.Fail(gatewayerrors.KindAPIError, err.Error(), nil)
			return
		}

		if handleErr := tr.HandleEvent(event.Type, event.Data); handleErr != nil {
			var terminal *stream.TerminalError
			if errors.As(handleErr, &terminal) {
				if !sw.started {
					h.respondError(c, terminal.Kind, terminal.Message)
				}
				return
			}
			// Downstream write failed (client disconnected): cancel the
			// upstream read and stop without further events.
			return
		}
	}
}

func (h *Handler) handleStreamOpenError(c *gin.Context, tr *stream.Translator, sw *sseWriter, err error) {
	var upstreamErr *openaiclient.UpstreamError
	if errors.As(err, &upstreamErr) {
		kind := gatewayerrors.KindForUpstreamStatus(upstreamErr.StatusCode)
		termErr := tr.Fail(kind, "upstream request failed", upstreamErr.Body)
		var terminal *stream.TerminalError
		if errors.As(termErr, &terminal) && !sw.started {
			h.respondUpstreamError(c, err)
		}
		return
	}
	termErr := tr.Fail(gatewayerrors.KindAPIError, err.Error(), nil)
	var terminal *stream.TerminalError
	if errors.As(termErr, &terminal) && !sw.started {
		h.respondError(c, gatewayerrors.KindAPIError, err.Error())
	}
}

func (h *Handler) respondMappingError(c *gin.Context, err error) {
	var mapErr *converter.MappingError
	if errors.As(err, &mapErr) {
		h.respondError(c, gatewayerrors.KindInvalidRequest, mapErr.Message)
		return
	}
	h.respondError(c, gatewayerrors.KindInvalidRequest, err.Error())
}

func (h *Handler) respondUpstreamError(c *gin.Context, err error) {
	var upstreamErr *openaiclient.UpstreamError
	if errors.As(err, &upstreamErr) {
		kind := gatewayerrors.KindForUpstreamStatus(upstreamErr.StatusCode)
		env := gatewayerrors.WithUpstream(kind, "upstream request failed", upstreamErr.Body)
		c.JSON(gatewayerrors.MirrorStatus(upstreamErr.StatusCode), env)
		return
	}
	h.respondError(c, gatewayerrors.KindAPIError, err.Error())
}

func (h *Handler) respondError(c *gin.Context, kind gatewayerrors.Kind, message string) {
	env := gatewayerrors.New(kind, message)
	c.JSON(gatewayerrors.HTTPStatus(kind), env)
}

func correlationIDFromRequest(c *gin.Context) string {
	if id := c.GetHeader("X-Correlation-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

// sseWriter lazily commits the HTTP response as text/event-stream only on
// the first actual frame write, so an error discovered before any frame
// is sent can still be reported as a normal HTTP JSON error response.
type sseWriter struct {
	c       *gin.Context
	started bool
}

func newSSEWriter(c *gin.Context) *sseWriter {
	return &sseWriter{c: c}
}

func (w *sseWriter) Write(eventType string, data []byte) error {
	if !w.started {
		w.started = true
		w.c.Writer.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		w.c.Writer.Header().Set("Cache-Control", "no-cache")
		w.c.Writer.Header().Set("Connection", "keep-alive")
		w.c.Writer.WriteHeader(http.StatusOK)
	}
	if _, err := w.c.Writer.Write([]byte("event: " + eventType + "\n")); err != nil {
		return err
	}
	if _, err := w.c.Writer.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.c.Writer.Write(data); err != nil {
		return err
	}
	if _, err := w.c.Writer.Write([]byte("\n\n")); err != nil {
		return err
	}
	flusher, ok := w.c.Writer.(http.Flusher)
	if !ok {
		return nil
	}
	flusher.Flush()
	return nil
}
