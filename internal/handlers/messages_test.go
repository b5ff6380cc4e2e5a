package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/aeturnal/claude-code-responses-proxy/internal/config"
	"github.com/aeturnal/claude-code-responses-proxy/internal/modelmap"
	"github.com/aeturnal/claude-code-responses-proxy/internal/observability"
	"github.com/aeturnal/claude-code-responses-proxy/internal/openaiclient"
)

func newTestHandler(t *testing.T, upstream *httptest.Server) *Handler {
	t.Helper()
	cfg := config.Defaults()
	cfg.OpenAIAPIKey = "test-key"
	if upstream != nil {
		cfg.OpenAIBaseURL = upstream.URL
	}
	client := openaiclient.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.RequestTimeout)
	table, err := modelmap.Parse(nil)
	if err != nil {
		t.Fatalf("modelmap.Parse: %v", err)
	}
	return New(cfg, client, table, observability.NoopSink{}, nil)
}

func newTestContext(body string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c, rec
}

const basicRequestBody = `{
  "model": "claude-3-5-sonnet",
  "messages": [{"role": "user", "content": "hello"}]
}`

func TestPostMessagesNonStreamReturnsMappedResponse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "resp_1",
			"status": "completed",
			"output": [{"type": "message", "role": "assistant", "content": [{"type": "output_text", "text": "hi there"}]}],
			"usage": {"input_tokens": 10, "output_tokens": 3}
		}`))
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream)
	c, rec := newTestContext(basicRequestBody)

	h.PostMessages(c)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"hi there"`) {
		t.Fatalf("body missing mapped text: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"claude-3-5-sonnet"`) {
		t.Fatalf("body should echo the inbound model, got: %s", rec.Body.String())
	}
}

func TestPostMessagesMissingAPIKeyFailsBeforeUpstreamCall(t *testing.T) {
	called := false
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream)
	h.Config.OpenAIAPIKey = ""
	c, rec := newTestContext(basicRequestBody)

	h.PostMessages(c)

	if called {
		t.Fatal("upstream should never be called when the API key is missing")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"authentication_error"`) {
		t.Fatalf("expected an authentication_error envelope, got: %s", rec.Body.String())
	}
}

func TestPostMessagesInvalidJSONIsRejectedBeforeMapping(t *testing.T) {
	h := newTestHandler(t, nil)
	c, rec := newTestContext(`{not json`)

	h.PostMessages(c)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"invalid_request_error"`) {
		t.Fatalf("expected an invalid_request_error envelope, got: %s", rec.Body.String())
	}
}

func TestPostMessagesUpstreamErrorMirrorsStatusAndBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "slow down"}}`))
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream)
	c, rec := newTestContext(basicRequestBody)

	h.PostMessages(c)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 mirrored from upstream", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"rate_limit_error"`) {
		t.Fatalf("expected a rate_limit_error envelope, got: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"slow down"`) {
		t.Fatalf("expected the upstream body echoed under openai, got: %s", rec.Body.String())
	}
}

func TestCountTokensNeverCallsUpstream(t *testing.T) {
	called := false
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream)
	h.Config.OpenAIAPIKey = "" // absent credential must not matter for counting
	c, rec := newTestContext(basicRequestBody)

	h.CountTokens(c)

	if called {
		t.Fatal("CountTokens must never call upstream")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"input_tokens"`) {
		t.Fatalf("expected an input_tokens field, got: %s", rec.Body.String())
	}
}

func TestCountTokensIsDeterministicAcrossCalls(t *testing.T) {
	h := newTestHandler(t, nil)

	c1, rec1 := newTestContext(basicRequestBody)
	h.CountTokens(c1)
	c2, rec2 := newTestContext(basicRequestBody)
	h.CountTokens(c2)

	if rec1.Body.String() != rec2.Body.String() {
		t.Fatalf("count_tokens should be deterministic: %q != %q", rec1.Body.String(), rec2.Body.String())
	}
}

func TestPostMessagesStreamAlwaysStreamsRegardlessOfBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		w.Write([]byte("event: response.created\ndata: {\"response\":{\"id\":\"resp_1\"}}\n\n"))
		flusher.Flush()
		w.Write([]byte("event: response.output_text.delta\ndata: {\"output_index\":0,\"delta\":\"hi\"}\n\n"))
		flusher.Flush()
		w.Write([]byte("event: response.completed\ndata: {\"response\":{\"status\":\"completed\"}}\n\n"))
		flusher.Flush()
		w.Write([]byte("data: [DONE]\n\n"))
		flusher.Flush()
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream)
	c, rec := newTestContext(basicRequestBody)

	h.PostMessagesStream(c)

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}
	if !strings.Contains(rec.Body.String(), "message_start") {
		t.Fatalf("expected a message_start frame, got: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "message_stop") {
		t.Fatalf("expected a message_stop frame, got: %s", rec.Body.String())
	}
}

func TestPostMessagesStreamPreStreamErrorReportsPlainJSON(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "bad key"}}`))
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream)
	c, rec := newTestContext(basicRequestBody)

	h.PostMessagesStream(c)

	if ct := rec.Header().Get("Content-Type"); strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("a pre-stream failure should not commit SSE headers, got Content-Type %q", ct)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 mirrored from upstream", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"authentication_error"`) {
		t.Fatalf("expected an authentication_error envelope, got: %s", rec.Body.String())
	}
}
