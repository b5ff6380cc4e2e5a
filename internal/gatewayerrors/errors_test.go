package gatewayerrors

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestNewBuildsTheAnthropicErrorEnvelopeShape(t *testing.T) {
	env := New(KindInvalidRequest, "bad request")

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if generic["type"] != "error" {
		t.Fatalf("top-level type = %v, want %q", generic["type"], "error")
	}
	errObj, ok := generic["error"].(map[string]any)
	if !ok {
		t.Fatalf("error field is not an object: %v", generic["error"])
	}
	if errObj["type"] != string(KindInvalidRequest) {
		t.Fatalf("error.type = %v, want %q", errObj["type"], KindInvalidRequest)
	}
	if errObj["message"] != "bad request" {
		t.Fatalf("error.message = %v, want %q", errObj["message"], "bad request")
	}
	if _, present := errObj["openai"]; present {
		t.Fatalf("openai field should be omitted when no upstream body was attached")
	}
}

func TestWithUpstreamAttachesTheRawUpstreamBody(t *testing.T) {
	upstream := json.RawMessage(`{"error":{"message":"rate limited"}}`)
	env := WithUpstream(KindRateLimit, "too many requests", upstream)

	if string(env.Error.OpenAI) != string(upstream) {
		t.Fatalf("Error.OpenAI = %s, want %s", env.Error.OpenAI, upstream)
	}
}

func TestHTTPStatusMatchesEachKind(t *testing.T) {
	cases := map[Kind]int{
		KindInvalidRequest: http.StatusBadRequest,
		KindAuthentication: http.StatusUnauthorized,
		KindPermission:     http.StatusForbidden,
		KindNotFound:       http.StatusNotFound,
		KindRateLimit:      http.StatusTooManyRequests,
		KindAPIError:       http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestMirrorStatusPassesThroughUpstream4xxAnd5xx(t *testing.T) {
	if got := MirrorStatus(http.StatusTooManyRequests); got != http.StatusTooManyRequests {
		t.Fatalf("MirrorStatus(429) = %d, want 429", got)
	}
	if got := MirrorStatus(http.StatusBadGateway); got != http.StatusBadGateway {
		t.Fatalf("MirrorStatus(502) = %d, want 502", got)
	}
}

func TestMirrorStatusFallsBackToInternalErrorOutsideTheHTTPErrorRange(t *testing.T) {
	if got := MirrorStatus(0); got != http.StatusInternalServerError {
		t.Fatalf("MirrorStatus(0) = %d, want 500", got)
	}
	if got := MirrorStatus(http.StatusOK); got != http.StatusInternalServerError {
		t.Fatalf("MirrorStatus(200) = %d, want 500 (not itself a valid error mirror)", got)
	}
}
