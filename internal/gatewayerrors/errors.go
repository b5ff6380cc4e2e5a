// Package gatewayerrors builds the Anthropic-style error envelope this
// gateway returns for both HTTP error responses and mid-stream SSE error
// frames, and maps upstream HTTP statuses to the envelope's error kind.
package gatewayerrors

import (
	"encoding/json"
	"net/http"

	"github.com/aeturnal/claude-code-responses-proxy/pkg/types"
)

// Kind enumerates the error "type" values this gateway emits.
type Kind string

const (
	KindInvalidRequest Kind = "invalid_request_error"
	KindAuthentication Kind = "authentication_error"
	KindPermission     Kind = "permission_error"
	KindNotFound       Kind = "not_found_error"
	KindRateLimit      Kind = "rate_limit_error"
	KindAPIError       Kind = "api_error"
)

// New builds a bare envelope with the given kind and message.
func New(kind Kind, message string) types.ErrorEnvelope {
	return types.ErrorEnvelope{
		Type: "error",
		Error: types.ErrorDetails{
			Type:    string(kind),
			Message: message,
		},
	}
}

// WithUpstream attaches the raw upstream error body under "openai".
func WithUpstream(kind Kind, message string, upstreamBody json.RawMessage) types.ErrorEnvelope {
	env := New(kind, message)
	env.Error.OpenAI = upstreamBody
	return env
}

// HTTPStatus returns the HTTP status this gateway pairs with a given kind
// when no upstream status is available to mirror, per spec §7's table.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindPermission:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// KindForUpstreamStatus maps an upstream HTTP status to the downstream
// error kind, mirroring status where a dedicated kind exists and falling
// back to api_error otherwise.
func KindForUpstreamStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized:
		return KindAuthentication
	case http.StatusForbidden:
		return KindPermission
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusTooManyRequests:
		return KindRateLimit
	default:
		return KindAPIError
	}
}

// MirrorStatus returns the HTTP status to use for an upstream-originated
// error: the upstream status itself when it is a 4xx/5xx, else 500.
func MirrorStatus(upstreamStatus int) int {
	if upstreamStatus >= 400 && upstreamStatus < 600 {
		return upstreamStatus
	}
	return http.StatusInternalServerError
}
