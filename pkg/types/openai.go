package types

import "encoding/json"

// ResponsesRequest is the mapped OpenAI Responses API request body.
type ResponsesRequest struct {
	Model           string      `json:"model"`
	Instructions    string      `json:"instructions,omitempty"`
	Input           []InputItem `json:"input"`
	Tools           []ToolSpec  `json:"tools,omitempty"`
	ToolChoice      any         `json:"tool_choice,omitempty"`
	MaxOutputTokens *int        `json:"max_output_tokens,omitempty"`
	MaxToolCalls    *int        `json:"max_tool_calls,omitempty"`
	Include         []string    `json:"include,omitempty"`
	Stream          bool        `json:"stream,omitempty"`
}

// InputItem is the tagged union of OpenAI Responses input item kinds this
// gateway emits: message, function_call, function_call_output.
type InputItem struct {
	Type string `json:"type"`

	// message
	Role    string             `json:"role,omitempty"`
	Content []InputMessagePart `json:"content,omitempty"`

	// function_call
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// function_call_output
	Output string `json:"output,omitempty"`
}

// InputMessagePart is one part of a message input item's content array:
// input_text for user-role messages, output_text for assistant-role ones.
type InputMessagePart struct {
	Type string `json:"type"` // "input_text" | "output_text"
	Text string `json:"text"`
}

// ToolSpec is an OpenAI Responses tool declaration. Function tools carry
// Name/Description/Parameters directly (flat, not nested under "function",
// matching the Responses API's own shape); the web_search supplement omits
// Parameters entirely.
type ToolSpec struct {
	Type        string         `json:"type"` // "function" | "web_search"
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Strict      *bool          `json:"strict,omitempty"`
}

// ResponsesEnvelope is the terminal non-streaming upstream response body.
type ResponsesEnvelope struct {
	ID                string             `json:"id"`
	Status            string             `json:"status"`
	Output            []OutputItem       `json:"output"`
	IncompleteDetails *IncompleteDetails `json:"incomplete_details,omitempty"`
	Usage             *ResponsesUsage    `json:"usage,omitempty"`
}

// IncompleteDetails explains why a response terminated incomplete.
type IncompleteDetails struct {
	Reason string `json:"reason"`
}

// ResponsesUsage is upstream's usage block, including the cached-token
// breakdown used to derive cache_read_input_tokens.
type ResponsesUsage struct {
	InputTokens        int                 `json:"input_tokens"`
	OutputTokens       int                 `json:"output_tokens"`
	InputTokensDetails *InputTokensDetails `json:"input_tokens_details,omitempty"`
}

// InputTokensDetails carries the cached-token breakdown of input usage.
type InputTokensDetails struct {
	CachedTokens int `json:"cached_tokens,omitempty"`
}

// OutputItem is the tagged union of upstream output item kinds: message,
// function_call, web_search_call, reasoning, and anything else (ignored).
type OutputItem struct {
	Type string `json:"type"`

	// message
	Role    string              `json:"role,omitempty"`
	Content []OutputMessagePart `json:"content,omitempty"`

	// function_call
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// web_search_call
	ID     string          `json:"id,omitempty"`
	Action json.RawMessage `json:"action,omitempty"`

	// reasoning
	Summary []ReasoningSummaryPart `json:"summary,omitempty"`
}

// OutputMessagePart is one part of a message output item's content array.
type OutputMessagePart struct {
	Type string `json:"type"` // "output_text"
	Text string `json:"text"`
}

// ReasoningSummaryPart is one part of a reasoning output item's summary.
type ReasoningSummaryPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// OpenAIErrorBody is the shape of an upstream error response body,
// preserved verbatim under the downstream envelope's "openai" field.
type OpenAIErrorBody struct {
	Error OpenAIErrorDetail `json:"error"`
}

// OpenAIErrorDetail carries the upstream error's type/message/code.
type OpenAIErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}
