package converter

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/aeturnal/claude-code-responses-proxy/pkg/types"
)

// maxToolNameLen is OpenAI's function-name length ceiling; Anthropic
// clients don't enforce it, so overlong tool names must be shortened
// before they reach the Responses API and restored before they reach the
// client.
const maxToolNameLen = 64

// ToolNameMap records the deterministic, request-scoped rename applied to
// any declared tool name exceeding maxToolNameLen, and reverses it when
// surfacing tool_use blocks back to the client.
type ToolNameMap struct {
	shortToOriginal map[string]string
}

func NewToolNameMap() *ToolNameMap {
	return &ToolNameMap{shortToOriginal: map[string]string{}}
}

// Shorten returns name unchanged if it fits, otherwise a stable shortened
// form: a truncated prefix plus a content hash suffix, unique per original
// name within the map's lifetime.
func (m *ToolNameMap) Shorten(name string) string {
	if len(name) <= maxToolNameLen {
		return name
	}
	sum := sha1.Sum([]byte(name))
	suffix := "_" + hex.EncodeToString(sum[:])[:8]
	short := name[:maxToolNameLen-len(suffix)] + suffix
	m.shortToOriginal[short] = name
	return short
}

// Original reverses Shorten; names that were never shortened map to
// themselves. A nil receiver is the common no-shortening case.
func (m *ToolNameMap) Original(name string) string {
	if m == nil {
		return name
	}
	if orig, ok := m.shortToOriginal[name]; ok {
		return orig
	}
	return name
}

// ConvertAnthropicToOpenAI builds a ResponsesRequest from a validated
// MessagesRequest plus the already-resolved upstream model name. The
// returned ToolNameMap records any tool-name shortening applied along the
// way; pass it to ConvertOpenAIToAnthropic / the Stream Translator so
// tool_use blocks surface the client's original names. This is the Request
// Mapper (component B).
func ConvertAnthropicToOpenAI(req types.MessagesRequest, upstreamModel string) (types.ResponsesRequest, *ToolNameMap, error) {
	if err := ValidateMessagesRequest(req); err != nil {
		return types.ResponsesRequest{}, nil, err
	}

	names := NewToolNameMap()

	var input []types.InputItem
	for _, msg := range req.Messages {
		items, err := messageToInputItems(msg, names)
		if err != nil {
			return types.ResponsesRequest{}, nil, err
		}
		input = append(input, items...)
	}

	out := types.ResponsesRequest{
		Model:        upstreamModel,
		Instructions: req.System.Joined(),
		Input:        input,
		Stream:       req.Stream,
	}

	if req.MaxTokens != nil {
		out.MaxOutputTokens = req.MaxTokens
	}

	if len(req.Tools) > 0 {
		tools, maxToolCalls, include, err := buildTools(req.Tools, names)
		if err != nil {
			return types.ResponsesRequest{}, nil, err
		}
		out.Tools = tools
		out.MaxToolCalls = maxToolCalls
		out.Include = include
	}

	if req.ToolChoice != nil {
		choice, err := buildToolChoice(*req.ToolChoice, names)
		if err != nil {
			return types.ResponsesRequest{}, nil, err
		}
		out.ToolChoice = choice
	}

	return out, names, nil
}

// ValidateMessagesRequest rejects malformed requests before mapping, per
// §4.B's error rules.
func ValidateMessagesRequest(req types.MessagesRequest) error {
	if len(req.Messages) == 0 {
		return invalidRequestError("messages array cannot be empty")
	}
	for _, m := range req.Messages {
		if m.Role != "user" && m.Role != "assistant" {
			return invalidRequestError(fmt.Sprintf("invalid message role %q: must be \"user\" or \"assistant\"", m.Role))
		}
		for _, block := range m.Content.Blocks {
			switch block.Type {
			case "text":
				// always valid
			case "tool_use":
				if m.Role != "assistant" {
					return invalidRequestError("tool_use blocks may only appear in assistant messages")
				}
			case "tool_result":
				if m.Role != "user" {
					return invalidRequestError("tool_result blocks may only appear in user messages")
				}
			default:
				return invalidRequestError(fmt.Sprintf("unsupported content block type %q", block.Type))
			}
		}
	}
	if req.ToolChoice != nil && req.ToolChoice.Type == "tool" {
		found := false
		for _, t := range req.Tools {
			if t.Name == req.ToolChoice.Name {
				found = true
				break
			}
		}
		if !found {
			return invalidRequestError(fmt.Sprintf("tool_choice references undeclared tool %q", req.ToolChoice.Name))
		}
	}
	return nil
}

// messageToInputItems flattens one Message into zero or more InputItem,
// buffering consecutive text parts and emitting them as a single message
// item whenever a tool_use/tool_result item boundary is reached (or at the
// end of the message), preserving original order. If flattening leaves a
// message with no surviving text, the message item is omitted but tool
// items are kept.
func messageToInputItems(msg types.Message, names *ToolNameMap) ([]types.InputItem, error) {
	var items []types.InputItem
	var bufferedText []types.InputMessagePart

	flush := func() {
		if len(bufferedText) == 0 {
			return
		}
		items = append(items, types.InputItem{
			Type:    "message",
			Role:    msg.Role,
			Content: bufferedText,
		})
		bufferedText = nil
	}

	partType := "input_text"
	if msg.Role == "assistant" {
		partType = "output_text"
	}

	for _, block := range msg.Content.Blocks {
		switch block.Type {
		case "text":
			bufferedText = append(bufferedText, types.InputMessagePart{Type: partType, Text: block.Text})
		case "tool_use":
			flush()
			args, err := json.Marshal(block.Input)
			if err != nil {
				return nil, invalidRequestError(fmt.Sprintf("failed to serialize tool_use input for %q: %v", block.Name, err))
			}
			items = append(items, types.InputItem{
				Type:      "function_call",
				CallID:    block.ID,
				Name:      names.Shorten(block.Name),
				Arguments: string(args),
			})
		case "tool_result":
			flush()
			items = append(items, types.InputItem{
				Type:   "function_call_output",
				CallID: block.ToolUseID,
				Output: block.Content.Flattened(),
			})
		}
	}
	flush()

	return items, nil
}

// buildTools splits declared tools into ordinary function tools and the
// web_search_20250305 server-tool supplement, which maps to OpenAI's
// native web_search Responses tool rather than a function tool.
func buildTools(defs []types.ToolDef, names *ToolNameMap) ([]types.ToolSpec, *int, []string, error) {
	var tools []types.ToolSpec
	var webSearchCount int
	var maxToolCalls *int

	for _, def := range defs {
		if def.Type == "web_search_20250305" {
			webSearchCount++
			tools = append(tools, types.ToolSpec{Type: "web_search"})
			if def.MaxUses != nil && maxToolCalls == nil {
				v := *def.MaxUses
				maxToolCalls = &v
			}
			continue
		}
		tools = append(tools, types.ToolSpec{
			Type:        "function",
			Name:        names.Shorten(def.Name),
			Description: def.Description,
			Parameters:  normalizeToolParameters(def.InputSchema),
		})
	}

	var include []string
	if webSearchCount > 0 {
		include = []string{"web_search_call.action.sources"}
	}

	return tools, maxToolCalls, include, nil
}

// normalizeToolParameters ensures an object-typed schema always carries a
// properties map, matching both the spec note and the original reference
// implementation's _normalize_tool_parameters.
func normalizeToolParameters(schema map[string]any) map[string]any {
	if len(schema) == 0 {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	normalized := make(map[string]any, len(schema))
	for k, v := range schema {
		normalized[k] = v
	}
	if normalized["type"] == "object" {
		if _, ok := normalized["properties"]; !ok || normalized["properties"] == nil {
			normalized["properties"] = map[string]any{}
		}
	}
	return normalized
}

// buildToolChoice maps the Anthropic tool_choice variant to its OpenAI
// Responses equivalent.
func buildToolChoice(choice types.ToolChoice, names *ToolNameMap) (any, error) {
	switch choice.Type {
	case "auto":
		return "auto", nil
	case "any":
		return "required", nil
	case "none":
		return "none", nil
	case "tool":
		return map[string]any{"type": "function", "name": names.Shorten(choice.Name)}, nil
	default:
		return nil, invalidRequestError(fmt.Sprintf("unsupported tool_choice type %q", choice.Type))
	}
}

func invalidRequestError(message string) error {
	return &MappingError{Message: message}
}

// MappingError is returned by the Request Mapper for every validation
// failure; handlers convert it into an invalid_request_error envelope.
type MappingError struct {
	Message string
}

func (e *MappingError) Error() string {
	return e.Message
}
