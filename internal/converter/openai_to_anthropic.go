package converter

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/aeturnal/claude-code-responses-proxy/pkg/types"
)

// ConvertOpenAIToAnthropic builds a MessagesResponse from a terminal
// upstream ResponsesEnvelope. inboundModel is echoed back verbatim, per
// §4.C and property P3 — never the resolved upstream model name. names
// reverses any tool-name shortening the Request Mapper applied; pass nil
// when the request declared no over-long tool names. This is the Response
// Mapper (component C).
func ConvertOpenAIToAnthropic(env types.ResponsesEnvelope, inboundModel string, names *ToolNameMap) types.MessagesResponse {
	content, sawToolCall := assembleContentBlocks(env.Output, names)

	resp := types.MessagesResponse{
		ID:         responseID(env.ID),
		Type:       "message",
		Role:       "assistant",
		Model:      inboundModel,
		Content:    content,
		StopReason: deriveStopReason(env.Status, sawToolCall, env.IncompleteDetails),
		Usage:      usageFromEnvelope(env.Usage),
	}
	return resp
}

// assembleContentBlocks walks the upstream output array in order, turning
// message/output_text parts into text blocks, function_call items into
// tool_use blocks (reversing any tool-name shortening applied by the
// Request Mapper), reasoning items into thinking blocks, and web_search_call
// items into a server_tool_use/web_search_tool_result pair.
func assembleContentBlocks(output []types.OutputItem, names *ToolNameMap) ([]types.ContentBlock, bool) {
	var blocks []types.ContentBlock
	sawToolCall := false

	for _, item := range output {
		switch item.Type {
		case "message":
			if item.Role != "assistant" {
				continue
			}
			for _, part := range item.Content {
				if part.Type != "output_text" {
					continue
				}
				blocks = append(blocks, types.ContentBlock{Type: "text", Text: part.Text})
			}
		case "function_call":
			sawToolCall = true
			block := types.ContentBlock{
				Type: "tool_use",
				ID:   item.CallID,
				Name: names.Original(item.Name),
			}
			input, ok := parseToolArguments(item.Arguments)
			if ok {
				block.Input = input
			} else {
				block.Input = map[string]any{}
				block.RawArguments = item.Arguments
			}
			blocks = append(blocks, block)
		case "reasoning":
			text := ""
			for i, part := range item.Summary {
				if i > 0 {
					text += "\n"
				}
				text += part.Text
			}
			if text != "" {
				blocks = append(blocks, types.ContentBlock{Type: "thinking", Thinking: text})
			}
		case "web_search_call":
			id := item.ID
			blocks = append(blocks, types.ContentBlock{
				Type:  "server_tool_use",
				ID:    id,
				Name:  "web_search",
				Input: actionToInput(item.Action),
			})
			blocks = append(blocks, types.ContentBlock{
				Type:              "web_search_tool_result",
				ToolUseID:         id,
				ServerToolContent: []byte("[]"),
			})
		default:
			// anything else: not surfaced.
		}
	}

	return blocks, sawToolCall
}

// actionToInput decodes a web_search_call's raw action payload into the
// input map expected by a server_tool_use block; an undecodable or absent
// action degrades to an empty object rather than failing the response.
func actionToInput(action json.RawMessage) map[string]any {
	if len(action) == 0 {
		return map[string]any{}
	}
	var parsed map[string]any
	if err := json.Unmarshal(action, &parsed); err != nil {
		return map[string]any{}
	}
	return parsed
}

// parseToolArguments parses a function_call's arguments string as JSON.
// On parse failure the finalized input is the empty object; the caller
// retains the raw string under RawArguments, matching the streaming
// path's equivalent content_block.raw_arguments fallback.
func parseToolArguments(arguments string) (map[string]any, bool) {
	if arguments == "" {
		return map[string]any{}, true
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(arguments), &parsed); err != nil {
		return nil, false
	}
	return parsed, true
}

// deriveStopReason applies the first-matching-rule cascade from §4.C.
func deriveStopReason(status string, sawToolCall bool, incomplete *types.IncompleteDetails) string {
	if sawToolCall {
		return "tool_use"
	}
	if incomplete != nil {
		switch incomplete.Reason {
		case "max_output_tokens":
			return "max_tokens"
		case "content_filter":
			return "refusal"
		}
	}
	if status == "incomplete" {
		return "pause_turn"
	}
	return "end_turn"
}

// usageFromEnvelope echoes upstream usage, defaulting missing fields to
// zero and normalizing cached input tokens into cache_read_input_tokens.
func usageFromEnvelope(usage *types.ResponsesUsage) types.Usage {
	if usage == nil {
		return types.Usage{}
	}
	out := types.Usage{
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
	}
	if usage.InputTokensDetails != nil && usage.InputTokensDetails.CachedTokens > 0 {
		out.CacheReadInputTokens = usage.InputTokensDetails.CachedTokens
		out.InputTokens -= usage.InputTokensDetails.CachedTokens
		if out.InputTokens < 0 {
			out.InputTokens = 0
		}
	}
	return out
}

// responseID synthesizes a message id when upstream omits one.
func responseID(upstreamID string) string {
	if upstreamID != "" {
		return upstreamID
	}
	return "msg_" + uuid.NewString()
}
