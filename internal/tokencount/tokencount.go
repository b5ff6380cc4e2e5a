// Package tokencount implements the Token Counter: computing an input
// token count for a mapped ResponsesRequest using the upstream tokenizer's
// reference algorithm, without ever calling the upstream.
package tokencount

import (
	"fmt"
	"strings"

	"github.com/tiktoken-go/tokenizer"

	"github.com/aeturnal/claude-code-responses-proxy/pkg/types"
)

// modelConstants holds the per-model-family overhead constants from
// spec §4.E. The exact constants may vary per model family in principle;
// this gateway uses one table for every known family, matching spec.md's
// literal constants (which diverge from the original Python reference's
// tool-overhead figure of 4 — spec.md is authoritative here).
type modelConstants struct {
	MessageOverhead            int
	NameOverhead               int
	FunctionCallOverhead       int
	FunctionCallOutputOverhead int
	ToolOverhead               int
	ReplyPrimer                int
}

var defaultConstants = modelConstants{
	MessageOverhead:            3,
	NameOverhead:               1,
	FunctionCallOverhead:       3,
	FunctionCallOutputOverhead: 3,
	ToolOverhead:               7,
	ReplyPrimer:                3,
}

// codecForModel picks a tiktoken codec by model-name prefix, falling back
// to a default encoding for unrecognized models. Grounded on the
// model-prefix dispatch table used elsewhere in the pack for OpenAI-style
// model ids.
func codecForModel(model string) (tokenizer.Codec, error) {
	sanitized := strings.ToLower(strings.TrimSpace(model))
	switch {
	case sanitized == "":
		return tokenizer.Get(tokenizer.Cl100kBase)
	case strings.HasPrefix(sanitized, "gpt-5"):
		return tokenizer.ForModel(tokenizer.GPT5)
	case strings.HasPrefix(sanitized, "gpt-4.1"):
		return tokenizer.ForModel(tokenizer.GPT41)
	case strings.HasPrefix(sanitized, "gpt-4o"):
		return tokenizer.ForModel(tokenizer.GPT4o)
	case strings.HasPrefix(sanitized, "gpt-4"):
		return tokenizer.ForModel(tokenizer.GPT4)
	case strings.HasPrefix(sanitized, "gpt-3.5"), strings.HasPrefix(sanitized, "gpt-3"):
		return tokenizer.ForModel(tokenizer.GPT35Turbo)
	case strings.HasPrefix(sanitized, "o1"):
		return tokenizer.ForModel(tokenizer.O1)
	case strings.HasPrefix(sanitized, "o3"):
		return tokenizer.ForModel(tokenizer.O3)
	case strings.HasPrefix(sanitized, "o4"):
		return tokenizer.ForModel(tokenizer.O4Mini)
	default:
		return tokenizer.Get(tokenizer.O200kBase)
	}
}

// Count computes the input_tokens value for a mapped ResponsesRequest,
// per spec §4.E's six-step algorithm. It never calls the network.
func Count(req types.ResponsesRequest) (int, error) {
	codec, err := codecForModel(req.Model)
	if err != nil {
		codec, err = tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return 0, err
		}
	}
	c := defaultConstants

	total := 0
	encodeLen := func(s string) int {
		if s == "" {
			return 0
		}
		toks, _, err := codec.Encode(s)
		if err != nil {
			return 0
		}
		return len(toks)
	}

	for _, item := range req.Input {
		switch item.Type {
		case "message":
			total += c.MessageOverhead
			for _, part := range item.Content {
				total += encodeLen(part.Text)
			}
			if item.Role != "" {
				total += c.NameOverhead
			}
		case "function_call":
			total += encodeLen(item.Name) + encodeLen(item.Arguments) + c.FunctionCallOverhead
		case "function_call_output":
			total += encodeLen(item.CallID) + encodeLen(item.Output) + c.FunctionCallOutputOverhead
		}
	}

	if req.Instructions != "" {
		total += encodeLen(req.Instructions) + c.MessageOverhead
	}

	for _, tool := range req.Tools {
		total += encodeLen(tool.Name) + encodeLen(tool.Description)
		total += encodeLen(canonicalJSON(tool.Parameters))
		total += c.ToolOverhead
	}

	total += c.ReplyPrimer

	return total, nil
}

// canonicalJSON renders a tool parameters schema as a deterministic string
// for token counting. A simple, order-independent key walk is sufficient
// here since this is only ever used as encoder input, not wire output.
func canonicalJSON(schema map[string]any) string {
	if len(schema) == 0 {
		return ""
	}
	var sb strings.Builder
	writeCanonical(&sb, schema)
	return sb.String()
}

func writeCanonical(sb *strings.Builder, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sortStrings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(k)
			sb.WriteByte(':')
			writeCanonical(sb, val[k])
		}
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, item)
		}
		sb.WriteByte(']')
	default:
		sb.WriteString(toString(val))
	}
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return "null"
	default:
		return strings.TrimSpace(strings.Trim(strings.ReplaceAll(strings.ReplaceAll(
			fmt.Sprint(val), "\n", " "), "\t", " "), " "))
	}
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
