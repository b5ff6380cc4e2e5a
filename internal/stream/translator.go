// Package stream implements the Stream Translator: a stateful transducer
// that consumes upstream OpenAI Responses SSE events and emits the
// downstream Anthropic-shaped SSE sequence, buffering tool-argument JSON
// fragments until each tool_use block closes. Grounded on the pack's own
// gjson/sjson-driven event dispatch for untyped upstream JSON, applied to
// the exact event table and lifecycle invariants this gateway specifies.
package stream

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/aeturnal/claude-code-responses-proxy/internal/converter"
	"github.com/aeturnal/claude-code-responses-proxy/internal/gatewayerrors"
	"github.com/aeturnal/claude-code-responses-proxy/internal/observability"
	"github.com/aeturnal/claude-code-responses-proxy/pkg/types"
)

// WriteFunc emits one downstream SSE frame: event: <eventType>\ndata:
// <data>\n\n. Implementations own the actual HTTP flush.
type WriteFunc func(eventType string, data []byte) error

// TerminalError signals that the stream ended in an error state. Callers
// inspect MessageStartEmitted (via Translator.MessageStartEmitted) to
// decide whether an HTTP error response or an SSE error frame is still
// possible — by the time this is returned, the translator has already
// written the SSE error frame itself if message_start had been emitted.
type TerminalError struct {
	Kind     gatewayerrors.Kind
	Message  string
	Upstream json.RawMessage
}

func (e *TerminalError) Error() string { return e.Message }

// Translator drives one streaming request's StreamState. It is owned
// exclusively by that request's goroutine; no locking is required.
type Translator struct {
	state *types.StreamState
	write WriteFunc
	sink  observability.Sink
	ctx   context.Context

	correlationID    string
	localInputTokens int
	names            *converter.ToolNameMap
}

// New constructs a Translator for one streaming request. localInputTokens
// is the Token Counter's result for the mapped payload, reported verbatim
// in message_start per §4.D. names reverses any tool-name shortening the
// Request Mapper applied to this request's declared tools; pass nil when
// none was needed.
func New(ctx context.Context, modelInbound string, localInputTokens int, write WriteFunc, sink observability.Sink, correlationID string, names *converter.ToolNameMap) *Translator {
	if sink == nil {
		sink = observability.NoopSink{}
	}
	return &Translator{
		state:             types.NewStreamState("", modelInbound),
		write:             write,
		sink:              sink,
		ctx:               ctx,
		correlationID:     correlationID,
		localInputTokens:  localInputTokens,
		names:             names,
	}
}

// MessageStartEmitted reports whether message_start has already been
// written downstream.
func (t *Translator) MessageStartEmitted() bool {
	return t.state.MessageStartEmitted
}

// HandleEvent processes one upstream SSE event (its JSON "data:" payload,
// already stripped of framing) and writes zero or more downstream frames.
// A non-nil *TerminalError indicates the stream has ended; any other
// error indicates a downstream write failure (the caller should cancel
// the upstream read and release state).
func (t *Translator) HandleEvent(eventType string, data []byte) error {
	root := gjson.ParseBytes(data)
	if eventType == "" {
		eventType = root.Get("type").String()
	}

	switch eventType {
	case "response.created":
		return t.handleCreated(root)
	case "response.output_item.added":
		return t.handleOutputItemAdded(root)
	case "response.content_part.added":
		return t.handleContentPartAdded(root)
	case "response.output_text.delta":
		return t.handleTextDelta(root)
	case "response.content_part.done", "response.output_item.done":
		return t.handleTextOrItemDone(root, eventType)
	case "response.function_call_arguments.delta":
		return t.handleToolArgsDelta(root)
	case "response.function_call_arguments.done":
		return t.handleToolArgsDone(root)
	case "response.reasoning_summary_text.delta":
		return t.handleReasoningDelta(root)
	case "response.completed":
		return t.handleCompleted(root)
	case "response.failed", "response.incomplete":
		return t.handleFailedOrIncomplete(root)
	case "ping":
		return t.write("ping", []byte(`{"type":"ping"}`))
	default:
		t.sink.Log(t.ctx, "stream_unknown_event", observability.Fields{"type": eventType, "correlation_id": t.correlationID})
		return nil
	}
}

func (t *Translator) handleCreated(root gjson.Result) error {
	if t.state.MessageStartEmitted {
		return nil
	}
	t.state.MessageID = root.Get("response.id").String()
	t.state.MessageStartEmitted = true

	frame := `{"type":"message_start","message":{"id":"","type":"message","role":"assistant","model":"","content":[],"stop_reason":null,"usage":{"input_tokens":0,"output_tokens":0}}}`
	frame, _ = sjson.Set(frame, "message.id", t.state.MessageID)
	frame, _ = sjson.Set(frame, "message.model", t.state.ModelInbound)
	frame, _ = sjson.Set(frame, "message.usage.input_tokens", t.localInputTokens)
	return t.write("message_start", []byte(frame))
}

func (t *Translator) handleOutputItemAdded(root gjson.Result) error {
	item := root.Get("item")
	outputIndex := int(root.Get("output_index").Int())

	switch item.Get("type").String() {
	case "function_call":
		idx := t.allocateBlock(outputIndex, types.BlockKindToolUse)
		block := t.state.Blocks[idx]
		block.ToolCallID = item.Get("call_id").String()
		block.ToolName = t.names.Original(item.Get("name").String())
		block.Opened = true
		t.state.ToolBuffers[idx] = ""

		frame := `{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"","name":"","input":{}}}`
		frame, _ = sjson.Set(frame, "index", idx)
		frame, _ = sjson.Set(frame, "content_block.id", block.ToolCallID)
		frame, _ = sjson.Set(frame, "content_block.name", block.ToolName)
		return t.write("content_block_start", []byte(frame))
	case "reasoning":
		idx := t.allocateBlock(outputIndex, types.BlockKindThinking)
		t.state.Blocks[idx].Opened = true

		frame := `{"type":"content_block_start","index":0,"content_block":{"type":"thinking","thinking":""}}`
		frame, _ = sjson.Set(frame, "index", idx)
		return t.write("content_block_start", []byte(frame))
	case "web_search_call":
		idx := t.allocateBlock(outputIndex, types.BlockKindServerToolUse)
		block := t.state.Blocks[idx]
		block.ToolCallID = item.Get("id").String()
		block.ToolName = "web_search"
		block.Opened = true

		frame := `{"type":"content_block_start","index":0,"content_block":{"type":"server_tool_use","id":"","name":"web_search","input":{}}}`
		frame, _ = sjson.Set(frame, "index", idx)
		frame, _ = sjson.Set(frame, "content_block.id", block.ToolCallID)
		return t.write("content_block_start", []byte(frame))
	case "message":
		// No downstream event; the text block opens lazily on
		// response.content_part.added.
		return nil
	default:
		return nil
	}
}

func (t *Translator) handleReasoningDelta(root gjson.Result) error {
	outputIndex := int(root.Get("output_index").Int())
	idx, ok := t.state.BlockByOutputIndex[outputIndex]
	if !ok {
		return nil
	}
	frame := `{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":""}}`
	frame, _ = sjson.Set(frame, "index", idx)
	frame, _ = sjson.Set(frame, "delta.thinking", root.Get("delta").String())
	return t.write("content_block_delta", []byte(frame))
}

func (t *Translator) handleContentPartAdded(root gjson.Result) error {
	part := root.Get("part")
	if part.Get("type").String() != "output_text" && part.Exists() {
		return nil
	}
	outputIndex := int(root.Get("output_index").Int())
	if existing, ok := t.state.BlockByOutputIndex[outputIndex]; ok {
		if b := t.state.Blocks[existing]; b.Opened && !b.Closed {
			return nil
		}
	}

	idx := t.allocateBlock(outputIndex, types.BlockKindText)
	t.state.Blocks[idx].Opened = true
	t.state.CurrentTextBlock = idx

	frame := `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`
	frame, _ = sjson.Set(frame, "index", idx)
	return t.write("content_block_start", []byte(frame))
}

func (t *Translator) handleTextDelta(root gjson.Result) error {
	outputIndex := int(root.Get("output_index").Int())
	idx, ok := t.state.BlockByOutputIndex[outputIndex]
	if !ok {
		return nil
	}
	frame := `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":""}}`
	frame, _ = sjson.Set(frame, "index", idx)
	frame, _ = sjson.Set(frame, "delta.text", root.Get("delta").String())
	return t.write("content_block_delta", []byte(frame))
}

func (t *Translator) handleTextOrItemDone(root gjson.Result, eventType string) error {
	outputIndex := int(root.Get("output_index").Int())
	idx, ok := t.state.BlockByOutputIndex[outputIndex]
	if !ok {
		return nil
	}
	block := t.state.Blocks[idx]
	if block.Closed {
		return nil
	}

	switch block.Kind {
	case types.BlockKindText:
		if eventType == "response.output_item.done" && root.Get("item.type").String() != "message" {
			return nil
		}
		if t.state.CurrentTextBlock == idx {
			t.state.CurrentTextBlock = -1
		}
	case types.BlockKindThinking:
		if eventType != "response.output_item.done" || root.Get("item.type").String() != "reasoning" {
			return nil
		}
	case types.BlockKindServerToolUse:
		if eventType != "response.output_item.done" || root.Get("item.type").String() != "web_search_call" {
			return nil
		}
		return t.closeServerToolUseBlock(idx, root.Get("item.action"))
	default:
		return nil
	}

	block.Closed = true
	frame := `{"type":"content_block_stop","index":0}`
	frame, _ = sjson.Set(frame, "index", idx)
	return t.write("content_block_stop", []byte(frame))
}

// closeServerToolUseBlock closes a server_tool_use block and, per the
// web_search supplement, immediately opens and closes the paired
// web_search_tool_result block that follows it in Anthropic's block order.
func (t *Translator) closeServerToolUseBlock(idx int, action gjson.Result) error {
	block := t.state.Blocks[idx]
	block.Closed = true

	frame := `{"type":"content_block_stop","index":0,"content_block":{"type":"server_tool_use","id":"","name":"web_search","input":{}}}`
	frame, _ = sjson.Set(frame, "index", idx)
	frame, _ = sjson.Set(frame, "content_block.id", block.ToolCallID)
	if action.Exists() && action.IsObject() {
		frame, _ = sjson.SetRaw(frame, "content_block.input", action.Raw)
	}
	if err := t.write("content_block_stop", []byte(frame)); err != nil {
		return err
	}

	resultIdx := t.state.NextBlockIndex
	t.state.NextBlockIndex++
	t.state.Blocks[resultIdx] = &types.BlockState{Index: resultIdx, Kind: types.BlockKindWebSearchResult, Opened: true, Closed: true}

	startFrame := `{"type":"content_block_start","index":0,"content_block":{"type":"web_search_tool_result","tool_use_id":"","content":[]}}`
	startFrame, _ = sjson.Set(startFrame, "index", resultIdx)
	startFrame, _ = sjson.Set(startFrame, "content_block.tool_use_id", block.ToolCallID)
	if err := t.write("content_block_start", []byte(startFrame)); err != nil {
		return err
	}

	stopFrame := `{"type":"content_block_stop","index":0}`
	stopFrame, _ = sjson.Set(stopFrame, "index", resultIdx)
	return t.write("content_block_stop", []byte(stopFrame))
}

// maxToolBufferBytes is the per-block soft cap on accumulated
// tool-argument JSON, per §5's resource policy.
const maxToolBufferBytes = 1 << 20 // 1 MiB

func (t *Translator) handleToolArgsDelta(root gjson.Result) error {
	outputIndex := int(root.Get("output_index").Int())
	idx, ok := t.state.BlockByOutputIndex[outputIndex]
	if !ok {
		return nil
	}
	partial := root.Get("delta").String()
	t.state.ToolBuffers[idx] += partial

	if len(t.state.ToolBuffers[idx]) > maxToolBufferBytes {
		return t.Fail(gatewayerrors.KindInvalidRequest, "oversized tool arguments", nil)
	}

	frame := `{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":""}}`
	frame, _ = sjson.Set(frame, "index", idx)
	frame, _ = sjson.Set(frame, "delta.partial_json", partial)
	return t.write("content_block_delta", []byte(frame))
}

func (t *Translator) handleToolArgsDone(root gjson.Result) error {
	outputIndex := int(root.Get("output_index").Int())
	idx, ok := t.state.BlockByOutputIndex[outputIndex]
	if !ok {
		return nil
	}
	return t.closeToolBlock(idx)
}

// closeToolBlock parses the accumulated tool_buffers[idx] (empty -> {}, on
// parse failure -> {} with the raw string retained under
// "content_block.raw_arguments") and emits
// the finalized content_block_stop carrying {id, name, input}.
func (t *Translator) closeToolBlock(idx int) error {
	block := t.state.Blocks[idx]
	if block == nil || block.Kind != types.BlockKindToolUse || block.Closed {
		return nil
	}
	block.Closed = true
	t.state.SawToolCall = true

	raw := t.state.ToolBuffers[idx]
	frame := `{"type":"content_block_stop","index":0,"content_block":{"type":"tool_use","id":"","name":"","input":{}}}`
	frame, _ = sjson.Set(frame, "index", idx)
	frame, _ = sjson.Set(frame, "content_block.id", block.ToolCallID)
	frame, _ = sjson.Set(frame, "content_block.name", block.ToolName)

	if raw == "" {
		frame, _ = sjson.SetRaw(frame, "content_block.input", "{}")
	} else if gjson.Valid(raw) && gjson.Parse(raw).IsObject() {
		frame, _ = sjson.SetRaw(frame, "content_block.input", raw)
	} else {
		frame, _ = sjson.SetRaw(frame, "content_block.input", "{}")
		frame, _ = sjson.Set(frame, "content_block.raw_arguments", raw)
	}

	return t.write("content_block_stop", []byte(frame))
}

func (t *Translator) handleCompleted(root gjson.Result) error {
	resp := root.Get("response")
	t.state.Status = resp.Get("status").String()
	if reason := resp.Get("incomplete_details.reason"); reason.Exists() {
		t.state.SawIncomplete = true
		t.state.IncompleteReason = reason.String()
	}
	if outputTokens := resp.Get("usage.output_tokens"); outputTokens.Exists() {
		if n := int(outputTokens.Int()); n > t.state.OutputTokens {
			t.state.OutputTokens = n
		}
	}

	if err := t.closeAllOpenBlocks(); err != nil {
		return err
	}

	stopReason := deriveStreamStopReason(t.state)

	frame := `{"type":"message_delta","delta":{"stop_reason":""},"usage":{"output_tokens":0}}`
	frame, _ = sjson.Set(frame, "delta.stop_reason", stopReason)
	frame, _ = sjson.Set(frame, "usage.output_tokens", t.state.OutputTokens)
	if err := t.write("message_delta", []byte(frame)); err != nil {
		return err
	}
	return t.emitMessageStop()
}

// deriveStreamStopReason mirrors the Response Mapper's non-streaming rules
// (§4.C) applied against accumulated stream state rather than a terminal
// output array.
func deriveStreamStopReason(state *types.StreamState) string {
	if state.SawToolCall {
		return "tool_use"
	}
	if state.SawIncomplete {
		switch state.IncompleteReason {
		case "max_output_tokens":
			return "max_tokens"
		case "content_filter":
			return "refusal"
		}
	}
	if state.Status == "incomplete" {
		return "pause_turn"
	}
	return "end_turn"
}

func (t *Translator) handleFailedOrIncomplete(root gjson.Result) error {
	resp := root.Get("response")
	message := resp.Get("error.message").String()
	if message == "" {
		message = "upstream response failed"
	}
	upstream := json.RawMessage(resp.Raw)
	return t.Fail(gatewayerrors.KindAPIError, message, upstream)
}

// Fail surfaces an upstream or transport failure per §4.D's error path: if
// message_start has not yet been emitted, it returns a *TerminalError for
// the caller to convert into an HTTP error response (no downstream bytes
// have been written yet); otherwise it writes the SSE error frame itself
// and returns a *TerminalError marking the stream closed without
// message_stop.
func (t *Translator) Fail(kind gatewayerrors.Kind, message string, upstream json.RawMessage) error {
	if !t.state.MessageStartEmitted {
		return &TerminalError{Kind: kind, Message: message, Upstream: upstream}
	}

	env := gatewayerrors.WithUpstream(kind, message, upstream)
	data, _ := json.Marshal(env)
	_ = t.write("error", data)
	return &TerminalError{Kind: kind, Message: message, Upstream: upstream}
}

// Finalize is called when the upstream stream ends without a
// response.completed event (premature EOF). It synthesizes closes for
// any still-open blocks (best-effort parsing their tool buffers), then
// emits message_delta and message_stop exactly once.
func (t *Translator) Finalize() error {
	if t.state.MessageStopEmitted {
		return nil
	}
	if !t.state.MessageStartEmitted {
		return nil
	}
	if err := t.closeAllOpenBlocks(); err != nil {
		return err
	}
	stopReason := deriveStreamStopReason(t.state)
	frame := `{"type":"message_delta","delta":{"stop_reason":""},"usage":{"output_tokens":0}}`
	frame, _ = sjson.Set(frame, "delta.stop_reason", stopReason)
	frame, _ = sjson.Set(frame, "usage.output_tokens", t.state.OutputTokens)
	if err := t.write("message_delta", []byte(frame)); err != nil {
		return err
	}
	return t.emitMessageStop()
}

func (t *Translator) closeAllOpenBlocks() error {
	for _, idx := range t.state.OpenBlocks() {
		block := t.state.Blocks[idx]
		var err error
		switch block.Kind {
		case types.BlockKindToolUse:
			err = t.closeToolBlock(idx)
		case types.BlockKindServerToolUse:
			err = t.closeServerToolUseBlock(idx, gjson.Result{})
		case types.BlockKindText, types.BlockKindThinking:
			block.Closed = true
			frame := `{"type":"content_block_stop","index":0}`
			frame, _ = sjson.Set(frame, "index", idx)
			err = t.write("content_block_stop", []byte(frame))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *Translator) emitMessageStop() error {
	if t.state.MessageStopEmitted {
		return nil
	}
	t.state.MessageStopEmitted = true
	return t.write("message_stop", []byte(`{"type":"message_stop"}`))
}

func (t *Translator) allocateBlock(outputIndex int, kind types.BlockKind) int {
	idx := t.state.NextBlockIndex
	t.state.NextBlockIndex++
	t.state.Blocks[idx] = &types.BlockState{Index: idx, Kind: kind}
	t.state.BlockByOutputIndex[outputIndex] = idx
	return idx
}
