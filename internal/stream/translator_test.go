package stream

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/aeturnal/claude-code-responses-proxy/internal/gatewayerrors"
)

type recordedFrame struct {
	event string
	data  string
}

func newRecorder() (WriteFunc, *[]recordedFrame) {
	frames := &[]recordedFrame{}
	return func(eventType string, data []byte) error {
		*frames = append(*frames, recordedFrame{event: eventType, data: string(data)})
		return nil
	}, frames
}

// TestStreamingToolArgsScenario reproduces spec scenario 3: a single
// function_call block whose arguments arrive as two partial_json deltas.
func TestStreamingToolArgsScenario(t *testing.T) {
	write, frames := newRecorder()
	tr := New(context.Background(), "claude-3-5-sonnet", 7, write, nil, "", nil)

	events := []struct {
		eventType string
		data      string
	}{
		{"response.created", `{"type":"response.created","response":{"id":"resp_1","model":"gpt-4o"}}`},
		{"response.output_item.added", `{"type":"response.output_item.added","output_index":0,"item":{"type":"function_call","call_id":"c1","name":"w"}}`},
		{"response.function_call_arguments.delta", `{"type":"response.function_call_arguments.delta","output_index":0,"delta":"{\"ci"}`},
		{"response.function_call_arguments.delta", `{"type":"response.function_call_arguments.delta","output_index":0,"delta":"ty\":\"SF\"}"}`},
		{"response.function_call_arguments.done", `{"type":"response.function_call_arguments.done","output_index":0}`},
		{"response.completed", `{"type":"response.completed","response":{"status":"completed","usage":{"output_tokens":5}}}`},
	}

	for _, ev := range events {
		if err := tr.HandleEvent(ev.eventType, []byte(ev.data)); err != nil {
			t.Fatalf("HandleEvent(%s): %v", ev.eventType, err)
		}
	}

	gotEvents := make([]string, 0, len(*frames))
	for _, f := range *frames {
		gotEvents = append(gotEvents, f.event)
	}
	want := []string{"message_start", "content_block_start", "content_block_delta", "content_block_delta", "content_block_stop", "message_delta", "message_stop"}
	if len(gotEvents) != len(want) {
		t.Fatalf("got %v frames, want %v", gotEvents, want)
	}
	for i := range want {
		if gotEvents[i] != want[i] {
			t.Fatalf("frame %d: got %q, want %q", i, gotEvents[i], want[i])
		}
	}

	stopFrame := (*frames)[len(*frames)-2]
	if got := gjson.Get(stopFrame.data, "delta.stop_reason").String(); got != "tool_use" {
		t.Fatalf("stop_reason = %q, want tool_use", got)
	}

	closeFrame := (*frames)[4]
	if got := gjson.Get(closeFrame.data, "content_block.input.city").String(); got != "SF" {
		t.Fatalf("finalized input.city = %q, want SF", got)
	}

	// No intermediate delta frame should carry a parsed "input" field.
	for i, f := range (*frames)[:4] {
		if gjson.Get(f.data, "input").Exists() {
			t.Fatalf("frame %d unexpectedly carries a parsed input field", i)
		}
	}
}

func TestMessageStartEchoesInboundModelNotUpstream(t *testing.T) {
	write, frames := newRecorder()
	tr := New(context.Background(), "claude-3-5-sonnet", 0, write, nil, "", nil)
	if err := tr.HandleEvent("response.created", []byte(`{"response":{"id":"resp_1","model":"gpt-4o-mini"}}`)); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	model := gjson.Get((*frames)[0].data, "message.model").String()
	if model != "claude-3-5-sonnet" {
		t.Fatalf("message_start model = %q, want inbound model", model)
	}
}

func TestToolArgsInvalidJSONFallsBackToEmptyObject(t *testing.T) {
	write, frames := newRecorder()
	tr := New(context.Background(), "claude-3-5-sonnet", 0, write, nil, "", nil)
	_ = tr.HandleEvent("response.created", []byte(`{"response":{"id":"resp_1"}}`))
	_ = tr.HandleEvent("response.output_item.added", []byte(`{"output_index":0,"item":{"type":"function_call","call_id":"c1","name":"w"}}`))
	_ = tr.HandleEvent("response.function_call_arguments.delta", []byte(`{"output_index":0,"delta":"not valid json"}`))
	if err := tr.HandleEvent("response.function_call_arguments.done", []byte(`{"output_index":0}`)); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	closeFrame := (*frames)[len(*frames)-1]
	var parsed map[string]any
	if err := json.Unmarshal([]byte(gjson.Get(closeFrame.data, "content_block.input").Raw), &parsed); err != nil {
		t.Fatalf("input not valid JSON: %v", err)
	}
	if len(parsed) != 0 {
		t.Fatalf("expected empty object fallback, got %v", parsed)
	}
	if raw := gjson.Get(closeFrame.data, "content_block.raw_arguments").String(); raw != "not valid json" {
		t.Fatalf("raw_arguments = %q, want original string preserved", raw)
	}
}

func TestToolArgsOverflowFailsTheStream(t *testing.T) {
	write, frames := newRecorder()
	tr := New(context.Background(), "claude-3-5-sonnet", 0, write, nil, "", nil)
	_ = tr.HandleEvent("response.created", []byte(`{"response":{"id":"resp_1"}}`))
	_ = tr.HandleEvent("response.output_item.added", []byte(`{"output_index":0,"item":{"type":"function_call","call_id":"c1","name":"w"}}`))

	oversized := strings.Repeat("a", maxToolBufferBytes+1)
	chunk := `{"output_index":0,"delta":""}`
	chunk, _ = sjson.Set(chunk, "delta", oversized)

	err := tr.HandleEvent("response.function_call_arguments.delta", []byte(chunk))

	var terminal *TerminalError
	if !errors.As(err, &terminal) {
		t.Fatalf("HandleEvent returned %v, want a *TerminalError", err)
	}
	if terminal.Kind != gatewayerrors.KindInvalidRequest {
		t.Fatalf("Kind = %q, want invalid_request_error", terminal.Kind)
	}

	last := (*frames)[len(*frames)-1]
	if last.event != "error" {
		t.Fatalf("last event = %q, want an SSE error frame since message_start had already been emitted", last.event)
	}
}

func TestFinalizeClosesOpenBlocksOnPrematureEOF(t *testing.T) {
	write, frames := newRecorder()
	tr := New(context.Background(), "claude-3-5-sonnet", 0, write, nil, "", nil)
	_ = tr.HandleEvent("response.created", []byte(`{"response":{"id":"resp_1"}}`))
	_ = tr.HandleEvent("response.content_part.added", []byte(`{"output_index":0,"part":{"type":"output_text"}}`))
	_ = tr.HandleEvent("response.output_text.delta", []byte(`{"output_index":0,"delta":"Hel"}`))

	if err := tr.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	last := (*frames)[len(*frames)-1]
	if last.event != "message_stop" {
		t.Fatalf("last event = %q, want message_stop", last.event)
	}
	foundClose := false
	for _, f := range *frames {
		if f.event == "content_block_stop" {
			foundClose = true
		}
	}
	if !foundClose {
		t.Fatal("expected a synthetic content_block_stop before message_stop")
	}

	// Calling Finalize again must not double-emit message_stop.
	before := len(*frames)
	if err := tr.Finalize(); err != nil {
		t.Fatalf("Finalize (second call): %v", err)
	}
	if len(*frames) != before {
		t.Fatalf("Finalize emitted extra frames on repeat call: %d -> %d", before, len(*frames))
	}
}
