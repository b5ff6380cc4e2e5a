package types

// BlockKind distinguishes the content block lifecycles the Stream
// Translator drives: text, tool_use, thinking, and the server_tool_use /
// web_search_tool_result pair emitted for the web_search supplement.
type BlockKind string

const (
	BlockKindText            BlockKind = "text"
	BlockKindToolUse         BlockKind = "tool_use"
	BlockKindThinking        BlockKind = "thinking"
	BlockKindServerToolUse   BlockKind = "server_tool_use"
	BlockKindWebSearchResult BlockKind = "web_search_tool_result"
)

// BlockState tracks one open-or-closed content block within a streaming
// response. Lifecycle is opened -> delta* -> closed, strictly once.
type BlockState struct {
	Index  int
	Kind   BlockKind
	Opened bool
	Closed bool

	// tool_use / server_tool_use metadata, captured at block open.
	ToolCallID string
	ToolName   string
}

// StreamState is the per-request state the Stream Translator owns
// exclusively for the lifetime of one streaming request.
type StreamState struct {
	MessageID    string
	ModelInbound string

	// Blocks is keyed by block index, assigned monotonically as upstream
	// opens new content parts.
	Blocks map[int]*BlockState

	// CurrentTextBlock is the index of the currently open text block, if
	// any (-1 when none is open).
	CurrentTextBlock int

	// ToolBuffers accumulates raw partial_json fragments per block index,
	// parsed only once at block close.
	ToolBuffers map[int]string

	// NextBlockIndex is the next index to assign when a new block opens.
	NextBlockIndex int

	// BlockByOutputIndex maps an upstream output_index to the downstream
	// block index assigned to it, so later events for the same item
	// (deltas, done) resolve to the same block without upstream having to
	// repeat any identifying fields.
	BlockByOutputIndex map[int]int

	// OutputTokens is the cumulative upstream-reported output token total;
	// never decremented, only overwritten with larger values from
	// response.completed.
	OutputTokens int

	// MessageStartEmitted/MessageStopEmitted guard against double-emission.
	MessageStartEmitted bool
	MessageStopEmitted  bool

	// SawToolCall records whether any function_call output item was
	// observed, used to derive stop_reason.
	SawToolCall bool

	// SawIncomplete/IncompleteReason mirror the terminal response's
	// incomplete_details, when present, for stop_reason derivation.
	SawIncomplete    bool
	IncompleteReason string
	Status           string
}

// NewStreamState constructs an empty StreamState for one request.
func NewStreamState(messageID, modelInbound string) *StreamState {
	return &StreamState{
		MessageID:          messageID,
		ModelInbound:       modelInbound,
		Blocks:             make(map[int]*BlockState),
		ToolBuffers:        make(map[int]string),
		BlockByOutputIndex: make(map[int]int),
		CurrentTextBlock:   -1,
	}
}

// OpenBlocks returns the indices of every block that has been opened but
// not yet closed, in ascending order.
func (s *StreamState) OpenBlocks() []int {
	open := make([]int, 0, len(s.Blocks))
	for idx, b := range s.Blocks {
		if b.Opened && !b.Closed {
			open = append(open, idx)
		}
	}
	for i := 1; i < len(open); i++ {
		for j := i; j > 0 && open[j-1] > open[j]; j-- {
			open[j-1], open[j] = open[j], open[j-1]
		}
	}
	return open
}
