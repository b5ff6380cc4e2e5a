package types

import "encoding/json"

// MessagesRequest mirrors the Anthropic Messages API request body.
type MessagesRequest struct {
	Model       string          `json:"model"`
	Messages    []Message       `json:"messages"`
	System      *SystemPrompt   `json:"system,omitempty"`
	Tools       []ToolDef       `json:"tools,omitempty"`
	ToolChoice  *ToolChoice     `json:"tool_choice,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	TopK        *int            `json:"top_k,omitempty"`
	StopSeqs    []string        `json:"stop_sequences,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// SystemPrompt accepts either a bare string or an ordered sequence of text
// parts, per the Anthropic wire format. UnmarshalJSON normalizes both forms
// into Parts; MarshalJSON re-emits the string form whenever there is exactly
// one part, whichever form that part was parsed from.
type SystemPrompt struct {
	Parts []TextBlock
}

func (s *SystemPrompt) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		s.Parts = []TextBlock{{Type: "text", Text: asString}}
		return nil
	}
	var asBlocks []TextBlock
	if err := json.Unmarshal(data, &asBlocks); err != nil {
		return err
	}
	s.Parts = asBlocks
	return nil
}

func (s SystemPrompt) MarshalJSON() ([]byte, error) {
	if len(s.Parts) == 1 {
		return json.Marshal(s.Parts[0].Text)
	}
	return json.Marshal(s.Parts)
}

// Joined concatenates the text parts with newlines, per §4.B.
func (s *SystemPrompt) Joined() string {
	if s == nil {
		return ""
	}
	out := ""
	for i, p := range s.Parts {
		if i > 0 {
			out += "\n"
		}
		out += p.Text
	}
	return out
}

// TextBlock is a bare {type, text} pair, used for system prompt parts.
type TextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Message is one turn of the conversation. Content is either a bare string
// (equivalent to a single text block) or an ordered sequence of ContentBlock.
type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// Content normalizes the string-or-blocks duality of Anthropic message
// content into a single ordered sequence of ContentBlock.
type Content struct {
	Blocks []ContentBlock
}

func (c *Content) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		c.Blocks = []ContentBlock{{Type: "text", Text: asString}}
		return nil
	}
	var asBlocks []ContentBlock
	if err := json.Unmarshal(data, &asBlocks); err != nil {
		return err
	}
	c.Blocks = asBlocks
	return nil
}

func (c Content) MarshalJSON() ([]byte, error) {
	if len(c.Blocks) == 1 && c.Blocks[0].Type == "text" {
		return json.Marshal(c.Blocks[0].Text)
	}
	return json.Marshal(c.Blocks)
}

// ContentBlock is the tagged union of Anthropic content block kinds this
// gateway understands: text, thinking, tool_use, tool_result, plus the
// server-side web_search_20250305 supplement (server_tool_use /
// web_search_tool_result). MarshalJSON emits only the fields that apply to
// Type, since tool_result's "content" and web_search_tool_result's
// "content" carry different shapes.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// thinking
	Thinking string `json:"thinking,omitempty"`

	// tool_use / server_tool_use
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// tool_use: the raw accumulated arguments string, retained when Input
	// failed to parse as JSON (input is then the empty object).
	RawArguments string `json:"raw_arguments,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   ToolResultValue `json:"content,omitempty"`
	IsError   *bool           `json:"is_error,omitempty"`

	// web_search_tool_result: passthrough of upstream's source array,
	// shares the wire key "content" with tool_result but a different shape.
	ServerToolContent json.RawMessage `json:"-"`
}

func (b ContentBlock) MarshalJSON() ([]byte, error) {
	switch b.Type {
	case "text":
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{b.Type, b.Text})
	case "thinking":
		return json.Marshal(struct {
			Type     string `json:"type"`
			Thinking string `json:"thinking"`
		}{b.Type, b.Thinking})
	case "tool_use", "server_tool_use":
		return json.Marshal(struct {
			Type         string         `json:"type"`
			ID           string         `json:"id"`
			Name         string         `json:"name"`
			Input        map[string]any `json:"input"`
			RawArguments string         `json:"raw_arguments,omitempty"`
		}{b.Type, b.ID, b.Name, b.Input, b.RawArguments})
	case "tool_result":
		return json.Marshal(struct {
			Type      string          `json:"type"`
			ToolUseID string          `json:"tool_use_id"`
			Content   ToolResultValue `json:"content"`
			IsError   *bool           `json:"is_error,omitempty"`
		}{b.Type, b.ToolUseID, b.Content, b.IsError})
	case "web_search_tool_result":
		content := b.ServerToolContent
		if content == nil {
			content = json.RawMessage("[]")
		}
		return json.Marshal(struct {
			Type      string          `json:"type"`
			ToolUseID string          `json:"tool_use_id"`
			Content   json.RawMessage `json:"content"`
		}{b.Type, b.ToolUseID, content})
	default:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{b.Type})
	}
}

func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	type wire struct {
		Type         string          `json:"type"`
		Text         string          `json:"text"`
		Thinking     string          `json:"thinking"`
		ID           string          `json:"id"`
		Name         string          `json:"name"`
		Input        map[string]any  `json:"input"`
		RawArguments string          `json:"raw_arguments"`
		ToolUseID    string          `json:"tool_use_id"`
		Content      json.RawMessage `json:"content"`
		IsError      *bool           `json:"is_error"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	b.Type = w.Type
	b.Text = w.Text
	b.Thinking = w.Thinking
	b.ID = w.ID
	b.Name = w.Name
	b.Input = w.Input
	b.RawArguments = w.RawArguments
	b.ToolUseID = w.ToolUseID
	b.IsError = w.IsError
	if w.Content != nil {
		switch w.Type {
		case "web_search_tool_result":
			b.ServerToolContent = w.Content
		default:
			if err := json.Unmarshal(w.Content, &b.Content); err != nil {
				return err
			}
		}
	}
	return nil
}

// ToolResultValue holds a tool_result's content, which is either a bare
// string or an ordered sequence of text blocks.
type ToolResultValue struct {
	Text    string
	IsText  bool
	Blocks  []TextBlock
	IsEmpty bool
}

func (v *ToolResultValue) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		v.IsEmpty = true
		return nil
	}
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		v.Text = asString
		v.IsText = true
		return nil
	}
	var asBlocks []TextBlock
	if err := json.Unmarshal(data, &asBlocks); err != nil {
		return err
	}
	v.Blocks = asBlocks
	return nil
}

func (v ToolResultValue) MarshalJSON() ([]byte, error) {
	if v.IsEmpty {
		return []byte("null"), nil
	}
	if v.IsText {
		return json.Marshal(v.Text)
	}
	return json.Marshal(v.Blocks)
}

// Flattened renders the tool result content as a single string, joining
// text blocks with newlines.
func (v ToolResultValue) Flattened() string {
	if v.IsText {
		return v.Text
	}
	out := ""
	for i, b := range v.Blocks {
		if i > 0 {
			out += "\n"
		}
		out += b.Text
	}
	return out
}

// ToolDef describes a client-declared tool.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
	// Type distinguishes the web_search_20250305 server tool from ordinary
	// function tools; empty/absent means an ordinary function tool.
	Type           string   `json:"type,omitempty"`
	MaxUses        *int     `json:"max_uses,omitempty"`
	AllowedDomains []string `json:"allowed_domains,omitempty"`
}

// ToolChoice is {auto|any|none|named(name)}.
type ToolChoice struct {
	Type string `json:"type"` // "auto" | "any" | "none" | "tool"
	Name string `json:"name,omitempty"`
}

func (t *ToolChoice) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		t.Type = asString
		return nil
	}
	type wire struct {
		Type string `json:"type"`
		Name string `json:"name,omitempty"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	t.Type = w.Type
	t.Name = w.Name
	return nil
}

// MessagesResponse is the non-streaming Anthropic-shaped reply.
type MessagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	StopSeq    *string        `json:"stop_sequence,omitempty"`
	Usage      Usage          `json:"usage"`
}

// Usage is the input/output token pair.
type Usage struct {
	InputTokens          int `json:"input_tokens"`
	OutputTokens         int `json:"output_tokens"`
	CacheReadInputTokens int `json:"cache_read_input_tokens,omitempty"`
}

// ErrorEnvelope is the Anthropic-style error body shared by HTTP error
// responses and mid-stream SSE "error" frames.
type ErrorEnvelope struct {
	Type  string       `json:"type"`
	Error ErrorDetails `json:"error"`
}

// ErrorDetails carries the error kind/message plus optional extras.
type ErrorDetails struct {
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Param   string          `json:"param,omitempty"`
	Code    string          `json:"code,omitempty"`
	OpenAI  json.RawMessage `json:"openai,omitempty"`
}

// TokenCountRequest is the body of /v1/messages/count_tokens.
type TokenCountRequest struct {
	Model      string        `json:"model"`
	Messages   []Message     `json:"messages"`
	System     *SystemPrompt `json:"system,omitempty"`
	Tools      []ToolDef     `json:"tools,omitempty"`
	ToolChoice *ToolChoice   `json:"tool_choice,omitempty"`
}

// TokenCountResponse is the body of /v1/messages/count_tokens's reply.
type TokenCountResponse struct {
	InputTokens int `json:"input_tokens"`
}

// HealthResponse backs GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
	TechStack string `json:"tech_stack,omitempty"`
}
