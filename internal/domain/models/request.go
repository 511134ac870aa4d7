package models

import (
	"encoding/json"
	"fmt"
)

// Chat roles accepted on the wire, following the OpenAI API schema.
// RoleObservation is not a wire role: it is the engine-side role that tool
// results are fed as after normalization.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleFunction  = "function"
	RoleTool      = "tool"

	RoleObservation = "observation"
)

// Content part types for multimodal messages.
const (
	PartTypeText     = "text"
	PartTypeImageURL = "image_url"
	PartTypeVideoURL = "video_url"
	PartTypeAudioURL = "audio_url"
)

// PartURL wraps a media locator inside a content part.
type PartURL struct {
	URL string `json:"url"`
}

// ContentPart is one entry of a structured message content list. Exactly one
// of the payload fields is set, selected by Type.
type ContentPart struct {
	Type     string   `json:"type"`
	Text     string   `json:"text,omitempty"`
	ImageURL *PartURL `json:"image_url,omitempty"`
	VideoURL *PartURL `json:"video_url,omitempty"`
	AudioURL *PartURL `json:"audio_url,omitempty"`
}

// FunctionSchema describes a callable function offered to the model.
type FunctionSchema struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

// ToolDefinition wraps a function schema in the OpenAI tool envelope.
type ToolDefinition struct {
	Type     string         `json:"type"`
	Function FunctionSchema `json:"function"`
}

// FunctionSpec is a concrete function invocation: a name plus JSON-encoded
// arguments.
type FunctionSpec struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a model-issued function invocation with its correlation id.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

// ChatMessage is a single conversation turn. Content is either a plain
// string or a list of content parts; both JSON forms are accepted on the
// wire, and assistant responses carrying tool calls leave it null.
type ChatMessage struct {
	Role      string     `json:"role"`
	Content   any        `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// TextContent returns the plain-string content, or "" when the content is
// absent or structured.
func (m *ChatMessage) TextContent() string {
	if s, ok := m.Content.(string); ok {
		return s
	}
	return ""
}

// HasParts reports whether the content is a structured part list rather than
// a plain string.
func (m *ChatMessage) HasParts() bool {
	switch m.Content.(type) {
	case []ContentPart, []any:
		return true
	}
	return false
}

// ContentParts decodes the structured content list. It accepts both directly
// constructed []ContentPart values and the []any form produced by JSON
// decoding.
func (m *ChatMessage) ContentParts() ([]ContentPart, error) {
	switch v := m.Content.(type) {
	case []ContentPart:
		return v, nil
	case []any:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var parts []ContentPart
		if err := json.Unmarshal(raw, &parts); err != nil {
			return nil, err
		}
		return parts, nil
	default:
		return nil, fmt.Errorf("content is not a part list")
	}
}

// StringList accepts either a single JSON string or an array of strings.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (s *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("stop must be a string or an array of strings")
	}
	*s = StringList(many)
	return nil
}

// ChatCompletionRequest is the request body of POST /v1/chat/completions,
// compatible with the OpenAI chat completions schema. PresencePenalty maps
// to the engine's repetition penalty.
type ChatCompletionRequest struct {
	Model           string           `json:"model"`
	Messages        []ChatMessage    `json:"messages"`
	Tools           []ToolDefinition `json:"tools,omitempty"`
	DoSample        *bool            `json:"do_sample,omitempty"`
	Temperature     *float64         `json:"temperature,omitempty"`
	TopP            *float64         `json:"top_p,omitempty"`
	N               int              `json:"n,omitempty"`
	MaxTokens       *int             `json:"max_tokens,omitempty"`
	PresencePenalty *float64         `json:"presence_penalty,omitempty"`
	Stop            StringList       `json:"stop,omitempty"`
	Stream          bool             `json:"stream,omitempty"`
}

// GetN returns the number of requested choices, defaulting to one.
func (r *ChatCompletionRequest) GetN() int {
	if r.N <= 0 {
		return 1
	}
	return r.N
}
