package types

import "time"

// MessageRole is the speaker of a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"      // RoleUser marks messages written by the end user.
	RoleAssistant MessageRole = "assistant" // RoleAssistant marks model output (text or tool calls).
	RoleTool      MessageRole = "tool"      // RoleTool marks a tool result fed back to the model.
)

// MessageKind identifies which variant of the chat message union a Message holds.
type MessageKind int

const (
	// KindUser is a plain user message.
	KindUser MessageKind = iota

	// KindAssistantText is a natural-language assistant answer.
	KindAssistantText

	// KindAssistantToolCalls is an assistant turn requesting one or more tool calls.
	KindAssistantToolCalls

	// KindToolResult carries the result of exactly one tool call.
	KindToolResult
)

// String returns a readable name for the kind.
func (k MessageKind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindAssistantText:
		return "assistant_text"
	case KindAssistantToolCalls:
		return "assistant_tool_calls"
	case KindToolResult:
		return "tool_result"
	default:
		return "unknown"
	}
}

// Message is one entry of a conversation transcript.
//
// Exactly one variant is populated:
//   - user / assistant text: Role with Content
//   - assistant tool calls: RoleAssistant with ToolCalls (Content is optional preamble)
//   - tool result: RoleTool with ToolResult
type Message struct {
	Role       MessageRole             `json:"role"`
	Content    string                  `json:"content,omitempty"`
	ToolCalls  []ToolInvocationRequest `json:"tool_calls,omitempty"`
	ToolResult *ToolCallResult         `json:"tool_result,omitempty"`
	Metadata   map[string]interface{}  `json:"metadata,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) *Message {
	return &Message{
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewAssistantMessage creates a plain assistant text message.
func NewAssistantMessage(content string) *Message {
	return &Message{
		Role:      RoleAssistant,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewToolCallsMessage creates an assistant message requesting tool calls.
// The slice is copied so later mutation by the caller cannot desync the transcript.
func NewToolCallsMessage(calls []ToolInvocationRequest) *Message {
	copied := make([]ToolInvocationRequest, len(calls))
	copy(copied, calls)
	return &Message{
		Role:      RoleAssistant,
		ToolCalls: copied,
		CreatedAt: time.Now(),
	}
}

// NewToolResultMessage creates the tool message answering one tool call.
func NewToolResultMessage(result *ToolCallResult) *Message {
	msg := &Message{
		Role:       RoleTool,
		ToolResult: result,
		CreatedAt:  time.Now(),
	}
	if result != nil {
		msg.Content = result.Content()
	}
	return msg
}

// Kind reports the union variant held by the message.
func (m *Message) Kind() MessageKind {
	switch {
	case m.Role == RoleTool:
		return KindToolResult
	case m.Role == RoleAssistant && len(m.ToolCalls) > 0:
		return KindAssistantToolCalls
	case m.Role == RoleAssistant:
		return KindAssistantText
	default:
		return KindUser
	}
}

// IsPlain reports whether the message is a user or assistant text message.
func (m *Message) IsPlain() bool {
	k := m.Kind()
	return k == KindUser || k == KindAssistantText
}

// ToolCallID returns the id answered by a tool result message.
func (m *Message) ToolCallID() string {
	if m.ToolResult == nil {
		return ""
	}
	return m.ToolResult.ToolCallID
}

// WithMetadata sets a metadata key and returns the message for chaining.
func (m *Message) WithMetadata(key string, value interface{}) *Message {
	if m.Metadata == nil {
		m.Metadata = make(map[string]interface{})
	}
	m.Metadata[key] = value
	return m
}
