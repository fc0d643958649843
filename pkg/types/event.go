package types

// AgentEventType defines the type of event emitted by the relance controller.
type AgentEventType string

const (
	EventTypeTurnStart       AgentEventType = "turn_start"        // EventTypeTurnStart indicates a user message started a new turn.
	EventTypeAPICallStart    AgentEventType = "api_call_start"    // EventTypeAPICallStart indicates the model client is being invoked.
	EventTypeAPICallEnd      AgentEventType = "api_call_end"      // EventTypeAPICallEnd indicates the model client returned.
	EventTypeToolCall        AgentEventType = "tool_call"         // EventTypeToolCall indicates a tool invocation was requested by the model.
	EventTypeToolResult      AgentEventType = "tool_result"       // EventTypeToolResult indicates a successful tool call result.
	EventTypeToolResultError AgentEventType = "tool_result_error" // EventTypeToolResultError indicates a tool call resulted in a failure payload.
	EventTypeBatchStart      AgentEventType = "batch_start"       // EventTypeBatchStart indicates a chunk of tool calls started executing.
	EventTypeBatchEnd        AgentEventType = "batch_end"         // EventTypeBatchEnd indicates a chunk of tool calls finished executing.
	EventTypeRelance         AgentEventType = "relance"           // EventTypeRelance indicates the model is re-invoked with tool results.
	EventTypeForcedFinal     AgentEventType = "forced_final"      // EventTypeForcedFinal indicates the turn was truncated by the anti-loop guards.
	EventTypeTurnEnd         AgentEventType = "turn_end"          // EventTypeTurnEnd indicates the controller reached a terminal state.
	EventTypeError           AgentEventType = "error"             // EventTypeError indicates a turn-fatal error occurred.
)

// AgentEvent represents an event emitted by the controller during a turn.
type AgentEvent struct {
	// Metadata holds optional additional information about the event.
	Metadata map[string]interface{}

	// ToolCall is the request being executed (for tool call events).
	ToolCall *ToolInvocationRequest

	// ToolResult is the outcome of a tool call (for tool result events).
	ToolResult *ToolCallResult

	// Error contains error information for error events.
	Error error

	// Content holds text content, such as the final answer on turn end.
	Content string

	// Type indicates the kind of event.
	Type AgentEventType

	// Round is the relance round the event belongs to (0 for the first model call).
	Round int

	// APICallInfo contains API call information (for API call events).
	APICallInfo *APICallInfo

	// Batch contains chunk information (for batch events).
	Batch *BatchInfo
}

// APICallInfo contains information about a model call.
type APICallInfo struct {
	// MessageCount is the number of transcript messages sent to the model.
	MessageCount int

	// PromptTokens is an estimate of the prompt size, zero when no tokenizer is configured.
	PromptTokens int
}

// BatchInfo describes one chunk run by the batch scheduler.
type BatchInfo struct {
	// BatchID is the logical turn id shared by every chunk of one model response.
	BatchID string

	// Chunk is the zero-based index of the chunk.
	Chunk int

	// Chunks is the total number of chunks for the batch.
	Chunks int

	// Size is the number of calls in the chunk.
	Size int
}

// NewTurnStartEvent creates a turn start event.
func NewTurnStartEvent(content string) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeTurnStart,
		Content:  content,
		Metadata: make(map[string]interface{}),
	}
}

// NewAPICallStartEvent creates a model call start event.
func NewAPICallStartEvent(round, messageCount, promptTokens int) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeAPICallStart,
		Round:    round,
		Metadata: make(map[string]interface{}),
		APICallInfo: &APICallInfo{
			MessageCount: messageCount,
			PromptTokens: promptTokens,
		},
	}
}

// NewAPICallEndEvent creates a model call end event.
func NewAPICallEndEvent(round int) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeAPICallEnd,
		Round:    round,
		Metadata: make(map[string]interface{}),
	}
}

// NewToolCallEvent creates a tool call event.
func NewToolCallEvent(round int, call ToolInvocationRequest) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeToolCall,
		Round:    round,
		ToolCall: &call,
		Metadata: make(map[string]interface{}),
	}
}

// NewToolResultEvent creates a tool result event. Failed results produce a
// tool_result_error event so consumers can switch on Type alone.
func NewToolResultEvent(round int, result *ToolCallResult) *AgentEvent {
	eventType := EventTypeToolResult
	if result != nil && !result.Success {
		eventType = EventTypeToolResultError
	}
	return &AgentEvent{
		Type:       eventType,
		Round:      round,
		ToolResult: result,
		Metadata:   make(map[string]interface{}),
	}
}

// NewBatchStartEvent creates a chunk start event.
func NewBatchStartEvent(info BatchInfo) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeBatchStart,
		Batch:    &info,
		Metadata: make(map[string]interface{}),
	}
}

// NewBatchEndEvent creates a chunk end event.
func NewBatchEndEvent(info BatchInfo) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeBatchEnd,
		Batch:    &info,
		Metadata: make(map[string]interface{}),
	}
}

// NewRelanceEvent creates a relance event for the given round.
func NewRelanceEvent(round int) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeRelance,
		Round:    round,
		Metadata: make(map[string]interface{}),
	}
}

// NewForcedFinalEvent creates a forced final event carrying the reason code.
func NewForcedFinalEvent(round int, reason ErrorCode, content string) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeForcedFinal,
		Round:    round,
		Content:  content,
		Metadata: map[string]interface{}{"reason": string(reason)},
	}
}

// NewTurnEndEvent creates a turn end event with the final answer.
func NewTurnEndEvent(round int, content string) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeTurnEnd,
		Round:    round,
		Content:  content,
		Metadata: make(map[string]interface{}),
	}
}

// NewErrorEvent creates an error event.
func NewErrorEvent(err error) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeError,
		Error:    err,
		Metadata: make(map[string]interface{}),
	}
}
