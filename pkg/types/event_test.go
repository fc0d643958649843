package types

import (
	"errors"
	"testing"
)

func TestAgentEventType(t *testing.T) {
	tests := []struct {
		eventType AgentEventType
		name      string
		expected  string
	}{
		{name: "turn_start", eventType: EventTypeTurnStart, expected: "turn_start"},
		{name: "api_call_start", eventType: EventTypeAPICallStart, expected: "api_call_start"},
		{name: "tool_call", eventType: EventTypeToolCall, expected: "tool_call"},
		{name: "tool_result", eventType: EventTypeToolResult, expected: "tool_result"},
		{name: "tool_result_error", eventType: EventTypeToolResultError, expected: "tool_result_error"},
		{name: "relance", eventType: EventTypeRelance, expected: "relance"},
		{name: "forced_final", eventType: EventTypeForcedFinal, expected: "forced_final"},
		{name: "turn_end", eventType: EventTypeTurnEnd, expected: "turn_end"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.eventType) != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, string(tt.eventType))
			}
		})
	}
}

func TestNewToolResultEvent(t *testing.T) {
	req := ToolInvocationRequest{ID: "t1", ToolName: "create_folder"}

	ok := NewToolResultEvent(1, NewSuccessResult(req, []byte(`{"id":"f1"}`)))
	if ok.Type != EventTypeToolResult {
		t.Errorf("expected type %s, got %s", EventTypeToolResult, ok.Type)
	}
	if ok.Round != 1 {
		t.Errorf("expected round 1, got %d", ok.Round)
	}

	failed := NewToolResultEvent(2, NewErrorResult(req, CodeExecutionError, "boom"))
	if failed.Type != EventTypeToolResultError {
		t.Errorf("expected type %s, got %s", EventTypeToolResultError, failed.Type)
	}
}

func TestNewForcedFinalEvent(t *testing.T) {
	event := NewForcedFinalEvent(3, CodeRelanceBudgetExceeded, "truncated")

	if event.Type != EventTypeForcedFinal {
		t.Errorf("expected type %s, got %s", EventTypeForcedFinal, event.Type)
	}
	if event.Metadata["reason"] != string(CodeRelanceBudgetExceeded) {
		t.Errorf("expected reason %s, got %v", CodeRelanceBudgetExceeded, event.Metadata["reason"])
	}
	if event.Content != "truncated" {
		t.Errorf("expected content 'truncated', got %q", event.Content)
	}
}

func TestNewBatchEvents(t *testing.T) {
	info := BatchInfo{BatchID: "b1", Chunk: 1, Chunks: 3, Size: 20}

	start := NewBatchStartEvent(info)
	end := NewBatchEndEvent(info)

	if start.Type != EventTypeBatchStart || end.Type != EventTypeBatchEnd {
		t.Fatalf("unexpected types %s/%s", start.Type, end.Type)
	}
	if start.Batch.Size != 20 || end.Batch.Chunks != 3 {
		t.Errorf("batch info not propagated: %+v", start.Batch)
	}
}

func TestNewErrorEvent(t *testing.T) {
	err := errors.New("model unavailable")
	event := NewErrorEvent(err)

	if event.Type != EventTypeError {
		t.Errorf("expected type %s, got %s", EventTypeError, event.Type)
	}
	if !errors.Is(event.Error, err) {
		t.Errorf("expected error %v, got %v", err, event.Error)
	}
	if event.Metadata == nil {
		t.Error("expected metadata to be initialized")
	}
}
