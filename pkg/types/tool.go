package types

import (
	"encoding/json"
	"time"
)

// ErrorCode classifies why a tool call did not produce a successful result.
// Codes are surfaced to the model inside the tool result payload so it can adapt.
type ErrorCode string

const (
	CodeDuplicateID           ErrorCode = "DUPLICATE_ID"            // CodeDuplicateID is the ledger reason for an id that already ran.
	CodeDuplicateSignature    ErrorCode = "DUPLICATE_SIGNATURE"     // CodeDuplicateSignature is the ledger reason for a repeated call inside the TTL window.
	CodeAntiLoopID            ErrorCode = "ANTI_LOOP_ID"            // CodeAntiLoopID is reported when the ledger denied a call by id.
	CodeAntiLoopSignature     ErrorCode = "ANTI_LOOP_SIGNATURE"     // CodeAntiLoopSignature is reported when the ledger denied a call by signature.
	CodeToolNotFound          ErrorCode = "TOOL_NOT_FOUND"          // CodeToolNotFound indicates the tool name is not registered or is disabled.
	CodeInvalidArguments      ErrorCode = "INVALID_ARGUMENTS"       // CodeInvalidArguments indicates the arguments failed schema validation.
	CodeExecutionError        ErrorCode = "EXECUTION_ERROR"         // CodeExecutionError indicates the handler failed, panicked or timed out.
	CodeCancelled             ErrorCode = "CANCELLED"               // CodeCancelled indicates the conversation was cancelled before the call ran.
	CodeRelanceBudgetExceeded ErrorCode = "RELANCE_BUDGET_EXCEEDED" // CodeRelanceBudgetExceeded is the controller-level code for a forced final answer.
	CodeAntiLoopExhausted     ErrorCode = "ANTI_LOOP_EXHAUSTED"     // CodeAntiLoopExhausted is the controller-level code when every call of several rounds was denied.
)

// ToolInvocationRequest is a single tool call requested by the model.
// ID is model-generated and therefore untrusted.
type ToolInvocationRequest struct {
	ID            string `json:"id"`
	ToolName      string `json:"tool_name"`
	ArgumentsJSON string `json:"arguments"`
}

// ErrorPayload is the payload of a failed tool call.
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ToolCallResult is the normalized outcome of one tool invocation.
// Results are immutable once created.
type ToolCallResult struct {
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name"`
	Success    bool            `json:"success"`
	Payload    json.RawMessage `json:"payload"`
	Error      *ErrorPayload   `json:"error,omitempty"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// NewSuccessResult wraps a handler payload for the given request.
func NewSuccessResult(req ToolInvocationRequest, payload json.RawMessage) *ToolCallResult {
	return &ToolCallResult{
		ToolCallID: req.ID,
		ToolName:   req.ToolName,
		Success:    true,
		Payload:    payload,
		ExecutedAt: time.Now(),
	}
}

// NewErrorResult builds a failed result. The payload carries the same code and
// message as Error so the model sees them in the serialized tool message.
func NewErrorResult(req ToolInvocationRequest, code ErrorCode, message string) *ToolCallResult {
	errPayload := &ErrorPayload{Code: code, Message: message}
	payload, err := json.Marshal(errPayload)
	if err != nil {
		payload = json.RawMessage(`{"code":"` + string(code) + `"}`)
	}
	return &ToolCallResult{
		ToolCallID: req.ID,
		ToolName:   req.ToolName,
		Success:    false,
		Payload:    payload,
		Error:      errPayload,
		ExecutedAt: time.Now(),
	}
}

// Code returns the error code of a failed result, or an empty code on success.
func (r *ToolCallResult) Code() ErrorCode {
	if r == nil || r.Error == nil {
		return ""
	}
	return r.Error.Code
}

// IsAntiLoopDenial reports whether the ledger refused to run the call.
func (r *ToolCallResult) IsAntiLoopDenial() bool {
	code := r.Code()
	return code == CodeAntiLoopID || code == CodeAntiLoopSignature
}

// Content renders the result as the text sent back to the model.
func (r *ToolCallResult) Content() string {
	if len(r.Payload) == 0 {
		if r.Success {
			return "{}"
		}
		return `{"code":"` + string(r.Code()) + `"}`
	}
	return string(r.Payload)
}
