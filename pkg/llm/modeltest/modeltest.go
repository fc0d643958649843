// Package modeltest provides scripted llm.Client implementations for tests
// and offline demos.
package modeltest

import (
	"context"
	"errors"
	"sync"

	"github.com/entrhq/relance/pkg/llm"
	"github.com/entrhq/relance/pkg/types"
)

// ErrScriptExhausted is returned when a Script has no responses left.
var ErrScriptExhausted = errors.New("modeltest: no scripted responses left")

// Step is one scripted reply. Exactly one of Response or Err is used.
type Step struct {
	Response *llm.Response
	Err      error
}

// Text returns a step answering with plain text.
func Text(content string) Step {
	return Step{Response: &llm.Response{Content: content}}
}

// ToolCalls returns a step requesting the given calls.
func ToolCalls(calls ...types.ToolInvocationRequest) Step {
	copied := make([]types.ToolInvocationRequest, len(calls))
	copy(copied, calls)
	return Step{Response: &llm.Response{ToolCalls: copied}}
}

// Fail returns a step that makes Send fail with err.
func Fail(err error) Step {
	return Step{Err: err}
}

// Script replays a fixed sequence of steps and records every request.
type Script struct {
	mu       sync.Mutex
	steps    []Step
	requests []*llm.Request
	model    string
}

// NewScript creates a client that answers with steps in order.
func NewScript(steps ...Step) *Script {
	return &Script{steps: steps, model: "scripted"}
}

// Model implements llm.Client.
func (s *Script) Model() string {
	return s.model
}

// Send implements llm.Client.
func (s *Script) Send(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, snapshot(req))
	if len(s.steps) == 0 {
		return nil, ErrScriptExhausted
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Response, nil
}

// Requests returns the requests received so far.
func (s *Script) Requests() []*llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*llm.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Calls returns how many times Send was invoked.
func (s *Script) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Remaining returns how many steps have not been consumed.
func (s *Script) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}

// Func adapts a function to llm.Client.
type Func func(ctx context.Context, req *llm.Request) (*llm.Response, error)

// Send implements llm.Client.
func (f Func) Send(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	return f(ctx, req)
}

// Model implements llm.Client.
func (f Func) Model() string {
	return "func"
}

// snapshot copies the message slice so later appends by the caller do not
// change what was recorded.
func snapshot(req *llm.Request) *llm.Request {
	if req == nil {
		return nil
	}
	cp := *req
	cp.Messages = make([]*types.Message, len(req.Messages))
	copy(cp.Messages, req.Messages)
	return &cp
}
