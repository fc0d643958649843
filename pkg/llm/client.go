// Package llm defines the contract between the relance controller and a
// language model.
//
// A Client receives the bounded transcript plus the advertised tools and
// returns either a natural-language answer or a list of tool calls. Tool
// calls within one response keep the order the model produced them in.
//
// Example usage:
//
//	client, err := openai.NewClient(os.Getenv("OPENAI_API_KEY"), openai.WithModel("gpt-4o"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := client.Send(ctx, &llm.Request{
//	    Messages: []*types.Message{types.NewUserMessage("Create a folder named Recipes")},
//	    Tools:    registry.Definitions(),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if resp.HasToolCalls() {
//	    // execute resp.ToolCalls
//	}
package llm

import (
	"context"

	"github.com/entrhq/relance/pkg/agent/tools"
	"github.com/entrhq/relance/pkg/types"
)

// Client sends a conversation to a model.
type Client interface {
	// Send returns the model's next response for req.
	//
	// An error means no usable response was produced (transport failure,
	// rejected request, cancelled context). A response with neither content
	// nor tool calls is valid and is treated as an empty final answer.
	Send(ctx context.Context, req *Request) (*Response, error)

	// Model returns the model name used for requests.
	Model() string
}

// Request is one model invocation.
type Request struct {
	// SystemPrompt is prepended to the transcript when non-empty.
	SystemPrompt string

	// Messages is the transcript, already bounded by the caller.
	Messages []*types.Message

	// Tools lists the callable tools, in a stable order.
	Tools []tools.Definition
}

// Response is the model output for one Request.
type Response struct {
	// Content is the assistant text with any thinking blocks removed.
	Content string

	// Thinking holds reasoning the model emitted inside thinking tags.
	Thinking string

	// ToolCalls are the requested invocations, in model order.
	ToolCalls []types.ToolInvocationRequest

	// Usage reports token counts when the provider returns them.
	Usage Usage
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// HasToolCalls reports whether the model asked for tools.
func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}
