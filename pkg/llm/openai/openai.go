// Package openai provides an OpenAI-compatible model client built on the
// official openai-go SDK with native function calling.
//
// Example usage:
//
//	client, err := openai.NewClient(
//	    os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel("gpt-4o"),
//	)
//	if err != nil {
//	    panic(err)
//	}
//
//	resp, err := client.Send(context.Background(), &llm.Request{
//	    Messages: []*types.Message{types.NewUserMessage("Hello!")},
//	})
package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/entrhq/relance/pkg/agent/tools"
	"github.com/entrhq/relance/pkg/llm"
	"github.com/entrhq/relance/pkg/llm/parser"
	"github.com/entrhq/relance/pkg/types"
)

const (
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is used when no model is configured
	DefaultModel = "gpt-4o"
)

// Client implements llm.Client for OpenAI-compatible chat completion APIs.
type Client struct {
	sdk        openai.Client
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	maxRetries int
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithModel sets the model to use for completions.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL sets a custom base URL for OpenAI-compatible APIs.
// This enables using Azure OpenAI, local models, or other compatible services.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithHTTPClient sets the HTTP client used for API requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMaxRetries sets how many times the SDK retries retryable failures.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// NewClient creates a new OpenAI client with the given API key.
//
// If apiKey is empty, it will attempt to read from the OPENAI_API_KEY environment variable.
// If baseURL is not provided via WithBaseURL option, it will check OPENAI_BASE_URL environment variable.
//
// Example:
//
//	// Standard OpenAI
//	client, _ := openai.NewClient("sk-...", openai.WithModel("gpt-4o"))
//
//	// Local OpenAI-compatible API
//	client, _ := openai.NewClient("local",
//	    openai.WithBaseURL("http://localhost:8080/v1"))
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (provide via parameter or OPENAI_API_KEY environment variable)")
	}

	c := &Client{
		model:      DefaultModel,
		apiKey:     apiKey,
		httpClient: &http.Client{},
		baseURL:    DefaultBaseURL,
		maxRetries: 2,
	}

	for _, opt := range opts {
		opt(c)
	}

	// If baseURL wasn't set by options, check environment variable
	if c.baseURL == DefaultBaseURL {
		if envBaseURL := os.Getenv("OPENAI_BASE_URL"); envBaseURL != "" {
			c.baseURL = envBaseURL
		}
	}

	c.sdk = openai.NewClient(
		option.WithAPIKey(c.apiKey),
		option.WithBaseURL(c.baseURL),
		option.WithHTTPClient(c.httpClient),
		option.WithMaxRetries(c.maxRetries),
	)
	return c, nil
}

// Model returns the model name being used.
func (c *Client) Model() string {
	return c.model
}

// BaseURL returns the base URL being used.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Send performs one non-streaming chat completion.
func (c *Client) Send(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: convertMessages(req.SystemPrompt, req.Messages),
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	completion, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	msg := completion.Choices[0].Message
	thinking, content := parser.SplitThinking(msg.Content)

	resp := &llm.Response{
		Content:  strings.TrimSpace(content),
		Thinking: strings.TrimSpace(thinking),
		Usage: llm.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
		},
	}
	for _, tc := range msg.ToolCalls {
		id := tc.ID
		if id == "" {
			// some compatible servers omit ids
			id = "call_" + uuid.NewString()
		}
		resp.ToolCalls = append(resp.ToolCalls, types.ToolInvocationRequest{
			ID:            id,
			ToolName:      tc.Function.Name,
			ArgumentsJSON: tc.Function.Arguments,
		})
	}
	return resp, nil
}

// convertMessages converts the transcript to chat completion message params.
func convertMessages(systemPrompt string, messages []*types.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, openai.SystemMessage(systemPrompt))
	}

	for _, msg := range messages {
		switch msg.Kind() {
		case types.KindUser:
			out = append(out, openai.UserMessage(msg.Content))
		case types.KindAssistantText:
			out = append(out, openai.AssistantMessage(msg.Content))
		case types.KindAssistantToolCalls:
			out = append(out, assistantToolCalls(msg))
		case types.KindToolResult:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID()))
		}
	}
	return out
}

func assistantToolCalls(msg *types.Message) openai.ChatCompletionMessageParamUnion {
	calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(msg.ToolCalls))
	for _, call := range msg.ToolCalls {
		args := call.ArgumentsJSON
		if args == "" {
			args = "{}"
		}
		calls = append(calls, openai.ChatCompletionMessageToolCallParam{
			ID: call.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      call.ToolName,
				Arguments: args,
			},
		})
	}

	assistant := &openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
	if msg.Content != "" {
		assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: openai.String(msg.Content),
		}
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: assistant}
}

// convertTools advertises registry definitions as function tools.
func convertTools(defs []tools.Definition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		fn := openai.FunctionDefinitionParam{
			Name:       def.Name,
			Parameters: openai.FunctionParameters(def.Parameters),
		}
		if def.Description != "" {
			fn.Description = openai.String(def.Description)
		}
		out = append(out, openai.ChatCompletionToolParam{Function: fn})
	}
	return out
}
