// Package tokenizer estimates prompt sizes with tiktoken encodings.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/entrhq/relance/pkg/types"
)

// DefaultEncoding is used when the model name has no known encoding.
const DefaultEncoding = "cl100k_base"

// Per-message overhead used by chat formats (role markers and separators).
const (
	tokensPerMessage = 3
	tokensPerReply   = 3
)

// Tokenizer counts tokens for a single encoding.
type Tokenizer struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// New creates a tokenizer using the default encoding.
func New() (*Tokenizer, error) {
	return ForModel("")
}

// ForModel creates a tokenizer for the given model, falling back to
// DefaultEncoding when tiktoken does not know the model.
func ForModel(model string) (*Tokenizer, error) {
	if model != "" {
		if enc, err := tiktoken.EncodingForModel(model); err == nil {
			return &Tokenizer{encoding: enc, name: model}, nil
		}
	}
	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s encoding: %w", DefaultEncoding, err)
	}
	return &Tokenizer{encoding: enc, name: DefaultEncoding}, nil
}

// Name returns the model or encoding name the tokenizer was built for.
func (t *Tokenizer) Name() string {
	if t == nil {
		return ""
	}
	return t.name
}

// CountTokens returns the token count of text. A nil tokenizer counts zero.
func (t *Tokenizer) CountTokens(text string) int {
	if t == nil || text == "" {
		return 0
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// CountMessagesTokens estimates the prompt size of a transcript, including
// tool call names and arguments.
func (t *Tokenizer) CountMessagesTokens(messages []*types.Message) int {
	if t == nil || len(messages) == 0 {
		return 0
	}

	total := tokensPerReply
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		total += tokensPerMessage
		total += t.CountTokens(string(msg.Role))
		total += t.CountTokens(msg.Content)
		for _, call := range msg.ToolCalls {
			total += t.CountTokens(call.ToolName)
			total += t.CountTokens(call.ArgumentsJSON)
		}
	}
	return total
}
