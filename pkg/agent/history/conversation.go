// Package history keeps the conversation transcript of one chat session.
//
// The transcript is a sequence of plain messages (user, assistant text) and
// tool-call groups. A group is an assistant tool-calls message followed by
// one tool result per requested call. Groups are appended, evicted and
// truncated as single units so the model never sees a call without its
// result or a result without its call.
package history

import (
	"errors"
	"fmt"

	"github.com/entrhq/relance/pkg/logging"
	"github.com/entrhq/relance/pkg/types"
)

var (
	// ErrPendingToolCalls is returned when a message is appended while the
	// last tool-calls message still waits for results.
	ErrPendingToolCalls = errors.New("tool calls are waiting for results")

	// ErrUnexpectedToolResult is returned when a result does not answer a
	// pending call.
	ErrUnexpectedToolResult = errors.New("tool result does not answer a pending call")

	// ErrEmptyToolCalls is returned for a tool-calls message without calls.
	ErrEmptyToolCalls = errors.New("tool calls message has no calls")
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("history")
	if err != nil {
		debugLog.Warnf("Failed to initialize history logger, using stderr fallback: %v", err)
	}
}

// Conversation is the bounded transcript of one session.
//
// It has no internal locking: it is mutated only by the controller that owns
// the session, one turn at a time.
type Conversation struct {
	messages  []*types.Message
	pending   map[string]int
	maxStored int
	evicted   int
	logger    *logging.Logger
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithMaxStored caps the number of stored messages. When the cap is exceeded
// the oldest unit is evicted. Zero disables the cap.
func WithMaxStored(n int) Option {
	return func(c *Conversation) {
		if n >= 0 {
			c.maxStored = n
		}
	}
}

// WithLogger sets the logger used for eviction diagnostics.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Conversation) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewConversation creates an empty transcript.
func NewConversation(opts ...Option) *Conversation {
	c := &Conversation{
		pending: make(map[string]int),
		logger:  debugLog,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Append adds one message, enforcing the pairing order: results may only
// answer the open tool-calls message, and nothing else may be appended until
// every call of that message has a result.
func (c *Conversation) Append(msg *types.Message) error {
	if msg == nil {
		return fmt.Errorf("cannot append nil message")
	}

	switch msg.Kind() {
	case types.KindToolResult:
		id := msg.ToolCallID()
		if c.pending[id] == 0 {
			return fmt.Errorf("%w: %q", ErrUnexpectedToolResult, id)
		}
		c.pending[id]--
		if c.pending[id] == 0 {
			delete(c.pending, id)
		}

	case types.KindAssistantToolCalls:
		if len(c.pending) > 0 {
			return ErrPendingToolCalls
		}
		for _, call := range msg.ToolCalls {
			c.pending[call.ID]++
		}

	default:
		if len(c.pending) > 0 {
			return ErrPendingToolCalls
		}
	}

	c.messages = append(c.messages, msg)
	c.compact()
	return nil
}

// AppendExchange appends a tool-calls message and its results as one unit.
// Either the whole group is appended or nothing is.
func (c *Conversation) AppendExchange(calls []types.ToolInvocationRequest, results []*types.ToolCallResult) error {
	if len(calls) == 0 {
		return ErrEmptyToolCalls
	}
	if len(c.pending) > 0 {
		return ErrPendingToolCalls
	}

	want := make(map[string]int, len(calls))
	for _, call := range calls {
		want[call.ID]++
	}
	for _, r := range results {
		if r == nil || want[r.ToolCallID] == 0 {
			id := ""
			if r != nil {
				id = r.ToolCallID
			}
			return fmt.Errorf("%w: %q", ErrUnexpectedToolResult, id)
		}
		want[r.ToolCallID]--
	}
	for id, n := range want {
		if n > 0 {
			return fmt.Errorf("%w: missing result for %q", ErrPendingToolCalls, id)
		}
	}

	group := make([]*types.Message, 0, len(results)+1)
	group = append(group, types.NewToolCallsMessage(calls))
	for _, r := range results {
		group = append(group, types.NewToolResultMessage(r))
	}
	c.messages = append(c.messages, group...)
	c.compact()
	return nil
}

// Messages returns a copy of the stored transcript.
func (c *Conversation) Messages() []*types.Message {
	out := make([]*types.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of stored messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Evicted returns how many messages the stored cap has removed so far.
func (c *Conversation) Evicted() int {
	return c.evicted
}

// Pending returns the number of calls still waiting for a result.
func (c *Conversation) Pending() int {
	n := 0
	for _, count := range c.pending {
		n += count
	}
	return n
}

// Clear removes every message.
func (c *Conversation) Clear() {
	c.messages = nil
	c.pending = make(map[string]int)
}

// Load replaces the transcript with msgs, typically read back from a store.
// A trailing tool-calls group that never received all of its results is
// dropped, since it cannot be sent to the model.
func (c *Conversation) Load(msgs []*types.Message) error {
	c.Clear()

	maxStored := c.maxStored
	c.maxStored = 0
	defer func() {
		c.maxStored = maxStored
		c.compact()
	}()

	groupStart := -1
	for i, msg := range msgs {
		if msg.Kind() == types.KindAssistantToolCalls {
			groupStart = len(c.messages)
		}
		if err := c.Append(msg); err != nil {
			return fmt.Errorf("invalid transcript at message %d: %w", i, err)
		}
	}

	if len(c.pending) > 0 && groupStart >= 0 {
		c.logger.Warnf("Dropping %d trailing messages of an unfinished tool-calls group", len(c.messages)-groupStart)
		c.messages = c.messages[:groupStart]
		c.pending = make(map[string]int)
	}
	return nil
}

// compact evicts the oldest units until the stored cap is met. The open
// group and the newest unit are never evicted.
func (c *Conversation) compact() {
	if c.maxStored <= 0 {
		return
	}
	for len(c.messages) > c.maxStored {
		end := unitEnd(c.messages, 0)
		if end >= len(c.messages) {
			return
		}
		c.logger.Debugf("Evicting %d oldest messages (%s)", end, c.messages[0].Kind())
		c.messages = append([]*types.Message(nil), c.messages[end:]...)
		c.evicted += end
	}
}

// unitEnd returns the index just past the unit starting at i.
func unitEnd(msgs []*types.Message, i int) int {
	if msgs[i].Kind() != types.KindAssistantToolCalls {
		return i + 1
	}
	j := i + 1
	for j < len(msgs) && msgs[j].Kind() == types.KindToolResult {
		j++
	}
	return j
}
