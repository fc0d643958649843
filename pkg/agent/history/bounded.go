package history

import (
	"fmt"

	"github.com/entrhq/relance/pkg/types"
)

// GetBounded returns the most recent slice of the transcript that contains at
// most maxPlain plain messages, in original order.
//
// The scan walks backward from the newest message and stops at the first
// plain message beyond the budget. Tool messages inside the window do not
// count against the budget. Every kept result pulls in its tool-calls message
// and every kept tool-calls message pulls in all of its results, even from
// outside the window. Results with no originating call are dropped.
// A non-positive maxPlain returns the whole transcript.
func (c *Conversation) GetBounded(maxPlain int) []*types.Message {
	return Bound(c.messages, maxPlain)
}

// Bound applies the GetBounded truncation to an arbitrary message list.
func Bound(msgs []*types.Message, maxPlain int) []*types.Message {
	n := len(msgs)
	owners := resultOwners(msgs)

	keep := make([]bool, n)
	if maxPlain <= 0 {
		for i := range keep {
			keep[i] = true
		}
	} else {
		count := 0
		for i := n - 1; i >= 0; i-- {
			if msgs[i].IsPlain() {
				if count == maxPlain {
					break
				}
				count++
			}
			keep[i] = true
		}
	}

	// Closure: results pull in their calls message.
	for i := 0; i < n; i++ {
		if !keep[i] || msgs[i].Kind() != types.KindToolResult {
			continue
		}
		if owners[i] < 0 {
			keep[i] = false
			continue
		}
		keep[owners[i]] = true
	}
	// Closure: calls messages pull in all of their results.
	for i := 0; i < n; i++ {
		if msgs[i].Kind() == types.KindToolResult && owners[i] >= 0 && keep[owners[i]] {
			keep[i] = true
		}
	}

	out := make([]*types.Message, 0, n)
	for i, k := range keep {
		if k {
			out = append(out, msgs[i])
		}
	}
	return out
}

// resultOwners maps each tool result index to the index of the nearest
// preceding tool-calls message that lists its id, or -1. Every other index
// maps to -1. A replayed id may appear in several tool-calls messages.
func resultOwners(msgs []*types.Message) []int {
	owners := make([]int, len(msgs))
	latest := make(map[string]int)
	for i, msg := range msgs {
		owners[i] = -1
		switch msg.Kind() {
		case types.KindAssistantToolCalls:
			for _, call := range msg.ToolCalls {
				latest[call.ID] = i
			}
		case types.KindToolResult:
			if owner, ok := latest[msg.ToolCallID()]; ok {
				owners[i] = owner
			}
		}
	}
	return owners
}

// CheckPairing verifies that every tool-calls message in msgs has exactly one
// result per call and that every result answers a tool-calls message.
func CheckPairing(msgs []*types.Message) error {
	owners := resultOwners(msgs)
	answered := make(map[int]map[string]int)

	for i, msg := range msgs {
		if msg.Kind() != types.KindToolResult {
			continue
		}
		if owners[i] < 0 {
			return fmt.Errorf("message %d: result %q has no tool-calls message", i, msg.ToolCallID())
		}
		if answered[owners[i]] == nil {
			answered[owners[i]] = make(map[string]int)
		}
		answered[owners[i]][msg.ToolCallID()]++
	}

	for i, msg := range msgs {
		if msg.Kind() != types.KindAssistantToolCalls {
			continue
		}
		want := make(map[string]int, len(msg.ToolCalls))
		for _, call := range msg.ToolCalls {
			want[call.ID]++
		}
		for id, n := range want {
			if got := answered[i][id]; got != n {
				return fmt.Errorf("message %d: call %q has %d results, want %d", i, id, got, n)
			}
		}
		for id := range answered[i] {
			if want[id] == 0 {
				return fmt.Errorf("message %d: unexpected result for %q", i, id)
			}
		}
	}
	return nil
}
