package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entrhq/relance/pkg/types"
)

// DefaultSystemPrompt tells the model how to report tool outcomes.
const DefaultSystemPrompt = `You are a note-taking assistant that can act on the user's notes and folders through tools.

<tool_use>
- Call tools when the user asks you to create, organize or look up notes.
- You may request several tool calls in one response when they are independent.
- Never repeat a call that already succeeded. A result with code ANTI_LOOP_ID or ANTI_LOOP_SIGNATURE means the call was refused as a repeat; do not retry it.
- When a call fails, read its code and message and either fix the arguments or explain the problem.
</tool_use>

<answer_format>
When you are done, answer in plain language. Summarize what was created or changed and mention any failures.
Never paste raw tool results or JSON into the answer.
</answer_format>`

// restitute returns the text shown to the user for a final answer. Content
// that is nothing but a JSON document is replaced with a summary of the
// turn's tool results, or with a plain notice when no tool ran.
func restitute(content string, results []*types.ToolCallResult) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		if len(results) == 0 {
			return trimmed
		}
		return summarizeResults(results)
	}
	if looksLikeRawJSON(trimmed) {
		return summarizeResults(results)
	}
	return trimmed
}

// looksLikeRawJSON reports whether s is a JSON object or array, optionally
// wrapped in a markdown code fence.
func looksLikeRawJSON(s string) bool {
	s = stripFence(s)
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return false
	}
	return json.Valid([]byte(s))
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	body := strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	}
	return strings.TrimSpace(body)
}

// summarizeResults describes tool outcomes in one or two sentences.
func summarizeResults(results []*types.ToolCallResult) string {
	var succeeded []string
	var failed []string
	for _, r := range results {
		if r == nil {
			continue
		}
		if r.Success {
			succeeded = append(succeeded, r.ToolName)
			continue
		}
		failed = append(failed, fmt.Sprintf("%s (%s)", r.ToolName, r.Code()))
	}

	var b strings.Builder
	switch {
	case len(succeeded) == 0 && len(failed) == 0:
		return "No actions were performed."
	case len(failed) == 0:
		fmt.Fprintf(&b, "Completed %d %s: %s.", len(succeeded), plural(len(succeeded), "action"), strings.Join(countNames(succeeded), ", "))
	case len(succeeded) == 0:
		fmt.Fprintf(&b, "None of the %d requested %s succeeded: %s.", len(failed), plural(len(failed), "action"), strings.Join(failed, ", "))
	default:
		total := len(succeeded) + len(failed)
		fmt.Fprintf(&b, "Completed %d of %d %s: %s.", len(succeeded), total, plural(total, "action"), strings.Join(countNames(succeeded), ", "))
		fmt.Fprintf(&b, " Failed: %s.", strings.Join(failed, ", "))
	}
	return b.String()
}

// truncationNotice is the final answer of a forced stop.
func truncationNotice(reason types.ErrorCode, rounds int, results []*types.ToolCallResult) string {
	var b strings.Builder
	switch reason {
	case types.CodeAntiLoopExhausted:
		b.WriteString("I stopped because my last tool calls were all refused as repeats of earlier ones.")
	default:
		fmt.Fprintf(&b, "I stopped after %d %s of tool calls to avoid an endless loop, so the task may be incomplete.", rounds, plural(rounds, "round"))
	}
	if len(results) > 0 {
		b.WriteString(" ")
		b.WriteString(summarizeResults(results))
	}
	return b.String()
}

// countNames collapses repeated names, keeping first-seen order:
// [a a b] becomes ["a x2", "b"].
func countNames(names []string) []string {
	counts := make(map[string]int, len(names))
	var order []string
	for _, n := range names {
		if counts[n] == 0 {
			order = append(order, n)
		}
		counts[n]++
	}
	out := make([]string, 0, len(order))
	for _, n := range order {
		if counts[n] > 1 {
			out = append(out, fmt.Sprintf("%s x%d", n, counts[n]))
			continue
		}
		out = append(out, n)
	}
	return out
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
