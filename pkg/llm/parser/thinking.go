// Package parser extracts structured parts from model output.
package parser

import (
	"strings"
)

// reasoningTags are the tag names models use to wrap private reasoning.
var reasoningTags = []string{"thinking", "think"}

// SplitThinking separates reasoning blocks from the answer. Every
// <thinking>...</thinking> (or <think>...</think>) block is moved to thinking,
// joined by newlines; the remaining text is the message. An unclosed block
// runs to the end of the content. Other tags are left untouched.
func SplitThinking(content string) (thinking, message string) {
	var blocks []string
	var msg strings.Builder

	rest := content
	for rest != "" {
		start, tag := nextOpenTag(rest)
		if start < 0 {
			msg.WriteString(rest)
			break
		}
		msg.WriteString(rest[:start])
		rest = rest[start+len(tag)+2:]

		closing := "</" + tag + ">"
		end := strings.Index(rest, closing)
		if end < 0 {
			blocks = append(blocks, strings.TrimSpace(rest))
			break
		}
		blocks = append(blocks, strings.TrimSpace(rest[:end]))
		rest = rest[end+len(closing):]
	}

	return strings.Join(nonEmpty(blocks), "\n"), strings.TrimSpace(msg.String())
}

// nextOpenTag returns the index and name of the earliest reasoning tag in s,
// or -1.
func nextOpenTag(s string) (int, string) {
	best, name := -1, ""
	for _, tag := range reasoningTags {
		i := strings.Index(s, "<"+tag+">")
		if i >= 0 && (best < 0 || i < best) {
			best, name = i, tag
		}
	}
	return best, name
}

func nonEmpty(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
