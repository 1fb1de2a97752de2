// Package retention bounds a conversation history.
//
// The system message is pinned at the head of the history and never evicted.
// The remaining messages are evicted oldest-first once they exceed the limit.
package retention

import "github.com/leofalp/chatkeeper/providers/ai"

// DefaultLimit is the number of non-system messages kept when no limit is configured.
const DefaultLimit = 10

// Trim returns history bounded to limit non-system messages, with the system
// anchor first. The anchor is the first system message; later system messages
// are dropped. When history has no system message and systemInstruction is
// non-empty, an anchor is synthesized from it.
//
// Trim never mutates history and never reorders the messages it keeps.
// A limit below 1 is treated as 1.
func Trim(history []ai.Message, systemInstruction string, limit int) []ai.Message {
	if limit < 1 {
		limit = 1
	}

	var (
		anchor    ai.Message
		hasAnchor bool
	)
	rest := make([]ai.Message, 0, len(history))
	for _, m := range history {
		if m.Role == ai.RoleSystem {
			if !hasAnchor {
				anchor, hasAnchor = m, true
			}
			continue
		}
		rest = append(rest, m)
	}

	if !hasAnchor && systemInstruction != "" {
		anchor = ai.Message{Role: ai.RoleSystem, Content: systemInstruction}
		if len(history) > 0 {
			anchor.Timestamp = history[0].Timestamp
		}
		hasAnchor = true
	}

	if len(rest) > limit {
		rest = rest[len(rest)-limit:]
	}

	out := make([]ai.Message, 0, len(rest)+1)
	if hasAnchor {
		out = append(out, anchor)
	}
	return append(out, rest...)
}

// Count returns the number of non-system messages in history.
func Count(history []ai.Message) int {
	n := 0
	for _, m := range history {
		if m.Role != ai.RoleSystem {
			n++
		}
	}
	return n
}
