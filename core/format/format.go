// Package format converts a stored history into the two-party conversation
// shape the generation capability accepts.
//
// Two strategies exist. [Inline] sends the system instruction as the first
// requester turn, prefixed with [InlineMarker]. [Structured] sends it through
// the dedicated instruction slot. The strategy is chosen once per deployment.
package format

import (
	"fmt"
	"strings"

	"github.com/leofalp/chatkeeper/core/chaterr"
	"github.com/leofalp/chatkeeper/providers/ai"
)

// Strategy selects how the system instruction is delivered.
type Strategy string

const (
	Inline     Strategy = "inline"
	Structured Strategy = "structured"
)

// InlineMarker prefixes the system instruction turn under the Inline strategy.
const InlineMarker = "System instruction: "

const op = "format"

// ParseStrategy parses a configured strategy name, case-insensitively.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case Inline:
		return Inline, nil
	case Structured:
		return Structured, nil
	}
	return "", fmt.Errorf("format: unknown strategy %q", s)
}

// Conversation is the formatted history.
type Conversation struct {
	Instruction string
	Turns       []ai.Turn
}

// Formatter applies one strategy. It is stateless and safe for concurrent use.
type Formatter struct {
	strategy Strategy
	parties  map[ai.MessageRole]ai.Party
	roles    map[ai.Party]ai.MessageRole
}

// New returns a Formatter for strategy.
func New(strategy Strategy) (*Formatter, error) {
	var parties map[ai.MessageRole]ai.Party
	switch strategy {
	case Inline:
		parties = map[ai.MessageRole]ai.Party{
			ai.RoleSystem:    ai.PartyRequester,
			ai.RoleUser:      ai.PartyRequester,
			ai.RoleAssistant: ai.PartyResponder,
		}
	case Structured:
		parties = map[ai.MessageRole]ai.Party{
			ai.RoleUser:      ai.PartyRequester,
			ai.RoleAssistant: ai.PartyResponder,
		}
	default:
		return nil, fmt.Errorf("format: unknown strategy %q", strategy)
	}

	return &Formatter{
		strategy: strategy,
		parties:  parties,
		roles: map[ai.Party]ai.MessageRole{
			ai.PartyRequester: ai.RoleUser,
			ai.PartyResponder: ai.RoleAssistant,
		},
	}, nil
}

// Strategy returns the formatter's strategy.
func (f *Formatter) Strategy() Strategy {
	return f.strategy
}

// Format maps history to a Conversation. A message with an unknown role, or
// a system message with blank content, yields a validation error.
func (f *Formatter) Format(history []ai.Message) (Conversation, error) {
	conv := Conversation{Turns: make([]ai.Turn, 0, len(history))}

	for i, m := range history {
		if m.Role == ai.RoleSystem && strings.TrimSpace(m.Content) == "" {
			return Conversation{}, chaterr.Validation(op, "", "message %d: system instruction is empty", i)
		}
		if m.Role == ai.RoleSystem && f.strategy == Structured {
			if conv.Instruction == "" {
				conv.Instruction = m.Content
			}
			continue
		}

		party, ok := f.parties[m.Role]
		if !ok {
			return Conversation{}, chaterr.Validation(op, "", "message %d: unsupported role %q", i, m.Role)
		}

		text := m.Content
		if m.Role == ai.RoleSystem {
			text = InlineMarker + text
		}
		conv.Turns = append(conv.Turns, ai.Turn{Party: party, Text: text})
	}

	return conv, nil
}

// Roles recovers the role sequence of the history conv was formatted from.
// Under Inline, a leading requester turn carrying the marker maps back to
// the system role. Under Structured, a non-empty instruction yields a
// leading system role.
func (f *Formatter) Roles(conv Conversation) ([]ai.MessageRole, error) {
	roles := make([]ai.MessageRole, 0, len(conv.Turns)+1)
	if f.strategy == Structured && conv.Instruction != "" {
		roles = append(roles, ai.RoleSystem)
	}

	for i, t := range conv.Turns {
		if f.strategy == Inline && i == 0 && t.Party == ai.PartyRequester && strings.HasPrefix(t.Text, InlineMarker) {
			roles = append(roles, ai.RoleSystem)
			continue
		}
		role, ok := f.roles[t.Party]
		if !ok {
			return nil, chaterr.Validation(op, "", "turn %d: unsupported party %q", i, t.Party)
		}
		roles = append(roles, role)
	}

	return roles, nil
}
