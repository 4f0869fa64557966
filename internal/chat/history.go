package chat

import (
	"github.com/verdantlabs/hydrochat/internal/conversation"
	"github.com/verdantlabs/hydrochat/internal/llm"
)

// windowHistory bounds prior turns for the prompt. The oldest turns are
// truncated first, and the window is trimmed so it opens on a user turn —
// never dropping one side of a user/assistant pair in a way that breaks the
// strict alternation some providers require.
func windowHistory(history []conversation.Message, limit int) []llm.Message {
	if limit <= 0 {
		return nil
	}

	turns := make([]llm.Message, 0, len(history))
	for _, msg := range history {
		// System turns are rebuilt per request, never replayed.
		if msg.Role != llm.RoleUser && msg.Role != llm.RoleAssistant {
			continue
		}
		turns = append(turns, llm.Message{Role: msg.Role, Content: msg.Content})
	}

	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}

	for len(turns) > 0 && turns[0].Role != llm.RoleUser {
		turns = turns[1:]
	}

	return turns
}
