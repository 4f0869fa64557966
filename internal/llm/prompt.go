package llm

// openSystemPrompt steers ungrounded answers. Used when no knowledge-base
// content was retrieved for the request.
const openSystemPrompt = `You are a hydroponics assistant. Answer questions about hydroponic growing: nutrient solutions, pH and EC management, lighting, system types, plant selection, and troubleshooting.

Answer from general hydroponics knowledge. Be practical and specific. If a question falls outside hydroponics and indoor growing, say so briefly instead of answering it.`

// groundedSystemPromptPrefix steers answers that must stay within retrieved
// content. The assembled context block is appended after it.
const groundedSystemPromptPrefix = `You are a hydroponics assistant. Answer using ONLY the reference content below.

Rules:
- Cite facts only from the reference content. Mention the source title when it helps the reader.
- If the reference content does not cover part of the question, say so explicitly instead of inventing an answer.
- Do not speculate beyond what the sources state.

Reference content:

`

// systemPromptFor returns the system message for a request: grounded when
// retrieved context is present, open otherwise.
func systemPromptFor(req Request) Message {
	if req.Context == "" {
		return Message{Role: RoleSystem, Content: openSystemPrompt}
	}
	return Message{Role: RoleSystem, Content: groundedSystemPromptPrefix + req.Context}
}

// withSystemPrompt prepends the request's system message to its turns.
// Requests that already lead with a system message are passed through, so
// callers like the guardrail classifier can supply their own instructions.
func withSystemPrompt(req Request) []Message {
	if len(req.Messages) > 0 && req.Messages[0].Role == RoleSystem {
		return req.Messages
	}
	messages := make([]Message, 0, len(req.Messages)+1)
	messages = append(messages, systemPromptFor(req))
	messages = append(messages, req.Messages...)
	return messages
}
