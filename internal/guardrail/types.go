// Package guardrail decides whether a user query stays inside the
// hydroponics domain before any retrieval or generation spend.
//
// Classification runs three ordered stages: a deterministic pattern
// blocklist (fail-closed, authoritative), a generative binary classifier
// (defers on error), and a keyword fallback (fail-open). The decision is
// pure: identical input plus an identical stage-2 reply always produces the
// identical decision.
package guardrail

// Stage identifies which classifier stage produced a decision.
type Stage string

// Classifier stages, in evaluation order.
const (
	StagePattern Stage = "pattern"
	StageLLM     Stage = "llm"
	StageKeyword Stage = "keyword"
)

// Decision is the outcome of classifying one query. Produced fresh per
// query; persisted only as message metadata, never as authoritative state.
type Decision struct {
	// OnTopic is true when the query may proceed to retrieval and
	// generation.
	OnTopic bool `json:"on_topic"`

	// Stage names the stage that made the call.
	Stage Stage `json:"stage"`

	// Category is the matched blocklist category for stage-1 rejections
	// (fiction, medical, controlled-substance, ...), empty otherwise.
	Category string `json:"category,omitempty"`

	// Reason is a short human-readable explanation for logs.
	Reason string `json:"reason,omitempty"`
}
