// Package chunker splits raw text into overlapping, sentence-aligned chunks
// sized for embedding.
package chunker

import (
	"strings"
)

// Default chunking parameters, in characters.
const (
	DefaultMaxChunkSize   = 500
	DefaultOverlap        = 50
	DefaultMinChunkLength = 50
)

// Config holds chunking parameters. All sizes are in characters.
type Config struct {
	// MaxChunkSize closes the running chunk once adding the next sentence
	// would exceed it.
	MaxChunkSize int

	// Overlap is the size of the word-level window carried from the tail of
	// a closed chunk into its successor.
	Overlap int

	// MinChunkLength drops shorter chunks as noise.
	MinChunkLength int
}

// DefaultConfig returns the chunking parameters used in production: chunks
// around 500 characters with a 50-character overlap window, dropping anything
// under 50 characters as noise.
func DefaultConfig() Config {
	return Config{
		MaxChunkSize:   DefaultMaxChunkSize,
		Overlap:        DefaultOverlap,
		MinChunkLength: DefaultMinChunkLength,
	}
}

// Chunker splits text into chunks. Split is a pure function of its input;
// a Chunker is safe for concurrent use.
type Chunker struct {
	cfg Config
}

// New creates a Chunker, applying defaults for unset fields.
func New(cfg Config) *Chunker {
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = DefaultMaxChunkSize
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	if cfg.MinChunkLength < 0 {
		cfg.MinChunkLength = 0
	}
	return &Chunker{cfg: cfg}
}

// Split breaks text into ordered, sentence-aligned chunks.
//
// Sentences accumulate into a running chunk; when the next sentence would
// exceed MaxChunkSize and the running chunk already holds a sentence, the
// chunk is closed and the next one is seeded with a word-level overlap
// window from the closed chunk's tail. A single sentence longer than
// MaxChunkSize is emitted whole: truncating mid-sentence loses meaning,
// so the oversize is accepted as a documented lossy edge case. Chunks
// shorter than MinChunkLength are dropped.
func (c *Chunker) Split(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current strings.Builder
	sentencesInChunk := 0

	flush := func() {
		chunk := strings.TrimSpace(current.String())
		if len(chunk) >= c.cfg.MinChunkLength {
			chunks = append(chunks, chunk)
		}
		current.Reset()
		sentencesInChunk = 0
	}

	for _, sentence := range sentences {
		if sentencesInChunk > 0 && current.Len()+len(sentence)+1 > c.cfg.MaxChunkSize {
			tail := overlapTail(current.String(), c.cfg.Overlap)
			flush()
			if tail != "" {
				current.WriteString(tail)
			}
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
		sentencesInChunk++
	}
	if current.Len() > 0 {
		flush()
	}

	return chunks
}

// splitSentences splits text on sentence boundaries (., !, ?), keeping the
// terminator with its sentence. Trailing text without a terminator becomes
// the final sentence.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

// overlapTail returns whole words from the end of chunk totaling at most
// size characters.
func overlapTail(chunk string, size int) string {
	if size <= 0 {
		return ""
	}
	words := strings.Fields(chunk)

	var tail []string
	length := 0
	for i := len(words) - 1; i >= 0; i-- {
		wordLen := len(words[i])
		if length > 0 {
			wordLen++ // joining space
		}
		if length+wordLen > size {
			break
		}
		length += wordLen
		tail = append([]string{words[i]}, tail...)
	}

	return strings.Join(tail, " ")
}
