package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// localModel is the model identifier stamped onto local vectors.
const localModel = "term-hash-v1"

// LocalProvider derives a fixed-dimension pseudo-embedding from a term-hash
// histogram. It needs no credentials and never fails, but the vectors carry
// only lexical signal; it exists for development and as an explicit opt-in
// fallback, never as a silent default.
type LocalProvider struct {
	dimension int
}

// NewLocalProvider creates a local hash-based embedding provider.
func NewLocalProvider(dimension int) *LocalProvider {
	if dimension <= 0 {
		dimension = 256
	}
	return &LocalProvider{dimension: dimension}
}

// EmbedQuery generates a pseudo-embedding for a single query.
func (p *LocalProvider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return p.embed(text), nil
}

// EmbedDocuments generates pseudo-embeddings for multiple texts.
func (p *LocalProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = p.embed(text)
	}
	return vectors, nil
}

// embed buckets each token by FNV-1a hash and L2-normalizes the histogram.
// Empty or token-free text yields the zero vector, which the search layer
// scores as similarity 0.
func (p *LocalProvider) embed(text string) []float32 {
	vector := make([]float32, p.dimension)

	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vector[int(h.Sum32())%p.dimension]++
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vector {
			vector[i] *= scale
		}
	}

	return vector
}

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Stamp returns the (provider, model) stamp for produced vectors.
func (p *LocalProvider) Stamp() Stamp {
	return Stamp{Provider: ProviderLocal, Model: localModel}
}

// Dimension returns the configured histogram dimension.
func (p *LocalProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op.
func (p *LocalProvider) Close() error {
	return nil
}

var _ Provider = (*LocalProvider)(nil)
