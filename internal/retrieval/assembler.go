package retrieval

import (
	"strings"

	"github.com/verdantlabs/hydrochat/internal/vectorstore"
)

// AssembledContext is retrieved content formatted for prompt injection.
type AssembledContext struct {
	// ContextBlock is the concatenated "Source: <title>" sections. Empty
	// when nothing was retrieved.
	ContextBlock string `json:"context_block"`

	// Categories are the ordered-unique category labels extracted from
	// document titles.
	Categories []string `json:"categories"`

	// Sources are the ordered-unique document titles.
	Sources []string `json:"sources"`

	// FromKnowledgeBase is true when at least one retrieved chunk scored
	// above the high-confidence threshold.
	FromKnowledgeBase bool `json:"from_knowledge_base"`

	// ChunkCount is the number of chunks included in the block.
	ChunkCount int `json:"chunk_count"`
}

// Assemble formats ranked results into an AssembledContext. Each chunk gets
// a provenance header naming its source document; headers let the grounded
// system prompt instruct the model to cite by source.
//
// Empty input yields an empty block, not an error.
func Assemble(results []vectorstore.SearchResult, highConfidence float32) AssembledContext {
	if len(results) == 0 {
		return AssembledContext{}
	}

	var (
		sections   = make([]string, 0, len(results))
		categories []string
		sources    []string
		seenCat    = make(map[string]struct{})
		seenSrc    = make(map[string]struct{})
		grounded   bool
	)

	for _, result := range results {
		title := result.Chunk.DocumentTitle
		sections = append(sections, "Source: "+title+"\n"+result.Chunk.Content)

		if _, ok := seenSrc[title]; !ok {
			seenSrc[title] = struct{}{}
			sources = append(sources, title)
		}

		if category := CategoryFromTitle(title); category != "" {
			if _, ok := seenCat[category]; !ok {
				seenCat[category] = struct{}{}
				categories = append(categories, category)
			}
		}

		if result.Similarity > highConfidence {
			grounded = true
		}
	}

	return AssembledContext{
		ContextBlock:      strings.Join(sections, "\n\n"),
		Categories:        categories,
		Sources:           sources,
		FromKnowledgeBase: grounded,
		ChunkCount:        len(results),
	}
}

// CategoryFromTitle extracts the category label from titles following the
// "<Category> - <Document Name>" convention: the text before the first "-",
// trimmed. Titles without a "-" carry no category.
func CategoryFromTitle(title string) string {
	idx := strings.Index(title, "-")
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(title[:idx])
}
