package vectorstore

import "time"

// Document represents a source text to be chunked and embedded. Documents
// are immutable once embedded; a re-import supersedes the previous version
// instead of editing it in place.
type Document struct {
	// ID is the unique document identifier.
	ID string `json:"id"`

	// Title is the human-readable title. Titles following the convention
	// "<Category> - <Name>" carry a category label used for provenance.
	Title string `json:"title"`

	// Content is the raw document text.
	Content string `json:"content"`

	// ContentType tags the source format (text, markdown, pdf-extract).
	ContentType string `json:"content_type"`

	// Scope is the ownership partition key, e.g. "knowledge-base" or a
	// per-user key.
	Scope string `json:"scope"`
}

// Chunk is a bounded span of a document's text, the unit of embedding and
// retrieval.
type Chunk struct {
	// ID is the unique chunk identifier.
	ID string `json:"id"`

	// DocumentID references the parent document.
	DocumentID string `json:"document_id"`

	// DocumentTitle is denormalized for provenance headers.
	DocumentTitle string `json:"document_title"`

	// Index is the chunk's ordered position within its document.
	Index int `json:"index"`

	// Content is the chunk text span.
	Content string `json:"content"`

	// Scope is the ownership partition key inherited from the document.
	Scope string `json:"scope"`

	// Embedding is the chunk's vector. Nil when generation failed; such
	// chunks are persisted but excluded from similarity search.
	Embedding []float32 `json:"embedding,omitempty"`

	// Provider and Model stamp the embedding's origin. Vectors from
	// different stamps coexist and are reconciled at search time.
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	// CreatedAt is the ingestion timestamp.
	CreatedAt time.Time `json:"created_at"`
}

// Searchable reports whether the chunk participates in similarity search.
// Derived from embedding presence, never stored independently.
func (c Chunk) Searchable() bool {
	return len(c.Embedding) > 0
}

// SearchResult is a chunk ranked against a query.
type SearchResult struct {
	Chunk Chunk `json:"chunk"`

	// Similarity is the cosine similarity against the query vector,
	// in [-1, 1].
	Similarity float32 `json:"similarity"`
}
