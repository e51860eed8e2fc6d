package model

// Document is a registry entry mapping a stable identifier to a stored
// filename. Identifiers are generated once per filename and survive
// re-indexing.
type Document struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

// RetrievedPassage is one ranked excerpt produced by the retrieval
// gateway. Passages are transient; they are never persisted.
type RetrievedPassage struct {
	Source string
	Rank   int
	Text   string
}
