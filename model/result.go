package model

// RetrievalResult represents an index entry retrieved for a query, ordered by
// descending similarity. Results are ephemeral and never persisted.
type RetrievalResult struct {
	Entry      *IndexEntry `json:"entry"`
	Similarity float64     `json:"similarity"`
}

// RetrievedContext is the assembled output of the retrieval engine for one query.
// HasRelevantContext is false when no result survived the similarity threshold;
// this is a normal pipeline outcome, not an error.
type RetrievedContext struct {
	Query              string             `json:"query"`
	Results            []*RetrievalResult `json:"results"`
	ContextText        string             `json:"context_text"`
	HasRelevantContext bool               `json:"has_relevant_context"`
}

// Answer is the final output of the question answering path
type Answer struct {
	Question      string        `json:"question"`
	Text          string        `json:"text"`
	Grounded      bool          `json:"grounded"`
	PromptVersion PromptVersion `json:"prompt_version"`
	Context       string        `json:"context,omitempty"`
}
