package db

// TagMatch is an exact TAG pre-filter clause: @Key:{Value}.
type TagMatch struct {
	Key   string
	Value string
}

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	VectorField  string
	Tags         []TagMatch
	Vector       []float32
	K            int
	ReturnFields []string
	// EFRuntime widens the HNSW candidate list for this query. Zero keeps the server default.
	EFRuntime int
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single hit. Score is cosine similarity clamped to [0, 1].
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
