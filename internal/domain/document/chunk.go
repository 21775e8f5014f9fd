package document

import "fmt"

// Image is a picture extracted from a manual page.
type Image struct {
	Page     int    `json:"page"`
	URL      string `json:"url"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
}

// Page is one extracted page, numbered from 1 in source order.
type Page struct {
	Number int
	Text   string
	Images []Image
}

// Chunk is an overlapping text window of a page, the unit of embedding and retrieval.
type Chunk struct {
	DocumentID int64
	Index      int
	Text       string
	Page       int
	CharStart  int
	CharEnd    int
	VectorID   string
	Images     []Image
}

// VectorID returns "doc_{documentId}_chunk_{chunkIndex}".
// The index is document-global, so re-ingestion overwrites the same ids.
func VectorID(documentID int64, chunkIndex int) string {
	return fmt.Sprintf("doc_%d_chunk_%d", documentID, chunkIndex)
}
