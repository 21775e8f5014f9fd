// Package chunk splits page text into overlapping character windows.
package chunk

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/machinegpt/internal/domain"
	"github.com/kailas-cloud/machinegpt/internal/domain/document"
)

// Window is one chunk of a text. Start/End are rune offsets into the input.
type Window struct {
	Index int
	Text  string
	Start int
	End   int
}

// Config holds the window parameters.
type Config struct {
	Size    int
	Overlap int
}

// DefaultConfig is 800 characters with 150 characters of overlap.
func DefaultConfig() Config {
	return Config{Size: domain.DefaultChunkSize, Overlap: domain.DefaultChunkOverlap}
}

// Validate requires 0 <= overlap < size so every step advances.
func (c Config) Validate() error {
	if c.Size <= 0 || c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("%w: size=%d overlap=%d", domain.ErrInvalidChunkConfig, c.Size, c.Overlap)
	}
	return nil
}

// Split cuts text into windows of Size runes advancing by Size-Overlap while
// the window start is inside the text, so a text of n runes yields
// ceil(n/(Size-Overlap)) windows. The tail windows may lie inside the previous
// one. Windows that are empty after trimming are dropped without consuming an index.
func Split(text string, cfg Config) ([]Window, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	runes := []rune(text)
	step := cfg.Size - cfg.Overlap
	out := make([]Window, 0, (len(runes)+step-1)/step)

	for start := 0; start < len(runes); start += step {
		end := min(start+cfg.Size, len(runes))
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			out = append(out, Window{Index: len(out), Text: piece, Start: start, End: end})
		}
	}
	return out, nil
}

// Chunker turns extracted pages into document chunks with global indexes.
type Chunker struct {
	cfg Config
}

// New validates cfg and creates a Chunker.
func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{cfg: cfg}, nil
}

// Chunk splits every page and numbers chunks across the whole document in page order.
// Each chunk inherits its page's images.
func (c *Chunker) Chunk(documentID int64, pages []document.Page) []document.Chunk {
	var out []document.Chunk
	for _, p := range pages {
		if !utf8.ValidString(p.Text) {
			p.Text = strings.ToValidUTF8(p.Text, "")
		}
		// cfg was validated in New
		windows, _ := Split(p.Text, c.cfg)
		for _, w := range windows {
			idx := len(out)
			out = append(out, document.Chunk{
				DocumentID: documentID,
				Index:      idx,
				Text:       w.Text,
				Page:       p.Number,
				CharStart:  w.Start,
				CharEnd:    w.End,
				VectorID:   document.VectorID(documentID, idx),
				Images:     p.Images,
			})
		}
	}
	return out
}
