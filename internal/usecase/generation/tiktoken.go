package generation

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE used for budgeting when the model is unknown to tiktoken.
const DefaultEncoding = "cl100k_base"

// TiktokenTokenizer counts tokens with an OpenAI BPE. It approximates other
// providers' tokenizers closely enough for a prompt budget.
type TiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer loads the encoding of model, falling back to DefaultEncoding.
func NewTiktokenTokenizer(model string) (*TiktokenTokenizer, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(DefaultEncoding)
		if err != nil {
			return nil, fmt.Errorf("load %s encoding: %w", DefaultEncoding, err)
		}
	}
	return &TiktokenTokenizer{enc: enc}, nil
}

// Encode returns the token ids of text. Special tokens are treated as plain text.
func (t *TiktokenTokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// Decode joins token ids back into text.
func (t *TiktokenTokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}
