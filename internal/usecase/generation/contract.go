package generation

// Tokenizer splits text into model tokens for prompt budgeting (ISP).
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}
