package generation

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/machinegpt/internal/domain/vector"
)

const systemPreamble = "You are a technical support assistant.\n\n" +
	"Answer ONLY from documentation below.\n" +
	"Always cite source and page.\n\n" +
	"DOCUMENTATION:\n\n"

// passage is one retrieved chunk as it appears in the system prompt.
type passage struct {
	match vector.Match
	text  string
}

// systemPrompt lists the passages in rank order, each labelled with its source and page.
func systemPrompt(passages []passage) string {
	var b strings.Builder
	b.WriteString(systemPreamble)
	for i, p := range passages {
		fmt.Fprintf(&b, "[DOC %d]\nSource: %s, Page %d\n%s\n\n",
			i+1, p.match.Metadata.DocName, p.match.Metadata.Page, p.text)
	}
	return b.String()
}
