package extract

import (
	"strconv"
	"strings"

	"github.com/kailas-cloud/machinegpt/internal/domain/document"
)

// PageMarker separates pages in plain-text manual exports.
const PageMarker = "================== PAGE"

// splitTextPages cuts a text export on PageMarker. A page takes the number
// written on its marker line ("3 =================="); a marker without one
// takes the previous page number plus one. Non-blank text before the first
// marker is page 1. Blank pages produce no Page but keep their number, so
// the pages after them are cited as in the source.
func splitTextPages(text string) []document.Page {
	sections := strings.Split(text, PageMarker)
	pages := make([]document.Page, 0, len(sections))
	number := 0
	for i, sec := range sections {
		if i == 0 {
			// An empty preamble is not a page.
			if strings.TrimSpace(sec) == "" {
				continue
			}
			number = 1
		} else {
			line, body, _ := strings.Cut(sec, "\n")
			number = markerNumber(line, number+1)
			sec = body
		}
		if strings.TrimSpace(sec) == "" {
			continue
		}
		pages = append(pages, document.Page{Number: number, Text: sec})
	}
	return pages
}

// markerNumber reads the page number that leads the rest of a marker line.
func markerNumber(line string, fallback int) int {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return fallback
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
