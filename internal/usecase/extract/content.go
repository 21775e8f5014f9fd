package extract

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

// kernGap is the TJ displacement (thousandths of an em) treated as a word gap.
const kernGap = -200

// contentText pulls the shown strings out of a page content stream.
// It understands the text-showing operators Tj, TJ, ' and " and breaks
// lines on T*, Td, TD and ET. Glyph codes are read as Latin-1 unless the
// string carries a UTF-16BE byte order mark.
func contentText(stream []byte) string {
	var (
		out      strings.Builder
		operands []string
		inArray  bool
		arr      strings.Builder
	)

	newline := func() {
		s := out.String()
		if len(s) > 0 && !strings.HasSuffix(s, "\n") {
			out.WriteByte('\n')
		}
	}
	push := func(s string) {
		if inArray {
			arr.WriteString(s)
			return
		}
		operands = append(operands, s)
	}
	show := func() {
		if n := len(operands); n > 0 {
			out.WriteString(operands[n-1])
		}
		operands = operands[:0]
	}

	for i := 0; i < len(stream); {
		c := stream[i]
		switch {
		case c == '%':
			for i < len(stream) && stream[i] != '\n' && stream[i] != '\r' {
				i++
			}
		case isSpace(c):
			i++
		case c == '(':
			s, n := readLiteral(stream[i:])
			push(decodeString(s))
			i += n
		case c == '<' && i+1 < len(stream) && stream[i+1] == '<':
			i += 2
		case c == '>' && i+1 < len(stream) && stream[i+1] == '>':
			i += 2
		case c == '<':
			s, n := readHex(stream[i:])
			push(decodeString(s))
			i += n
		case c == '[':
			inArray = true
			arr.Reset()
			i++
		case c == ']':
			inArray = false
			operands = append(operands, arr.String())
			i++
		case c == '/':
			i++
			for i < len(stream) && !isSpace(stream[i]) && !isDelim(stream[i]) {
				i++
			}
		case isDelim(c):
			i++
		default:
			start := i
			for i < len(stream) && !isSpace(stream[i]) && !isDelim(stream[i]) {
				i++
			}
			tok := string(stream[start:i])

			if f, err := strconv.ParseFloat(tok, 64); err == nil {
				if inArray && f <= kernGap {
					arr.WriteByte(' ')
				}
				continue
			}

			switch tok {
			case "Tj", "TJ":
				show()
			case "'", `"`:
				newline()
				show()
			case "T*", "Td", "TD", "ET":
				newline()
				operands = operands[:0]
			case "ID":
				i = skipInlineImage(stream, i)
				operands = operands[:0]
			default:
				operands = operands[:0]
			}
		}
	}
	return normalizeLines(out.String())
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', 0:
		return true
	}
	return false
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// readLiteral reads a balanced (...) string starting at b[0] and returns its raw bytes and length consumed.
func readLiteral(b []byte) ([]byte, int) {
	var out []byte
	depth := 0
	i := 0
	for i < len(b) {
		c := b[i]
		switch c {
		case '(':
			if depth > 0 {
				out = append(out, c)
			}
			depth++
			i++
		case ')':
			depth--
			i++
			if depth == 0 {
				return out, i
			}
			out = append(out, c)
		case '\\':
			i++
			if i >= len(b) {
				return out, i
			}
			e := b[i]
			switch e {
			case 'n':
				out = append(out, '\n')
				i++
			case 'r':
				out = append(out, '\r')
				i++
			case 't':
				out = append(out, '\t')
				i++
			case 'b':
				out = append(out, '\b')
				i++
			case 'f':
				out = append(out, '\f')
				i++
			case '\r', '\n':
				// Line continuation.
				i++
				if e == '\r' && i < len(b) && b[i] == '\n' {
					i++
				}
			default:
				if e >= '0' && e <= '7' {
					v := 0
					for k := 0; k < 3 && i < len(b) && b[i] >= '0' && b[i] <= '7'; k++ {
						v = v*8 + int(b[i]-'0')
						i++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
					i++
				}
			}
		default:
			out = append(out, c)
			i++
		}
	}
	return out, i
}

// readHex reads a <...> hex string starting at b[0].
func readHex(b []byte) ([]byte, int) {
	var (
		out []byte
		hi  = -1
		i   = 1
	)
	for ; i < len(b); i++ {
		c := b[i]
		if c == '>' {
			i++
			break
		}
		v := hexVal(c)
		if v < 0 {
			continue
		}
		if hi < 0 {
			hi = v
			continue
		}
		out = append(out, byte(hi<<4|v))
		hi = -1
	}
	if hi >= 0 {
		out = append(out, byte(hi<<4))
	}
	return out, i
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

func decodeString(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		b = b[2:]
		u := make([]uint16, 0, len(b)/2)
		for i := 0; i+1 < len(b); i += 2 {
			u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(u))
	}
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}

// skipInlineImage jumps past binary inline image data up to the EI operator.
func skipInlineImage(b []byte, i int) int {
	for j := i + 1; j+2 < len(b); j++ {
		if isSpace(b[j]) && b[j+1] == 'E' && b[j+2] == 'I' && (j+3 == len(b) || isSpace(b[j+3])) {
			return j + 3
		}
	}
	return len(b)
}

func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
