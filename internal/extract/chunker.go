package extract

import (
	"regexp"
	"strings"
)

// Chunk is one contiguous window of a document body. Indices are contiguous
// and zero-based; identical input and parameters always yield byte-identical
// chunks in identical order.
type Chunk struct {
	Index   int
	Text    string
	Section string
	Length  int
}

var headingRe = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+)$`)

// ChunkBody splits body into windows of size runes with overlap runes shared
// between consecutive windows. Window ends prefer a section break (blank line)
// when one falls within the final eighth of the window; otherwise the cut is
// fixed-size. The final window may be shorter than size.
func ChunkBody(body string, size, overlap int) []Chunk {
	if body == "" || size <= 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 8
	}

	runes := []rune(body)
	headings := headingPositions(body)

	var chunks []Chunk
	start := 0
	for {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else if cut := sectionCut(runes, start+size-size/8, end); cut > start {
			end = cut
		}

		text := string(runes[start:end])
		chunks = append(chunks, Chunk{
			Index:   len(chunks),
			Text:    text,
			Section: sectionLabel(headings, start),
			Length:  len(text),
		})

		if end >= len(runes) {
			return chunks
		}
		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
}

// sectionCut returns the position just after the last blank-line break in
// [from, to), or -1 when none falls in the range.
func sectionCut(runes []rune, from, to int) int {
	if from < 1 {
		from = 1
	}
	for i := to - 1; i >= from; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}
	return -1
}

type heading struct {
	pos   int // rune offset of the heading line
	label string
}

func headingPositions(body string) []heading {
	var headings []heading
	byteToRune := make(map[int]int, 8)

	locs := headingRe.FindAllStringSubmatchIndex(body, -1)
	if len(locs) == 0 {
		return nil
	}

	// Byte offsets from the regexp are translated to rune offsets once,
	// in a single pass over the string.
	runeIdx := 0
	for byteIdx := range body {
		byteToRune[byteIdx] = runeIdx
		runeIdx++
	}

	for _, loc := range locs {
		headings = append(headings, heading{
			pos:   byteToRune[loc[0]],
			label: strings.TrimSpace(body[loc[2]:loc[3]]),
		})
	}
	return headings
}

// sectionLabel returns the nearest heading at or before the chunk start.
func sectionLabel(headings []heading, start int) string {
	label := ""
	for _, h := range headings {
		if h.pos > start {
			break
		}
		label = h.label
	}
	return label
}
