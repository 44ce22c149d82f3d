// Package chunk splits long AI replies into platform-sized segments on
// sentence boundaries, numbering the parts when more than one is needed.
package chunk

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultMaxLen leaves headroom under the platform's 2000-character limit
// for the part marker and formatting.
const DefaultMaxLen = 1900

// sentencePattern matches one sentence-like segment ending in terminal
// punctuation. Trailing text without punctuation is handled separately so
// the split always covers the whole input.
var sentencePattern = regexp.MustCompile(`[^.!?]*[.!?]+`)

type Chunker struct {
	maxLen int
}

func New(maxLen int) *Chunker {
	if maxLen < 1 {
		maxLen = DefaultMaxLen
	}
	return &Chunker{maxLen: maxLen}
}

// Split cuts text into ordered chunks no longer than the configured maximum,
// accumulating whole sentences greedily. Chunks are exact substrings of the
// input: concatenating them (with part markers stripped) reproduces the
// original text. A single sentence longer than the maximum is emitted as one
// oversized chunk rather than being cut mid-sentence.
//
// Multi-chunk results carry a "[Part i/N]" prefix; a single chunk is
// returned unprefixed.
func (c *Chunker) Split(text string) []string {
	if len(text) <= c.maxLen {
		return []string{text}
	}

	var chunks []string
	var buf strings.Builder
	for _, segment := range segments(text) {
		if buf.Len() > 0 && buf.Len()+len(segment) > c.maxLen {
			chunks = append(chunks, buf.String())
			buf.Reset()
		}
		buf.WriteString(segment)
	}
	if buf.Len() > 0 {
		chunks = append(chunks, buf.String())
	}

	if len(chunks) <= 1 {
		return chunks
	}
	for i, chunk := range chunks {
		chunks[i] = fmt.Sprintf("[Part %d/%d]\n%s", i+1, len(chunks), chunk)
	}
	return chunks
}

// StripMarker removes the part prefix from a chunk, if present. Useful for
// reassembling a split reply.
func StripMarker(chunk string) string {
	if !strings.HasPrefix(chunk, "[Part ") {
		return chunk
	}
	if i := strings.Index(chunk, "]\n"); i >= 0 {
		return chunk[i+2:]
	}
	return chunk
}

// segments slices text into sentence-like pieces. The pieces are contiguous
// and cover the input exactly; a trailing run with no terminal punctuation
// becomes its own segment.
func segments(text string) []string {
	locs := sentencePattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}

	out := make([]string, 0, len(locs)+1)
	end := 0
	for _, loc := range locs {
		out = append(out, text[loc[0]:loc[1]])
		end = loc[1]
	}
	if end < len(text) {
		out = append(out, text[end:])
	}
	return out
}
