// Package ingestion turns a tender document into stored, embedded chunks:
// chunking, tokenization, corpus statistics, detail extraction and the stage pipeline.
package ingestion

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxChunkSize is the default chunk budget in characters.
	DefaultMaxChunkSize = 500

	paragraphSeparator = "\n\n"
)

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// Chunk represents a piece of chunked content
type Chunk struct {
	Index  int
	Text   string
	Size   int    // length in characters
	Source string // originating file name or URL
}

// ChunkerConfig holds chunking configuration
type ChunkerConfig struct {
	MaxSize int // max characters per chunk
}

// Chunker handles paragraph-aware text chunking
type Chunker struct {
	config ChunkerConfig
}

// NewChunker creates a new Chunker with the given configuration
func NewChunker(config ChunkerConfig) *Chunker {
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultMaxChunkSize
	}
	return &Chunker{config: config}
}

// ============================================================================
// Paragraph Chunking
// ============================================================================

// Chunk splits text on blank-line paragraph boundaries and packs paragraphs
// into chunks of at most MaxSize characters. A paragraph longer than MaxSize
// becomes its own chunk and is never split.
func (c *Chunker) Chunk(text, source string) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if utf8.RuneCountInString(text) <= c.config.MaxSize {
		return []Chunk{newChunk(0, text, source)}
	}

	var chunks []Chunk
	var buf strings.Builder
	bufLen := 0

	flush := func() {
		if bufLen == 0 {
			return
		}
		chunks = append(chunks, newChunk(len(chunks), buf.String(), source))
		buf.Reset()
		bufLen = 0
	}

	for _, para := range paragraphBreak.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		paraLen := utf8.RuneCountInString(para)

		if bufLen > 0 && bufLen+len(paragraphSeparator)+paraLen > c.config.MaxSize {
			flush()
		}
		if bufLen > 0 {
			buf.WriteString(paragraphSeparator)
			bufLen += len(paragraphSeparator)
		}
		buf.WriteString(para)
		bufLen += paraLen
	}
	flush()

	return chunks
}

func newChunk(index int, text, source string) Chunk {
	text = strings.TrimSpace(text)
	return Chunk{
		Index:  index,
		Text:   text,
		Size:   utf8.RuneCountInString(text),
		Source: source,
	}
}

// ============================================================================
// Windowing
// ============================================================================

// sentenceBreaks are tried in order when pulling a window end back.
var sentenceBreaks = []string{". ", "! ", "? ", "\n\n"}

// Window cuts long text into windows of at most maxSize characters. Each
// window end is pulled back to the last sentence terminator found in the
// final 20% of the window, and the next window starts overlap characters
// before the previous end. An overlap of 0 gives disjoint windows.
func Window(text string, maxSize, overlap int) []string {
	if maxSize <= 0 {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= maxSize {
		if t := strings.TrimSpace(text); t != "" {
			return []string{t}
		}
		return nil
	}
	if overlap < 0 || overlap >= maxSize {
		overlap = 0
	}

	var windows []string
	for start := 0; start < len(runes); {
		end := start + maxSize
		if end >= len(runes) {
			end = len(runes)
		} else if cut := breakPoint(runes[start:end]); cut > 0 {
			end = start + cut
		}

		if w := strings.TrimSpace(string(runes[start:end])); w != "" {
			windows = append(windows, w)
		}
		if end == len(runes) {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return windows
}

// breakPoint returns the cut position just after the last sentence break in
// the final fifth of window, or 0 when there is none.
func breakPoint(window []rune) int {
	floor := len(window) * 4 / 5
	for _, sep := range sentenceBreaks {
		if i := lastIndexRunes(window, []rune(sep)); i >= floor {
			return i + 1
		}
	}
	return 0
}

func lastIndexRunes(s, sep []rune) int {
	for i := len(s) - len(sep); i >= 0; i-- {
		match := true
		for j := range sep {
			if s[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
