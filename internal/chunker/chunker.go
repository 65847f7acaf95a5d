// Package chunker splits a markdown document into bounded, header-aware
// pieces for embedding and full-text indexing: it cuts at headings first,
// then splits each section with a size-bounded, overlapping window. The
// output is deterministic.
package chunker

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"mdmemory/internal/config"
)

// Piece is one chunk of text produced by the chunker, prior to persistence.
// The sync service assigns FileID, ChunkIndex, and ContentHash when it
// writes pieces into the index store.
type Piece struct {
	Content      string
	HeaderPath   []string
	SectionLevel int
}

// Chunker produces Pieces from markdown source, honoring CHUNK_SIZE and
// CHUNK_OVERLAP.
type Chunker struct {
	size    int
	overlap int
	md      goldmark.Markdown
}

// New builds a Chunker from the resolved chunking configuration.
func New(cfg config.ChunkingConfig) *Chunker {
	return &Chunker{
		size:    cfg.ChunkSize,
		overlap: cfg.ChunkOverlap,
		md:      goldmark.New(),
	}
}

var sentenceEnd = regexp.MustCompile(`[.!?][ \n]`)

// heading is one ATX/setext heading's position and text within the source.
type heading struct {
	level int
	title string
	start int // byte offset of the first character of the heading's line
	end   int // byte offset just past the heading's line (excludes newline)
}

// Chunk splits content into header-aware, size-bounded Pieces in document
// order. Identical input and configuration always produce an identical
// sequence of Pieces.
func (c *Chunker) Chunk(content string) []Piece {
	source := []byte(content)
	headings := c.collectHeadings(source)

	var pieces []Piece
	var stack []heading // active header_stack, outermost first

	// Text preceding the first heading, if any.
	firstStart := len(source)
	if len(headings) > 0 {
		firstStart = headings[0].start
	}
	pieces = append(pieces, c.splitRun(string(source[:firstStart]), nil, 0, false)...)

	for i, h := range headings {
		for len(stack) > 0 && stack[len(stack)-1].level >= h.level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, h)

		headerPath := make([]string, len(stack))
		for j, s := range stack {
			headerPath[j] = s.title
		}
		sectionLevel := len(stack)

		runStart := h.start
		runEnd := len(source)
		if i+1 < len(headings) {
			runEnd = headings[i+1].start
		}
		run := string(source[runStart:runEnd])
		pieces = append(pieces, c.splitRun(run, headerPath, sectionLevel, true)...)
	}

	return pieces
}

// collectHeadings walks the goldmark AST for heading nodes at any depth and
// returns them in document order with byte-accurate line spans.
func (c *Chunker) collectHeadings(source []byte) []heading {
	reader := text.NewReader(source)
	doc := c.md.Parser().Parse(reader)

	var headings []heading
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		lines := h.Lines()
		if lines.Len() == 0 {
			return ast.WalkSkipChildren, nil
		}
		start := lines.At(0).Start
		for start > 0 && source[start-1] != '\n' {
			start--
		}
		end := start
		if idx := bytes.IndexByte(source[start:], '\n'); idx >= 0 {
			end = start + idx
		} else {
			end = len(source)
		}
		headings = append(headings, heading{
			level: h.Level,
			title: extractText(h, source),
			start: start,
			end:   end,
		})
		return ast.WalkSkipChildren, nil
	})
	return headings
}

// extractText concatenates the raw text of a node's inline *ast.Text
// children, used to recover a heading's plain title.
func extractText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		if t, ok := child.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
			continue
		}
		buf.WriteString(extractText(child, source))
	}
	return strings.TrimSpace(buf.String())
}

// splitRun breaks one header-to-header run of text into size-bounded
// Pieces. When hasHeaderLine is true, run's first line is the heading
// itself (kept verbatim even if it alone exceeds the chunk size — the
// chunker never hard-cuts inside a header line).
func (c *Chunker) splitRun(runText string, headerPath []string, sectionLevel int, hasHeaderLine bool) []Piece {
	if runText == "" {
		return nil
	}

	text := runText
	var pieces []Piece

	if hasHeaderLine {
		lineEnd := strings.IndexByte(text, '\n')
		headerLine := text
		rest := ""
		if lineEnd >= 0 {
			headerLine = text[:lineEnd]
			rest = text[lineEnd+1:]
		}
		if len(headerLine) > c.size {
			// Header line alone exceeds CHUNK_SIZE: emit as its own piece,
			// hard-cut suppressed, then chunk the remainder independently.
			if trimmed := strings.TrimSpace(headerLine); trimmed != "" {
				pieces = append(pieces, Piece{Content: trimmed, HeaderPath: headerPath, SectionLevel: sectionLevel})
			}
			pieces = append(pieces, c.splitBounded(rest, headerPath, sectionLevel)...)
			return pieces
		}
		// Header line fits; let it flow into the bounded splitter with the
		// rest of the run so short sections stay in a single chunk.
	}

	return append(pieces, c.splitBounded(text, headerPath, sectionLevel)...)
}

// splitBounded applies the CHUNK_SIZE/CHUNK_OVERLAP sliding window with the
// preferred break order: double newline > single newline > sentence end >
// word boundary > hard cut.
func (c *Chunker) splitBounded(s string, headerPath []string, sectionLevel int) []Piece {
	var pieces []Piece
	n := len(s)
	pos := 0

	for pos < n {
		end := pos + c.size
		if end >= n {
			end = n
		} else {
			end = findBreak(s, pos, end)
		}
		if end <= pos {
			end = pos + 1
			if end > n {
				end = n
			}
		}

		piece := strings.TrimSpace(s[pos:end])
		if piece != "" {
			pieces = append(pieces, Piece{Content: piece, HeaderPath: headerPath, SectionLevel: sectionLevel})
		}

		if end >= n {
			break
		}

		next := end - c.overlap
		if next <= pos {
			next = end
		}
		pos = next
	}

	return pieces
}

// findBreak searches s[pos:limit] backward for the best break point,
// falling back to a hard cut at limit when none of the preferred
// boundaries are present.
func findBreak(s string, pos, limit int) int {
	window := s[pos:limit]

	if idx := strings.LastIndex(window, "\n\n"); idx > 0 {
		return pos + idx + 2
	}
	if idx := strings.LastIndex(window, "\n"); idx > 0 {
		return pos + idx + 1
	}
	if loc := lastSentenceEnd(window); loc > 0 {
		return pos + loc
	}
	if idx := strings.LastIndex(window, " "); idx > 0 {
		return pos + idx + 1
	}
	return limit
}

// lastSentenceEnd returns the offset just past the last sentence-ending
// punctuation run (". ", "! ", "? ") within window, or -1 if none.
func lastSentenceEnd(window string) int {
	matches := sentenceEnd.FindAllStringIndex(window, -1)
	if len(matches) == 0 {
		return -1
	}
	last := matches[len(matches)-1]
	return last[1]
}
