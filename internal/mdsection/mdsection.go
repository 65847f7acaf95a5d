// Package mdsection locates and rewrites a named markdown section's body,
// the shared locator behind the edit/section, main, and extract
// dispatcher operations.
package mdsection

import (
	"strings"

	"mdmemory/internal/memerr"
)

// Section is a located header and the byte range of its body (the text
// between the header line and the next header of equal or shallower
// depth, exclusive of both header lines).
type Section struct {
	Level     int
	HeaderEnd int // offset just past the header line's newline
	BodyEnd   int // offset just past the section's body
}

func headerLevel(line string) (int, bool) {
	trimmed := strings.TrimLeft(line, " ")
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return 0, false
	}
	if level < len(trimmed) && trimmed[level] != ' ' {
		return 0, false
	}
	return level, true
}

func headerTitle(line string) string {
	trimmed := strings.TrimLeft(line, " ")
	trimmed = strings.TrimLeft(trimmed, "#")
	return strings.TrimSpace(trimmed)
}

// Find locates the section whose header line exactly matches
// sectionHeader (a line starting with one to six '#'s). Matching is by
// trimmed header title, independent of exact whitespace.
func Find(content, sectionHeader string) (Section, bool) {
	wantLevel, ok := headerLevel(sectionHeader)
	if !ok {
		return Section{}, false
	}
	wantTitle := headerTitle(sectionHeader)

	lines := splitKeepEnds(content)
	offset := 0
	for i, line := range lines {
		level, isHeader := headerLevel(line)
		lineLen := len(line)
		if isHeader && level == wantLevel && headerTitle(line) == wantTitle {
			headerEnd := offset + lineLen
			bodyEnd := len(content)
			innerOffset := headerEnd
			for j := i + 1; j < len(lines); j++ {
				l2, isH2 := headerLevel(lines[j])
				if isH2 && l2 <= wantLevel {
					bodyEnd = innerOffset
					break
				}
				innerOffset += len(lines[j])
			}
			return Section{Level: level, HeaderEnd: headerEnd, BodyEnd: bodyEnd}, true
		}
		offset += lineLen
	}
	return Section{}, false
}

// splitKeepEnds splits s into lines, each retaining its trailing '\n' (the
// final line may lack one), so offsets sum back to len(s).
func splitKeepEnds(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

// Body returns the raw text of sectionHeader's body, or NotFound.
func Body(content, sectionHeader string) (string, error) {
	sec, ok := Find(content, sectionHeader)
	if !ok {
		return "", memerr.New(memerr.NotFound, "section not found: %s", sectionHeader)
	}
	return content[sec.HeaderEnd:sec.BodyEnd], nil
}

// Mode selects how new text combines with an existing section body.
type Mode string

const (
	Replace Mode = "replace"
	Append  Mode = "append"
	Prepend Mode = "prepend"
)

// Mutate rewrites sectionHeader's body according to mode and returns the
// full updated document. NotFound if the header is absent.
func Mutate(content, sectionHeader string, mode Mode, text string) (string, error) {
	sec, ok := Find(content, sectionHeader)
	if !ok {
		return "", memerr.New(memerr.NotFound, "section not found: %s", sectionHeader)
	}
	body := content[sec.HeaderEnd:sec.BodyEnd]

	var newBody string
	switch mode {
	case Replace:
		newBody = ensureTrailingNewline(text)
		// Keep the blank lines that separated the old body from its
		// header and from the next section.
		if strings.HasPrefix(body, "\n") && !strings.HasPrefix(newBody, "\n") {
			newBody = "\n" + newBody
		}
		if strings.HasSuffix(body, "\n\n") && strings.TrimSpace(newBody) != "" && !strings.HasSuffix(newBody, "\n\n") {
			newBody += "\n"
		}
	case Append:
		newBody = ensureTrailingNewline(strings.TrimRight(body, "\n")) + ensureTrailingNewline(text)
		if strings.TrimSpace(body) == "" {
			newBody = ensureTrailingNewline(text)
		}
	case Prepend:
		newBody = ensureTrailingNewline(text) + body
	default:
		return "", memerr.New(memerr.InvalidArgument, "unknown section edit mode %q", mode)
	}

	return content[:sec.HeaderEnd] + newBody + content[sec.BodyEnd:], nil
}

func ensureTrailingNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

// InsertPosition selects where Insert places text relative to the whole
// document.
type InsertPosition string

const (
	Start       InsertPosition = "start"
	End         InsertPosition = "end"
	AfterMarker InsertPosition = "after_marker"
)

// Insert places text at position within content. AfterMarker requires
// marker to be present verbatim, failing NotFound otherwise.
func Insert(content string, position InsertPosition, marker, text string) (string, error) {
	switch position {
	case Start:
		return ensureTrailingNewline(text) + content, nil
	case End:
		return ensureTrailingNewline(content) + text, nil
	case AfterMarker:
		idx := strings.Index(content, marker)
		if idx < 0 {
			return "", memerr.New(memerr.NotFound, "marker not found: %q", marker)
		}
		insertAt := idx + len(marker)
		return content[:insertAt] + "\n" + text + content[insertAt:], nil
	default:
		return "", memerr.New(memerr.InvalidArgument, "unknown insert position %q", position)
	}
}

// Outline returns the ordered list of header lines (trimmed titles) found
// in content, used by list(sections).
type Heading struct {
	Level int
	Title string
}

func Outline(content string) []Heading {
	var out []Heading
	for _, line := range splitKeepEnds(content) {
		if level, ok := headerLevel(line); ok {
			out = append(out, Heading{Level: level, Title: headerTitle(line)})
		}
	}
	return out
}
