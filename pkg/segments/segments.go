// Package segments splits raw message text into prose and fenced code segments.
//
// The split is what the presentation layer paints: prose goes through a
// markdown renderer, code goes through a syntax highlighter and gets a copy
// action. Parsing never fails; malformed fences degrade to prose.
package segments

import (
	"strings"
)

type SegmentType string

const (
	SegmentTypeProse SegmentType = "prose"
	SegmentTypeCode  SegmentType = "code"
)

const fenceMarker = "```"

// Segment is either a *ProseSegment or a *CodeSegment.
type Segment interface {
	SegmentType() SegmentType
	String() string
}

type ProseSegment struct {
	Text string `json:"text" yaml:"text"`
}

func (p *ProseSegment) SegmentType() SegmentType {
	return SegmentTypeProse
}

func (p *ProseSegment) String() string {
	return p.Text
}

var _ Segment = (*ProseSegment)(nil)

// CodeSegment is the text enclosed by a matching fence pair.
// An empty Language means the opening fence carried no language token.
type CodeSegment struct {
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
	Text     string `json:"text" yaml:"text"`
}

func (c *CodeSegment) SegmentType() SegmentType {
	return SegmentTypeCode
}

func (c *CodeSegment) String() string {
	return c.Text
}

func (c *CodeSegment) HasLanguage() bool {
	return c.Language != ""
}

var _ Segment = (*CodeSegment)(nil)

// Parse splits content into segments.
//
// An opening fence is a line made of ``` plus an optional language token
// (no whitespace, no backticks), starting at the beginning of content or
// right after a newline. The first later line that is exactly ``` closes it.
// The newline before an opening fence and the newline after a closing fence
// belong to the fence. Code text loses at most one trailing newline.
// Fence lines may end in \r\n.
// An opening fence without a closing fence turns the rest of content into
// prose.
func Parse(content string) []Segment {
	ret := []Segment{}

	// start of the text not yet assigned to a segment
	last := 0
	// position to search the next opening fence from
	pos := 0

	for pos < len(content) {
		open := nextLineStart(content, pos, fenceMarker)
		if open < 0 {
			break
		}

		language, bodyStart, ok := parseOpeningFence(content, open)
		if !ok {
			pos = open + len(fenceMarker)
			continue
		}

		closeStart, closeEnd, ok := findClosingFence(content, bodyStart)
		if !ok {
			// unterminated: everything from last onward is prose
			break
		}

		prose := content[last:open]
		if open > 0 {
			prose = trimLineEnding(prose)
		}
		if prose != "" {
			ret = append(ret, &ProseSegment{Text: prose})
		}

		code := content[bodyStart:closeStart]
		code = trimLineEnding(code)
		ret = append(ret, &CodeSegment{Language: language, Text: code})

		last = closeEnd
		pos = closeEnd
	}

	if last < len(content) {
		ret = append(ret, &ProseSegment{Text: content[last:]})
	}

	return ret
}

// ParseBytes is Parse for byte slices.
func ParseBytes(b []byte) []Segment {
	return Parse(string(b))
}

// Join is the inverse of Parse for well-formed segments: it re-inserts the
// fence markers and the newlines that belong to them.
//
// Well-formed means what Parse can produce: prose is non-empty, never
// adjacent to another prose segment and contains no fence line, code text
// contains no line that is exactly ``` (or ```\r), and neither ends in \r
// next to a fence. Join always writes \n line endings.
func Join(segs []Segment) string {
	var sb strings.Builder
	for i, s := range segs {
		if i > 0 {
			sb.WriteString("\n")
		}
		switch s_ := s.(type) {
		case *CodeSegment:
			sb.WriteString(fenceMarker)
			sb.WriteString(s_.Language)
			sb.WriteString("\n")
			sb.WriteString(s_.Text)
			sb.WriteString("\n")
			sb.WriteString(fenceMarker)
		default:
			sb.WriteString(s.String())
		}
	}
	return sb.String()
}

// CodeBlocks returns the code segments in order. The presentation layer uses
// their index as the copy target.
func CodeBlocks(segs []Segment) []*CodeSegment {
	var ret []*CodeSegment
	for _, s := range segs {
		if c, ok := s.(*CodeSegment); ok {
			ret = append(ret, c)
		}
	}
	return ret
}

// trimLineEnding strips one trailing \n or \r\n.
func trimLineEnding(s string) string {
	if strings.HasSuffix(s, "\r\n") {
		return s[:len(s)-2]
	}
	return strings.TrimSuffix(s, "\n")
}

// nextLineStart returns the first index >= from where marker starts a line.
func nextLineStart(content string, from int, marker string) int {
	for from <= len(content)-len(marker) {
		idx := strings.Index(content[from:], marker)
		if idx < 0 {
			return -1
		}
		idx += from
		if idx == 0 || content[idx-1] == '\n' {
			return idx
		}
		from = idx + 1
	}
	return -1
}

// parseOpeningFence checks the line starting at open and returns the language
// token and the index right after the line's newline.
func parseOpeningFence(content string, open int) (string, int, bool) {
	rest := content[open+len(fenceMarker):]
	nl := strings.IndexByte(rest, '\n')
	if nl < 0 {
		return "", 0, false
	}
	language := strings.TrimSuffix(rest[:nl], "\r")
	if strings.ContainsAny(language, " \t\r\v\f`") {
		return "", 0, false
	}
	return language, open + len(fenceMarker) + nl + 1, true
}

// findClosingFence looks for the first line at or after from that is exactly
// the fence marker, optionally followed by \r. It returns the start of that
// line and the index after its newline (or len(content)).
func findClosingFence(content string, from int) (int, int, bool) {
	pos := from
	for {
		idx := nextLineStart(content, pos, fenceMarker)
		if idx < 0 {
			return 0, 0, false
		}
		end := idx + len(fenceMarker)
		if end < len(content) && content[end] == '\r' && (end+1 == len(content) || content[end+1] == '\n') {
			end++
		}
		if end == len(content) {
			return idx, end, true
		}
		if content[end] == '\n' {
			return idx, end + 1, true
		}
		pos = idx + 1
	}
}
