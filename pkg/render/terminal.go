// Package render turns parsed message segments into terminal or HTML output.
package render

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/cpichat/pkg/segments"
	"github.com/pkg/errors"
)

// CodeHeaderFunc returns the line shown above code block idx.
type CodeHeaderFunc func(idx int, code *segments.CodeSegment) string

type TerminalRenderer struct {
	width      int
	glamourOpt glamour.TermRendererOption
	codeStyle  string
	codeHeader CodeHeaderFunc

	prose *glamour.TermRenderer
}

type TerminalOption func(*TerminalRenderer)

func WithWidth(width int) TerminalOption {
	return func(r *TerminalRenderer) {
		r.width = width
	}
}

// WithProseStyle selects a glamour standard style ("dark", "light", "notty", ...).
// The default picks one based on the terminal.
func WithProseStyle(style string) TerminalOption {
	return func(r *TerminalRenderer) {
		r.glamourOpt = glamour.WithStandardStyle(style)
	}
}

func WithCodeStyle(style string) TerminalOption {
	return func(r *TerminalRenderer) {
		r.codeStyle = style
	}
}

func WithCodeHeader(f CodeHeaderFunc) TerminalOption {
	return func(r *TerminalRenderer) {
		r.codeHeader = f
	}
}

func DefaultCodeHeader(idx int, code *segments.CodeSegment) string {
	lang := code.Language
	if lang == "" {
		lang = "text"
	}
	return "[" + strconv.Itoa(idx+1) + "] " + lang
}

func NewTerminalRenderer(options ...TerminalOption) (*TerminalRenderer, error) {
	ret := &TerminalRenderer{
		width:      80,
		glamourOpt: glamour.WithAutoStyle(),
		codeStyle:  DefaultStyle,
		codeHeader: DefaultCodeHeader,
	}
	for _, o := range options {
		o(ret)
	}

	prose, err := glamour.NewTermRenderer(
		ret.glamourOpt,
		glamour.WithWordWrap(ret.width),
	)
	if err != nil {
		return nil, errors.Wrap(err, "could not create markdown renderer")
	}
	ret.prose = prose

	return ret, nil
}

func (r *TerminalRenderer) Width() int {
	return r.width
}

// RenderMessage parses content and renders every segment.
func (r *TerminalRenderer) RenderMessage(content string) (string, error) {
	return r.RenderSegments(segments.Parse(content))
}

func (r *TerminalRenderer) RenderSegments(segs []segments.Segment) (string, error) {
	var parts []string
	codeIdx := 0
	for _, s := range segs {
		switch s_ := s.(type) {
		case *segments.CodeSegment:
			out, err := r.RenderCode(codeIdx, s_)
			if err != nil {
				return "", err
			}
			parts = append(parts, out)
			codeIdx++
		default:
			out, err := r.RenderProse(s.String())
			if err != nil {
				return "", err
			}
			if out != "" {
				parts = append(parts, out)
			}
		}
	}
	return strings.Join(parts, "\n"), nil
}

func (r *TerminalRenderer) RenderProse(text string) (string, error) {
	out, err := r.prose.Render(text)
	if err != nil {
		return "", errors.Wrap(err, "could not render markdown")
	}
	return strings.Trim(out, "\n"), nil
}

func (r *TerminalRenderer) RenderCode(idx int, code *segments.CodeSegment) (string, error) {
	highlighted, err := Highlight(code.Text, code.Language, FormatterTerminal, r.codeStyle)
	if err != nil {
		return "", err
	}
	header := ""
	if r.codeHeader != nil {
		header = r.codeHeader(idx, code)
	}
	body := strings.TrimRight(highlighted, "\n")
	if header == "" {
		return body, nil
	}
	return header + "\n" + body, nil
}
