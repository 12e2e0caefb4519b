package render

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/go-go-golems/cpichat/pkg/segments"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
)

type HTMLRenderer struct {
	codeStyle string
	markdown  goldmark.Markdown
}

type HTMLOption func(*HTMLRenderer)

func WithHTMLCodeStyle(style string) HTMLOption {
	return func(r *HTMLRenderer) {
		r.codeStyle = style
	}
}

func NewHTMLRenderer(options ...HTMLOption) *HTMLRenderer {
	ret := &HTMLRenderer{
		codeStyle: DefaultStyle,
		markdown:  goldmark.New(),
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func (r *HTMLRenderer) RenderMessage(content string) (string, error) {
	return r.RenderSegments(segments.Parse(content))
}

// RenderSegments wraps the message in a div.message. Prose is rendered as
// markdown, every code block becomes a div.code-block with a copy button
// carrying its index.
func (r *HTMLRenderer) RenderSegments(segs []segments.Segment) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(`<div class="message">` + "\n")

	codeIdx := 0
	for _, s := range segs {
		switch s_ := s.(type) {
		case *segments.CodeSegment:
			if err := r.renderCode(&buf, codeIdx, s_); err != nil {
				return "", err
			}
			codeIdx++
		default:
			buf.WriteString(`<div class="prose">` + "\n")
			if err := r.markdown.Convert([]byte(s.String()), &buf); err != nil {
				return "", errors.Wrap(err, "could not convert markdown")
			}
			buf.WriteString("</div>\n")
		}
	}

	buf.WriteString("</div>\n")
	return buf.String(), nil
}

func (r *HTMLRenderer) renderCode(buf *bytes.Buffer, idx int, code *segments.CodeSegment) error {
	highlighted, err := Highlight(code.Text, code.Language, FormatterHTML, r.codeStyle)
	if err != nil {
		return err
	}

	lang := html.EscapeString(code.Language)
	fmt.Fprintf(buf, `<div class="code-block" data-index="%d" data-language="%s">`+"\n", idx, lang)
	buf.WriteString(`<div class="code-header">`)
	if code.HasLanguage() {
		fmt.Fprintf(buf, `<span class="language">%s</span>`, lang)
	}
	fmt.Fprintf(buf, `<button class="copy" data-index="%d">Copy</button>`, idx)
	buf.WriteString("</div>\n")
	buf.WriteString(strings.TrimRight(highlighted, "\n"))
	buf.WriteString("\n</div>\n")
	return nil
}
