package render

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/pkg/errors"
)

const (
	FormatterTerminal = "terminal256"
	FormatterHTML     = "html"

	DefaultStyle = "monokai"
)

// Highlight colors code with chroma. An unknown or empty language falls
// back to content detection and then to plain text. The html formatter
// emits a bare <pre> block with inline styles.
func Highlight(code string, language string, formatter string, style string) (string, error) {
	lexer := lexers.Get(ResolveLexer(code, language))
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	var f chroma.Formatter
	if formatter == FormatterHTML {
		f = chromahtml.New()
	} else {
		f = formatters.Get(formatter)
	}

	it, err := lexer.Tokenise(nil, code)
	if err != nil {
		return "", errors.Wrap(err, "could not tokenise code")
	}

	var sb strings.Builder
	if err := f.Format(&sb, styles.Get(style), it); err != nil {
		return "", errors.Wrap(err, "could not format code")
	}
	return sb.String(), nil
}

// ResolveLexer returns the chroma lexer name used for language.
func ResolveLexer(code string, language string) string {
	if language != "" {
		if l := lexers.Get(language); l != nil {
			return l.Config().Name
		}
	}
	if strings.TrimSpace(code) != "" {
		if l := lexers.Analyse(code); l != nil {
			return l.Config().Name
		}
	}
	return "plaintext"
}
