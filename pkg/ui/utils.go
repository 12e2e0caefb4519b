package ui

import (
	"github.com/muesli/reflow/wordwrap"
)

func wrapWords(text string, width int) string {
	if width <= 0 {
		return text
	}
	return wordwrap.String(text, width)
}
