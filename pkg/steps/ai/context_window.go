package ai

import (
	"github.com/go-go-golems/cpichat/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
)

// per-message overhead of the chat format (role markers, separators)
const messageOverheadTokens = 4

// ContextWindow keeps the newest messages that fit into MaxTokens.
type ContextWindow struct {
	MaxTokens int
	codec     tokenizer.Codec
}

// NewContextWindow uses the encoding of model when it is known to the
// tokenizer and cl100k_base otherwise.
func NewContextWindow(model string, maxTokens int) (*ContextWindow, error) {
	codec, err := tokenizer.ForModel(tokenizer.Model(model))
	if err != nil {
		codec, err = tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return nil, errors.Wrap(err, "could not load tokenizer")
		}
	}
	return &ContextWindow{MaxTokens: maxTokens, codec: codec}, nil
}

// Count returns the token count of s. Text the codec cannot encode is
// estimated at four bytes per token.
func (w *ContextWindow) Count(s string) int {
	ids, _, err := w.codec.Encode(s)
	if err != nil {
		return len(s)/4 + 1
	}
	return len(ids)
}

// Trim drops the oldest messages until the rest fits. The last message is
// always kept, even when it alone exceeds the budget.
func (w *ContextWindow) Trim(systemPrompt string, conv conversation.Conversation) conversation.Conversation {
	if w.MaxTokens <= 0 || len(conv) == 0 {
		return conv
	}

	budget := w.MaxTokens
	if systemPrompt != "" {
		budget -= w.Count(systemPrompt) + messageOverheadTokens
	}

	start := len(conv)
	for i := len(conv) - 1; i >= 0; i-- {
		cost := w.Count(conv[i].Content) + messageOverheadTokens
		if i < len(conv)-1 && cost > budget {
			break
		}
		budget -= cost
		start = i
	}

	return conv[start:]
}
