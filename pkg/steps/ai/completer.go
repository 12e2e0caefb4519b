package ai

import (
	"context"

	"github.com/go-go-golems/cpichat/pkg/chat"
	"github.com/go-go-golems/cpichat/pkg/conversation"
	"github.com/rs/zerolog/log"
)

// Completer is a single request/response call to a chat backend.
// systemPrompt may be empty. conv ends with the message to answer.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, conv conversation.Conversation) (string, error)
}

type CompleterFunc func(ctx context.Context, systemPrompt string, conv conversation.Conversation) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, systemPrompt string, conv conversation.Conversation) (string, error) {
	return f(ctx, systemPrompt, conv)
}

type sender struct {
	completer    Completer
	systemPrompt string
	window       *ContextWindow
}

type SenderOption func(*sender)

// WithContextWindow trims the history before every send.
func WithContextWindow(w *ContextWindow) SenderOption {
	return func(s *sender) {
		s.window = w
	}
}

// NewSender adapts a Completer to the controller's Sender. Reformat results
// are left out of the history, they only exist for display.
func NewSender(c Completer, systemPrompt string, options ...SenderOption) chat.Sender {
	ret := &sender{
		completer:    c,
		systemPrompt: systemPrompt,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func (s *sender) Send(ctx context.Context, conv conversation.Conversation) (string, error) {
	history := FilterReformatted(conv)
	if s.window != nil {
		trimmed := s.window.Trim(s.systemPrompt, history)
		if len(trimmed) < len(history) {
			log.Debug().
				Int("dropped", len(history)-len(trimmed)).
				Int("max_tokens", s.window.MaxTokens).
				Msg("Trimmed conversation history")
		}
		history = trimmed
	}
	return s.completer.Complete(ctx, s.systemPrompt, history)
}

type reformatter struct {
	completer Completer
	prompt    string
}

// NewReformatter adapts a Completer to the controller's Reformatter. The text
// is sent as a single user message with prompt as the system prompt.
func NewReformatter(c Completer, prompt string) chat.Reformatter {
	return &reformatter{completer: c, prompt: prompt}
}

func (r *reformatter) Reformat(ctx context.Context, text string) (string, error) {
	return r.completer.Complete(ctx, r.prompt, conversation.Conversation{
		conversation.NewChatMessage(conversation.RoleUser, text),
	})
}

// FilterReformatted drops reformat results from conv.
func FilterReformatted(conv conversation.Conversation) conversation.Conversation {
	ret := make(conversation.Conversation, 0, len(conv))
	for _, m := range conv {
		if _, ok := m.ReformatOf(); ok {
			continue
		}
		ret = append(ret, m)
	}
	return ret
}
