// Package ollama talks to a local ollama server. The server address is taken
// from OLLAMA_HOST.
package ollama

import (
	"context"
	"strings"

	"github.com/go-go-golems/cpichat/pkg/conversation"
	"github.com/go-go-golems/cpichat/pkg/steps/ai/settings"
	"github.com/jmorganca/ollama/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Completer struct {
	client   *api.Client
	settings *settings.ChatSettings
}

func NewCompleter(s *settings.ChatSettings) (*Completer, error) {
	if s.Engine == "" {
		return nil, errors.New("no engine specified")
	}
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, errors.Wrap(err, "could not create ollama client")
	}
	return &Completer{client: client, settings: s}, nil
}

func (c *Completer) Complete(ctx context.Context, systemPrompt string, conv conversation.Conversation) (string, error) {
	req, err := MakeChatRequest(c.settings, systemPrompt, conv)
	if err != nil {
		return "", err
	}

	log.Debug().Str("model", req.Model).Int("num_messages", len(req.Messages)).Msg("Ollama chat request")

	var sb strings.Builder
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "ollama chat failed")
	}

	return sb.String(), nil
}

func MakeChatRequest(
	s *settings.ChatSettings,
	systemPrompt string,
	conv conversation.Conversation,
) (*api.ChatRequest, error) {
	if len(conv) == 0 {
		return nil, errors.New("no messages to send")
	}

	msgs := make([]api.Message, 0, len(conv)+1)
	if systemPrompt != "" {
		msgs = append(msgs, api.Message{Role: string(conversation.RoleSystem), Content: systemPrompt})
	}
	for _, m := range conv {
		msgs = append(msgs, api.Message{Role: string(m.Role), Content: m.Content})
	}

	stream := false
	options := map[string]interface{}{}
	if s.Temperature != nil {
		options["temperature"] = *s.Temperature
	}
	if s.MaxResponseTokens != nil {
		options["num_predict"] = *s.MaxResponseTokens
	}

	return &api.ChatRequest{
		Model:    s.Engine,
		Messages: msgs,
		Stream:   &stream,
		Options:  options,
	}, nil
}
