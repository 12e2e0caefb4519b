package openai

import (
	"context"
	"strings"

	"github.com/go-go-golems/cpichat/pkg/conversation"
	"github.com/go-go-golems/cpichat/pkg/steps/ai/settings"
	"github.com/go-go-golems/cpichat/pkg/steps/ai/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

// Completer calls the chat completions endpoint of an OpenAI compatible API.
type Completer struct {
	client   *go_openai.Client
	settings *settings.ChatSettings
}

func NewCompleter(s *settings.ChatSettings) (*Completer, error) {
	client, err := MakeClient(s)
	if err != nil {
		return nil, err
	}
	return &Completer{client: client, settings: s}, nil
}

func MakeClient(s *settings.ChatSettings) (*go_openai.Client, error) {
	apiKey := s.APIKey(types.ApiTypeOpenAI)
	if apiKey == "" && s.BaseURL == "" {
		return nil, errors.New("no API key for openai")
	}
	config := go_openai.DefaultConfig(apiKey)
	if s.BaseURL != "" {
		config.BaseURL = strings.TrimRight(s.BaseURL, "/")
	}
	return go_openai.NewClientWithConfig(config), nil
}

func (c *Completer) Complete(ctx context.Context, systemPrompt string, conv conversation.Conversation) (string, error) {
	req, err := MakeCompletionRequest(c.settings, systemPrompt, conv)
	if err != nil {
		return "", err
	}

	log.Debug().
		Str("model", req.Model).
		Int("num_messages", len(req.Messages)).
		Msg("OpenAI chat completion request")

	resp, err := c.client.CreateChatCompletion(ctx, *req)
	if err != nil {
		return "", errors.Wrap(err, "openai chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}

	log.Debug().
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Str("finish_reason", string(resp.Choices[0].FinishReason)).
		Msg("OpenAI chat completion done")

	return resp.Choices[0].Message.Content, nil
}

func MakeCompletionRequest(
	s *settings.ChatSettings,
	systemPrompt string,
	conv conversation.Conversation,
) (*go_openai.ChatCompletionRequest, error) {
	if s.Engine == "" {
		return nil, errors.New("no engine specified")
	}
	if len(conv) == 0 {
		return nil, errors.New("no messages to send")
	}

	msgs := make([]go_openai.ChatCompletionMessage, 0, len(conv)+1)
	if systemPrompt != "" {
		msgs = append(msgs, go_openai.ChatCompletionMessage{
			Role:    go_openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	for _, m := range conv {
		msgs = append(msgs, go_openai.ChatCompletionMessage{
			Role:    roleToOpenAI(m.Role),
			Content: m.Content,
		})
	}

	req := &go_openai.ChatCompletionRequest{
		Model:    s.Engine,
		Messages: msgs,
	}
	if s.Temperature != nil {
		req.Temperature = float32(*s.Temperature)
	}
	if s.MaxResponseTokens != nil {
		req.MaxTokens = *s.MaxResponseTokens
	}

	return req, nil
}

func roleToOpenAI(r conversation.Role) string {
	switch r {
	case conversation.RoleAssistant:
		return go_openai.ChatMessageRoleAssistant
	case conversation.RoleSystem:
		return go_openai.ChatMessageRoleSystem
	default:
		return go_openai.ChatMessageRoleUser
	}
}
