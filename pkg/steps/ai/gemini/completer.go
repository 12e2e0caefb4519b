// Package gemini talks to Google's Gemini API through the generative-ai-go SDK.
package gemini

import (
	"context"
	"strings"

	"github.com/go-go-golems/cpichat/pkg/conversation"
	"github.com/go-go-golems/cpichat/pkg/steps/ai/settings"
	"github.com/go-go-golems/cpichat/pkg/steps/ai/types"
	genai "github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

const (
	roleUser  = "user"
	roleModel = "model"
)

type Completer struct {
	settings *settings.ChatSettings
}

func NewCompleter(s *settings.ChatSettings) (*Completer, error) {
	if s.APIKey(types.ApiTypeGemini) == "" {
		return nil, errors.New("no API key for gemini")
	}
	if s.Engine == "" {
		return nil, errors.New("no engine specified")
	}
	return &Completer{settings: s}, nil
}

func (c *Completer) clientOptions() []option.ClientOption {
	opts := []option.ClientOption{option.WithAPIKey(c.settings.APIKey(types.ApiTypeGemini))}
	if c.settings.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(c.settings.BaseURL))
	}
	return opts
}

func (c *Completer) Complete(ctx context.Context, systemPrompt string, conv conversation.Conversation) (string, error) {
	history, last, err := SplitHistory(conv)
	if err != nil {
		return "", err
	}

	client, err := genai.NewClient(ctx, c.clientOptions()...)
	if err != nil {
		return "", errors.Wrap(err, "could not create gemini client")
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close gemini client")
		}
	}()

	model := client.GenerativeModel(c.settings.Engine)
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}
	if c.settings.Temperature != nil {
		model.SetTemperature(float32(*c.settings.Temperature))
	}
	if c.settings.MaxResponseTokens != nil {
		model.SetMaxOutputTokens(int32(*c.settings.MaxResponseTokens))
	}

	cs := model.StartChat()
	cs.History = history

	log.Debug().
		Str("model", c.settings.Engine).
		Int("history", len(history)).
		Msg("Gemini chat request")

	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return "", errors.Wrap(err, "gemini request failed")
	}

	return ResponseText(resp)
}

// SplitHistory turns conv into Gemini chat history plus the text of the last
// message, which has to come from the user.
func SplitHistory(conv conversation.Conversation) ([]*genai.Content, string, error) {
	last := conv.LastMessage()
	if last == nil {
		return nil, "", errors.New("no messages to send")
	}
	if last.Role != conversation.RoleUser {
		return nil, "", errors.Errorf("last message must be from the user, got %s", last.Role)
	}

	history := make([]*genai.Content, 0, len(conv)-1)
	for _, m := range conv[:len(conv)-1] {
		role := roleUser
		if m.Role == conversation.RoleAssistant {
			role = roleModel
		}
		// gemini rejects a history that starts with the model
		if len(history) == 0 && role == roleModel {
			continue
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	return history, last.Content, nil
}

// ResponseText concatenates the text parts of the first candidate.
func ResponseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("gemini returned no candidates")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return "", errors.Errorf("gemini returned an empty candidate (finish reason %s)", cand.FinishReason)
	}

	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String(), nil
}
