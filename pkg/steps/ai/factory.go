package ai

import (
	"github.com/go-go-golems/cpichat/pkg/chat"
	"github.com/go-go-golems/cpichat/pkg/steps/ai/gemini"
	"github.com/go-go-golems/cpichat/pkg/steps/ai/mock"
	"github.com/go-go-golems/cpichat/pkg/steps/ai/ollama"
	"github.com/go-go-golems/cpichat/pkg/steps/ai/openai"
	"github.com/go-go-golems/cpichat/pkg/steps/ai/settings"
	"github.com/go-go-golems/cpichat/pkg/steps/ai/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Backend bundles the two collaborators the controller needs.
type Backend struct {
	Sender      chat.Sender
	Reformatter chat.Reformatter
}

type StandardBackendFactory struct {
	Settings *settings.Settings
}

func NewCompleter(s *settings.ChatSettings) (Completer, error) {
	switch s.ApiType {
	case types.ApiTypeMock:
		return mock.NewCompleter(mock.WithDelay(s.MockDelay())), nil
	case types.ApiTypeOpenAI:
		return openai.NewCompleter(s)
	case types.ApiTypeGemini:
		return gemini.NewCompleter(s)
	case types.ApiTypeOllama:
		return ollama.NewCompleter(s)
	default:
		return nil, errors.Errorf("unknown api type %q", s.ApiType)
	}
}

func (f *StandardBackendFactory) NewBackend() (*Backend, error) {
	settings_ := f.Settings.Clone()
	if err := settings_.Validate(); err != nil {
		return nil, err
	}

	completer, err := NewCompleter(settings_.Chat)
	if err != nil {
		return nil, err
	}

	systemPrompt, err := settings_.Agent.RenderSystemPrompt()
	if err != nil {
		return nil, err
	}

	var senderOptions []SenderOption
	if settings_.Chat.MaxContextTokens > 0 {
		window, err := NewContextWindow(settings_.Chat.Engine, settings_.Chat.MaxContextTokens)
		if err != nil {
			return nil, err
		}
		senderOptions = append(senderOptions, WithContextWindow(window))
	}

	ret := &Backend{
		Sender: NewSender(completer, systemPrompt, senderOptions...),
	}

	if settings_.Agent.LocalFormatter || settings_.Chat.ApiType == types.ApiTypeMock {
		ret.Reformatter = mock.NewReformatter(settings_.Chat.MockDelay())
	} else {
		formatterPrompt, err := settings_.Agent.RenderFormatterPrompt()
		if err != nil {
			return nil, err
		}
		ret.Reformatter = NewReformatter(completer, formatterPrompt)
	}

	log.Debug().Fields(settings_.GetMetadata()).Msg("Created backend")

	return ret, nil
}
