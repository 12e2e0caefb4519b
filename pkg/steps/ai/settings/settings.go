package settings

import (
	"os"
	"strings"
	"time"

	"github.com/go-go-golems/cpichat/pkg/security"
	"github.com/go-go-golems/cpichat/pkg/steps/ai/types"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
)

type ChatSettings struct {
	ApiType types.ApiType `yaml:"api_type" glazed.parameter:"ai-api-type"`
	Engine  string        `yaml:"engine" glazed.parameter:"ai-engine"`
	BaseURL string        `yaml:"base_url,omitempty" glazed.parameter:"ai-base-url"`
	// AllowInsecureBaseURL accepts http and local network base URLs.
	AllowInsecureBaseURL bool              `yaml:"allow_insecure_base_url,omitempty" glazed.parameter:"ai-allow-insecure-base-url"`
	APIKeys              map[string]string `yaml:"api_keys,omitempty" glazed.parameter:"*-api-key"`
	Temperature          *float64          `yaml:"temperature,omitempty" glazed.parameter:"ai-temperature"`
	MaxResponseTokens    *int              `yaml:"max_response_tokens,omitempty" glazed.parameter:"ai-max-response-tokens"`
	// MaxContextTokens bounds the history sent to the backend. Zero disables trimming.
	MaxContextTokens      int `yaml:"max_context_tokens" glazed.parameter:"ai-max-context-tokens"`
	TimeoutSeconds        int `yaml:"timeout_seconds" glazed.parameter:"ai-timeout"`
	MockDelayMilliseconds int `yaml:"mock_delay_ms" glazed.parameter:"mock-delay"`
}

func (cs *ChatSettings) Timeout() time.Duration {
	return time.Duration(cs.TimeoutSeconds) * time.Second
}

func (cs *ChatSettings) MockDelay() time.Duration {
	return time.Duration(cs.MockDelayMilliseconds) * time.Millisecond
}

type AgentSettings struct {
	Name            string `yaml:"name" glazed.parameter:"agent-name"`
	Subtitle        string `yaml:"subtitle" glazed.parameter:"agent-subtitle"`
	Greeting        string `yaml:"greeting" glazed.parameter:"greeting"`
	SystemPrompt    string `yaml:"system_prompt" glazed.parameter:"system-prompt"`
	FormatterPrompt string `yaml:"formatter_prompt" glazed.parameter:"formatter-prompt"`
	// LocalFormatter reformats without calling the backend.
	LocalFormatter bool `yaml:"local_formatter" glazed.parameter:"local-formatter"`
}

type Settings struct {
	Chat  *ChatSettings  `yaml:"chat"`
	Agent *AgentSettings `yaml:"agent"`
}

func newEmptySettings() *Settings {
	return &Settings{
		Chat:  &ChatSettings{APIKeys: map[string]string{}},
		Agent: &AgentSettings{},
	}
}

// NewSettings returns the parameter defaults of the chat and agent layers.
func NewSettings() (*Settings, error) {
	chatLayer, err := NewChatParameterLayer()
	if err != nil {
		return nil, err
	}
	agentLayer, err := NewAgentParameterLayer()
	if err != nil {
		return nil, err
	}

	s := newEmptySettings()
	if err := chatLayer.InitializeStructFromParameterDefaults(s.Chat); err != nil {
		return nil, err
	}
	if err := agentLayer.InitializeStructFromParameterDefaults(s.Agent); err != nil {
		return nil, err
	}
	if s.Chat.APIKeys == nil {
		s.Chat.APIKeys = map[string]string{}
	}
	return s, nil
}

// UpdateFromParsedLayers fills the settings from the parsed chat and agent layers.
func (s *Settings) UpdateFromParsedLayers(parsedLayers *layers.ParsedLayers) error {
	if err := parsedLayers.InitializeStruct(AiChatSlug, s.Chat); err != nil {
		return err
	}
	if err := parsedLayers.InitializeStruct(AgentSlug, s.Agent); err != nil {
		return err
	}
	if s.Chat.APIKeys == nil {
		s.Chat.APIKeys = map[string]string{}
	}
	return nil
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

func (s *Settings) Validate() error {
	if !s.Chat.ApiType.IsValid() {
		return errors.Errorf("unknown api type %q", s.Chat.ApiType)
	}
	if s.Chat.ApiType != types.ApiTypeMock && s.Chat.Engine == "" {
		return errors.New("no engine specified")
	}
	if s.Chat.MaxContextTokens < 0 {
		return errors.New("max context tokens must not be negative")
	}
	if s.Chat.TimeoutSeconds < 0 || s.Chat.MockDelayMilliseconds < 0 {
		return errors.New("timeout and mock delay must not be negative")
	}
	if s.Chat.BaseURL != "" {
		policy := security.BaseURLPolicy{}
		if s.Chat.AllowInsecureBaseURL {
			policy = security.InsecurePolicy
		}
		if err := security.ValidateBaseURL(s.Chat.BaseURL, policy); err != nil {
			return err
		}
	}
	return nil
}

// APIKey returns the configured key for apiType, falling back to the
// provider's usual environment variable (e.g. OPENAI_API_KEY).
func (cs *ChatSettings) APIKey(apiType types.ApiType) string {
	if k, ok := cs.APIKeys[string(apiType)+"-api-key"]; ok && k != "" {
		return k
	}
	return os.Getenv(strings.ToUpper(string(apiType)) + "_API_KEY")
}

func (s *Settings) GetMetadata() map[string]interface{} {
	metadata := map[string]interface{}{
		"ai-api-type": string(s.Chat.ApiType),
		"ai-engine":   s.Chat.Engine,
	}
	if s.Chat.Temperature != nil {
		metadata["ai-temperature"] = *s.Chat.Temperature
	}
	if s.Chat.MaxResponseTokens != nil {
		metadata["ai-max-response-tokens"] = *s.Chat.MaxResponseTokens
	}
	if s.Chat.BaseURL != "" {
		metadata["ai-base-url"] = s.Chat.BaseURL
	}
	return metadata
}
