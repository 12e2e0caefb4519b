package settings

import (
	"testing"
	"time"

	"github.com/go-go-golems/cpichat/pkg/steps/ai/types"
	"github.com/go-go-golems/glazed/pkg/cmds/middlewares"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	s, err := NewSettings()
	require.NoError(t, err)
	require.NoError(t, s.Validate())

	assert.Equal(t, types.ApiTypeMock, s.Chat.ApiType)
	assert.Equal(t, time.Second, s.Chat.MockDelay())
	assert.Equal(t, time.Minute, s.Chat.Timeout())
	assert.Equal(t, 8000, s.Chat.MaxContextTokens)
	assert.Equal(t, "Gemini Agent", s.Agent.Name)
	assert.Equal(t, "SAP CPI Assistant", s.Agent.Subtitle)
	assert.Equal(t, "Hello! I'm your SAP CPI Agent. How can I help you with Groovy scripts today?", s.Agent.Greeting)
	assert.True(t, s.Agent.LocalFormatter)
	require.NotNil(t, s.Chat.Temperature)
	assert.InDelta(t, 0.2, *s.Chat.Temperature, 1e-9)
	require.NotNil(t, s.Chat.MaxResponseTokens)
	assert.Equal(t, 2048, *s.Chat.MaxResponseTokens)
	assert.NotNil(t, s.Chat.APIKeys)
}

func TestCloneIsIndependent(t *testing.T) {
	s, err := NewSettings()
	require.NoError(t, err)
	c := s.Clone()
	c.Chat.APIKeys["openai-api-key"] = "sk-test"
	*c.Chat.Temperature = 1

	assert.Empty(t, s.Chat.APIKeys["openai-api-key"])
	assert.InDelta(t, 0.2, *s.Chat.Temperature, 1e-9)
}

func TestValidate(t *testing.T) {
	s, err := NewSettings()
	require.NoError(t, err)

	s.Chat.ApiType = "claude"
	assert.Error(t, s.Validate())

	s.Chat.ApiType = types.ApiTypeOpenAI
	s.Chat.Engine = ""
	assert.Error(t, s.Validate())

	s.Chat.ApiType = types.ApiTypeMock
	assert.NoError(t, s.Validate())

	s.Chat.TimeoutSeconds = -1
	assert.Error(t, s.Validate())
	s.Chat.TimeoutSeconds = 1

	s.Chat.BaseURL = "http://localhost:1234/v1"
	assert.Error(t, s.Validate())
	s.Chat.AllowInsecureBaseURL = true
	assert.NoError(t, s.Validate())
}

func newFlagCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	require.NoError(t, AddFlags(cmd))
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestLoadFromFlags(t *testing.T) {
	cmd := newFlagCommand(t,
		"--ai-api-type", "openai",
		"--ai-engine", "gpt-4o-mini",
		"--openai-api-key", "sk-flag",
		"--ai-max-context-tokens", "100",
		"--ai-timeout", "5",
		"--agent-name", "Groovy Bot",
	)

	s, err := LoadWithMiddlewares(
		middlewares.ParseFromCobraCommand(cmd),
		middlewares.SetFromDefaults(),
	)
	require.NoError(t, err)

	assert.Equal(t, types.ApiTypeOpenAI, s.Chat.ApiType)
	assert.Equal(t, "gpt-4o-mini", s.Chat.Engine)
	assert.Equal(t, "sk-flag", s.Chat.APIKey(types.ApiTypeOpenAI))
	assert.Equal(t, 100, s.Chat.MaxContextTokens)
	assert.Equal(t, 5*time.Second, s.Chat.Timeout())
	assert.Equal(t, "Groovy Bot", s.Agent.Name)

	// untouched flags keep the defaults
	assert.Equal(t, time.Second, s.Chat.MockDelay())
	assert.Equal(t, "SAP CPI Assistant", s.Agent.Subtitle)
	assert.True(t, s.Agent.LocalFormatter)
}

func TestLoadFlagsOverrideViper(t *testing.T) {
	viper.Set("ai-engine", "from-config")
	viper.Set("agent-subtitle", "Config Subtitle")
	t.Cleanup(viper.Reset)

	cmd := newFlagCommand(t, "--ai-engine", "from-flag")
	s, err := Load(cmd)
	require.NoError(t, err)

	assert.Equal(t, "from-flag", s.Chat.Engine)
	assert.Equal(t, "Config Subtitle", s.Agent.Subtitle)
	assert.Equal(t, "Gemini Agent", s.Agent.Name)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	require.NoError(t, AddFlags(cmd))
	err := cmd.ParseFlags([]string{"--ai-api-type", "nope"})
	if err == nil {
		_, err = Load(cmd)
	}
	assert.Error(t, err)
}

func TestLoadRejectsInsecureBaseURL(t *testing.T) {
	cmd := newFlagCommand(t, "--ai-base-url", "http://10.0.0.1/v1")
	_, err := Load(cmd)
	assert.Error(t, err)

	cmd = newFlagCommand(t, "--ai-base-url", "http://10.0.0.1/v1", "--ai-allow-insecure-base-url")
	s, err := Load(cmd)
	require.NoError(t, err)
	assert.True(t, s.Chat.AllowInsecureBaseURL)
}

func TestAPIKeyFallsBackToEnvironment(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-env")
	s, err := NewSettings()
	require.NoError(t, err)

	assert.Equal(t, "from-env", s.Chat.APIKey(types.ApiTypeGemini))
	s.Chat.APIKeys["gemini-api-key"] = "from-config"
	assert.Equal(t, "from-config", s.Chat.APIKey(types.ApiTypeGemini))
}

func TestRenderPrompts(t *testing.T) {
	s, err := NewSettings()
	require.NoError(t, err)

	p, err := s.Agent.RenderSystemPrompt()
	require.NoError(t, err)
	assert.Equal(t, "You are an expert in SAP CPI and Groovy scripting. Help the user generate scripts.", p)

	s.Agent.SystemPrompt = `You are {{ .AgentName | upper }}. {{ .Subtitle | trim }}`
	p, err = s.Agent.RenderSystemPrompt()
	require.NoError(t, err)
	assert.Equal(t, "You are GEMINI AGENT. SAP CPI Assistant", p)

	s.Agent.FormatterPrompt = `{{ .Nope`
	_, err = s.Agent.RenderFormatterPrompt()
	assert.Error(t, err)
}

func TestGetMetadata(t *testing.T) {
	s, err := NewSettings()
	require.NoError(t, err)
	md := s.GetMetadata()
	assert.Equal(t, "mock", md["ai-api-type"])
	assert.Equal(t, 2048, md["ai-max-response-tokens"])
	assert.NotContains(t, md, "ai-base-url")
}
