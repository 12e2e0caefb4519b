package settings

import (
	_ "embed"

	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/middlewares"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/spf13/cobra"
)

const (
	AiChatSlug = "ai-chat"
	AgentSlug  = "agent"
)

//go:embed "flags/chat.yaml"
var chatFlagsYAML []byte

//go:embed "flags/agent.yaml"
var agentFlagsYAML []byte

type ChatParameterLayer struct {
	*layers.ParameterLayerImpl `yaml:",inline"`
}

func NewChatParameterLayer(options ...layers.ParameterLayerOptions) (*ChatParameterLayer, error) {
	ret, err := layers.NewParameterLayerFromYAML(chatFlagsYAML, options...)
	if err != nil {
		return nil, err
	}
	return &ChatParameterLayer{ParameterLayerImpl: ret}, nil
}

type AgentParameterLayer struct {
	*layers.ParameterLayerImpl `yaml:",inline"`
}

func NewAgentParameterLayer(options ...layers.ParameterLayerOptions) (*AgentParameterLayer, error) {
	ret, err := layers.NewParameterLayerFromYAML(agentFlagsYAML, options...)
	if err != nil {
		return nil, err
	}
	return &AgentParameterLayer{ParameterLayerImpl: ret}, nil
}

// AddFlags registers the chat and agent flags on cmd.
func AddFlags(cmd *cobra.Command) error {
	chatLayer, err := NewChatParameterLayer()
	if err != nil {
		return err
	}
	agentLayer, err := NewAgentParameterLayer()
	if err != nil {
		return err
	}

	if err := chatLayer.AddLayerToCobraCommand(cmd); err != nil {
		return err
	}
	return agentLayer.AddLayerToCobraCommand(cmd)
}

// Load resolves the settings for cmd. Flags win over viper (config file and
// CPICHAT_ environment variables), which wins over the layer defaults.
func Load(cmd *cobra.Command) (*Settings, error) {
	return LoadWithMiddlewares(
		middlewares.ParseFromCobraCommand(cmd, parameters.WithParseStepSource("cobra")),
		middlewares.GatherFlagsFromViper(parameters.WithParseStepSource("viper")),
		middlewares.SetFromDefaults(parameters.WithParseStepSource("defaults")),
	)
}

// LoadWithMiddlewares runs middlewares_ over the chat and agent layers, first
// middleware taking precedence, and validates the result.
func LoadWithMiddlewares(middlewares_ ...middlewares.Middleware) (*Settings, error) {
	chatLayer, err := NewChatParameterLayer()
	if err != nil {
		return nil, err
	}
	agentLayer, err := NewAgentParameterLayer()
	if err != nil {
		return nil, err
	}

	layers_ := layers.NewParameterLayers(layers.WithLayers(chatLayer, agentLayer))
	parsedLayers := layers.NewParsedLayers()
	if err := middlewares.ExecuteMiddlewares(layers_, parsedLayers, middlewares_...); err != nil {
		return nil, err
	}

	s := newEmptySettings()
	if err := s.UpdateFromParsedLayers(parsedLayers); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
