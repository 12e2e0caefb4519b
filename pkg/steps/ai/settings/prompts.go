package settings

import (
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
)

// PromptData is what prompt templates can refer to.
type PromptData struct {
	AgentName string
	Subtitle  string
	Date      time.Time
}

func (a *AgentSettings) promptData() PromptData {
	return PromptData{
		AgentName: a.Name,
		Subtitle:  a.Subtitle,
		Date:      time.Now(),
	}
}

// RenderPrompt executes tmpl as a text/template with the sprig functions.
func RenderPrompt(name string, tmpl string, data interface{}) (string, error) {
	t, err := template.New(name).Funcs(sprig.TxtFuncMap()).Parse(tmpl)
	if err != nil {
		return "", errors.Wrapf(err, "could not parse %s template", name)
	}
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", errors.Wrapf(err, "could not render %s template", name)
	}
	return strings.TrimSpace(sb.String()), nil
}

func (a *AgentSettings) RenderSystemPrompt() (string, error) {
	return RenderPrompt("system-prompt", a.SystemPrompt, a.promptData())
}

func (a *AgentSettings) RenderFormatterPrompt() (string, error) {
	return RenderPrompt("formatter-prompt", a.FormatterPrompt, a.promptData())
}

func (a *AgentSettings) RenderGreeting() (string, error) {
	return RenderPrompt("greeting", a.Greeting, a.promptData())
}
