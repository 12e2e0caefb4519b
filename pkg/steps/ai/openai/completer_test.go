package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-go-golems/cpichat/pkg/conversation"
	"github.com/go-go-golems/cpichat/pkg/steps/ai/settings"
	"github.com/go-go-golems/cpichat/pkg/steps/ai/types"
	go_openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings(t *testing.T, baseURL string) *settings.ChatSettings {
	t.Helper()
	s, err := settings.NewSettings()
	require.NoError(t, err)
	s.Chat.ApiType = types.ApiTypeOpenAI
	s.Chat.Engine = "gpt-4o-mini"
	s.Chat.BaseURL = baseURL
	s.Chat.APIKeys["openai-api-key"] = "sk-test"
	return s.Chat
}

func TestMakeCompletionRequest(t *testing.T) {
	s := testSettings(t, "")
	req, err := MakeCompletionRequest(s, "system", conversation.Conversation{
		conversation.NewChatMessage(conversation.RoleUser, "hi"),
		conversation.NewChatMessage(conversation.RoleAssistant, "hello"),
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", req.Model)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, go_openai.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Equal(t, go_openai.ChatMessageRoleUser, req.Messages[1].Role)
	assert.Equal(t, go_openai.ChatMessageRoleAssistant, req.Messages[2].Role)
	assert.Equal(t, 2048, req.MaxTokens)
	assert.InDelta(t, 0.2, req.Temperature, 1e-6)

	_, err = MakeCompletionRequest(s, "", nil)
	assert.Error(t, err)
}

func TestMakeClientNeedsKeyOrURL(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	s := testSettings(t, "")
	delete(s.APIKeys, "openai-api-key")
	_, err := MakeClient(s)
	assert.Error(t, err)
}

func TestCompleterAgainstServer(t *testing.T) {
	var got go_openai.ChatCompletionRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(go_openai.ChatCompletionResponse{
			ID:     "cmpl-1",
			Object: "chat.completion",
			Model:  got.Model,
			Choices: []go_openai.ChatCompletionChoice{{
				Index: 0,
				Message: go_openai.ChatCompletionMessage{
					Role:    go_openai.ChatMessageRoleAssistant,
					Content: "```groovy\nprintln 1\n```",
				},
				FinishReason: go_openai.FinishReasonStop,
			}},
		})
	}))
	defer srv.Close()

	c, err := NewCompleter(testSettings(t, srv.URL+"/"))
	require.NoError(t, err)

	reply, err := c.Complete(context.Background(), "sys", conversation.Conversation{
		conversation.NewChatMessage(conversation.RoleUser, "print one"),
	})
	require.NoError(t, err)
	assert.Equal(t, "```groovy\nprintln 1\n```", reply)
	assert.Equal(t, "Bearer sk-test", auth)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "print one", got.Messages[1].Content)
}

func TestCompleterReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	c, err := NewCompleter(testSettings(t, srv.URL))
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "", conversation.Conversation{
		conversation.NewChatMessage(conversation.RoleUser, "x"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")
}
