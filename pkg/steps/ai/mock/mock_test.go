package mock

import (
	"context"
	"testing"
	"time"

	"github.com/go-go-golems/cpichat/pkg/conversation"
	"github.com/go-go-golems/cpichat/pkg/segments"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleterAnswersLastUserMessage(t *testing.T) {
	c := NewCompleter()
	reply, err := c.Complete(context.Background(), "", conversation.Conversation{
		conversation.NewChatMessage(conversation.RoleAssistant, "Hello!"),
		conversation.NewChatMessage(conversation.RoleUser, "split a csv payload"),
	})
	require.NoError(t, err)
	assert.Equal(t, SampleReply("split a csv payload"), reply)

	code := segments.CodeBlocks(segments.Parse(reply))
	require.Len(t, code, 1)
	assert.Equal(t, "groovy", code[0].Language)
	assert.Contains(t, code[0].Text, "// Logic for split a csv payload")
}

func TestCompleterCyclesReplies(t *testing.T) {
	c := NewCompleter(WithReplies("First", "Second"))
	input := conversation.Conversation{conversation.NewChatMessage(conversation.RoleUser, "x")}

	var got []string
	for i := 0; i < 3; i++ {
		r, err := c.Complete(context.Background(), "", input)
		require.NoError(t, err)
		got = append(got, r)
	}
	assert.Equal(t, []string{"First", "Second", "First"}, got)
}

func TestCompleterNeedsInput(t *testing.T) {
	c := NewCompleter()
	_, err := c.Complete(context.Background(), "", nil)
	assert.Error(t, err)

	_, err = c.Complete(context.Background(), "", conversation.Conversation{
		conversation.NewChatMessage(conversation.RoleAssistant, "only me"),
	})
	assert.Error(t, err)
}

func TestCompleterDelayHonoursCancellation(t *testing.T) {
	c := NewCompleter(WithDelay(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Complete(ctx, "", conversation.Conversation{conversation.NewChatMessage(conversation.RoleUser, "x")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"tabs", "def f() {\n\treturn 1\n}", "def f() {\n    return 1\n}"},
		{"trailing spaces", "a   \nb\t", "a\nb"},
		{"blank runs", "a\n\n\n\nb", "a\n\nb"},
		{"outer blank lines", "\n\na\n\n", "a"},
		{"crlf", "a\r\nb", "a\nb"},
		{"already tidy", "a\n\nb", "a\n\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestReformatterIsIdempotent(t *testing.T) {
	r := NewReformatter(0)
	once, err := r.Reformat(context.Background(), "x\t= 1  \n\n\n\ny = 2")
	require.NoError(t, err)
	twice, err := r.Reformat(context.Background(), once)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
	assert.Equal(t, "x    = 1\n\ny = 2", once)
}
