// Package mock answers chat requests locally. It is the default backend so
// the application runs without credentials.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/cpichat/pkg/conversation"
	"github.com/pkg/errors"
)

const sampleReplyTemplate = "Here is a sample Groovy script for your request: \"%s\"\n\n" +
	"```groovy\n" +
	"import com.sap.gateway.ip.core.customdev.util.Message;\n\n" +
	"def Message processData(Message message) {\n" +
	"    // Logic for %s\n" +
	"    return message;\n" +
	"}\n" +
	"```"

// SampleReply is the canned answer for a user request.
func SampleReply(request string) string {
	return fmt.Sprintf(sampleReplyTemplate, request, request)
}

// Completer waits Delay and then replies. With Replies set it cycles through
// them, otherwise it answers with SampleReply for the last user message.
type Completer struct {
	Delay   time.Duration
	Replies []string

	mu  sync.Mutex
	idx int
}

type CompleterOption func(*Completer)

func WithDelay(d time.Duration) CompleterOption {
	return func(c *Completer) {
		c.Delay = d
	}
}

func WithReplies(replies ...string) CompleterOption {
	return func(c *Completer) {
		c.Replies = replies
	}
}

func NewCompleter(options ...CompleterOption) *Completer {
	ret := &Completer{}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func (c *Completer) Complete(ctx context.Context, systemPrompt string, conv conversation.Conversation) (string, error) {
	if len(conv) == 0 {
		return "", errors.New("no input")
	}

	if err := sleep(ctx, c.Delay); err != nil {
		return "", err
	}

	if len(c.Replies) > 0 {
		c.mu.Lock()
		defer c.mu.Unlock()
		reply := c.Replies[c.idx%len(c.Replies)]
		c.idx++
		return reply, nil
	}

	var request string
	for i := len(conv) - 1; i >= 0; i-- {
		if conv[i].Role == conversation.RoleUser {
			request = conv[i].Content
			break
		}
	}
	if request == "" {
		return "", errors.New("no user message to answer")
	}

	return SampleReply(request), nil
}

// Reformatter tidies whitespace without calling a backend: tabs become four
// spaces, trailing blanks are removed and runs of blank lines collapse to one.
type Reformatter struct {
	Delay time.Duration
}

func NewReformatter(delay time.Duration) *Reformatter {
	return &Reformatter{Delay: delay}
}

func (r *Reformatter) Reformat(ctx context.Context, text string) (string, error) {
	if err := sleep(ctx, r.Delay); err != nil {
		return "", err
	}
	return Normalize(text), nil
}

func Normalize(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	ret := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.TrimRight(strings.ReplaceAll(l, "\t", "    "), " ")
		if l == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		ret = append(ret, l)
	}

	return strings.Trim(strings.Join(ret, "\n"), "\n")
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
