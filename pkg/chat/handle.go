package chat

import (
	"context"
	"sync"

	"github.com/go-go-golems/cpichat/pkg/conversation"
)

type Kind string

const (
	KindSubmit   Kind = "submit"
	KindReformat Kind = "reformat"
)

// Handle represents one in-flight collaborator call. It is cancelable and
// waitable.
type Handle struct {
	ID   string
	Kind Kind
	// MessageID is the user message for a submit and the source message for
	// a reformat.
	MessageID conversation.NodeID

	done chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	out    *conversation.Message
	err    error
}

func newHandle(id string, kind Kind, messageID conversation.NodeID, cancel context.CancelFunc) *Handle {
	return &Handle{
		ID:        id,
		Kind:      kind,
		MessageID: messageID,
		done:      make(chan struct{}),
		cancel:    cancel,
	}
}

func (h *Handle) setResult(out *conversation.Message, err error) {
	h.mu.Lock()
	h.out = out
	h.err = err
	close(h.done)
	h.cancel = nil
	h.mu.Unlock()
}

// Cancel cancels the call. Safe to call multiple times.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the call resolved and returns the appended message.
func (h *Handle) Wait() (*conversation.Message, error) {
	if h == nil {
		return nil, ErrHandleNil
	}
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.out, h.err
}

// Done is closed once the call resolved.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) IsRunning() bool {
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}
