// Package chat orchestrates user submissions and reformat requests against
// the conversation store.
//
// The controller owns the in-flight bookkeeping: one submit for the whole
// conversation, one reformat per message. Collaborator calls run on their
// own goroutine; their results are appended to the store unless the
// controller was closed in the meantime.
package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/cpichat/pkg/conversation"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Sender sends the whole conversation and returns the assistant reply text.
type Sender interface {
	Send(ctx context.Context, conv conversation.Conversation) (string, error)
}

// Reformatter returns a prettified version of text.
type Reformatter interface {
	Reformat(ctx context.Context, text string) (string, error)
}

type SenderFunc func(ctx context.Context, conv conversation.Conversation) (string, error)

func (f SenderFunc) Send(ctx context.Context, conv conversation.Conversation) (string, error) {
	return f(ctx, conv)
}

type ReformatterFunc func(ctx context.Context, text string) (string, error)

func (f ReformatterFunc) Reformat(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

type Controller struct {
	store       *conversation.Store
	sender      Sender
	reformatter Reformatter
	timeout     time.Duration

	mu        sync.Mutex
	closed    bool
	submit    *Handle
	reformats map[conversation.NodeID]*Handle

	// serializes computing and publishing the awaiting flag
	awaitingMu sync.Mutex
	// held for reading around an append, Close takes it for writing
	appendMu sync.RWMutex
}

type ControllerOption func(*Controller)

// WithTimeout bounds every collaborator call. Zero means no bound.
func WithTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) {
		c.timeout = d
	}
}

func NewController(
	store *conversation.Store,
	sender Sender,
	reformatter Reformatter,
	options ...ControllerOption,
) *Controller {
	ret := &Controller{
		store:       store,
		sender:      sender,
		reformatter: reformatter,
		reformats:   map[conversation.NodeID]*Handle{},
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func (c *Controller) Store() *conversation.Store {
	return c.store
}

// Submit appends a user message with the trimmed text and sends the
// conversation. A nil error means the message was accepted and the caller
// can clear its input.
func (c *Controller) Submit(ctx context.Context, text string) (*Handle, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyInput
	}
	if ctx == nil {
		ctx = context.Background()
	}

	userMsg := conversation.NewChatMessage(conversation.RoleUser, trimmed)
	runCtx, cancel := context.WithCancel(ctx)
	handle := newHandle(uuid.NewString(), KindSubmit, userMsg.ID, cancel)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return nil, ErrControllerClosed
	}
	if c.submit != nil {
		c.mu.Unlock()
		cancel()
		return nil, ErrSubmitInFlight
	}
	c.submit = handle
	c.mu.Unlock()

	if !c.appendIfAlive(userMsg) {
		c.mu.Lock()
		c.submit = nil
		c.mu.Unlock()
		cancel()
		return nil, ErrControllerClosed
	}
	c.updateAwaiting()

	log.Debug().
		Str("handle_id", handle.ID).
		Str("message_id", userMsg.ID.String()).
		Msg("Submitting message")

	go c.runSubmit(runCtx, cancel, handle)

	return handle, nil
}

func (c *Controller) runSubmit(ctx context.Context, cancelRun context.CancelFunc, handle *Handle) {
	defer cancelRun()

	callCtx, cancel := c.callContext(ctx)
	reply, err := c.sender.Send(callCtx, c.store.GetConversation())
	cancel()

	var out *conversation.Message
	switch {
	case err != nil:
		err = c.fail(OpSend, handle.MessageID, err)
	default:
		out = conversation.NewChatMessage(conversation.RoleAssistant, reply)
		if !c.appendIfAlive(out) {
			out = nil
			err = ErrControllerClosed
			log.Debug().Str("handle_id", handle.ID).Msg("Controller closed, discarding reply")
		}
	}

	c.mu.Lock()
	if c.submit == handle {
		c.submit = nil
	}
	c.mu.Unlock()

	c.updateAwaiting()
	handle.setResult(out, err)
}

// RequestReformat sends the content of an assistant message to the
// reformatter and appends the result as a new assistant message. The source
// message is never modified.
func (c *Controller) RequestReformat(ctx context.Context, msg *conversation.Message) (*Handle, error) {
	if msg == nil {
		return nil, ErrUnknownMessage
	}
	if ctx == nil {
		ctx = context.Background()
	}

	stored, ok := c.store.GetMessage(msg.ID)
	if !ok {
		return nil, ErrUnknownMessage
	}
	if stored.Role != conversation.RoleAssistant {
		return nil, ErrNotAssistantMessage
	}

	runCtx, cancel := context.WithCancel(ctx)
	handle := newHandle(uuid.NewString(), KindReformat, stored.ID, cancel)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return nil, ErrControllerClosed
	}
	if _, ok := c.reformats[stored.ID]; ok {
		c.mu.Unlock()
		cancel()
		return nil, ErrReformatInFlight
	}
	c.reformats[stored.ID] = handle
	c.mu.Unlock()

	c.updateAwaiting()

	log.Debug().
		Str("handle_id", handle.ID).
		Str("message_id", stored.ID.String()).
		Msg("Reformatting message")

	// a reformat of a reformat result works on the inner text
	go c.runReformat(runCtx, cancel, handle, conversation.UnwrapReformatted(stored.Content))

	return handle, nil
}

func (c *Controller) runReformat(ctx context.Context, cancelRun context.CancelFunc, handle *Handle, text string) {
	defer cancelRun()

	callCtx, cancel := c.callContext(ctx)
	result, err := c.reformatter.Reformat(callCtx, text)
	cancel()

	var out *conversation.Message
	switch {
	case err != nil:
		err = c.fail(OpReformat, handle.MessageID, err)
	default:
		out = conversation.NewChatMessage(
			conversation.RoleAssistant,
			conversation.WrapReformatted(result),
			conversation.WithReformatOf(handle.MessageID),
		)
		if !c.appendIfAlive(out) {
			out = nil
			err = ErrControllerClosed
			log.Debug().Str("handle_id", handle.ID).Msg("Controller closed, discarding reformat")
		}
	}

	c.mu.Lock()
	if c.reformats[handle.MessageID] == handle {
		delete(c.reformats, handle.MessageID)
	}
	c.mu.Unlock()

	c.updateAwaiting()
	handle.setResult(out, err)
}

// fail wraps a collaborator error, logs it and publishes it when the
// controller is still alive.
func (c *Controller) fail(op string, messageID conversation.NodeID, err error) error {
	ret := &TransportError{Op: op, MessageID: messageID, Err: err}
	if !c.IsAlive() {
		log.Debug().Err(err).Str("op", op).Msg("Controller closed, dropping error")
		return ret
	}

	var l *zerolog.Event
	if errors.Is(err, context.Canceled) {
		l = log.Warn()
	} else {
		l = log.Error()
	}
	l.Err(err).
		Str("op", op).
		Str("message_id", messageID.String()).
		Msg("Collaborator call failed")

	c.store.PublishError(op, messageID.String(), err)
	return ret
}

// appendIfAlive appends msg unless the controller is closed. Close waits for
// an append that already passed the check.
func (c *Controller) appendIfAlive(msg *conversation.Message) bool {
	c.appendMu.RLock()
	defer c.appendMu.RUnlock()
	if !c.IsAlive() {
		return false
	}
	c.store.Append(msg)
	return true
}

func (c *Controller) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

// updateAwaiting publishes (submit in flight) OR (any reformat in flight).
func (c *Controller) updateAwaiting() {
	c.awaitingMu.Lock()
	defer c.awaitingMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	awaiting := c.submit != nil || len(c.reformats) > 0
	c.mu.Unlock()

	c.store.SetAwaitingReply(awaiting)
}

func (c *Controller) IsSubmitting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submit != nil
}

func (c *Controller) IsReformatting(id conversation.NodeID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.reformats[id]
	return ok
}

func (c *Controller) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Close cancels every in-flight call. Results that resolve afterwards are
// discarded, and nothing is appended once Close returns. Close does not
// close the store.
func (c *Controller) Close() {
	c.appendMu.Lock()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.appendMu.Unlock()
		return
	}
	c.closed = true
	handles := make([]*Handle, 0, len(c.reformats)+1)
	if c.submit != nil {
		handles = append(handles, c.submit)
	}
	for _, h := range c.reformats {
		handles = append(handles, h)
	}
	c.mu.Unlock()
	c.appendMu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
	log.Debug().Int("cancelled", len(handles)).Msg("Controller closed")
}
