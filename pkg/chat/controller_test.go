package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/cpichat/pkg/conversation"
	"github.com/go-go-golems/cpichat/pkg/events"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedSender blocks every call until release is closed. It ignores ctx so
// tests can resolve calls after teardown.
type gatedSender struct {
	mu      sync.Mutex
	calls   int
	seen    []conversation.Conversation
	started chan struct{}
	release chan struct{}
	reply   string
	err     error
}

func newGatedSender(reply string, err error) *gatedSender {
	return &gatedSender{
		started: make(chan struct{}, 10),
		release: make(chan struct{}),
		reply:   reply,
		err:     err,
	}
}

func (g *gatedSender) Send(ctx context.Context, conv conversation.Conversation) (string, error) {
	g.mu.Lock()
	g.calls++
	g.seen = append(g.seen, conv)
	g.mu.Unlock()
	g.started <- struct{}{}
	<-g.release
	return g.reply, g.err
}

func (g *gatedSender) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func instantSender(reply string, err error) SenderFunc {
	return func(ctx context.Context, conv conversation.Conversation) (string, error) {
		return reply, err
	}
}

// gatedReformatter has one gate per input text.
type gatedReformatter struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	calls map[string]int
}

func newGatedReformatter() *gatedReformatter {
	return &gatedReformatter{
		gates: map[string]chan struct{}{},
		calls: map[string]int{},
	}
}

func (g *gatedReformatter) gate(text string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[text]
	if !ok {
		ch = make(chan struct{})
		g.gates[text] = ch
	}
	return ch
}

func (g *gatedReformatter) Reformat(ctx context.Context, text string) (string, error) {
	g.mu.Lock()
	g.calls[text]++
	g.mu.Unlock()
	<-g.gate(text)
	return "pretty " + text, nil
}

func (g *gatedReformatter) Calls(text string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[text]
}

func upperReformatter() ReformatterFunc {
	return func(ctx context.Context, text string) (string, error) {
		return "pretty " + text, nil
	}
}

func waitStarted(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("collaborator was not called")
	}
}

func TestSubmitRejectsBlankInput(t *testing.T) {
	store := conversation.NewStore()
	c := NewController(store, instantSender("x", nil), upperReformatter())

	for _, input := range []string{"", "   ", "\n\t "} {
		h, err := c.Submit(context.Background(), input)
		assert.ErrorIs(t, err, ErrEmptyInput)
		assert.Nil(t, h)
	}
	assert.Equal(t, 0, store.Len())
	assert.False(t, store.IsAwaitingReply())
}

func TestSubmitAppendsUserMessageAndReply(t *testing.T) {
	store := conversation.NewStore()
	sender := newGatedSender("here is your script", nil)
	c := NewController(store, sender, upperReformatter())

	h, err := c.Submit(context.Background(), "  write a script \n")
	require.NoError(t, err)
	assert.Equal(t, KindSubmit, h.Kind)

	waitStarted(t, sender.started)
	assert.True(t, store.IsAwaitingReply())
	assert.True(t, h.IsRunning())
	assert.True(t, c.IsSubmitting())

	close(sender.release)
	reply, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, conversation.RoleAssistant, reply.Role)

	conv := store.GetConversation()
	require.Len(t, conv, 2)
	assert.Equal(t, conversation.RoleUser, conv[0].Role)
	assert.Equal(t, "write a script", conv[0].Content)
	assert.Equal(t, h.MessageID, conv[0].ID)
	assert.Equal(t, "here is your script", conv[1].Content)
	assert.False(t, store.IsAwaitingReply())
	assert.False(t, h.IsRunning())
	assert.False(t, c.IsSubmitting())

	require.Len(t, sender.seen, 1)
	require.Len(t, sender.seen[0], 1)
	assert.Equal(t, "write a script", sender.seen[0][0].Content)
}

func TestSubmitIsSingleFlight(t *testing.T) {
	store := conversation.NewStore()
	sender := newGatedSender("ok", nil)
	c := NewController(store, sender, upperReformatter())

	h, err := c.Submit(context.Background(), "first")
	require.NoError(t, err)
	waitStarted(t, sender.started)

	h2, err := c.Submit(context.Background(), "second")
	assert.ErrorIs(t, err, ErrSubmitInFlight)
	assert.Nil(t, h2)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 1, sender.Calls())

	close(sender.release)
	_, err = h.Wait()
	require.NoError(t, err)

	h3, err := c.Submit(context.Background(), "third")
	require.NoError(t, err)
	_, err = h3.Wait()
	require.NoError(t, err)
	assert.Equal(t, 4, store.Len())
}

func TestSubmitFailureKeepsUserMessage(t *testing.T) {
	sink := events.NewCollectingSink()
	store := conversation.NewStore(conversation.WithSink(sink))
	boom := errors.New("connection refused")
	c := NewController(store, instantSender("", boom), upperReformatter())

	h, err := c.Submit(context.Background(), "hello")
	require.NoError(t, err)

	out, err := h.Wait()
	assert.Nil(t, out)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, OpSend, te.Op)
	assert.Equal(t, h.MessageID, te.MessageID)
	assert.ErrorIs(t, err, boom)

	conv := store.GetConversation()
	require.Len(t, conv, 1)
	assert.Equal(t, "hello", conv[0].Content)
	assert.False(t, store.IsAwaitingReply())

	var errorEvents []*events.EventError
	for _, e := range sink.Events() {
		if ee, ok := e.(*events.EventError); ok {
			errorEvents = append(errorEvents, ee)
		}
	}
	require.Len(t, errorEvents, 1)
	assert.Equal(t, OpSend, errorEvents[0].Op)
	assert.Equal(t, h.MessageID.String(), errorEvents[0].MessageID)
	assert.Equal(t, "connection refused", errorEvents[0].ErrorString)
}

func TestSubmitAllowedAgainAfterFailure(t *testing.T) {
	store := conversation.NewStore()
	c := NewController(store, instantSender("", errors.New("down")), upperReformatter())

	h, err := c.Submit(context.Background(), "one")
	require.NoError(t, err)
	_, _ = h.Wait()

	h, err = c.Submit(context.Background(), "two")
	require.NoError(t, err)
	_, _ = h.Wait()

	assert.Equal(t, 2, store.Len())
}

func seededStore(t *testing.T, sink events.EventSink, msgs ...*conversation.Message) *conversation.Store {
	t.Helper()
	options := []conversation.StoreOption{conversation.WithMessages(msgs...)}
	if sink != nil {
		options = append(options, conversation.WithSink(sink))
	}
	return conversation.NewStore(options...)
}

func TestReformatAppendsNewMessage(t *testing.T) {
	source := conversation.NewChatMessage(conversation.RoleAssistant, "def x=1")
	store := seededStore(t, nil, source)
	c := NewController(store, instantSender("", nil), upperReformatter())

	h, err := c.RequestReformat(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, KindReformat, h.Kind)
	assert.Equal(t, source.ID, h.MessageID)

	out, err := h.Wait()
	require.NoError(t, err)

	conv := store.GetConversation()
	require.Len(t, conv, 2)
	assert.Equal(t, "def x=1", conv[0].Content)
	assert.Equal(t, source.ID, conv[0].ID)

	assert.Equal(t, out.ID, conv[1].ID)
	assert.Equal(t, conversation.RoleAssistant, conv[1].Role)
	assert.Equal(t, conversation.WrapReformatted("pretty def x=1"), conv[1].Content)
	reformatOf, ok := conv[1].ReformatOf()
	require.True(t, ok)
	assert.Equal(t, source.ID, reformatOf)
	assert.False(t, store.IsAwaitingReply())
}

func TestReformatOfReformatUsesInnerText(t *testing.T) {
	source := conversation.NewChatMessage(conversation.RoleAssistant, conversation.WrapReformatted("x"))
	store := seededStore(t, nil, source)
	c := NewController(store, instantSender("", nil), upperReformatter())

	h, err := c.RequestReformat(context.Background(), source)
	require.NoError(t, err)
	out, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, conversation.WrapReformatted("pretty x"), out.Content)
}

func TestReformatPreconditions(t *testing.T) {
	user := conversation.NewChatMessage(conversation.RoleUser, "hi")
	store := seededStore(t, nil, user)
	c := NewController(store, instantSender("", nil), upperReformatter())

	_, err := c.RequestReformat(context.Background(), user)
	assert.ErrorIs(t, err, ErrNotAssistantMessage)

	_, err = c.RequestReformat(context.Background(), conversation.NewChatMessage(conversation.RoleAssistant, "not stored"))
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = c.RequestReformat(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnknownMessage)

	assert.Equal(t, 1, store.Len())
	assert.False(t, store.IsAwaitingReply())
}

func TestReformatIsSingleFlightPerMessage(t *testing.T) {
	source := conversation.NewChatMessage(conversation.RoleAssistant, "a")
	store := seededStore(t, nil, source)
	r := newGatedReformatter()
	c := NewController(store, instantSender("", nil), r)

	h, err := c.RequestReformat(context.Background(), source)
	require.NoError(t, err)
	assert.True(t, c.IsReformatting(source.ID))

	_, err = c.RequestReformat(context.Background(), source)
	assert.ErrorIs(t, err, ErrReformatInFlight)

	close(r.gate("a"))
	_, err = h.Wait()
	require.NoError(t, err)
	assert.Equal(t, 1, r.Calls("a"))
	assert.Equal(t, 2, store.Len())
	assert.False(t, c.IsReformatting(source.ID))
}

func TestConcurrentReformatsAppendInResolutionOrder(t *testing.T) {
	first := conversation.NewChatMessage(conversation.RoleAssistant, "first")
	second := conversation.NewChatMessage(conversation.RoleAssistant, "second")
	store := seededStore(t, nil, first, second)
	r := newGatedReformatter()
	c := NewController(store, instantSender("", nil), r)

	h1, err := c.RequestReformat(context.Background(), first)
	require.NoError(t, err)
	h2, err := c.RequestReformat(context.Background(), second)
	require.NoError(t, err)

	close(r.gate("second"))
	_, err = h2.Wait()
	require.NoError(t, err)
	assert.True(t, store.IsAwaitingReply())

	close(r.gate("first"))
	_, err = h1.Wait()
	require.NoError(t, err)

	conv := store.GetConversation()
	require.Len(t, conv, 4)
	assert.Equal(t, conversation.WrapReformatted("pretty second"), conv[2].Content)
	assert.Equal(t, conversation.WrapReformatted("pretty first"), conv[3].Content)
	assert.False(t, store.IsAwaitingReply())
}

func TestAwaitingFlagTracksSubmitAndReformat(t *testing.T) {
	source := conversation.NewChatMessage(conversation.RoleAssistant, "code")
	sink := events.NewCollectingSink()
	store := seededStore(t, sink, source)
	sender := newGatedSender("reply", nil)
	r := newGatedReformatter()
	c := NewController(store, sender, r)

	hs, err := c.Submit(context.Background(), "question")
	require.NoError(t, err)
	hr, err := c.RequestReformat(context.Background(), source)
	require.NoError(t, err)
	waitStarted(t, sender.started)

	close(sender.release)
	_, err = hs.Wait()
	require.NoError(t, err)
	assert.True(t, store.IsAwaitingReply(), "reformat still in flight")

	close(r.gate("code"))
	_, err = hr.Wait()
	require.NoError(t, err)
	assert.False(t, store.IsAwaitingReply())

	var flags []bool
	for _, e := range sink.Events() {
		if a, ok := e.(*events.EventAwaitingReply); ok {
			flags = append(flags, a.Awaiting)
		}
	}
	assert.Equal(t, []bool{true, false}, flags)
}

func TestCloseDiscardsLateResults(t *testing.T) {
	source := conversation.NewChatMessage(conversation.RoleAssistant, "code")
	sink := events.NewCollectingSink()
	store := seededStore(t, sink, source)
	sender := newGatedSender("too late", nil)
	r := newGatedReformatter()
	c := NewController(store, sender, r)

	hs, err := c.Submit(context.Background(), "question")
	require.NoError(t, err)
	hr, err := c.RequestReformat(context.Background(), source)
	require.NoError(t, err)
	waitStarted(t, sender.started)

	c.Close()
	store.Close()
	before := len(sink.Events())

	close(sender.release)
	close(r.gate("code"))

	_, err = hs.Wait()
	assert.ErrorIs(t, err, ErrControllerClosed)
	_, err = hr.Wait()
	assert.ErrorIs(t, err, ErrControllerClosed)

	assert.Equal(t, 2, store.Len())
	assert.Len(t, sink.Events(), before)

	_, err = c.Submit(context.Background(), "again")
	assert.ErrorIs(t, err, ErrControllerClosed)
	_, err = c.RequestReformat(context.Background(), source)
	assert.ErrorIs(t, err, ErrControllerClosed)
	assert.False(t, c.IsAlive())
}

func TestCloseAloneDiscardsLateResults(t *testing.T) {
	store := seededStore(t, nil)
	sender := newGatedSender("too late", nil)
	c := NewController(store, sender, upperReformatter())

	h, err := c.Submit(context.Background(), "question")
	require.NoError(t, err)
	waitStarted(t, sender.started)

	c.Close()
	close(sender.release)

	msg, err := h.Wait()
	assert.ErrorIs(t, err, ErrControllerClosed)
	assert.Nil(t, msg)
	assert.Equal(t, 1, store.Len())
}

func TestCloseWaitsForAppendInProgress(t *testing.T) {
	entered := make(chan struct{})
	unblock := make(chan struct{})
	sink := events.FuncSink(func(e events.Event) error {
		if a, ok := e.(*events.EventMessageAppended); ok && a.Content == "reply" {
			close(entered)
			<-unblock
		}
		return nil
	})
	store := seededStore(t, sink)
	c := NewController(store, instantSender("reply", nil), upperReformatter())

	h, err := c.Submit(context.Background(), "question")
	require.NoError(t, err)
	waitStarted(t, entered)

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while an append was publishing")
	case <-time.After(50 * time.Millisecond):
	}

	close(unblock)
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}

	msg, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, "reply", msg.Content)
	assert.Equal(t, 2, store.Len())
	assert.False(t, c.IsAlive())
}

func TestCloseCancelsContextAwareCalls(t *testing.T) {
	store := conversation.NewStore()
	started := make(chan struct{})
	sender := SenderFunc(func(ctx context.Context, conv conversation.Conversation) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})
	c := NewController(store, sender, upperReformatter())

	h, err := c.Submit(context.Background(), "hello")
	require.NoError(t, err)
	waitStarted(t, started)

	c.Close()
	_, err = h.Wait()
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, store.Len())
}

func TestHandleCancel(t *testing.T) {
	store := conversation.NewStore()
	sender := SenderFunc(func(ctx context.Context, conv conversation.Conversation) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	c := NewController(store, sender, upperReformatter())

	h, err := c.Submit(context.Background(), "hello")
	require.NoError(t, err)
	h.Cancel()
	h.Cancel()

	_, err = h.Wait()
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, c.IsSubmitting())
	assert.False(t, store.IsAwaitingReply())
}

func TestWithTimeoutBoundsCalls(t *testing.T) {
	store := conversation.NewStore()
	sender := SenderFunc(func(ctx context.Context, conv conversation.Conversation) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	c := NewController(store, sender, upperReformatter(), WithTimeout(20*time.Millisecond))

	h, err := c.Submit(context.Background(), "hello")
	require.NoError(t, err)
	_, err = h.Wait()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNilHandle(t *testing.T) {
	var h *Handle
	_, err := h.Wait()
	assert.ErrorIs(t, err, ErrHandleNil)
	assert.False(t, h.IsRunning())
	h.Cancel()
}
