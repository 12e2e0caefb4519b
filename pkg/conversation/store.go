package conversation

import (
	"sync"

	"github.com/go-go-golems/cpichat/pkg/events"
	"github.com/google/uuid"
	"github.com/huandu/go-clone"
	"github.com/rs/zerolog/log"
)

// Store is the single source of truth for the conversation: an append-only
// list of messages plus the awaiting-reply flag.
//
// Every mutation is published to the configured sinks after the store lock
// is released, in mutation order. Sinks may read from the store but must not
// mutate it synchronously.
type Store struct {
	mu             sync.RWMutex
	conversationID uuid.UUID
	messages       Conversation
	awaiting       bool
	closed         bool

	// serializes mutation + notification so sinks observe mutation order
	publishMu sync.Mutex
	sinks     []events.EventSink
}

type StoreOption func(*Store)

func WithSink(sink events.EventSink) StoreOption {
	return func(s *Store) {
		s.sinks = append(s.sinks, sink)
	}
}

// WithMessages seeds the store. Seeded messages are not published.
func WithMessages(messages ...*Message) StoreOption {
	return func(s *Store) {
		for _, m := range messages {
			if m == nil {
				continue
			}
			s.messages = append(s.messages, cloneMessage(m))
		}
	}
}

func WithConversationID(conversationID uuid.UUID) StoreOption {
	return func(s *Store) {
		s.conversationID = conversationID
	}
}

func NewStore(options ...StoreOption) *Store {
	ret := &Store{
		conversationID: uuid.New(),
		messages:       Conversation{},
	}

	for _, o := range options {
		o(ret)
	}

	return ret
}

// AddSink registers a sink after construction, e.g. once the event router exists.
func (s *Store) AddSink(sink events.EventSink) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.sinks = append(s.sinks, sink)
}

func (s *Store) ConversationID() uuid.UUID {
	return s.conversationID
}

// Append makes msg the last element of the conversation. The store keeps its
// own copy, later changes to msg are not seen.
func (s *Store) Append(msg *Message) {
	if msg == nil {
		log.Warn().Msg("Ignoring nil message")
		return
	}

	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		log.Debug().Str("message_id", msg.ID.String()).Msg("Store closed, dropping message")
		return
	}
	stored := cloneMessage(msg)
	s.messages = append(s.messages, stored)
	index := len(s.messages) - 1
	s.mu.Unlock()

	log.Debug().
		Str("message_id", stored.ID.String()).
		Str("role", string(stored.Role)).
		Int("index", index).
		Msg("Appended message")

	e := events.NewMessageAppendedEvent(
		events.NewEventMetadata(s.conversationID),
		stored.ID.String(),
		string(stored.Role),
		stored.Content,
		index,
	)
	if source, ok := stored.ReformatOf(); ok {
		e.ReformatOf = source.String()
	}
	events.PublishAll(s.sinks, e)
}

// SetAwaitingReply sets the loading flag. Observers are only notified when
// the value changes.
func (s *Store) SetAwaitingReply(flag bool) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		log.Debug().Bool("awaiting", flag).Msg("Store closed, ignoring awaiting flag")
		return
	}
	if s.awaiting == flag {
		s.mu.Unlock()
		return
	}
	s.awaiting = flag
	s.mu.Unlock()

	events.PublishAll(s.sinks, events.NewAwaitingReplyEvent(events.NewEventMetadata(s.conversationID), flag))
}

// PublishError forwards an error event to the sinks. It does not change the
// conversation.
func (s *Store) PublishError(op string, messageID string, err error) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	if s.IsClosed() {
		return
	}
	events.PublishAll(s.sinks, events.NewErrorEvent(events.NewEventMetadata(s.conversationID), op, messageID, err))
}

// GetConversation returns a deep copy of the messages in display order.
func (s *Store) GetConversation() Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret := make(Conversation, len(s.messages))
	for i, m := range s.messages {
		ret[i] = cloneMessage(m)
	}
	return ret
}

func (s *Store) GetMessage(id NodeID) (*Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, _, ok := s.messages.FindByID(id)
	if !ok {
		return nil, false
	}
	return cloneMessage(m), true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *Store) IsAwaitingReply() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.awaiting
}

// Close stops all further mutation. Reads keep working.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *Store) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func cloneMessage(m *Message) *Message {
	return clone.Clone(m).(*Message)
}
