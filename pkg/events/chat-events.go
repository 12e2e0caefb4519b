package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type EventType string

const (
	// EventTypeMessageAppended is published after a message became the last
	// element of the conversation.
	EventTypeMessageAppended EventType = "message-appended"
	// EventTypeAwaitingReply is published when the loading flag flips.
	EventTypeAwaitingReply EventType = "awaiting-reply"
	// EventTypeError carries a failed send or reformat call.
	EventTypeError EventType = "error"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

type EventMetadata struct {
	ID             uuid.UUID `json:"id" yaml:"id"`
	ConversationID uuid.UUID `json:"conversation_id" yaml:"conversation_id"`
	Time           time.Time `json:"time" yaml:"time"`
}

func NewEventMetadata(conversationID uuid.UUID) EventMetadata {
	return EventMetadata{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Time:           time.Now(),
	}
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", em.ID.String())
	e.Str("conversation_id", em.ConversationID.String())
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta,omitempty"`

	// set when the event was deserialized by NewEventFromJson
	payload []byte
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

var _ Event = &EventImpl{}

type EventMessageAppended struct {
	EventImpl
	MessageID string `json:"message_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	// ReformatOf is the source message ID when the message is a reformat result.
	ReformatOf string `json:"reformat_of,omitempty"`
	// Index is the position of the message in the conversation.
	Index int `json:"index"`
}

func NewMessageAppendedEvent(metadata EventMetadata, messageID, role, content string, index int) *EventMessageAppended {
	return &EventMessageAppended{
		EventImpl: EventImpl{
			Type_:     EventTypeMessageAppended,
			Metadata_: metadata,
		},
		MessageID: messageID,
		Role:      role,
		Content:   content,
		Index:     index,
	}
}

var _ Event = &EventMessageAppended{}

type EventAwaitingReply struct {
	EventImpl
	Awaiting bool `json:"awaiting"`
}

func NewAwaitingReplyEvent(metadata EventMetadata, awaiting bool) *EventAwaitingReply {
	return &EventAwaitingReply{
		EventImpl: EventImpl{
			Type_:     EventTypeAwaitingReply,
			Metadata_: metadata,
		},
		Awaiting: awaiting,
	}
}

var _ Event = &EventAwaitingReply{}

type EventError struct {
	EventImpl
	// Op is "send" or "reformat".
	Op          string `json:"op"`
	MessageID   string `json:"message_id,omitempty"`
	ErrorString string `json:"error_string"`
}

func NewErrorEvent(metadata EventMetadata, op string, messageID string, err error) *EventError {
	errorString := ""
	if err != nil {
		errorString = err.Error()
	}
	return &EventError{
		EventImpl: EventImpl{
			Type_:     EventTypeError,
			Metadata_: metadata,
		},
		Op:          op,
		MessageID:   messageID,
		ErrorString: errorString,
	}
}

func (e EventError) Error() error {
	return fmt.Errorf("%s failed: %s", e.Op, e.ErrorString)
}

var _ Event = &EventError{}

// NewEventFromJson decodes a payload written by a sink back into its typed event.
func NewEventFromJson(b []byte) (Event, error) {
	var e *EventImpl
	err := json.Unmarshal(b, &e)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("empty event payload")
	}

	e.payload = b

	switch e.Type_ {
	case EventTypeMessageAppended:
		ret, ok := ToTypedEvent[EventMessageAppended](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventMessageAppended")
		}
		ret.payload = b
		return ret, nil
	case EventTypeAwaitingReply:
		ret, ok := ToTypedEvent[EventAwaitingReply](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventAwaitingReply")
		}
		ret.payload = b
		return ret, nil
	case EventTypeError:
		ret, ok := ToTypedEvent[EventError](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventError")
		}
		ret.payload = b
		return ret, nil
	}

	return e, nil
}

func ToTypedEvent[T any](e Event) (*T, bool) {
	var ret *T
	err := json.Unmarshal(e.Payload(), &ret)
	if err != nil || ret == nil {
		return nil, false
	}

	return ret, true
}
