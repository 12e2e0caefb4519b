package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type NodeID uuid.UUID

func (id NodeID) MarshalJSON() ([]byte, error) {
	return json.Marshal(uuid.UUID(id).String())
}

func (id *NodeID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	*id = NodeID(u)
	return nil
}

func (id NodeID) String() string {
	return uuid.UUID(id).String()
}

func NewNodeID() NodeID {
	return NodeID(uuid.New())
}

var NullNode = NodeID(uuid.Nil)

type Role string

const (
	// RoleSystem is only used when building backend requests. System prompts
	// are never stored in a conversation.
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// MetadataKeyReformatOf holds the ID of the message a reformat result was made from.
const MetadataKeyReformatOf = "reformat_of"

// Message is a single turn of the conversation. Messages are never mutated
// once appended; the store hands out copies.
type Message struct {
	ID      NodeID    `json:"id"`
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type MessageOption func(*Message)

func WithMetadata(metadata map[string]interface{}) MessageOption {
	return func(message *Message) {
		message.Metadata = metadata
	}
}

func WithTime(time time.Time) MessageOption {
	return func(message *Message) {
		message.Time = time
	}
}

func WithID(id NodeID) MessageOption {
	return func(message *Message) {
		message.ID = id
	}
}

// WithReformatOf marks the message as the reformat result of source.
func WithReformatOf(source NodeID) MessageOption {
	return func(message *Message) {
		if message.Metadata == nil {
			message.Metadata = map[string]interface{}{}
		}
		message.Metadata[MetadataKeyReformatOf] = source.String()
	}
}

func NewChatMessage(role Role, text string, options ...MessageOption) *Message {
	ret := &Message{
		ID:      NewNodeID(),
		Role:    role,
		Content: text,
		Time:    time.Now(),
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

// ReformatOf returns the source message ID if the message is a reformat result.
func (m *Message) ReformatOf() (NodeID, bool) {
	if m.Metadata == nil {
		return NullNode, false
	}
	s, ok := m.Metadata[MetadataKeyReformatOf].(string)
	if !ok {
		return NullNode, false
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return NullNode, false
	}
	return NodeID(u), true
}

func (m *Message) String() string {
	return fmt.Sprintf("[%s]: %s", m.Role, strings.TrimRight(m.Content, "\n"))
}

type Conversation []*Message

// LastMessage returns nil for an empty conversation.
func (c Conversation) LastMessage() *Message {
	if len(c) == 0 {
		return nil
	}
	return c[len(c)-1]
}

// FindByID returns the message and its index.
func (c Conversation) FindByID(id NodeID) (*Message, int, bool) {
	for i, m := range c {
		if m.ID == id {
			return m, i, true
		}
	}
	return nil, -1, false
}

// GetSinglePrompt concatenates the messages, prefixing each with its role.
// A single message is returned as is.
func (c Conversation) GetSinglePrompt() string {
	if len(c) == 0 {
		return ""
	}
	if len(c) == 1 {
		return c[0].Content
	}

	var sb strings.Builder
	for _, m := range c {
		sb.WriteString(m.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

const (
	reformatHeader = "*** PRETTY PRINTED ***"
	reformatFooter = "**********************"
)

// WrapReformatted puts the banner around a reformat result.
func WrapReformatted(text string) string {
	return reformatHeader + "\n\n" + text + "\n\n" + reformatFooter
}

// IsReformatted reports whether content carries the reformat banner.
func IsReformatted(content string) bool {
	return strings.HasPrefix(content, reformatHeader+"\n\n") &&
		strings.HasSuffix(content, "\n\n"+reformatFooter)
}

// UnwrapReformatted strips the banner. Content without the banner is returned unchanged.
func UnwrapReformatted(content string) string {
	if !IsReformatted(content) {
		return content
	}
	inner := strings.TrimPrefix(content, reformatHeader+"\n\n")
	return strings.TrimSuffix(inner, "\n\n"+reformatFooter)
}
