package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/cpichat/pkg/events"
	"github.com/rs/zerolog/log"
)

// MessageAppendedMsg tells the model to reload the conversation snapshot.
type MessageAppendedMsg struct {
	MessageID string
	Role      string
	Index     int
}

type AwaitingReplyMsg struct {
	Awaiting bool
}

// ErrorEventMsg carries a failed send or reformat.
type ErrorEventMsg struct {
	Op        string
	MessageID string
	Err       error
}

// EventToMsg maps a store event to the bubbletea message the model handles.
// Unknown events map to nil.
func EventToMsg(e events.Event) tea.Msg {
	switch e_ := e.(type) {
	case *events.EventMessageAppended:
		return MessageAppendedMsg{
			MessageID: e_.MessageID,
			Role:      e_.Role,
			Index:     e_.Index,
		}
	case *events.EventAwaitingReply:
		return AwaitingReplyMsg{Awaiting: e_.Awaiting}
	case *events.EventError:
		return ErrorEventMsg{
			Op:        e_.Op,
			MessageID: e_.MessageID,
			Err:       e_.Error(),
		}
	}
	return nil
}

// ForwardEvents returns a router handler that sends every store event into
// the running program. p.Send blocks until the event loop picks the message
// up, so store mutations must never happen on the event loop itself.
func ForwardEvents(p *tea.Program) events.EventHandler {
	return func(ctx context.Context, e events.Event) error {
		msg := EventToMsg(e)
		if msg == nil {
			log.Debug().Str("type", string(e.Type())).Msg("ignoring event")
			return nil
		}
		p.Send(msg)
		return nil
	}
}
