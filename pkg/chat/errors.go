package chat

import (
	"fmt"

	"github.com/go-go-golems/cpichat/pkg/conversation"
	"github.com/pkg/errors"
)

var (
	ErrEmptyInput          = errors.New("input is empty")
	ErrSubmitInFlight      = errors.New("a message is already being sent")
	ErrReformatInFlight    = errors.New("message is already being reformatted")
	ErrNotAssistantMessage = errors.New("only assistant messages can be reformatted")
	ErrUnknownMessage      = errors.New("message is not part of the conversation")
	ErrControllerClosed    = errors.New("controller is closed")
	ErrHandleNil           = errors.New("handle is nil")
)

const (
	OpSend     = "send"
	OpReformat = "reformat"
)

// TransportError is returned when a collaborator call fails. MessageID is the
// user message for a send and the source message for a reformat.
type TransportError struct {
	Op        string
	MessageID conversation.NodeID
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed for message %s: %v", e.Op, e.MessageID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Cause lets errors.Cause reach the collaborator error.
func (e *TransportError) Cause() error {
	return e.Err
}
