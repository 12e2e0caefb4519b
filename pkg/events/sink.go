package events

import (
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EventSink is a destination for conversation events. The store and the
// controller call PublishEvent synchronously, never while holding a lock.
type EventSink interface {
	PublishEvent(event Event) error
}

// NullSink discards every event.
type NullSink struct{}

func NewNullSink() *NullSink {
	return &NullSink{}
}

func (n *NullSink) PublishEvent(event Event) error {
	return nil
}

var _ EventSink = (*NullSink)(nil)

// WatermillSink serializes events to JSON and publishes them on a topic.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
}

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	return &WatermillSink{
		publisher: publisher,
		topic:     topic,
	}
}

func (w *WatermillSink) PublishEvent(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)

	err = w.publisher.Publish(w.topic, msg)
	if err != nil {
		log.Error().Err(err).Str("topic", w.topic).Msg("Failed to publish event to watermill")
		return errors.Wrapf(err, "failed to publish to %s", w.topic)
	}

	log.Trace().Str("topic", w.topic).Str("event_type", string(event.Type())).Msg("Published event")
	return nil
}

var _ EventSink = (*WatermillSink)(nil)

// CollectingSink records events in memory. Used by the plain REPL to pick up
// errors and by tests.
type CollectingSink struct {
	mu     sync.Mutex
	events []Event
}

func NewCollectingSink() *CollectingSink {
	return &CollectingSink{}
}

func (c *CollectingSink) PublishEvent(event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (c *CollectingSink) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	ret := make([]Event, len(c.events))
	copy(ret, c.events)
	return ret
}

// Drain returns the recorded events and forgets them.
func (c *CollectingSink) Drain() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	ret := c.events
	c.events = nil
	return ret
}

var _ EventSink = (*CollectingSink)(nil)

// FuncSink adapts a function to EventSink.
type FuncSink func(event Event) error

func (f FuncSink) PublishEvent(event Event) error {
	return f(event)
}

var _ EventSink = FuncSink(nil)

// PublishAll sends event to every sink, logging failures. A failing sink does
// not stop the others.
func PublishAll(sinks []EventSink, event Event) {
	for _, s := range sinks {
		if err := s.PublishEvent(event); err != nil {
			log.Warn().Err(err).Str("event_type", string(event.Type())).Msg("Failed to publish event")
		}
	}
}
