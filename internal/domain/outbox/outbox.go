package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Event is any domain event with a name identifier.
type Event interface {
	EventName() string
}

// Handler processes a published event.
type Handler func(ctx context.Context, e Event) error

// Publisher publishes events to interested subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers for event names.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}

type Status int

const (
	StatusPending Status = 1
	StatusDone    Status = 2
)

// Message is a serialized event persisted alongside the state change that produced it.
type Message struct {
	ID        int64
	Name      string
	Payload   []byte
	Status    Status
	CreatedAt time.Time
}

func (m Message) EventName() string { return m.Name }

// Decode unmarshals the payload into dst.
func (m Message) Decode(dst any) error {
	if err := json.Unmarshal(m.Payload, dst); err != nil {
		return fmt.Errorf("outbox: decode %s: %w", m.Name, err)
	}
	return nil
}

func NewMessage(e Event) (Message, error) {
	if m, ok := e.(Message); ok {
		return m, nil
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return Message{}, fmt.Errorf("outbox: encode %s: %w", e.EventName(), err)
	}
	return Message{
		Name:      e.EventName(),
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Writer appends events inside the caller's transaction.
type Writer interface {
	Append(ctx context.Context, e Event) error
}

// Store is read by the relay outside of any business transaction.
type Store interface {
	Pending(ctx context.Context, limit int) ([]Message, error)
	MarkDone(ctx context.Context, ids []int64) error
}
