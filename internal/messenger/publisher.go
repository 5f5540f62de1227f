package messenger

import "context"

// Publisher forwards events to an external bus.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any) error
	Close() error
}

// Subscriber receives events from an external bus.
type Subscriber interface {
	// Subscribe delivers messages on the returned channel.
	// Call the returned cancel function to unsubscribe and close the channel.
	Subscribe(subject string) (<-chan Message, func(), error)
	Close() error
}

// Message is a raw event received from the external bus. Event is empty
// when the subject is not a wallet event.
type Message struct {
	Subject string
	Event   string
	Origin  string
	Data    []byte
}

// NoopPublisher is a Publisher that does nothing (used when NATS is not configured).
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, event string, payload any) error {
	return nil
}

func (n *NoopPublisher) Close() error {
	return nil
}
