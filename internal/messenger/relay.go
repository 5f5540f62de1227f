package messenger

import (
	"context"
	"fmt"
	"log/slog"
)

// Relay bridges a Messenger to an external bus. Local events are published
// outbound; inbound events from other origins are injected locally.
type Relay struct {
	messenger *Messenger
	pub       Publisher
	sub       Subscriber
	origin    string
	logger    *slog.Logger
}

// NewRelay creates a relay. origin must match the origin the publisher
// stamps on outbound messages. sub may be nil for an outbound-only relay.
func NewRelay(m *Messenger, pub Publisher, sub Subscriber, origin string, logger *slog.Logger) *Relay {
	return &Relay{messenger: m, pub: pub, sub: sub, origin: origin, logger: logger}
}

// Start relays events until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	untap := r.messenger.Tap(func(env Envelope) {
		if env.Remote {
			return
		}
		if err := r.pub.Publish(ctx, env.Event, env.Payload); err != nil {
			r.logger.Warn("relay: publish failed", "event", env.Event, "err", err)
		}
	})
	defer untap()

	if r.sub == nil {
		<-ctx.Done()
		return nil
	}

	ch, cancel, err := r.sub.Subscribe(subjectPrefix + ">")
	if err != nil {
		return fmt.Errorf("relay: subscribe: %w", err)
	}
	defer cancel()

	r.logger.Info("relay: started", "origin", r.origin)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay: stopping")
			return nil
		case msg, ok := <-ch:
			if !ok {
				r.logger.Info("relay: subscription channel closed")
				return nil
			}
			if msg.Origin != "" && msg.Origin == r.origin {
				continue
			}
			if msg.Event == "" {
				r.logger.Warn("relay: unexpected subject", "subject", msg.Subject)
				continue
			}
			r.messenger.Inject(msg.Event, msg.Data)
		}
	}
}
