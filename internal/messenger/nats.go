package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Headers stamped on every outbound message. OriginHeader lets a relay
// drop its own echoes; EventHeader spares receivers from parsing subjects.
const (
	OriginHeader = "Walletd-Origin"
	EventHeader  = "Walletd-Event"
)

const subscriberBuffer = 64

// connect dials url with unlimited reconnects. name shows up in the
// server's connection list.
func connect(url, name string, extra ...nats.Option) (*nats.Conn, error) {
	opts := append([]nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}, extra...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher sends events as JSON on "wallet.<Controller>.<event>".
type NATSPublisher struct {
	conn   *nats.Conn
	origin string
}

func NewNATSPublisher(url, origin string) (*NATSPublisher, error) {
	nc, err := connect(url, "walletd publisher "+origin)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: nc, origin: origin}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, event string, payload any) error {
	if p.conn.IsClosed() {
		return nats.ErrConnectionClosed
	}
	data, ok := payload.(json.RawMessage)
	if !ok {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("encoding %s: %w", event, err)
		}
	}
	msg := &nats.Msg{Subject: Subject(event), Data: data, Header: nats.Header{}}
	msg.Header.Set(EventHeader, event)
	if p.origin != "" {
		msg.Header.Set(OriginHeader, p.origin)
	}
	return p.conn.PublishMsg(msg)
}

// Close flushes buffered messages before disconnecting.
func (p *NATSPublisher) Close() error {
	if p.conn.IsClosed() {
		return nil
	}
	err := p.conn.Drain()
	if errors.Is(err, nats.ErrConnectionClosed) {
		return nil
	}
	return err
}

// NATSSubscriber receives wallet events from NATS. Extra options, such as
// disconnect handlers, are applied after the defaults.
type NATSSubscriber struct {
	conn *nats.Conn
}

func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	nc, err := connect(url, "walletd subscriber", opts...)
	if err != nil {
		return nil, err
	}
	return &NATSSubscriber{conn: nc}, nil
}

// Subscribe delivers messages matching subject, which may use NATS
// wildcards. A full channel drops messages. cancel is idempotent and closes
// the channel.
func (s *NATSSubscriber) Subscribe(subject string) (<-chan Message, func(), error) {
	ch := make(chan Message, subscriberBuffer)
	var (
		mu     sync.Mutex
		closed bool
	)
	deliver := func(raw *nats.Msg) {
		m := toMessage(raw)
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- m:
		default:
		}
	}

	sub, err := s.conn.Subscribe(subject, deliver)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	// Messages from other connections are only routed once the server has
	// seen the subscription.
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, nil, fmt.Errorf("flushing subscription to %s: %w", subject, err)
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
	return ch, cancel, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}

func toMessage(raw *nats.Msg) Message {
	m := Message{Subject: raw.Subject, Data: raw.Data}
	if raw.Header != nil {
		m.Origin = raw.Header.Get(OriginHeader)
		m.Event = raw.Header.Get(EventHeader)
	}
	if m.Event == "" {
		m.Event = EventName(raw.Subject)
	}
	return m
}
