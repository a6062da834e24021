package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes events to a NATS server.
type NATSPublisher struct {
	conn *nats.Conn
}

// Compile-time check that NATSPublisher implements Publisher.
var _ Publisher = (*NATSPublisher)(nil)

// NewNATSPublisher connects to NATS. The connection reconnects forever; a
// broker outage degrades notifications, it does not take the API down.
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("vagn"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	return &NATSPublisher{conn: conn}, nil
}

// Publish JSON-encodes the event and publishes it to the subject.
func (p *NATSPublisher) Publish(_ context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event for %s: %w", subject, err)
	}

	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection, flushing buffered events.
func (p *NATSPublisher) Close() {
	_ = p.conn.Drain()
}

// NoopPublisher discards all events. Used when NATS_URL is unset and in tests.
type NoopPublisher struct{}

var _ Publisher = (*NoopPublisher)(nil)

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }
func (NoopPublisher) Close()                                     {}
