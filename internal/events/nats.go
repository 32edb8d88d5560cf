package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// DefaultSubject carries result.stored events.
	DefaultSubject = "loglens.results"

	connectTimeout = 10 * time.Second
	reconnectWait  = 5 * time.Second
	maxReconnects  = 10
)

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes events on one subject.
type NATSPublisher struct {
	conn    conn
	subject string
	logger  *slog.Logger
}

// NewNATSPublisher connects to url. The client reconnects on its own after
// a dropped connection.
func NewNATSPublisher(url, subject string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(url,
		nats.Name("loglens"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrlRedacted())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}

	logger.Info("nats publisher initialized", "subject", subject)
	return newNATSPublisher(nc, subject, logger), nil
}

func newNATSPublisher(c conn, subject string, logger *slog.Logger) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{conn: c, subject: subject, logger: logger}
}

// Publish encodes e and hands it to the client.
func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := e.Encode()
	if err != nil {
		return fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		p.logger.Error("failed to publish event", "type", e.Type, "id", e.ID, "error", err)
		return fmt.Errorf("publish %s event: %w", e.Type, err)
	}
	p.logger.Debug("event published", "type", e.Type, "id", e.ID, "subject", p.subject)
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
