// Package notify forwards processing runs to downstream consumers over NATS.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/starford/beamline/internal/models"
)

// Publisher sends a finished run downstream.
type Publisher interface {
	Publish(ctx context.Context, r models.Run) error
	Close() error
}

// Nop discards every run. It is used when no NATS URL is configured.
type Nop struct{}

func (Nop) Publish(context.Context, models.Run) error { return nil }
func (Nop) Close() error                              { return nil }

// conn is the subset of *nats.Conn used by NATS.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATS publishes runs as JSON on "<prefix>.<outcome>".
type NATS struct {
	conn   conn
	prefix string
	logger *slog.Logger
}

// Connect dials url and returns a publisher using subject prefix.
func Connect(url, prefix string, logger *slog.Logger) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("beamline"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("notify: disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("notify: reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("notify: connect to NATS: %w", err)
	}
	return newNATS(nc, prefix, logger), nil
}

func newNATS(c conn, prefix string, logger *slog.Logger) *NATS {
	if prefix == "" {
		prefix = "beamline.runs"
	}
	return &NATS{conn: c, prefix: prefix, logger: logger}
}

// Subject returns the subject a run is published on.
func (n *NATS) Subject(r models.Run) string {
	return n.prefix + "." + string(r.Outcome)
}

// Publish encodes r and sends it. NATS publishing is fire-and-forget, so the
// context is only checked before sending.
func (n *NATS) Publish(ctx context.Context, r models.Run) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("notify: context cancelled before publish: %w", err)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("notify: encode run: %w", err)
	}
	if err := n.conn.Publish(n.Subject(r), data); err != nil {
		return fmt.Errorf("notify: publish: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (n *NATS) Close() error {
	return n.conn.Drain()
}
