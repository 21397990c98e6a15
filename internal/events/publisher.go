// Package events publishes build lifecycle events to NATS.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/pkgbuilder/internal/config"
	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgbuilder/internal/logfields"
)

// BuildEvent is the JSON document published for every build event.
type BuildEvent struct {
	BuildID   string    `json:"build_id"`
	Kind      string    `json:"kind"`
	Strategy  string    `json:"strategy,omitempty"`
	Message   string    `json:"message,omitempty"`
	Artifact  string    `json:"artifact,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers build events somewhere outside the process.
type Publisher interface {
	Publish(ctx context.Context, ev BuildEvent) error
	Close() error
}

// conn is the subset of *nats.Conn used here.
type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATSPublisher publishes to a core NATS subject as <subject>.<kind>.
type NATSPublisher struct {
	conn    conn
	subject string
	timeout time.Duration
}

var _ Publisher = (*NATSPublisher)(nil)

// NewNATSPublisher connects to cfg.NATSURL.
func NewNATSPublisher(cfg *config.EventsConfig) (*NATSPublisher, error) {
	if cfg == nil || cfg.NATSURL == "" {
		return nil, errors.ConfigError("events.nats_url is required").Build()
	}
	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("pkgbuilder"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", logfields.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("NATS reconnected", logfields.URL(c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, errors.NetworkError("failed to connect to NATS").
			WithCause(err).
			WithContext("url", cfg.NATSURL).
			Build()
	}
	slog.Info("NATS event publisher initialized", logfields.URL(cfg.NATSURL), logfields.Subject(cfg.Subject))
	return newPublisher(nc, cfg.Subject, cfg.Timeout), nil
}

func newPublisher(c conn, subject string, timeout time.Duration) *NATSPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NATSPublisher{conn: c, subject: subject, timeout: timeout}
}

// Subject returns the subject an event of kind is published on.
func (p *NATSPublisher) Subject(kind string) string {
	return p.subject + "." + kind
}

// Publish sends ev and waits for the server to acknowledge the flush.
func (p *NATSPublisher) Publish(ctx context.Context, ev BuildEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.InternalError("failed to marshal build event").WithCause(err).Build()
	}
	if err := p.conn.Publish(p.Subject(ev.Kind), data); err != nil {
		return errors.NetworkError("failed to publish build event").
			WithCause(err).
			WithContext("subject", p.Subject(ev.Kind)).
			Build()
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return errors.NetworkError("failed to flush build event").WithCause(err).Build()
	}
	slog.Debug("Published build event", logfields.BuildID(ev.BuildID), logfields.Subject(p.Subject(ev.Kind)))
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
