// Package events publishes discovery lifecycle events to NATS.
//
// Subjects are built from a configurable prefix:
//
//	{prefix}.discovery.{discovery_id}.completed
//	{prefix}.discovery.{discovery_id}.failed
//	{prefix}.backends.{backend}.healthy
//	{prefix}.backends.{backend}.unhealthy
//
// Payloads are the JSON encoding of discovery.Event.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/theodore/internal/config"
	"github.com/fyrsmithlabs/theodore/internal/discovery"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "theodore"

// ErrNotConnected is returned when publishing on a closed connection.
var ErrNotConnected = errors.New("nats connection closed")

// Publisher implements discovery.EventPublisher on a NATS connection.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	owned  bool
	logger *zap.Logger
}

// Connect dials the server in cfg and returns a publisher that owns the
// connection. Reconnects are retried indefinitely.
func Connect(cfg config.NATSConfig, logger *zap.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	name := cfg.ClientName
	if name == "" {
		name = "theodore"
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	p := NewPublisher(nc, cfg.SubjectPrefix, logger)
	p.owned = true
	return p, nil
}

// NewPublisher wraps an existing connection. The caller keeps ownership of nc.
func NewPublisher(nc *nats.Conn, prefix string, logger *zap.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{nc: nc, prefix: prefix, logger: logger}
}

// Subject returns the subject ev is published on.
func (p *Publisher) Subject(ev discovery.Event) string {
	switch ev.Type {
	case discovery.EventDiscoveryCompleted:
		return fmt.Sprintf("%s.discovery.%s.completed", p.prefix, token(ev.DiscoveryID))
	case discovery.EventDiscoveryFailed:
		return fmt.Sprintf("%s.discovery.%s.failed", p.prefix, token(ev.DiscoveryID))
	case discovery.EventBackendHealthy:
		return fmt.Sprintf("%s.backends.%s.healthy", p.prefix, token(ev.Backend))
	case discovery.EventBackendUnhealthy:
		return fmt.Sprintf("%s.backends.%s.unhealthy", p.prefix, token(ev.Backend))
	default:
		return fmt.Sprintf("%s.events.%s", p.prefix, token(string(ev.Type)))
	}
}

// Publish implements discovery.EventPublisher.
func (p *Publisher) Publish(ctx context.Context, ev discovery.Event) error {
	if p.nc == nil || p.nc.IsClosed() {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := p.Subject(ev)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug("event published", zap.String("subject", subject))
	return nil
}

// HealthChangeHandler returns a registry callback that publishes backend
// health transitions.
func (p *Publisher) HealthChangeHandler(timeout time.Duration) discovery.HealthChangeFunc {
	return func(name string, healthy bool, cause error) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := p.Publish(ctx, discovery.BackendEvent(name, healthy, cause)); err != nil {
			p.logger.Warn("failed to publish backend event", zap.String("backend", name), zap.Error(err))
		}
	}
}

// Subscribe delivers every event under the publisher's prefix to fn until
// ctx is cancelled. Undecodable messages are logged and skipped.
func (p *Publisher) Subscribe(ctx context.Context, fn func(subject string, ev discovery.Event)) error {
	if p.nc == nil || p.nc.IsClosed() {
		return ErrNotConnected
	}
	sub, err := p.nc.Subscribe(p.prefix+".>", func(msg *nats.Msg) {
		var ev discovery.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			p.logger.Warn("dropping undecodable event", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		fn(msg.Subject, ev)
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	<-ctx.Done()
	_ = sub.Unsubscribe()
	return ctx.Err()
}

// Close flushes pending messages and closes the connection if the publisher
// opened it.
func (p *Publisher) Close() error {
	if !p.owned || p.nc == nil || p.nc.IsClosed() {
		return nil
	}
	err := p.nc.FlushTimeout(2 * time.Second)
	p.nc.Close()
	return err
}

// token makes s safe to use as one subject token.
func token(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}

var _ discovery.EventPublisher = (*Publisher)(nil)
