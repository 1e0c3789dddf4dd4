// Package publisher emits scheduling events on NATS subjects.
package publisher

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Config holds NATS connection settings.
type Config struct {
	URL    string
	Name   string
	Logger zerolog.Logger
}

// NATSPublisher publishes JSON-encoded events to NATS.
type NATSPublisher struct {
	nc     *nats.Conn
	logger zerolog.Logger
}

// NewNATSPublisher connects to NATS.
func NewNATSPublisher(cfg Config) (*NATSPublisher, error) {
	logger := cfg.Logger.With().Str("component", "publisher").Logger()
	name := cfg.Name
	if name == "" {
		name = "dutyplan"
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info().Msg("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}

	return &NATSPublisher{nc: nc, logger: logger}, nil
}

// Publish encodes v as JSON and publishes it on subject.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	start := time.Now()
	err = p.nc.Publish(subject, b)
	p.logger.Debug().
		Str("subject", subject).
		Dur("duration", time.Since(start)).
		Err(err).
		Msg("nats publish")
	return err
}

// Connected reports whether the connection is up.
func (p *NATSPublisher) Connected() bool {
	return p.nc != nil && p.nc.IsConnected()
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

// Subject joins tokens into a NATS subject, sanitising each token.
func Subject(tokens ...string) string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = Token(t)
	}
	return strings.Join(out, ".")
}

var tokenReplacer = strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")

// Token makes s usable as a single NATS subject token.
func Token(s string) string {
	s = tokenReplacer.Replace(strings.TrimSpace(s))
	if s == "" {
		s = "_"
	}
	return s
}

// Message is a published event held by MemoryPublisher.
type Message struct {
	Subject string
	Data    []byte
}

// MemoryPublisher keeps published events in memory.
// This is intended for testing and dry runs.
type MemoryPublisher struct {
	mu       sync.Mutex
	messages []Message
}

// NewMemoryPublisher creates an empty in-memory publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish records the JSON encoding of v.
func (p *MemoryPublisher) Publish(_ context.Context, subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, Message{Subject: subject, Data: b})
	return nil
}

// Messages returns a copy of the recorded messages in publish order.
func (p *MemoryPublisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.messages...)
}
