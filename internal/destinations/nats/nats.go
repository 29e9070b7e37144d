// Package nats publishes alerts to a NATS subject.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/runreveal/hark"
	"github.com/runreveal/hark/internal/types"
)

type Option func(*NATS)

func WithURL(url string) Option {
	return func(n *NATS) {
		n.url = url
	}
}

// WithSubject sets the subject prefix.  Alerts are published to
// <subject>.<kind>, e.g. hark.alerts.donation.
func WithSubject(subject string) Option {
	return func(n *NATS) {
		n.subject = subject
	}
}

// WithFlushTimeout bounds the wait for the server to confirm a batch when
// the caller's context carries no deadline of its own.
func WithFlushTimeout(d time.Duration) Option {
	return func(n *NATS) {
		n.flushTimeout = d
	}
}

type NATS struct {
	url          string
	subject      string
	flushTimeout time.Duration
	conn         *nats.Conn
}

func New(opts ...Option) (*NATS, error) {
	n := &NATS{
		url:          nats.DefaultURL,
		subject:      "hark.alerts",
		flushTimeout: 5 * time.Second,
	}
	for _, o := range opts {
		o(n)
	}
	if n.subject == "" {
		return nil, errors.New("nats: missing subject")
	}
	if n.flushTimeout <= 0 {
		n.flushTimeout = 5 * time.Second
	}

	nc, err := nats.Connect(n.url,
		nats.Name("hark"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", n.url, err)
	}
	n.conn = nc
	return n, nil
}

// Run holds the connection open until ctx is done, then drains it so
// buffered publishes reach the server.
func (n *NATS) Run(ctx context.Context) error {
	<-ctx.Done()
	if err := n.conn.Drain(); err != nil {
		slog.Warn("nats drain", "error", err)
	}
	return ctx.Err()
}

func (n *NATS) Send(ctx context.Context, ack func(), msgs ...hark.Message[types.Alert]) error {
	for _, msg := range msgs {
		data, err := json.Marshal(msg.Value)
		if err != nil {
			return fmt.Errorf("marshaling alert: %w", err)
		}
		if err := n.conn.Publish(n.subject+"."+string(msg.Value.Kind), data); err != nil {
			return fmt.Errorf("publishing alert: %w", err)
		}
	}
	// FlushWithContext refuses contexts without a deadline.
	fctx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, n.flushTimeout)
		defer cancel()
	}
	if err := n.conn.FlushWithContext(fctx); err != nil {
		return fmt.Errorf("flushing alerts: %w", err)
	}
	hark.Ack(ack)
	return nil
}

func (n *NATS) Close() {
	n.conn.Close()
}
