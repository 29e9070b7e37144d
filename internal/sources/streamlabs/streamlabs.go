// Package streamlabs listens to the Streamlabs socket API for alert events.
package streamlabs

import (
	"context"
	"errors"
	"time"

	"github.com/runreveal/hark"
	"github.com/runreveal/hark/internal/sources"
	"github.com/runreveal/hark/internal/types"
	"github.com/runreveal/hark/x/socketio"
)

const (
	DefaultURL = "https://sockets.streamlabs.com"
	// EventName is the only socket event the service sends alerts on.
	EventName = "event"
)

type Option func(*Streamlabs)

func WithURL(url string) Option {
	return func(s *Streamlabs) {
		s.url = url
	}
}

func WithToken(token string) Option {
	return func(s *Streamlabs) {
		s.token = token
	}
}

func WithProtocol(eio int) Option {
	return func(s *Streamlabs) {
		s.protocol = eio
	}
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *Streamlabs) {
		s.handshakeTimeout = d
	}
}

func WithName(name string) Option {
	return func(s *Streamlabs) {
		s.name = name
	}
}

// Streamlabs is a hark.Source[types.Event] backed by one socket
// connection.  Run owns the connection; Recv yields decoded events.
type Streamlabs struct {
	name             string
	url              string
	token            string
	protocol         int
	handshakeTimeout time.Duration

	wrapped *socketio.Source
	events  *sources.EventSource
}

func New(opts ...Option) (*Streamlabs, error) {
	s := &Streamlabs{
		name:             "streamlabs",
		url:              DefaultURL,
		protocol:         3,
		handshakeTimeout: 10 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	if s.token == "" {
		return nil, errors.New("streamlabs: missing socket token")
	}

	client, err := socketio.NewClient(
		socketio.WithURL(s.url),
		socketio.WithToken(s.token),
		socketio.WithProtocol(s.protocol),
		socketio.WithHandshakeTimeout(s.handshakeTimeout),
	)
	if err != nil {
		return nil, err
	}
	s.wrapped = socketio.NewSource(client, EventName)
	s.events = sources.NewEventSource(s.name, s.wrapped)
	return s, nil
}

func (s *Streamlabs) Run(ctx context.Context) error {
	return s.wrapped.Run(ctx)
}

func (s *Streamlabs) Recv(ctx context.Context) (hark.Message[types.Event], func(), error) {
	return s.events.Recv(ctx)
}

// State reports the socket's lifecycle state.
func (s *Streamlabs) State() socketio.State {
	return s.wrapped.Client().State()
}
