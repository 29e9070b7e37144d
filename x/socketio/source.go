package socketio

import (
	"context"

	"github.com/runreveal/hark"
)

// Source surfaces the first argument of every subscribed event as a
// hark.Message[[]byte] whose Topic is the event name.  The sequence is
// unbounded and cannot be restarted: once Run returns, the client is closed.
type Source struct {
	client *Client
	events map[string]struct{}
	msgC   chan hark.MsgAck[[]byte]
}

// NewSource subscribes to the named events.  With no names, every event is
// surfaced.
func NewSource(client *Client, events ...string) *Source {
	s := &Source{
		client: client,
		msgC:   make(chan hark.MsgAck[[]byte]),
	}
	if len(events) > 0 {
		s.events = make(map[string]struct{}, len(events))
		for _, e := range events {
			s.events[e] = struct{}{}
		}
	}
	return s
}

func (s *Source) Client() *Client {
	return s.client
}

// Run connects if needed and reads events until ctx is done or the
// connection fails.  There is no reconnect.
func (s *Source) Run(ctx context.Context) error {
	defer s.client.Close()
	if s.client.State() == Disconnected {
		if err := s.client.Connect(ctx); err != nil {
			return err
		}
	}
	return s.client.Listen(ctx, func(evt Event) error {
		if !s.subscribed(evt.Name) {
			return nil
		}
		select {
		case s.msgC <- hark.MsgAck[[]byte]{
			Msg: hark.Message[[]byte]{
				Value: []byte(evt.Payload()),
				Topic: evt.Name,
			},
		}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func (s *Source) subscribed(name string) bool {
	if s.events == nil {
		return true
	}
	_, ok := s.events[name]
	return ok
}

func (s *Source) Recv(ctx context.Context) (hark.Message[[]byte], func(), error) {
	select {
	case <-ctx.Done():
		return hark.Message[[]byte]{}, nil, ctx.Err()
	case pass := <-s.msgC:
		return pass.Msg, pass.Ack, nil
	}
}
