// Package mqtt receives notification payloads relayed over an MQTT topic.
package mqtt

import (
	"context"

	"github.com/runreveal/hark"
	"github.com/runreveal/hark/internal/sources"
	"github.com/runreveal/hark/internal/types"
	"github.com/runreveal/hark/x/mqtt"
)

type MQTT struct {
	wrapped *mqtt.Source
	events  *sources.EventSource
}

func NewMQTT(opts ...mqtt.OptFunc) (*MQTT, error) {
	src, err := mqtt.NewSource(opts...)
	if err != nil {
		return nil, err
	}
	return wrap(src), nil
}

func wrap(src *mqtt.Source) *MQTT {
	return &MQTT{
		wrapped: src,
		events:  sources.NewEventSource("mqtt", src),
	}
}

func (s *MQTT) Run(ctx context.Context) error {
	return s.wrapped.Run(ctx)
}

func (s *MQTT) Recv(ctx context.Context) (hark.Message[types.Event], func(), error) {
	return s.events.Recv(ctx)
}
