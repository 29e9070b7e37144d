package mqtt

import (
	"context"
	"encoding/json"

	"github.com/runreveal/hark"
	"github.com/runreveal/hark/internal/types"
	"github.com/runreveal/hark/x/mqtt"
)

// MQTT publishes each alert as JSON to a single topic.
type MQTT struct {
	wrapped *mqtt.Destination
}

func NewMQTT(opts ...mqtt.OptFunc) (*MQTT, error) {
	dst, err := mqtt.NewDestination(opts...)
	if err != nil {
		return nil, err
	}
	return wrap(dst), nil
}

func wrap(dst *mqtt.Destination) *MQTT {
	return &MQTT{wrapped: dst}
}

func (m *MQTT) Run(ctx context.Context) error {
	return m.wrapped.Run(ctx)
}

func (m *MQTT) Send(ctx context.Context, ack func(), msgs ...hark.Message[types.Alert]) error {
	out := make([]hark.Message[[]byte], 0, len(msgs))
	for _, msg := range msgs {
		bts, err := json.Marshal(msg.Value)
		if err != nil {
			return err
		}
		out = append(out, hark.Message[[]byte]{Key: msg.Key, Value: bts, Topic: msg.Topic})
	}
	return m.wrapped.Send(ctx, ack, out...)
}
