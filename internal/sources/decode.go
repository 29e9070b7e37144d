// Package sources turns raw notification payloads from any transport into
// validated types.Event messages.
package sources

import (
	"context"
	"log/slog"

	"github.com/runreveal/hark"
	"github.com/runreveal/hark/internal/metrics"
	"github.com/runreveal/hark/internal/types"
)

// EventSource decodes the payloads of a byte source into events.
// Payloads that fail validation are logged, acked and skipped, so Recv
// only returns transport errors.
type EventSource struct {
	name string
	src  hark.ByteSource
}

func NewEventSource(name string, src hark.ByteSource) *EventSource {
	return &EventSource{name: name, src: src}
}

func (s *EventSource) Recv(ctx context.Context) (hark.Message[types.Event], func(), error) {
	for {
		msg, ack, err := s.src.Recv(ctx)
		if err != nil {
			return hark.Message[types.Event]{}, nil, err
		}
		metrics.EventsReceived.WithLabelValues(s.name).Inc()

		evt, err := types.ParseEvent(msg.Value)
		if err != nil {
			slog.Warn("dropping malformed event",
				"source", s.name,
				"error", err,
				"payload", truncate(msg.Value),
			)
			metrics.EventsMalformed.WithLabelValues(s.name).Inc()
			hark.Ack(ack)
			continue
		}
		evt.Source = s.name

		return hark.Message[types.Event]{
			Key:        evt.ID,
			Value:      evt,
			Topic:      msg.Topic,
			Attributes: msg.Attributes,
		}, ack, nil
	}
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
