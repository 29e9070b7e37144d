// Package dispatch decides which incoming events become alerts.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/runreveal/hark"
	"github.com/runreveal/hark/internal/metrics"
	"github.com/runreveal/hark/internal/types"
)

// Classify applies the dispatch policy to a single event.  The first
// matching rule wins:
//
//  1. no account tag and type "donation"
//  2. tag "twitch_account": follow, subscription, or anything else
//
// Events matching neither rule report ok == false.  An untagged event with
// a type other than "donation" has no fallback and is ignored.
func Classify(evt types.Event) (kind types.Kind, ok bool) {
	if evt.For == "" && evt.Type == types.TypeDonation {
		return types.KindDonation, true
	}
	if evt.For == types.ForTwitchAccount {
		switch evt.Type {
		case types.TypeFollow:
			return types.KindFollow, true
		case types.TypeSubscription:
			return types.KindSubscription, true
		default:
			return types.KindOther, true
		}
	}
	return "", false
}

// Dispatcher is a hark.Handler turning events into alerts.
type Dispatcher struct {
	logger *slog.Logger
}

type Option func(*Dispatcher)

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{logger: slog.Default()}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Handle never fails: events that produce no alert are dropped and the
// processor acks them.
func (d *Dispatcher) Handle(ctx context.Context, msg hark.Message[types.Event]) ([]hark.Message[types.Alert], error) {
	evt := msg.Value
	kind, ok := Classify(evt)
	if !ok {
		d.logger.Debug("ignoring event", "for", evt.For, "type", evt.Type, "id", evt.ID)
		metrics.EventsIgnored.Inc()
		return nil, nil
	}
	if !evt.HasMessage() {
		d.logger.Warn("dropping event without message", "for", evt.For, "type", evt.Type, "id", evt.ID)
		metrics.EventsMalformed.WithLabelValues(evt.Source).Inc()
		return nil, nil
	}

	metrics.AlertsDispatched.WithLabelValues(string(kind)).Inc()
	alert := types.Alert{
		Kind:      kind,
		Platform:  evt.For,
		EventType: evt.Type,
		Message:   evt.Message,
		EventID:   evt.ID,
		Source:    evt.Source,
		Received:  evt.Received,
	}
	return []hark.Message[types.Alert]{{
		Key:        evt.ID,
		Value:      alert,
		Topic:      string(kind),
		Attributes: msg.Attributes,
	}}, nil
}
