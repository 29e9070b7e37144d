package queue

import (
	"context"
	"errors"
	"log/slog"

	"github.com/runreveal/hark"
	"github.com/runreveal/hark/internal/types"
	"github.com/runreveal/hark/x/multi"
	"github.com/runreveal/lib/await"
)

type Source struct {
	Name   string
	Source hark.Source[types.Event]
}

type Destination struct {
	Name        string
	Destination hark.Destination[types.Alert]
}

type Option func(*Queue)

func WithSources(srcs ...Source) Option {
	return func(q *Queue) {
		q.Sources = append(q.Sources, srcs...)
	}
}

func WithDestinations(dsts ...Destination) Option {
	return func(q *Queue) {
		q.Destinations = append(q.Destinations, dsts...)
	}
}

func WithHandler(h hark.Handler[types.Event, types.Alert]) Option {
	return func(q *Queue) {
		q.Handler = h
	}
}

func WithTracing(b bool) Option {
	return func(q *Queue) {
		q.tracing = b
	}
}

// Queue wires event sources through the handler into alert destinations.
type Queue struct {
	Sources      []Source
	Destinations []Destination
	Handler      hark.Handler[types.Event, types.Alert]

	tracing bool
}

var (
	ErrNoSources      = errors.New("no sources configured")
	ErrNoDestinations = errors.New("no destinations configured")
	ErrNoHandler      = errors.New("no handler configured")
)

func (q *Queue) Validate() error {
	if len(q.Sources) == 0 {
		return ErrNoSources
	}
	if len(q.Destinations) == 0 {
		return ErrNoDestinations
	}
	if q.Handler == nil {
		return ErrNoHandler
	}
	return nil
}

func New(opts ...Option) *Queue {
	var q Queue

	for _, opt := range opts {
		opt(&q)
	}

	return &q
}

type runner interface {
	Run(context.Context) error
}

// Run blocks until ctx is done or any source, destination or the processor
// stops.  A source that runs dry (e.g. a replayed file) stops the queue
// cleanly once its last event has been handled.
func (q *Queue) Run(ctx context.Context) error {
	if err := q.Validate(); err != nil {
		return err
	}

	w := await.New()

	srcs := make([]hark.Source[types.Event], 0, len(q.Sources))
	for _, s := range q.Sources {
		if r, ok := s.Source.(runner); ok {
			w.AddNamed(await.RunFunc(r.Run), "source:"+s.Name)
		}
		srcs = append(srcs, s.Source)
	}

	dsts := make([]hark.Destination[types.Alert], 0, len(q.Destinations))
	for _, d := range q.Destinations {
		if r, ok := d.Destination.(runner); ok {
			w.AddNamed(await.RunFunc(r.Run), "destination:"+d.Name)
		}
		dsts = append(dsts, d.Destination)
	}

	var src hark.Source[types.Event]
	if len(srcs) == 1 {
		src = srcs[0]
	} else {
		multiSrc := multi.NewMultiSource(srcs)
		w.AddNamed(await.RunFunc(multiSrc.Run), "multisource")
		src = multiSrc
	}

	var dst hark.Destination[types.Alert]
	if len(dsts) == 1 {
		dst = dsts[0]
	} else {
		dst = multi.NewMultiDestination(dsts)
	}

	p, err := hark.New(hark.Config[types.Event, types.Alert]{
		Source:      src,
		Destination: dst,
		Handler:     q.Handler,
		// Alerts are dispatched one at a time, in arrival order.
	}, hark.Parallelism(1), hark.Tracing(q.tracing))
	if err != nil {
		return err
	}
	w.AddNamed(await.RunFunc(p.Run), "processor")

	slog.Info("running queue", "sources", len(srcs), "destinations", len(dsts))
	err = w.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("queue stopped", "error", err)
		return err
	}
	return nil
}
