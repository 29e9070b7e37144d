package multi

import (
	"context"
	"sync"

	"github.com/runreveal/hark"
)

// MultiSource multiplexes multiple sources into one.  Sources compete to send
// on a shared channel, so a busy source can starve a quiet one.  Each source
// keeps its own arrival order.
type MultiSource[T any] struct {
	wrapped []hark.Source[T]
	msgAckC chan hark.MsgAck[T]
}

func NewMultiSource[T any](sources []hark.Source[T]) MultiSource[T] {
	return MultiSource[T]{
		wrapped: sources,
		msgAckC: make(chan hark.MsgAck[T]),
	}
}

// Run assumes the wrapped sources are already running, it spawns a go-routine
// for each source being wrapped, and in a loop reads its Recv method, then
// makes that message available on the Recv method for the multi source.
// The first error from any wrapped source stops every reader and is returned.
func (ms MultiSource[T]) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errc := make(chan error, len(ms.wrapped))

	for _, src := range ms.wrapped {
		wg.Add(1)
		go func(src hark.Source[T]) {
			defer wg.Done()
			for {
				msg, ack, err := src.Recv(ctx)
				if err != nil {
					errc <- err
					return
				}
				select {
				case ms.msgAckC <- hark.MsgAck[T]{Msg: msg, Ack: ack}:
				case <-ctx.Done():
					return
				}
			}
		}(src)
	}

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-errc:
	}
	cancel()
	wg.Wait()
	return err
}

func (ms MultiSource[T]) Recv(ctx context.Context) (hark.Message[T], func(), error) {
	select {
	case ma := <-ms.msgAckC:
		return ma.Msg, ma.Ack, nil
	case <-ctx.Done():
		return hark.Message[T]{}, nil, ctx.Err()
	}
}
