package memory

import (
	"context"

	"github.com/runreveal/hark"
)

// MemorySource reads values off a channel.  It has no upstream to
// acknowledge, so the returned ack func is always nil.
type MemorySource[T any] struct {
	MsgC <-chan T
}

func NewMemSource[T any](in <-chan T) MemorySource[T] {
	return MemorySource[T]{
		MsgC: in,
	}
}

func (ms MemorySource[T]) Recv(ctx context.Context) (hark.Message[T], func(), error) {
	select {
	case <-ctx.Done():
		return hark.Message[T]{}, nil, ctx.Err()
	case v := <-ms.MsgC:
		return hark.Message[T]{Value: v}, nil, nil
	}
}

type MemoryDestination[T any] struct {
	MsgC chan<- T
}

func NewMemDestination[T any](out chan<- T) MemoryDestination[T] {
	return MemoryDestination[T]{
		MsgC: out,
	}
}

func (ms MemoryDestination[T]) Send(ctx context.Context, ack func(), msgs ...hark.Message[T]) error {
	for _, msg := range msgs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ms.MsgC <- msg.Value:
		}
	}
	hark.Ack(ack)
	return nil
}
