package multi

import (
	"context"

	"github.com/runreveal/hark"
)

type MultiDestination[T any] struct {
	wrapped []hark.Destination[T]
}

func NewMultiDestination[T any](dests []hark.Destination[T]) MultiDestination[T] {
	return MultiDestination[T]{
		wrapped: dests,
	}
}

// Send fans msgs out to every wrapped destination in order.  The upstream
// ack is called once, after the last destination acks.
func (md MultiDestination[T]) Send(ctx context.Context, ack func(), msgs ...hark.Message[T]) error {
	if ack != nil {
		ack = ackFn(ack, len(md.wrapped))
	}
	for _, d := range md.wrapped {
		err := d.Send(ctx, ack, msgs...)
		if err != nil {
			return err
		}
	}
	return nil
}

// only call ack on last message acknowledgement
func ackFn(ack func(), num int) func() {
	if num < 1 {
		num = 1
	}
	ackChu := make(chan struct{}, num-1)
	for i := 0; i < num-1; i++ {
		ackChu <- struct{}{}
	}
	// bless you
	return func() {
		select {
		case <-ackChu:
		default:
			if ack != nil {
				ack()
			}
		}
	}
}
