// Package printer writes alert messages to the console.
package printer

import (
	"context"
	"io"

	"github.com/runreveal/hark"
	"github.com/runreveal/hark/internal/types"
	"github.com/runreveal/hark/x/printer"
)

// Printer writes each alert's message verbatim, one per line.
type Printer struct {
	wrapped *printer.Printer
}

func NewPrinter(writer io.Writer) *Printer {
	return &Printer{wrapped: printer.NewPrinter(writer)}
}

func (p *Printer) Send(ctx context.Context, ack func(), msgs ...hark.Message[types.Alert]) error {
	out := make([]hark.Message[[]byte], len(msgs))
	for i, m := range msgs {
		out[i] = hark.Message[[]byte]{
			Key:   m.Key,
			Value: []byte(m.Value.Message),
			Topic: m.Topic,
		}
	}
	return p.wrapped.Send(ctx, ack, out...)
}
