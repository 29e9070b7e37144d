package printer

import (
	"context"
	"io"
	"sync"

	"github.com/runreveal/hark"
)

type Printer struct {
	mu     sync.Mutex
	writer io.Writer
	delim  []byte
}

type Option func(*Printer)

func WithDelim(delim []byte) Option {
	return func(s *Printer) {
		s.delim = delim
	}
}

func NewPrinter(writer io.Writer, opts ...Option) *Printer {
	ret := &Printer{
		writer: writer,
		delim:  []byte("\n"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Send writes each message value followed by the delimiter.  Writes from
// concurrent callers are not interleaved.
func (p *Printer) Send(ctx context.Context, ack func(), msg ...hark.Message[[]byte]) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msg {
		toSend := make([]byte, 0, len(m.Value)+len(p.delim))
		toSend = append(toSend, m.Value...)
		toSend = append(toSend, p.delim...)

		_, err := p.writer.Write(toSend)
		if err != nil {
			return err
		}
	}
	hark.Ack(ack)
	return nil
}
