package scanner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/runreveal/hark"
)

const defaultMaxLine = 1 << 20

type Scanner struct {
	reader  io.Reader
	maxLine int
	msgC    chan hark.MsgAck[[]byte]
}

type Option func(*Scanner)

// WithMaxLineSize sets the longest line the scanner will accept.  Longer
// lines stop Run with bufio.ErrTooLong.
func WithMaxLineSize(n int) Option {
	return func(s *Scanner) {
		s.maxLine = n
	}
}

func NewScanner(reader io.Reader, opts ...Option) *Scanner {
	s := &Scanner{
		reader:  reader,
		maxLine: defaultMaxLine,
		msgC:    make(chan hark.MsgAck[[]byte]),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run reads lines until the reader is exhausted and every line handed out
// by Recv has been acked, or until ctx is done.
func (s *Scanner) Run(ctx context.Context) error {
	return s.recvLoop(ctx)
}

func (s *Scanner) recvLoop(ctx context.Context) error {
	scanner := bufio.NewScanner(s.reader)
	// The larger of cap(buf) and max is the real limit.
	scanner.Buffer(make([]byte, 0, min(64*1024, s.maxLine)), s.maxLine)
	var wg sync.WaitGroup

	for scanner.Scan() {
		// Scanner reuses its buffer between calls.
		line := append([]byte(nil), scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}
		wg.Add(1)
		select {
		case s.msgC <- hark.MsgAck[[]byte]{
			Msg: hark.Message[[]byte]{
				Value: line,
			},
			Ack: wg.Done,
		}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c := make(chan struct{})
	go func() {
		wg.Wait()
		close(c)
	}()
	select {
	case <-c:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanning: %w", err)
	}

	return nil
}

func (s *Scanner) Recv(ctx context.Context) (hark.Message[[]byte], func(), error) {
	select {
	case <-ctx.Done():
		return hark.Message[[]byte]{}, nil, ctx.Err()
	case pass := <-s.msgC:
		return pass.Msg, pass.Ack, nil
	}
}
