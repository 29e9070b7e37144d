// Package scanner replays newline-delimited JSON event payloads from a
// reader, so dispatch can run without a network connection.
package scanner

import (
	"context"
	"io"

	"github.com/runreveal/hark"
	"github.com/runreveal/hark/internal/sources"
	"github.com/runreveal/hark/internal/types"
	"github.com/runreveal/hark/x/scanner"
)

type Scanner struct {
	wrapped *scanner.Scanner
	events  *sources.EventSource
}

func NewScanner(reader io.Reader) *Scanner {
	wrapped := scanner.NewScanner(reader)
	return &Scanner{
		wrapped: wrapped,
		events:  sources.NewEventSource("scanner", wrapped),
	}
}

// Run returns nil once the reader is exhausted and every line was handled.
func (s *Scanner) Run(ctx context.Context) error {
	return s.wrapped.Run(ctx)
}

func (s *Scanner) Recv(ctx context.Context) (hark.Message[types.Event], func(), error) {
	return s.events.Recv(ctx)
}
