package scanner

import (
	"bufio"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/runreveal/hark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScannerWaitsForAcks(t *testing.T) {
	s := NewScanner(strings.NewReader("one\n\ntwo\n"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	var acks []func()
	var got []string
	for i := 0; i < 2; i++ {
		msg, ack, err := s.Recv(ctx)
		require.NoError(t, err)
		got = append(got, string(msg.Value))
		acks = append(acks, ack)
	}
	assert.Equal(t, []string{"one", "two"}, got)

	select {
	case <-errc:
		t.Fatal("run returned before lines were acked")
	case <-time.After(50 * time.Millisecond):
	}

	for _, ack := range acks {
		hark.Ack(ack)
	}
	assert.NoError(t, <-errc)
}

func TestScannerLineTooLong(t *testing.T) {
	s := NewScanner(strings.NewReader(strings.Repeat("x", 100)+"\n"), WithMaxLineSize(10))
	err := s.Run(context.Background())
	assert.ErrorIs(t, err, bufio.ErrTooLong)
}
