package hark_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/runreveal/hark"
	"github.com/runreveal/hark/x/memory"
	"github.com/runreveal/hark/x/printer"
	"github.com/runreveal/hark/x/scanner"
	"github.com/runreveal/lib/await"
	"github.com/stretchr/testify/assert"
)

func TestSuite(t *testing.T) {
	schan := make(chan []byte)
	src := memory.NewMemSource((<-chan []byte)(schan))
	dst := memory.NewMemDestination[[]byte]((chan<- []byte)(schan))
	SuiteTest(t, src, dst)

	reader, writer := io.Pipe()
	scansrc := scanner.NewScanner(reader)
	printdst := printer.NewPrinter(writer)
	time.AfterFunc(100*time.Millisecond, func() {
		// end of stream
		writer.Close()
	})
	SuiteTest(t, scansrc, printdst)
}

// SuiteTest sends a set of random lines through dst and checks that src
// yields each of them exactly once.
func SuiteTest(t *testing.T, src hark.Source[[]byte], dst hark.Destination[[]byte]) {
	wait := await.New()
	want := make([][]byte, 25)
	seen := make([]bool, 25)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := range want {
		raw := make([]byte, 10)
		_, err := rng.Read(raw)
		assert.NoError(t, err)
		// hex keeps the delimiter out of line-oriented transports
		want[i] = []byte(hex.EncodeToString(raw))
	}

	if r, ok := src.(interface{ Run(context.Context) error }); ok {
		wait.Add(await.RunFunc(r.Run))
	}
	if r, ok := dst.(interface{ Run(context.Context) error }); ok {
		wait.Add(await.RunFunc(r.Run))
	}

	wait.Add(await.RunFunc(func(ctx context.Context) error {
		count := 0
		for count < len(want) {
			msg, ack, err := src.Recv(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					assert.NoError(t, err)
				}
				return nil
			}
			hark.Ack(ack)
			mark(t, msg.Value, want, seen)
			count++
		}
		time.Sleep(100 * time.Millisecond)
		return nil
	}))

	wait.Add(await.RunFunc(func(ctx context.Context) error {
		for i := range want {
			toSend := make([]byte, len(want[i]))
			copy(toSend, want[i])
			err := dst.Send(ctx, nil, hark.Message[[]byte]{Value: toSend})
			if !errors.Is(err, context.Canceled) {
				assert.NoError(t, err)
			}
		}
		// Wait until the source exits.
		<-ctx.Done()
		return nil
	}))

	ctx, cncl := context.WithTimeout(context.Background(), 5*time.Second)
	defer cncl()

	err := wait.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		assert.NoError(t, err)
	}

	for i := range seen {
		assert.True(t, seen[i], "we should have seen all messages, missing: %d", i)
	}
}

type aide interface {
	assert.TestingT
	Helper()
}

func mark(t aide, actual []byte, sent [][]byte, seen []bool) {
	t.Helper()
	for i, want := range sent {
		if bytes.Equal(actual, want) {
			assert.False(t, seen[i], "we shouldn't see duplicates")
			seen[i] = true
			return
		}
	}
}
