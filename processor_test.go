package hark_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/runreveal/hark"
	"github.com/runreveal/hark/x/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessor(t *testing.T) {
	inC, outC := make(chan string), make(chan string)
	memSrc := memory.NewMemSource((<-chan string)(inC))
	memDst := memory.NewMemDestination((chan<- string)(outC))

	upper := hark.HandlerFunc[string, string](func(c context.Context, m hark.Message[string]) ([]hark.Message[string], error) {
		return []hark.Message[string]{{Value: strings.ToUpper(m.Value)}}, nil
	})

	p, err := hark.New(hark.Config[string, string]{
		Source:      memSrc,
		Destination: memDst,
		Handler:     upper,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx) }()

	for _, in := range []string{"alice", "bob", "carol"} {
		inC <- in
		assert.Equal(t, strings.ToUpper(in), <-outC)
	}

	cancel()
	select {
	case err := <-errc:
		// cancellation is a clean stop
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("processor did not stop")
	}
}

func TestProcessorDropsFilteredMessages(t *testing.T) {
	inC, outC := make(chan int), make(chan int)
	src := memory.NewMemSource((<-chan int)(inC))
	dst := memory.NewMemDestination((chan<- int)(outC))

	evens := hark.HandlerFunc[int, int](func(c context.Context, m hark.Message[int]) ([]hark.Message[int], error) {
		if m.Value%2 != 0 {
			return nil, nil
		}
		return []hark.Message[int]{m}, nil
	})

	p, err := hark.New(hark.Config[int, int]{Source: src, Destination: dst, Handler: evens}, hark.Parallelism(1))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	go func() {
		for i := 1; i <= 6; i++ {
			inC <- i
		}
	}()
	for _, want := range []int{2, 4, 6} {
		select {
		case got := <-outC:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %d", want)
		}
	}
}

func TestProcessorHandlerError(t *testing.T) {
	inC := make(chan string, 1)
	src := memory.NewMemSource((<-chan string)(inC))
	dst := hark.DestinationFunc[string](func(ctx context.Context, ack func(), msgs ...hark.Message[string]) error {
		t.Error("nothing should be sent")
		return nil
	})

	boom := errors.New("boom")
	h := hark.HandlerFunc[string, string](func(c context.Context, m hark.Message[string]) ([]hark.Message[string], error) {
		return nil, boom
	})

	p, err := hark.New(hark.Config[string, string]{Source: src, Destination: dst, Handler: h})
	require.NoError(t, err)

	inC <- "x"
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.ErrorIs(t, p.Run(ctx), boom)
}

func TestNewRequiresParts(t *testing.T) {
	src := memory.NewMemSource[string](nil)
	dst := memory.NewMemDestination[string](nil)

	_, err := hark.New(hark.Config[string, string]{Source: src, Handler: hark.Pipe[string]()})
	assert.Error(t, err)
	_, err = hark.New(hark.Config[string, string]{Source: src, Destination: dst})
	assert.Error(t, err)
	_, err = hark.New(hark.Config[string, string]{Source: src, Destination: dst, Handler: hark.Pipe[string]()})
	assert.NoError(t, err)
}
