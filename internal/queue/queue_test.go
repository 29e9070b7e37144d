package queue

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/runreveal/hark"
	"github.com/runreveal/hark/internal/destinations/printer"
	"github.com/runreveal/hark/internal/dispatch"
	"github.com/runreveal/hark/internal/sources/scanner"
	"github.com/runreveal/hark/internal/types"
	"github.com/runreveal/hark/x/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer lets the test read what the printer writes concurrently.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

const replay = `{"type":"donation","message":"Alice donated $5"}
{"for":"other_service","type":"donation","message":"ignored"}
{"for":"twitch_account","type":"follow","message":"Bob followed"}
not json
{"type":"cheer","message":"ignored too"}
{"for":"twitch_account","type":"raid","message":"Carol raided"}
{"for":"twitch_account","type":"subscription","message":"Dan subscribed"}
`

const want = "Alice donated $5\nBob followed\nCarol raided\nDan subscribed\n"

func TestQueueReplay(t *testing.T) {
	out := &syncBuffer{}
	q := New(
		WithSources(Source{Name: "scanner", Source: scanner.NewScanner(strings.NewReader(replay))}),
		WithDestinations(Destination{Name: "console", Destination: printer.NewPrinter(out)}),
		WithHandler(dispatch.New()),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = q.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return out.String() == want
	}, 3*time.Second, 10*time.Millisecond, "got %q", out.String())
	assert.NotContains(t, out.String(), "ignored")
}

func TestQueueFansOut(t *testing.T) {
	in := make(chan types.Event)
	a, b := &syncBuffer{}, &syncBuffer{}
	q := New(
		WithSources(Source{Name: "memory", Source: memory.NewMemSource((<-chan types.Event)(in))}),
		WithDestinations(
			Destination{Name: "a", Destination: printer.NewPrinter(a)},
			Destination{Name: "b", Destination: printer.NewPrinter(b)},
		),
		WithHandler(dispatch.New()),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = q.Run(ctx) }()

	for _, p := range []string{
		`{"for":"youtube_account","type":"follow","message":"ignored"}`,
		`{"type":"donation","message":"Alice donated $5"}`,
	} {
		evt, err := types.ParseEvent([]byte(p))
		require.NoError(t, err)
		in <- evt
	}

	for _, buf := range []*syncBuffer{a, b} {
		assert.Eventually(t, func() bool {
			return buf.String() == "Alice donated $5\n"
		}, 3*time.Second, 10*time.Millisecond)
	}
}

func TestQueueValidate(t *testing.T) {
	src := Source{Name: "s", Source: memory.NewMemSource[types.Event](nil)}
	dst := Destination{Name: "d", Destination: hark.DestinationFunc[types.Alert](
		func(context.Context, func(), ...hark.Message[types.Alert]) error { return nil },
	)}

	assert.ErrorIs(t, New().Run(context.Background()), ErrNoSources)
	assert.ErrorIs(t, New(WithSources(src)).Run(context.Background()), ErrNoDestinations)
	assert.ErrorIs(t, New(WithSources(src), WithDestinations(dst)).Run(context.Background()), ErrNoHandler)
}
