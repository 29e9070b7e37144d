package sources

import (
	"context"
	"testing"

	"github.com/runreveal/hark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceSource hands out payloads in order and counts acks.
type sliceSource struct {
	payloads []string
	acked    int
}

func (s *sliceSource) Recv(ctx context.Context) (hark.Message[[]byte], func(), error) {
	if len(s.payloads) == 0 {
		<-ctx.Done()
		return hark.Message[[]byte]{}, nil, ctx.Err()
	}
	p := s.payloads[0]
	s.payloads = s.payloads[1:]
	return hark.Message[[]byte]{Value: []byte(p), Topic: "event"}, func() { s.acked++ }, nil
}

func TestEventSourceSkipsMalformed(t *testing.T) {
	src := &sliceSource{payloads: []string{
		`not json`,
		`{"message":"no type"}`,
		`[1,2,3]`,
		`{"type":"donation","message":"Alice donated $5","event_id":"e1"}`,
	}}
	es := NewEventSource("test", src)

	msg, ack, err := es.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, src.acked, "malformed payloads should be acked")
	assert.Equal(t, "e1", msg.Key)
	assert.Equal(t, "donation", msg.Value.Type)
	assert.Equal(t, "Alice donated $5", msg.Value.Message)
	assert.Equal(t, "test", msg.Value.Source)
	assert.Equal(t, "event", msg.Topic)

	hark.Ack(ack)
	assert.Equal(t, 4, src.acked)
}

func TestEventSourceReturnsTransportErrors(t *testing.T) {
	es := NewEventSource("test", &sliceSource{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := es.Recv(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate([]byte("short")))
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	got := truncate(long)
	assert.Len(t, got, 259)
	assert.Equal(t, "...", got[256:])
}
