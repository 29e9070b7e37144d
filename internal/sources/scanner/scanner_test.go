package scanner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/runreveal/hark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScannerReplaysEvents(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		`{"type":"donation","message":"Alice donated $5"}`,
		``,
		`garbage`,
		`{"for":"twitch_account","type":"follow","message":"Bob followed"}`,
	}, "\n"))
	s := NewScanner(in)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	var got []string
	for i := 0; i < 2; i++ {
		msg, ack, err := s.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, "scanner", msg.Value.Source)
		got = append(got, msg.Value.Message)
		hark.Ack(ack)
	}
	assert.Equal(t, []string{"Alice donated $5", "Bob followed"}, got)
	assert.NoError(t, <-errc)
}
