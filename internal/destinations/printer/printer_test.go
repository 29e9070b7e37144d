package printer

import (
	"context"
	"strings"
	"testing"

	"github.com/runreveal/hark"
	"github.com/runreveal/hark/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrinterWritesMessagesVerbatim(t *testing.T) {
	buf := new(strings.Builder)
	p := NewPrinter(buf)

	acks := 0
	err := p.Send(context.Background(), func() { acks++ },
		hark.Message[types.Alert]{Value: types.Alert{Kind: types.KindDonation, Message: "Alice donated $5"}},
		hark.Message[types.Alert]{Value: types.Alert{Kind: types.KindOther, Message: "  Carol raided!  "}},
	)
	require.NoError(t, err)
	assert.Equal(t, 1, acks)
	assert.Equal(t, "Alice donated $5\n  Carol raided!  \n", buf.String())
}
