package streamlabs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/runreveal/hark/x/socketio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresToken(t *testing.T) {
	_, err := New()
	assert.Error(t, err)

	s, err := New(WithToken("abc"))
	require.NoError(t, err)
	assert.Equal(t, socketio.Disconnected, s.State())
}

func TestStreamlabsDecodesEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.URL.Query().Get("token"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for _, f := range []string{
			`0{"sid":"s1","pingInterval":25000,"pingTimeout":5000}`,
			"40",
			`42["event","not an object"]`,
			`42["event",{"message":"missing type"}]`,
			`42["event",{"type":"donation","message":"Alice donated $5"}]`,
			`42["event",{"for":"twitch_account","type":"follow","message":"Bob followed"}]`,
		} {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				t.Errorf("write: %v", err)
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	s, err := New(WithURL(srv.URL), WithToken("tok"), WithHandshakeTimeout(time.Second))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	msg, _, err := s.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "donation", msg.Value.Type)
	assert.Equal(t, "Alice donated $5", msg.Value.Message)
	assert.Equal(t, "streamlabs", msg.Value.Source)

	msg, _, err = s.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "twitch_account", msg.Value.For)
	assert.Equal(t, "Bob followed", msg.Value.Message)
	assert.Equal(t, socketio.Connected, s.State())
}
