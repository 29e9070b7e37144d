package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/runreveal/hark"
	"github.com/runreveal/hark/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alert(kind types.Kind, msg string) hark.Message[types.Alert] {
	return hark.Message[types.Alert]{
		Key:   msg,
		Value: types.Alert{Kind: kind, Message: msg, EventID: msg},
	}
}

func TestWebhookPostsBatches(t *testing.T) {
	bodies := make(chan []types.Alert, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer xyz", r.Header.Get("Authorization"))
		assert.Equal(t, "hark", r.Header.Get("User-Agent"))
		var alerts []types.Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&alerts))
		bodies <- alerts
	}))
	defer srv.Close()

	wh := New(
		WithURL(srv.URL),
		WithBatchSize(2),
		WithFlushFrequency(50*time.Millisecond),
		WithHeader("Authorization", "Bearer xyz"),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = wh.Run(ctx) }()

	acked := make(chan struct{})
	err := wh.Send(ctx, func() { close(acked) },
		alert(types.KindDonation, "Alice donated $5"),
		alert(types.KindFollow, "Bob followed"),
	)
	require.NoError(t, err)

	select {
	case got := <-bodies:
		require.Len(t, got, 2)
		assert.Equal(t, "Alice donated $5", got[0].Message)
		assert.Equal(t, types.KindFollow, got[1].Kind)
	case <-ctx.Done():
		t.Fatal("no request received")
	}

	select {
	case <-acked:
	case <-ctx.Done():
		t.Fatal("batch was not acked")
	}
}

func TestWebhookDoesNotAckOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wh := New(WithURL(srv.URL), WithBatchSize(1))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- wh.Run(ctx) }()

	acked := false
	require.NoError(t, wh.Send(ctx, func() { acked = true }, alert(types.KindDonation, "x")))

	select {
	case err := <-errc:
		assert.Error(t, err)
	case <-ctx.Done():
		t.Fatal("run should stop on a failed flush")
	}
	assert.False(t, acked)
}

func TestWebhookRequiresURL(t *testing.T) {
	assert.Error(t, New().Run(context.Background()))
}

func TestWebhookKeepsArrivalOrder(t *testing.T) {
	var (
		mu  sync.Mutex
		got []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var alerts []types.Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&alerts))
		// Slow requests give a second flush the chance to overtake.
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		for _, a := range alerts {
			got = append(got, a.Message)
		}
		mu.Unlock()
	}))
	defer srv.Close()

	wh := New(WithURL(srv.URL), WithBatchSize(1))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = wh.Run(ctx) }()

	want := []string{"a", "b", "c", "d", "e", "f"}
	for _, m := range want {
		require.NoError(t, wh.Send(ctx, nil, alert(types.KindDonation, m)))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == len(want)
	}, 3*time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, got)
}
