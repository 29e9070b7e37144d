// Package webhook posts batches of alerts as JSON to an HTTP endpoint.
package webhook

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/runreveal/hark"
	"github.com/runreveal/hark/internal/types"
	batch "github.com/runreveal/hark/x/batcher"
)

type Option func(*Webhook)

func WithURL(url string) Option {
	return func(w *Webhook) {
		w.url = url
	}
}

func WithHTTPClient(httpc *http.Client) Option {
	return func(w *Webhook) {
		w.httpc = httpc
	}
}

func WithBatchSize(size int) Option {
	return func(w *Webhook) {
		w.batchSize = size
	}
}

func WithFlushFrequency(t time.Duration) Option {
	return func(w *Webhook) {
		w.flushFreq = t
	}
}

// WithHeader adds a header to every request, e.g. an Authorization token.
func WithHeader(key, value string) Option {
	return func(w *Webhook) {
		w.headers[key] = value
	}
}

type Webhook struct {
	httpc   *http.Client
	batcher *batch.Destination[types.Alert]

	batchSize int
	flushFreq time.Duration
	url       string
	headers   map[string]string
}

func New(opts ...Option) *Webhook {
	ret := &Webhook{
		httpc:   http.DefaultClient,
		headers: map[string]string{},
	}
	for _, o := range opts {
		o(ret)
	}

	if ret.batchSize <= 0 {
		ret.batchSize = 20
	}
	if ret.flushFreq <= 0 {
		ret.flushFreq = time.Second
	}

	ret.batcher = batch.NewDestination[types.Alert](ret,
		batch.FlushLength(ret.batchSize),
		batch.FlushFrequency(ret.flushFreq),
		// One flush in flight keeps batches in arrival order.
		batch.FlushParallelism(1),
	)
	return ret
}

func (w *Webhook) Run(ctx context.Context) error {
	if w.url == "" {
		return errors.New("webhook: missing url")
	}
	return w.batcher.Run(ctx)
}

func (w *Webhook) Send(ctx context.Context, ack func(), msgs ...hark.Message[types.Alert]) error {
	return w.batcher.Send(ctx, ack, msgs...)
}

func (w *Webhook) newReq() *requests.Builder {
	rb := requests.
		URL(w.url).
		Client(w.httpc).
		UserAgent("hark").
		Accept("application/json")
	for k, v := range w.headers {
		rb = rb.Header(k, v)
	}
	return rb
}

// Flush posts the alerts as a JSON array.
func (w *Webhook) Flush(ctx context.Context, msgs []hark.Message[types.Alert]) error {
	slog.Debug("sending alerts to webhook", "count", len(msgs))

	alerts := make([]types.Alert, len(msgs))
	for i, msg := range msgs {
		alerts[i] = msg.Value
	}

	err := w.newReq().BodyJSON(alerts).Fetch(ctx)
	if err != nil {
		slog.Error("error sending alerts to webhook", "err", err)
		return err
	}
	return nil
}
