// Package socketio is a minimal Socket.IO client over the Engine.IO
// websocket transport.  It only receives events; it never emits them.
package socketio

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

type State int32

const (
	Disconnected State = iota
	Connected
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	}
	return "unknown"
}

var (
	ErrNotConnected     = errors.New("socketio: not connected")
	ErrAlreadyConnected = errors.New("socketio: already connected")
	ErrClosed           = errors.New("socketio: client closed")
	ErrServerClosed     = errors.New("socketio: server closed the connection")
)

// ServerError is returned when the server answers with a Socket.IO ERROR
// packet, e.g. when the token is rejected.
type ServerError struct {
	Namespace string
	Message   string
}

func (e *ServerError) Error() string {
	return "socketio: server error on " + e.Namespace + ": " + e.Message
}

type OptFunc func(*Opts)

type Opts struct {
	url              string
	token            string
	query            url.Values
	namespace        string
	protocol         int
	handshakeTimeout time.Duration
	header           http.Header
	dialer           *websocket.Dialer
	logger           *slog.Logger
}

func WithURL(u string) OptFunc {
	return func(o *Opts) {
		o.url = u
	}
}

// WithToken sets the "token" query parameter sent on connect.
func WithToken(token string) OptFunc {
	return func(o *Opts) {
		o.token = token
	}
}

func WithQuery(key, value string) OptFunc {
	return func(o *Opts) {
		o.query.Set(key, value)
	}
}

func WithNamespace(ns string) OptFunc {
	return func(o *Opts) {
		if ns == "" {
			ns = "/"
		}
		if !strings.HasPrefix(ns, "/") {
			ns = "/" + ns
		}
		o.namespace = ns
	}
}

// WithProtocol selects the Engine.IO protocol revision, 3 (Socket.IO v2
// servers) or 4 (Socket.IO v3 and later).
func WithProtocol(eio int) OptFunc {
	return func(o *Opts) {
		o.protocol = eio
	}
}

func WithHandshakeTimeout(d time.Duration) OptFunc {
	return func(o *Opts) {
		o.handshakeTimeout = d
	}
}

func WithHeader(h http.Header) OptFunc {
	return func(o *Opts) {
		o.header = h
	}
}

func WithDialer(d *websocket.Dialer) OptFunc {
	return func(o *Opts) {
		o.dialer = d
	}
}

func WithLogger(l *slog.Logger) OptFunc {
	return func(o *Opts) {
		o.logger = l
	}
}

func loadOpts(opts []OptFunc) Opts {
	cfg := Opts{
		query:            url.Values{},
		namespace:        "/",
		protocol:         3,
		handshakeTimeout: 10 * time.Second,
		dialer:           websocket.DefaultDialer,
		logger:           slog.Default(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// Client owns a single websocket connection to a Socket.IO server.  A
// client is used once: Disconnected -> Connected -> Closed.
type Client struct {
	cfg      Opts
	endpoint string

	state   atomic.Int32
	conn    *websocket.Conn
	writeMu sync.Mutex
	hs      handshake

	closeOnce sync.Once
}

func NewClient(opts ...OptFunc) (*Client, error) {
	cfg := loadOpts(opts)
	if cfg.protocol != 3 && cfg.protocol != 4 {
		return nil, errors.Errorf("socketio: unsupported engine.io protocol %d", cfg.protocol)
	}
	endpoint, err := endpointURL(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, endpoint: endpoint}, nil
}

// endpointURL turns a service URL like https://host into the websocket
// transport URL wss://host/socket.io/?EIO=3&transport=websocket&token=...
func endpointURL(cfg Opts) (string, error) {
	if cfg.url == "" {
		return "", errors.New("socketio: missing url")
	}
	u, err := url.Parse(cfg.url)
	if err != nil {
		return "", errors.Wrap(err, "socketio: parse url")
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", errors.Errorf("socketio: unsupported url scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/socket.io/"
	}

	q := u.Query()
	for k, vs := range cfg.query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if cfg.token != "" {
		q.Set("token", cfg.token)
	}
	q.Set("EIO", strconv.Itoa(cfg.protocol))
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) State() State {
	return State(c.state.Load())
}

// SessionID is the Engine.IO session id assigned by the server.
func (c *Client) SessionID() string {
	return c.hs.SID
}

// Connect dials the server and completes the Engine.IO and Socket.IO
// handshakes.  It returns once the namespace is joined.
func (c *Client) Connect(ctx context.Context) error {
	switch c.State() {
	case Connected:
		return ErrAlreadyConnected
	case Closed:
		return ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.handshakeTimeout)
	defer cancel()

	conn, resp, err := c.cfg.dialer.DialContext(ctx, c.endpoint, c.cfg.header)
	if err != nil {
		if resp != nil {
			return errors.Wrapf(err, "socketio: dial (status %d)", resp.StatusCode)
		}
		return errors.Wrap(err, "socketio: dial")
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	// Unblock handshake reads if ctx ends first.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	c.conn = conn
	if err := c.handshake(); err != nil {
		conn.Close()
		c.conn = nil
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "socketio: handshake")
		}
		return err
	}
	if !stop() {
		conn.Close()
		c.conn = nil
		return errors.Wrap(ctx.Err(), "socketio: handshake")
	}
	_ = conn.SetReadDeadline(time.Time{})

	if !c.state.CompareAndSwap(int32(Disconnected), int32(Connected)) {
		conn.Close()
		return ErrClosed
	}
	c.cfg.logger.Info("socketio connected",
		"sid", c.hs.SID,
		"namespace", c.cfg.namespace,
		"pingInterval", c.hs.PingInterval,
	)
	return nil
}

func (c *Client) handshake() error {
	_, frame, err := c.conn.ReadMessage()
	if err != nil {
		return errors.Wrap(err, "socketio: read open packet")
	}
	if len(frame) == 0 || frame[0] != eioOpen {
		return errors.Errorf("socketio: expected open packet, got %q", truncate(frame))
	}
	c.hs, err = decodeHandshake(frame[1:])
	if err != nil {
		return err
	}

	if c.cfg.protocol >= 4 || c.cfg.namespace != "/" {
		connect := Packet{Type: PacketConnect, Namespace: c.cfg.namespace, ID: -1}
		if err := c.write(encodePacket(connect)); err != nil {
			return err
		}
	}

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "socketio: read connect packet")
		}
		if len(frame) == 0 {
			continue
		}
		switch frame[0] {
		case eioPing:
			if err := c.write(pong(frame)); err != nil {
				return err
			}
			continue
		case eioClose:
			return ErrServerClosed
		case eioMessage:
		default:
			continue
		}

		p, err := decodePacket(frame[1:])
		if err != nil {
			return err
		}
		if p.Namespace != c.cfg.namespace {
			continue
		}
		switch p.Type {
		case PacketConnect:
			return nil
		case PacketError:
			return &ServerError{Namespace: p.Namespace, Message: errorMessage(p.Data)}
		case PacketDisconnect:
			return ErrServerClosed
		}
	}
}

// Listen reads frames until ctx is done, the server goes away, or fn
// returns an error.  fn is called for every EVENT packet in the client's
// namespace, one at a time, in arrival order.
func (c *Client) Listen(ctx context.Context, fn func(Event) error) error {
	switch c.State() {
	case Disconnected:
		return ErrNotConnected
	case Closed:
		return ErrClosed
	}

	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	done := make(chan struct{})
	defer close(done)
	if c.cfg.protocol == 3 {
		// EIO 3 clients drive the heartbeat; EIO 4 servers ping us.
		go c.heartbeat(done)
	}

	readTimeout := c.hs.PingInterval + c.hs.PingTimeout
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		msgType, frame, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if c.State() == Closed {
				return ErrClosed
			}
			return errors.Wrap(err, "socketio: read")
		}
		if msgType != websocket.TextMessage || len(frame) == 0 {
			c.cfg.logger.Debug("socketio: skipping non-text frame", "type", msgType, "len", len(frame))
			continue
		}

		switch frame[0] {
		case eioPing:
			if err := c.write(pong(frame)); err != nil {
				return err
			}
		case eioPong, eioNoop:
		case eioClose:
			return ErrServerClosed
		case eioMessage:
			if err := c.handleMessage(frame[1:], fn); err != nil {
				return err
			}
		default:
			c.cfg.logger.Debug("socketio: unexpected engine.io packet", "frame", truncate(frame))
		}
	}
}

func (c *Client) handleMessage(b []byte, fn func(Event) error) error {
	p, err := decodePacket(b)
	if err != nil {
		c.cfg.logger.Warn("socketio: dropping undecodable packet", "error", err, "frame", truncate(b))
		return nil
	}
	if p.Namespace != c.cfg.namespace {
		return nil
	}
	switch p.Type {
	case PacketEvent:
		evt, err := decodeEvent(p)
		if err != nil {
			c.cfg.logger.Warn("socketio: dropping undecodable event", "error", err, "frame", truncate(b))
			return nil
		}
		return fn(evt)
	case PacketDisconnect:
		return ErrServerClosed
	case PacketError:
		return &ServerError{Namespace: p.Namespace, Message: errorMessage(p.Data)}
	case PacketBinaryEvent, PacketBinaryAck:
		c.cfg.logger.Debug("socketio: binary packets are not supported", "attachments", p.Attachments)
	}
	return nil
}

func (c *Client) heartbeat(done <-chan struct{}) {
	t := time.NewTicker(c.hs.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := c.write([]byte{eioPing}); err != nil {
				// The read loop notices the broken connection.
				c.cfg.logger.Debug("socketio: ping failed", "error", err)
				return
			}
		}
	}
}

func (c *Client) write(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.handshakeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return errors.Wrap(err, "socketio: write")
	}
	return nil
}

// Close leaves the namespace and closes the connection.  It is safe to call
// more than once and from any goroutine.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		prev := State(c.state.Swap(int32(Closed)))
		if prev != Connected || c.conn == nil {
			return
		}
		disconnect := Packet{Type: PacketDisconnect, Namespace: c.cfg.namespace, ID: -1}
		_ = c.write(encodePacket(disconnect))

		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		if err = c.conn.Close(); errors.Is(err, net.ErrClosed) {
			err = nil
		}
		c.cfg.logger.Info("socketio closed", "sid", c.hs.SID)
	})
	return err
}

func pong(ping []byte) []byte {
	out := make([]byte, len(ping))
	copy(out, ping)
	out[0] = eioPong
	return out
}

// errorMessage pulls a readable reason out of an ERROR packet body, which
// is either a JSON string or an object with a "message" field.
func errorMessage(data []byte) string {
	if len(data) == 0 {
		return "unknown error"
	}
	res := gjson.ParseBytes(data)
	if res.Type == gjson.String {
		return res.Str
	}
	if m := res.Get("message"); m.Type == gjson.String {
		return m.Str
	}
	return string(data)
}

func truncate(b []byte) string {
	const max = 128
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
