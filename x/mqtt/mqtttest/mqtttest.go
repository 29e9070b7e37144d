// Package mqtttest provides an in-memory paho client for tests that need
// an MQTT connection without a broker.
package mqtttest

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
)

// Publication is one message handed to Client.Publish.
type Publication struct {
	Topic    string
	QOS      byte
	Retained bool
	Payload  []byte
}

// Client records publications and routes delivered messages to the
// handlers registered with Subscribe.  Methods it does not override panic
// through the nil embedded interface.
type Client struct {
	MQTT.Client

	// PublishErr, when set, fails every publish.
	PublishErr error

	mu           sync.Mutex
	published    []Publication
	handlers     map[string]MQTT.MessageHandler
	disconnected bool
	nextID       uint16
}

func NewClient() *Client {
	return &Client{handlers: map[string]MQTT.MessageHandler{}}
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.disconnected
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload interface{}) MQTT.Token {
	var bts []byte
	switch p := payload.(type) {
	case []byte:
		bts = append([]byte(nil), p...)
	case string:
		bts = []byte(p)
	default:
		return done(errors.New("mqtttest: unsupported payload type"))
	}
	if c.PublishErr != nil {
		return done(c.PublishErr)
	}
	c.mu.Lock()
	c.published = append(c.published, Publication{Topic: topic, QOS: qos, Retained: retained, Payload: bts})
	c.mu.Unlock()
	return done(nil)
}

func (c *Client) Subscribe(topic string, qos byte, callback MQTT.MessageHandler) MQTT.Token {
	c.mu.Lock()
	c.handlers[topic] = callback
	c.mu.Unlock()
	return done(nil)
}

func (c *Client) Unsubscribe(topics ...string) MQTT.Token {
	c.mu.Lock()
	for _, t := range topics {
		delete(c.handlers, t)
	}
	c.mu.Unlock()
	return done(nil)
}

func (c *Client) Disconnect(quiesce uint) {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

// Published returns a copy of everything published so far.
func (c *Client) Published() []Publication {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Publication(nil), c.published...)
}

// Subscribed reports whether a handler is registered for topic.
func (c *Client) Subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handlers[topic]
	return ok
}

// Deliver hands payload to the handler subscribed on topic and blocks
// until the handler returns.  It returns nil when nothing is subscribed.
func (c *Client) Deliver(topic string, payload []byte) *Message {
	c.mu.Lock()
	h, ok := c.handlers[topic]
	c.nextID++
	id := c.nextID
	c.mu.Unlock()
	if !ok {
		return nil
	}
	msg := &Message{topic: topic, payload: payload, id: id}
	h(c, msg)
	return msg
}

// Message is a delivered message that remembers whether it was acked.
type Message struct {
	topic   string
	payload []byte
	id      uint16
	acked   atomic.Bool
}

func (m *Message) Duplicate() bool   { return false }
func (m *Message) Qos() byte         { return 1 }
func (m *Message) Retained() bool    { return false }
func (m *Message) Topic() string     { return m.topic }
func (m *Message) MessageID() uint16 { return m.id }
func (m *Message) Payload() []byte   { return m.payload }
func (m *Message) Ack()              { m.acked.Store(true) }
func (m *Message) Acked() bool       { return m.acked.Load() }

type token struct {
	err  error
	done chan struct{}
}

func done(err error) *token {
	t := &token{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *token) Wait() bool                     { return true }
func (t *token) WaitTimeout(time.Duration) bool { return true }
func (t *token) Done() <-chan struct{}          { return t.done }
func (t *token) Error() error                   { return t.err }
