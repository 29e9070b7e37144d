package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/runreveal/hark"
)

type OptFunc func(*Opts)

type Opts struct {
	broker   string
	clientID string
	topic    string

	userName string
	password string

	qos       byte
	retained  bool
	keepAlive time.Duration
}

func WithBroker(broker string) func(*Opts) {
	return func(opts *Opts) {
		opts.broker = broker
	}
}

func WithClientID(clientID string) func(*Opts) {
	return func(opts *Opts) {
		opts.clientID = clientID
	}
}

func WithTopic(topic string) func(*Opts) {
	return func(opts *Opts) {
		if topic == "" {
			opts.topic = "#"
		} else {
			opts.topic = topic
		}
	}
}

func WithKeepAlive(keepAlive time.Duration) func(*Opts) {
	return func(opts *Opts) {
		opts.keepAlive = keepAlive
	}
}

func WithQOS(qos byte) func(*Opts) {
	return func(opts *Opts) {
		opts.qos = qos
	}
}

func WithRetained(retained bool) func(*Opts) {
	return func(opts *Opts) {
		opts.retained = retained
	}
}

func WithUserName(userName string) func(*Opts) {
	return func(opts *Opts) {
		opts.userName = userName
	}
}

func WithPassword(password string) func(*Opts) {
	return func(opts *Opts) {
		opts.password = password
	}
}

type Destination struct {
	client MQTT.Client
	cfg    Opts
	errc   chan error
}

func loadOpts(opts []OptFunc) Opts {
	cfg := Opts{
		topic:     "#",
		retained:  false,
		qos:       1,
		keepAlive: 30 * time.Second,
	}

	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

func NewDestination(opts ...OptFunc) (*Destination, error) {
	ret := &Destination{
		cfg:  loadOpts(opts),
		errc: make(chan error, 1),
	}

	var err error
	ret.client, err = clientConnect(ret.cfg, lostHandler(ret.errc))
	if err != nil {
		return nil, err
	}

	return ret, nil
}

// NewDestinationClient publishes through an already connected client.
// Broker, credentials and the connection-lost handler are the caller's.
func NewDestinationClient(client MQTT.Client, opts ...OptFunc) *Destination {
	return &Destination{
		client: client,
		cfg:    loadOpts(opts),
		errc:   make(chan error, 1),
	}
}

// lostHandler reports the first lost connection on errc.  paho calls the
// handler from its own goroutine, so it must never block.
func lostHandler(errc chan error) MQTT.ConnectionLostHandler {
	return func(client MQTT.Client, err error) {
		select {
		case errc <- fmt.Errorf("mqtt connection lost: %w", err):
		default:
		}
	}
}

func clientConnect(opts Opts, onLost MQTT.ConnectionLostHandler) (MQTT.Client, error) {
	if opts.broker == "" {
		return nil, errors.New("mqtt: missing broker")
	}
	if opts.clientID == "" {
		return nil, errors.New("mqtt: missing clientID")
	}

	clientOpts := MQTT.NewClientOptions().
		AddBroker(opts.broker).
		SetClientID(opts.clientID).
		SetConnectionLostHandler(onLost).
		SetKeepAlive(opts.keepAlive)

	if opts.userName != "" {
		clientOpts = clientOpts.SetUsername(opts.userName)
	}
	if opts.password != "" {
		clientOpts = clientOpts.SetPassword(opts.password)
	}

	slog.Debug("connecting to mqtt broker", "broker", opts.broker, "clientID", opts.clientID)
	client := MQTT.NewClient(clientOpts)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	return client, nil
}

func (dest *Destination) Run(ctx context.Context) error {
	var err error
	select {
	case err = <-dest.errc:
	case <-ctx.Done():
		err = ctx.Err()
	}
	dest.client.Disconnect(1000)
	return err
}

func (dest *Destination) Send(ctx context.Context, ack func(), msgs ...hark.Message[[]byte]) error {
	for _, msg := range msgs {
		token := dest.client.Publish(dest.cfg.topic, dest.cfg.qos, dest.cfg.retained, msg.Value)
		select {
		case <-token.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
		if token.Error() != nil {
			return fmt.Errorf("mqtt publish: %w", token.Error())
		}
	}
	hark.Ack(ack)
	return nil
}

type Source struct {
	msgC   chan hark.MsgAck[[]byte]
	cfg    Opts
	errc   chan error
	client MQTT.Client
}

func NewSource(opts ...OptFunc) (*Source, error) {
	ret := NewSourceClient(nil, opts...)

	var err error
	ret.client, err = clientConnect(ret.cfg, lostHandler(ret.errc))
	if err != nil {
		return nil, err
	}

	return ret, nil
}

// NewSourceClient subscribes through an already connected client.
func NewSourceClient(client MQTT.Client, opts ...OptFunc) *Source {
	return &Source{
		msgC:   make(chan hark.MsgAck[[]byte]),
		cfg:    loadOpts(opts),
		errc:   make(chan error, 1),
		client: client,
	}
}

func (src *Source) Run(ctx context.Context) error {
	return src.recvLoop(ctx)
}

func (src *Source) recvLoop(ctx context.Context) error {
	newMessage := func(client MQTT.Client, message MQTT.Message) {
		select {
		case src.msgC <- hark.MsgAck[[]byte]{
			Msg: hark.Message[[]byte]{
				Value: message.Payload(),
				Key:   strconv.FormatUint(uint64(message.MessageID()), 10),
				Topic: message.Topic(),
			},
			Ack: message.Ack,
		}:
		case <-ctx.Done():
			return
		}
	}

	token := src.client.Subscribe(src.cfg.topic, src.cfg.qos, newMessage)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("mqtt subscribe: %w", token.Error())
	}

	defer src.client.Unsubscribe(src.cfg.topic)
	defer src.client.Disconnect(250)

	select {
	case err := <-src.errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (src *Source) Recv(ctx context.Context) (hark.Message[[]byte], func(), error) {
	select {
	case <-ctx.Done():
		return hark.Message[[]byte]{}, nil, ctx.Err()
	case pass := <-src.msgC:
		return pass.Msg, pass.Ack, nil
	}
}
