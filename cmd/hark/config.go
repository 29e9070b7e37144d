package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/runreveal/hark"
	mqttdst "github.com/runreveal/hark/internal/destinations/mqtt"
	natsdst "github.com/runreveal/hark/internal/destinations/nats"
	"github.com/runreveal/hark/internal/destinations/printer"
	"github.com/runreveal/hark/internal/destinations/sqs"
	"github.com/runreveal/hark/internal/destinations/webhook"
	mqttsrc "github.com/runreveal/hark/internal/sources/mqtt"
	"github.com/runreveal/hark/internal/sources/scanner"
	"github.com/runreveal/hark/internal/sources/streamlabs"
	"github.com/runreveal/hark/internal/types"
	"github.com/runreveal/hark/x/mqtt"
	"github.com/runreveal/lib/loader"
)

func init() {
	loader.Register("streamlabs", func() loader.Builder[hark.Source[types.Event]] {
		return &StreamlabsConfig{}
	})
	loader.Register("scanner", func() loader.Builder[hark.Source[types.Event]] {
		return &ScannerConfig{}
	})
	// Registered names are shared across sources and destinations.
	loader.Register("mqtt-relay", func() loader.Builder[hark.Source[types.Event]] {
		return &MQTTSrcConfig{}
	})

	loader.Register("printer", func() loader.Builder[hark.Destination[types.Alert]] {
		return &PrinterConfig{}
	})
	loader.Register("webhook", func() loader.Builder[hark.Destination[types.Alert]] {
		return &WebhookConfig{}
	})
	loader.Register("mqtt", func() loader.Builder[hark.Destination[types.Alert]] {
		return &MQTTDestConfig{}
	})
	loader.Register("sqs", func() loader.Builder[hark.Destination[types.Alert]] {
		return &SQSConfig{}
	})
	loader.Register("nats", func() loader.Builder[hark.Destination[types.Alert]] {
		return &NATSConfig{}
	})
}

type StreamlabsConfig struct {
	URL              string `json:"url"`
	Token            string `json:"token"`
	Protocol         int    `json:"protocol"`
	HandshakeTimeout string `json:"handshakeTimeout"`
}

func (c *StreamlabsConfig) Configure() (hark.Source[types.Event], error) {
	slog.Info("configuring streamlabs")
	token := c.Token
	if token == "" {
		token = os.Getenv(tokenEnv)
	}
	opts := []streamlabs.Option{streamlabs.WithToken(token)}
	if c.URL != "" {
		opts = append(opts, streamlabs.WithURL(c.URL))
	}
	if c.Protocol != 0 {
		opts = append(opts, streamlabs.WithProtocol(c.Protocol))
	}
	if c.HandshakeTimeout != "" {
		d, err := time.ParseDuration(c.HandshakeTimeout)
		if err != nil {
			return nil, fmt.Errorf("handshakeTimeout: %w", err)
		}
		opts = append(opts, streamlabs.WithHandshakeTimeout(d))
	}
	return streamlabs.New(opts...)
}

type ScannerConfig struct {
	// Path to read from; stdin when empty.
	Path string `json:"path"`
}

func (c *ScannerConfig) Configure() (hark.Source[types.Event], error) {
	slog.Info("configuring scanner")
	if c.Path == "" {
		return scanner.NewScanner(os.Stdin), nil
	}
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, err
	}
	return scanner.NewScanner(f), nil
}

type MQTTSrcConfig struct {
	Broker   string `json:"broker"`
	ClientID string `json:"clientID"`
	Topic    string `json:"topic"`
	UserName string `json:"userName"`
	Password string `json:"password"`
	QOS      byte   `json:"qos"`
}

func (c *MQTTSrcConfig) Configure() (hark.Source[types.Event], error) {
	slog.Info("configuring mqtt source")
	return mqttsrc.NewMQTT(
		mqtt.WithBroker(c.Broker),
		mqtt.WithClientID(c.ClientID),
		mqtt.WithTopic(c.Topic),
		mqtt.WithUserName(c.UserName),
		mqtt.WithPassword(c.Password),
		mqtt.WithQOS(c.QOS),
	)
}

type PrinterConfig struct {
}

func (c *PrinterConfig) Configure() (hark.Destination[types.Alert], error) {
	slog.Info("configuring printer")
	return printer.NewPrinter(os.Stdout), nil
}

type WebhookConfig struct {
	URL            string            `json:"url"`
	BatchSize      int               `json:"batchSize"`
	FlushFrequency string            `json:"flushFrequency"`
	Headers        map[string]string `json:"headers"`
}

func (c *WebhookConfig) Configure() (hark.Destination[types.Alert], error) {
	slog.Info("configuring webhook")
	opts := []webhook.Option{
		webhook.WithURL(c.URL),
		webhook.WithBatchSize(c.BatchSize),
	}
	if c.FlushFrequency != "" {
		d, err := time.ParseDuration(c.FlushFrequency)
		if err != nil {
			return nil, fmt.Errorf("flushFrequency: %w", err)
		}
		opts = append(opts, webhook.WithFlushFrequency(d))
	}
	for k, v := range c.Headers {
		opts = append(opts, webhook.WithHeader(k, v))
	}
	return webhook.New(opts...), nil
}

type MQTTDestConfig struct {
	Broker   string `json:"broker"`
	ClientID string `json:"clientID"`
	Topic    string `json:"topic"`
	UserName string `json:"userName"`
	Password string `json:"password"`
	QOS      byte   `json:"qos"`
	Retained bool   `json:"retained"`
}

func (c *MQTTDestConfig) Configure() (hark.Destination[types.Alert], error) {
	slog.Info("configuring mqtt destination")
	topic := c.Topic
	if topic == "" {
		// Wildcards are not valid publish topics.
		topic = "hark/alerts"
	}
	return mqttdst.NewMQTT(
		mqtt.WithBroker(c.Broker),
		mqtt.WithClientID(c.ClientID),
		mqtt.WithTopic(topic),
		mqtt.WithUserName(c.UserName),
		mqtt.WithPassword(c.Password),
		mqtt.WithQOS(c.QOS),
		mqtt.WithRetained(c.Retained),
	)
}

type SQSConfig struct {
	QueueURL        string `json:"queueURL"`
	Region          string `json:"region"`
	CustomEndpoint  string `json:"customEndpoint"`
	AccessKeyID     string `json:"accessKeyID"`
	AccessSecretKey string `json:"accessSecretKey"`
	BatchSize       int    `json:"batchSize"`
}

func (c *SQSConfig) Configure() (hark.Destination[types.Alert], error) {
	slog.Info("configuring sqs")
	return sqs.New(
		sqs.WithQueueURL(c.QueueURL),
		sqs.WithRegion(c.Region),
		sqs.WithCustomEndpoint(c.CustomEndpoint),
		sqs.WithAccessKeyID(c.AccessKeyID),
		sqs.WithAccessSecretKey(c.AccessSecretKey),
		sqs.WithBatchSize(c.BatchSize),
	), nil
}

type NATSConfig struct {
	URL     string `json:"url"`
	Subject string `json:"subject"`
}

func (c *NATSConfig) Configure() (hark.Destination[types.Alert], error) {
	slog.Info("configuring nats")
	var opts []natsdst.Option
	if c.URL != "" {
		opts = append(opts, natsdst.WithURL(c.URL))
	}
	if c.Subject != "" {
		opts = append(opts, natsdst.WithSubject(c.Subject))
	}
	return natsdst.New(opts...)
}
