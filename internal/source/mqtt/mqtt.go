// Package mqtt receives raw packets relayed by a LoRa gateway over MQTT. Each
// message payload is one packet exactly as received over the air.
package mqtt

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// Config describes the broker subscription.
type Config struct {
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	QoS      byte   `mapstructure:"qos"`
	Buffer   int    `mapstructure:"buffer"`
}

// Source subscribes to a topic and queues message payloads.
type Source struct {
	client  paho.Client
	topic   string
	qos     byte
	packets chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

// New builds a source. Call Start to connect.
func New(cfg Config) *Source {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	return newWithClient(cfg, func(s *Source) paho.Client {
		opts.SetOnConnectHandler(s.onConnect)
		opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
			logrus.WithError(err).Warn("mqtt connection lost")
		})
		return paho.NewClient(opts)
	})
}

func newWithClient(cfg Config, build func(*Source) paho.Client) *Source {
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	s := &Source{
		topic:   cfg.Topic,
		qos:     cfg.QoS,
		packets: make(chan []byte, buffer),
		done:    make(chan struct{}),
	}
	s.client = build(s)
	return s
}

// Start connects to the broker. Subscription happens in the connect handler
// so it is renewed after reconnects.
func (s *Source) Start(ctx context.Context) error {
	tok := s.client.Connect()
	select {
	case <-tok.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func (s *Source) onConnect(c paho.Client) {
	logrus.WithField("topic", s.topic).Info("mqtt connected, subscribing")
	tok := c.Subscribe(s.topic, s.qos, s.handle)
	go func() {
		tok.Wait()
		if err := tok.Error(); err != nil {
			logrus.WithError(err).WithField("topic", s.topic).Error("mqtt subscribe failed")
		}
	}()
}

func (s *Source) handle(_ paho.Client, msg paho.Message) {
	packet := append([]byte(nil), msg.Payload()...)
	select {
	case s.packets <- packet:
	case <-s.done:
	default:
		logrus.WithField("topic", msg.Topic()).Warn("packet queue full, dropping packet")
	}
}

// Next implements source.Source.
func (s *Source) Next(ctx context.Context) ([]byte, error) {
	select {
	case p := <-s.packets:
		return p, nil
	case <-s.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close disconnects from the broker and ends Next with io.EOF.
func (s *Source) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.client != nil && s.client.IsConnected() {
			s.client.Disconnect(250)
		}
	})
}
