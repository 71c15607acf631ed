package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// publishClient is the part of mqtt.Client the publisher needs.
type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher forwards bus events to an MQTT broker, one message per
// event on <prefix>/<stream>/<type>.
type MQTTPublisher struct {
	client publishClient
	prefix string
	qos    byte
}

// DialMQTT connects to broker (e.g. "tcp://localhost:1883").
func DialMQTT(broker, clientID, prefix string) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		log.Warn("mqtt connection to %s lost: %v", broker, err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, errors.Errorf("mqtt: connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "mqtt: connect to %s", broker)
	}
	log.Info("Connected to MQTT broker %s", broker)

	return newMQTTPublisher(client, prefix), nil
}

func newMQTTPublisher(client publishClient, prefix string) *MQTTPublisher {
	return &MQTTPublisher{client: client, prefix: prefix}
}

func (p *MQTTPublisher) topic(e Event) string {
	stream := e.Stream
	if stream == "" {
		stream = "engine"
	}
	return fmt.Sprintf("%s/%s/%s", p.prefix, stream, e.Type)
}

// Publish sends a single event.
func (p *MQTTPublisher) Publish(e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "mqtt: marshal event")
	}

	token := p.client.Publish(p.topic(e), p.qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("mqtt: publish timed out")
	}
	return errors.Wrap(token.Error(), "mqtt: publish")
}

// Run publishes events from sub until it is closed or ctx is done.
func (p *MQTTPublisher) Run(ctx context.Context, sub <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			if err := p.Publish(e); err != nil {
				log.Warn("%v", err)
			}
		}
	}
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
