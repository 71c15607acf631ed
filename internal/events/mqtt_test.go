package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	published    chan message
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.published <- message{topic, payload.([]byte)}
	return doneToken{}
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.disconnected = true
}

func TestMQTTPublisherRun(t *testing.T) {
	client := &fakeClient{published: make(chan message, 4)}
	p := newMQTTPublisher(client, "alohaplay")

	var b Bus
	sub := b.Subscribe(4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, sub)
		close(done)
	}()

	b.Publish(Event{Type: CodecUnhandled, Stream: "abc", Codec: "VP8"})
	b.Publish(Event{Type: SpeedChanged, Speed: 0})

	m := <-client.published
	assert.Equal(t, "alohaplay/abc/codec-unhandled", m.topic)
	var e Event
	require.NoError(t, json.Unmarshal(m.payload, &e))
	assert.Equal(t, CodecUnhandled, e.Type)
	assert.Equal(t, "VP8", e.Codec)

	m = <-client.published
	assert.Equal(t, "alohaplay/engine/speed-changed", m.topic)

	cancel()
	<-done
	p.Close()
	assert.True(t, client.disconnected)
}
