package control

import (
	"encoding/json"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/alohaplay/internal/buffer"
	"github.com/lanikai/alohaplay/internal/decoder"
	"github.com/lanikai/alohaplay/internal/engine"
	"github.com/lanikai/alohaplay/internal/events"
	"github.com/lanikai/alohaplay/internal/media"
)

type testClient struct {
	t    *testing.T
	ws   *websocket.Conn
	next int
}

func dial(t *testing.T, url string) *testClient {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return &testClient{t: t, ws: ws}
}

// call sends a request and returns its response, collecting pushed events
// that arrive in between.
func (c *testClient) call(req request, pushed *[]events.Event) response {
	c.t.Helper()
	c.next++
	req.ID = c.next
	require.NoError(c.t, c.ws.WriteJSON(req))

	c.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg map[string]json.RawMessage
		require.NoError(c.t, c.ws.ReadJSON(&msg))
		if raw, ok := msg["event"]; ok {
			var ev events.Event
			require.NoError(c.t, json.Unmarshal(raw, &ev))
			if pushed != nil {
				*pushed = append(*pushed, ev)
			}
			continue
		}
		var resp response
		b, _ := json.Marshal(msg)
		require.NoError(c.t, json.Unmarshal(b, &resp))
		require.Equal(c.t, req.ID, resp.ID)
		return resp
	}
}

func newTestServer(t *testing.T) (*engine.Engine, *media.QueuePort, *media.QueuePort, *httptest.Server) {
	t.Helper()
	cfg := decoder.DefaultConfig()
	cfg.AudioBuffers = 16
	cfg.VideoBuffers = 16
	cfg.BufferSize = 256

	speaker := media.NewQueuePort("speaker", 8, false, nil)
	null := media.NewQueuePort("null", 8, false, nil)
	e, err := engine.New(engine.Config{Decoder: cfg, AudioPort: speaker})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	srv := NewServer(e, map[string]media.Port{"speaker": speaker, "null": null}, 4)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return e, speaker, null, ts
}

func TestPauseResume(t *testing.T) {
	e, speaker, _, ts := newTestServer(t)
	c := dial(t, ts.URL)

	var pushed []events.Event
	resp := c.call(request{Cmd: cmdPause}, &pushed)
	assert.True(t, resp.OK, resp.Error)
	assert.Equal(t, media.SpeedPause, e.Speed())
	assert.Equal(t, media.SpeedPause, speaker.Speed())

	resp = c.call(request{Cmd: cmdStats}, &pushed)
	require.True(t, resp.OK, resp.Error)
	var st engineStats
	require.NoError(t, json.Unmarshal(resp.Data, &st))
	assert.Equal(t, media.SpeedPause, st.Speed)
	assert.Equal(t, 1, st.Ticket.PendingRevocations)

	resp = c.call(request{Cmd: cmdResume}, &pushed)
	assert.True(t, resp.OK, resp.Error)
	assert.Equal(t, media.SpeedNormal, e.Speed())

	// Events are pushed asynchronously; poll until they show up.
	sawPause := func() bool {
		for _, ev := range pushed {
			if ev.Type == events.SpeedChanged && ev.Speed == media.SpeedPause {
				return true
			}
		}
		return false
	}
	for i := 0; i < 100 && !sawPause(); i++ {
		time.Sleep(10 * time.Millisecond)
		c.call(request{Cmd: cmdStats}, &pushed)
	}
	assert.True(t, sawPause())
}

func TestRewireCommand(t *testing.T) {
	e, speaker, null, ts := newTestServer(t)
	c := dial(t, ts.URL)

	s, err := e.NewStream()
	require.NoError(t, err)

	resp := c.call(request{Cmd: cmdRewire, Class: "audio", Port: "null"}, nil)
	require.True(t, resp.OK, resp.Error)
	assert.Same(t, null, e.Port(buffer.ClassAudio))
	assert.Equal(t, 0, speaker.NumStreams())
	assert.Equal(t, 1, null.NumStreams())

	resp = c.call(request{Cmd: cmdRewire, Class: "audio", Port: "hdmi"}, nil)
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "unknown port")

	resp = c.call(request{Cmd: cmdRewire, Class: "smell", Port: "null"}, nil)
	assert.False(t, resp.OK)

	resp = c.call(request{Cmd: cmdStats, Stream: s.ID}, nil)
	require.True(t, resp.OK, resp.Error)
	var st streamStats
	require.NoError(t, json.Unmarshal(resp.Data, &st))
	assert.Equal(t, decoder.ChannelAuto, st.AudioChannel)
}

func TestChannelCommands(t *testing.T) {
	e, _, _, ts := newTestServer(t)
	c := dial(t, ts.URL)

	s, err := e.NewStream()
	require.NoError(t, err)

	resp := c.call(request{Cmd: cmdAudioChannel, Stream: s.ID, Value: 2}, nil)
	require.True(t, resp.OK, resp.Error)
	assert.Equal(t, 2, s.AudioChannel())

	resp = c.call(request{Cmd: cmdSPUChannel, Stream: s.ID, Value: decoder.ChannelOff}, nil)
	require.True(t, resp.OK, resp.Error)
	assert.Equal(t, decoder.ChannelOff, s.SPUChannel())

	resp = c.call(request{Cmd: cmdAudioChannel, Stream: "nope", Value: 1}, nil)
	assert.False(t, resp.OK)

	resp = c.call(request{Cmd: "eject"}, nil)
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "unknown command")

	resp = c.call(request{Cmd: cmdSpeed, Value: 5}, nil)
	assert.False(t, resp.OK)
}

func TestListenLimitsConnections(t *testing.T) {
	e, _, _, _ := newTestServer(t)
	srv := NewServer(e, nil, 1)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	done := make(chan error, 1)
	go func() { done <- srv.Listen(addr) }()

	var ws *websocket.Conn
	require.Eventually(t, func() bool {
		ws, _, err = websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	defer ws.Close()

	// The second connection is accepted by the kernel but not served.
	dialer := websocket.Dialer{HandshakeTimeout: 100 * time.Millisecond}
	_, _, err = dialer.Dial("ws://"+addr+"/ws", nil)
	assert.Error(t, err)

	require.NoError(t, srv.Shutdown(t.Context()))
	assert.NoError(t, <-done)
}
