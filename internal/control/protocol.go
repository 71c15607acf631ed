package control

import (
	"encoding/json"

	"github.com/lanikai/alohaplay/internal/buffer"
	"github.com/lanikai/alohaplay/internal/decoder"
	"github.com/lanikai/alohaplay/internal/events"
	"github.com/lanikai/alohaplay/internal/ticket"
)

// Commands accepted on the control socket. Requests are JSON objects of
// the form
//   { "id": 1, "cmd": "speed", "value": 8 }
//   { "id": 2, "cmd": "rewire", "class": "audio", "port": "null" }
//   { "id": 3, "cmd": "audio_channel", "stream": "...", "value": 1 }
// and are answered with { "id": ..., "ok": true, "data": ... } or
// { "id": ..., "ok": false, "error": "..." }. Events are pushed as
// { "event": { ... } }.
const (
	cmdPause        = "pause"
	cmdResume       = "resume"
	cmdSpeed        = "speed"
	cmdRewire       = "rewire"
	cmdAudioChannel = "audio_channel"
	cmdSPUChannel   = "spu_channel"
	cmdStats        = "stats"
)

type request struct {
	ID     int    `json:"id"`
	Cmd    string `json:"cmd"`
	Stream string `json:"stream,omitempty"`
	Value  int    `json:"value,omitempty"`
	Class  string `json:"class,omitempty"`
	Port   string `json:"port,omitempty"`
}

type response struct {
	ID    int             `json:"id"`
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type push struct {
	Event events.Event `json:"event"`
}

type engineStats struct {
	Speed   int          `json:"speed"`
	Streams []string     `json:"streams"`
	Ticket  ticket.Stats `json:"ticket"`
	Dropped uint64       `json:"dropped_events"`
}

type streamStats struct {
	decoder.Stats
	AudioChannel int      `json:"audio_channel"`
	SPUChannel   int      `json:"spu_channel"`
	AudioTracks  []string `json:"audio_tracks"`
	SPUTracks    []string `json:"spu_tracks"`
	EverBound    bool     `json:"ever_bound"`
}

func trackNames(types []buffer.Type) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	return names
}

func parseClass(s string) (buffer.Class, bool) {
	for _, c := range []buffer.Class{buffer.ClassAudio, buffer.ClassVideo, buffer.ClassSPU} {
		if c.String() == s {
			return c, true
		}
	}
	return 0, false
}
