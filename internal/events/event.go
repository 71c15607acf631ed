// Package events carries stream notifications from decoder loops to
// listeners such as the control plane and the MQTT publisher.
package events

import (
	"fmt"
	"time"

	"github.com/lanikai/alohaplay/internal/buffer"
	"github.com/lanikai/alohaplay/internal/logging"
)

var log = logging.DefaultLogger.WithTag("events")

type Type int

const (
	// The set of audio or SPU channels changed, or a channel hint arrived.
	ChannelsChanged Type = iota + 1
	// Both decoder loops passed the end of stream.
	Finished
	// No decoder could be opened for a data type.
	CodecUnhandled
	// Playback speed changed. Pause is speed zero.
	SpeedChanged
	// An output port was replaced.
	PortRewired
)

var typeNames = map[Type]string{
	ChannelsChanged: "channels-changed",
	Finished:        "finished",
	CodecUnhandled:  "codec-unhandled",
	SpeedChanged:    "speed-changed",
	PortRewired:     "port-rewired",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("event(%d)", int(t))
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	for k, v := range typeNames {
		if v == string(b) {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("unknown event type %q", b)
}

// An Event is a notification about one stream.
type Event struct {
	Type   Type      `json:"type"`
	Stream string    `json:"stream,omitempty"`
	Time   time.Time `json:"time"`

	Class buffer.Class `json:"class,omitempty"`
	Codec string       `json:"codec,omitempty"`
	Speed int          `json:"speed,omitempty"`
}

func (e Event) String() string {
	s := e.Type.String()
	if e.Stream != "" {
		s += " stream=" + e.Stream
	}
	if e.Codec != "" {
		s += " codec=" + e.Codec
	}
	return s
}
