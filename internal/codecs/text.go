package codecs

import (
	"strings"
	"time"

	"github.com/lanikai/alohaplay/internal/buffer"
	"github.com/lanikai/alohaplay/internal/media"
)

// Display time used when an element carries none in Info[0] (milliseconds).
const defaultSubtitleDuration = 4 * time.Second

// textDecoder forwards plain-text subtitles, one line set per element.
type textDecoder struct {
	out media.Output
	typ buffer.Type
}

func newTextDecoder(out media.Output, t buffer.Type) media.Decoder {
	return &textDecoder{out: out, typ: t}
}

func (d *textDecoder) Decode(e *buffer.Element) error {
	text := strings.TrimRight(string(e.Content), "\x00\r\n ")
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")

	duration := defaultSubtitleDuration
	if e.Info[0] > 0 {
		duration = time.Duration(e.Info[0]) * time.Millisecond
	}

	return emit(d.out, buffer.ClassSPU, &media.Frame{
		Class:    buffer.ClassSPU,
		Type:     d.typ,
		PTS:      e.PTS,
		Duration: duration,
		Data:     []byte(text),
	})
}

func (d *textDecoder) Reset()         {}
func (d *textDecoder) Discontinuity() {}
func (d *textDecoder) Flush()         {}
func (d *textDecoder) Close() error   { return nil }
