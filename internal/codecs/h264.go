package codecs

import (
	"bytes"
	"time"

	"github.com/lanikai/alohaplay/internal/buffer"
	"github.com/lanikai/alohaplay/internal/codecs/h264"
	"github.com/lanikai/alohaplay/internal/media"
)

// Frame rate assumed until a demuxer supplies one in Info[0] (frames per
// second) of a header element.
const defaultFrameRate = 30

// h264Decoder assembles access units from Annex B elements. An access unit
// ends at an element flagged FrameEnd; its NAL units are forwarded as one
// frame prefixed with the most recent parameter sets when it holds an IDR
// slice.
type h264Decoder struct {
	out media.Output
	typ buffer.Type

	frameDuration time.Duration

	au  bytes.Buffer
	pts int64

	sps, pps []byte

	// Access units are dropped until the first IDR after a discontinuity.
	waitKeyframe bool
}

func newH264Decoder(out media.Output, t buffer.Type) media.Decoder {
	return &h264Decoder{
		out:           out,
		typ:           t,
		frameDuration: time.Second / defaultFrameRate,
		waitKeyframe:  true,
	}
}

func (d *h264Decoder) Decode(e *buffer.Element) error {
	if e.Flags.Has(buffer.FlagHeader) && e.Info[0] > 0 {
		d.frameDuration = time.Second / time.Duration(e.Info[0])
	}
	if e.Flags.Has(buffer.FlagFrameStart) {
		d.au.Reset()
		d.pts = e.PTS
	}
	if d.au.Len() == 0 && e.PTS != 0 {
		d.pts = e.PTS
	}
	d.au.Write(e.Content)

	if !e.Flags.Has(buffer.FlagFrameEnd) {
		return nil
	}
	return d.finishAccessUnit()
}

func (d *h264Decoder) finishAccessUnit() error {
	defer d.au.Reset()

	var frame bytes.Buffer
	keyframe := false
	for _, nalu := range h264.Units(d.au.Bytes()) {
		switch nalu.Type() {
		case h264.TypeSPS:
			d.sps = nalu
			continue
		case h264.TypePPS:
			d.pps = nalu
			continue
		case h264.TypeAUD:
			continue
		case h264.TypeIDR:
			if !keyframe && d.sps != nil && d.pps != nil {
				writeUnit(&frame, d.sps)
				writeUnit(&frame, d.pps)
			}
			keyframe = true
		}
		writeUnit(&frame, nalu)
	}

	if frame.Len() == 0 {
		return nil
	}
	if d.waitKeyframe {
		if !keyframe {
			log.Trace(0, "h264: dropping access unit before keyframe")
			return nil
		}
		d.waitKeyframe = false
	}

	return emit(d.out, buffer.ClassVideo, &media.Frame{
		Class:    buffer.ClassVideo,
		Type:     d.typ,
		PTS:      d.pts,
		Duration: d.frameDuration,
		Keyframe: keyframe,
		Data:     frame.Bytes(),
	})
}

func writeUnit(w *bytes.Buffer, nalu []byte) {
	w.Write([]byte{0, 0, 0, 1})
	w.Write(nalu)
}

func (d *h264Decoder) Reset() {
	d.au.Reset()
	d.waitKeyframe = true
}

func (d *h264Decoder) Discontinuity() {
	d.au.Reset()
	d.waitKeyframe = true
}

// Flush emits a partially assembled access unit.
func (d *h264Decoder) Flush() {
	if d.au.Len() > 0 {
		if err := d.finishAccessUnit(); err != nil {
			log.Warn("h264: flush: %v", err)
		}
	}
}

func (d *h264Decoder) Close() error {
	d.au.Reset()
	return nil
}
