//////////////////////////////////////////////////////////////////////////////
//
// PCM μ-law (ITU-T G.711) audio decoder. This codec supports 8 kHz audio only.
//
// Copyright 2019 Lanikai Labs LLC. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package codecs

import (
	"encoding/binary"
	"time"

	"github.com/lanikai/alohaplay/internal/buffer"
	"github.com/lanikai/alohaplay/internal/media"
)

const pcmuSampleRate = 8000

// pcmuDecoder implements the Decoder interface for PCM μ-law
type pcmuDecoder struct {
	out media.Output
	typ buffer.Type
}

func newPCMUDecoder(out media.Output, t buffer.Type) media.Decoder {
	return &pcmuDecoder{out: out, typ: t}
}

// Decode μ-law encoded samples into plain audio.
// Decodes each 8-bit sample into a 14-bit signed linear audio sample,
// normalized into a 16-bit signed linear audio sample. Thus, the output
// buffer will be twice the length of the input buffer.
func (d *pcmuDecoder) Decode(e *buffer.Element) error {
	if e.Flags.Has(buffer.FlagHeader) || len(e.Content) == 0 {
		return nil
	}

	pcm := make([]byte, 2*len(e.Content))
	for i, sample := range e.Content {
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(ulaw2linear(sample)))
	}

	return emit(d.out, buffer.ClassAudio, &media.Frame{
		Class:    buffer.ClassAudio,
		Type:     d.typ,
		PTS:      e.PTS,
		Duration: time.Duration(len(e.Content)) * time.Second / pcmuSampleRate,
		Data:     pcm,
	})
}

func (d *pcmuDecoder) Reset()         {}
func (d *pcmuDecoder) Discontinuity() {}
func (d *pcmuDecoder) Flush()         {}
func (d *pcmuDecoder) Close() error   { return nil }

func ulaw2linear(u byte) int16 {
	u = ^u
	t := int16(u&0x0f)<<3 + 0x84
	t <<= (u & 0x70) >> 4
	if u&0x80 != 0 {
		return 0x84 - t
	}
	return t - 0x84
}
