package codecs

import (
	"time"

	"github.com/lanikai/alohaplay/internal/buffer"
	"github.com/lanikai/alohaplay/internal/media"
)

// Format carried in the Info fields of an LPCM header element.
const (
	lpcmInfoRate     = 1
	lpcmInfoBits     = 2
	lpcmInfoChannels = 3
)

// lpcmDecoder converts linear PCM to 16-bit little endian samples.
type lpcmDecoder struct {
	out       media.Output
	typ       buffer.Type
	bigEndian bool

	rate     int
	bits     int
	channels int

	// Bytes of an incomplete sample frame carried to the next element.
	pending []byte
}

func newLPCMDecoder(out media.Output, t buffer.Type) media.Decoder {
	return &lpcmDecoder{
		out:       out,
		typ:       t,
		bigEndian: t.Codec() == buffer.AudioLPCMBE,
		rate:      48000,
		bits:      16,
		channels:  2,
	}
}

func (d *lpcmDecoder) frameSize() int {
	return d.bits / 8 * d.channels
}

func (d *lpcmDecoder) Decode(e *buffer.Element) error {
	if e.Flags.Has(buffer.FlagHeader) {
		if rate := int(e.Info[lpcmInfoRate]); rate > 0 {
			d.rate = rate
		}
		if bits := int(e.Info[lpcmInfoBits]); bits == 8 || bits == 16 || bits == 24 {
			d.bits = bits
		}
		if channels := int(e.Info[lpcmInfoChannels]); channels > 0 {
			d.channels = channels
		}
		d.pending = d.pending[:0]
		log.Debug("lpcm: %d Hz, %d bits, %d channels", d.rate, d.bits, d.channels)
		return nil
	}

	data := append(d.pending, e.Content...)
	n := len(data) / d.frameSize() * d.frameSize()
	d.pending = append([]byte(nil), data[n:]...)
	if n == 0 {
		return nil
	}

	width := d.bits / 8
	samples := n / width
	pcm := make([]byte, 2*samples)
	for i := 0; i < samples; i++ {
		s := data[i*width : (i+1)*width]
		var hi, lo byte
		switch {
		case width == 1:
			// 8-bit PCM is unsigned.
			hi, lo = s[0]^0x80, 0
		case d.bigEndian:
			hi, lo = s[0], s[1]
		default:
			hi, lo = s[width-1], s[width-2]
		}
		pcm[2*i] = lo
		pcm[2*i+1] = hi
	}

	frames := n / d.frameSize()
	return emit(d.out, buffer.ClassAudio, &media.Frame{
		Class:    buffer.ClassAudio,
		Type:     d.typ,
		PTS:      e.PTS,
		Duration: time.Duration(frames) * time.Second / time.Duration(d.rate),
		Data:     pcm,
	})
}

func (d *lpcmDecoder) Reset() {
	d.pending = d.pending[:0]
}

func (d *lpcmDecoder) Discontinuity() {
	d.pending = d.pending[:0]
}

func (d *lpcmDecoder) Flush() {}

func (d *lpcmDecoder) Close() error {
	return nil
}
