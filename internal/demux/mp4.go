//////////////////////////////////////////////////////////////////////////////
//
// MP4 file demuxer
//
// Copyright 2019 Lanikai Labs. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package demux

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/nareix/joy4/av"
	"github.com/nareix/joy4/codec/h264parser"
	"github.com/nareix/joy4/format/mp4"
	errors "golang.org/x/xerrors"

	"github.com/lanikai/alohaplay/internal/buffer"
	"github.com/lanikai/alohaplay/internal/metronom"
)

var ErrNoStreams = errors.New("no playable streams")

// packetReader is the part of a joy4 demuxer used here.
type packetReader interface {
	Streams() ([]av.CodecData, error)
	ReadPacket() (av.Packet, error)
	SeekToTime(time.Duration) error
}

// MP4 is an open MP4 file.
type MP4 struct {
	name    string
	closer  io.Closer
	demuxer packetReader

	codecs []av.CodecData
	types  []buffer.Type
}

// OpenMP4 opens an MP4 file and reads its stream table.
func OpenMP4(filename string) (*MP4, error) {
	log.Info("Opening file %s", filename)
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	m, err := newMP4(filename, mp4.NewDemuxer(file), file)
	if err != nil {
		file.Close()
		return nil, err
	}
	return m, nil
}

func newMP4(name string, demuxer packetReader, closer io.Closer) (*MP4, error) {
	codecs, err := demuxer.Streams()
	if err != nil {
		return nil, errors.Errorf("%s: %w", name, err)
	}

	m := &MP4{
		name:    name,
		closer:  closer,
		demuxer: demuxer,
		codecs:  codecs,
		types:   make([]buffer.Type, len(codecs)),
	}

	// Audio channels are numbered in the order the tracks appear.
	var audioTracks uint32
	playable := 0
	for i, codec := range codecs {
		t := typeOf(codec.Type())
		switch t.Class() {
		case buffer.ClassAudio:
			t = t.WithChannel(uint16(audioTracks))
			audioTracks++
		case buffer.ClassVideo:
			if info, ok := codec.(av.VideoCodecData); ok {
				log.Info("%v stream: %dx%d", codec.Type(), info.Width(), info.Height())
			}
		default:
			log.Debug("Skipping %v stream", codec.Type())
			continue
		}
		m.types[i] = t
		playable++
	}
	if playable == 0 {
		return nil, errors.Errorf("%s: %w", name, ErrNoStreams)
	}
	return m, nil
}

// typeOf maps a joy4 codec to an element type. Codecs without a mapping
// yield zero and are skipped. Types nothing decodes are still forwarded,
// so the decoder loops can report them as unhandled.
func typeOf(c av.CodecType) buffer.Type {
	switch c {
	case av.H264:
		return buffer.VideoH264
	case av.AAC:
		return buffer.AudioAAC
	case av.PCM_MULAW:
		return buffer.AudioMULaw
	case av.PCM_ALAW:
		return buffer.AudioALaw
	}
	return 0
}

// Types returns the element type of each stream in the file. Skipped
// streams have type zero.
func (m *MP4) Types() []buffer.Type {
	return m.types
}

func (m *MP4) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer.Close()
}

// Play feeds the file into dst from start to end. It returns when the file
// is exhausted, the context is cancelled, or reading fails. The stream is
// always bracketed by start and end messages; the end message says whether
// playback reached the end of the file or was stopped.
func (m *MP4) Play(ctx context.Context, dst Target, opts Options) error {
	flags := buffer.Flags(0)
	if opts.Gapless {
		flags |= buffer.FlagGapless
	}
	dst.PutControl(buffer.ControlStart, flags, 0)

	if opts.Start > 0 {
		if err := m.demuxer.SeekToTime(opts.Start); err != nil {
			dst.PutControl(buffer.ControlEnd, buffer.FlagEndUser, 0)
			return errors.Errorf("%s: seek to %v: %w", m.name, opts.Start, err)
		}
		dst.PutControl(buffer.ControlNewPTS, buffer.FlagSeek, ticks(opts.Start))
	}

	m.putHeaders(dst)

	err := m.readLoop(ctx, dst, opts)
	switch {
	case err == io.EOF:
		dst.PutControl(buffer.ControlEnd, buffer.FlagEndStream, 0)
		return nil
	case ctx.Err() != nil:
		dst.PutControl(buffer.ControlEnd, buffer.FlagEndUser, 0)
		return ctx.Err()
	default:
		dst.PutControl(buffer.ControlEnd, buffer.FlagEndUser, 0)
		log.Error("Error reading packet from %s: %v", m.name, err)
		return err
	}
}

// putHeaders sends codec configuration ahead of the first packet.
func (m *MP4) putHeaders(dst Target) {
	for i, codec := range m.codecs {
		t := m.types[i]
		if t == 0 {
			continue
		}
		f := dst.Fifo(t.Class())
		switch cd := codec.(type) {
		case h264parser.CodecData:
			m.putPayload(f, t, annexB([][]byte{cd.SPS(), cd.PPS()}),
				buffer.FlagHeader|buffer.FlagFrameStart|buffer.FlagFrameEnd, 0)
		case av.AudioCodecData:
			e := f.Alloc()
			e.Type = t
			e.Flags = buffer.FlagHeader
			e.Info[1] = int32(cd.SampleRate())
			e.Info[2] = int32(cd.SampleFormat().BytesPerSample() * 8)
			e.Info[3] = int32(cd.ChannelLayout().Count())
			f.Put(e)
		}
	}
	dst.PutControl(buffer.ControlHeadersDone, 0, 0)
}

func (m *MP4) readLoop(ctx context.Context, dst Target, opts Options) error {
	// Wall clock offset to the first packet.
	var start time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pkt, err := m.demuxer.ReadPacket()
		if err != nil {
			return err
		}
		if int(pkt.Idx) >= len(m.types) || m.types[pkt.Idx] == 0 {
			continue
		}
		t := m.types[pkt.Idx]

		if opts.Realtime {
			if start.IsZero() {
				start = time.Now().Add(-pkt.Time)
			} else if d := time.Until(start.Add(pkt.Time)); d > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(d):
				}
			}
		}

		pts := ticks(pkt.Time + pkt.CompositionTime)
		data := pkt.Data
		flags := buffer.FlagFrameStart | buffer.FlagFrameEnd
		if pkt.IsKeyFrame {
			flags |= buffer.FlagKeyframe
		}
		if t.Codec() == buffer.VideoH264 {
			nalus, _ := h264parser.SplitNALUs(pkt.Data)
			data = annexB(nalus)
		}
		m.putPayload(dst.Fifo(t.Class()), t, data, flags, pts)
	}
}

// putPayload spreads data over as many elements as it takes. Frame start
// and key frame flags go on the first element, frame end on the last.
func (m *MP4) putPayload(f *buffer.Fifo, t buffer.Type, data []byte, flags buffer.Flags, pts int64) {
	first := true
	for first || len(data) > 0 {
		e := f.Alloc()
		n := len(data)
		if n > e.Capacity() {
			n = e.Capacity()
		}
		e.SetContent(data[:n])
		data = data[n:]

		e.Type = t
		e.Flags = flags &^ (buffer.FlagFrameStart | buffer.FlagFrameEnd | buffer.FlagKeyframe)
		if first {
			e.Flags |= flags & (buffer.FlagFrameStart | buffer.FlagKeyframe)
			e.PTS = pts
			first = false
		}
		if len(data) == 0 {
			e.Flags |= flags & buffer.FlagFrameEnd
		}
		f.Put(e)
	}
}

func annexB(nalus [][]byte) []byte {
	n := 0
	for _, nalu := range nalus {
		n += 4 + len(nalu)
	}
	b := make([]byte, 0, n)
	for _, nalu := range nalus {
		b = append(b, 0, 0, 0, 1)
		b = append(b, nalu...)
	}
	return b
}

// ticks converts a duration to 90 kHz clock ticks.
func ticks(d time.Duration) int64 {
	return int64(d) * metronom.ClockRate / int64(time.Second)
}
