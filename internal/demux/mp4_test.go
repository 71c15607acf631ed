package demux

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/nareix/joy4/av"
	"github.com/nareix/joy4/codec"
	"github.com/nareix/joy4/codec/h264parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/alohaplay/internal/buffer"
)

var (
	testSPS = []byte{0x67, 0x42, 0xc0, 0x1e}
	testPPS = []byte{0x68, 0xce, 0x3c, 0x80}
)

type fakeReader struct {
	codecs  []av.CodecData
	packets []av.Packet
	seekTo  time.Duration
}

func (r *fakeReader) Streams() ([]av.CodecData, error) {
	return r.codecs, nil
}

func (r *fakeReader) ReadPacket() (av.Packet, error) {
	if len(r.packets) == 0 {
		return av.Packet{}, io.EOF
	}
	pkt := r.packets[0]
	r.packets = r.packets[1:]
	return pkt, nil
}

func (r *fakeReader) SeekToTime(t time.Duration) error {
	r.seekTo = t
	return nil
}

type unknownCodec struct{}

func (unknownCodec) Type() av.CodecType { return av.SPEEX }

type fifoTarget struct {
	audio, video *buffer.Fifo
}

func newFifoTarget() *fifoTarget {
	return &fifoTarget{
		audio: buffer.NewFifo(32, 16),
		video: buffer.NewFifo(32, 16),
	}
}

func (t *fifoTarget) Fifo(class buffer.Class) *buffer.Fifo {
	if class == buffer.ClassAudio {
		return t.audio
	}
	return t.video
}

func (t *fifoTarget) PutControl(c buffer.Control, flags buffer.Flags, discOffset int64) {
	t.video.PutControl(c, flags, discOffset)
	t.audio.PutControl(c, flags, discOffset)
}

type got struct {
	control buffer.Control
	typ     buffer.Type
	flags   buffer.Flags
	pts     int64
	data    []byte
}

func drain(f *buffer.Fifo) []got {
	var out []got
	for f.Len() > 0 {
		e := f.Get()
		g := got{typ: e.Type, flags: e.Flags, pts: e.PTS}
		if e.Kind == buffer.KindControl {
			g = got{control: e.Control, flags: e.Flags, pts: e.DiscOffset}
		} else {
			g.data = append([]byte(nil), e.Content...)
		}
		out = append(out, g)
		e.Free()
	}
	return out
}

func avcc(nalus ...[]byte) []byte {
	var b []byte
	for _, n := range nalus {
		b = append(b, 0, 0, 0, byte(len(n)))
		b = append(b, n...)
	}
	return b
}

func testFile(t *testing.T, r *fakeReader) *MP4 {
	m, err := newMP4("test.mp4", r, nil)
	require.NoError(t, err)
	return m
}

func TestPlayFeedsFifos(t *testing.T) {
	idr := []byte{0x65, 0xaa, 0xbb}
	slice := []byte{0x41, 0xcc}
	samples := make([]byte, 20)
	r := &fakeReader{
		codecs: []av.CodecData{
			h264parser.CodecData{RecordInfo: h264parser.AVCDecoderConfRecord{
				SPS: [][]byte{testSPS},
				PPS: [][]byte{testPPS},
			}},
			codec.NewPCMMulawCodecData(),
		},
		packets: []av.Packet{
			{Idx: 0, IsKeyFrame: true, Data: avcc(idr)},
			{Idx: 1, Time: 10 * time.Millisecond, Data: samples},
			{Idx: 0, Time: 100 * time.Millisecond, Data: avcc(slice)},
		},
	}
	m := testFile(t, r)
	assert.Equal(t, []buffer.Type{buffer.VideoH264, buffer.AudioMULaw}, m.Types())

	dst := newFifoTarget()
	require.NoError(t, m.Play(context.Background(), dst, Options{}))

	video := drain(dst.video)
	require.Len(t, video, 6)
	assert.Equal(t, buffer.ControlStart, video[0].control)

	// Parameter sets as a header, 16 bytes in one element.
	assert.Equal(t, buffer.FlagHeader|buffer.FlagFrameStart|buffer.FlagFrameEnd, video[1].flags)
	assert.Equal(t, []byte{0, 0, 0, 1, 0x67, 0x42, 0xc0, 0x1e, 0, 0, 0, 1, 0x68, 0xce, 0x3c, 0x80}, video[1].data)
	assert.Equal(t, buffer.ControlHeadersDone, video[2].control)

	assert.Equal(t, buffer.FlagKeyframe|buffer.FlagFrameStart|buffer.FlagFrameEnd, video[3].flags)
	assert.Equal(t, append([]byte{0, 0, 0, 1}, idr...), video[3].data)

	assert.Equal(t, buffer.FlagFrameStart|buffer.FlagFrameEnd, video[4].flags)
	assert.EqualValues(t, 9000, video[4].pts)
	assert.Equal(t, append([]byte{0, 0, 0, 1}, slice...), video[4].data)
	assert.Equal(t, buffer.ControlEnd, video[5].control)
	assert.Equal(t, buffer.FlagEndStream, video[5].flags)

	audio := drain(dst.audio)
	require.Len(t, audio, 6)
	assert.Equal(t, buffer.ControlStart, audio[0].control)
	assert.Equal(t, buffer.FlagHeader, audio[1].flags)
	assert.Equal(t, buffer.ControlHeadersDone, audio[2].control)

	// 20 bytes of samples span two 16-byte elements.
	assert.Equal(t, buffer.AudioMULaw, audio[3].typ)
	assert.Equal(t, buffer.FlagFrameStart, audio[3].flags)
	assert.EqualValues(t, 900, audio[3].pts)
	assert.Len(t, audio[3].data, 16)
	assert.Equal(t, buffer.FlagFrameEnd, audio[4].flags)
	assert.Len(t, audio[4].data, 4)
	assert.Equal(t, buffer.ControlEnd, audio[5].control)
}

func TestPlayStartsAtOffset(t *testing.T) {
	r := &fakeReader{codecs: []av.CodecData{codec.NewPCMMulawCodecData()}}
	m := testFile(t, r)

	dst := newFifoTarget()
	require.NoError(t, m.Play(context.Background(), dst, Options{Start: 2 * time.Second, Gapless: true}))
	assert.Equal(t, 2*time.Second, r.seekTo)

	audio := drain(dst.audio)
	require.True(t, len(audio) >= 2)
	assert.Equal(t, buffer.ControlStart, audio[0].control)
	assert.Equal(t, buffer.FlagGapless, audio[0].flags)
	assert.Equal(t, buffer.ControlNewPTS, audio[1].control)
	assert.Equal(t, buffer.FlagSeek, audio[1].flags)
	assert.EqualValues(t, 180000, audio[1].pts)
}

func TestPlayStopsOnCancel(t *testing.T) {
	r := &fakeReader{
		codecs: []av.CodecData{codec.NewPCMMulawCodecData()},
		packets: []av.Packet{
			{Idx: 0, Data: []byte{1}},
			{Idx: 0, Time: time.Hour, Data: []byte{2}},
		},
	}
	m := testFile(t, r)

	ctx, cancel := context.WithCancel(context.Background())
	dst := newFifoTarget()
	done := make(chan error, 1)
	go func() { done <- m.Play(ctx, dst, Options{Realtime: true}) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Play did not stop")
	}

	audio := drain(dst.audio)
	last := audio[len(audio)-1]
	assert.Equal(t, buffer.ControlEnd, last.control)
	assert.Equal(t, buffer.FlagEndUser, last.flags)
}

func TestNoPlayableStreams(t *testing.T) {
	_, err := newMP4("test.mp4", &fakeReader{codecs: []av.CodecData{unknownCodec{}}}, nil)
	assert.ErrorIs(t, err, ErrNoStreams)

	_, err = OpenMP4("/nonexistent/file.mp4")
	assert.Error(t, err)
}
