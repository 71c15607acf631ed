package buffer

import "fmt"

// A Type tags a data element. The high byte is the media class, the next
// byte selects the codec (the decoder sub-type), and the low 16 bits carry
// the sub-stream channel number:
//
//	0xCCDDCCCC
//	  ^^        media class
//	    ^^      codec sub-type
//	      ^^^^  channel
type Type uint32

// Class is the media class of a data element.
type Class uint8

const (
	ClassControl Class = 0x01
	ClassVideo   Class = 0x02
	ClassAudio   Class = 0x03
	ClassSPU     Class = 0x04
)

func (c Class) String() string {
	switch c {
	case ClassControl:
		return "control"
	case ClassVideo:
		return "video"
	case ClassAudio:
		return "audio"
	case ClassSPU:
		return "spu"
	default:
		return fmt.Sprintf("class(%#02x)", uint8(c))
	}
}

// Known codec types. Channel bits are zero.
const (
	VideoMPEG Type = 0x02000000
	VideoH264 Type = 0x024d0000
	VideoVP8  Type = 0x02680000

	AudioA52    Type = 0x03000000
	AudioMPEG   Type = 0x03010000
	AudioLPCMBE Type = 0x03020000
	AudioLPCMLE Type = 0x03030000
	AudioAAC    Type = 0x030e0000
	AudioMULaw  Type = 0x031c0000
	AudioALaw   Type = 0x031d0000

	SPUDVD  Type = 0x04000000
	SPUText Type = 0x04010000
	SPUDVB  Type = 0x04030000
)

var typeNames = map[Type]string{
	VideoMPEG:   "MPEG 1/2 video",
	VideoH264:   "H.264",
	VideoVP8:    "VP8",
	AudioA52:    "AC-3",
	AudioMPEG:   "MPEG audio",
	AudioLPCMBE: "linear PCM (big endian)",
	AudioLPCMLE: "linear PCM (little endian)",
	AudioAAC:    "AAC",
	AudioMULaw:  "mu-law",
	AudioALaw:   "A-law",
	SPUDVD:      "DVD subtitles",
	SPUText:     "text subtitles",
	SPUDVB:      "DVB subtitles",
}

// MakeType assembles a type tag.
func MakeType(class Class, subtype uint8, channel uint16) Type {
	return Type(class)<<24 | Type(subtype)<<16 | Type(channel)
}

func (t Type) Class() Class {
	return Class(t >> 24)
}

func (t Type) SubType() uint8 {
	return uint8(t >> 16)
}

func (t Type) Channel() uint16 {
	return uint16(t)
}

// Codec strips the channel bits.
func (t Type) Codec() Type {
	return t &^ 0xffff
}

// WithChannel returns t retagged for the given channel.
func (t Type) WithChannel(channel uint16) Type {
	return t.Codec() | Type(channel)
}

func (t Type) String() string {
	if name, ok := typeNames[t.Codec()]; ok {
		if ch := t.Channel(); ch != 0 {
			return fmt.Sprintf("%s #%d", name, ch)
		}
		return name
	}
	return fmt.Sprintf("%08x", uint32(t))
}

// Control identifies a control message.
type Control uint8

const (
	ControlStart Control = iota
	ControlEnd
	ControlQuit
	ControlDiscontinuity
	ControlNop
	ControlAudioChannel
	ControlSPUChannel
	ControlNewPTS
	ControlResetDecoder
	ControlHeadersDone
	ControlFlushDecoder
	ControlResetTrackMap
)

var controlNames = [...]string{
	ControlStart:         "start",
	ControlEnd:           "end",
	ControlQuit:          "quit",
	ControlDiscontinuity: "discontinuity",
	ControlNop:           "nop",
	ControlAudioChannel:  "audio-channel",
	ControlSPUChannel:    "spu-channel",
	ControlNewPTS:        "new-pts",
	ControlResetDecoder:  "reset-decoder",
	ControlHeadersDone:   "headers-done",
	ControlFlushDecoder:  "flush-decoder",
	ControlResetTrackMap: "reset-track-map",
}

func (c Control) String() string {
	if int(c) < len(controlNames) {
		return controlNames[c]
	}
	return fmt.Sprintf("control(%d)", uint8(c))
}

// Flags modify how an element is handled.
type Flags uint32

const (
	FlagKeyframe   Flags = 0x0001
	FlagFrameStart Flags = 0x0002
	FlagFrameEnd   Flags = 0x0004
	// Header elements are needed for decoder initialisation and are kept
	// for replay on a channel change.
	FlagHeader Flags = 0x0008
	// The end of stream was requested by the user.
	FlagEndUser Flags = 0x0020
	// The end of stream was reached naturally.
	FlagEndStream Flags = 0x0040
	// New PTS after a seek.
	FlagSeek Flags = 0x0100
	// Gapless switch to the next stream: keep the output open.
	FlagGapless Flags = 0x1000
)

func (f Flags) Has(flag Flags) bool {
	return f&flag != 0
}
