package h264

import (
	"bufio"
	"bytes"
)

// NAL unit types used by the decoder.
const (
	TypeSlice = 1
	TypeIDR   = 5
	TypeSEI   = 6
	TypeSPS   = 7
	TypePPS   = 8
	TypeAUD   = 9
)

type NALU []byte

func (nalu NALU) ForbiddenBit() byte {
	return nalu[0] & 0x80 >> 7
}

func (nalu NALU) NRI() byte {
	return nalu[0] & 0x60 >> 5
}

func (nalu NALU) Type() byte {
	return nalu[0] & 0x1f
}

// IsParameterSet is true for sequence and picture parameter sets.
func (nalu NALU) IsParameterSet() bool {
	t := nalu.Type()
	return t == TypeSPS || t == TypePPS
}

var startCode = []byte{0, 0, 1}

// SplitAnnexB is a bufio.SplitFunc that splits NAL units on H.264 Annex B
// start codes. At EOF the remaining bytes form the final unit.
func SplitAnnexB(data []byte, atEOF bool) (advance int, nalu []byte, err error) {
	i := bytes.Index(data, startCode)

	switch i {
	case -1:
		// No start code found. Wait for more data.
		if atEOF && len(data) > 0 {
			advance = len(data)
			nalu = data
		}
	case 0:
		// 3-byte start code (0x000001) found at data[0]. Skip these 3 bytes.
		advance = 3
	case 1:
		if data[0] != 0x00 {
			advance = 1
			nalu = data[:1]
			break
		}
		// 4-byte start code (0x00000001) found at data[0]. Skip these 4 bytes.
		advance = 4
	default:
		// Next start code found at index i.
		advance = i + 3
		if data[i-1] == 0x00 {
			// 4-byte start code
			nalu = data[0 : i-1]
		} else {
			// 3-byte start code
			nalu = data[0:i]
		}
	}
	return
}

// Units splits an Annex B byte stream into NAL units.
func Units(p []byte) []NALU {
	var units []NALU
	scanner := bufio.NewScanner(bytes.NewReader(p))
	scanner.Buffer(make([]byte, 0, len(p)+4), len(p)+4)
	scanner.Split(SplitAnnexB)
	for scanner.Scan() {
		if b := scanner.Bytes(); len(b) > 0 {
			units = append(units, append(NALU(nil), b...))
		}
	}
	return units
}
