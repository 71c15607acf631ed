package decoder

import (
	"sort"

	"github.com/lanikai/alohaplay/internal/buffer"
)

// TrackMapSize is the most sub-streams a track map holds.
const TrackMapSize = 50

// A TrackMap lists the distinct sub-streams seen for one media class,
// ordered by channel number. Only its owning loop mutates it.
type TrackMap struct {
	entries []buffer.Type
}

// Insert adds t unless a track with the same channel is already present.
// It returns the position of the track and whether it was added. When the
// map is full a new track is ignored and index is -1.
func (m *TrackMap) Insert(t buffer.Type) (index int, added bool) {
	ch := t.Channel()
	i := sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].Channel() >= ch
	})
	if i < len(m.entries) && m.entries[i].Channel() == ch {
		return i, false
	}
	if len(m.entries) >= TrackMapSize {
		return -1, false
	}

	m.entries = append(m.entries, 0)
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = t
	return i, true
}

func (m *TrackMap) Len() int {
	return len(m.entries)
}

func (m *TrackMap) At(i int) buffer.Type {
	return m.entries[i]
}

// Clear empties the map and reports whether it held anything.
func (m *TrackMap) Clear() bool {
	n := len(m.entries)
	m.entries = m.entries[:0]
	return n > 0
}

// Tracks returns a copy of the entries.
func (m *TrackMap) Tracks() []buffer.Type {
	return append([]buffer.Type(nil), m.entries...)
}
