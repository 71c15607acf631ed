package decoder

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lanikai/alohaplay/internal/buffer"
)

func TestTrackMapSortedAndUnique(t *testing.T) {
	var m TrackMap

	i, added := m.Insert(buffer.AudioA52.WithChannel(3))
	assert.Equal(t, 0, i)
	assert.True(t, added)

	i, added = m.Insert(buffer.AudioMPEG.WithChannel(1))
	assert.Equal(t, 0, i)
	assert.True(t, added)

	// Same channel, different codec: not a new track.
	i, added = m.Insert(buffer.AudioMPEG.WithChannel(3))
	assert.Equal(t, 1, i)
	assert.False(t, added)

	m.Insert(buffer.AudioMPEG.WithChannel(2))
	assert.Equal(t, []buffer.Type{
		buffer.AudioMPEG.WithChannel(1),
		buffer.AudioMPEG.WithChannel(2),
		buffer.AudioA52.WithChannel(3),
	}, m.Tracks())

	assert.True(t, m.Clear())
	assert.False(t, m.Clear())
	assert.Zero(t, m.Len())
}

func TestTrackMapBounded(t *testing.T) {
	var m TrackMap
	r := rand.New(rand.NewSource(1))
	for n := 0; n < 500; n++ {
		m.Insert(buffer.AudioMPEG.WithChannel(uint16(r.Intn(200))))
	}

	assert.Equal(t, TrackMapSize, m.Len())
	tracks := m.Tracks()
	assert.True(t, sort.SliceIsSorted(tracks, func(i, j int) bool {
		return tracks[i].Channel() < tracks[j].Channel()
	}))
	for i := 1; i < len(tracks); i++ {
		assert.NotEqual(t, tracks[i-1].Channel(), tracks[i].Channel())
	}

	i, added := m.Insert(buffer.AudioMPEG.WithChannel(1000))
	assert.Equal(t, -1, i)
	assert.False(t, added)

	// Known channels are still found when full.
	i, added = m.Insert(tracks[7])
	assert.Equal(t, 7, i)
	assert.False(t, added)
}
