package metronom

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lanikai/alohaplay/internal/buffer"
)

func fixedClock(t int64) func() int64 {
	return func() int64 { return t }
}

func TestSingleClassAppliesImmediately(t *testing.T) {
	m := NewWithClock(fixedClock(1000), 0)
	m.SetHave(buffer.ClassAudio, true)

	m.HandleDiscontinuity(buffer.ClassAudio, StreamStart, 0)
	assert.Equal(t, int64(1000+DefaultPrebuffer+50), m.VPTS(50))

	m.HandleDiscontinuity(buffer.ClassAudio, Relative, 300)
	assert.Equal(t, int64(1000+DefaultPrebuffer-300), m.VPTS(0))
}

func TestVideoOnly(t *testing.T) {
	m := NewWithClock(fixedClock(0), 0)
	m.SetHave(buffer.ClassVideo, true)

	m.HandleDiscontinuity(buffer.ClassVideo, StreamSeek, 9000)
	assert.Equal(t, int64(DefaultPrebuffer), m.VPTS(9000))
	handled, audio, video := m.Handled()
	assert.Equal(t, 1, handled)
	assert.Equal(t, 0, audio)
	assert.Equal(t, 1, video)
}

func TestAudioVideoMeet(t *testing.T) {
	m := NewWithClock(fixedClock(0), 0)
	m.SetHave(buffer.ClassAudio, true)
	m.SetHave(buffer.ClassVideo, true)

	videoDone := make(chan struct{})
	go func() {
		m.HandleDiscontinuity(buffer.ClassVideo, Absolute, 100)
		close(videoDone)
	}()

	select {
	case <-videoDone:
		t.Fatal("video applied a discontinuity before audio reached it")
	case <-time.After(20 * time.Millisecond):
	}

	m.HandleDiscontinuity(buffer.ClassAudio, Absolute, 100)
	<-videoDone

	handled, audio, video := m.Handled()
	assert.Equal(t, 1, handled)
	assert.Equal(t, 1, audio)
	assert.Equal(t, 1, video)
	assert.Equal(t, int64(0), m.VPTS(100))
}

func TestWaitTimeout(t *testing.T) {
	m := NewWithClock(fixedClock(0), 10*time.Millisecond)
	m.SetHave(buffer.ClassAudio, true)
	m.SetHave(buffer.ClassVideo, true)

	start := time.Now()
	m.HandleDiscontinuity(buffer.ClassAudio, StreamStart, 0)
	assert.True(t, time.Since(start) >= 10*time.Millisecond)
}

func TestCloseReleasesWaiters(t *testing.T) {
	m := NewWithClock(fixedClock(0), 0)
	m.SetHave(buffer.ClassAudio, true)
	m.SetHave(buffer.ClassVideo, true)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.HandleDiscontinuity(buffer.ClassVideo, StreamStart, 0)
	}()
	time.Sleep(5 * time.Millisecond)
	m.Close()
	wg.Wait()
}
