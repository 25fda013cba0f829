package audio

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPlayer 不打开 PortAudio 流，回调由测试直接驱动
func newTestPlayer(gain float32) *PCMPlayer {
	return &PCMPlayer{
		sampleRate: 24000,
		channels:   1,
		gain:       gain,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func constSegment(id string, n int, v int16) Segment {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = v
	}
	return Segment{ID: id, Samples: samples, SampleRate: 24000}
}

func newSource(t *testing.T, p *PCMPlayer, seg Segment, ended chan<- string) Source {
	t.Helper()
	src, err := p.CreateSource(seg, func() { ended <- seg.ID })
	require.NoError(t, err)
	return src
}

func render(p *PCMPlayer, n int) []float32 {
	out := [][]float32{make([]float32, n)}
	p.audioCallback(out)
	return out[0]
}

func waitEnded(t *testing.T, ended <-chan string) string {
	t.Helper()
	select {
	case id := <-ended:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for end notification")
		return ""
	}
}

func TestCreateSourceRejectsSampleRateMismatch(t *testing.T) {
	p := newTestPlayer(1)

	_, err := p.CreateSource(Segment{ID: "a", Samples: make([]int16, 10), SampleRate: 16000}, func() {})
	assert.ErrorIs(t, err, ErrSampleRateMismatch)
}

func TestSecondSourceIsBusyWhilePlaying(t *testing.T) {
	p := newTestPlayer(1)
	ended := make(chan string, 4)

	require.NoError(t, newSource(t, p, constSegment("a", 100, 1000), ended).Start())
	assert.ErrorIs(t, newSource(t, p, constSegment("b", 100, 1000), ended).Start(), ErrDeviceBusy)
}

func TestZeroLengthSourceEndsImmediately(t *testing.T) {
	p := newTestPlayer(1)
	ended := make(chan string, 4)

	require.NoError(t, newSource(t, p, constSegment("z", 0, 0), ended).Start())
	assert.Equal(t, "z", waitEnded(t, ended))
	assert.Nil(t, p.current)

	// 空片段不占用设备
	require.NoError(t, newSource(t, p, constSegment("a", 10, 1000), ended).Start())
}

func TestSourcesHandOffWithoutSilence(t *testing.T) {
	p := newTestPlayer(1)
	ended := make(chan string, 4)
	a := float32(1000) / 32768
	b := float32(2000) / 32768

	require.NoError(t, newSource(t, p, constSegment("a", 6, 1000), ended).Start())

	assert.Equal(t, []float32{a, a, a, a}, render(p, 4))
	// 剩余 2 个样本已不足一个缓冲，提前通知
	assert.Equal(t, "a", waitEnded(t, ended))

	require.NoError(t, newSource(t, p, constSegment("b", 4, 2000), ended).Start())
	assert.Equal(t, []float32{a, a, b, b}, render(p, 4))
	assert.Equal(t, "b", waitEnded(t, ended))

	assert.Equal(t, []float32{b, b, 0, 0}, render(p, 4))
	assert.Nil(t, p.current)
	assert.Nil(t, p.next)

	select {
	case id := <-ended:
		t.Fatalf("unexpected extra end notification for %s", id)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestOnlyOneSuccessorMayBeArmed(t *testing.T) {
	p := newTestPlayer(1)
	ended := make(chan string, 4)

	require.NoError(t, newSource(t, p, constSegment("a", 2, 1000), ended).Start())
	render(p, 1)
	waitEnded(t, ended)

	require.NoError(t, newSource(t, p, constSegment("b", 10, 1000), ended).Start())
	assert.ErrorIs(t, newSource(t, p, constSegment("c", 10, 1000), ended).Start(), ErrDeviceBusy)
}

func TestStopSilencesWithoutEndNotification(t *testing.T) {
	p := newTestPlayer(1)
	ended := make(chan string, 4)

	src := newSource(t, p, constSegment("a", 100, 1000), ended)
	require.NoError(t, src.Start())
	render(p, 4)

	require.NoError(t, src.Stop())
	assert.Nil(t, p.current)
	assert.Equal(t, []float32{0, 0, 0, 0}, render(p, 4))

	select {
	case id := <-ended:
		t.Fatalf("stopped source %s reported end", id)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestStoppingSuccessorDropsNotifiedTail(t *testing.T) {
	p := newTestPlayer(1)
	ended := make(chan string, 4)

	require.NoError(t, newSource(t, p, constSegment("a", 6, 1000), ended).Start())
	render(p, 4)
	waitEnded(t, ended)

	b := newSource(t, p, constSegment("b", 10, 2000), ended)
	require.NoError(t, b.Start())
	require.NoError(t, b.Stop())

	assert.Equal(t, []float32{0, 0, 0, 0}, render(p, 4))
	assert.Nil(t, p.current)
	assert.Nil(t, p.next)
}

func TestGainIsClipped(t *testing.T) {
	p := newTestPlayer(3)
	ended := make(chan string, 4)

	seg := Segment{ID: "g", Samples: []int16{20000, -20000, 1000}, SampleRate: 24000}
	require.NoError(t, newSource(t, p, seg, ended).Start())

	out := render(p, 3)
	assert.Equal(t, float32(1), out[0])
	assert.Equal(t, float32(-1), out[1])
	assert.InDelta(t, 3000.0/32768, out[2], 1e-6)
}

func TestStartOnClosedPlayerFails(t *testing.T) {
	p := newTestPlayer(1)
	p.closed = true

	err := newSource(t, p, constSegment("a", 10, 1000), make(chan string, 1)).Start()
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrDeviceBusy)
}
