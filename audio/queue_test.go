package audio

import (
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lisuiheng/rtvoice/metrics"
	"github.com/lisuiheng/rtvoice/utils"
)

// syncExecutor 由测试显式 drain 的执行器
type syncExecutor struct {
	tasks []func()
}

func (e *syncExecutor) Post(fn func()) bool {
	e.tasks = append(e.tasks, fn)
	return true
}

func (e *syncExecutor) AfterFunc(time.Duration, func()) utils.Timer {
	panic("not used")
}

func (e *syncExecutor) runAll() {
	for len(e.tasks) > 0 {
		fn := e.tasks[0]
		e.tasks = e.tasks[1:]
		fn()
	}
}

type fakeDevice struct {
	sampleRate int
	active     *fakeSource
	started    []string
	overlaps   int
	failCreate map[string]bool
	failStart  map[string]bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		sampleRate: 24000,
		failCreate: map[string]bool{},
		failStart:  map[string]bool{},
	}
}

func (d *fakeDevice) SampleRate() int { return d.sampleRate }
func (d *fakeDevice) Close() error    { return nil }

func (d *fakeDevice) CreateSource(seg Segment, onEnded func()) (Source, error) {
	if d.failCreate[seg.ID] {
		return nil, errors.New("create failed")
	}
	return &fakeSource{dev: d, seg: seg, onEnded: onEnded}, nil
}

// finish 模拟当前片段自然播放结束
func (d *fakeDevice) finish(t *testing.T) {
	t.Helper()
	require.NotNil(t, d.active, "no active source")
	s := d.active
	d.active = nil
	s.onEnded()
}

type fakeSource struct {
	dev     *fakeDevice
	seg     Segment
	onEnded func()
	stopped bool
}

func (s *fakeSource) Start() error {
	if s.dev.failStart[s.seg.ID] {
		return errors.New("start failed")
	}
	if s.dev.active != nil {
		s.dev.overlaps++
	}
	s.dev.started = append(s.dev.started, s.seg.ID)
	if len(s.seg.Samples) == 0 {
		s.onEnded()
		return nil
	}
	s.dev.active = s
	return nil
}

func (s *fakeSource) Stop() error {
	s.stopped = true
	if s.dev.active == s {
		s.dev.active = nil
	}
	return nil
}

func seg(id string, d time.Duration) Segment {
	n := int(d * 24000 / time.Second)
	return Segment{ID: id, Samples: make([]int16, n), SampleRate: 24000}
}

func newTestQueue() (*Queue, *fakeDevice, *syncExecutor, *metrics.Metrics) {
	dev := newFakeDevice()
	exec := &syncExecutor{}
	m := metrics.New(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewQueue(dev, exec, m, logger), dev, exec, m
}

func TestQueuePlaysInEnqueueOrder(t *testing.T) {
	q, dev, exec, m := newTestQueue()

	q.Enqueue(seg("A", time.Second))
	q.Enqueue(seg("B", 500*time.Millisecond))
	q.Enqueue(seg("C", 200*time.Millisecond))

	assert.Equal(t, []string{"A"}, dev.started)
	assert.Equal(t, 2, q.Len())

	dev.finish(t)
	exec.runAll()
	assert.Equal(t, []string{"A", "B"}, dev.started)

	dev.finish(t)
	exec.runAll()
	assert.Equal(t, []string{"A", "B", "C"}, dev.started)

	dev.finish(t)
	exec.runAll()
	assert.False(t, q.Playing())
	assert.Zero(t, dev.overlaps)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SegmentsPlayed))
	assert.InDelta(t, 1.7, testutil.ToFloat64(m.PlaybackSeconds), 0.001)
}

func TestEnqueueWhilePlayingDoesNotInterrupt(t *testing.T) {
	q, dev, exec, _ := newTestQueue()

	q.Enqueue(seg("A", time.Second))
	first := dev.active
	q.Enqueue(seg("B", time.Second))

	assert.Same(t, first, dev.active)
	assert.False(t, first.stopped)
	assert.Equal(t, []string{"A"}, dev.started)

	dev.finish(t)
	exec.runAll()
	assert.Equal(t, []string{"A", "B"}, dev.started)
}

func TestClearKeepsActiveSegment(t *testing.T) {
	q, dev, exec, m := newTestQueue()

	q.Enqueue(seg("A", time.Second))
	q.Enqueue(seg("B", time.Second))
	q.Enqueue(seg("C", time.Second))
	active := dev.active

	assert.Equal(t, 2, q.Clear())
	assert.Equal(t, 0, q.Len())
	assert.True(t, q.Playing())
	assert.False(t, active.stopped)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SegmentsDropped))

	q.Enqueue(seg("D", time.Second))
	assert.Equal(t, []string{"A"}, dev.started)

	dev.finish(t)
	exec.runAll()
	assert.Equal(t, []string{"A", "D"}, dev.started)
}

func TestStopHaltsActiveAndIgnoresStaleCompletion(t *testing.T) {
	q, dev, exec, _ := newTestQueue()

	q.Enqueue(seg("A", time.Second))
	q.Enqueue(seg("B", time.Second))
	a := dev.active

	q.Stop()
	assert.True(t, a.stopped)
	assert.False(t, q.Playing())
	assert.Equal(t, 0, q.Len())

	// 设备在停止后仍然送达了结束回调
	a.onEnded()
	exec.runAll()
	assert.Equal(t, []string{"A"}, dev.started)

	q.Enqueue(seg("C", time.Second))
	assert.Equal(t, []string{"A", "C"}, dev.started)
}

func TestZeroLengthSegmentCompletesImmediately(t *testing.T) {
	q, dev, exec, _ := newTestQueue()

	q.Enqueue(seg("Z", 0))
	q.Enqueue(seg("B", time.Second))
	assert.Equal(t, []string{"Z"}, dev.started)

	exec.runAll()
	assert.Equal(t, []string{"Z", "B"}, dev.started)
	assert.Zero(t, dev.overlaps)
}

func TestFailedSourceIsSkipped(t *testing.T) {
	q, dev, exec, m := newTestQueue()
	dev.failStart["B"] = true
	dev.failCreate["C"] = true

	q.Enqueue(seg("A", time.Second))
	q.Enqueue(seg("B", time.Second))
	q.Enqueue(seg("C", time.Second))
	q.Enqueue(seg("D", time.Second))

	dev.finish(t)
	exec.runAll()
	assert.Equal(t, []string{"A", "D"}, dev.started)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SegmentStartFailures))

	dev.finish(t)
	exec.runAll()
	assert.False(t, q.Playing())
}

func TestStateChangeNotifications(t *testing.T) {
	q, dev, exec, _ := newTestQueue()
	var changes []bool
	q.OnStateChange(func(playing bool) { changes = append(changes, playing) })

	q.Enqueue(seg("A", time.Second))
	q.Enqueue(seg("B", time.Second))
	dev.finish(t)
	exec.runAll()
	dev.finish(t)
	exec.runAll()

	assert.Equal(t, []bool{true, false}, changes)
}

func TestQueueRandomInterleavingKeepsFIFO(t *testing.T) {
	q, dev, exec, _ := newTestQueue()
	r := rand.New(rand.NewSource(42))

	var want []string
	for i := 0; i < 500; i++ {
		if r.Intn(3) > 0 || dev.active == nil {
			id := string(rune('a'+i%26)) + time.Duration(i).String()
			want = append(want, id)
			q.Enqueue(seg(id, time.Duration(r.Intn(3))*10*time.Millisecond))
			exec.runAll()
			continue
		}
		dev.finish(t)
		exec.runAll()
	}
	for dev.active != nil {
		dev.finish(t)
		exec.runAll()
	}

	assert.Equal(t, want, dev.started)
	assert.Zero(t, dev.overlaps)
}
