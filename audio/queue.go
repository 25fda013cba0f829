package audio

import (
	"log/slog"

	"github.com/lisuiheng/rtvoice/metrics"
	"github.com/lisuiheng/rtvoice/utils"
)

// Queue 按到达顺序在单个输出设备上无缝播放音频片段。
//
// 同一时刻最多只有一个片段在播放。所有方法以及设备的结束回调都必须在
// 同一个事件循环中执行，因此内部状态不加锁。播放下一段由结束回调驱动，
// 以循环而非递归推进。
type Queue struct {
	device  Device
	loop    utils.Executor
	logger  *slog.Logger
	metrics *metrics.Metrics

	pending  []Segment
	active   *activeSlot
	playing  bool
	onChange func(playing bool)
}

// activeSlot 标识一次具体的播放，过期的结束回调据此被忽略
type activeSlot struct {
	segment Segment
	source  Source
}

func NewQueue(device Device, loop utils.Executor, m *metrics.Metrics, logger *slog.Logger) *Queue {
	return &Queue{
		device:  device,
		loop:    loop,
		logger:  logger,
		metrics: m,
	}
}

// OnStateChange 在 idle/playing 切换时回调
func (q *Queue) OnStateChange(fn func(playing bool)) {
	q.onChange = fn
}

// Enqueue 追加到队尾。空闲时立即开始播放队首，正在播放时只排队，不打断当前片段。
func (q *Queue) Enqueue(seg Segment) {
	q.pending = append(q.pending, seg)
	q.metrics.SegmentsEnqueued.Inc()
	q.updateDepth()

	if q.active != nil {
		q.logger.Debug("Segment queued", "id", seg.ID, "duration", seg.Duration(), "pending", len(q.pending))
		return
	}
	q.logger.Debug("Starting playback from queue", "id", seg.ID, "duration", seg.Duration())
	q.advance()
}

// Clear 丢弃所有待播片段，正在播放的片段自然播完。返回丢弃数量。
func (q *Queue) Clear() int {
	n := len(q.pending)
	q.pending = nil
	q.updateDepth()
	if n > 0 {
		q.metrics.SegmentsDropped.Add(float64(n))
		q.logger.Debug("Cleared playback queue", "dropped", n)
	}
	return n
}

// Stop 立即停止当前片段并清空队列
func (q *Queue) Stop() {
	q.Clear()
	if q.active == nil {
		return
	}

	slot := q.active
	q.active = nil
	if err := slot.source.Stop(); err != nil {
		q.logger.Error("Failed to stop audio source", "id", slot.segment.ID, "error", err)
	}
	q.logger.Debug("Playback stopped", "id", slot.segment.ID)
	q.setPlaying(false)
}

// Len 待播片段数量，不含正在播放的片段
func (q *Queue) Len() int { return len(q.pending) }

func (q *Queue) Playing() bool { return q.active != nil }

// advance 取出下一个可以启动的片段。启动失败的片段被跳过，队列继续推进。
func (q *Queue) advance() {
	for len(q.pending) > 0 {
		seg := q.pending[0]
		q.pending[0] = Segment{}
		q.pending = q.pending[1:]
		q.updateDepth()

		slot := &activeSlot{segment: seg}
		src, err := q.device.CreateSource(seg, func() {
			q.loop.Post(func() { q.handleEnded(slot) })
		})
		if err != nil {
			q.metrics.SegmentStartFailures.Inc()
			q.logger.Error("Failed to create audio source", "id", seg.ID, "error", err)
			continue
		}
		slot.source = src

		// Start 可能同步触发结束回调，先占用播放槽位
		q.active = slot
		if err := src.Start(); err != nil {
			q.active = nil
			q.metrics.SegmentStartFailures.Inc()
			q.logger.Error("Failed to start audio source", "id", seg.ID, "error", err)
			continue
		}

		q.metrics.PlaybackSeconds.Add(seg.Duration().Seconds())
		q.setPlaying(true)
		return
	}

	q.active = nil
	q.setPlaying(false)
}

func (q *Queue) handleEnded(slot *activeSlot) {
	if slot != q.active {
		q.logger.Debug("Ignoring completion of inactive source", "id", slot.segment.ID)
		return
	}

	q.metrics.SegmentsPlayed.Inc()
	q.active = nil
	if len(q.pending) == 0 {
		q.logger.Debug("Audio queue empty, stopping playback")
	}
	q.advance()
}

func (q *Queue) setPlaying(playing bool) {
	if q.playing == playing {
		return
	}
	q.playing = playing
	if q.onChange != nil {
		q.onChange(playing)
	}
}

func (q *Queue) updateDepth() {
	q.metrics.QueueDepth.Set(float64(len(q.pending)))
}
