package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

var _ Device = (*PCMPlayer)(nil)

var ErrDeviceBusy = errors.New("audio device is busy")

// PCMPlayer PortAudio实现的输出设备，按顺序渲染 Source，任意时刻最多发出一个 Source 的声音。
//
// 当前片段剩余样本不超过一个回调缓冲时提前通知结束，此时允许再启动一个
// 后继 Source，回调在同一缓冲内无缝接上，片段之间不插入静音。
type PCMPlayer struct {
	sampleRate int
	channels   int
	gain       float32
	logger     *slog.Logger
	stream     *portaudio.Stream

	mu      sync.Mutex
	current *pcmSource
	next    *pcmSource
	closed  bool
}

// NewPCMPlayer 初始化 PortAudio 并打开默认输出流。frameDuration 为回调缓冲时长（毫秒）。
func NewPCMPlayer(sampleRate, frameDuration, channels int, gain float64, logger *slog.Logger) (*PCMPlayer, error) {
	if gain <= 0 {
		gain = 1
	}

	// 初始化PortAudio
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	player := &PCMPlayer{
		sampleRate: sampleRate,
		channels:   channels,
		gain:       float32(gain),
		logger:     logger,
	}

	frameSize := sampleRate * frameDuration / 1000
	stream, err := portaudio.OpenDefaultStream(
		0,                    // 输入通道数(0表示不录音)
		channels,             // 输出通道数
		float64(sampleRate),  // 采样率
		frameSize,            // 每次回调的帧数
		player.audioCallback, // 回调函数
	)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}
	player.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start audio stream: %w", err)
	}

	logger.Info("Audio output opened",
		"sample_rate", sampleRate,
		"channels", channels,
		"frame_size", frameSize)
	return player, nil
}

func (p *PCMPlayer) SampleRate() int { return p.sampleRate }

func (p *PCMPlayer) CreateSource(seg Segment, onEnded func()) (Source, error) {
	if seg.SampleRate != p.sampleRate {
		return nil, fmt.Errorf("%w: segment %d Hz, device %d Hz", ErrSampleRateMismatch, seg.SampleRate, p.sampleRate)
	}
	return &pcmSource{player: p, samples: seg.Samples, onEnded: onEnded}, nil
}

// audioCallback 在 PortAudio 线程中执行，结束通知在锁外异步发出
func (p *PCMPlayer) audioCallback(out [][]float32) {
	p.mu.Lock()
	var ended []*pcmSource

	for i := range out[0] {
		if p.current != nil && p.current.done() {
			ended = p.release(p.current, ended)
			p.current, p.next = p.next, nil
		}

		var v float32
		if cur := p.current; cur != nil {
			v = float32(cur.samples[cur.pos]) / 32768.0 * p.gain
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			cur.pos++
		}
		for ch := range out {
			out[ch][i] = v
		}
	}

	if cur := p.current; cur != nil {
		switch {
		case cur.done():
			ended = p.release(cur, ended)
			p.current, p.next = p.next, nil
		case len(cur.samples)-cur.pos <= len(out[0]):
			// 下一次回调内就会播完，提前通知以便后继片段及时启动
			ended = p.release(cur, ended)
		}
	}
	p.mu.Unlock()

	for _, s := range ended {
		go s.onEnded()
	}
}

// release 标记 s 已通知结束，每个 Source 只通知一次
func (p *PCMPlayer) release(s *pcmSource, ended []*pcmSource) []*pcmSource {
	if s.notified {
		return ended
	}
	s.notified = true
	return append(ended, s)
}

func (p *PCMPlayer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.current, p.next = nil, nil
	p.mu.Unlock()

	if p.stream != nil {
		// 停止并关闭音频流
		if err := p.stream.Stop(); err != nil {
			p.logger.Error("failed to stop audio stream", "error", err)
		}
		if err := p.stream.Close(); err != nil {
			p.logger.Error("failed to close audio stream", "error", err)
		}
	}

	// 终止PortAudio
	return portaudio.Terminate()
}

type pcmSource struct {
	player   *PCMPlayer
	samples  []int16
	pos      int
	notified bool
	onEnded  func()
}

func (s *pcmSource) done() bool { return s.pos >= len(s.samples) }

// Start 设备空闲时立即渲染；当前片段已通知结束时作为后继排在其后，否则返回 ErrDeviceBusy
func (s *pcmSource) Start() error {
	p := s.player
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("audio player closed")
	}
	if p.next != nil || (p.current != nil && !p.current.notified) {
		return ErrDeviceBusy
	}
	if len(s.samples) == 0 {
		s.notified = true
		go s.onEnded()
		return nil
	}
	if p.current == nil {
		p.current = s
	} else {
		p.next = s
	}
	return nil
}

// Stop 停止渲染且不触发结束通知。停止后继时，已通知结束的前一片段的尾部一并丢弃。
func (s *pcmSource) Stop() error {
	p := s.player
	p.mu.Lock()
	defer p.mu.Unlock()

	s.notified = true
	switch s {
	case p.next:
		p.next = nil
		if p.current != nil && p.current.notified {
			p.current = nil
		}
	case p.current:
		p.current, p.next = p.next, nil
	}
	return nil
}
