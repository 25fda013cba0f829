package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

type Config struct {
	SampleRate    int
	Channels      int
	FrameInterval time.Duration
}

// FrameBytes 每帧 PCM16 的字节数
func (c Config) FrameBytes() int {
	return int(time.Duration(c.SampleRate)*c.FrameInterval/time.Second) * c.Channels * 2
}

var _ Recorder = (*recorder)(nil)

// recorder 基于 malgo 的麦克风采集，按固定间隔输出 base64 PCM 帧
type recorder struct {
	config Config
	logger *slog.Logger

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	framer  *framer
	running bool
}

func NewRecorder(cfg Config, logger *slog.Logger) (Recorder, error) {
	if cfg.FrameBytes() <= 0 {
		return nil, fmt.Errorf("invalid frame size: %d", cfg.FrameBytes())
	}
	return &recorder{
		config: cfg,
		logger: logger,
	}, nil
}

func (r *recorder) Start(onFrame func(Frame)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("recorder already running")
	}

	// 初始化malgo上下文
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		r.logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return fmt.Errorf("failed to initialize audio context: %w", err)
	}

	framesPerPeriod := int(time.Duration(r.config.SampleRate) * r.config.FrameInterval / time.Second)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(r.config.Channels)
	deviceConfig.SampleRate = uint32(r.config.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(framesPerPeriod)

	fr := newFramer(r.config.FrameBytes(), r.config.SampleRate, onFrame)

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, pcmData []byte, _ uint32) {
			fr.write(pcmData)
		},
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("failed to initialize audio device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("failed to start audio device: %w", err)
	}

	r.ctx = ctx
	r.device = device
	r.framer = fr
	r.running = true

	r.logger.Info("Audio recording started",
		"sample_rate", r.config.SampleRate,
		"channels", r.config.Channels,
		"frame_interval", r.config.FrameInterval)
	return nil
}

func (r *recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}
	r.running = false

	if err := r.device.Stop(); err != nil {
		r.logger.Error("Failed to stop capture device", "error", err)
	}
	r.device.Uninit()
	_ = r.ctx.Uninit()
	r.ctx.Free()
	r.device, r.ctx = nil, nil

	r.framer.flush()
	r.framer = nil

	r.logger.Info("Audio recording stopped")
	return nil
}

// framer 把驱动回调中大小不定的 PCM 数据切成固定长度的帧
type framer struct {
	mu         sync.Mutex
	frameBytes int
	sampleRate int
	buf        []byte
	seq        uint64
	onFrame    func(Frame)
}

func newFramer(frameBytes, sampleRate int, onFrame func(Frame)) *framer {
	return &framer{
		frameBytes: frameBytes,
		sampleRate: sampleRate,
		buf:        make([]byte, 0, frameBytes*2),
		onFrame:    onFrame,
	}
}

func (f *framer) write(pcm []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.buf = append(f.buf, pcm...)
	for len(f.buf) >= f.frameBytes {
		f.emit(f.buf[:f.frameBytes])
		f.buf = append(f.buf[:0], f.buf[f.frameBytes:]...)
	}
}

// flush 输出剩余不足一帧的数据
func (f *framer) flush() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.buf) > 0 {
		f.emit(f.buf)
		f.buf = f.buf[:0]
	}
}

func (f *framer) emit(pcm []byte) {
	f.seq++
	f.onFrame(Frame{
		Seq:        f.seq,
		Audio:      base64.StdEncoding.EncodeToString(pcm),
		SampleRate: f.sampleRate,
	})
}
