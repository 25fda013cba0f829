package audio

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/hraban/opus"
)

// opusMaxFrameMs OPUS 单包的最大时长
const opusMaxFrameMs = 120

var errOpusClosed = errors.New("opus decoder closed")

// OpusDecoder 把 audio/opus 载荷解成 PCM16，只在收到这类旧版消息时才创建
type OpusDecoder struct {
	dec        *opus.Decoder
	sampleRate int
	channels   int
	buf        []int16
	logger     *slog.Logger
}

func NewOpusDecoder(sampleRate, channels int, logger *slog.Logger) (*OpusDecoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	logger.Debug("Opus decoder created", "sample_rate", sampleRate, "channels", channels)
	return &OpusDecoder{
		dec:        dec,
		sampleRate: sampleRate,
		channels:   channels,
		buf:        make([]int16, sampleRate*opusMaxFrameMs/1000*channels),
		logger:     logger,
	}, nil
}

// Decode 解码一个 OPUS 包，返回的切片不与内部缓冲共享
func (d *OpusDecoder) Decode(packet []byte) ([]int16, error) {
	if d.dec == nil {
		return nil, errOpusClosed
	}

	n, err := d.dec.Decode(packet, d.buf)
	if err != nil {
		return nil, fmt.Errorf("%w: opus: %v", ErrInvalidPayload, err)
	}

	out := make([]int16, n*d.channels)
	copy(out, d.buf)
	return out, nil
}

func (d *OpusDecoder) Close() {
	d.dec = nil
	d.buf = nil
}
