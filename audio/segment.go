package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidPayload     = errors.New("invalid audio payload")
	ErrUnsupportedFormat  = errors.New("unsupported audio format")
	ErrSampleRateMismatch = errors.New("sample rate mismatch")
)

// Segment 解码后的单声道 PCM16 音频
type Segment struct {
	ID         string
	Samples    []int16
	SampleRate int
}

func (s Segment) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(s.Samples)) * time.Second / time.Duration(s.SampleRate)
}

// Decoder 把入站 base64 音频解码成输出采样率下的 Segment
type Decoder struct {
	sampleRate int
	opus       *OpusDecoder
	logger     *slog.Logger
}

func NewDecoder(sampleRate int, logger *slog.Logger) *Decoder {
	return &Decoder{
		sampleRate: sampleRate,
		logger:     logger,
	}
}

// Decode 解码 base64 载荷。mimeType 为空时按 PCM16 LE 处理，空载荷得到零长度片段。
func (d *Decoder) Decode(payload, mimeType, id string) (Segment, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Segment{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if id == "" {
		id = uuid.NewString()
	}
	seg := Segment{ID: id, SampleRate: d.sampleRate}

	switch format := mediaType(mimeType); format {
	case "", "audio/pcm", "audio/l16", "audio/raw", "pcm16":
		seg.Samples = bytesToInt16(raw)
	case "audio/opus":
		if len(raw) == 0 {
			return seg, nil
		}
		if d.opus == nil {
			d.opus, err = NewOpusDecoder(d.sampleRate, 1, d.logger)
			if err != nil {
				return Segment{}, err
			}
		}
		seg.Samples, err = d.opus.Decode(raw)
		if err != nil {
			return Segment{}, err
		}
	default:
		return Segment{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	return seg, nil
}

func (d *Decoder) Close() {
	if d.opus != nil {
		d.opus.Close()
		d.opus = nil
	}
}

func mediaType(mimeType string) string {
	mt, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// bytesToInt16 将byte切片转换为int16切片（小端）
func bytesToInt16(b []byte) []int16 {
	if len(b)%2 != 0 {
		b = b[:len(b)-1] // 确保长度是偶数
	}

	pcm := make([]int16, len(b)/2)
	for i := 0; i < len(pcm); i++ {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
