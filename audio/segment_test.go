package audio

import (
	"encoding/base64"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hraban/opus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int16ToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(uint16(s) >> 8)
	}
	return b
}

func newTestDecoder() *Decoder {
	return NewDecoder(24000, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDecodePCM(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	payload := base64.StdEncoding.EncodeToString(int16ToBytes(samples))

	seg, err := newTestDecoder().Decode(payload, "", "chunk-1")
	require.NoError(t, err)
	assert.Equal(t, "chunk-1", seg.ID)
	assert.Equal(t, 24000, seg.SampleRate)
	assert.Equal(t, samples, seg.Samples)
}

func TestDecodeAssignsIDWhenMissing(t *testing.T) {
	seg, err := newTestDecoder().Decode("AAAA", "audio/pcm;rate=24000", "")
	require.NoError(t, err)
	assert.NotEmpty(t, seg.ID)
	assert.Len(t, seg.Samples, 1)
}

func TestDecodeEmptyPayloadIsZeroLength(t *testing.T) {
	seg, err := newTestDecoder().Decode("", "", "")
	require.NoError(t, err)
	assert.Empty(t, seg.Samples)
	assert.Equal(t, time.Duration(0), seg.Duration())

	seg, err = newTestDecoder().Decode("", "audio/opus", "")
	require.NoError(t, err)
	assert.Empty(t, seg.Samples)
}

func TestDecodeFailures(t *testing.T) {
	d := newTestDecoder()

	_, err := d.Decode("%%%not-base64", "", "")
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = d.Decode("AAAA", "audio/mpeg", "")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestSegmentDuration(t *testing.T) {
	s := Segment{Samples: make([]int16, 12000), SampleRate: 24000}
	assert.Equal(t, 500*time.Millisecond, s.Duration())
	assert.Equal(t, time.Duration(0), Segment{Samples: make([]int16, 10)}.Duration())
}

func TestBytesToInt16DropsOddByte(t *testing.T) {
	assert.Equal(t, []int16{0x0201}, bytesToInt16([]byte{0x01, 0x02, 0x03}))
}

func TestDecodeOpus(t *testing.T) {
	enc, err := opus.NewEncoder(24000, 1, opus.AppVoIP)
	require.NoError(t, err)

	// 20ms
	pcm := make([]int16, 480)
	for i := range pcm {
		pcm[i] = int16(i * 50)
	}
	packet := make([]byte, 1000)
	n, err := enc.Encode(pcm, packet)
	require.NoError(t, err)

	d := newTestDecoder()
	defer d.Close()

	payload := base64.StdEncoding.EncodeToString(packet[:n])
	seg, err := d.Decode(payload, "audio/opus", "op-1")
	require.NoError(t, err)
	assert.Len(t, seg.Samples, 480)
	assert.Equal(t, 20*time.Millisecond, seg.Duration())

	_, err = d.Decode(base64.StdEncoding.EncodeToString([]byte{0xff, 0xff, 0xff}), "audio/opus", "")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
