// pkg/protocol/codec.go
package protocol

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrMissingType      = errors.New("message type is missing")
)

// Encode 将出站消息序列化为单行 JSON
func Encode(cmd Command) ([]byte, error) {
	data, err := sonic.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s message: %w", cmd.CommandType(), err)
	}
	return data, nil
}

// Decode 解析入站 JSON 帧。未知 type 返回 *Unknown 而不是错误。
func Decode(data []byte) (Event, error) {
	var header Header
	if err := sonic.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if header.Type == "" {
		return nil, ErrMissingType
	}

	event := newEvent(header.Type)
	if event == nil {
		return &Unknown{Header: header, Raw: data}, nil
	}
	if err := sonic.Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, header.Type, err)
	}
	return event, nil
}

func newEvent(msgType string) Event {
	switch msgType {
	case TypeConnectionEstablished:
		return &ConnectionEstablished{}
	case TypeSessionReady:
		return &SessionReady{}
	case TypeSpeechStarted:
		return &SpeechStarted{}
	case TypeSpeechStopped:
		return &SpeechStopped{}
	case TypeResponseStarted:
		return &ResponseStarted{}
	case TypeResponseCompleted:
		return &ResponseCompleted{}
	case TypeAudioChunk:
		return &AudioChunk{}
	case TypeAudioCompleted:
		return &AudioCompleted{}
	case TypeTextChunk:
		return &TextChunk{}
	case TypeTextCompleted:
		return &TextCompleted{}
	case TypeUserTranscript:
		return &UserTranscript{}
	case TypeError:
		return &ErrorMessage{}
	case TypeAudioResponse:
		return &AudioResponse{}
	case TypeTurnComplete:
		return &TurnComplete{}
	case TypeResponseAudioDelta:
		return &ResponseAudioDelta{}
	case TypeResponseAudioTranscriptDelta:
		return &ResponseAudioTranscriptDelta{}
	case TypeResponseDone:
		return &ResponseDone{}
	case TypeInputAudioTranscriptionCompleted:
		return &InputAudioTranscriptionCompleted{}
	default:
		return nil
	}
}
