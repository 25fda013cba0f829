// pkg/protocol/events.go
package protocol

// 服务端 -> 客户端 消息类型
const (
	TypeConnectionEstablished = "connection_established"
	TypeSessionReady          = "session_ready"
	TypeSpeechStarted         = "speech_started"
	TypeSpeechStopped         = "speech_stopped"
	TypeResponseStarted       = "response_started"
	TypeResponseCompleted     = "response_completed"
	TypeAudioChunk            = "audio_chunk"
	TypeAudioCompleted        = "audio_completed"
	TypeTextChunk             = "text_chunk"
	TypeTextCompleted         = "text_completed"
	TypeUserTranscript        = "user_transcript"
	TypeError                 = "error"

	// 兼容旧版本服务端
	TypeAudioResponse                    = "audio"
	TypeTurnComplete                     = "turn_complete"
	TypeResponseAudioDelta               = "response.audio.delta"
	TypeResponseAudioTranscriptDelta     = "response.audio_transcript.delta"
	TypeResponseDone                     = "response.done"
	TypeInputAudioTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
)

// Event 是所有入站消息的公共接口
type Event interface {
	EventType() string
}

// Header 入站消息的公共字段。timestamp 在不同消息中可能是字符串或数字。
type Header struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Timestamp any    `json:"timestamp,omitempty"`
}

func (h Header) EventType() string { return h.Type }

type ConnectionEstablished struct {
	Header
	Model   string `json:"model,omitempty"`
	Storage string `json:"storage,omitempty"`
}

type SessionReady struct {
	Header
	Message string `json:"message"`
}

type SpeechStarted struct {
	Header
}

type SpeechStopped struct {
	Header
}

type ResponseStarted struct {
	Header
	ResponseID string `json:"response_id,omitempty"`
}

type ResponseCompleted struct {
	Header
	ResponseID string `json:"response_id,omitempty"`
}

// AudioChunk 音频数据可能放在 audio 或 data 字段
type AudioChunk struct {
	Header
	Audio string `json:"audio"`
	ID    string `json:"id,omitempty"`
	Data  string `json:"data,omitempty"`
}

// Payload 返回实际携带的 base64 音频
func (a *AudioChunk) Payload() string {
	if a.Audio != "" {
		return a.Audio
	}
	return a.Data
}

type AudioCompleted struct {
	Header
}

type TextChunk struct {
	Header
	Text string `json:"text"`
}

type TextCompleted struct {
	Header
	Text string `json:"text"`
}

type UserTranscript struct {
	Header
	Transcript string `json:"transcript"`
}

type ErrorMessage struct {
	Header
	Message string `json:"message"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

type AudioResponse struct {
	Header
	Audio    string `json:"audio"`
	MimeType string `json:"mime_type,omitempty"`
}

type TurnComplete struct {
	Header
}

type ResponseAudioDelta struct {
	Header
	Delta string `json:"delta"`
}

type ResponseAudioTranscriptDelta struct {
	Header
	Delta string `json:"delta"`
}

type ResponseDone struct {
	Header
}

type InputAudioTranscriptionCompleted struct {
	Header
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	Transcript   string `json:"transcript"`
}

// Unknown 无法识别的消息类型，保留原始数据便于排查
type Unknown struct {
	Header
	Raw []byte `json:"-"`
}
