// pkg/protocol/commands.go
package protocol

// 客户端 -> 服务端 消息类型
const (
	TypeAudio                 = "audio"
	TypeUserMessage           = "user_message"
	TypeInterrupt             = "interrupt"
	TypeClearAudioBuffer      = "clear_audio_buffer"
	TypeSessionUpdate         = "session.update"
	TypeInputAudioBufferAdd   = "input_audio_buffer.append"
	TypeInputAudioBufferClear = "input_audio_buffer.clear"
)

// Command 是所有出站消息的公共接口
type Command interface {
	CommandType() string
}

type AudioCommand struct {
	Type       string `json:"type"`
	Audio      string `json:"audio"`
	Format     string `json:"format,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

func (c AudioCommand) CommandType() string { return c.Type }

// NewAudio 构造一帧上行音频（base64 PCM）
func NewAudio(audio string) AudioCommand {
	return AudioCommand{Type: TypeAudio, Audio: audio}
}

type UserMessageCommand struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (c UserMessageCommand) CommandType() string { return c.Type }

func NewUserMessage(text string) UserMessageCommand {
	return UserMessageCommand{Type: TypeUserMessage, Text: text}
}

// SimpleCommand 只包含 type 字段的控制指令
type SimpleCommand struct {
	Type string `json:"type"`
}

func (c SimpleCommand) CommandType() string { return c.Type }

func NewInterrupt() SimpleCommand { return SimpleCommand{Type: TypeInterrupt} }

func NewClearAudioBuffer() SimpleCommand { return SimpleCommand{Type: TypeClearAudioBuffer} }

func NewInputAudioBufferClear() SimpleCommand {
	return SimpleCommand{Type: TypeInputAudioBufferClear}
}

type InputAudioBufferAppendCommand struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

func (c InputAudioBufferAppendCommand) CommandType() string { return c.Type }

func NewInputAudioBufferAppend(audio string) InputAudioBufferAppendCommand {
	return InputAudioBufferAppendCommand{Type: TypeInputAudioBufferAdd, Audio: audio}
}

type SessionUpdateCommand struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

func (c SessionUpdateCommand) CommandType() string { return c.Type }

func NewSessionUpdate(session SessionConfig) SessionUpdateCommand {
	return SessionUpdateCommand{Type: TypeSessionUpdate, Session: session}
}

// SessionConfig 对应 session.update 中的 session 字段，同时用于配置文件映射
type SessionConfig struct {
	Modalities              []string             `json:"modalities,omitempty" mapstructure:"modalities"`
	Instructions            string               `json:"instructions,omitempty" mapstructure:"instructions"`
	Voice                   string               `json:"voice,omitempty" mapstructure:"voice"`
	InputAudioFormat        string               `json:"input_audio_format,omitempty" mapstructure:"input_audio_format"`
	OutputAudioFormat       string               `json:"output_audio_format,omitempty" mapstructure:"output_audio_format"`
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitempty" mapstructure:"input_audio_transcription"`
	TurnDetection           *TurnDetection       `json:"turn_detection,omitempty" mapstructure:"turn_detection"`
	Tools                   []map[string]any     `json:"tools,omitempty" mapstructure:"tools"`
	ToolChoice              string               `json:"tool_choice,omitempty" mapstructure:"tool_choice"`
	Temperature             *float64             `json:"temperature,omitempty" mapstructure:"temperature"`
	MaxResponseOutputTokens int                  `json:"max_response_output_tokens,omitempty" mapstructure:"max_response_output_tokens"`
}

// IsZero 判断是否未配置任何字段
func (s SessionConfig) IsZero() bool {
	return len(s.Modalities) == 0 &&
		s.Instructions == "" &&
		s.Voice == "" &&
		s.InputAudioFormat == "" &&
		s.OutputAudioFormat == "" &&
		s.InputAudioTranscription == nil &&
		s.TurnDetection == nil &&
		len(s.Tools) == 0 &&
		s.ToolChoice == "" &&
		s.Temperature == nil &&
		s.MaxResponseOutputTokens == 0
}

type TranscriptionConfig struct {
	Model string `json:"model" mapstructure:"model"`
}

// TurnDetection type 取值 server_vad 或 semantic_vad
type TurnDetection struct {
	Type              string   `json:"type" mapstructure:"type"`
	Threshold         *float64 `json:"threshold,omitempty" mapstructure:"threshold"`
	PrefixPaddingMs   int      `json:"prefix_padding_ms,omitempty" mapstructure:"prefix_padding_ms"`
	SilenceDurationMs int      `json:"silence_duration_ms,omitempty" mapstructure:"silence_duration_ms"`
	CreateResponse    *bool    `json:"create_response,omitempty" mapstructure:"create_response"`
}
