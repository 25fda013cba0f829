package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lisuiheng/rtvoice/audio"
	"github.com/lisuiheng/rtvoice/metrics"
	"github.com/lisuiheng/rtvoice/pkg/interfaces"
	"github.com/lisuiheng/rtvoice/pkg/protocol"
	"github.com/lisuiheng/rtvoice/protocols/websocket"
	"github.com/lisuiheng/rtvoice/utils"
)

// DeviceState 表示会话状态
type DeviceState string

const (
	DeviceStateUnknown      DeviceState = "unknown"
	DeviceStateConnecting   DeviceState = "connecting"
	DeviceStateIdle         DeviceState = "idle"
	DeviceStateListening    DeviceState = "listening"
	DeviceStateSpeaking     DeviceState = "speaking"
	DeviceStateDisconnected DeviceState = "disconnected"
)

// Status 包含会话状态信息
type Status struct {
	State            DeviceState
	SessionID        string
	ConnectionStatus string
	StatusText       string
}

// Options 会话依赖，未设置的字段使用真实设备和默认实现
type Options struct {
	Logger   *slog.Logger
	Observer Observer
	Metrics  *metrics.Metrics
	Dialer   websocket.Dialer
	Recorder audio.Recorder
	// NewDevice 在 Run 开始时获取输出设备，Run 返回时关闭
	NewDevice func(cfg Config, logger *slog.Logger) (audio.Device, error)
}

// Session 把采集、传输和播放队列连接在一起。
// 所有状态只在事件循环中修改，公开的操作方法通过投递任务实现，可在任意 goroutine 调用。
type Session struct {
	config    Config
	logger    *slog.Logger
	observer  Observer
	metrics   *metrics.Metrics
	loop      *utils.Loop
	exec      utils.Executor
	transport interfaces.TransportProtocol
	recorder  audio.Recorder
	decoder   *audio.Decoder
	ctrl      audio.Controller
	newDevice func(cfg Config, logger *slog.Logger) (audio.Device, error)

	device    audio.Device
	queue     *audio.Queue
	running   bool
	recording bool

	stateMutex sync.RWMutex
	state      DeviceState
	sessionID  string
}

// NewSession 创建一个新的语音会话
func NewSession(cfg Config, opts Options) (*Session, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	loop := utils.NewLoop(opts.Logger)
	s, err := newSession(cfg, opts, loop)
	if err != nil {
		return nil, err
	}
	s.loop = loop
	return s, nil
}

func newSession(cfg Config, opts Options, exec utils.Executor) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(prometheus.NewRegistry())
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.NewDialer(cfg.System.Network.Websocket.DialTimeout)
	}
	if opts.NewDevice == nil {
		opts.NewDevice = defaultDevice
	}
	if opts.Recorder == nil {
		recorder, err := audio.NewRecorder(audio.Config{
			SampleRate:    cfg.Audio.InputSampleRate,
			Channels:      cfg.Audio.Channels,
			FrameInterval: cfg.Audio.FrameInterval,
		}, opts.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create audio recorder: %w", err)
		}
		opts.Recorder = recorder
	}
	if cfg.System.ClientID == "" {
		cfg.System.ClientID = uuid.NewString()
	}

	strategy, err := utils.NewReconnectStrategy(cfg.Reconnect.Strategy, cfg.Reconnect.Interval)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	s := &Session{
		config:    cfg,
		logger:    opts.Logger,
		observer:  opts.Observer,
		metrics:   opts.Metrics,
		exec:      exec,
		recorder:  opts.Recorder,
		decoder:   audio.NewDecoder(cfg.Audio.OutputSampleRate, opts.Logger),
		ctrl:      audio.NewController(),
		newDevice: opts.NewDevice,
		state:     DeviceStateUnknown,
	}

	ws := cfg.System.Network.Websocket
	transport, err := websocket.NewWebSocketProtocol(websocket.Config{
		URL:             ws.URL,
		AccessToken:     ws.AccessToken,
		ProtocolVersion: ws.ProtocolVersion,
		DeviceID:        cfg.System.DeviceID,
		ClientID:        cfg.System.ClientID,
		DialTimeout:     ws.DialTimeout,
		MaxAttempts:     cfg.Reconnect.MaxAttempts,
		Strategy:        strategy,
	}, opts.Dialer, exec, &transportEvents{s: s}, opts.Metrics, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	s.transport = transport
	return s, nil
}

func defaultDevice(cfg Config, logger *slog.Logger) (audio.Device, error) {
	return audio.NewPCMPlayer(
		cfg.Audio.OutputSampleRate,
		cfg.Audio.OutputFrameMs,
		cfg.Audio.Channels,
		cfg.Audio.Gain,
		logger,
	)
}

// Run 获取输出设备、建立连接并运行事件循环，直到 ctx 取消或 Close 被调用
func (s *Session) Run(ctx context.Context) error {
	if s.loop == nil {
		return errors.New("session has no event loop")
	}
	s.logger.Info("Starting session main loop")
	defer s.logger.Info("Session main loop stopped")

	if err := s.start(); err != nil {
		return err
	}
	err := s.loop.Run(ctx)
	s.shutdown()
	return err
}

// Close 停止事件循环，Run 会在释放资源后返回
func (s *Session) Close() error {
	s.logger.Info("Closing session")
	if s.loop != nil {
		s.loop.Stop()
	}
	return nil
}

func (s *Session) start() error {
	device, err := s.newDevice(s.config, s.logger)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	s.device = device
	s.queue = audio.NewQueue(device, s.exec, s.metrics, s.logger)
	s.queue.OnStateChange(s.handlePlaybackChange)
	s.running = true

	s.logger.Info("Connecting to server", "url", s.config.System.Network.Websocket.URL)
	s.setState(DeviceStateConnecting)
	s.transport.Connect()
	return nil
}

func (s *Session) shutdown() {
	if !s.running {
		return
	}
	if s.recording {
		s.stopRecording()
	}
	if err := s.transport.Close(); err != nil {
		s.logger.Error("Failed to close WebSocket connection", "error", err)
	}
	s.queue.Stop()
	s.running = false

	if err := s.device.Close(); err != nil {
		s.logger.Error("Failed to close audio device", "error", err)
	}
	s.device = nil
	s.decoder.Close()
	s.setState(DeviceStateDisconnected)
	s.logger.Info("Session closed successfully")
}

// post 把操作投递到事件循环
func (s *Session) post(fn func()) error {
	if !s.exec.Post(fn) {
		return ErrNotRunning
	}
	return nil
}

func (s *Session) StartRecording() error {
	return s.post(func() {
		if err := s.startRecording(); err != nil {
			s.logger.Warn("Cannot start recording", "error", err)
		}
	})
}

func (s *Session) StopRecording() error {
	return s.post(func() {
		if err := s.stopRecording(); err != nil {
			s.logger.Warn("Cannot stop recording", "error", err)
		}
	})
}

func (s *Session) ToggleRecording() error {
	return s.post(func() {
		var err error
		if s.recording {
			err = s.stopRecording()
		} else {
			err = s.startRecording()
		}
		if err != nil {
			s.logger.Warn("Failed to toggle recording", "error", err)
		}
	})
}

// SendText 发送一条文本消息
func (s *Session) SendText(text string) error {
	return s.post(func() { s.transport.Send(protocol.NewUserMessage(text)) })
}

// Interrupt 通知服务端打断当前回复，并立即停止本地播放
func (s *Session) Interrupt() error {
	return s.post(func() {
		s.transport.Send(protocol.NewInterrupt())
		if s.queue != nil {
			s.queue.Stop()
		}
		s.logger.Info("Interrupted response playback")
	})
}

// ClearServerAudio 让服务端丢弃已接收但未处理的输入音频
func (s *Session) ClearServerAudio() error {
	return s.post(func() { s.transport.Send(protocol.NewClearAudioBuffer()) })
}

// UpdateSession 保存会话配置，连接已打开时立即发送
func (s *Session) UpdateSession(cfg protocol.SessionConfig) error {
	return s.post(func() {
		s.config.Session = cfg
		if s.transport.State().State == interfaces.StateOpen {
			s.sendSessionUpdate()
		}
	})
}

// Reconnect 手动重连，重连次数耗尽后也可使用
func (s *Session) Reconnect() error {
	return s.post(func() {
		if s.running {
			s.transport.Connect()
		}
	})
}

func (s *Session) startRecording() error {
	if !s.running {
		return ErrNotRunning
	}
	if s.recording {
		return ErrAlreadyRecording
	}

	err := s.recorder.Start(func(f audio.Frame) {
		s.exec.Post(func() { s.handleFrame(f) })
	})
	if err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}

	s.recording = true
	s.ctrl.SetRecording(true)
	s.logger.Info("Recording started, playback continues")
	s.refreshState()
	return nil
}

func (s *Session) stopRecording() error {
	if !s.recording {
		return ErrNotRecording
	}

	s.recording = false
	s.ctrl.SetRecording(false)
	if err := s.recorder.Stop(); err != nil {
		s.logger.Error("Failed to stop recorder", "error", err)
	}
	s.handleRecordingStopped()
	return nil
}

// handleRecordingStopped 用户结束发言后不再播放已排队的回复
func (s *Session) handleRecordingStopped() {
	dropped := s.queue.Clear()
	s.logger.Info("Recording stopped", "dropped_segments", dropped)
	s.refreshState()
}

// handleFrame 无条件转发采集帧，发送失败不会反馈给采集端
func (s *Session) handleFrame(f audio.Frame) {
	s.metrics.FramesCaptured.Inc()
	if s.transport.Send(protocol.NewAudio(f.Audio)) {
		s.metrics.FramesSent.Inc()
	} else {
		s.metrics.FramesDropped.Inc()
	}
}

func (s *Session) handleEvent(event protocol.Event) {
	switch msg := event.(type) {
	case *protocol.ConnectionEstablished:
		s.logger.Info("Connection established with backend", "model", msg.Model, "storage", msg.Storage)
		s.setSessionID(msg.SessionID)
		s.observer.OnConnectionEstablished(msg)
	case *protocol.SessionReady:
		s.logger.Info("Session ready", "message", msg.Message)
		s.setSessionID(msg.SessionID)
		s.observer.OnSessionReady(msg)

	case *protocol.AudioChunk:
		s.playAudio(msg.Payload(), "", msg.ID)
	case *protocol.AudioResponse:
		s.playAudio(msg.Audio, msg.MimeType, "")
	case *protocol.ResponseAudioDelta:
		s.playAudio(msg.Delta, "", "")

	case *protocol.ResponseCompleted:
		s.logger.Info("Response completed", "response_id", msg.ResponseID)
		s.observer.OnResponseCompleted(msg.ResponseID)
	case *protocol.TurnComplete, *protocol.ResponseDone:
		s.observer.OnResponseCompleted("")

	case *protocol.TextChunk:
		s.observer.OnAssistantText(msg.Text, false)
	case *protocol.ResponseAudioTranscriptDelta:
		s.observer.OnAssistantText(msg.Delta, false)
	case *protocol.TextCompleted:
		s.observer.OnAssistantText(msg.Text, true)
	case *protocol.UserTranscript:
		s.observer.OnUserTranscript(msg.Transcript)
	case *protocol.InputAudioTranscriptionCompleted:
		s.observer.OnUserTranscript(msg.Transcript)

	case *protocol.ErrorMessage:
		// 服务端错误只展示给用户，不影响连接和播放
		s.logger.Error("Received error message",
			"session_id", msg.SessionID,
			"code", msg.Code,
			"error", msg.Message,
			"details", msg.Details)
		s.observer.OnServerError(msg)

	case *protocol.SpeechStarted, *protocol.SpeechStopped, *protocol.ResponseStarted, *protocol.AudioCompleted:
		s.logger.Debug("Received lifecycle event", "type", event.EventType())
		s.observer.OnEvent(event.EventType())

	default:
		s.logger.Warn("Unhandled message type", "type", event.EventType())
	}
}

// playAudio 解码失败只记录日志，不影响队列中其它片段
func (s *Session) playAudio(payload, mimeType, id string) {
	if s.queue == nil {
		s.logger.Warn("Dropping audio chunk, playback not started")
		return
	}

	seg, err := s.decoder.Decode(payload, mimeType, id)
	if err != nil {
		s.metrics.DecodeFailures.Inc()
		s.logger.Error("Failed to decode audio chunk", "error", err, "id", id)
		return
	}
	s.queue.Enqueue(seg)
}

func (s *Session) handlePlaybackChange(playing bool) {
	s.ctrl.SetPlaying(playing)
	s.refreshState()
}

func (s *Session) sendSessionUpdate() {
	if s.config.Session.IsZero() {
		return
	}
	s.transport.Send(protocol.NewSessionUpdate(s.config.Session))
}

// refreshState 根据连接、录音和播放情况推导会话状态
func (s *Session) refreshState() {
	conn := s.transport.State()

	var next DeviceState
	switch {
	case !s.running || conn.Exhausted:
		next = DeviceStateDisconnected
	case conn.State != interfaces.StateOpen:
		next = DeviceStateConnecting
	case s.recording:
		next = DeviceStateListening
	case s.queue.Playing():
		next = DeviceStateSpeaking
	default:
		next = DeviceStateIdle
	}
	s.setState(next)
}

// GetStatus 获取当前状态，可在任意 goroutine 调用
func (s *Session) GetStatus() Status {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()

	return Status{
		State:            s.state,
		SessionID:        s.sessionID,
		ConnectionStatus: s.transport.State().String(),
		StatusText:       s.ctrl.StatusText(),
	}
}

// GetState 获取当前会话状态
func (s *Session) GetState() DeviceState {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	return s.state
}

func (s *Session) setState(newState DeviceState) {
	s.stateMutex.Lock()
	oldState := s.state
	s.state = newState
	s.stateMutex.Unlock()

	if oldState != newState {
		s.logger.Info("State changed",
			"from", oldState,
			"to", newState)
		s.observer.OnStateChange(oldState, newState)
	}
}

func (s *Session) setSessionID(id string) {
	if id == "" {
		return
	}
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.sessionID = id
}

// transportEvents 把传输层事件转给 Session，避免 Session 暴露回调方法
type transportEvents struct {
	s *Session
}

func (t *transportEvents) OnOpen() {
	t.s.refreshState()
	t.s.sendSessionUpdate()
}

func (t *transportEvents) OnClose() {
	t.s.refreshState()
}

func (t *transportEvents) OnError(err error) {
	t.s.logger.Warn("Transport error", "error", err)
	t.s.observer.OnTransportError(err)
}

func (t *transportEvents) OnExhausted() {
	t.s.logger.Error("Disconnected from server, restart required")
	t.s.refreshState()
}

func (t *transportEvents) OnMessage(event protocol.Event) {
	t.s.handleEvent(event)
}
