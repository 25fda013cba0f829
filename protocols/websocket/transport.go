// protocols/websocket/transport.go
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lisuiheng/rtvoice/metrics"
	"github.com/lisuiheng/rtvoice/pkg/interfaces"
	"github.com/lisuiheng/rtvoice/pkg/protocol"
	"github.com/lisuiheng/rtvoice/utils"
)

var _ interfaces.TransportProtocol = (*WSProtocol)(nil)

const (
	DefaultMaxAttempts       = 5
	DefaultReconnectInterval = 3000 * time.Millisecond
	sendBufferSize           = 256
)

// Config 定义websocket特有的配置
type Config struct {
	URL             string
	AccessToken     string
	ProtocolVersion int
	DeviceID        string
	ClientID        string
	// DialTimeout 为 0 时只依赖底层握手超时
	DialTimeout time.Duration
	MaxAttempts int
	Strategy    utils.ReconnectStrategy
}

// WSProtocol 维护到固定地址的一条逻辑连接，断开后按固定间隔有限次重连。
//
// 状态机：Connecting -> Open -> Closed -> Reconnecting -> Connecting ...
// 连续失败 MaxAttempts 次后停在 Closed(exhausted)。
// 除 State 外所有字段只在事件循环中访问。
type WSProtocol struct {
	config  Config
	dialer  Dialer
	loop    utils.Executor
	handler interfaces.TransportHandler
	logger  *slog.Logger
	metrics *metrics.Metrics

	state      interfaces.ConnectionState
	attempt    int
	exhausted  bool
	closed     bool
	gen        uint64
	conn       Conn
	out        chan []byte
	retry      utils.Timer
	cancelDial context.CancelFunc

	snapMu sync.RWMutex
	snap   interfaces.ConnState
}

func NewWebSocketProtocol(config Config, dialer Dialer, loop utils.Executor, handler interfaces.TransportHandler, m *metrics.Metrics, logger *slog.Logger) (*WSProtocol, error) {
	if config.URL == "" {
		return nil, errors.New("websocket url is empty")
	}
	if dialer == nil || loop == nil || handler == nil || m == nil || logger == nil {
		return nil, errors.New("websocket transport: missing dependency")
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.Strategy == nil {
		config.Strategy = utils.NewFixedBackoff(DefaultReconnectInterval)
	}

	p := &WSProtocol{
		config:  config,
		dialer:  dialer,
		loop:    loop,
		handler: handler,
		logger:  logger,
		metrics: m,
		state:   interfaces.StateConnecting,
	}
	p.publish()
	return p, nil
}

func (p *WSProtocol) ProtocolType() string { return "websocket" }

// Connect 发起一次拨号。也用于重连耗尽后的人工重连，此时清零重试计数。
func (p *WSProtocol) Connect() {
	if p.closed {
		p.logger.Warn("Connect called on closed transport")
		return
	}
	if p.state == interfaces.StateOpen || (p.state == interfaces.StateConnecting && p.cancelDial != nil) {
		return
	}
	if p.exhausted {
		p.exhausted = false
		p.attempt = 0
		p.config.Strategy.Reset()
	}
	p.cancelRetry()
	p.dial()
}

func (p *WSProtocol) dial() {
	p.gen++
	gen := p.gen
	p.setState(interfaces.StateConnecting)
	p.metrics.DialAttempts.Inc()

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if p.config.DialTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), p.config.DialTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	p.cancelDial = cancel

	header := p.headers()
	p.logger.Info("Connecting to server", "url", p.config.URL, "attempt", p.attempt)

	go func() {
		conn, err := p.dialer.Dial(ctx, p.config.URL, header)
		if !p.loop.Post(func() { p.handleDialResult(gen, conn, err) }) && conn != nil {
			conn.Close()
		}
	}()
}

func (p *WSProtocol) headers() http.Header {
	headers := http.Header{}
	if p.config.AccessToken != "" {
		headers.Set("Authorization", fmt.Sprintf("Bearer %s", p.config.AccessToken))
	}
	if p.config.ProtocolVersion > 0 {
		headers.Set("Protocol-Version", fmt.Sprintf("%d", p.config.ProtocolVersion))
	}
	if p.config.DeviceID != "" {
		headers.Set("Device-Id", p.config.DeviceID)
	}
	if p.config.ClientID != "" {
		headers.Set("Client-Id", p.config.ClientID)
	}
	return headers
}

func (p *WSProtocol) handleDialResult(gen uint64, conn Conn, err error) {
	if gen != p.gen || p.closed {
		if conn != nil {
			conn.Close()
		}
		return
	}
	if p.cancelDial != nil {
		p.cancelDial()
		p.cancelDial = nil
	}

	if err != nil {
		p.logger.Error("Failed to connect to server", "error", err, "attempt", p.attempt)
		p.handler.OnError(fmt.Errorf("%w: %v", interfaces.ErrConnectionFailed, err))
		p.handleClosed()
		return
	}

	p.conn = conn
	p.out = make(chan []byte, sendBufferSize)
	p.attempt = 0
	p.config.Strategy.Reset()
	p.setState(interfaces.StateOpen)

	go p.readPump(gen, conn)
	go p.writePump(conn, p.out)

	p.logger.Info("Connected to server successfully", "url", p.config.URL)
	p.handler.OnOpen()
}

func (p *WSProtocol) readPump(gen uint64, conn Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			p.loop.Post(func() { p.handleDisconnect(gen, err) })
			return
		}
		p.loop.Post(func() { p.handleFrame(gen, msgType, data) })
	}
}

// writePump 是连接唯一的写者，发送失败时关闭连接让 readPump 走断线流程
func (p *WSProtocol) writePump(conn Conn, out <-chan []byte) {
	for data := range out {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			p.logger.Error("Failed to write message", "error", err)
			conn.Close()
			for range out {
			}
			return
		}
	}
}

func (p *WSProtocol) handleDisconnect(gen uint64, err error) {
	if gen != p.gen || p.conn == nil {
		return
	}
	if !isNormalClose(err) {
		p.handler.OnError(fmt.Errorf("%w: %v", interfaces.ErrConnectionLost, err))
	}
	p.logger.Info("Connection closed", "error", err)
	p.handleClosed()
}

// handleClosed 连接失败或断开后的统一处理：上报 closed，并决定是否安排重连
func (p *WSProtocol) handleClosed() {
	p.teardown()
	p.setState(interfaces.StateClosed)
	p.handler.OnClose()

	if p.closed {
		return
	}
	if p.attempt >= p.config.MaxAttempts {
		p.exhausted = true
		p.publish()
		p.logger.Error("Reconnect attempts exhausted", "max_attempts", p.config.MaxAttempts)
		p.handler.OnExhausted()
		return
	}

	p.attempt++
	delay := p.config.Strategy.NextDelay()
	p.setState(interfaces.StateReconnecting)
	p.metrics.Reconnects.Inc()
	p.logger.Info("Attempting to reconnect",
		"attempt", p.attempt,
		"max_attempts", p.config.MaxAttempts,
		"delay", delay)

	p.cancelRetry()
	p.retry = p.loop.AfterFunc(delay, func() {
		p.retry = nil
		if p.closed || p.state != interfaces.StateReconnecting {
			return
		}
		p.dial()
	})
}

func (p *WSProtocol) handleFrame(gen uint64, wsType int, data []byte) {
	if gen != p.gen {
		return
	}
	if convertMsgType(wsType) != interfaces.MsgText {
		p.logger.Debug("Dropping non-text frame", "size", len(data))
		return
	}

	event, err := protocol.Decode(data)
	if err != nil {
		p.metrics.ParseErrors.Inc()
		p.logger.Error("Failed to parse message", "error", err, "raw_message", string(data))
		return
	}

	// 未知类型统一计入 unknown，标签取值由本地消息表决定
	if _, ok := event.(*protocol.Unknown); ok {
		p.metrics.MessagesReceived.WithLabelValues("unknown").Inc()
		p.logger.Warn("Unknown message type received", "type", event.EventType())
		return
	}
	p.metrics.MessagesReceived.WithLabelValues(event.EventType()).Inc()
	p.handler.OnMessage(event)
}

// Send 仅在连接打开时发送，否则丢弃并记录告警。出站消息不缓存也不重试。
func (p *WSProtocol) Send(cmd protocol.Command) bool {
	if p.state != interfaces.StateOpen || p.out == nil {
		p.logger.Warn("WebSocket not ready, dropping message",
			"type", cmd.CommandType(),
			"state", p.state,
			"error", interfaces.ErrNotConnected)
		return false
	}

	data, err := protocol.Encode(cmd)
	if err != nil {
		p.logger.Error("Failed to encode message", "error", err)
		return false
	}

	select {
	case p.out <- data:
		return true
	default:
		p.logger.Warn("Send buffer full, dropping message", "type", cmd.CommandType())
		return false
	}
}

// Close 关闭连接并取消挂起的重连，之后不会再重连
func (p *WSProtocol) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.gen++
	p.cancelRetry()
	if p.cancelDial != nil {
		p.cancelDial()
		p.cancelDial = nil
	}
	err := p.teardown()
	p.setState(interfaces.StateClosed)
	return err
}

// State 可在任意 goroutine 中调用
func (p *WSProtocol) State() interfaces.ConnState {
	p.snapMu.RLock()
	defer p.snapMu.RUnlock()
	return p.snap
}

func (p *WSProtocol) teardown() error {
	if p.out != nil {
		close(p.out)
		p.out = nil
	}
	if p.conn == nil {
		return nil
	}
	conn := p.conn
	p.conn = nil
	return conn.Close()
}

func (p *WSProtocol) cancelRetry() {
	if p.retry != nil {
		p.retry.Stop()
		p.retry = nil
	}
}

func (p *WSProtocol) setState(state interfaces.ConnectionState) {
	if p.state != state {
		p.logger.Debug("Connection state changed", "from", p.state, "to", state)
	}
	p.state = state
	p.metrics.ConnectionState.Set(float64(state))
	p.publish()
}

func (p *WSProtocol) publish() {
	p.snapMu.Lock()
	defer p.snapMu.Unlock()
	p.snap = interfaces.ConnState{
		State:       p.state,
		Attempt:     p.attempt,
		MaxAttempts: p.config.MaxAttempts,
		Exhausted:   p.exhausted,
	}
}
