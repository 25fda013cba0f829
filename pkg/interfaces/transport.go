// pkg/interfaces/transport.go
package interfaces

import (
	"errors"
	"fmt"

	"github.com/lisuiheng/rtvoice/pkg/protocol"
)

var (
	ErrConnectionFailed = errors.New("connection failed")
	ErrConnectionLost   = errors.New("connection lost")
	ErrNotConnected     = errors.New("not connected")
)

// TransportProtocol 一条可自动重连的消息连接。
// 除 State 外的方法都必须在事件循环中调用。
type TransportProtocol interface {
	Connect()
	Send(cmd protocol.Command) bool
	State() ConnState
	Close() error
	ProtocolType() string
}

// TransportHandler 接收连接事件，所有回调都在事件循环中执行
type TransportHandler interface {
	OnOpen()
	OnClose()
	OnError(err error)
	// OnExhausted 重连次数耗尽，之后不会再自动重连
	OnExhausted()
	OnMessage(event protocol.Event)
}

type ConnectionState int

const (
	StateConnecting ConnectionState = iota
	StateOpen
	StateClosed
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ConnState 连接状态快照
type ConnState struct {
	State       ConnectionState
	Attempt     int
	MaxAttempts int
	Exhausted   bool
}

func (c ConnState) String() string {
	switch {
	case c.Exhausted:
		return "closed(exhausted)"
	case c.State == StateReconnecting:
		return fmt.Sprintf("reconnecting(%d/%d)", c.Attempt, c.MaxAttempts)
	default:
		return c.State.String()
	}
}

type MessageType int

const (
	MsgText    MessageType = iota // JSON文本
	MsgBinary                     // 二进制数据
	MsgControl                    // 控制帧
)
