package core

import "github.com/lisuiheng/rtvoice/pkg/protocol"

// Observer 接收需要展示给用户的会话事件，所有回调都在事件循环中执行，不应阻塞
type Observer interface {
	OnStateChange(from, to DeviceState)
	OnConnectionEstablished(msg *protocol.ConnectionEstablished)
	OnSessionReady(msg *protocol.SessionReady)
	OnResponseCompleted(responseID string)
	OnAssistantText(text string, final bool)
	OnUserTranscript(transcript string)
	OnServerError(msg *protocol.ErrorMessage)
	OnTransportError(err error)
	// OnEvent 其它没有专门回调的生命周期事件，如 speech_started
	OnEvent(eventType string)
}

// NopObserver 空实现，可嵌入只关心部分事件的 Observer
type NopObserver struct{}

func (NopObserver) OnStateChange(DeviceState, DeviceState)                {}
func (NopObserver) OnConnectionEstablished(*protocol.ConnectionEstablished) {}
func (NopObserver) OnSessionReady(*protocol.SessionReady)                   {}
func (NopObserver) OnResponseCompleted(string)                             {}
func (NopObserver) OnAssistantText(string, bool)                           {}
func (NopObserver) OnUserTranscript(string)                                {}
func (NopObserver) OnServerError(*protocol.ErrorMessage)                   {}
func (NopObserver) OnTransportError(error)                                 {}
func (NopObserver) OnEvent(string)                                         {}
