// audio/interface.go
package audio

// Controller 记录录音与播放状态，供状态显示使用。录音和播放可以同时进行。
type Controller interface {
	SetRecording(recording bool)
	SetPlaying(playing bool)
	IsRecording() bool
	IsPlaying() bool
	StatusText() string
}

// Source 输出设备上的一次播放
type Source interface {
	Start() error
	// Stop 立即停止，之后不会再触发结束回调
	Stop() error
}

// Device 音频输出设备。onEnded 在片段自然播放结束时调用，可能在任意 goroutine 中。
type Device interface {
	CreateSource(seg Segment, onEnded func()) (Source, error)
	SampleRate() int
	Close() error
}

// Frame 采集到的一帧音频
type Frame struct {
	Seq        uint64
	Audio      string // base64 PCM16 LE
	SampleRate int
}

// Recorder 定义音频采集接口。onFrame 在驱动线程中按采集顺序调用。
type Recorder interface {
	Start(onFrame func(Frame)) error
	Stop() error
}
