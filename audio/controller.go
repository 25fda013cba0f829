// audio/controller.go
package audio

import "sync"

// controller 实现音频状态记录，录音与播放互不排斥
type controller struct {
	mu        sync.Mutex
	recording bool
	playing   bool
}

// NewController 创建新的音频控制器实例
func NewController() Controller {
	return &controller{}
}

func (c *controller) SetRecording(recording bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recording = recording
}

func (c *controller) SetPlaying(playing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = playing
}

func (c *controller) IsRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

func (c *controller) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// StatusText 录音优先于播放
func (c *controller) StatusText() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.recording:
		return "Listening…"
	case c.playing:
		return "Speaking…"
	default:
		return "Tap to start"
	}
}
