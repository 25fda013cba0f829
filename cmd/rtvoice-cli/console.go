package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/lisuiheng/rtvoice/core"
	"github.com/lisuiheng/rtvoice/pkg/protocol"
)

var _ core.Observer = (*console)(nil)

// console 彩色终端输出，同时作为会话的 Observer
type console struct {
	mu  sync.Mutex
	out io.Writer

	blue   func(a ...interface{}) string
	green  func(a ...interface{}) string
	red    func(a ...interface{}) string
	yellow func(a ...interface{}) string
	cyan   func(a ...interface{}) string
}

func newConsole(out io.Writer) *console {
	return &console{
		out:    out,
		blue:   color.New(color.FgBlue).SprintFunc(),
		green:  color.New(color.FgGreen).SprintFunc(),
		red:    color.New(color.FgRed).SprintFunc(),
		yellow: color.New(color.FgYellow).SprintFunc(),
		cyan:   color.New(color.FgCyan).SprintFunc(),
	}
}

func (c *console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) prompt() {
	c.printf("\n%s ", c.blue("rtvoice>"))
}

func (c *console) ok(cmd string) {
	c.printf("%s %s\n", c.green("✓"), cmd)
}

func (c *console) fail(err error) {
	c.printf("%s Error: %v\n", c.red("✗"), err)
}

func (c *console) status(s core.Status) {
	c.printf("\nCurrent Status:\n")
	c.printf("  State: %s\n", s.State)
	c.printf("  Session ID: %s\n", s.SessionID)
	c.printf("  Connection: %s\n", s.ConnectionStatus)
	c.printf("  %s\n", s.StatusText)
}

func (c *console) help() {
	c.printf("\nAvailable commands:\n")
	c.printf("  rec           - Toggle recording\n")
	c.printf("  start / stop  - Start or stop recording\n")
	c.printf("  say <text>    - Send a text message\n")
	c.printf("  interrupt     - Interrupt the current response\n")
	c.printf("  clear         - Clear server-side input audio\n")
	c.printf("  reconnect     - Reconnect to the server\n")
	c.printf("  status        - Show current status\n")
	c.printf("  exit/quit     - Exit the program\n")
	c.printf("  help          - Show this help message\n")
}

func (c *console) OnStateChange(from, to core.DeviceState) {
	label := string(to)
	switch to {
	case core.DeviceStateListening:
		label = c.green(label)
	case core.DeviceStateSpeaking:
		label = c.cyan(label)
	case core.DeviceStateDisconnected:
		label = c.red(label) + " (use 'reconnect' to try again)"
	case core.DeviceStateConnecting:
		label = c.yellow(label)
	}
	c.printf("\n[%s] %s -> %s\n", c.blue("state"), from, label)
}

func (c *console) OnConnectionEstablished(msg *protocol.ConnectionEstablished) {
	c.printf("\n%s connected (model %s)\n", c.green("●"), msg.Model)
}

func (c *console) OnSessionReady(msg *protocol.SessionReady) {
	c.printf("\n%s session ready %s\n", c.green("●"), msg.SessionID)
}

func (c *console) OnResponseCompleted(string) {
	c.printf("\n%s response completed\n", c.green("✓"))
}

func (c *console) OnAssistantText(text string, final bool) {
	if final {
		c.printf("\n%s %s\n", c.cyan("assistant:"), text)
		return
	}
	c.printf("%s", text)
}

func (c *console) OnUserTranscript(transcript string) {
	c.printf("\n%s %s\n", c.yellow("you:"), transcript)
}

func (c *console) OnServerError(msg *protocol.ErrorMessage) {
	c.printf("\n%s server error %s: %s\n", c.red("✗"), msg.Code, msg.Message)
}

func (c *console) OnTransportError(err error) {
	c.printf("\n%s connection error: %v\n", c.red("✗"), err)
}

func (c *console) OnEvent(eventType string) {
	c.printf("\n[%s] %s\n", c.blue("event"), eventType)
}
