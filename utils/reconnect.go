package utils

import (
	"fmt"
	"time"
)

type ReconnectStrategy interface {
	NextDelay() time.Duration
	Reset()
}

// FixedBackoff 每次重连都等待相同的间隔
type FixedBackoff struct {
	interval time.Duration
}

func NewFixedBackoff(interval time.Duration) *FixedBackoff {
	return &FixedBackoff{interval: interval}
}

func (f *FixedBackoff) NextDelay() time.Duration { return f.interval }

func (f *FixedBackoff) Reset() {}

type ExponentialBackoff struct {
	initialDelay time.Duration
	currentDelay time.Duration
	maxDelay     time.Duration
}

func NewExponentialBackoff(initial, max time.Duration) *ExponentialBackoff {
	return &ExponentialBackoff{
		initialDelay: initial,
		currentDelay: initial,
		maxDelay:     max,
	}
}

func (e *ExponentialBackoff) NextDelay() time.Duration {
	delay := e.currentDelay
	e.currentDelay *= 2
	if e.currentDelay > e.maxDelay {
		e.currentDelay = e.maxDelay
	}
	return delay
}

func (e *ExponentialBackoff) Reset() {
	e.currentDelay = e.initialDelay
}

// NewReconnectStrategy 根据配置名称创建重连策略
func NewReconnectStrategy(name string, interval time.Duration) (ReconnectStrategy, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("invalid reconnect interval: %s", interval)
	}

	switch name {
	case "", "fixed":
		return NewFixedBackoff(interval), nil
	case "exponential":
		return NewExponentialBackoff(interval, 10*interval), nil
	default:
		return nil, fmt.Errorf("unknown reconnect strategy: %s", name)
	}
}
