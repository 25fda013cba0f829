package utils

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Executor 把回调串行化到同一个逻辑线程上执行
type Executor interface {
	// Post 将 fn 追加到执行队列尾部，执行器已停止时返回 false
	Post(fn func()) bool
	// AfterFunc 在 d 之后把 fn 投递到执行队列，返回可取消的定时器
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer 是 AfterFunc 返回的定时器句柄
type Timer interface {
	// Stop 取消定时器，fn 尚未执行时返回 true
	Stop() bool
}

// Loop 单 goroutine 事件循环。投递永不阻塞，任务按投递顺序执行。
type Loop struct {
	mu      sync.Mutex
	tasks   []func()
	wake    chan struct{}
	done    chan struct{}
	stopped atomic.Bool
	once    sync.Once
	logger  *slog.Logger
}

var _ Executor = (*Loop)(nil)

// NewLoop 创建事件循环
func NewLoop(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (l *Loop) Post(fn func()) bool {
	if l.stopped.Load() {
		return false
	}

	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.cancelled.CompareAndSwap(false, true) {
				fn()
			}
		})
	})
	return t
}

// Run 在当前 goroutine 中执行任务，直到 ctx 取消或 Stop 被调用
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return nil
		case <-l.done:
			return nil
		case <-l.wake:
			l.drain()
		}
	}
}

// Stop 停止事件循环，之后的 Post 全部被丢弃
func (l *Loop) Stop() {
	l.once.Do(func() {
		l.stopped.Store(true)
		close(l.done)
	})
}

// Done 在事件循环停止后关闭
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		batch := l.tasks
		l.tasks = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			if l.stopped.Load() {
				return
			}
			l.run(fn)
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Event loop task panicked", "panic", r)
		}
	}()
	fn()
}

type loopTimer struct {
	timer     *time.Timer
	cancelled atomic.Bool
}

func (t *loopTimer) Stop() bool {
	t.timer.Stop()
	return t.cancelled.CompareAndSwap(false, true)
}
