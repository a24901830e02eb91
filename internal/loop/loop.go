// Package loop 单线程协作式事件循环。
//
// 计时器状态、活动检测与界面绑定只在循环线程上执行；周期任务与一次性任务
// 到期后也被投递回循环执行，因此循环上的代码无需加锁。
package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed 循环已关闭
var ErrClosed = errors.New("event loop closed")

// Task 可取消的定时任务
type Task interface {
	Stop()
}

// Scheduler 事件循环提供的调度能力
type Scheduler interface {
	Now() time.Time
	Post(fn func())
	Every(d time.Duration, fn func()) Task
	After(d time.Duration, fn func()) Task
}

// Loop 基于 goroutine 的事件循环
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	closed  bool
	done    chan struct{}
	running atomic.Bool
}

// New 创建事件循环
func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Now 当前时间
func (l *Loop) Now() time.Time {
	return time.Now()
}

// Run 在当前 goroutine 上处理队列，直到 ctx 取消或 Close
func (l *Loop) Run(ctx context.Context) {
	if !l.running.CompareAndSwap(false, true) {
		return
	}
	defer close(l.done)

	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		closed := l.closed
		l.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
		if closed {
			return
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			l.Close()
		case <-l.wake:
		}
	}
}

// Start 在新的 goroutine 中运行
func (l *Loop) Start(ctx context.Context) {
	go l.Run(ctx)
}

// Post 投递任务到循环；队列无上限，投递方不会被阻塞
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do 投递任务并等待其在循环上执行完毕
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.mu.Unlock()

	l.Post(func() {
		fn()
		close(finished)
	})

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 停止接收新任务，已排队的任务仍会执行
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Wait 等待 Run 退出
func (l *Loop) Wait() {
	if !l.running.Load() {
		return
	}
	<-l.done
}

// Every 每隔 d 在循环上执行 fn
func (l *Loop) Every(d time.Duration, fn func()) Task {
	t := &realTask{stop: make(chan struct{})}
	ticker := time.NewTicker(d)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				l.Post(t.wrap(fn))
			}
		}
	}()
	return t
}

// After d 之后在循环上执行一次 fn
func (l *Loop) After(d time.Duration, fn func()) Task {
	t := &realTask{stop: make(chan struct{})}
	t.timer = time.AfterFunc(d, func() {
		l.Post(t.wrap(fn))
	})
	return t
}

type realTask struct {
	stopped atomic.Bool
	once    sync.Once
	stop    chan struct{}
	timer   *time.Timer
}

// wrap 已取消的任务即使已入队也不再执行
func (t *realTask) wrap(fn func()) func() {
	return func() {
		if t.stopped.Load() {
			return
		}
		fn()
	}
}

func (t *realTask) Stop() {
	t.once.Do(func() {
		t.stopped.Store(true)
		close(t.stop)
		if t.timer != nil {
			t.timer.Stop()
		}
	})
}
