// Package bus 渲染端与后端之间的消息通道。
//
// 支持两种交互方式：单向发送（Send/On）与请求应答（Invoke/Handle）。
// 所有载荷都会序列化为 JSON，与跨进程通信保持一致的边界。
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"worktracker/pkg/logger"

	"github.com/google/uuid"
)

// 渲染端使用的通道
const (
	ChannelLogin       = "login"
	ChannelTimerStatus = "timer:status"
	ChannelTimerStart  = "timer:start"
	ChannelTimerPause  = "timer:pause"
	ChannelTimerResume = "timer:resume"
	ChannelTimerStop   = "timer:stop"
	ChannelAddNotes    = "timer:addNotes"
	ChannelDiscardIdle = "timer:discardIdle"
	ChannelActivity    = "activity:update"

	ChannelTimerUpdate    = "timer:update"
	ChannelTimerError     = "timer:error"
	ChannelIdleDetected   = "idle:detected"
	ChannelScreenshot     = "screenshot:taken"
	ChannelActivityChange = "activity:statusChange"

	ChannelGetUsers        = "admin:getUsers"
	ChannelGetTimeEntries  = "admin:getTimeEntries"
	ChannelGetScreenshots  = "admin:getScreenshots"
	ChannelGetScreenshot   = "admin:getScreenshotData"
	ChannelDeleteTimeEntry = "admin:deleteTimeEntry"
	ChannelGenerateReport  = "admin:generateReport"
	ChannelGetClients      = "client:getAll"
	ChannelGetProjects     = "project:getByClient"
)

var (
	// ErrNoHandler 对端未注册该通道的应答处理器
	ErrNoHandler = errors.New("no handler registered")
	// ErrClosed 通道已关闭
	ErrClosed = errors.New("bus closed")
)

// RemoteError 对端处理器返回的错误
type RemoteError struct {
	Channel string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Channel, e.Message)
}

// Handler 单向消息处理器
type Handler func(payload json.RawMessage)

// InvokeHandler 请求应答处理器
type InvokeHandler func(ctx context.Context, payload json.RawMessage) (interface{}, error)

// Sender 单向发送
type Sender interface {
	Send(channel string, payload interface{}) error
}

// Invoker 请求应答
type Invoker interface {
	Invoke(ctx context.Context, channel string, payload, result interface{}) error
}

// Subscriber 订阅对端发送的消息
type Subscriber interface {
	On(channel string, h Handler) (off func())
}

// Messenger 渲染端所需的全部能力
type Messenger interface {
	Sender
	Invoker
	Subscriber
}

// Envelope 线上消息格式
type Envelope struct {
	ID      string          `json:"id"`
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Endpoint 通道的一端
type Endpoint struct {
	name      string
	peer      *Endpoint
	mu        sync.RWMutex
	listeners map[string]map[int]Handler
	handlers  map[string]InvokeHandler
	nextID    int
	dispatch  func(func())
	closed    bool
}

// NewPair 创建一对互联的端点
func NewPair() (renderer, host *Endpoint) {
	renderer = newEndpoint("renderer")
	host = newEndpoint("host")
	renderer.peer = host
	host.peer = renderer
	return renderer, host
}

func newEndpoint(name string) *Endpoint {
	return &Endpoint{
		name:      name,
		listeners: make(map[string]map[int]Handler),
		handlers:  make(map[string]InvokeHandler),
	}
}

// SetDispatcher 指定消息投递的执行方式（例如投递到事件循环）；为空时同步执行
func (e *Endpoint) SetDispatcher(dispatch func(func())) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dispatch = dispatch
}

// Send 向对端发送单向消息
func (e *Endpoint) Send(channel string, payload interface{}) error {
	env, err := newEnvelope(channel, payload)
	if err != nil {
		return err
	}
	if e.isClosed() {
		return ErrClosed
	}
	logger.Debug("[%s] send %s (%s)", e.name, channel, env.ID)
	return e.peer.deliver(env)
}

// Invoke 调用对端处理器并等待结果
func (e *Endpoint) Invoke(ctx context.Context, channel string, payload, result interface{}) error {
	env, err := newEnvelope(channel, payload)
	if err != nil {
		return err
	}
	if e.isClosed() || e.peer.isClosed() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.peer.mu.RLock()
	handler, ok := e.peer.handlers[channel]
	e.peer.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s: %w", channel, ErrNoHandler)
	}

	logger.Debug("[%s] invoke %s (%s)", e.name, channel, env.ID)
	reply, err := handler(ctx, env.Payload)
	if err != nil {
		return &RemoteError{Channel: channel, Message: err.Error()}
	}

	data, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("failed to encode %s reply: %w", channel, err)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("failed to decode %s reply: %w", channel, err)
	}
	return nil
}

// On 订阅对端发送到 channel 的消息，返回取消函数
func (e *Endpoint) On(channel string, h Handler) (off func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	if e.listeners[channel] == nil {
		e.listeners[channel] = make(map[int]Handler)
	}
	e.listeners[channel][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.listeners[channel], id)
			e.mu.Unlock()
		})
	}
}

// Handle 注册请求应答处理器，重复注册会覆盖
func (e *Endpoint) Handle(channel string, h InvokeHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[channel] = h
}

// Close 关闭端点，之后的收发都会失败
func (e *Endpoint) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.listeners = make(map[string]map[int]Handler)
}

func (e *Endpoint) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

// deliver 按注册顺序把消息交给监听者；同一条消息的所有监听者在一次投递中执行
func (e *Endpoint) deliver(env Envelope) error {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return ErrClosed
	}
	registered := e.listeners[env.Channel]
	ids := make([]int, 0, len(registered))
	for id := range registered {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, registered[id])
	}
	dispatch := e.dispatch
	e.mu.RUnlock()

	if len(handlers) == 0 {
		logger.Debug("[%s] no listener for %s", e.name, env.Channel)
		return nil
	}

	run := func() {
		for _, h := range handlers {
			h(env.Payload)
		}
	}
	if dispatch != nil {
		dispatch(run)
	} else {
		run()
	}
	return nil
}

func newEnvelope(channel string, payload interface{}) (Envelope, error) {
	env := Envelope{ID: uuid.NewString(), Channel: channel}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return env, fmt.Errorf("failed to encode %s payload: %w", channel, err)
	}
	env.Payload = data
	return env, nil
}

// Decode 解析消息载荷；空载荷视为零值
func Decode(payload json.RawMessage, v interface{}) error {
	if len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, v)
}
