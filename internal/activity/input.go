package activity

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// InputKind 被监听的输入手势
type InputKind int

const (
	PointerMove InputKind = iota
	PointerDown
	KeyDown
	Wheel
	Scroll
	TouchStart
)

// WatchedInputs 活动检测监听的全部手势
var WatchedInputs = []InputKind{PointerMove, PointerDown, KeyDown, Wheel, Scroll, TouchStart}

var inputNames = map[InputKind]string{
	PointerMove: "pointermove",
	PointerDown: "pointerdown",
	KeyDown:     "keydown",
	Wheel:       "wheel",
	Scroll:      "scroll",
	TouchStart:  "touchstart",
}

func (k InputKind) String() string {
	if name, ok := inputNames[k]; ok {
		return name
	}
	return fmt.Sprintf("input(%d)", int(k))
}

// ParseInputKind 解析手势名称（兼容 DOM 事件名 mousemove/mousedown）
func ParseInputKind(s string) (InputKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pointermove", "mousemove":
		return PointerMove, nil
	case "pointerdown", "mousedown", "click":
		return PointerDown, nil
	case "keydown", "keypress":
		return KeyDown, nil
	case "wheel":
		return Wheel, nil
	case "scroll":
		return Scroll, nil
	case "touchstart":
		return TouchStart, nil
	}
	return 0, fmt.Errorf("unknown input kind %q", s)
}

// Listener 输入监听者；以指针身份注册与注销
type Listener interface {
	HandleInput(kind InputKind, at time.Time)
}

// Source 可注册监听者的输入源
type Source interface {
	AddListener(kind InputKind, l Listener)
	RemoveListener(kind InputKind, l Listener)
}

// Hub 界面层把用户输入汇入的输入源。
// 注册与分发可以来自任意 goroutine，监听者总是在事件循环上被调用。
type Hub struct {
	mu        sync.Mutex
	listeners map[InputKind][]Listener
	post      func(func())
	now       func() time.Time
}

// NewHub 创建输入源；post 把回调投递到事件循环，now 提供时间戳
func NewHub(post func(func()), now func() time.Time) *Hub {
	if now == nil {
		now = time.Now
	}
	return &Hub{
		listeners: make(map[InputKind][]Listener),
		post:      post,
		now:       now,
	}
}

// AddListener 注册监听者；同一身份重复注册只保留一份
func (h *Hub) AddListener(kind InputKind, l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, existing := range h.listeners[kind] {
		if existing == l {
			return
		}
	}
	h.listeners[kind] = append(h.listeners[kind], l)
}

// RemoveListener 按注册时的同一身份注销
func (h *Hub) RemoveListener(kind InputKind, l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.listeners[kind]
	for i, existing := range list {
		if existing == l {
			h.listeners[kind] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Count 某种手势当前的监听者数量
func (h *Hub) Count(kind InputKind) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners[kind])
}

// Dispatch 分发一次输入
func (h *Hub) Dispatch(kind InputKind) {
	at := h.now()
	h.mu.Lock()
	targets := append([]Listener(nil), h.listeners[kind]...)
	h.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	deliver := func() {
		for _, l := range targets {
			l.HandleInput(kind, at)
		}
	}
	if h.post != nil {
		h.post(deliver)
	} else {
		deliver()
	}
}
