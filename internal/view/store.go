package view

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"worktracker/internal/timer"
	"worktracker/pkg/logger"
)

// ErrUnknownPrompt 确认框不存在或已回答
var ErrUnknownPrompt = errors.New("unknown prompt")

var _ timer.Dialogs = (*Store)(nil)

// Prompt 待回答的确认框
type Prompt struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Screen 渲染器看到的完整界面
type Screen struct {
	Model  Model   `json:"model"`
	Alert  string  `json:"alert,omitempty"`
	Prompt *Prompt `json:"prompt,omitempty"`
}

type pendingPrompt struct {
	Prompt
	answer func(keep bool)
}

// Store 保存最新界面并实现 timer.Dialogs。
// 控制器在事件循环上写入，渲染器可从任意 goroutine 读取与回答。
type Store struct {
	mu      sync.Mutex
	post    func(func())
	model   Model
	alerts  []string
	prompts []pendingPrompt
	subs    map[int]func(Screen)
	nextSub int
}

// NewStore 创建界面存储；post 把回答投递回事件循环
func NewStore(post func(func())) *Store {
	return &Store{
		post:  post,
		model: Bind(timer.Snapshot{}),
		subs:  make(map[int]func(Screen)),
	}
}

// Update 控制器观察者
func (s *Store) Update(snap timer.Snapshot) {
	s.mu.Lock()
	s.model = Bind(snap)
	s.mu.Unlock()
	s.publish()
}

// Alert 排队一条提示
func (s *Store) Alert(message string) {
	s.mu.Lock()
	s.alerts = append(s.alerts, message)
	s.mu.Unlock()
	s.publish()
}

// Confirm 排队一个确认框
func (s *Store) Confirm(message string, answer func(keep bool)) {
	s.mu.Lock()
	s.prompts = append(s.prompts, pendingPrompt{
		Prompt: Prompt{ID: uuid.NewString(), Message: message},
		answer: answer,
	})
	s.mu.Unlock()
	s.publish()
}

// Answer 回答确认框，回调在事件循环上执行
func (s *Store) Answer(id string, keep bool) error {
	s.mu.Lock()
	var found *pendingPrompt
	for i := range s.prompts {
		if s.prompts[i].ID == id {
			p := s.prompts[i]
			found = &p
			s.prompts = append(s.prompts[:i], s.prompts[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if found == nil {
		return ErrUnknownPrompt
	}
	logger.Debug("prompt %s answered keep=%v", id, keep)
	s.post(func() { found.answer(keep) })
	s.publish()
	return nil
}

// DismissAlert 关闭当前提示
func (s *Store) DismissAlert() {
	s.mu.Lock()
	if len(s.alerts) > 0 {
		s.alerts = s.alerts[1:]
	}
	s.mu.Unlock()
	s.publish()
}

// Current 当前界面
func (s *Store) Current() Screen {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.screenLocked()
}

// Subscribe 订阅界面变化，返回取消函数
func (s *Store) Subscribe(fn func(Screen)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) screenLocked() Screen {
	screen := Screen{Model: s.model}
	if len(s.alerts) > 0 {
		screen.Alert = s.alerts[0]
	}
	if len(s.prompts) > 0 {
		p := s.prompts[0].Prompt
		screen.Prompt = &p
	}
	return screen
}

func (s *Store) publish() {
	s.mu.Lock()
	screen := s.screenLocked()
	subs := make([]func(Screen), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(screen)
	}
}
