// Package activity 本地输入活动检测。
package activity

import (
	"time"

	"worktracker/internal/bus"
	"worktracker/internal/loop"
	"worktracker/pkg/logger"
	"worktracker/pkg/models"
	"worktracker/pkg/utils"
)

const (
	// DefaultThreshold 无输入超过该时长视为离开
	DefaultThreshold = 5 * time.Minute
	// DefaultCheckInterval 离开检查周期
	DefaultCheckInterval = time.Minute
)

// Option 追踪器选项
type Option func(*Tracker)

// WithThreshold 设置离开阈值
func WithThreshold(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.threshold = d
		}
	}
}

// WithCheckInterval 设置检查周期
func WithCheckInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.checkEvery = d
		}
	}
}

// WithScreenProbe 屏幕锁定或屏保运行时直接视为离开
func WithScreenProbe(active func() bool) Option {
	return func(t *Tracker) {
		t.screenActive = active
	}
}

// Tracker 监听输入手势，向后端报告 active/inactive 状态切换。
// 所有方法都必须在事件循环上调用。
type Tracker struct {
	source       Source
	sched        loop.Scheduler
	reporter     bus.Sender
	threshold    time.Duration
	checkEvery   time.Duration
	screenActive func() bool

	running      bool
	userID       int64
	status       models.ActivityStatus
	lastActivity time.Time
	listener     *inputListener
	check        loop.Task
}

// inputListener 在 Start 时创建一次，Stop 时用同一身份注销
type inputListener struct {
	tracker *Tracker
}

func (l *inputListener) HandleInput(kind InputKind, at time.Time) {
	l.tracker.recordActivity(kind, at)
}

// NewTracker 创建活动追踪器
func NewTracker(source Source, sched loop.Scheduler, reporter bus.Sender, opts ...Option) *Tracker {
	t := &Tracker{
		source:     source,
		sched:      sched,
		reporter:   reporter,
		threshold:  DefaultThreshold,
		checkEvery: DefaultCheckInterval,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start 为 userID 开始检测；已在运行时先停止上一轮
func (t *Tracker) Start(userID int64) {
	t.Stop()

	t.running = true
	t.userID = userID
	t.lastActivity = t.sched.Now()
	t.listener = &inputListener{tracker: t}
	for _, kind := range WatchedInputs {
		t.source.AddListener(kind, t.listener)
	}
	t.check = t.sched.Every(t.checkEvery, t.checkInactivity)

	logger.Info("activity tracking started for user %d", userID)
	t.setStatus(models.StatusActive, t.lastActivity)
}

// Stop 注销监听并取消周期检查；未运行时无操作
func (t *Tracker) Stop() {
	if !t.running {
		return
	}
	for _, kind := range WatchedInputs {
		t.source.RemoveListener(kind, t.listener)
	}
	t.listener = nil
	if t.check != nil {
		t.check.Stop()
		t.check = nil
	}
	t.running = false
	t.status = models.StatusUnknown
	logger.Info("activity tracking stopped for user %d", t.userID)
}

// Running 是否正在检测
func (t *Tracker) Running() bool {
	return t.running
}

// Status 当前活动状态
func (t *Tracker) Status() models.ActivityStatus {
	return t.status
}

// UserID 当前检测的用户
func (t *Tracker) UserID() int64 {
	return t.userID
}

func (t *Tracker) recordActivity(kind InputKind, at time.Time) {
	if !t.running {
		return
	}
	t.lastActivity = at
	if t.status == models.StatusInactive {
		logger.Debug("input %s after inactivity", kind)
		t.setStatus(models.StatusActive, at)
	}
}

func (t *Tracker) checkInactivity() {
	if !t.running || t.status != models.StatusActive {
		return
	}
	now := t.sched.Now()
	if t.screenActive != nil && !t.screenActive() {
		logger.Debug("screen locked or screensaver running")
		t.setStatus(models.StatusInactive, now)
		return
	}
	if now.Sub(t.lastActivity) > t.threshold {
		t.setStatus(models.StatusInactive, now)
	}
}

func (t *Tracker) setStatus(status models.ActivityStatus, at time.Time) {
	t.status = status
	update := models.ActivityUpdate{
		UserID:    t.userID,
		Status:    status,
		Timestamp: utils.ISOTimestamp(at),
	}
	if status == models.StatusInactive {
		update.LastInput = utils.ISOTimestamp(t.lastActivity)
	}
	if err := t.reporter.Send(bus.ChannelActivity, update); err != nil {
		logger.Error("failed to report activity %s: %v", status, err)
	}
}
