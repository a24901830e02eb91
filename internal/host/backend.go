// Package host 计时器的后端：在总线的另一端处理命令、持久化工时并推送事件。
package host

import (
	"encoding/json"
	"errors"
	"time"

	"worktracker/internal/bus"
	"worktracker/internal/storage"
	"worktracker/pkg/logger"
	"worktracker/pkg/models"
	"worktracker/pkg/utils"
)

// Endpoint 后端使用的总线端点
type Endpoint interface {
	bus.Sender
	bus.Subscriber
	Handle(channel string, h bus.InvokeHandler)
}

// Recorder 计时期间的截屏控制
type Recorder interface {
	Begin(entryID int64)
	End(entryID int64)
}

// Options 后端参数
type Options struct {
	// InactivityThreshold 渲染端判定离开的阈值，用于回推空闲开始时间
	InactivityThreshold time.Duration
	Now                 func() time.Time
}

// Backend 后端
type Backend struct {
	endpoint  Endpoint
	store     *storage.Manager
	recorder  Recorder
	threshold time.Duration
	now       func() time.Time
	offs      []func()
}

// New 创建后端；recorder 可为 nil
func New(endpoint Endpoint, store *storage.Manager, recorder Recorder, opts Options) *Backend {
	if opts.InactivityThreshold <= 0 {
		opts.InactivityThreshold = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Backend{
		endpoint:  endpoint,
		store:     store,
		recorder:  recorder,
		threshold: opts.InactivityThreshold,
		now:       opts.Now,
	}
}

// Attach 注册全部通道
func (b *Backend) Attach() {
	on := func(channel string, h bus.Handler) {
		b.offs = append(b.offs, b.endpoint.On(channel, h))
	}
	on(bus.ChannelLogin, b.onLogin)
	on(bus.ChannelTimerStatus, b.onStatus)
	on(bus.ChannelTimerStart, b.onStart)
	on(bus.ChannelTimerPause, b.onPause)
	on(bus.ChannelTimerResume, b.onResume)
	on(bus.ChannelTimerStop, b.onStop)
	on(bus.ChannelAddNotes, b.onAddNotes)
	on(bus.ChannelDiscardIdle, b.onDiscardIdle)
	on(bus.ChannelActivity, b.onActivity)

	b.registerQueries()
	logger.Info("backend attached")
}

// Detach 取消订阅
func (b *Backend) Detach() {
	for _, off := range b.offs {
		off()
	}
	b.offs = nil
}

func (b *Backend) onLogin(payload json.RawMessage) {
	var req models.UserRequest
	if err := bus.Decode(payload, &req); err != nil {
		b.fail("login", err)
		return
	}
	user, err := b.store.EnsureUser(req.Username)
	if err != nil {
		b.fail("login", err)
		return
	}
	logger.Info("user %s (%d) logged in", user.Username, user.ID)
}

// onStatus 回放当前工时状态，startTime 扣除暂停时长
func (b *Backend) onStatus(payload json.RawMessage) {
	user, ok := b.user("timer:status", payload)
	if !ok {
		return
	}
	e, err := b.store.ActiveEntry(user.ID)
	if errors.Is(err, storage.ErrNoActiveEntry) {
		b.emit(models.TimerUpdate{Action: models.ActionStatus, UserID: user.ID})
		return
	}
	if err != nil {
		b.fail("timer:status", err)
		return
	}

	update := b.entryUpdate(models.ActionStatus, e)
	if e.Paused() {
		update.IsPaused = true
	} else {
		start := e.EffectiveStart()
		update.StartTime = &start
		update.IsActive = true
	}
	b.emit(update)
}

func (b *Backend) onStart(payload json.RawMessage) {
	var req models.StartRequest
	if err := bus.Decode(payload, &req); err != nil {
		b.fail("timer:start", err)
		return
	}
	user, err := b.store.EnsureUser(req.Username)
	if err != nil {
		b.fail("timer:start", err)
		return
	}
	ok, err := b.store.ProjectBelongsTo(req.ProjectID, req.ClientID)
	if err != nil {
		b.fail("timer:start", err)
		return
	}
	if !ok {
		b.reject("Invalid project for the selected client")
		return
	}

	e, err := b.store.StartEntry(user.ID, req.ClientID, req.ProjectID, req.IsBillable, b.now())
	if err != nil {
		b.fail("timer:start", err)
		return
	}
	logger.Info("timer started: entry %d for %s", e.ID, user.Username)

	update := b.entryUpdate(models.ActionStarted, e)
	update.StartTime = &e.StartTime
	update.IsActive = true
	b.emit(update)
	b.beginCapture(e.ID)
}

func (b *Backend) onPause(payload json.RawMessage) {
	user, ok := b.user("timer:pause", payload)
	if !ok {
		return
	}
	e, err := b.store.PauseEntry(user.ID, b.now())
	if err != nil {
		b.fail("timer:pause", err)
		return
	}
	b.endCapture(e.ID)
	update := b.entryUpdate(models.ActionPaused, e)
	update.IsPaused = true
	b.emit(update)
}

func (b *Backend) onResume(payload json.RawMessage) {
	user, ok := b.user("timer:resume", payload)
	if !ok {
		return
	}
	e, err := b.store.ResumeEntry(user.ID, b.now())
	if err != nil {
		b.fail("timer:resume", err)
		return
	}
	update := b.entryUpdate(models.ActionResumed, e)
	update.IsActive = true
	b.emit(update)
	b.beginCapture(e.ID)
}

func (b *Backend) onStop(payload json.RawMessage) {
	user, ok := b.user("timer:stop", payload)
	if !ok {
		return
	}
	e, err := b.store.StopEntry(user.ID, b.now())
	if err != nil {
		b.fail("timer:stop", err)
		return
	}
	b.endCapture(e.ID)
	logger.Info("timer stopped: entry %d, %s", e.ID, utils.FormatHMS(e.Duration))
	b.emit(b.entryUpdate(models.ActionStopped, e))
}

// StopAll 结束所有计时（下班自动停止）
func (b *Backend) StopAll() error {
	stopped, err := b.store.StopAll(b.now())
	for _, e := range stopped {
		b.endCapture(e.ID)
		b.emit(b.entryUpdate(models.ActionStopped, e))
	}
	if len(stopped) > 0 {
		logger.Info("auto-stopped %d running entries", len(stopped))
	}
	return err
}

func (b *Backend) onAddNotes(payload json.RawMessage) {
	var req models.NotesRequest
	if err := bus.Decode(payload, &req); err != nil {
		b.fail("timer:addNotes", err)
		return
	}
	user, err := b.store.UserByName(req.Username)
	if err != nil {
		b.fail("timer:addNotes", err)
		return
	}
	if _, err := b.store.SetNotes(user.ID, req.Notes); err != nil {
		// 备注在没有记录时静默丢弃
		logger.Warn("notes for %s dropped: %v", req.Username, err)
	}
}

func (b *Backend) onDiscardIdle(payload json.RawMessage) {
	var req models.DiscardIdleRequest
	if err := bus.Decode(payload, &req); err != nil {
		b.fail("timer:discardIdle", err)
		return
	}
	user, err := b.store.UserByName(req.Username)
	if err != nil {
		b.fail("timer:discardIdle", err)
		return
	}
	e, err := b.store.DiscardIdle(user.ID, utils.FromEpochMillis(req.IdleStartTime), b.now())
	if err != nil {
		b.fail("timer:discardIdle", err)
		return
	}
	b.endCapture(e.ID)
	update := b.entryUpdate(models.ActionIdleDiscarded, e)
	update.IsPaused = true
	b.emit(update)
}

// onActivity 记录活动并回显；离开后恢复活动时报告空闲时长
func (b *Backend) onActivity(payload json.RawMessage) {
	var upd models.ActivityUpdate
	if err := bus.Decode(payload, &upd); err != nil {
		b.fail("activity:update", err)
		return
	}
	at, err := time.Parse(time.RFC3339Nano, upd.Timestamp)
	if err != nil {
		logger.Warn("activity timestamp %q: %v", upd.Timestamp, err)
		at = b.now()
	}

	var lastInput *time.Time
	if upd.LastInput != "" {
		if t, err := time.Parse(time.RFC3339Nano, upd.LastInput); err == nil {
			lastInput = &t
		} else {
			logger.Warn("activity lastInput %q: %v", upd.LastInput, err)
		}
	}

	last, lastErr := b.store.LastActivity(upd.UserID)
	if err := b.store.LogActivity(upd.UserID, upd.Status, at, lastInput); err != nil {
		logger.Error("failed to log activity: %v", err)
	}
	logger.Debug("activity of user %d: %s at %s", upd.UserID, upd.Status, upd.Timestamp)

	if err := b.endpoint.Send(bus.ChannelActivityChange, models.ActivityStatusChange{
		UserID: upd.UserID,
		Status: upd.Status,
	}); err != nil {
		logger.Error("failed to send activity:statusChange: %v", err)
	}

	if upd.Status != models.StatusActive || lastErr != nil || last.Status != models.StatusInactive {
		return
	}
	e, err := b.store.ActiveEntry(upd.UserID)
	if err != nil || e.Paused() {
		return
	}

	// 锁屏等立即离开的情况以最后一次输入为准，否则倒推阈值
	idleSince := last.Timestamp.Add(-b.threshold)
	if last.IdleSince != nil {
		idleSince = *last.IdleSince
	}
	// 暂停期间不算空闲
	if since := e.RunningSince(); idleSince.Before(since) {
		idleSince = since
	}
	idle := int64(at.Sub(idleSince) / time.Second)
	if idle <= 0 {
		return
	}
	logger.Info("user %d was idle for %ds", upd.UserID, idle)
	if err := b.endpoint.Send(bus.ChannelIdleDetected, models.IdleDetected{IdleTime: idle}); err != nil {
		logger.Error("failed to send idle:detected: %v", err)
	}
}

// ScreenshotTaken 截屏完成通知
func (b *Backend) ScreenshotTaken(ss models.Screenshot) {
	if err := b.endpoint.Send(bus.ChannelScreenshot, models.ScreenshotTaken{
		TimeEntryID:  ss.TimeEntryID,
		ScreenshotID: ss.ID,
	}); err != nil {
		logger.Error("failed to send screenshot:taken: %v", err)
	}
}

func (b *Backend) user(channel string, payload json.RawMessage) (models.User, bool) {
	var req models.UserRequest
	if err := bus.Decode(payload, &req); err != nil {
		b.fail(channel, err)
		return models.User{}, false
	}
	user, err := b.store.EnsureUser(req.Username)
	if err != nil {
		b.fail(channel, err)
		return models.User{}, false
	}
	return user, true
}

func (b *Backend) entryUpdate(action models.TimerAction, e storage.Entry) models.TimerUpdate {
	duration := e.Worked(b.now())
	return models.TimerUpdate{
		Action:    action,
		EntryID:   e.ID,
		UserID:    e.UserID,
		ClientID:  e.ClientID,
		ProjectID: e.ProjectID,
		Duration:  &duration,
	}
}

func (b *Backend) emit(update models.TimerUpdate) {
	if err := b.endpoint.Send(bus.ChannelTimerUpdate, update); err != nil {
		logger.Error("failed to send timer:update %s: %v", update.Action, err)
	}
}

func (b *Backend) fail(channel string, err error) {
	logger.Error("%s failed: %v", channel, err)
	b.reject(userMessage(err))
}

func (b *Backend) reject(message string) {
	if err := b.endpoint.Send(bus.ChannelTimerError, models.TimerError{Error: message}); err != nil {
		logger.Error("failed to send timer:error: %v", err)
	}
}

func (b *Backend) beginCapture(entryID int64) {
	if b.recorder != nil {
		b.recorder.Begin(entryID)
	}
}

func (b *Backend) endCapture(entryID int64) {
	if b.recorder != nil {
		b.recorder.End(entryID)
	}
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, storage.ErrAlreadyRunning):
		return "A timer is already running"
	case errors.Is(err, storage.ErrNoActiveEntry):
		return "No active timer"
	case errors.Is(err, storage.ErrAlreadyPaused):
		return "Timer is already paused"
	case errors.Is(err, storage.ErrNotPaused):
		return "Timer is not paused"
	case errors.Is(err, storage.ErrNotFound):
		return "Unknown user"
	}
	return err.Error()
}
