// Package timer 工作计时器的界面侧状态机。
//
// 阶段只由后端的确认事件改变；用户操作只发送命令并在确认前禁用按钮。
// Controller 的所有方法都必须在事件循环上调用，它不直接操作任何界面元素，
// 只向观察者报告 Snapshot。
package timer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"worktracker/internal/bus"
	"worktracker/internal/loop"
	"worktracker/pkg/logger"
	"worktracker/pkg/models"
	"worktracker/pkg/utils"
)

const (
	// DefaultNotesDebounce 备注输入停顿多久后发送
	DefaultNotesDebounce = time.Second
	// DefaultIdlePromptSeconds 空闲超过该秒数才提示
	DefaultIdlePromptSeconds = 300
)

// Tracker 活动检测的生命周期
type Tracker interface {
	Start(userID int64)
	Stop()
}

// Dialogs 提示与确认；Confirm 的回调在事件循环上执行
type Dialogs interface {
	Alert(message string)
	Confirm(message string, answer func(keep bool))
}

// Options 控制器参数
type Options struct {
	NotesDebounce     time.Duration
	IdlePromptSeconds int64
}

// Controller 计时器状态机
type Controller struct {
	messenger bus.Messenger
	sched     loop.Scheduler
	tracker   Tracker
	dialogs   Dialogs
	opts      Options
	ctx       context.Context
	cancel    context.CancelFunc

	username       string
	userID         int64
	phase          Phase
	entryID        int64
	clientID       int64
	projectID      int64
	elapsed        int64
	notes          string
	idleAlertShown bool
	inFlight       bool
	activity       models.ActivityStatus
	clients        []models.Client
	projects       []models.Project
	screenshots    int

	tick        loop.Task
	notesTimer  loop.Task
	tracking    bool
	trackedUser int64

	offs      []func()
	observers []func(Snapshot)
}

// NewController 创建计时控制器
func NewController(messenger bus.Messenger, sched loop.Scheduler, tracker Tracker, dialogs Dialogs, opts Options) *Controller {
	if opts.NotesDebounce <= 0 {
		opts.NotesDebounce = DefaultNotesDebounce
	}
	if opts.IdlePromptSeconds <= 0 {
		opts.IdlePromptSeconds = DefaultIdlePromptSeconds
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		messenger: messenger,
		sched:     sched,
		tracker:   tracker,
		dialogs:   dialogs,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Attach 订阅后端事件
func (c *Controller) Attach() {
	c.offs = append(c.offs,
		c.messenger.On(bus.ChannelTimerUpdate, c.onTimerUpdate),
		c.messenger.On(bus.ChannelTimerError, c.onTimerError),
		c.messenger.On(bus.ChannelIdleDetected, c.onIdleDetected),
		c.messenger.On(bus.ChannelScreenshot, c.onScreenshotTaken),
		c.messenger.On(bus.ChannelActivityChange, c.onActivityChange),
	)
}

// Detach 释放订阅、定时任务与活动检测
func (c *Controller) Detach() {
	for _, off := range c.offs {
		off()
	}
	c.offs = nil
	c.stopTick()
	c.cancelNotes()
	if c.tracking {
		c.tracker.Stop()
		c.tracking = false
	}
	c.cancel()
}

// OnChange 注册状态观察者
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.observers = append(c.observers, fn)
}

// Phase 当前阶段
func (c *Controller) Phase() Phase {
	return c.phase
}

// Snapshot 当前状态副本
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		Username:       c.username,
		UserID:         c.userID,
		Phase:          c.phase,
		EntryID:        c.entryID,
		ClientID:       c.clientID,
		ProjectID:      c.projectID,
		Elapsed:        c.elapsed,
		Notes:          c.notes,
		IdleAlertShown: c.idleAlertShown,
		InFlight:       c.inFlight,
		Ticking:        c.tick != nil,
		Tracking:       c.tracking,
		Activity:       c.activity,
		Clients:        append([]models.Client(nil), c.clients...),
		Projects:       append([]models.Project(nil), c.projects...),
		Screenshots:    c.screenshots,
	}
}

// ===== 用户操作 =====

// Login 以用户名登录并向后端查询当前计时状态
func (c *Controller) Login(username string) {
	name := strings.TrimSpace(username)
	if name == "" {
		c.validation("Please enter a username")
		return
	}
	if c.username != "" && c.username != name && c.phase != PhaseIdle {
		c.validation("Stop the running timer before switching users")
		return
	}
	if c.username != name {
		c.userID = 0
		c.syncTracker()
	}
	c.username = name
	logger.Info("login as %s", name)

	if err := c.messenger.Send(bus.ChannelLogin, models.UserRequest{Username: name}); err != nil {
		c.transportError(err)
		return
	}
	c.loadClients()
	if err := c.messenger.Send(bus.ChannelTimerStatus, models.UserRequest{Username: name}); err != nil {
		c.transportError(err)
		return
	}
	c.notify()
}

// SelectClient 选择客户并加载其项目；只在空闲时可写
func (c *Controller) SelectClient(clientID int64) {
	if c.phase != PhaseIdle {
		logger.Warn("client selector is locked while %s", c.phase)
		return
	}
	c.clientID = clientID
	c.projectID = 0
	c.projects = nil
	if clientID != 0 {
		c.loadProjects(clientID)
	}
	c.notify()
}

// SelectProject 选择项目；只在空闲时可写
func (c *Controller) SelectProject(projectID int64) {
	if c.phase != PhaseIdle {
		logger.Warn("project selector is locked while %s", c.phase)
		return
	}
	c.projectID = projectID
	c.notify()
}

// Start 请求开始计时
func (c *Controller) Start() {
	if c.inFlight || c.phase != PhaseIdle {
		return
	}
	if c.username == "" {
		c.validation("Please enter a username")
		return
	}
	if c.clientID == 0 || c.projectID == 0 {
		c.validation("Please select a client and a project")
		return
	}
	c.command(bus.ChannelTimerStart, models.StartRequest{
		Username:   c.username,
		ClientID:   c.clientID,
		ProjectID:  c.projectID,
		IsBillable: true,
	})
}

// Pause 请求暂停
func (c *Controller) Pause() {
	if c.inFlight || c.phase != PhaseRunning {
		return
	}
	c.command(bus.ChannelTimerPause, models.UserRequest{Username: c.username})
}

// Resume 请求继续
func (c *Controller) Resume() {
	if c.inFlight || !c.canResume() {
		return
	}
	c.command(bus.ChannelTimerResume, models.UserRequest{Username: c.username})
}

// TogglePause 暂停按钮：计时中暂停，否则继续
func (c *Controller) TogglePause() {
	if c.phase == PhaseRunning {
		c.Pause()
		return
	}
	c.Resume()
}

// Stop 请求停止；有备注时先提交备注
func (c *Controller) Stop() {
	if c.inFlight || c.phase == PhaseIdle {
		return
	}
	c.cancelNotes()
	if c.notes != "" {
		if err := c.messenger.Send(bus.ChannelAddNotes, models.NotesRequest{Username: c.username, Notes: c.notes}); err != nil {
			c.transportError(err)
			return
		}
	}
	c.command(bus.ChannelTimerStop, models.UserRequest{Username: c.username})
}

// EditNotes 备注输入；有工时记录时在停顿后发送
func (c *Controller) EditNotes(text string) {
	c.notes = text
	if c.phase != PhaseIdle {
		c.cancelNotes()
		c.notesTimer = c.sched.After(c.opts.NotesDebounce, c.flushNotes)
	}
	c.notify()
}

// ===== 后端事件 =====

func (c *Controller) onTimerUpdate(payload json.RawMessage) {
	var u models.TimerUpdate
	if err := bus.Decode(payload, &u); err != nil {
		logger.Error("invalid timer:update payload: %v", err)
		return
	}
	c.apply(u)
}

// apply 按到达顺序应用后端确认的状态
func (c *Controller) apply(u models.TimerUpdate) {
	c.inFlight = false
	if u.UserID != 0 {
		c.userID = u.UserID
	}

	switch u.Action {
	case models.ActionStarted:
		if c.phase != PhaseIdle {
			c.ignore(u)
			break
		}
		c.entryID = u.EntryID
		if u.ClientID != 0 {
			c.clientID = u.ClientID
		}
		if u.ProjectID != 0 {
			c.projectID = u.ProjectID
		}
		c.elapsed = 0
		c.screenshots = 0
		c.enterRunning()

	case models.ActionPaused:
		if c.phase != PhaseRunning {
			c.ignore(u)
			break
		}
		c.enterPaused()

	case models.ActionResumed:
		if !c.canResume() {
			c.ignore(u)
			break
		}
		c.enterRunning()

	case models.ActionStopped:
		if c.phase == PhaseIdle {
			c.ignore(u)
			break
		}
		c.enterIdle()

	case models.ActionIdleDiscarded:
		if c.phase == PhaseIdle {
			c.ignore(u)
			break
		}
		if u.Duration != nil {
			c.elapsed = clamp(*u.Duration)
		}
		c.enterPaused()

	case models.ActionStatus:
		c.rehydrate(u)

	default:
		logger.Warn("unknown timer action %q", u.Action)
	}

	c.syncTracker()
	c.notify()
}

// rehydrate 以后端快照为准重建状态；重复应用结果相同
func (c *Controller) rehydrate(u models.TimerUpdate) {
	switch {
	case u.IsActive:
		c.adoptEntry(u)
		start := c.sched.Now()
		if u.StartTime != nil {
			start = *u.StartTime
		}
		c.elapsed = utils.ElapsedSeconds(start, c.sched.Now())
		c.enterRunning()

	case u.IsPaused && u.EntryID != 0:
		c.adoptEntry(u)
		c.elapsed = 0
		if u.Duration != nil {
			c.elapsed = clamp(*u.Duration)
		}
		c.enterPaused()

	case c.phase != PhaseIdle:
		c.enterIdle()
	}
}

func (c *Controller) adoptEntry(u models.TimerUpdate) {
	c.entryID = u.EntryID
	if u.ClientID != 0 && (u.ClientID != c.clientID || len(c.projects) == 0) {
		c.clientID = u.ClientID
		c.loadProjects(u.ClientID)
	}
	if u.ProjectID != 0 {
		c.projectID = u.ProjectID
	}
}

func (c *Controller) onTimerError(payload json.RawMessage) {
	var e models.TimerError
	if err := bus.Decode(payload, &e); err != nil {
		logger.Error("invalid timer:error payload: %v", err)
		return
	}
	logger.Error("timer error from backend: %s", e.Error)
	c.inFlight = false
	c.dialogs.Alert(e.Error)
	c.notify()
}

func (c *Controller) onIdleDetected(payload json.RawMessage) {
	var d models.IdleDetected
	if err := bus.Decode(payload, &d); err != nil {
		logger.Error("invalid idle:detected payload: %v", err)
		return
	}
	if c.phase != PhaseRunning || d.IdleTime < c.opts.IdlePromptSeconds || c.idleAlertShown {
		return
	}

	c.idleAlertShown = true
	// 空闲起点按检测到的时刻倒推，与用户何时回答无关
	detectedAt := c.sched.Now()
	entryID := c.entryID
	c.notify()

	message := fmt.Sprintf("You've been idle for %d minutes. Keep this idle time?", d.IdleTime/60)
	c.dialogs.Confirm(message, func(keep bool) {
		if keep {
			logger.Info("idle time of %ds kept", d.IdleTime)
			return
		}
		if c.phase == PhaseIdle || c.entryID != entryID {
			logger.Warn("idle prompt answered after entry %d ended", entryID)
			return
		}
		idleStart := detectedAt.Add(-time.Duration(d.IdleTime) * time.Second)
		c.command(bus.ChannelDiscardIdle, models.DiscardIdleRequest{
			Username:      c.username,
			IdleStartTime: utils.EpochMillis(idleStart),
		})
	})
}

func (c *Controller) onScreenshotTaken(payload json.RawMessage) {
	if c.phase == PhaseIdle {
		return
	}
	c.screenshots++
	c.notify()
}

func (c *Controller) onActivityChange(payload json.RawMessage) {
	var s models.ActivityStatusChange
	if err := bus.Decode(payload, &s); err != nil {
		logger.Error("invalid activity:statusChange payload: %v", err)
		return
	}
	if c.userID != 0 && s.UserID != c.userID {
		return
	}
	c.activity = s.Status
	c.notify()
}

// ===== 状态转换 =====

func (c *Controller) enterRunning() {
	if c.phase != PhaseRunning {
		c.idleAlertShown = false
	}
	c.phase = PhaseRunning
	c.startTick()
}

func (c *Controller) enterPaused() {
	c.phase = PhasePaused
	c.stopTick()
}

func (c *Controller) enterIdle() {
	c.stopTick()
	c.cancelNotes()
	c.phase = PhaseIdle
	c.entryID = 0
	c.elapsed = 0
	c.notes = ""
	c.screenshots = 0
	c.idleAlertShown = false
}

func (c *Controller) canResume() bool {
	return c.phase == PhasePaused || (c.phase == PhaseIdle && c.entryID != 0)
}

// startTick 先销毁旧任务再创建，保证最多一个计时任务
func (c *Controller) startTick() {
	c.stopTick()
	c.tick = c.sched.Every(time.Second, c.onTick)
}

func (c *Controller) stopTick() {
	if c.tick != nil {
		c.tick.Stop()
		c.tick = nil
	}
}

func (c *Controller) onTick() {
	if c.phase != PhaseRunning {
		c.stopTick()
		return
	}
	c.elapsed++
	c.notify()
}

// syncTracker 活动检测仅在有工时记录且已知用户时运行
func (c *Controller) syncTracker() {
	want := c.phase != PhaseIdle && c.userID != 0
	switch {
	case want && (!c.tracking || c.trackedUser != c.userID):
		c.tracker.Start(c.userID)
		c.tracking = true
		c.trackedUser = c.userID
	case !want && c.tracking:
		c.tracker.Stop()
		c.tracking = false
		c.activity = models.StatusUnknown
	}
}

func (c *Controller) cancelNotes() {
	if c.notesTimer != nil {
		c.notesTimer.Stop()
		c.notesTimer = nil
	}
}

func (c *Controller) flushNotes() {
	c.notesTimer = nil
	if c.phase == PhaseIdle {
		return
	}
	if err := c.messenger.Send(bus.ChannelAddNotes, models.NotesRequest{Username: c.username, Notes: c.notes}); err != nil {
		c.transportError(err)
	}
}

// ===== 后端交互 =====

// command 发送计时命令，确认前标记为进行中
func (c *Controller) command(channel string, payload interface{}) {
	c.inFlight = true
	if err := c.messenger.Send(channel, payload); err != nil {
		c.transportError(err)
		return
	}
	c.notify()
}

func (c *Controller) loadClients() {
	var clients []models.Client
	if err := c.messenger.Invoke(c.ctx, bus.ChannelGetClients, nil, &clients); err != nil {
		c.transportError(err)
		return
	}
	c.clients = clients
}

func (c *Controller) loadProjects(clientID int64) {
	var projects []models.Project
	if err := c.messenger.Invoke(c.ctx, bus.ChannelGetProjects, models.ClientRef{ClientID: clientID}, &projects); err != nil {
		c.transportError(err)
		return
	}
	c.projects = projects
}

func (c *Controller) validation(message string) {
	logger.Warn("validation: %s", message)
	c.dialogs.Alert(message)
}

func (c *Controller) transportError(err error) {
	logger.Error("backend communication failed: %v", err)
	c.inFlight = false
	c.dialogs.Alert(fmt.Sprintf("Error: %v", err))
	c.notify()
}

func (c *Controller) ignore(u models.TimerUpdate) {
	logger.Warn("ignoring %s while %s", u.Action, c.phase)
}

func (c *Controller) notify() {
	if len(c.observers) == 0 {
		return
	}
	snap := c.Snapshot()
	for _, fn := range c.observers {
		fn(snap)
	}
}

func clamp(seconds int64) int64 {
	if seconds < 0 {
		return 0
	}
	return seconds
}
