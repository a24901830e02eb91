package app

import (
	"context"

	"worktracker/internal/activity"
	"worktracker/internal/loop"
	"worktracker/internal/timer"
)

// Worker 把界面手势投递到事件循环，执行完才返回。
// 同时满足 HTTP、托盘与终端界面的手势接口。
type Worker struct {
	loop       *loop.Loop
	controller *timer.Controller
	hub        *activity.Hub
}

func (w *Worker) do(ctx context.Context, fn func()) error {
	return w.loop.Do(ctx, fn)
}

// Login 登录
func (w *Worker) Login(ctx context.Context, username string) error {
	return w.do(ctx, func() { w.controller.Login(username) })
}

// SelectClient 选择客户
func (w *Worker) SelectClient(ctx context.Context, clientID int64) error {
	return w.do(ctx, func() { w.controller.SelectClient(clientID) })
}

// SelectProject 选择项目
func (w *Worker) SelectProject(ctx context.Context, projectID int64) error {
	return w.do(ctx, func() { w.controller.SelectProject(projectID) })
}

func (w *Worker) Start(ctx context.Context) error {
	return w.do(ctx, w.controller.Start)
}

func (w *Worker) Pause(ctx context.Context) error {
	return w.do(ctx, w.controller.Pause)
}

func (w *Worker) Resume(ctx context.Context) error {
	return w.do(ctx, w.controller.Resume)
}

func (w *Worker) TogglePause(ctx context.Context) error {
	return w.do(ctx, w.controller.TogglePause)
}

func (w *Worker) Stop(ctx context.Context) error {
	return w.do(ctx, w.controller.Stop)
}

// EditNotes 修改备注，防抖后发送
func (w *Worker) EditNotes(ctx context.Context, text string) error {
	return w.do(ctx, func() { w.controller.EditNotes(text) })
}

// Input 用户输入，供活动检测使用
func (w *Worker) Input(kind activity.InputKind) {
	w.hub.Dispatch(kind)
}

// Snapshot 控制器当前状态
func (w *Worker) Snapshot(ctx context.Context) (timer.Snapshot, error) {
	var s timer.Snapshot
	err := w.do(ctx, func() { s = w.controller.Snapshot() })
	return s, err
}
