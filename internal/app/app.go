// Package app 组装计时器的界面侧与后端，并向各个界面提供统一的手势入口。
package app

import (
	"context"
	"fmt"
	"time"

	"worktracker/internal/activity"
	"worktracker/internal/admin"
	"worktracker/internal/bus"
	"worktracker/internal/capture"
	"worktracker/internal/config"
	"worktracker/internal/host"
	"worktracker/internal/loop"
	"worktracker/internal/scheduler"
	"worktracker/internal/server"
	"worktracker/internal/storage"
	"worktracker/internal/timer"
	"worktracker/internal/view"
	"worktracker/pkg/logger"
	"worktracker/pkg/models"
	"worktracker/pkg/screenstate"
)

const shutdownTimeout = 10 * time.Second

// App 运行中的全部组件
type App struct {
	configMgr  *config.Manager
	storageMgr *storage.Manager

	ui       *loop.Loop
	hostLoop *loop.Loop
	renderer *bus.Endpoint
	hostEnd  *bus.Endpoint

	hub        *activity.Hub
	tracker    *activity.Tracker
	store      *view.Store
	controller *timer.Controller
	dashboard  *admin.Dashboard
	backend    *host.Backend
	capture    *capture.Engine
	scheduler  *scheduler.Scheduler
	server     *server.Server
	worker     *Worker

	cancel context.CancelFunc
}

// New 按配置创建全部组件，尚未启动
func New(configMgr *config.Manager, version string, captureOpts ...capture.Option) (*App, error) {
	cfg := configMgr.Get()

	storageMgr, err := storage.NewManager(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	a := &App{
		configMgr:  configMgr,
		storageMgr: storageMgr,
		ui:         loop.New(),
		hostLoop:   loop.New(),
	}

	// 界面侧
	a.renderer, a.hostEnd = bus.NewPair()
	a.renderer.SetDispatcher(a.ui.Post)
	a.hostEnd.SetDispatcher(a.hostLoop.Post)

	a.hub = activity.NewHub(a.ui.Post, a.ui.Now)
	trackerOpts := []activity.Option{
		activity.WithThreshold(cfg.Activity.Threshold()),
		activity.WithCheckInterval(cfg.Activity.CheckInterval()),
	}
	if cfg.Activity.ScreenProbe {
		trackerOpts = append(trackerOpts, activity.WithScreenProbe(screenstate.IsScreenActive))
	}
	a.tracker = activity.NewTracker(a.hub, a.ui, a.renderer, trackerOpts...)

	a.store = view.NewStore(a.ui.Post)
	a.controller = timer.NewController(a.renderer, a.ui, a.tracker, a.store, timer.Options{
		NotesDebounce:     cfg.Timer.NotesDebounce(),
		IdlePromptSeconds: int64(cfg.Timer.IdlePromptSeconds),
	})
	a.controller.OnChange(a.store.Update)

	a.dashboard = admin.NewDashboard(a.renderer, admin.Options{
		ThumbnailWidth: uint(cfg.Admin.ThumbnailWidth),
		RangeDays:      cfg.Admin.DefaultRangeDays,
	})

	// 后端
	a.capture = capture.NewEngine(configMgr, storageMgr, a.screenshotTaken, captureOpts...)
	a.backend = host.New(a.hostEnd, storageMgr, a.capture, host.Options{
		InactivityThreshold: cfg.Activity.Threshold(),
	})
	a.scheduler = scheduler.NewScheduler(configMgr, storageMgr, hostStopper{loop: a.hostLoop, backend: a.backend})

	a.worker = &Worker{loop: a.ui, controller: a.controller, hub: a.hub}
	a.server = server.NewServer(configMgr, a.worker, a.store, a.dashboard, a.capture, version)
	return a, nil
}

// screenshotTaken 截屏回调来自截屏 goroutine，转到后端循环上通知界面
func (a *App) screenshotTaken(ss models.Screenshot) {
	a.hostLoop.Post(func() { a.backend.ScreenshotTaken(ss) })
}

// Start 启动事件循环、订阅与定时任务
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	a.ui.Start(ctx)
	a.hostLoop.Start(ctx)

	if err := a.hostLoop.Do(ctx, a.backend.Attach); err != nil {
		return fmt.Errorf("failed to attach backend: %w", err)
	}
	if err := a.ui.Do(ctx, a.controller.Attach); err != nil {
		return fmt.Errorf("failed to attach timer: %w", err)
	}
	if err := a.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	logger.Info("worktracker started, data in %s", a.storageMgr.Path())
	return nil
}

// Serve 在后台运行 HTTP 服务
func (a *App) Serve() {
	go func() {
		if err := a.server.Start(); err != nil {
			logger.Error("http server: %v", err)
			fmt.Printf("❌ Web 服务器错误: %v\n", err)
		}
	}()
}

// Close 按依赖的反序关闭
func (a *App) Close() error {
	fmt.Println("📦 正在清理资源...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(); err != nil {
		logger.Warn("server shutdown: %v", err)
	}
	a.scheduler.Stop()
	a.capture.Stop()

	if err := a.ui.Do(ctx, a.controller.Detach); err != nil {
		logger.Warn("detach timer: %v", err)
	}
	if err := a.hostLoop.Do(ctx, a.backend.Detach); err != nil {
		logger.Warn("detach backend: %v", err)
	}
	a.renderer.Close()
	a.hostEnd.Close()

	a.ui.Close()
	a.hostLoop.Close()
	a.ui.Wait()
	a.hostLoop.Wait()
	if a.cancel != nil {
		a.cancel()
	}

	if err := a.storageMgr.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	fmt.Println("✅ 资源清理完成")
	return nil
}

// Worker 手势入口
func (a *App) Worker() *Worker { return a.worker }

// Store 当前界面
func (a *App) Store() *view.Store { return a.store }

// Dashboard 管理后台
func (a *App) Dashboard() *admin.Dashboard { return a.dashboard }

// Server HTTP 服务
func (a *App) Server() *server.Server { return a.server }

// URL Web 界面地址
func (a *App) URL() string { return a.server.URL() }

// hostStopper 在后端循环上停止全部计时
type hostStopper struct {
	loop    *loop.Loop
	backend *host.Backend
}

func (s hostStopper) StopAll() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error
	if doErr := s.loop.Do(ctx, func() { err = s.backend.StopAll() }); doErr != nil {
		return doErr
	}
	return err
}
