// Package capture 计时期间的定时截屏。
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"time"

	"worktracker/internal/config"
	"worktracker/internal/storage"
	"worktracker/pkg/logger"
	"worktracker/pkg/models"
	"worktracker/pkg/utils"

	"github.com/kbinani/screenshot"
)

// Grabber 屏幕抓取
type Grabber interface {
	NumDisplays() int
	Bounds(index int) image.Rectangle
	Capture(index int) (*image.RGBA, error)
}

type displayGrabber struct{}

func (displayGrabber) NumDisplays() int { return screenshot.NumActiveDisplays() }

func (displayGrabber) Bounds(index int) image.Rectangle { return screenshot.GetDisplayBounds(index) }

func (displayGrabber) Capture(index int) (*image.RGBA, error) {
	return screenshot.CaptureRect(screenshot.GetDisplayBounds(index))
}

// Option 引擎选项
type Option func(*Engine)

// WithGrabber 替换屏幕抓取实现
func WithGrabber(g Grabber) Option {
	return func(e *Engine) { e.grabber = g }
}

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine 截屏引擎；每次只为一条运行中的工时记录截屏
type Engine struct {
	configMgr  *config.Manager
	storage    *storage.Manager
	grabber    Grabber
	onCaptured func(models.Screenshot)
	now        func() time.Time

	mu          sync.RWMutex
	entryID     int64
	cancel      context.CancelFunc
	done        chan struct{}
	lastCapture time.Time
}

// NewEngine 创建截屏引擎；onCaptured 在每张截图入库后调用，可为 nil
func NewEngine(configMgr *config.Manager, storageMgr *storage.Manager, onCaptured func(models.Screenshot), opts ...Option) *Engine {
	e := &Engine{
		configMgr:  configMgr,
		storage:    storageMgr,
		grabber:    displayGrabber{},
		onCaptured: onCaptured,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Begin 为工时记录开始定时截屏；截屏未启用时无操作
func (e *Engine) Begin(entryID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancel != nil {
		if e.entryID == entryID {
			return
		}
		e.stopLocked()
	}

	cfg := e.configMgr.GetCapture()
	if !cfg.Enabled {
		logger.Debug("capture disabled, entry %d runs without screenshots", entryID)
		return
	}
	interval := time.Duration(cfg.Interval) * time.Second
	if interval <= 0 {
		logger.Warn("invalid capture interval %d, capture not started", cfg.Interval)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.entryID = entryID
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.captureLoop(ctx, entryID, interval, e.done)

	logger.Info("capture started for entry %d, interval %ds", entryID, cfg.Interval)
}

// End 停止为该工时记录截屏
func (e *Engine) End(entryID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancel == nil || e.entryID != entryID {
		return
	}
	e.stopLocked()
}

// Stop 停止截屏（退出时调用）
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.stopLocked()
	}
}

func (e *Engine) stopLocked() {
	e.cancel()
	done := e.done
	id := e.entryID
	e.cancel = nil
	e.done = nil
	e.entryID = 0

	// 截屏循环结束前不持有锁
	e.mu.Unlock()
	<-done
	e.mu.Lock()
	logger.Info("capture stopped for entry %d", id)
}

// Running 当前截屏的工时记录
func (e *Engine) Running() (int64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.entryID, e.cancel != nil
}

// LastCapture 最后一次截图时间
func (e *Engine) LastCapture() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastCapture
}

func (e *Engine) captureLoop(ctx context.Context, entryID int64, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.CaptureNow(entryID); err != nil {
				logger.Error("capture for entry %d failed: %v", entryID, err)
			}
		}
	}
}

// CaptureNow 立即为工时记录截取所有选中的屏幕
func (e *Engine) CaptureNow(entryID int64) ([]models.Screenshot, error) {
	cfg := e.configMgr.GetCapture()

	var saved []models.Screenshot
	for _, screenIndex := range cfg.SelectedScreens {
		ss, err := e.captureScreen(entryID, screenIndex, cfg.Quality)
		if err != nil {
			return saved, fmt.Errorf("failed to capture screen %d: %w", screenIndex, err)
		}
		saved = append(saved, ss)
		if e.onCaptured != nil {
			e.onCaptured(ss)
		}
	}

	e.mu.Lock()
	e.lastCapture = e.now()
	e.mu.Unlock()

	logger.Debug("captured %d screens for entry %d", len(saved), entryID)
	return saved, nil
}

// captureScreen 截取指定屏幕
func (e *Engine) captureScreen(entryID int64, screenIndex, quality int) (models.Screenshot, error) {
	n := e.grabber.NumDisplays()
	if screenIndex < 0 || screenIndex >= n {
		return models.Screenshot{}, fmt.Errorf("invalid screen index: %d (total: %d)", screenIndex, n)
	}

	img, err := e.grabber.Capture(screenIndex)
	if err != nil {
		return models.Screenshot{}, fmt.Errorf("screenshot failed: %w", err)
	}
	return e.saveScreenshot(entryID, img, screenIndex, quality)
}

// saveScreenshot 写入 JPEG 并登记到数据库
func (e *Engine) saveScreenshot(entryID int64, img image.Image, screenIndex, quality int) (models.Screenshot, error) {
	storageCfg := e.configMgr.GetStorage()

	now := e.now()
	filename := fmt.Sprintf("entry%d_screen%d_%s.jpg",
		entryID,
		screenIndex,
		now.Format("20060102_150405"),
	)

	screenshotsDir := storageCfg.ScreenshotsDir
	if screenshotsDir == "" {
		screenshotsDir = filepath.Join(storageCfg.DataDir, "screenshots")
	}
	dateDir := filepath.Join(screenshotsDir, now.Format(utils.DateLayout))
	if err := os.MkdirAll(dateDir, 0755); err != nil {
		return models.Screenshot{}, fmt.Errorf("failed to create directory: %w", err)
	}
	filePath := filepath.Join(dateDir, filename)

	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return models.Screenshot{}, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	if err := os.WriteFile(filePath, buf.Bytes(), 0644); err != nil {
		return models.Screenshot{}, fmt.Errorf("failed to write file: %w", err)
	}

	bounds := img.Bounds()
	ss := models.Screenshot{
		TimeEntryID: entryID,
		Timestamp:   now,
		FilePath:    filePath,
		FileSize:    int64(buf.Len()),
		Resolution:  fmt.Sprintf("%dx%d", bounds.Dx(), bounds.Dy()),
	}
	if err := e.storage.SaveScreenshot(&ss); err != nil {
		os.Remove(filePath)
		return models.Screenshot{}, fmt.Errorf("failed to save to database: %w", err)
	}

	logger.Debug("screenshot saved: %s (%s)", filePath, utils.FormatBytes(ss.FileSize))
	return ss, nil
}

// Screens 获取所有屏幕信息
func (e *Engine) Screens() []models.ScreenInfo {
	g := e.grabber
	n := g.NumDisplays()
	infos := make([]models.ScreenInfo, n)
	for i := 0; i < n; i++ {
		bounds := g.Bounds(i)
		infos[i] = models.ScreenInfo{
			Index:     i,
			Name:      fmt.Sprintf("Display %d", i+1),
			Width:     bounds.Dx(),
			Height:    bounds.Dy(),
			IsPrimary: i == 0,
		}
	}
	return infos
}
