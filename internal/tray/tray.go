// Package tray 系统托盘：显示计时状态并提供暂停、停止与打开管理界面。
package tray

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"worktracker/internal/timer"
	"worktracker/internal/view"
	"worktracker/pkg/logger"
	"worktracker/pkg/utils"

	"github.com/getlantern/systray"
)

// maxStatusLen 状态行最多显示的字符数
const maxStatusLen = 48

// Controls 托盘可触发的手势
type Controls interface {
	TogglePause(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Item 菜单项状态
type Item struct {
	Title   string
	Visible bool
	Enabled bool
}

// Menu 托盘菜单状态
type Menu struct {
	Title   string
	Tooltip string
	Phase   string
	Status  Item
	Toggle  Item
	Stop    Item
	Keep    Item
	Discard Item
}

// BuildMenu 纯函数：界面到菜单的映射
func BuildMenu(s view.Screen) Menu {
	m := s.Model
	menu := Menu{
		Title:   m.Title(),
		Tooltip: "WorkTracker",
		Phase:   m.Phase,
		Toggle:  buttonItem(m.Pause),
		Stop:    buttonItem(m.Stop),
	}

	switch {
	case !m.LoggedIn:
		menu.Status = Item{Title: "Not signed in", Visible: true}
	case m.Phase == timer.PhaseIdle.String():
		menu.Status = Item{Title: m.Username + ": not tracking", Visible: true}
	default:
		menu.Status = Item{
			Title:   utils.TruncateString(fmt.Sprintf("%s: %s / %s", m.Username, view.SelectedLabel(m.Clients), view.SelectedLabel(m.Projects)), maxStatusLen),
			Visible: true,
		}
	}

	if s.Alert != "" {
		menu.Tooltip = "WorkTracker: " + s.Alert
	}
	if s.Prompt != nil {
		menu.Tooltip = s.Prompt.Message
		menu.Keep = Item{Title: "Keep idle time", Visible: true, Enabled: true}
		menu.Discard = Item{Title: "Discard idle time", Visible: true, Enabled: true}
	}
	return menu
}

func buttonItem(b view.Button) Item {
	if !b.Visible {
		return Item{}
	}
	return Item{Title: b.Label, Visible: true, Enabled: b.Enabled}
}

// TrayApp 托盘应用
type TrayApp struct {
	store           *view.Store
	controls        Controls
	webURL          string
	autoOpenBrowser bool
	onExit          func()

	mu      sync.Mutex
	items   map[string]*systray.MenuItem
	phase   string
	prompt  string
	unwatch func()
}

// NewTrayApp 创建托盘应用
func NewTrayApp(store *view.Store, controls Controls, webURL string, autoOpenBrowser bool, onExit func()) *TrayApp {
	return &TrayApp{
		store:           store,
		controls:        controls,
		webURL:          webURL,
		autoOpenBrowser: autoOpenBrowser,
		onExit:          onExit,
	}
}

// Run 运行托盘应用（阻塞，需在主线程调用）
func (t *TrayApp) Run() {
	systray.Run(t.onReady, t.onQuit)
}

// Quit 退出托盘
func (t *TrayApp) Quit() {
	systray.Quit()
}

func (t *TrayApp) onReady() {
	systray.SetIcon(Icon(timer.PhaseIdle.String()))
	systray.SetTitle("WorkTracker")
	systray.SetTooltip("WorkTracker")

	status := systray.AddMenuItem("", "")
	status.Disable()
	systray.AddSeparator()
	toggle := systray.AddMenuItem("Pause", "Pause or resume the running timer")
	stop := systray.AddMenuItem("Stop", "Stop the running timer")
	keep := systray.AddMenuItem("Keep idle time", "")
	discard := systray.AddMenuItem("Discard idle time", "")
	systray.AddSeparator()
	open := systray.AddMenuItem("🌐 Open WorkTracker", "Open the timer and dashboard in the browser")
	quit := systray.AddMenuItem("❌ Quit", "Quit WorkTracker")

	t.mu.Lock()
	t.items = map[string]*systray.MenuItem{
		"status": status, "toggle": toggle, "stop": stop, "keep": keep, "discard": discard,
	}
	t.mu.Unlock()

	t.render(t.store.Current())
	t.unwatch = t.store.Subscribe(t.render)

	go func() {
		for {
			select {
			case <-toggle.ClickedCh:
				t.gesture("toggle", t.controls.TogglePause)
			case <-stop.ClickedCh:
				t.gesture("stop", t.controls.Stop)
			case <-keep.ClickedCh:
				t.answer(true)
			case <-discard.ClickedCh:
				t.answer(false)
			case <-open.ClickedCh:
				t.openBrowser()
			case <-quit.ClickedCh:
				fmt.Println("🛑 用户请求退出...")
				systray.Quit()
				return
			}
		}
	}()

	if t.autoOpenBrowser {
		go func() {
			time.Sleep(1 * time.Second)
			t.openBrowser()
		}()
	}
}

func (t *TrayApp) onQuit() {
	if t.unwatch != nil {
		t.unwatch()
	}
	if t.onExit != nil {
		t.onExit()
	}
	fmt.Println("👋 WorkTracker 已退出")
}

// render 订阅回调，可能来自任意 goroutine
func (t *TrayApp) render(s view.Screen) {
	menu := BuildMenu(s)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.items == nil {
		return
	}

	systray.SetTitle(menu.Title)
	systray.SetTooltip(menu.Tooltip)
	if menu.Phase != t.phase {
		t.phase = menu.Phase
		systray.SetIcon(Icon(menu.Phase))
	}
	t.prompt = ""
	if s.Prompt != nil {
		t.prompt = s.Prompt.ID
	}

	apply(t.items["status"], menu.Status)
	apply(t.items["toggle"], menu.Toggle)
	apply(t.items["stop"], menu.Stop)
	apply(t.items["keep"], menu.Keep)
	apply(t.items["discard"], menu.Discard)
}

func apply(mi *systray.MenuItem, it Item) {
	if !it.Visible {
		mi.Hide()
		return
	}
	mi.SetTitle(it.Title)
	mi.Show()
	if it.Enabled {
		mi.Enable()
	} else {
		mi.Disable()
	}
}

func (t *TrayApp) gesture(name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Error("tray %s failed: %v", name, err)
	}
}

func (t *TrayApp) answer(keep bool) {
	t.mu.Lock()
	id := t.prompt
	t.mu.Unlock()
	if id == "" {
		return
	}
	if err := t.store.Answer(id, keep); err != nil {
		logger.Warn("tray prompt answer: %v", err)
	}
}

// openBrowser 打开浏览器
func (t *TrayApp) openBrowser() {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", t.webURL)
	case "darwin":
		cmd = exec.Command("open", t.webURL)
	default:
		cmd = exec.Command("xdg-open", t.webURL)
	}

	if err := cmd.Start(); err != nil {
		logger.Warn("failed to open browser: %v", err)
	}
}

var (
	iconMu    sync.Mutex
	iconCache = map[string][]byte{}
)

// Icon 按计时阶段着色的 16x16 PNG 图标
func Icon(phase string) []byte {
	iconMu.Lock()
	defer iconMu.Unlock()
	if data, ok := iconCache[phase]; ok {
		return data
	}

	fill := color.RGBA{0x9e, 0x9e, 0x9e, 0xff}
	switch phase {
	case timer.PhaseRunning.String():
		fill = color.RGBA{0x2e, 0x7d, 0x32, 0xff}
	case timer.PhasePaused.String():
		fill = color.RGBA{0xf9, 0xa8, 0x25, 0xff}
	}

	const size = 16
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := x-size/2, y-size/2
			if dx*dx+dy*dy <= (size/2-1)*(size/2-1) {
				img.Set(x, y, fill)
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		logger.Error("failed to encode tray icon: %v", err)
	}
	iconCache[phase] = buf.Bytes()
	return iconCache[phase]
}
