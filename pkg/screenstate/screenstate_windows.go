//go:build windows

package screenstate

import (
	"syscall"
	"unsafe"
)

var (
	user32                   = syscall.NewLazyDLL("user32.dll")
	procSystemParametersInfo = user32.NewProc("SystemParametersInfoW")
	procGetForegroundWindow  = user32.NewProc("GetForegroundWindow")
)

const spiGetScreenSaverRunning = 0x0072

// Current 当前屏幕状态
func Current() State {
	if screensaverRunning() {
		return Screensaver
	}
	// 锁屏时没有前台窗口
	if hwnd, _, _ := procGetForegroundWindow.Call(); hwnd == 0 {
		return Locked
	}
	return Active
}

func screensaverRunning() bool {
	var running uint32
	ret, _, _ := procSystemParametersInfo.Call(
		uintptr(spiGetScreenSaverRunning),
		0,
		uintptr(unsafe.Pointer(&running)),
		0,
	)
	return ret != 0 && running != 0
}
