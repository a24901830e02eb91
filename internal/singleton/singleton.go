// Package singleton 单实例检测：Windows 使用命名互斥锁，其他平台使用文件锁。
package singleton

import "errors"

// ErrAlreadyRunning 已有实例在运行
var ErrAlreadyRunning = errors.New("another instance is already running")

func alreadyRunningMessage(appName string) string {
	return appName + " is already running.\n\nLook for its icon in the system tray to open the timer or quit."
}
