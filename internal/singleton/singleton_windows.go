//go:build windows

package singleton

import (
	"fmt"
	"syscall"
	"unsafe"
)

var (
	kernel32        = syscall.NewLazyDLL("kernel32.dll")
	user32          = syscall.NewLazyDLL("user32.dll")
	procCreateMutex = kernel32.NewProc("CreateMutexW")
	procMessageBox  = user32.NewProc("MessageBoxW")
)

// Guard 持有互斥锁句柄
type Guard struct {
	handle syscall.Handle
}

// createMutex 创建命名互斥锁，返回是否首次创建
func createMutex(name string) (*Guard, bool, error) {
	namePtr, err := syscall.UTF16PtrFromString(name)
	if err != nil {
		return nil, false, err
	}

	ret, _, err := procCreateMutex.Call(
		0, // 默认安全属性
		0, // 不初始拥有
		uintptr(unsafe.Pointer(namePtr)),
	)
	if ret == 0 {
		return nil, false, err
	}

	// ERROR_ALREADY_EXISTS = 183
	isFirst := err != syscall.ERROR_ALREADY_EXISTS
	return &Guard{handle: syscall.Handle(ret)}, isFirst, nil
}

// Close 释放互斥锁
func (g *Guard) Close() error {
	if g.handle != 0 {
		err := syscall.CloseHandle(g.handle)
		g.handle = 0
		return err
	}
	return nil
}

// notify 显示 Windows 消息框
func notify(title, message string) {
	titlePtr, _ := syscall.UTF16PtrFromString(title)
	messagePtr, _ := syscall.UTF16PtrFromString(message)

	// MB_OK | MB_ICONWARNING
	procMessageBox.Call(
		0,
		uintptr(unsafe.Pointer(messagePtr)),
		uintptr(unsafe.Pointer(titlePtr)),
		0x30,
	)
}

// EnsureSingleInstance 确保只有一个实例运行；lockDir 在 Windows 上不使用
func EnsureSingleInstance(appName, lockDir string) (*Guard, error) {
	g, isFirst, err := createMutex(fmt.Sprintf("Global\\%s_SingleInstance", appName))
	if err != nil {
		return nil, fmt.Errorf("failed to create mutex: %w", err)
	}
	if !isFirst {
		notify(appName+" - Warning", alreadyRunningMessage(appName))
		g.Close()
		return nil, ErrAlreadyRunning
	}
	return g, nil
}
