//go:build !windows

package singleton

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Guard 持有加锁的锁文件
type Guard struct {
	file *os.File
	path string
}

// EnsureSingleInstance 在 lockDir 下的锁文件上加排他锁，进程退出时锁自动释放
func EnsureSingleInstance(appName, lockDir string) (*Guard, error) {
	if err := os.MkdirAll(lockDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock dir: %w", err)
	}
	path := filepath.Join(lockDir, strings.ToLower(appName)+".lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if err == syscall.EWOULDBLOCK {
			fmt.Fprintln(os.Stderr, "⚠️ "+alreadyRunningMessage(appName))
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}

	f.Truncate(0)
	f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	return &Guard{file: f, path: path}, nil
}

// Close 释放锁并删除锁文件
func (g *Guard) Close() error {
	if g.file == nil {
		return nil
	}
	os.Remove(g.path)
	syscall.Flock(int(g.file.Fd()), syscall.LOCK_UN)
	err := g.file.Close()
	g.file = nil
	return err
}
