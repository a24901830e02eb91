//go:build !windows

package screenstate

import (
	"os"
	"os/exec"
	"runtime"
)

// Current 当前屏幕状态；Linux 通过 logind 的 LockedHint 判断，其他平台视为活跃
func Current() State {
	if runtime.GOOS != "linux" {
		return Active
	}
	if isSessionLocked() {
		return Locked
	}
	return Active
}

func isSessionLocked() bool {
	args := []string{"show-session", "-p", "LockedHint"}
	if id := os.Getenv("XDG_SESSION_ID"); id != "" {
		args = []string{"show-session", id, "-p", "LockedHint"}
	}
	out, err := exec.Command("loginctl", args...).Output()
	if err != nil {
		// 没有 logind 时无法判断
		return false
	}
	return ParseLockedHint(string(out))
}
