// Package screenstate 检测屏幕锁定与屏保，供活动检测判断用户是否离开。
package screenstate

import (
	"bufio"
	"strings"
)

// State 屏幕状态
type State int

const (
	Active State = iota
	Locked
	Screensaver
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Screensaver:
		return "screensaver"
	}
	return "active"
}

// IsScreenActive 屏幕未锁定且未运行屏保
func IsScreenActive() bool {
	return Current() == Active
}

// ParseLockedHint 解析 `loginctl show-session -p LockedHint` 的输出
func ParseLockedHint(out string) bool {
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if ok && key == "LockedHint" {
			return strings.EqualFold(value, "yes")
		}
	}
	return false
}
