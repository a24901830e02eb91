package utils

import (
	"fmt"
	"math"
	"time"
)

const (
	// DateLayout 输入框日期格式
	DateLayout = "2006-01-02"
	// DisplayDateLayout 列表中显示的日期
	DisplayDateLayout = "1/2/2006"
	// ClockLayout 列表中显示的时间
	ClockLayout = "15:04"
	// ISOLayout 与浏览器 toISOString 一致的时间戳
	ISOLayout = "2006-01-02T15:04:05.000Z"
)

// FormatHMS 将秒数格式化为 HH:MM:SS，不足两位补零
func FormatHMS(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatHours 小时数保留两位小数
func FormatHours(hours float64) string {
	return fmt.Sprintf("%.2f", hours)
}

// ElapsedSeconds 计算 start 到 now 的整秒数，start 在未来时返回 0
func ElapsedSeconds(start, now time.Time) int64 {
	ms := now.Sub(start).Milliseconds()
	if ms <= 0 {
		return 0
	}
	return int64(math.Floor(float64(ms) / 1000))
}

// ISOTimestamp 返回 UTC 毫秒精度的 ISO-8601 时间戳
func ISOTimestamp(t time.Time) string {
	return t.UTC().Format(ISOLayout)
}

// EpochMillis 毫秒时间戳
func EpochMillis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

// FromEpochMillis 由毫秒时间戳构造时间
func FromEpochMillis(ms int64) time.Time {
	return time.Unix(0, ms*int64(time.Millisecond))
}

// StartOfDay 当天零点
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// LastDays 返回以 now 结尾、长度为 days 天的日期范围（默认最近 7 天）
func LastDays(now time.Time, days int) (from, to time.Time) {
	if days <= 0 {
		days = 7
	}
	to = StartOfDay(now)
	from = to.AddDate(0, 0, -days)
	return from, to
}

// ParseDate 解析 YYYY-MM-DD
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatBytes 格式化字节大小
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// TruncateString 截断字符串
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
