package models

import "time"

// TimerAction timer:update 事件类型
type TimerAction string

const (
	ActionStarted       TimerAction = "started"
	ActionPaused        TimerAction = "paused"
	ActionResumed       TimerAction = "resumed"
	ActionStopped       TimerAction = "stopped"
	ActionStatus        TimerAction = "status"
	ActionIdleDiscarded TimerAction = "idleDiscarded"
)

// UserRequest login / timer:status / timer:pause / timer:resume / timer:stop 的请求体
type UserRequest struct {
	Username string `json:"username"`
}

// StartRequest timer:start 请求体
type StartRequest struct {
	Username   string `json:"username"`
	ClientID   int64  `json:"clientId"`
	ProjectID  int64  `json:"projectId"`
	IsBillable bool   `json:"isBillable"`
}

// NotesRequest timer:addNotes 请求体
type NotesRequest struct {
	Username string `json:"username"`
	Notes    string `json:"notes"`
}

// DiscardIdleRequest timer:discardIdle 请求体
type DiscardIdleRequest struct {
	Username      string `json:"username"`
	IdleStartTime int64  `json:"idleStartTime"` // 毫秒时间戳
}

// ActivityUpdate activity:update 请求体
type ActivityUpdate struct {
	UserID    int64          `json:"userId"`
	Status    ActivityStatus `json:"status"`
	Timestamp string         `json:"timestamp"`           // ISO-8601
	LastInput string         `json:"lastInput,omitempty"` // 离开时最后一次输入的时间，ISO-8601
}

// TimerUpdate timer:update 事件
type TimerUpdate struct {
	Action    TimerAction `json:"action"`
	EntryID   int64       `json:"entryId,omitempty"`
	UserID    int64       `json:"userId,omitempty"`
	ClientID  int64       `json:"clientId,omitempty"`
	ProjectID int64       `json:"projectId,omitempty"`
	StartTime *time.Time  `json:"startTime,omitempty"`
	IsActive  bool        `json:"isActive"`
	IsPaused  bool        `json:"isPaused,omitempty"`
	Duration  *int64      `json:"duration,omitempty"` // 已计时秒数
}

// TimerError timer:error 事件
type TimerError struct {
	Error string `json:"error"`
}

// IdleDetected idle:detected 事件
type IdleDetected struct {
	IdleTime int64 `json:"idleTime"` // seconds
}

// ScreenshotTaken screenshot:taken 事件
type ScreenshotTaken struct {
	TimeEntryID  int64 `json:"timeEntryId,omitempty"`
	ScreenshotID int64 `json:"screenshotId,omitempty"`
}

// ActivityStatusChange activity:statusChange 事件
type ActivityStatusChange struct {
	UserID int64          `json:"userId"`
	Status ActivityStatus `json:"status"`
}

// TimeEntriesQuery admin:getTimeEntries 查询条件
type TimeEntriesQuery struct {
	UserID   *int64 `json:"userId,omitempty"`
	FromDate string `json:"fromDate"` // YYYY-MM-DD
	ToDate   string `json:"toDate"`   // YYYY-MM-DD（含）
}

// ReportQuery admin:generateReport 查询条件
type ReportQuery struct {
	Type     ReportKind `json:"type"`
	UserID   *int64     `json:"userId,omitempty"`
	FromDate string     `json:"fromDate"`
	ToDate   string     `json:"toDate"`
}

// TimeEntryRef 工时记录引用
type TimeEntryRef struct {
	TimeEntryID int64 `json:"timeEntryId"`
}

// ScreenshotRef 截图引用
type ScreenshotRef struct {
	ScreenshotID int64 `json:"screenshotId"`
}

// ScreenshotData 截图内容
type ScreenshotData struct {
	Data string `json:"data"` // base64
}

// ClientRef 客户引用
type ClientRef struct {
	ClientID int64 `json:"clientId"`
}
