package models

import "time"

// User 用户
type User struct {
	ID       int64  `json:"id" db:"id"`
	Username string `json:"username" db:"username"`
}

// Client 客户
type Client struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Project 项目（隶属于一个客户）
type Project struct {
	ID       int64  `json:"id" db:"id"`
	ClientID int64  `json:"client_id,omitempty" db:"client_id"`
	Name     string `json:"name" db:"name"`
}

// TimeEntry 工时记录（由后端持有）
type TimeEntry struct {
	ID              int64      `json:"id" db:"id"`
	UserID          int64      `json:"user_id" db:"user_id"`
	ClientID        int64      `json:"client_id" db:"client_id"`
	ProjectID       int64      `json:"project_id" db:"project_id"`
	StartTime       time.Time  `json:"start_time" db:"start_time"`
	EndTime         *time.Time `json:"end_time" db:"end_time"`    // 计时中为 nil
	Duration        int64      `json:"duration" db:"duration"`    // 秒
	IsBillable      bool       `json:"is_billable" db:"is_billable"`
	IsEdited        bool       `json:"is_edited" db:"is_edited"`
	IsManual        bool       `json:"is_manual" db:"is_manual"`
	Notes           string     `json:"notes" db:"notes"`
	ScreenshotCount int        `json:"screenshot_count" db:"screenshot_count"`
}

// Running 是否仍在计时
func (e TimeEntry) Running() bool {
	return e.EndTime == nil
}

// Screenshot 截图数据模型
type Screenshot struct {
	ID          int64     `json:"id" db:"id"`
	TimeEntryID int64     `json:"time_entry_id" db:"time_entry_id"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
	FilePath    string    `json:"filepath" db:"file_path"`
	FileSize    int64     `json:"file_size,omitempty" db:"file_size"`
	Resolution  string    `json:"resolution,omitempty" db:"resolution"`
}

// ScreenInfo 屏幕信息
type ScreenInfo struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	IsPrimary bool   `json:"is_primary"`
}

// ActivityStatus 活动状态
type ActivityStatus string

const (
	StatusUnknown  ActivityStatus = ""
	StatusActive   ActivityStatus = "active"
	StatusInactive ActivityStatus = "inactive"
)

// ReportKind 报表维度
type ReportKind string

const (
	ReportByUser    ReportKind = "user"
	ReportByClient  ReportKind = "client"
	ReportByProject ReportKind = "project"
)

// Valid 是否为已知报表类型
func (k ReportKind) Valid() bool {
	switch k {
	case ReportByUser, ReportByClient, ReportByProject:
		return true
	}
	return false
}

// ReportRow 报表行
type ReportRow struct {
	UserID        int64   `json:"userId,omitempty"`
	Username      string  `json:"username,omitempty"`
	ClientID      int64   `json:"clientId,omitempty"`
	ClientName    string  `json:"clientName,omitempty"`
	ProjectID     int64   `json:"projectId,omitempty"`
	ProjectName   string  `json:"projectName,omitempty"`
	TotalHours    float64 `json:"totalHours"`
	BillableHours float64 `json:"billableHours"`
	EntryCount    int     `json:"entryCount"`
}
