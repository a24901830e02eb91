package models

import "time"

// AppConfig 应用程序配置
type AppConfig struct {
	// 计时器配置
	Timer TimerConfig `json:"timer" mapstructure:"timer"`

	// 活动检测配置
	Activity ActivityConfig `json:"activity" mapstructure:"activity"`

	// 截屏配置
	Capture CaptureConfig `json:"capture" mapstructure:"capture"`

	// 工作时间配置
	Schedule WorkSchedule `json:"schedule" mapstructure:"schedule"`

	// 存储配置
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// 服务器配置
	Server ServerConfig `json:"server" mapstructure:"server"`

	// 管理后台配置
	Admin AdminConfig `json:"admin" mapstructure:"admin"`
}

// TimerConfig 计时器配置
type TimerConfig struct {
	NotesDebounceMs   int `json:"notes_debounce_ms" mapstructure:"notes_debounce_ms"`     // 备注防抖窗口
	IdlePromptSeconds int `json:"idle_prompt_seconds" mapstructure:"idle_prompt_seconds"` // 空闲提示阈值
}

// NotesDebounce 备注防抖时长
func (c TimerConfig) NotesDebounce() time.Duration {
	return time.Duration(c.NotesDebounceMs) * time.Millisecond
}

// ActivityConfig 活动检测配置
type ActivityConfig struct {
	InactivitySeconds    int  `json:"inactivity_seconds" mapstructure:"inactivity_seconds"`         // 无输入多久视为离开
	CheckIntervalSeconds int  `json:"check_interval_seconds" mapstructure:"check_interval_seconds"` // 检查间隔
	ScreenProbe          bool `json:"screen_probe" mapstructure:"screen_probe"`                     // 锁屏视为离开
}

// Threshold 离开判定阈值
func (c ActivityConfig) Threshold() time.Duration {
	return time.Duration(c.InactivitySeconds) * time.Second
}

// CheckInterval 检查周期
func (c ActivityConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

// CaptureConfig 截屏配置
type CaptureConfig struct {
	Interval        int   `json:"interval" mapstructure:"interval"`                 // 截屏间隔（秒）
	SelectedScreens []int `json:"selected_screens" mapstructure:"selected_screens"` // 选中的屏幕索引
	Quality         int   `json:"quality" mapstructure:"quality"`                   // JPEG 质量 (1-100)
	Enabled         bool  `json:"enabled" mapstructure:"enabled"`                   // 是否启用截屏
}

// WorkSchedule 工作时间配置
type WorkSchedule struct {
	StartTime string `json:"start_time" mapstructure:"start_time"` // 开始时间 "09:00"
	EndTime   string `json:"end_time" mapstructure:"end_time"`     // 结束时间 "18:00"
	WorkDays  []int  `json:"work_days" mapstructure:"work_days"`   // 工作日 (0=周日, 1=周一, ...)
	AutoStop  bool   `json:"auto_stop" mapstructure:"auto_stop"`   // 下班时自动停止计时
}

// StorageConfig 存储配置
type StorageConfig struct {
	DataDir        string `json:"data_dir" mapstructure:"data_dir"`               // 数据目录
	ScreenshotsDir string `json:"screenshots_dir" mapstructure:"screenshots_dir"` // 截图存储目录
	LogsDir        string `json:"logs_dir" mapstructure:"logs_dir"`               // 日志存储目录
	RetentionDays  int    `json:"retention_days" mapstructure:"retention_days"`   // 截图保留天数
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port            int    `json:"port" mapstructure:"port"`                           // 端口号
	Host            string `json:"host" mapstructure:"host"`                           // 主机地址
	EnableCORS      bool   `json:"enable_cors" mapstructure:"enable_cors"`             // 是否启用 CORS
	AutoOpenBrowser bool   `json:"auto_open_browser" mapstructure:"auto_open_browser"` // 启动时自动打开浏览器
}

// AdminConfig 管理后台配置
type AdminConfig struct {
	DefaultRangeDays int `json:"default_range_days" mapstructure:"default_range_days"`
	ThumbnailWidth   int `json:"thumbnail_width" mapstructure:"thumbnail_width"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Timer: TimerConfig{
			NotesDebounceMs:   1000,
			IdlePromptSeconds: 300,
		},
		Activity: ActivityConfig{
			InactivitySeconds:    300,
			CheckIntervalSeconds: 60,
			ScreenProbe:          true,
		},
		Capture: CaptureConfig{
			Interval:        300,
			SelectedScreens: []int{0},
			Quality:         75,
			Enabled:         false,
		},
		Schedule: WorkSchedule{
			StartTime: "09:00",
			EndTime:   "18:00",
			WorkDays:  []int{1, 2, 3, 4, 5}, // 周一到周五
			AutoStop:  false,
		},
		Storage: StorageConfig{
			DataDir:        "./data",
			ScreenshotsDir: "./data/screenshots",
			LogsDir:        "./data/logs",
			RetentionDays:  30,
		},
		Server: ServerConfig{
			Port:            9527,
			Host:            "localhost",
			EnableCORS:      false,
			AutoOpenBrowser: false,
		},
		Admin: AdminConfig{
			DefaultRangeDays: 7,
			ThumbnailWidth:   240,
		},
	}
}
