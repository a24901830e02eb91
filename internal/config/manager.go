package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"worktracker/pkg/logger"
	"worktracker/pkg/models"
)

// EnvPrefix 环境变量前缀，例如 WORKTRACKER_SERVER_PORT
const EnvPrefix = "WORKTRACKER"

// Manager 配置管理器
type Manager struct {
	v          *viper.Viper
	config     *models.AppConfig
	configPath string
	mu         sync.RWMutex
}

// NewManager 创建配置管理器；文件不存在时写入默认配置
func NewManager(configPath string) (*Manager, error) {
	m := &Manager{
		v:          viper.New(),
		configPath: configPath,
	}
	m.v.SetConfigFile(configPath)
	m.v.SetConfigType("json")
	m.v.SetEnvPrefix(EnvPrefix)
	m.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	m.v.AutomaticEnv()
	setDefaults(m.v, models.DefaultConfig())

	err := m.v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound):
		if err := m.decode(); err != nil {
			return nil, err
		}
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
		return m, nil
	default:
		// 配置文件损坏时沿用默认值，不覆盖原文件
		logger.Warn("failed to read config %s, using defaults: %v", configPath, err)
	}

	if err := m.decode(); err != nil {
		return nil, err
	}
	return m, nil
}

// decode 合并默认值、文件与环境变量
func (m *Manager) decode() error {
	var cfg models.AppConfig
	if err := m.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	m.config = &cfg
	return nil
}

// setDefaults 为每个键登记默认值，环境变量覆盖才能生效
func setDefaults(v *viper.Viper, d *models.AppConfig) {
	v.SetDefault("timer.notes_debounce_ms", d.Timer.NotesDebounceMs)
	v.SetDefault("timer.idle_prompt_seconds", d.Timer.IdlePromptSeconds)

	v.SetDefault("activity.inactivity_seconds", d.Activity.InactivitySeconds)
	v.SetDefault("activity.check_interval_seconds", d.Activity.CheckIntervalSeconds)
	v.SetDefault("activity.screen_probe", d.Activity.ScreenProbe)

	v.SetDefault("capture.interval", d.Capture.Interval)
	v.SetDefault("capture.selected_screens", d.Capture.SelectedScreens)
	v.SetDefault("capture.quality", d.Capture.Quality)
	v.SetDefault("capture.enabled", d.Capture.Enabled)

	v.SetDefault("schedule.start_time", d.Schedule.StartTime)
	v.SetDefault("schedule.end_time", d.Schedule.EndTime)
	v.SetDefault("schedule.work_days", d.Schedule.WorkDays)
	v.SetDefault("schedule.auto_stop", d.Schedule.AutoStop)

	v.SetDefault("storage.data_dir", d.Storage.DataDir)
	v.SetDefault("storage.screenshots_dir", d.Storage.ScreenshotsDir)
	v.SetDefault("storage.logs_dir", d.Storage.LogsDir)
	v.SetDefault("storage.retention_days", d.Storage.RetentionDays)

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.enable_cors", d.Server.EnableCORS)
	v.SetDefault("server.auto_open_browser", d.Server.AutoOpenBrowser)

	v.SetDefault("admin.default_range_days", d.Admin.DefaultRangeDays)
	v.SetDefault("admin.thumbnail_width", d.Admin.ThumbnailWidth)
}

// save 保存配置 (内部方法,不加锁)
func (m *Manager) save() error {
	// 确保目录存在
	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	logger.Info("config saved to %s", m.configPath)
	return nil
}

// Save 保存配置 (公共方法,加锁)
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.save()
}

// Path 配置文件路径
func (m *Manager) Path() string {
	return m.configPath
}

// Get 获取配置（只读副本）
func (m *Manager) Get() *models.AppConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	configCopy := *m.config
	configCopy.Capture.SelectedScreens = append([]int(nil), m.config.Capture.SelectedScreens...)
	configCopy.Schedule.WorkDays = append([]int(nil), m.config.Schedule.WorkDays...)
	return &configCopy
}

// Update 更新配置并保存
func (m *Manager) Update(updater func(*models.AppConfig)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	updater(m.config)
	return m.save()
}

// GetTimer 获取计时器配置
func (m *Manager) GetTimer() models.TimerConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Timer
}

// GetActivity 获取活动检测配置
func (m *Manager) GetActivity() models.ActivityConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Activity
}

// GetCapture 获取截屏配置
func (m *Manager) GetCapture() models.CaptureConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Capture
}

// GetSchedule 获取工作时间配置
func (m *Manager) GetSchedule() models.WorkSchedule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Schedule
}

// GetStorage 获取存储配置
func (m *Manager) GetStorage() models.StorageConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Storage
}

// GetServer 获取服务器配置
func (m *Manager) GetServer() models.ServerConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Server
}

// GetAdmin 获取管理后台配置
func (m *Manager) GetAdmin() models.AdminConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Admin
}
