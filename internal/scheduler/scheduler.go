// Package scheduler 后端定时任务：截图清理与下班自动停止计时。
package scheduler

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"worktracker/internal/config"
	"worktracker/internal/storage"
	"worktracker/pkg/logger"
	"worktracker/pkg/utils"

	"github.com/robfig/cron/v3"
)

// CleanupSpec 截图清理时间（每天凌晨 3 点）
const CleanupSpec = "0 3 * * *"

// workDaysToCron 将工作日数组转换为cron表达式的星期部分
// workDays: [0,1,2,3,4,5,6] 其中0=周日，1=周一，...，6=周六
// 返回: "1,2,3,4,5" 或 "*" (如果全选)
func workDaysToCron(workDays []int) string {
	seen := make(map[int]bool)
	days := make([]int, 0, len(workDays))
	for _, d := range workDays {
		if d < 0 || d > 6 || seen[d] {
			continue
		}
		seen[d] = true
		days = append(days, d)
	}
	if len(days) == 0 || len(days) == 7 {
		return "*"
	}
	sort.Ints(days)

	dayStrs := make([]string, len(days))
	for i, day := range days {
		dayStrs[i] = fmt.Sprintf("%d", day)
	}
	return strings.Join(dayStrs, ",")
}

// DailySpec 工作日某个时刻的 cron 表达式，例如 "18:00" -> "0 18 * * 1,2,3,4,5"
func DailySpec(clock string, workDays []int) (string, error) {
	at, err := time.Parse(utils.ClockLayout, clock)
	if err != nil {
		return "", fmt.Errorf("invalid time %q: %w", clock, err)
	}
	return fmt.Sprintf("%d %d * * %s", at.Minute(), at.Hour(), workDaysToCron(workDays)), nil
}

// Stopper 结束所有运行中的计时
type Stopper interface {
	StopAll() error
}

// Scheduler 任务调度器
type Scheduler struct {
	cron       *cron.Cron
	configMgr  *config.Manager
	storageMgr *storage.Manager
	stopper    Stopper
	now        func() time.Time
	mu         sync.Mutex
	running    bool
}

// NewScheduler 创建任务调度器；stopper 为 nil 时不注册自动停止
func NewScheduler(configMgr *config.Manager, storageMgr *storage.Manager, stopper Stopper) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		configMgr:  configMgr,
		storageMgr: storageMgr,
		stopper:    stopper,
		now:        time.Now,
	}
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if _, err := s.cron.AddFunc(CleanupSpec, s.RunCleanup); err != nil {
		return fmt.Errorf("failed to add cleanup job: %w", err)
	}

	if err := s.addAutoStopJob(); err != nil {
		logger.Warn("auto-stop job not added: %v", err)
	}

	s.cron.Start()
	s.running = true
	logger.Info("scheduler started with %d jobs", len(s.cron.Entries()))
	return nil
}

// Stop 停止调度器并等待正在执行的任务
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	logger.Info("scheduler stopped")
}

// IsRunning 检查是否运行中
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Jobs 已注册任务数
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// RunCleanup 删除超过保留天数的截图
func (s *Scheduler) RunCleanup() {
	storageCfg := s.configMgr.GetStorage()
	if storageCfg.RetentionDays <= 0 {
		logger.Debug("screenshot retention disabled")
		return
	}
	deleted, err := s.storageMgr.DeleteOldScreenshots(storageCfg.RetentionDays, s.now())
	if err != nil {
		logger.Error("screenshot cleanup failed: %v", err)
		return
	}
	logger.Info("cleanup removed %d screenshots older than %d days", deleted, storageCfg.RetentionDays)
}

// addAutoStopJob 工作结束时间自动停止计时
func (s *Scheduler) addAutoStopJob() error {
	schedule := s.configMgr.GetSchedule()
	if !schedule.AutoStop || s.stopper == nil {
		return nil
	}

	spec, err := DailySpec(schedule.EndTime, schedule.WorkDays)
	if err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(spec, s.RunAutoStop); err != nil {
		return fmt.Errorf("failed to add auto-stop job: %w", err)
	}
	logger.Info("auto-stop scheduled at %s (%s)", schedule.EndTime, spec)
	return nil
}

// RunAutoStop 到达下班时间，结束所有计时
func (s *Scheduler) RunAutoStop() {
	logger.Info("end of work day reached, stopping running timers")
	if err := s.stopper.StopAll(); err != nil {
		logger.Error("auto-stop failed: %v", err)
	}
}
