package main

import (
	"fmt"
	"os"
	"path/filepath"

	"worktracker/internal/config"
	"worktracker/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "worktracker",
	Short: "WorkTracker – desktop work timer with activity tracking",
	Long: `worktracker tracks working time per client and project, detects idle
periods, captures screenshots while a timer runs and serves a web dashboard
for reports and CSV export.`,
	// 不带子命令时运行托盘
	RunE:          runTray,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default <app data>/data/config.json)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log to the console as well as the log file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(versionCmd)
}

// appDataDir 应用数据目录
// Windows: %LOCALAPPDATA%\WorkTracker，其他平台使用当前工作目录
func appDataDir() (string, error) {
	if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
		return filepath.Join(localAppData, AppName), nil
	}
	return os.Getwd()
}

// bootstrap 加载配置、创建目录并初始化日志
func bootstrap(quiet bool) (*config.Manager, string, error) {
	dataDir, err := appDataDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve app data dir: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create app data dir %s: %w", dataDir, err)
	}

	path := configPath
	if path == "" {
		path = filepath.Join(dataDir, "data", "config.json")
	}
	configMgr, err := config.NewManager(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	say(quiet, "✅ 配置管理器初始化完成")

	storageCfg := configMgr.GetStorage()
	for _, dir := range []string{storageCfg.DataDir, storageCfg.ScreenshotsDir, storageCfg.LogsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, "", fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	if err := logger.Init(storageCfg.LogsDir, debug); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️ 日志系统初始化失败: %v, 使用控制台输出\n", err)
	} else {
		say(quiet, "✅ 日志系统初始化完成")
		logger.Info("==================== %s %s ====================", AppName, AppVersion)
		logger.Info("app data dir: %s", dataDir)
		logger.Info("data dir: %s", storageCfg.DataDir)
	}
	return configMgr, dataDir, nil
}

func say(quiet bool, msg string) {
	if !quiet {
		fmt.Println(msg)
	}
}
