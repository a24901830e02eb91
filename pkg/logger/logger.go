// Package logger 按日期滚动的分级文件日志。
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level 日志级别
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var prefixes = map[Level]string{
	LevelDebug: "[DEBUG] ",
	LevelInfo:  "[INFO] ",
	LevelWarn:  "[WARN] ",
	LevelError: "[ERROR] ",
}

const flags = log.Ldate | log.Ltime | log.Lshortfile

var (
	mu        sync.RWMutex
	loggers   map[Level]*log.Logger
	logFile   *os.File
	debugMode bool
)

// FileName 某天的日志文件名
func FileName(day time.Time) string {
	return fmt.Sprintf("worktracker_%s.log", day.Format("2006-01-02"))
}

// Init 初始化日志系统
// debug: 是否为调试模式(同时输出到控制台和文件)
func Init(logsDir string, debug bool) error {
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	logPath := filepath.Join(logsDir, FileName(time.Now()))
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	var w io.Writer = f
	if debug {
		w = io.MultiWriter(os.Stdout, f)
		fmt.Printf("🐛 debug mode, logging to console and %s\n", logPath)
	}

	mu.Lock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	debugMode = debug
	loggers = make(map[Level]*log.Logger, len(prefixes))
	for level, prefix := range prefixes {
		loggers[level] = log.New(w, prefix, flags)
	}
	mu.Unlock()

	Info("logger ready, file: %s, debug: %v", logPath, debug)
	return nil
}

// Close 关闭日志文件，之后的日志回落到控制台
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	loggers = nil
}

// Enabled 日志系统是否已初始化
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return loggers != nil
}

// SetDebug 切换调试输出
func SetDebug(debug bool) {
	mu.Lock()
	debugMode = debug
	mu.Unlock()
}

func output(level Level, format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	if level == LevelDebug && !debugMode {
		return
	}
	msg := fmt.Sprintf(format, v...)
	if l := loggers[level]; l != nil {
		// 跳过 output 与导出函数两层
		l.Output(3, msg)
		return
	}
	// 未初始化时输出到控制台
	fmt.Println(prefixes[level] + msg)
}

// Info 信息日志
func Info(format string, v ...interface{}) { output(LevelInfo, format, v...) }

// Warn 警告日志
func Warn(format string, v ...interface{}) { output(LevelWarn, format, v...) }

// Error 错误日志
func Error(format string, v ...interface{}) { output(LevelError, format, v...) }

// Debug 调试日志（仅调试模式输出）
func Debug(format string, v ...interface{}) { output(LevelDebug, format, v...) }
