package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"worktracker/pkg/logger"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("not found")
	// ErrNoActiveEntry 用户没有未结束的工时记录
	ErrNoActiveEntry = errors.New("no active timer")
	// ErrAlreadyRunning 用户已有未结束的工时记录
	ErrAlreadyRunning = errors.New("timer already running")
	// ErrAlreadyPaused 工时记录已暂停
	ErrAlreadyPaused = errors.New("timer already paused")
	// ErrNotPaused 工时记录未暂停
	ErrNotPaused = errors.New("timer is not paused")
)

const (
	defaultClient  = "Internal"
	defaultProject = "General"
)

// Manager 存储管理器
type Manager struct {
	db     *sql.DB
	dbPath string
}

// NewManager 创建存储管理器
func NewManager(dataDir string) (*Manager, error) {
	// 确保数据目录存在
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "worktracker.db")

	// modernc.org/sqlite 的驱动名称是 "sqlite"
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// 计时循环与截屏协程共用一个连接，避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)

	m := &Manager{
		db:     db,
		dbPath: dbPath,
	}

	if err := m.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	if err := m.seedDefaults(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed defaults: %w", err)
	}

	return m, nil
}

// initSchema 初始化数据库表结构；时间列均为毫秒时间戳
func (m *Manager) initSchema() error {
	schema := `
	PRAGMA foreign_keys = ON;

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS clients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS projects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id INTEGER NOT NULL REFERENCES clients(id),
		name TEXT NOT NULL,
		UNIQUE(client_id, name)
	);

	CREATE TABLE IF NOT EXISTS time_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		client_id INTEGER NOT NULL REFERENCES clients(id),
		project_id INTEGER NOT NULL REFERENCES projects(id),
		start_time INTEGER NOT NULL,
		end_time INTEGER,
		paused_at INTEGER,
		paused_seconds INTEGER NOT NULL DEFAULT 0,
		duration INTEGER NOT NULL DEFAULT 0,
		is_billable BOOLEAN NOT NULL DEFAULT 1,
		is_edited BOOLEAN NOT NULL DEFAULT 0,
		is_manual BOOLEAN NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_entries_user ON time_entries(user_id, end_time);
	CREATE INDEX IF NOT EXISTS idx_entries_start ON time_entries(start_time);

	CREATE TABLE IF NOT EXISTS time_entry_pauses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		time_entry_id INTEGER NOT NULL,
		paused_at INTEGER NOT NULL,
		resumed_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pauses_entry ON time_entry_pauses(time_entry_id, paused_at);

	CREATE TABLE IF NOT EXISTS screenshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		time_entry_id INTEGER NOT NULL,
		timestamp INTEGER NOT NULL,
		file_path TEXT NOT NULL,
		file_size INTEGER NOT NULL DEFAULT 0,
		resolution TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_screenshots_entry ON screenshots(time_entry_id, timestamp);

	CREATE TABLE IF NOT EXISTS activity_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		idle_since INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_activity_user ON activity_log(user_id, timestamp);
	`

	if _, err := m.db.Exec(schema); err != nil {
		return err
	}
	// 旧库补列
	return m.ensureColumn("activity_log", "idle_since", "INTEGER")
}

// ensureColumn 表中缺少该列时添加
func (m *Manager) ensureColumn(table, column, decl string) error {
	rows, err := m.db.Query(`PRAGMA table_info(` + table + `)`)
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, typ        string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("failed to scan %s columns: %w", table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()
	if _, err := m.db.Exec(`ALTER TABLE ` + table + ` ADD COLUMN ` + column + ` ` + decl); err != nil {
		return fmt.Errorf("failed to add %s.%s: %w", table, column, err)
	}
	return nil
}

// seedDefaults 空库时创建默认客户与项目
func (m *Manager) seedDefaults() error {
	var count int
	if err := m.db.QueryRow(`SELECT COUNT(*) FROM clients`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	client, err := m.CreateClient(defaultClient)
	if err != nil {
		return err
	}
	if _, err := m.CreateProject(client.ID, defaultProject); err != nil {
		return err
	}
	logger.Info("seeded default client %q with project %q", defaultClient, defaultProject)
	return nil
}

// Path 数据库文件路径
func (m *Manager) Path() string {
	return m.dbPath
}

// Close 关闭数据库
func (m *Manager) Close() error {
	return m.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func nullMillis(ns sql.NullInt64) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := fromMillis(ns.Int64)
	return &t
}
