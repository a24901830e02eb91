package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"worktracker/pkg/models"
)

// SaveScreenshot 保存截图记录
func (m *Manager) SaveScreenshot(ss *models.Screenshot) error {
	result, err := m.db.Exec(`
		INSERT INTO screenshots (time_entry_id, timestamp, file_path, file_size, resolution)
		VALUES (?, ?, ?, ?, ?)`,
		ss.TimeEntryID,
		toMillis(ss.Timestamp),
		ss.FilePath,
		ss.FileSize,
		ss.Resolution,
	)
	if err != nil {
		return fmt.Errorf("failed to insert screenshot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert id: %w", err)
	}

	ss.ID = id
	return nil
}

// Screenshots 某条工时记录的截图，按时间升序
func (m *Manager) Screenshots(entryID int64) ([]models.Screenshot, error) {
	rows, err := m.db.Query(`
		SELECT id, time_entry_id, timestamp, file_path, file_size, resolution
		FROM screenshots
		WHERE time_entry_id = ?
		ORDER BY timestamp ASC`, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query screenshots: %w", err)
	}
	defer rows.Close()

	screenshots := []models.Screenshot{}
	for rows.Next() {
		ss, err := scanScreenshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan screenshot: %w", err)
		}
		screenshots = append(screenshots, ss)
	}
	return screenshots, rows.Err()
}

// Screenshot 按 id 获取截图记录
func (m *Manager) Screenshot(id int64) (models.Screenshot, error) {
	row := m.db.QueryRow(`
		SELECT id, time_entry_id, timestamp, file_path, file_size, resolution
		FROM screenshots WHERE id = ?`, id)
	ss, err := scanScreenshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Screenshot{}, fmt.Errorf("screenshot %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Screenshot{}, fmt.Errorf("failed to query screenshot: %w", err)
	}
	return ss, nil
}

func scanScreenshot(s scanner) (models.Screenshot, error) {
	var (
		ss models.Screenshot
		ts int64
	)
	if err := s.Scan(&ss.ID, &ss.TimeEntryID, &ts, &ss.FilePath, &ss.FileSize, &ss.Resolution); err != nil {
		return models.Screenshot{}, err
	}
	ss.Timestamp = fromMillis(ts)
	return ss, nil
}

// DeleteOldScreenshots 删除保留期之前的截图文件与记录
func (m *Manager) DeleteOldScreenshots(retentionDays int, now time.Time) (int64, error) {
	cutoff := now.AddDate(0, 0, -retentionDays)
	return m.deleteScreenshots(`timestamp < ?`, toMillis(cutoff))
}

// StorageStats 截图存储统计
type StorageStats struct {
	TotalScreenshots int64  `json:"total_screenshots"`
	TotalSize        int64  `json:"total_size"`
	TimeEntries      int64  `json:"time_entries"`
	Users            int64  `json:"users"`
	DBPath           string `json:"db_path"`
}

// Stats 获取存储统计信息
func (m *Manager) Stats() (StorageStats, error) {
	stats := StorageStats{DBPath: m.dbPath}
	err := m.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM screenshots),
			(SELECT COALESCE(SUM(file_size), 0) FROM screenshots),
			(SELECT COUNT(*) FROM time_entries),
			(SELECT COUNT(*) FROM users)`,
	).Scan(&stats.TotalScreenshots, &stats.TotalSize, &stats.TimeEntries, &stats.Users)
	if err != nil {
		return StorageStats{}, fmt.Errorf("failed to query stats: %w", err)
	}
	return stats, nil
}
