package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"worktracker/pkg/models"
)

// ActivityRecord 活动日志
type ActivityRecord struct {
	UserID    int64                 `json:"user_id"`
	Status    models.ActivityStatus `json:"status"`
	Timestamp time.Time             `json:"timestamp"`
	IdleSince *time.Time            `json:"idle_since,omitempty"` // 离开前最后一次输入
}

// LogActivity 记录一次活动状态变化，idleSince 可为 nil
func (m *Manager) LogActivity(userID int64, status models.ActivityStatus, at time.Time, idleSince *time.Time) error {
	var since sql.NullInt64
	if idleSince != nil {
		since = sql.NullInt64{Int64: toMillis(*idleSince), Valid: true}
	}
	_, err := m.db.Exec(`INSERT INTO activity_log (user_id, status, timestamp, idle_since) VALUES (?, ?, ?, ?)`,
		userID, string(status), toMillis(at), since)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

// LastActivity 用户最近一条活动日志
func (m *Manager) LastActivity(userID int64) (ActivityRecord, error) {
	var (
		rec    ActivityRecord
		status string
		ts     int64
		since  sql.NullInt64
	)
	err := m.db.QueryRow(`
		SELECT user_id, status, timestamp, idle_since FROM activity_log
		WHERE user_id = ? ORDER BY timestamp DESC, id DESC LIMIT 1`, userID,
	).Scan(&rec.UserID, &status, &ts, &since)
	if errors.Is(err, sql.ErrNoRows) {
		return ActivityRecord{}, ErrNotFound
	}
	if err != nil {
		return ActivityRecord{}, fmt.Errorf("failed to query activity: %w", err)
	}
	rec.Status = models.ActivityStatus(status)
	rec.Timestamp = fromMillis(ts)
	rec.IdleSince = nullMillis(since)
	return rec, nil
}
