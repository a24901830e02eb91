package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"worktracker/pkg/logger"
	"worktracker/pkg/models"
)

// Entry 带暂停记账的工时记录
type Entry struct {
	models.TimeEntry
	PausedAt      *time.Time
	PausedSeconds int64
	// ResumedAt 最近一次继续计时的时间，从未暂停过时为空
	ResumedAt *time.Time
}

// Paused 是否处于暂停中
func (e Entry) Paused() bool {
	return e.EndTime == nil && e.PausedAt != nil
}

// Worked 截至 at 的有效工时（秒）
func (e Entry) Worked(at time.Time) int64 {
	if e.EndTime != nil {
		return e.Duration
	}
	end := at
	if e.PausedAt != nil && e.PausedAt.Before(end) {
		end = *e.PausedAt
	}
	secs := int64(end.Sub(e.StartTime)/time.Second) - e.PausedSeconds
	if secs < 0 {
		return 0
	}
	return secs
}

// RunningSince 当前连续计时段的开始时间
func (e Entry) RunningSince() time.Time {
	if e.ResumedAt != nil && e.ResumedAt.After(e.StartTime) {
		return *e.ResumedAt
	}
	return e.StartTime
}

// EffectiveStart 扣除暂停时长后的开始时间，使 now − start 等于已计工时
func (e Entry) EffectiveStart() time.Time {
	return e.StartTime.Add(time.Duration(e.PausedSeconds) * time.Second)
}

// Query 工时查询条件；To 所在的整天包含在内
type Query struct {
	UserID *int64
	From   time.Time
	To     time.Time
}

func (q Query) bounds() (int64, int64) {
	return toMillis(q.From), toMillis(q.To.AddDate(0, 0, 1))
}

const entryColumns = `te.id, te.user_id, te.client_id, te.project_id, te.start_time, te.end_time,
	te.paused_at, te.paused_seconds, te.duration, te.is_billable, te.is_edited, te.is_manual, te.notes,
	(SELECT COUNT(*) FROM screenshots s WHERE s.time_entry_id = te.id), ` + lastResume

// lastResume 最近一次继续计时的时间
const lastResume = `(SELECT MAX(p.resumed_at) FROM time_entry_pauses p WHERE p.time_entry_id = te.id)`

// liveDuration 计时中的记录按 now 计算工时
const liveDuration = `CASE WHEN te.end_time IS NULL
	THEN MAX(0, (COALESCE(te.paused_at, ?) - te.start_time) / 1000 - te.paused_seconds)
	ELSE te.duration END`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e             Entry
		start         int64
		end, pausedAt sql.NullInt64
		resumedAt     sql.NullInt64
	)
	err := s.Scan(
		&e.ID,
		&e.UserID,
		&e.ClientID,
		&e.ProjectID,
		&start,
		&end,
		&pausedAt,
		&e.PausedSeconds,
		&e.Duration,
		&e.IsBillable,
		&e.IsEdited,
		&e.IsManual,
		&e.Notes,
		&e.ScreenshotCount,
		&resumedAt,
	)
	if err != nil {
		return Entry{}, err
	}
	e.StartTime = fromMillis(start)
	e.EndTime = nullMillis(end)
	e.PausedAt = nullMillis(pausedAt)
	e.ResumedAt = nullMillis(resumedAt)
	return e, nil
}

// EntryByID 按 id 获取
func (m *Manager) EntryByID(id int64) (Entry, error) {
	row := m.db.QueryRow(`SELECT `+entryColumns+` FROM time_entries te WHERE te.id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("time entry %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to query time entry: %w", err)
	}
	return e, nil
}

// ActiveEntry 用户未结束的工时记录（计时中或暂停中）
func (m *Manager) ActiveEntry(userID int64) (Entry, error) {
	row := m.db.QueryRow(`SELECT `+entryColumns+` FROM time_entries te
		WHERE te.user_id = ? AND te.end_time IS NULL
		ORDER BY te.start_time DESC LIMIT 1`, userID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNoActiveEntry
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to query active entry: %w", err)
	}
	return e, nil
}

// OpenEntries 所有未结束的工时记录
func (m *Manager) OpenEntries() ([]Entry, error) {
	rows, err := m.db.Query(`SELECT ` + entryColumns + ` FROM time_entries te WHERE te.end_time IS NULL ORDER BY te.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan time entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// StartEntry 开始新的工时记录
func (m *Manager) StartEntry(userID, clientID, projectID int64, billable bool, at time.Time) (Entry, error) {
	if _, err := m.ActiveEntry(userID); err == nil {
		return Entry{}, ErrAlreadyRunning
	} else if !errors.Is(err, ErrNoActiveEntry) {
		return Entry{}, err
	}

	result, err := m.db.Exec(`
		INSERT INTO time_entries (user_id, client_id, project_id, start_time, is_billable)
		VALUES (?, ?, ?, ?, ?)`,
		userID, clientID, projectID, toMillis(at), billable,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to insert time entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Entry{}, fmt.Errorf("failed to get insert id: %w", err)
	}
	return m.EntryByID(id)
}

// PauseEntry 暂停用户的计时
func (m *Manager) PauseEntry(userID int64, at time.Time) (Entry, error) {
	e, err := m.ActiveEntry(userID)
	if err != nil {
		return Entry{}, err
	}
	if e.Paused() {
		return Entry{}, ErrAlreadyPaused
	}
	if _, err := m.db.Exec(`UPDATE time_entries SET paused_at = ?, duration = ? WHERE id = ?`,
		toMillis(at), e.Worked(at), e.ID); err != nil {
		return Entry{}, fmt.Errorf("failed to pause time entry: %w", err)
	}
	return m.EntryByID(e.ID)
}

// ResumeEntry 继续暂停中的计时，暂停时长计入 paused_seconds
func (m *Manager) ResumeEntry(userID int64, at time.Time) (Entry, error) {
	e, err := m.ActiveEntry(userID)
	if err != nil {
		return Entry{}, err
	}
	if !e.Paused() {
		return Entry{}, ErrNotPaused
	}
	if _, err := m.db.Exec(`UPDATE time_entries SET paused_at = NULL, paused_seconds = ? WHERE id = ?`,
		e.PausedSeconds+pausedFor(e, at), e.ID); err != nil {
		return Entry{}, fmt.Errorf("failed to resume time entry: %w", err)
	}
	if err := m.recordPause(e, at); err != nil {
		return Entry{}, err
	}
	return m.EntryByID(e.ID)
}

// StopEntry 结束用户的工时记录
func (m *Manager) StopEntry(userID int64, at time.Time) (Entry, error) {
	e, err := m.ActiveEntry(userID)
	if err != nil {
		return Entry{}, err
	}
	return m.stop(e, at)
}

// StopAll 结束所有未结束的记录（下班自动停止）
func (m *Manager) StopAll(at time.Time) ([]Entry, error) {
	open, err := m.OpenEntries()
	if err != nil {
		return nil, err
	}
	stopped := make([]Entry, 0, len(open))
	for _, e := range open {
		s, err := m.stop(e, at)
		if err != nil {
			return stopped, err
		}
		stopped = append(stopped, s)
	}
	return stopped, nil
}

func (m *Manager) stop(e Entry, at time.Time) (Entry, error) {
	worked := e.Worked(at)
	paused := e.PausedSeconds + pausedFor(e, at)
	if _, err := m.db.Exec(`
		UPDATE time_entries SET end_time = ?, paused_at = NULL, paused_seconds = ?, duration = ?
		WHERE id = ?`,
		toMillis(at), paused, worked, e.ID,
	); err != nil {
		return Entry{}, fmt.Errorf("failed to stop time entry: %w", err)
	}
	if err := m.recordPause(e, at); err != nil {
		return Entry{}, err
	}
	return m.EntryByID(e.ID)
}

// recordPause 暂停中的记录在 at 结束暂停时保存该暂停区间
func (m *Manager) recordPause(e Entry, at time.Time) error {
	if e.PausedAt == nil || !at.After(*e.PausedAt) {
		return nil
	}
	if _, err := m.db.Exec(`INSERT INTO time_entry_pauses (time_entry_id, paused_at, resumed_at) VALUES (?, ?, ?)`,
		e.ID, toMillis(*e.PausedAt), toMillis(at)); err != nil {
		return fmt.Errorf("failed to record pause: %w", err)
	}
	return nil
}

// pausedBefore 在 at 之前已暂停的秒数
func (m *Manager) pausedBefore(entryID int64, at time.Time) (int64, error) {
	var ms int64
	err := m.db.QueryRow(`
		SELECT COALESCE(SUM(MIN(resumed_at, ?) - paused_at), 0) FROM time_entry_pauses
		WHERE time_entry_id = ? AND paused_at < ?`,
		toMillis(at), entryID, toMillis(at),
	).Scan(&ms)
	if err != nil {
		return 0, fmt.Errorf("failed to sum pauses: %w", err)
	}
	return ms / 1000, nil
}

func pausedFor(e Entry, at time.Time) int64 {
	if e.PausedAt == nil || !at.After(*e.PausedAt) {
		return 0
	}
	return int64(at.Sub(*e.PausedAt) / time.Second)
}

// SetNotes 更新当前记录的备注
func (m *Manager) SetNotes(userID int64, notes string) (Entry, error) {
	e, err := m.ActiveEntry(userID)
	if err != nil {
		return Entry{}, err
	}
	if _, err := m.db.Exec(`UPDATE time_entries SET notes = ? WHERE id = ?`, notes, e.ID); err != nil {
		return Entry{}, fmt.Errorf("failed to update notes: %w", err)
	}
	e.Notes = notes
	return e, nil
}

// DiscardIdle 把计时中的记录回退到 idleStart 并暂停，删除此后的截图。
// idleStart 之后的暂停区间并入本次暂停，只扣除此前的暂停时长。
func (m *Manager) DiscardIdle(userID int64, idleStart, now time.Time) (Entry, error) {
	e, err := m.ActiveEntry(userID)
	if err != nil {
		return Entry{}, err
	}
	if e.Paused() {
		return Entry{}, ErrAlreadyPaused
	}
	if idleStart.Before(e.StartTime) {
		idleStart = e.StartTime
	}
	if idleStart.After(now) {
		idleStart = now
	}

	paused, err := m.pausedBefore(e.ID, idleStart)
	if err != nil {
		return Entry{}, err
	}
	worked := int64(idleStart.Sub(e.StartTime)/time.Second) - paused
	if worked < 0 {
		worked = 0
	}

	cut := toMillis(idleStart)
	if _, err := m.db.Exec(`DELETE FROM time_entry_pauses WHERE time_entry_id = ? AND paused_at >= ?`, e.ID, cut); err != nil {
		return Entry{}, fmt.Errorf("failed to trim pauses: %w", err)
	}
	if _, err := m.db.Exec(`UPDATE time_entry_pauses SET resumed_at = ? WHERE time_entry_id = ? AND resumed_at > ?`,
		cut, e.ID, cut); err != nil {
		return Entry{}, fmt.Errorf("failed to trim pauses: %w", err)
	}
	if _, err := m.db.Exec(`
		UPDATE time_entries SET paused_at = ?, paused_seconds = ?, duration = ?, is_edited = 1
		WHERE id = ?`,
		cut, paused, worked, e.ID,
	); err != nil {
		return Entry{}, fmt.Errorf("failed to discard idle time: %w", err)
	}

	removed, err := m.deleteScreenshots(`time_entry_id = ? AND timestamp > ?`, e.ID, cut)
	if err != nil {
		return Entry{}, err
	}
	logger.Info("discarded idle time of entry %d since %s, removed %d screenshots",
		e.ID, idleStart.Format(time.RFC3339), removed)
	return m.EntryByID(e.ID)
}

// TimeEntries 按开始时间范围查询；计时中的记录按 now 计算工时
func (m *Manager) TimeEntries(q Query, now time.Time) ([]models.TimeEntry, error) {
	from, to := q.bounds()
	var (
		where strings.Builder
		args  = []interface{}{toMillis(now), from, to}
	)
	where.WriteString(`te.start_time >= ? AND te.start_time < ?`)
	if q.UserID != nil {
		where.WriteString(` AND te.user_id = ?`)
		args = append(args, *q.UserID)
	}

	query := `SELECT te.id, te.user_id, te.client_id, te.project_id, te.start_time, te.end_time,
			te.paused_at, te.paused_seconds, ` + liveDuration + `, te.is_billable, te.is_edited, te.is_manual, te.notes,
			(SELECT COUNT(*) FROM screenshots s WHERE s.time_entry_id = te.id), ` + lastResume + `
		FROM time_entries te
		WHERE ` + where.String() + `
		ORDER BY te.start_time DESC`

	rows, err := m.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query time entries: %w", err)
	}
	defer rows.Close()

	entries := []models.TimeEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan time entry: %w", err)
		}
		entries = append(entries, e.TimeEntry)
	}
	return entries, rows.Err()
}

// DeleteTimeEntry 删除记录及其截图文件
func (m *Manager) DeleteTimeEntry(id int64) (bool, error) {
	if _, err := m.deleteScreenshots(`time_entry_id = ?`, id); err != nil {
		return false, err
	}
	if _, err := m.db.Exec(`DELETE FROM time_entry_pauses WHERE time_entry_id = ?`, id); err != nil {
		return false, fmt.Errorf("failed to delete pauses: %w", err)
	}
	result, err := m.db.Exec(`DELETE FROM time_entries WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete time entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// deleteScreenshots 删除匹配条件的截图文件与记录
func (m *Manager) deleteScreenshots(cond string, args ...interface{}) (int64, error) {
	rows, err := m.db.Query(`SELECT file_path FROM screenshots WHERE `+cond, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to query screenshots: %w", err)
	}
	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan file path: %w", err)
		}
		paths = append(paths, path)
	}
	rows.Close()

	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove screenshot file %s: %v", path, err)
		}
	}

	result, err := m.db.Exec(`DELETE FROM screenshots WHERE `+cond, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete screenshots: %w", err)
	}
	return result.RowsAffected()
}
