package storage

import (
	"fmt"
	"time"

	"worktracker/pkg/models"
)

// Report 按用户/客户/项目汇总范围内的已结束与计时中记录
func (m *Manager) Report(kind models.ReportKind, q Query, now time.Time) ([]models.ReportRow, error) {
	from, to := q.bounds()
	args := []interface{}{toMillis(now), from, to}
	filter := `te.start_time >= ? AND te.start_time < ?`
	if q.UserID != nil {
		filter += ` AND te.user_id = ?`
		args = append(args, *q.UserID)
	}

	var groupCols, joins, groupBy, orderBy string
	switch kind {
	case models.ReportByUser:
		groupCols = `u.id, u.username, 0, '', 0, ''`
		joins = `JOIN users u ON u.id = e.user_id`
		groupBy = `u.id`
		orderBy = `u.username`
	case models.ReportByClient:
		groupCols = `0, '', c.id, c.name, 0, ''`
		joins = `JOIN clients c ON c.id = e.client_id`
		groupBy = `c.id`
		orderBy = `c.name`
	case models.ReportByProject:
		groupCols = `0, '', c.id, c.name, p.id, p.name`
		joins = `JOIN projects p ON p.id = e.project_id JOIN clients c ON c.id = e.client_id`
		groupBy = `p.id`
		orderBy = `c.name, p.name`
	default:
		return nil, fmt.Errorf("unknown report type %q", kind)
	}

	query := `
		WITH e AS (
			SELECT te.user_id, te.client_id, te.project_id, te.is_billable, ` + liveDuration + ` AS worked
			FROM time_entries te
			WHERE ` + filter + `
		)
		SELECT ` + groupCols + `,
			SUM(e.worked) / 3600.0,
			SUM(CASE WHEN e.is_billable THEN e.worked ELSE 0 END) / 3600.0,
			COUNT(*)
		FROM e ` + joins + `
		GROUP BY ` + groupBy + `
		ORDER BY ` + orderBy

	rows, err := m.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s report: %w", kind, err)
	}
	defer rows.Close()

	report := []models.ReportRow{}
	for rows.Next() {
		var r models.ReportRow
		if err := rows.Scan(
			&r.UserID, &r.Username,
			&r.ClientID, &r.ClientName,
			&r.ProjectID, &r.ProjectName,
			&r.TotalHours, &r.BillableHours, &r.EntryCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		report = append(report, r)
	}
	return report, rows.Err()
}
