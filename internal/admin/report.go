package admin

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"worktracker/internal/bus"
	"worktracker/pkg/models"
	"worktracker/pkg/utils"
)

// CSVHeader 导出文件表头
var CSVHeader = []string{"Date", "User", "Client", "Project", "Start Time", "End Time", "Duration", "Billable", "Notes"}

// Report 报表
type Report struct {
	Kind    models.ReportKind  `json:"kind"`
	Columns []string           `json:"columns"`
	Rows    [][]string         `json:"rows"`
	Raw     []models.ReportRow `json:"raw"`
}

// Report 生成某一维度的报表
func (d *Dashboard) Report(ctx context.Context, kind models.ReportKind, f Filter) (Report, error) {
	if !kind.Valid() {
		return Report{}, fmt.Errorf("%w: unknown report type %q", ErrInvalidFilter, kind)
	}
	if err := f.Validate(); err != nil {
		return Report{}, err
	}

	q := models.ReportQuery{
		Type:     kind,
		UserID:   f.UserID,
		FromDate: f.From.Format(utils.DateLayout),
		ToDate:   f.To.Format(utils.DateLayout),
	}
	var rows []models.ReportRow
	if err := d.invoker.Invoke(ctx, bus.ChannelGenerateReport, q, &rows); err != nil {
		return Report{}, fmt.Errorf("failed to generate %s report: %w", kind, err)
	}
	return BuildReport(kind, rows), nil
}

// BuildReport 把聚合结果排成表格
func BuildReport(kind models.ReportKind, rows []models.ReportRow) Report {
	r := Report{Kind: kind, Raw: rows}
	switch kind {
	case models.ReportByUser:
		r.Columns = []string{"User"}
	case models.ReportByClient:
		r.Columns = []string{"Client"}
	case models.ReportByProject:
		r.Columns = []string{"Client", "Project"}
	}
	r.Columns = append(r.Columns, "Total Hours", "Billable Hours", "Entries")

	for _, row := range rows {
		var cells []string
		switch kind {
		case models.ReportByUser:
			cells = []string{row.Username}
		case models.ReportByClient:
			cells = []string{row.ClientName}
		case models.ReportByProject:
			cells = []string{row.ClientName, row.ProjectName}
		}
		cells = append(cells,
			utils.FormatHours(row.TotalHours),
			utils.FormatHours(row.BillableHours),
			strconv.Itoa(row.EntryCount),
		)
		r.Rows = append(r.Rows, cells)
	}
	return r
}

// ExportFilename 导出文件名
func ExportFilename(now time.Time) string {
	return "time-entries-" + now.Format(utils.DateLayout) + ".csv"
}

// ExportCSV 导出当前列表
func (d *Dashboard) ExportCSV(w io.Writer) error {
	return WriteCSV(w, d.Rows())
}

// WriteCSV 备注列总是加引号，其余字段仅在需要时加引号
func WriteCSV(w io.Writer, rows []Row) error {
	var b strings.Builder
	b.WriteString(strings.Join(CSVHeader, ","))
	b.WriteByte('\n')

	for _, r := range rows {
		billable := "No"
		if r.Billable {
			billable = "Yes"
		}
		fields := []string{
			csvEscape(r.Date),
			csvEscape(r.User),
			csvEscape(r.Client),
			csvEscape(r.Project),
			csvEscape(r.Start),
			csvEscape(r.End),
			csvEscape(r.Duration),
			billable,
			csvQuote(r.Notes),
		}
		b.WriteString(strings.Join(fields, ","))
		b.WriteByte('\n')
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

func csvEscape(s string) string {
	if strings.ContainsAny(s, ",\"\r\n") {
		return csvQuote(s)
	}
	return s
}

func csvQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
