package admin_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"worktracker/internal/admin"
	"worktracker/internal/bus"
	"worktracker/pkg/models"
)

var (
	day1 = time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	day2 = time.Date(2024, 3, 5, 14, 5, 0, 0, time.UTC)
)

type backend struct {
	entries     []models.TimeEntry
	screenshots []models.Screenshot
	images      map[int64][]byte
	deleted     []int64
	projectsReq []int64
	lastQuery   models.TimeEntriesQuery
	lastReport  models.ReportQuery
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{0, 0, 0xff, 0xff})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newDashboard(t *testing.T) (*admin.Dashboard, *backend) {
	t.Helper()
	end := day1.Add(90 * time.Minute)
	b := &backend{
		entries: []models.TimeEntry{
			{ID: 1, UserID: 9, ClientID: 3, ProjectID: 7, StartTime: day1, EndTime: &end, Duration: 5400, IsBillable: true, Notes: `a,"b"`, ScreenshotCount: 2},
			{ID: 2, UserID: 9, ClientID: 1, ProjectID: 8, StartTime: day2, Duration: 0, IsEdited: true},
		},
		screenshots: []models.Screenshot{
			{ID: 11, TimeEntryID: 1, Timestamp: day1.Add(10 * time.Minute)},
			{ID: 10, TimeEntryID: 1, Timestamp: day1.Add(5 * time.Minute)},
		},
		images: map[int64][]byte{10: pngBytes(t, 800, 450)},
	}

	renderer, host := bus.NewPair()
	host.Handle(bus.ChannelGetUsers, func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
		return []models.User{{ID: 9, Username: "alice"}}, nil
	})
	host.Handle(bus.ChannelGetClients, func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
		return []models.Client{{ID: 1, Name: "Internal"}, {ID: 3, Name: "Acme"}}, nil
	})
	host.Handle(bus.ChannelGetProjects, func(ctx context.Context, p json.RawMessage) (interface{}, error) {
		var ref models.ClientRef
		if err := bus.Decode(p, &ref); err != nil {
			return nil, err
		}
		b.projectsReq = append(b.projectsReq, ref.ClientID)
		switch ref.ClientID {
		case 3:
			return []models.Project{{ID: 7, ClientID: 3, Name: "Website"}}, nil
		case 1:
			return []models.Project{{ID: 8, ClientID: 1, Name: "General"}}, nil
		}
		return []models.Project{}, nil
	})
	host.Handle(bus.ChannelGetTimeEntries, func(ctx context.Context, p json.RawMessage) (interface{}, error) {
		if err := bus.Decode(p, &b.lastQuery); err != nil {
			return nil, err
		}
		return b.entries, nil
	})
	host.Handle(bus.ChannelGetScreenshots, func(ctx context.Context, p json.RawMessage) (interface{}, error) {
		return b.screenshots, nil
	})
	host.Handle(bus.ChannelGetScreenshot, func(ctx context.Context, p json.RawMessage) (interface{}, error) {
		var ref models.ScreenshotRef
		if err := bus.Decode(p, &ref); err != nil {
			return nil, err
		}
		data, ok := b.images[ref.ScreenshotID]
		if !ok {
			return nil, errors.New("file not found")
		}
		return models.ScreenshotData{Data: base64.StdEncoding.EncodeToString(data)}, nil
	})
	host.Handle(bus.ChannelDeleteTimeEntry, func(ctx context.Context, p json.RawMessage) (interface{}, error) {
		var ref models.TimeEntryRef
		if err := bus.Decode(p, &ref); err != nil {
			return nil, err
		}
		b.deleted = append(b.deleted, ref.TimeEntryID)
		return true, nil
	})
	host.Handle(bus.ChannelGenerateReport, func(ctx context.Context, p json.RawMessage) (interface{}, error) {
		if err := bus.Decode(p, &b.lastReport); err != nil {
			return nil, err
		}
		return []models.ReportRow{
			{ClientName: "Acme", ProjectName: "Website", TotalHours: 1.5, BillableHours: 1.5, EntryCount: 1},
		}, nil
	})

	d := admin.NewDashboard(renderer, admin.Options{
		Location: time.UTC,
		Now:      func() time.Time { return day2 },
	})
	return d, b
}

func march(t *testing.T) admin.Filter {
	t.Helper()
	f, err := admin.ParseFilter(nil, "2024-03-01", "2024-03-31", time.UTC)
	if err != nil {
		t.Fatalf("ParseFilter: %v", err)
	}
	return f
}

func TestDefaultFilterIsLastWeek(t *testing.T) {
	d, _ := newDashboard(t)
	f := d.Filter()
	if got := f.From.Format("2006-01-02"); got != "2024-02-27" {
		t.Errorf("default from = %s, want 2024-02-27", got)
	}
	if got := f.To.Format("2006-01-02"); got != "2024-03-05" {
		t.Errorf("default to = %s, want 2024-03-05", got)
	}
}

func TestParseFilterValidation(t *testing.T) {
	tests := []struct {
		from, to string
	}{
		{"", "2024-03-01"},
		{"2024-03-01", ""},
		{"2024-03-05", "2024-03-01"},
		{"03/01/2024", "2024-03-05"},
	}
	for _, tt := range tests {
		if _, err := admin.ParseFilter(nil, tt.from, tt.to, time.UTC); !errors.Is(err, admin.ErrInvalidFilter) {
			t.Errorf("ParseFilter(%q, %q) error = %v, want ErrInvalidFilter", tt.from, tt.to, err)
		}
	}
}

func TestLoadSortsAndResolvesNames(t *testing.T) {
	d, b := newDashboard(t)
	userID := int64(9)
	f := march(t)
	f.UserID = &userID

	rows, err := d.Load(context.Background(), f)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if b.lastQuery.FromDate != "2024-03-01" || b.lastQuery.ToDate != "2024-03-31" || *b.lastQuery.UserID != 9 {
		t.Errorf("query = %+v", b.lastQuery)
	}
	if len(rows) != 2 || rows[0].ID != 2 || rows[1].ID != 1 {
		t.Fatalf("rows not sorted by start descending: %+v", rows)
	}

	first := rows[1]
	want := admin.Row{
		ID: 1, Date: "3/4/2024", User: "alice", Client: "Acme", Project: "Website",
		Start: "09:30", End: "11:00", Duration: "01:30:00", Screenshots: 2, Billable: true, Notes: `a,"b"`,
	}
	if first != want {
		t.Errorf("row = %+v, want %+v", first, want)
	}
	if rows[0].Class == "" {
		t.Error("edited entry has no highlight class")
	}
	if rows[0].End != "In progress" || rows[0].Project != "General" {
		t.Errorf("running row = %+v", rows[0])
	}

	if _, err := d.Load(context.Background(), f); err != nil {
		t.Fatal(err)
	}
	if len(b.projectsReq) != 2 {
		t.Errorf("project lookups = %v, want one per distinct client", b.projectsReq)
	}
}

func TestSelectEntryAndLightbox(t *testing.T) {
	d, _ := newDashboard(t)
	ctx := context.Background()
	if _, err := d.Load(ctx, march(t)); err != nil {
		t.Fatal(err)
	}

	shots, err := d.SelectEntry(ctx, 1)
	if err != nil {
		t.Fatalf("SelectEntry: %v", err)
	}
	if len(shots) != 2 || shots[0].ID != 10 || shots[1].ID != 11 {
		t.Errorf("screenshots not ascending: %+v", shots)
	}

	thumb := d.Thumbnail(ctx, 10)
	if thumb.Failed || thumb.ContentType != "image/jpeg" {
		t.Fatalf("thumbnail = failed:%v type:%s", thumb.Failed, thumb.ContentType)
	}
	img, _, err := image.Decode(bytes.NewReader(thumb.Data))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if img.Bounds().Dx() != 240 {
		t.Errorf("thumbnail width = %d, want 240", img.Bounds().Dx())
	}

	if broken := d.Thumbnail(ctx, 11); !broken.Failed || len(broken.Data) == 0 {
		t.Error("missing image did not produce a placeholder")
	}

	box := d.Lightbox(ctx, 10)
	if box.Failed || !strings.HasPrefix(box.Image, "data:image/png;base64,") {
		t.Errorf("lightbox image = %.40s failed=%v", box.Image, box.Failed)
	}
	if box.Date != "3/4/2024" || box.Time != "09:35:00" || box.User != "alice" || box.Project != "Website" {
		t.Errorf("lightbox metadata = %+v", box)
	}
	if failed := d.Lightbox(ctx, 11); !failed.Failed {
		t.Error("lightbox load failure not flagged")
	}
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	d, b := newDashboard(t)
	ctx := context.Background()
	if _, err := d.Load(ctx, march(t)); err != nil {
		t.Fatal(err)
	}
	if _, err := d.SelectEntry(ctx, 1); err != nil {
		t.Fatal(err)
	}

	if err := d.Delete(ctx, 1, func(string) bool { return false }); !errors.Is(err, admin.ErrNotConfirmed) {
		t.Errorf("Delete declined error = %v, want ErrNotConfirmed", err)
	}
	if len(b.deleted) != 0 {
		t.Fatal("backend called without confirmation")
	}

	if err := d.Delete(ctx, 1, func(string) bool { return true }); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if rows := d.Rows(); len(rows) != 1 || rows[0].ID != 2 {
		t.Errorf("rows after delete = %+v", rows)
	}
	if d.Selected() != 0 || len(d.Screenshots()) != 0 {
		t.Error("screenshot pane not cleared after deleting the selected entry")
	}
}

func TestProjectReport(t *testing.T) {
	d, b := newDashboard(t)
	r, err := d.Report(context.Background(), models.ReportByProject, march(t))
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if b.lastReport.Type != models.ReportByProject {
		t.Errorf("report type sent = %q", b.lastReport.Type)
	}
	wantCols := "Client,Project,Total Hours,Billable Hours,Entries"
	if got := strings.Join(r.Columns, ","); got != wantCols {
		t.Errorf("columns = %s, want %s", got, wantCols)
	}
	if got := strings.Join(r.Rows[0], ","); got != "Acme,Website,1.50,1.50,1" {
		t.Errorf("row = %s", got)
	}

	if _, err := d.Report(context.Background(), "team", march(t)); !errors.Is(err, admin.ErrInvalidFilter) {
		t.Errorf("unknown kind error = %v", err)
	}
}

func TestBuildReportColumns(t *testing.T) {
	tests := []struct {
		kind models.ReportKind
		want string
	}{
		{models.ReportByUser, "User,Total Hours,Billable Hours,Entries"},
		{models.ReportByClient, "Client,Total Hours,Billable Hours,Entries"},
		{models.ReportByProject, "Client,Project,Total Hours,Billable Hours,Entries"},
	}
	for _, tt := range tests {
		if got := strings.Join(admin.BuildReport(tt.kind, nil).Columns, ","); got != tt.want {
			t.Errorf("BuildReport(%s) columns = %s, want %s", tt.kind, got, tt.want)
		}
	}
}

func TestExportCSV(t *testing.T) {
	d, _ := newDashboard(t)
	if _, err := d.Load(context.Background(), march(t)); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := d.ExportCSV(&buf); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if lines[0] != "Date,User,Client,Project,Start Time,End Time,Duration,Billable,Notes" {
		t.Errorf("header = %s", lines[0])
	}
	if want := `3/4/2024,alice,Acme,Website,09:30,11:00,01:30:00,Yes,"a,""b"""`; lines[2] != want {
		t.Errorf("row = %s, want %s", lines[2], want)
	}
	if strings.Contains(buf.String(), "\r") {
		t.Error("csv uses CRLF line endings")
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	notes := "line one, with comma\n\"quoted\" line two"
	var buf bytes.Buffer
	if err := admin.WriteCSV(&buf, []admin.Row{{Date: "1/2/2024", User: "o'neil, j", Notes: notes}}); err != nil {
		t.Fatal(err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("csv.ReadAll: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[1][1] != "o'neil, j" || records[1][8] != notes {
		t.Errorf("round trip = %q / %q", records[1][1], records[1][8])
	}
}

func TestExportFilename(t *testing.T) {
	if got := admin.ExportFilename(day2); got != "time-entries-2024-03-05.csv" {
		t.Errorf("ExportFilename = %s", got)
	}
}
