package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"worktracker/internal/activity"
	"worktracker/internal/admin"
	"worktracker/internal/bus"
	"worktracker/internal/config"
	"worktracker/internal/host"
	"worktracker/internal/server"
	"worktracker/internal/storage"
	"worktracker/internal/view"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeWorker struct {
	calls  []string
	inputs []activity.InputKind
	err    error
}

func (w *fakeWorker) record(call string) error {
	w.calls = append(w.calls, call)
	return w.err
}

func (w *fakeWorker) Login(_ context.Context, username string) error {
	return w.record("login:" + username)
}

func (w *fakeWorker) SelectClient(_ context.Context, id int64) error {
	return w.record(fmt.Sprintf("client:%d", id))
}

func (w *fakeWorker) SelectProject(_ context.Context, id int64) error {
	return w.record(fmt.Sprintf("project:%d", id))
}

func (w *fakeWorker) Start(context.Context) error       { return w.record("start") }
func (w *fakeWorker) Pause(context.Context) error       { return w.record("pause") }
func (w *fakeWorker) Resume(context.Context) error      { return w.record("resume") }
func (w *fakeWorker) TogglePause(context.Context) error { return w.record("toggle") }
func (w *fakeWorker) Stop(context.Context) error        { return w.record("stop") }

func (w *fakeWorker) EditNotes(_ context.Context, text string) error {
	return w.record("notes:" + text)
}

func (w *fakeWorker) Input(kind activity.InputKind) {
	w.inputs = append(w.inputs, kind)
}

type env struct {
	handler http.Handler
	worker  *fakeWorker
	screen  *view.Store
	store   *storage.Manager
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.NewManager(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	renderer, hostEnd := bus.NewPair()
	backend := host.New(hostEnd, store, nil, host.Options{})
	backend.Attach()
	t.Cleanup(backend.Detach)

	worker := &fakeWorker{}
	screen := view.NewStore(func(fn func()) { fn() })
	dash := admin.NewDashboard(renderer, admin.Options{})
	srv := server.NewServer(cfg, worker, screen, dash, nil, "1.2.3")
	return &env{handler: srv.Handler(), worker: worker, screen: screen, store: store}
}

func (e *env) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// seed 一条今天结束的工时记录
func (e *env) seed(t *testing.T) int64 {
	t.Helper()
	user, err := e.store.EnsureUser("alice")
	if err != nil {
		t.Fatal(err)
	}
	clients, err := e.store.Clients()
	if err != nil {
		t.Fatal(err)
	}
	projects, err := e.store.ProjectsByClient(clients[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now().Add(-2 * time.Hour)
	entry, err := e.store.StartEntry(user.ID, clients[0].ID, projects[0].ID, true, start)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.store.StopEntry(user.ID, start.Add(30*time.Minute)); err != nil {
		t.Fatal(err)
	}
	return entry.ID
}

func TestVersionAndIndex(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/api/version", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"1.2.3"`) {
		t.Errorf("GET /api/version = %d %s", rec.Code, rec.Body)
	}
	rec = e.do(t, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "<title>WorkTracker</title>") {
		t.Errorf("GET / = %d", rec.Code)
	}
}

func TestGesturesReachWorker(t *testing.T) {
	e := newEnv(t)
	requests := []struct {
		method, path, body string
	}{
		{http.MethodPost, "/api/login", `{"username":"alice"}`},
		{http.MethodPost, "/api/timer/client", `{"id":3}`},
		{http.MethodPost, "/api/timer/project", `{"id":7}`},
		{http.MethodPost, "/api/timer/start", ""},
		{http.MethodPost, "/api/timer/toggle", ""},
		{http.MethodPost, "/api/timer/pause", ""},
		{http.MethodPost, "/api/timer/resume", ""},
		{http.MethodPut, "/api/timer/notes", `{"notes":"fixing bugs"}`},
		{http.MethodPost, "/api/timer/stop", ""},
	}
	for _, r := range requests {
		rec := e.do(t, r.method, r.path, r.body)
		if rec.Code != http.StatusOK {
			t.Errorf("%s %s = %d %s", r.method, r.path, rec.Code, rec.Body)
			continue
		}
		var screen view.Screen
		if err := json.Unmarshal(rec.Body.Bytes(), &screen); err != nil {
			t.Errorf("%s %s returned %s: %v", r.method, r.path, rec.Body, err)
		}
	}

	want := []string{"login:alice", "client:3", "project:7", "start", "toggle", "pause", "resume", "notes:fixing bugs", "stop"}
	if strings.Join(e.worker.calls, "|") != strings.Join(want, "|") {
		t.Errorf("worker calls = %v, want %v", e.worker.calls, want)
	}
}

func TestGestureErrors(t *testing.T) {
	e := newEnv(t)
	if rec := e.do(t, http.MethodPost, "/api/timer/client", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("select without id = %d, want 400", rec.Code)
	}
	e.worker.err = errors.New("loop closed")
	if rec := e.do(t, http.MethodPost, "/api/timer/start", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("start on closed loop = %d, want 503", rec.Code)
	}
}

func TestActivityInput(t *testing.T) {
	e := newEnv(t)
	if rec := e.do(t, http.MethodPost, "/api/activity", `{"kind":"mousemove"}`); rec.Code != http.StatusNoContent {
		t.Errorf("activity = %d, want 204", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, "/api/activity", `{"kind":"blink"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown activity = %d, want 400", rec.Code)
	}
	if len(e.worker.inputs) != 1 || e.worker.inputs[0] != activity.PointerMove {
		t.Errorf("inputs = %v", e.worker.inputs)
	}
}

func TestPromptsAndAlerts(t *testing.T) {
	e := newEnv(t)
	var answers []bool
	e.screen.Confirm("Keep this idle time?", func(keep bool) { answers = append(answers, keep) })
	e.screen.Alert("Please select a client and a project")

	rec := e.do(t, http.MethodGet, "/api/timer/view", "")
	var screen view.Screen
	if err := json.Unmarshal(rec.Body.Bytes(), &screen); err != nil {
		t.Fatal(err)
	}
	if screen.Prompt == nil || screen.Alert == "" {
		t.Fatalf("screen = %+v, want prompt and alert", screen)
	}

	if rec := e.do(t, http.MethodPost, "/api/prompts/nope", `{"keep":true}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown prompt = %d, want 404", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, "/api/prompts/"+screen.Prompt.ID, `{"keep":false}`); rec.Code != http.StatusOK {
		t.Errorf("answer prompt = %d", rec.Code)
	}
	if len(answers) != 1 || answers[0] {
		t.Errorf("answers = %v, want [false]", answers)
	}

	if rec := e.do(t, http.MethodDelete, "/api/alerts", ""); rec.Code != http.StatusOK {
		t.Errorf("dismiss alert = %d", rec.Code)
	}
	if got := e.screen.Current(); got.Alert != "" || got.Prompt != nil {
		t.Errorf("screen after answer and dismiss = %+v", got)
	}
}

func TestAdminEntries(t *testing.T) {
	e := newEnv(t)
	e.seed(t)

	rec := e.do(t, http.MethodGet, "/api/admin/entries", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET entries = %d %s", rec.Code, rec.Body)
	}
	var rows []admin.Row
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].User != "alice" || rows[0].Duration != "00:30:00" {
		t.Errorf("rows = %+v", rows)
	}

	if rec := e.do(t, http.MethodGet, "/api/admin/entries?from=2024-03-05&to=2024-03-01", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("reversed range = %d, want 400", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/api/admin/entries?from=2024-03-05", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing to = %d, want 400", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/api/admin/users", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "alice") {
		t.Errorf("GET users = %d %s", rec.Code, rec.Body)
	}
}

func TestAdminDeleteRequiresConfirm(t *testing.T) {
	e := newEnv(t)
	id := e.seed(t)
	path := fmt.Sprintf("/api/admin/entries/%d", id)

	if rec := e.do(t, http.MethodDelete, path, ""); rec.Code != http.StatusConflict {
		t.Errorf("unconfirmed delete = %d, want 409", rec.Code)
	}
	if rec := e.do(t, http.MethodDelete, path+"?confirm=true", ""); rec.Code != http.StatusOK {
		t.Errorf("confirmed delete = %d %s", rec.Code, rec.Body)
	}
	if _, err := e.store.EntryByID(id); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("EntryByID after delete error = %v, want ErrNotFound", err)
	}
	if rec := e.do(t, http.MethodDelete, "/api/admin/entries/abc?confirm=true", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id = %d, want 400", rec.Code)
	}
}

func TestAdminReports(t *testing.T) {
	e := newEnv(t)
	e.seed(t)

	rec := e.do(t, http.MethodGet, "/api/admin/reports/project", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("project report = %d %s", rec.Code, rec.Body)
	}
	var report admin.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if len(report.Rows) != 1 || report.Rows[0][0] != "Internal" || report.Rows[0][2] != "0.50" {
		t.Errorf("report rows = %v", report.Rows)
	}

	if rec := e.do(t, http.MethodGet, "/api/admin/reports/weekly", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown report = %d, want 400", rec.Code)
	}
}

func TestAdminExport(t *testing.T) {
	e := newEnv(t)
	e.seed(t)

	rec := e.do(t, http.MethodGet, "/api/admin/export", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export = %d %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "time-entries-") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "Date,User,Client,Project") {
		t.Errorf("csv = %q", rec.Body.String())
	}
}

func TestThumbnailPlaceholder(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/api/admin/screenshots/99/thumbnail", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Errorf("thumbnail = %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
}

func TestConfigRoundTrip(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/api/config", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"port": 9527`) && !strings.Contains(rec.Body.String(), `"port":9527`) {
		t.Errorf("GET config = %d %s", rec.Code, rec.Body)
	}
	if rec := e.do(t, http.MethodPut, "/api/config", `{"server":`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad config = %d, want 400", rec.Code)
	}
}
