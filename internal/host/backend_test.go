package host_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"worktracker/internal/bus"
	"worktracker/internal/host"
	"worktracker/internal/storage"
	"worktracker/pkg/models"
	"worktracker/pkg/utils"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time           { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type recorder struct {
	begun []int64
	ended []int64
}

func (r *recorder) Begin(id int64) { r.begun = append(r.begun, id) }
func (r *recorder) End(id int64)   { r.ended = append(r.ended, id) }

type env struct {
	renderer *bus.Endpoint
	store    *storage.Manager
	backend  *host.Backend
	clock    *clock
	rec      *recorder
	updates  []models.TimerUpdate
	errors   []string
	idle     []int64
	changes  []models.ActivityStatusChange
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store, err := storage.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	renderer, hostEnd := bus.NewPair()
	e := &env{
		renderer: renderer,
		store:    store,
		clock:    &clock{t: time.Date(2024, 3, 4, 9, 0, 0, 0, time.Local)},
		rec:      &recorder{},
	}
	e.backend = host.New(hostEnd, store, e.rec, host.Options{Now: e.clock.now})
	e.backend.Attach()
	t.Cleanup(e.backend.Detach)

	renderer.On(bus.ChannelTimerUpdate, func(p json.RawMessage) {
		var u models.TimerUpdate
		if err := json.Unmarshal(p, &u); err != nil {
			t.Errorf("decode timer:update: %v", err)
		}
		e.updates = append(e.updates, u)
	})
	renderer.On(bus.ChannelTimerError, func(p json.RawMessage) {
		var te models.TimerError
		json.Unmarshal(p, &te)
		e.errors = append(e.errors, te.Error)
	})
	renderer.On(bus.ChannelIdleDetected, func(p json.RawMessage) {
		var d models.IdleDetected
		json.Unmarshal(p, &d)
		e.idle = append(e.idle, d.IdleTime)
	})
	renderer.On(bus.ChannelActivityChange, func(p json.RawMessage) {
		var c models.ActivityStatusChange
		json.Unmarshal(p, &c)
		e.changes = append(e.changes, c)
	})
	return e
}

func (e *env) send(t *testing.T, channel string, payload interface{}) {
	t.Helper()
	if err := e.renderer.Send(channel, payload); err != nil {
		t.Fatalf("Send(%s): %v", channel, err)
	}
}

func (e *env) last(t *testing.T) models.TimerUpdate {
	t.Helper()
	if len(e.updates) == 0 {
		t.Fatal("no timer:update received")
	}
	return e.updates[len(e.updates)-1]
}

func (e *env) defaults(t *testing.T) (clientID, projectID int64) {
	t.Helper()
	var clients []models.Client
	if err := e.renderer.Invoke(context.Background(), bus.ChannelGetClients, nil, &clients); err != nil {
		t.Fatalf("client:getAll: %v", err)
	}
	var projects []models.Project
	if err := e.renderer.Invoke(context.Background(), bus.ChannelGetProjects, models.ClientRef{ClientID: clients[0].ID}, &projects); err != nil {
		t.Fatalf("project:getByClient: %v", err)
	}
	return clients[0].ID, projects[0].ID
}

func (e *env) start(t *testing.T) models.TimerUpdate {
	t.Helper()
	clientID, projectID := e.defaults(t)
	e.send(t, bus.ChannelLogin, models.UserRequest{Username: "alice"})
	e.send(t, bus.ChannelTimerStart, models.StartRequest{Username: "alice", ClientID: clientID, ProjectID: projectID, IsBillable: true})
	u := e.last(t)
	if u.Action != models.ActionStarted {
		t.Fatalf("action = %s, want started (errors %v)", u.Action, e.errors)
	}
	return u
}

func TestStatusWithoutEntry(t *testing.T) {
	e := newEnv(t)
	e.send(t, bus.ChannelTimerStatus, models.UserRequest{Username: "bob"})
	u := e.last(t)
	if u.Action != models.ActionStatus || u.IsActive || u.UserID == 0 {
		t.Errorf("status = %+v, want inactive with userId", u)
	}
}

func TestTimerLifecycleEvents(t *testing.T) {
	e := newEnv(t)
	started := e.start(t)
	if started.EntryID == 0 || !started.IsActive {
		t.Errorf("started = %+v", started)
	}
	if len(e.rec.begun) != 1 {
		t.Errorf("capture begun %d times, want 1", len(e.rec.begun))
	}

	e.clock.advance(10 * time.Minute)
	e.send(t, bus.ChannelTimerPause, models.UserRequest{Username: "alice"})
	if u := e.last(t); u.Action != models.ActionPaused || *u.Duration != 600 {
		t.Errorf("paused = %+v", u)
	}

	e.clock.advance(5 * time.Minute)
	e.send(t, bus.ChannelTimerResume, models.UserRequest{Username: "alice"})
	if u := e.last(t); u.Action != models.ActionResumed {
		t.Errorf("resumed = %+v", u)
	}

	e.clock.advance(time.Minute)
	e.send(t, bus.ChannelTimerStatus, models.UserRequest{Username: "alice"})
	status := e.last(t)
	if !status.IsActive || status.StartTime == nil {
		t.Fatalf("status = %+v, want active with startTime", status)
	}
	if got := utils.ElapsedSeconds(*status.StartTime, e.clock.now()); got != 660 {
		t.Errorf("elapsed from status = %d, want 660", got)
	}

	e.send(t, bus.ChannelAddNotes, models.NotesRequest{Username: "alice", Notes: "standup"})
	e.send(t, bus.ChannelTimerStop, models.UserRequest{Username: "alice"})
	stopped := e.last(t)
	if stopped.Action != models.ActionStopped || *stopped.Duration != 660 {
		t.Errorf("stopped = %+v", stopped)
	}
	entry, err := e.store.EntryByID(stopped.EntryID)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Notes != "standup" {
		t.Errorf("notes = %q, want standup", entry.Notes)
	}
	if len(e.rec.ended) != 2 {
		t.Errorf("capture ended %d times, want 2", len(e.rec.ended))
	}
}

func TestRejectionsBecomeTimerErrors(t *testing.T) {
	e := newEnv(t)
	e.send(t, bus.ChannelTimerPause, models.UserRequest{Username: "alice"})
	e.start(t)
	clientID, projectID := e.defaults(t)
	e.send(t, bus.ChannelTimerStart, models.StartRequest{Username: "alice", ClientID: clientID, ProjectID: projectID})
	e.send(t, bus.ChannelTimerStart, models.StartRequest{Username: "alice", ClientID: clientID + 100, ProjectID: projectID})

	want := []string{"No active timer", "A timer is already running", "Invalid project for the selected client"}
	if len(e.errors) != len(want) {
		t.Fatalf("errors = %v, want %v", e.errors, want)
	}
	for i := range want {
		if e.errors[i] != want[i] {
			t.Errorf("errors[%d] = %q, want %q", i, e.errors[i], want[i])
		}
	}
}

func TestPausedStatus(t *testing.T) {
	e := newEnv(t)
	e.start(t)
	e.clock.advance(3 * time.Minute)
	e.send(t, bus.ChannelTimerPause, models.UserRequest{Username: "alice"})
	e.clock.advance(time.Hour)
	e.send(t, bus.ChannelTimerStatus, models.UserRequest{Username: "alice"})

	u := e.last(t)
	if u.IsActive || !u.IsPaused || u.Duration == nil || *u.Duration != 180 {
		t.Errorf("paused status = %+v", u)
	}
}

func TestActivityDrivesIdleDetection(t *testing.T) {
	e := newEnv(t)
	started := e.start(t)

	at := func(d time.Duration) string { return utils.ISOTimestamp(e.clock.now().Add(d)) }
	e.send(t, bus.ChannelActivity, models.ActivityUpdate{UserID: started.UserID, Status: models.StatusActive, Timestamp: at(0)})
	e.send(t, bus.ChannelActivity, models.ActivityUpdate{UserID: started.UserID, Status: models.StatusInactive, Timestamp: at(6 * time.Minute)})
	if len(e.idle) != 0 {
		t.Fatalf("idle detected before activity resumed: %v", e.idle)
	}
	e.send(t, bus.ChannelActivity, models.ActivityUpdate{UserID: started.UserID, Status: models.StatusActive, Timestamp: at(20 * time.Minute)})

	if len(e.idle) != 1 || e.idle[0] != 19*60 {
		t.Errorf("idle = %v, want [1140]", e.idle)
	}
	if len(e.changes) != 3 || e.changes[1].Status != models.StatusInactive {
		t.Errorf("status changes = %+v", e.changes)
	}
}

func TestIdleAfterScreenLockCountsFromLastInput(t *testing.T) {
	e := newEnv(t)
	started := e.start(t)

	at := func(d time.Duration) string { return utils.ISOTimestamp(e.clock.now().Add(d)) }
	e.send(t, bus.ChannelActivity, models.ActivityUpdate{UserID: started.UserID, Status: models.StatusActive, Timestamp: at(0)})
	// 锁屏立即离开，最后一次输入早于上报时间
	e.send(t, bus.ChannelActivity, models.ActivityUpdate{UserID: started.UserID, Status: models.StatusInactive, Timestamp: at(30 * time.Second), LastInput: at(0)})
	e.send(t, bus.ChannelActivity, models.ActivityUpdate{UserID: started.UserID, Status: models.StatusActive, Timestamp: at(10 * time.Minute)})

	if len(e.idle) != 1 || e.idle[0] != 600 {
		t.Errorf("idle = %v, want [600]", e.idle)
	}
}

func TestIdleExcludesPauseBeforeResume(t *testing.T) {
	e := newEnv(t)
	started := e.start(t)

	at := func(d time.Duration) string { return utils.ISOTimestamp(e.clock.now().Add(d)) }
	e.send(t, bus.ChannelActivity, models.ActivityUpdate{UserID: started.UserID, Status: models.StatusActive, Timestamp: at(0)})
	e.send(t, bus.ChannelActivity, models.ActivityUpdate{UserID: started.UserID, Status: models.StatusInactive, Timestamp: at(10 * time.Minute)})

	e.clock.advance(15 * time.Minute)
	e.send(t, bus.ChannelTimerPause, models.UserRequest{Username: "alice"})
	e.clock.advance(time.Hour)
	e.send(t, bus.ChannelTimerResume, models.UserRequest{Username: "alice"})
	e.send(t, bus.ChannelActivity, models.ActivityUpdate{UserID: started.UserID, Status: models.StatusActive, Timestamp: at(time.Minute)})

	if len(e.idle) != 1 || e.idle[0] != 60 {
		t.Errorf("idle = %v, want [60]", e.idle)
	}
}

func TestDiscardIdle(t *testing.T) {
	e := newEnv(t)
	e.start(t)
	e.clock.advance(30 * time.Minute)
	idleStart := e.clock.now().Add(-10 * time.Minute)
	e.send(t, bus.ChannelDiscardIdle, models.DiscardIdleRequest{Username: "alice", IdleStartTime: utils.EpochMillis(idleStart)})

	u := e.last(t)
	if u.Action != models.ActionIdleDiscarded || u.Duration == nil || *u.Duration != 1200 {
		t.Errorf("idleDiscarded = %+v", u)
	}
	entry, err := e.store.EntryByID(u.EntryID)
	if err != nil {
		t.Fatal(err)
	}
	if !entry.IsEdited || !entry.Paused() {
		t.Errorf("entry after discard = edited:%v paused:%v", entry.IsEdited, entry.Paused())
	}
}

func TestAdminQueries(t *testing.T) {
	e := newEnv(t)
	started := e.start(t)

	path := filepath.Join(t.TempDir(), "shot.jpg")
	if err := os.WriteFile(path, []byte("image-bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	ss := models.Screenshot{TimeEntryID: started.EntryID, Timestamp: e.clock.now(), FilePath: path}
	if err := e.store.SaveScreenshot(&ss); err != nil {
		t.Fatal(err)
	}
	e.clock.advance(time.Hour)
	ctx := context.Background()

	var entries []models.TimeEntry
	day := e.clock.now().Format(utils.DateLayout)
	if err := e.renderer.Invoke(ctx, bus.ChannelGetTimeEntries, models.TimeEntriesQuery{FromDate: day, ToDate: day}, &entries); err != nil {
		t.Fatalf("getTimeEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Duration != 3600 || entries[0].ScreenshotCount != 1 {
		t.Errorf("entries = %+v", entries)
	}

	var data models.ScreenshotData
	if err := e.renderer.Invoke(ctx, bus.ChannelGetScreenshot, models.ScreenshotRef{ScreenshotID: ss.ID}, &data); err != nil {
		t.Fatalf("getScreenshotData: %v", err)
	}
	if data.Data != "aW1hZ2UtYnl0ZXM=" {
		t.Errorf("data = %q", data.Data)
	}

	var rows []models.ReportRow
	if err := e.renderer.Invoke(ctx, bus.ChannelGenerateReport, models.ReportQuery{Type: models.ReportByUser, FromDate: day, ToDate: day}, &rows); err != nil {
		t.Fatalf("generateReport: %v", err)
	}
	if len(rows) != 1 || rows[0].TotalHours != 1 {
		t.Errorf("report = %+v", rows)
	}

	var bad []models.ReportRow
	err := e.renderer.Invoke(ctx, bus.ChannelGenerateReport, models.ReportQuery{Type: "team", FromDate: day, ToDate: day}, &bad)
	if _, ok := err.(*bus.RemoteError); !ok {
		t.Errorf("unknown report type error = %v, want *bus.RemoteError", err)
	}

	var deleted bool
	if err := e.renderer.Invoke(ctx, bus.ChannelDeleteTimeEntry, models.TimeEntryRef{TimeEntryID: started.EntryID}, &deleted); err != nil || !deleted {
		t.Fatalf("deleteTimeEntry = %v, %v", deleted, err)
	}
}

func TestDeleteRunningEntryStopsTimer(t *testing.T) {
	e := newEnv(t)
	started := e.start(t)
	e.clock.advance(10 * time.Minute)

	var deleted bool
	if err := e.renderer.Invoke(context.Background(), bus.ChannelDeleteTimeEntry, models.TimeEntryRef{TimeEntryID: started.EntryID}, &deleted); err != nil || !deleted {
		t.Fatalf("deleteTimeEntry = %v, %v", deleted, err)
	}
	u := e.last(t)
	if u.Action != models.ActionStopped || u.EntryID != started.EntryID || u.UserID != started.UserID {
		t.Errorf("update after delete = %+v, want stopped for entry %d", u, started.EntryID)
	}
	if len(e.rec.ended) != 1 || e.rec.ended[0] != started.EntryID {
		t.Errorf("capture ended = %v, want [%d]", e.rec.ended, started.EntryID)
	}

	e.send(t, bus.ChannelTimerStatus, models.UserRequest{Username: "alice"})
	if u := e.last(t); u.IsActive {
		t.Errorf("status after delete = %+v, want inactive", u)
	}
}

func TestStopAll(t *testing.T) {
	e := newEnv(t)
	e.start(t)
	e.clock.advance(time.Hour)
	if err := e.backend.StopAll(); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	if u := e.last(t); u.Action != models.ActionStopped || *u.Duration != 3600 {
		t.Errorf("auto stop = %+v", u)
	}
}
