package scheduler_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"worktracker/internal/config"
	"worktracker/internal/scheduler"
	"worktracker/internal/storage"
	"worktracker/pkg/models"
)

func TestDailySpec(t *testing.T) {
	tests := []struct {
		clock string
		days  []int
		want  string
	}{
		{"18:00", []int{1, 2, 3, 4, 5}, "0 18 * * 1,2,3,4,5"},
		{"17:45", []int{5, 1, 3}, "45 17 * * 1,3,5"},
		{"09:30", nil, "30 9 * * *"},
		{"23:59", []int{0, 1, 2, 3, 4, 5, 6}, "59 23 * * *"},
		{"08:00", []int{1, 1, 9}, "0 8 * * 1"},
	}
	for _, tt := range tests {
		got, err := scheduler.DailySpec(tt.clock, tt.days)
		if err != nil {
			t.Errorf("DailySpec(%q, %v) error: %v", tt.clock, tt.days, err)
			continue
		}
		if got != tt.want {
			t.Errorf("DailySpec(%q, %v) = %q, want %q", tt.clock, tt.days, got, tt.want)
		}
	}

	if _, err := scheduler.DailySpec("6pm", nil); err == nil {
		t.Error("DailySpec(\"6pm\") succeeded")
	}
}

type stopper struct {
	calls int
	err   error
}

func (s *stopper) StopAll() error {
	s.calls++
	return s.err
}

func setup(t *testing.T, update func(*models.AppConfig)) (*config.Manager, *storage.Manager) {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.NewManager(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	if update != nil {
		if err := cfg.Update(update); err != nil {
			t.Fatal(err)
		}
	}
	store, err := storage.NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return cfg, store
}

func TestStartRegistersJobs(t *testing.T) {
	tests := []struct {
		name     string
		autoStop bool
		endTime  string
		want     int
	}{
		{"cleanup only", false, "18:00", 1},
		{"with auto-stop", true, "18:00", 2},
		{"bad end time", true, "late", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, store := setup(t, func(c *models.AppConfig) {
				c.Schedule.AutoStop = tt.autoStop
				c.Schedule.EndTime = tt.endTime
			})
			s := scheduler.NewScheduler(cfg, store, &stopper{})
			if err := s.Start(); err != nil {
				t.Fatalf("Start: %v", err)
			}
			defer s.Stop()

			if got := s.Jobs(); got != tt.want {
				t.Errorf("Jobs() = %d, want %d", got, tt.want)
			}
			if err := s.Start(); err == nil {
				t.Error("second Start succeeded")
			}
		})
	}
}

func TestStopIsIdempotent(t *testing.T) {
	cfg, store := setup(t, nil)
	s := scheduler.NewScheduler(cfg, store, nil)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	s.Stop()
	s.Stop()
	if s.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}

func TestRunAutoStop(t *testing.T) {
	cfg, store := setup(t, nil)
	st := &stopper{err: errors.New("boom")}
	s := scheduler.NewScheduler(cfg, store, st)
	s.RunAutoStop()
	if st.calls != 1 {
		t.Errorf("StopAll calls = %d, want 1", st.calls)
	}
}

func TestRunCleanupRemovesOldScreenshots(t *testing.T) {
	cfg, store := setup(t, func(c *models.AppConfig) { c.Storage.RetentionDays = 7 })
	now := time.Now()
	for _, age := range []int{1, 10, 20} {
		ss := &models.Screenshot{TimeEntryID: 1, Timestamp: now.AddDate(0, 0, -age), FilePath: "missing.jpg"}
		if err := store.SaveScreenshot(ss); err != nil {
			t.Fatal(err)
		}
	}

	scheduler.NewScheduler(cfg, store, nil).RunCleanup()

	stats, err := store.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalScreenshots != 1 {
		t.Errorf("screenshots after cleanup = %d, want 1", stats.TotalScreenshots)
	}
}
