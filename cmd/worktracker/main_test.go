package main

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if got, want := out.String(), AppName+" "+AppVersion+"\n"; got != want {
		t.Errorf("version output = %q, want %q", got, want)
	}
}

func TestExportCommandEmptyRange(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LOCALAPPDATA", dir)
	t.Setenv("WORKTRACKER_STORAGE_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("WORKTRACKER_STORAGE_SCREENSHOTS_DIR", filepath.Join(dir, "data", "screenshots"))
	t.Setenv("WORKTRACKER_STORAGE_LOGS_DIR", filepath.Join(dir, "data", "logs"))
	t.Setenv("WORKTRACKER_ACTIVITY_SCREEN_PROBE", "false")

	out := filepath.Join(dir, "out.csv")
	rootCmd.SetArgs([]string{"export", "--from", "2024-03-01", "--to", "2024-03-07", "-o", out})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 1 || records[0][0] != "Date" {
		t.Errorf("records = %v, want header only", records)
	}
}

func TestExportCommandRejectsInvertedRange(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LOCALAPPDATA", dir)
	t.Setenv("WORKTRACKER_STORAGE_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("WORKTRACKER_STORAGE_SCREENSHOTS_DIR", filepath.Join(dir, "data", "screenshots"))
	t.Setenv("WORKTRACKER_STORAGE_LOGS_DIR", filepath.Join(dir, "logs"))

	rootCmd.SetArgs([]string{"export", "--from", "2024-03-07", "--to", "2024-03-01", "-o", "-"})
	if err := rootCmd.Execute(); err == nil {
		t.Error("export with from after to returned nil error")
	}
}
