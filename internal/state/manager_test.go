package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Ning0612/mirrorsync/internal/domain"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "data", "history.db")
	manager, err := NewManager(dbPath)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	t.Cleanup(func() { manager.Close() })
	return manager, dbPath
}

func TestNewManager(t *testing.T) {
	manager, dbPath := newTestManager(t)

	if manager.db == nil {
		t.Error("Database connection is nil")
	}

	// Verify database file was created, including its parent directory
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestNewManager_EmptyPath(t *testing.T) {
	_, err := NewManager("")
	if err == nil {
		t.Error("Expected error for empty path, got nil")
	}
}

func TestSaveAndGetCycle(t *testing.T) {
	manager, _ := newTestManager(t)

	record := CycleRecord{
		Source:      "/data/src",
		Replica:     "/data/replica",
		StartTime:   time.Now().Add(-10 * time.Minute),
		EndTime:     time.Now(),
		Status:      domain.CycleSuccess,
		Created:     2,
		Copied:      10,
		Deleted:     1,
		BytesCopied: 1024,
	}

	if err := manager.SaveCycle(record); err != nil {
		t.Fatalf("Failed to save cycle: %v", err)
	}

	history, err := manager.GetHistory("/data/replica", 10)
	if err != nil {
		t.Fatalf("Failed to get history: %v", err)
	}

	if len(history) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(history))
	}

	retrieved := history[0]
	if retrieved.Source != record.Source {
		t.Errorf("Expected source %s, got %s", record.Source, retrieved.Source)
	}

	if retrieved.Status != record.Status {
		t.Errorf("Expected status %s, got %s", record.Status, retrieved.Status)
	}

	if retrieved.Copied != record.Copied || retrieved.Created != record.Created || retrieved.Deleted != record.Deleted {
		t.Errorf("Counts mismatch: got %+v", retrieved)
	}

	if retrieved.BytesCopied != record.BytesCopied {
		t.Errorf("Expected bytes copied %d, got %d", record.BytesCopied, retrieved.BytesCopied)
	}
}

func TestSaveCycle_InvalidStatus(t *testing.T) {
	manager, _ := newTestManager(t)

	record := CycleRecord{
		Replica:   "/r",
		StartTime: time.Now(),
		EndTime:   time.Now(),
		Status:    "exploded",
	}

	if err := manager.SaveCycle(record); err == nil {
		t.Error("Expected error for invalid status, got nil")
	}
}

func TestGetLastSuccess(t *testing.T) {
	manager, _ := newTestManager(t)

	records := []CycleRecord{
		{Replica: "/r", StartTime: time.Now().Add(-30 * time.Minute), EndTime: time.Now().Add(-29 * time.Minute), Status: domain.CycleSuccess, Copied: 5},
		{Replica: "/r", StartTime: time.Now().Add(-20 * time.Minute), EndTime: time.Now().Add(-19 * time.Minute), Status: domain.CycleFailed, Error: "source unreadable"},
		{Replica: "/r", StartTime: time.Now().Add(-10 * time.Minute), EndTime: time.Now().Add(-9 * time.Minute), Status: domain.CycleSuccess, Copied: 10},
		{Replica: "/r", StartTime: time.Now().Add(-5 * time.Minute), EndTime: time.Now().Add(-4 * time.Minute), Status: domain.CyclePartial, Copied: 3, Errors: 1},
	}

	for _, record := range records {
		if err := manager.SaveCycle(record); err != nil {
			t.Fatalf("Failed to save cycle: %v", err)
		}
	}

	lastSuccess, err := manager.GetLastSuccess("/r")
	if err != nil {
		t.Fatalf("Failed to get last success: %v", err)
	}

	if lastSuccess == nil {
		t.Fatal("Expected last success, got nil")
	}

	if lastSuccess.Copied != 10 {
		t.Errorf("Expected last success to have 10 copies, got %d", lastSuccess.Copied)
	}
}

func TestGetLastSuccess_NoSuccess(t *testing.T) {
	manager, _ := newTestManager(t)

	record := CycleRecord{
		Replica:   "/r",
		StartTime: time.Now(),
		EndTime:   time.Now(),
		Status:    domain.CycleFailed,
		Error:     "test error",
	}
	if err := manager.SaveCycle(record); err != nil {
		t.Fatalf("Failed to save cycle: %v", err)
	}

	lastSuccess, err := manager.GetLastSuccess("/r")
	if err != nil {
		t.Fatalf("Failed to get last success: %v", err)
	}

	if lastSuccess != nil {
		t.Errorf("Expected nil for no success, got %+v", lastSuccess)
	}
}

func TestGetHistory_OrderAndLimit(t *testing.T) {
	manager, _ := newTestManager(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		record := CycleRecord{
			Replica:   "/r",
			StartTime: base.Add(time.Duration(i) * time.Minute),
			EndTime:   base.Add(time.Duration(i)*time.Minute + time.Second),
			Status:    domain.CycleSuccess,
			Copied:    i,
		}
		if err := manager.SaveCycle(record); err != nil {
			t.Fatalf("Failed to save cycle: %v", err)
		}
	}

	// A different replica must not show up
	other := CycleRecord{Replica: "/other", StartTime: time.Now(), EndTime: time.Now(), Status: domain.CycleSuccess}
	if err := manager.SaveCycle(other); err != nil {
		t.Fatalf("Failed to save cycle: %v", err)
	}

	history, err := manager.GetHistory("/r", 3)
	if err != nil {
		t.Fatalf("Failed to get history: %v", err)
	}

	if len(history) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(history))
	}

	for i, want := range []int{4, 3, 2} {
		if history[i].Copied != want {
			t.Errorf("history[%d].Copied = %d, want %d", i, history[i].Copied, want)
		}
	}

	all, err := manager.GetAllHistory(10)
	if err != nil {
		t.Fatalf("Failed to get all history: %v", err)
	}
	if len(all) != 6 {
		t.Errorf("Expected 6 records, got %d", len(all))
	}
	if all[0].Replica != "/other" {
		t.Errorf("Expected newest record first, got %s", all[0].Replica)
	}
}

func TestGetHistory_InvalidLimit(t *testing.T) {
	manager, _ := newTestManager(t)

	if _, err := manager.GetHistory("/r", 0); err == nil {
		t.Error("Expected error for zero limit")
	}
	if _, err := manager.GetAllHistory(-1); err == nil {
		t.Error("Expected error for negative limit")
	}
}

func TestNewCycleRecord(t *testing.T) {
	started := time.Now().Add(-time.Second)
	report := &domain.CycleReport{
		Started:  started,
		Finished: time.Now(),
		Actions: []domain.Action{
			{Type: domain.ActionMkdir, Path: "/r/a"},
			{Type: domain.ActionCopy, Path: "/r/a/x"},
			{Type: domain.ActionCopy, Path: "/r/a/y"},
			{Type: domain.ActionDeleteFile, Path: "/r/z"},
			{Type: domain.ActionDeleteDir, Path: "/r/d"},
			{Type: domain.ActionReplace, Path: "/r/t"},
		},
		Errors:      []error{errors.New("read failed")},
		BytesCopied: 42,
	}

	record := NewCycleRecord("/s", "/r", report, nil)
	if record.Status != domain.CyclePartial {
		t.Errorf("Status = %s, want partial", record.Status)
	}
	if record.Created != 1 || record.Copied != 2 || record.Deleted != 2 || record.Replaced != 1 || record.Errors != 1 {
		t.Errorf("unexpected counts: %+v", record)
	}
	if record.BytesCopied != 42 || !record.StartTime.Equal(started) {
		t.Errorf("unexpected record: %+v", record)
	}

	cancelled := NewCycleRecord("/s", "/r", &domain.CycleReport{}, context.Canceled)
	if cancelled.Status != domain.CycleCancelled {
		t.Errorf("Status = %s, want cancelled", cancelled.Status)
	}

	failed := NewCycleRecord("/s", "/r", &domain.CycleReport{}, domain.ErrAccess)
	if failed.Status != domain.CycleFailed || failed.Error == "" {
		t.Errorf("unexpected failed record: %+v", failed)
	}
}
