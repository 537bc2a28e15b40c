package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/Ning0612/mirrorsync/internal/lock"
	"github.com/Ning0612/mirrorsync/internal/testutil"
)

func TestNewDaemonService(t *testing.T) {
	cfg := testConfig(t)

	daemon, err := NewDaemonService(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create daemon service: %v", err)
	}
	defer daemon.Close()

	if daemon.mirror == nil {
		t.Error("Mirror service is nil")
	}

	if daemon.stateMgr == nil {
		t.Error("State manager is nil")
	}

	if daemon.Status().Running {
		t.Error("Daemon should not be running before Run")
	}
}

func TestNewDaemonService_NilConfig(t *testing.T) {
	_, err := NewDaemonService(nil, nil)
	if err == nil {
		t.Error("Expected error for nil config, got nil")
	}
}

func TestNewDaemonService_HistoryDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.HistoryDB = ""

	daemon, err := NewDaemonService(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create daemon service: %v", err)
	}
	defer daemon.Close()

	if daemon.stateMgr != nil {
		t.Error("State manager should be nil when history is disabled")
	}
	if daemon.Status().LastCycle != nil {
		t.Error("No cycle should be reported without history")
	}
}

func startDaemon(t *testing.T, daemon *DaemonService) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- daemon.Run(ctx) }()
	return cancel, done
}

func waitStopped(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestDaemonService_RunMirrorsAndStops(t *testing.T) {
	cfg := testConfig(t)
	testutil.WriteTree(t, cfg.Source, map[string]string{
		"docs/readme.txt": "read me",
		"empty":           testutil.Dir,
	})

	daemon, err := NewDaemonService(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create daemon service: %v", err)
	}
	defer daemon.Close()

	cancel, done := startDaemon(t, daemon)

	testutil.AssertEventually(t, 5*time.Second, func() bool {
		status := daemon.Status()
		return status.SchedulerStats != nil && status.SchedulerStats.SuccessfulRuns >= 1
	}, "first cycle did not complete")

	if got, want := testutil.ReadTree(t, cfg.Replica), testutil.ReadTree(t, cfg.Source); !reflect.DeepEqual(got, want) {
		t.Errorf("replica = %v, want %v", got, want)
	}

	replicaLock, err := lock.New(afero.NewOsFs(), cfg.LockDir, cfg.Replica)
	if err != nil {
		t.Fatalf("lock.New failed: %v", err)
	}
	if owner, _ := replicaLock.Owner(); owner == nil {
		t.Error("replica should be locked while the daemon runs")
	}

	status := daemon.Status()
	if status.LastCycle == nil || status.LastSuccess == nil {
		t.Error("Expected last cycle and last success to be recorded")
	}
	if status.LockOwner == nil || status.LockOwner.PID != os.Getpid() || status.LockOwner.Source != cfg.Source {
		t.Errorf("LockOwner = %+v, want this process mirroring %s", status.LockOwner, cfg.Source)
	}

	cancel()
	waitStopped(t, done)

	if owner, _ := replicaLock.Owner(); owner != nil {
		t.Error("replica lock should be released after shutdown")
	}
	if status := daemon.Status(); status.Running || status.LockOwner != nil {
		t.Errorf("Status after shutdown = %+v, want stopped and unlocked", status)
	}
}

func TestDaemonService_SecondInstanceRejected(t *testing.T) {
	cfg := testConfig(t)

	first, err := NewDaemonService(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create daemon service: %v", err)
	}
	defer first.Close()

	cancel, done := startDaemon(t, first)
	testutil.AssertEventually(t, 5*time.Second, func() bool {
		status := first.Status()
		return status.SchedulerStats != nil && status.SchedulerStats.TotalRuns >= 1
	})

	second, err := NewDaemonService(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create daemon service: %v", err)
	}
	defer second.Close()

	err = second.Run(context.Background())
	if !errors.Is(err, lock.ErrHeld) {
		t.Errorf("expected lock error, got %v", err)
	}

	cancel()
	waitStopped(t, done)
}

func TestDaemonService_WatchWakesEarly(t *testing.T) {
	cfg := testConfig(t)
	cfg.Interval = time.Hour
	cfg.Watch = true
	cfg.Debounce = 50 * time.Millisecond

	daemon, err := NewDaemonService(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create daemon service: %v", err)
	}
	defer daemon.Close()

	cancel, done := startDaemon(t, daemon)
	defer func() {
		cancel()
		waitStopped(t, done)
	}()

	testutil.AssertEventually(t, 5*time.Second, func() bool {
		status := daemon.Status()
		return status.SchedulerStats != nil && status.SchedulerStats.TotalRuns >= 1
	})
	// let the watcher register the tree
	time.Sleep(200 * time.Millisecond)

	testutil.WriteTree(t, cfg.Source, map[string]string{"new.txt": "fresh"})

	testutil.AssertEventually(t, 5*time.Second, func() bool {
		data, err := os.ReadFile(filepath.Join(cfg.Replica, "new.txt"))
		return err == nil && string(data) == "fresh"
	}, "change was not mirrored before the interval elapsed")
}
