package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/afero"

	"github.com/Ning0612/mirrorsync/internal/config"
	"github.com/Ning0612/mirrorsync/internal/lock"
	"github.com/Ning0612/mirrorsync/internal/logger"
	"github.com/Ning0612/mirrorsync/internal/scheduler"
	"github.com/Ning0612/mirrorsync/internal/state"
	"github.com/Ning0612/mirrorsync/internal/watch"
)

// DaemonService runs the sync loop for one replica until cancelled
type DaemonService struct {
	mu        sync.RWMutex
	config    *config.Config
	mirror    *MirrorService
	stateMgr  *state.Manager
	lock      *lock.ReplicaLock
	log       logger.Logger
	scheduler *scheduler.IntervalScheduler
}

// DaemonStatus represents the current daemon status
type DaemonStatus struct {
	Running        bool
	SchedulerStats *scheduler.Status
	LastCycle      *state.CycleRecord
	LastSuccess    *state.CycleRecord

	// LockOwner is the process currently holding the replica, if any
	LockOwner *lock.Owner
}

// NewDaemonService creates a new daemon service from a validated config
func NewDaemonService(cfg *config.Config, log logger.Logger) (*DaemonService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	log = logger.OrNull(log)

	fs := afero.NewOsFs()
	replicaLock, err := lock.New(fs, cfg.LockDir, cfg.Replica)
	if err != nil {
		return nil, fmt.Errorf("failed to create replica lock: %w", err)
	}

	var stateMgr *state.Manager
	if cfg.HistoryDB != "" {
		stateMgr, err = state.NewManager(cfg.HistoryDB)
		if err != nil {
			return nil, fmt.Errorf("failed to create state manager: %w", err)
		}
	}

	mirrorSvc, err := NewMirrorService(cfg, fs, stateMgr, log)
	if err != nil {
		if stateMgr != nil {
			stateMgr.Close()
		}
		return nil, fmt.Errorf("failed to create mirror service: %w", err)
	}

	return &DaemonService{
		config:   cfg,
		mirror:   mirrorSvc,
		stateMgr: stateMgr,
		lock:     replicaLock,
		log:      log,
	}, nil
}

// Run holds the replica lock and runs the sync loop until ctx is cancelled.
// It returns nil on a clean shutdown.
func (d *DaemonService) Run(ctx context.Context) error {
	if err := d.lock.Acquire(d.config.Source); err != nil {
		return fmt.Errorf("failed to lock replica: %w", err)
	}
	defer func() {
		if err := d.lock.Release(); err != nil {
			d.log.Warn("failed to release replica lock", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	schedConfig := scheduler.Config{
		Interval: d.config.Interval,
		Logger:   d.log,
	}

	var watcherDone chan struct{}
	if d.config.Watch {
		w := watch.New(d.config.Source, d.config.Debounce, d.log)
		schedConfig.Trigger = w.Trigger()
		watcherDone = make(chan struct{})
		go func() {
			defer close(watcherDone)
			if err := w.Run(ctx); err != nil {
				d.log.Warn("change watcher stopped, falling back to interval only", "error", err)
			}
		}()
	}

	sched, err := scheduler.NewIntervalScheduler(schedConfig, d.mirror)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	d.mu.Lock()
	if d.scheduler != nil {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.scheduler = sched
	d.mu.Unlock()

	d.log.Info("mirror started",
		"source", d.config.Source,
		"replica", d.config.Replica,
		"interval", d.config.Interval,
		"workers", d.config.Workers,
		"algorithm", d.config.Algorithm,
		"watch", d.config.Watch,
	)

	err = sched.Run(ctx)

	cancel()
	if watcherDone != nil {
		<-watcherDone
	}
	status := d.Status()
	args := []any{"cycles", status.SchedulerStats.TotalRuns}
	if status.LastSuccess != nil {
		args = append(args, "last_success", status.LastSuccess.EndTime)
	}
	d.log.Info("mirror stopped", args...)
	return err
}

// Status returns the current daemon status
func (d *DaemonService) Status() *DaemonStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := &DaemonStatus{}

	if d.scheduler != nil {
		status.SchedulerStats = d.scheduler.Status()
		status.Running = status.SchedulerStats.Running
	}

	if d.stateMgr != nil {
		history, err := d.stateMgr.GetHistory(d.config.Replica, 1)
		if err == nil && len(history) > 0 {
			status.LastCycle = &history[0]
		}
		if last, err := d.stateMgr.GetLastSuccess(d.config.Replica); err == nil {
			status.LastSuccess = last
		}
	}

	if owner, err := d.lock.Owner(); err == nil {
		status.LockOwner = owner
	}

	return status
}

// Close releases all resources
func (d *DaemonService) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stateMgr != nil {
		if err := d.stateMgr.Close(); err != nil {
			return err
		}
		d.stateMgr = nil
	}
	return nil
}
