package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Ning0612/mirrorsync/internal/logger"
)

// IntervalScheduler runs a cycle immediately, then sleeps for the configured
// interval after each cycle completes. Cycles never overlap.
type IntervalScheduler struct {
	config Config
	runner CycleRunner
	log    logger.Logger

	// Runtime state
	mu          sync.RWMutex
	running     bool
	stopped     bool      // Track if stopped to prevent restart
	state       State
	stopOnce    sync.Once // Ensure Stop() is idempotent
	closeOnce   sync.Once // Ensure stoppedChan is closed exactly once
	stopChan    chan struct{}
	stoppedChan chan struct{}

	// Statistics
	stats struct {
		lastRunTime    time.Time
		nextRunTime    time.Time
		totalRuns      int
		successfulRuns int
		failedRuns     int
		lastError      string
	}
}

// NewIntervalScheduler creates a new interval-based scheduler
func NewIntervalScheduler(config Config, runner CycleRunner) (*IntervalScheduler, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", config.Interval)
	}

	if runner == nil {
		return nil, fmt.Errorf("cycle runner cannot be nil")
	}

	return &IntervalScheduler{
		config:      config,
		runner:      runner,
		log:         logger.OrNull(config.Logger),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}, nil
}

// Run executes the loop on the calling goroutine. It returns nil once ctx is
// cancelled or Stop is called.
func (s *IntervalScheduler) Run(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	s.run(ctx)
	return nil
}

// Start begins the scheduling loop in a goroutine
func (s *IntervalScheduler) Start(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	go s.run(ctx)
	return nil
}

func (s *IntervalScheduler) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	if s.stopped {
		return fmt.Errorf("scheduler cannot be restarted after stop")
	}

	s.running = true
	s.state = StateIdle
	s.stats.nextRunTime = time.Now()
	return nil
}

// run is the main scheduling loop
func (s *IntervalScheduler) run(parent context.Context) {
	// Ensure stoppedChan is closed exactly once and stopped flag is set
	defer s.closeOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.running = false
		s.state = StateStopped
		s.mu.Unlock()
		close(s.stoppedChan)
	})

	// A Stop request also interrupts the cycle in progress
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		s.executeCycle(ctx)
		if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		s.state = StateSleeping
		s.stats.nextRunTime = time.Now().Add(s.config.Interval)
		s.mu.Unlock()

		timer := time.NewTimer(s.config.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case <-s.config.Trigger:
			timer.Stop()
			s.log.Debug("cycle triggered early")
		}
	}
}

// executeCycle runs one cycle and records its outcome
func (s *IntervalScheduler) executeCycle(ctx context.Context) {
	s.mu.Lock()
	s.stats.lastRunTime = time.Now()
	s.stats.totalRuns++
	s.mu.Unlock()

	err := s.invoke(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// Interrupted by shutdown, not a failure
		return
	}

	// Update statistics
	s.mu.Lock()
	if err != nil {
		s.stats.failedRuns++
		s.stats.lastError = err.Error()
	} else {
		s.stats.successfulRuns++
		s.stats.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("cycle failed, retrying after interval", "error", err, "interval", s.config.Interval)
	}
}

// invoke calls the runner, converting a panic into an error so the loop
// keeps going
func (s *IntervalScheduler) invoke(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
		}
	}()

	s.setState(StateEnumerating)
	return s.runner.RunCycle(ctx, s.setState)
}

func (s *IntervalScheduler) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Stop gracefully stops the scheduler, interrupting a cycle in progress
func (s *IntervalScheduler) Stop() error {
	s.mu.RLock()
	if !s.running {
		s.mu.RUnlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.mu.RUnlock()

	// Use sync.Once to ensure stop channel is closed only once
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})

	// Wait for scheduler to stop
	<-s.stoppedChan

	// Mark as stopped to prevent restart
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	return nil
}

// Done is closed once the loop has exited
func (s *IntervalScheduler) Done() <-chan struct{} {
	return s.stoppedChan
}

// Status returns the current scheduler status
func (s *IntervalScheduler) Status() *Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &Status{
		Running:        s.running,
		State:          s.state,
		LastRunTime:    s.stats.lastRunTime,
		NextRunTime:    s.stats.nextRunTime,
		TotalRuns:      s.stats.totalRuns,
		SuccessfulRuns: s.stats.successfulRuns,
		FailedRuns:     s.stats.failedRuns,
		LastError:      s.stats.lastError,
	}
}
