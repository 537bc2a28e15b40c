package scheduler

import (
	"context"
	"time"

	"github.com/Ning0612/mirrorsync/internal/logger"
)

// Scheduler defines the interface for sync schedulers
type Scheduler interface {
	// Run executes cycles until ctx is cancelled or Stop is called
	Run(ctx context.Context) error

	// Start runs the scheduling loop in the background
	Start(ctx context.Context) error

	// Stop gracefully stops the scheduler
	Stop() error

	// Status returns the current scheduler status
	Status() *Status
}

// State is the phase the sync loop is in
type State int

const (
	StateIdle State = iota
	StateEnumerating
	StateReconciling
	StateSleeping
	StateStopped
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEnumerating:
		return "enumerating"
	case StateReconciling:
		return "reconciling"
	case StateSleeping:
		return "sleeping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Status represents the current state of a scheduler
type Status struct {
	Running        bool
	State          State
	LastRunTime    time.Time
	NextRunTime    time.Time
	TotalRuns      int
	SuccessfulRuns int
	FailedRuns     int
	LastError      string
}

// Config contains scheduler configuration
type Config struct {
	// Interval specifies the pause between the end of one cycle and the
	// start of the next
	Interval time.Duration

	// Trigger, when set, wakes a sleeping loop before the interval elapses
	Trigger <-chan struct{}

	Logger logger.Logger
}

// CycleRunner is the interface that schedulers use to execute sync cycles
type CycleRunner interface {
	// RunCycle executes one cycle, reporting phase changes through phase
	RunCycle(ctx context.Context, phase func(State)) error
}

// CycleRunnerFunc adapts a function to CycleRunner
type CycleRunnerFunc func(ctx context.Context, phase func(State)) error

// RunCycle implements CycleRunner
func (f CycleRunnerFunc) RunCycle(ctx context.Context, phase func(State)) error {
	return f(ctx, phase)
}
