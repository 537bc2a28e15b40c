package mirror

import (
	"errors"
	"sync"
	"time"

	"github.com/Ning0612/mirrorsync/internal/domain"
	"github.com/Ning0612/mirrorsync/internal/logger"
)

// Cycle holds the state scoped to one sync cycle: the processed set and the
// report being built. It is discarded when the cycle ends.
type Cycle struct {
	log       logger.Logger
	processed *ProcessedSet

	mu     sync.Mutex
	report domain.CycleReport
}

// NewCycle starts a new cycle logging to log
func NewCycle(log logger.Logger) *Cycle {
	return &Cycle{
		log:       logger.OrNull(log),
		processed: NewProcessedSet(),
		report:    domain.CycleReport{Started: time.Now()},
	}
}

// Report returns a copy of the report built so far
func (c *Cycle) Report() *domain.CycleReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.report
	r.Actions = append([]domain.Action(nil), c.report.Actions...)
	r.Errors = append([]error(nil), c.report.Errors...)
	return &r
}

func (c *Cycle) finish() *domain.CycleReport {
	c.mu.Lock()
	c.report.Finished = time.Now()
	c.mu.Unlock()
	return c.Report()
}

// record appends an action, marks its path processed and logs it
func (c *Cycle) record(action domain.Action, bytes int64) {
	c.processed.Add(action.Path)

	c.mu.Lock()
	c.report.Actions = append(c.report.Actions, action)
	c.report.BytesCopied += bytes
	c.mu.Unlock()

	switch action.Type {
	case domain.ActionMkdir:
		c.log.Info("directory created", "path", action.Path)
	case domain.ActionCopy:
		c.log.Info("file copied", "source", action.Source, "destination", action.Path, "bytes", bytes)
	case domain.ActionDeleteFile:
		c.log.Info("file deleted", "path", action.Path)
	case domain.ActionDeleteDir:
		c.log.Info("directory deleted", "path", action.Path)
	case domain.ActionReplace:
		c.log.Info("entry replaced", "path", action.Path, "source", action.Source)
	}
}

// fail records a per-item error. Cancellation is not an error and is dropped.
func (c *Cycle) fail(err error) {
	if err == nil || domain.IsCancellation(err) {
		return
	}

	c.mu.Lock()
	c.report.Errors = append(c.report.Errors, err)
	c.mu.Unlock()

	var se *domain.SyncError
	if errors.As(err, &se) {
		c.log.Error("sync error", "kind", se.Kind, "op", se.Op, "path", se.Path, "error", se.Err)
		return
	}
	c.log.Error("sync error", "error", err)
}
