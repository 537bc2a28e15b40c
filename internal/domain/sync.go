package domain

import "time"

// ActionType represents the type of action applied to the replica
type ActionType string

const (
	ActionMkdir      ActionType = "mkdir"
	ActionCopy       ActionType = "copy"
	ActionDeleteFile ActionType = "delete-file"
	ActionDeleteDir  ActionType = "delete-dir"
	ActionReplace    ActionType = "replace"
)

// Action is a single change applied to the replica during a cycle
type Action struct {
	// Type of action performed
	Type ActionType

	// Path is the absolute replica path acted upon
	Path string

	// Source is the absolute source path (copy and replace only)
	Source string
}

// CycleStatus summarises how a cycle ended
type CycleStatus string

const (
	CycleSuccess   CycleStatus = "success"
	CyclePartial   CycleStatus = "partial"
	CycleFailed    CycleStatus = "failed"
	CycleCancelled CycleStatus = "cancelled"
)

// IsValid checks if the status is a known value
func (s CycleStatus) IsValid() bool {
	switch s {
	case CycleSuccess, CyclePartial, CycleFailed, CycleCancelled:
		return true
	}
	return false
}

// CycleReport is the outcome of one enumerate-reconcile-delete pass
type CycleReport struct {
	Started  time.Time
	Finished time.Time

	// Actions in the order they were applied
	Actions []Action

	// Errors are per-item failures; none of them aborted the cycle
	Errors []error

	// BytesCopied counts file content written to the replica
	BytesCopied int64
}

// Count returns the number of actions of the given type
func (r *CycleReport) Count(t ActionType) int {
	n := 0
	for _, a := range r.Actions {
		if a.Type == t {
			n++
		}
	}
	return n
}

// Status derives the cycle status from the recorded errors
func (r *CycleReport) Status() CycleStatus {
	if len(r.Errors) > 0 {
		return CyclePartial
	}
	return CycleSuccess
}
