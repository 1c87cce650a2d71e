package master

import (
	"github.com/voidking/incubator-seatunnel/model"
)

// Lifecycle is the coarse run state of a JobMaster. It moves one way:
// FRESH -> SCHEDULING -> RUNNING and then into exactly one terminal state,
// with RESTORING taking the place of SCHEDULING when the master resumes an
// interrupted job. Every liveness check the master performs reads this
// value atomically.
type Lifecycle int32

const (
	LifecycleFresh Lifecycle = iota
	LifecycleScheduling
	LifecycleRestoring
	LifecycleRunning
	LifecycleFinished
	LifecycleFailed
	LifecycleCanceled
)

// Terminal reports whether the lifecycle can no longer advance.
func (l Lifecycle) Terminal() bool {
	switch l {
	case LifecycleFinished, LifecycleFailed, LifecycleCanceled:
		return true
	}
	return false
}

func (l Lifecycle) String() string {
	switch l {
	case LifecycleFresh:
		return "FRESH"
	case LifecycleScheduling:
		return "SCHEDULING"
	case LifecycleRestoring:
		return "RESTORING"
	case LifecycleRunning:
		return "RUNNING"
	case LifecycleFinished:
		return "FINISHED"
	case LifecycleFailed:
		return "FAILED"
	case LifecycleCanceled:
		return "CANCELED"
	}
	return "UNKNOWN"
}

// terminalLifecycle maps a job end status to its lifecycle counterpart.
func terminalLifecycle(status model.JobStatus) Lifecycle {
	switch status {
	case model.JobStatusFinished:
		return LifecycleFinished
	case model.JobStatusCanceled:
		return LifecycleCanceled
	default:
		return LifecycleFailed
	}
}
