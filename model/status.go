package model

// JobStatus is the aggregate status of a job, derived from its pipelines.
type JobStatus int

// job statuses
const (
	JobStatusCreated JobStatus = iota
	JobStatusScheduled
	JobStatusRunning
	JobStatusFailing
	JobStatusFailed
	JobStatusCanceling
	JobStatusCanceled
	JobStatusFinished
)

var jobStatusNames = map[JobStatus]string{
	JobStatusCreated:   "CREATED",
	JobStatusScheduled: "SCHEDULED",
	JobStatusRunning:   "RUNNING",
	JobStatusFailing:   "FAILING",
	JobStatusFailed:    "FAILED",
	JobStatusCanceling: "CANCELING",
	JobStatusCanceled:  "CANCELED",
	JobStatusFinished:  "FINISHED",
}

func (s JobStatus) String() string {
	if name, ok := jobStatusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsEndState tells whether the status is terminal.
func (s JobStatus) IsEndState() bool {
	switch s {
	case JobStatusFailed, JobStatusCanceled, JobStatusFinished:
		return true
	}
	return false
}

var validJobTransitions = map[JobStatus][]JobStatus{
	JobStatusCreated:   {JobStatusScheduled, JobStatusCanceling, JobStatusFailing},
	JobStatusScheduled: {JobStatusRunning, JobStatusCanceling, JobStatusFailing},
	JobStatusRunning:   {JobStatusFinished, JobStatusCanceling, JobStatusFailing},
	JobStatusCanceling: {JobStatusCanceled, JobStatusFailing},
	JobStatusFailing:   {JobStatusFailed},
}

// CanTransitTo tells whether moving from s to next is legal.
func (s JobStatus) CanTransitTo(next JobStatus) bool {
	for _, t := range validJobTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// ParseJobStatus maps the textual form back to a JobStatus. Unknown text maps
// to JobStatusCreated and false.
func ParseJobStatus(text string) (JobStatus, bool) {
	for status, name := range jobStatusNames {
		if name == text {
			return status, true
		}
	}
	return JobStatusCreated, false
}

// PipelineStatus is the status of one pipeline of the physical plan.
type PipelineStatus int

// pipeline statuses
const (
	PipelineStatusCreated PipelineStatus = iota
	PipelineStatusScheduled
	PipelineStatusDeploying
	PipelineStatusRunning
	PipelineStatusFailing
	PipelineStatusFailed
	PipelineStatusCanceling
	PipelineStatusCanceled
	PipelineStatusFinished
)

var pipelineStatusNames = map[PipelineStatus]string{
	PipelineStatusCreated:   "CREATED",
	PipelineStatusScheduled: "SCHEDULED",
	PipelineStatusDeploying: "DEPLOYING",
	PipelineStatusRunning:   "RUNNING",
	PipelineStatusFailing:   "FAILING",
	PipelineStatusFailed:    "FAILED",
	PipelineStatusCanceling: "CANCELING",
	PipelineStatusCanceled:  "CANCELED",
	PipelineStatusFinished:  "FINISHED",
}

func (s PipelineStatus) String() string {
	if name, ok := pipelineStatusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsEndState tells whether the status is terminal.
func (s PipelineStatus) IsEndState() bool {
	switch s {
	case PipelineStatusFailed, PipelineStatusCanceled, PipelineStatusFinished:
		return true
	}
	return false
}

var validPipelineTransitions = map[PipelineStatus][]PipelineStatus{
	PipelineStatusCreated:   {PipelineStatusScheduled, PipelineStatusCanceling, PipelineStatusFailing},
	PipelineStatusScheduled: {PipelineStatusDeploying, PipelineStatusCanceling, PipelineStatusFailing},
	PipelineStatusDeploying: {PipelineStatusRunning, PipelineStatusFinished, PipelineStatusCanceling, PipelineStatusFailing},
	PipelineStatusRunning:   {PipelineStatusFinished, PipelineStatusCanceling, PipelineStatusFailing},
	PipelineStatusFailing:   {PipelineStatusFailed},
	PipelineStatusCanceling: {PipelineStatusCanceled},
}

// CanTransitTo tells whether moving from s to next is legal.
func (s PipelineStatus) CanTransitTo(next PipelineStatus) bool {
	for _, t := range validPipelineTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// ExecutionState is the recorded state of one task group.
type ExecutionState int

// task group execution states
const (
	ExecutionStateCreated ExecutionState = iota
	ExecutionStateScheduled
	ExecutionStateDeploying
	ExecutionStateRunning
	ExecutionStateFinished
	ExecutionStateCanceling
	ExecutionStateCanceled
	ExecutionStateFailed
)

var executionStateNames = map[ExecutionState]string{
	ExecutionStateCreated:   "CREATED",
	ExecutionStateScheduled: "SCHEDULED",
	ExecutionStateDeploying: "DEPLOYING",
	ExecutionStateRunning:   "RUNNING",
	ExecutionStateFinished:  "FINISHED",
	ExecutionStateCanceling: "CANCELING",
	ExecutionStateCanceled:  "CANCELED",
	ExecutionStateFailed:    "FAILED",
}

func (s ExecutionState) String() string {
	if name, ok := executionStateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsEndState tells whether the state is terminal.
func (s ExecutionState) IsEndState() bool {
	switch s {
	case ExecutionStateFinished, ExecutionStateCanceled, ExecutionStateFailed:
		return true
	}
	return false
}

var validExecutionTransitions = map[ExecutionState][]ExecutionState{
	ExecutionStateCreated:   {ExecutionStateScheduled, ExecutionStateCanceled, ExecutionStateFailed},
	ExecutionStateScheduled: {ExecutionStateDeploying, ExecutionStateCanceled, ExecutionStateFailed},
	ExecutionStateDeploying: {ExecutionStateRunning, ExecutionStateCanceling, ExecutionStateCanceled, ExecutionStateFailed},
	ExecutionStateRunning:   {ExecutionStateFinished, ExecutionStateCanceling, ExecutionStateCanceled, ExecutionStateFailed},
	ExecutionStateCanceling: {ExecutionStateCanceled, ExecutionStateFailed},
}

// CanTransitTo tells whether moving from s to next is legal.
func (s ExecutionState) CanTransitTo(next ExecutionState) bool {
	for _, t := range validExecutionTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}
