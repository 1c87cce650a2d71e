package model

import "fmt"

// PipelineID identifies a pipeline within one job.
type PipelineID int32

// TaskGroupID identifies a deployable task group. Ids are job scoped, the job
// id occupies the high 32 bits.
type TaskGroupID int64

// PipelineLocation is the cluster-wide identity of a pipeline.
type PipelineLocation struct {
	JobID      JobID      `json:"job_id"`
	PipelineID PipelineID `json:"pipeline_id"`
}

func (l PipelineLocation) String() string {
	return fmt.Sprintf("%d/%d", l.JobID, l.PipelineID)
}

// TaskGroupLocation is the cluster-wide identity of a task group.
type TaskGroupLocation struct {
	JobID       JobID       `json:"job_id"`
	PipelineID  PipelineID  `json:"pipeline_id"`
	TaskGroupID TaskGroupID `json:"task_group_id"`
}

// PipelineLocation returns the location of the owning pipeline.
func (l TaskGroupLocation) PipelineLocation() PipelineLocation {
	return PipelineLocation{JobID: l.JobID, PipelineID: l.PipelineID}
}

func (l TaskGroupLocation) String() string {
	return fmt.Sprintf("%d/%d/%d", l.JobID, l.PipelineID, l.TaskGroupID)
}

// SlotProfile is an execution slot granted on a worker.
type SlotProfile struct {
	Worker WorkerAddress `json:"worker"`
	SlotID int32         `json:"slot_id"`
}

// TaskExecutionState is a worker's report about one task group.
type TaskExecutionState struct {
	Location TaskGroupLocation `json:"location"`
	State    ExecutionState    `json:"state"`
	Error    string            `json:"error,omitempty"`
}
