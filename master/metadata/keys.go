package metadata

import (
	"fmt"

	"github.com/voidking/incubator-seatunnel/model"
)

const (
	// KeyBase is the common prefix of engine keys in the shared store.
	KeyBase = "/stengine"

	slotProfilesKey = "/slot-profiles"
	runningStateKey = "/running-state"
	runningTsKey    = "/running-ts"
	jobHistoryKey   = "/job-history"
)

// SlotProfilesKey is the slot assignment table entry of one pipeline.
func SlotProfilesKey(loc model.PipelineLocation) string {
	return fmt.Sprintf("%s%s/%d/%d", KeyBase, slotProfilesKey, loc.JobID, loc.PipelineID)
}

// SlotProfilesJobPrefix covers every slot assignment entry of one job.
func SlotProfilesJobPrefix(jobID model.JobID) string {
	return fmt.Sprintf("%s%s/%d/", KeyBase, slotProfilesKey, jobID)
}

// RunningStateKey is the running-state table entry of one job.
func RunningStateKey(jobID model.JobID) string {
	return fmt.Sprintf("%s%s/%d", KeyBase, runningStateKey, jobID)
}

// RunningTimestampKey is the last-update timestamp of one job.
func RunningTimestampKey(jobID model.JobID) string {
	return fmt.Sprintf("%s%s/%d", KeyBase, runningTsKey, jobID)
}

// JobHistoryKey is the archived metrics entry of one job.
func JobHistoryKey(jobID model.JobID) string {
	return fmt.Sprintf("%s%s/%d", KeyBase, jobHistoryKey, jobID)
}
