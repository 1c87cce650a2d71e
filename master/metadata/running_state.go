package metadata

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/pingcap/errors"

	"github.com/voidking/incubator-seatunnel/model"
	"github.com/voidking/incubator-seatunnel/pkg/clock"
	derror "github.com/voidking/incubator-seatunnel/pkg/errors"
	"github.com/voidking/incubator-seatunnel/pkg/statestore"
)

// RunningJobState is one entry of the shared running-state table. A successor
// coordinator uses it to detect jobs left running when a master fails.
type RunningJobState struct {
	JobID     model.JobID `json:"job_id"`
	Status    string      `json:"status"`
	UpdatedAt int64       `json:"updated_at"`
}

// RunningStateClient is the typed view of the running-state and timestamp
// tables.
type RunningStateClient struct {
	kv  statestore.KV
	clk clock.Clock
}

// NewRunningStateClient creates a client over the shared store.
func NewRunningStateClient(kv statestore.KV, clk clock.Clock) *RunningStateClient {
	return &RunningStateClient{kv: kv, clk: clk}
}

// MarkJobState records the job's current status and refreshes its timestamp.
func (c *RunningStateClient) MarkJobState(ctx context.Context, jobID model.JobID, status model.JobStatus) error {
	now := c.clk.Now().UnixMilli()
	state := RunningJobState{
		JobID:     jobID,
		Status:    status.String(),
		UpdatedAt: now,
	}
	data, err := json.Marshal(state)
	if err != nil {
		return errors.Trace(err)
	}
	if err := c.kv.Put(ctx, RunningStateKey(jobID), string(data)); err != nil {
		return errors.Trace(err)
	}
	return c.kv.Put(ctx, RunningTimestampKey(jobID), strconv.FormatInt(now, 10))
}

// JobState returns the job's entry, or nil when the table has none.
func (c *RunningStateClient) JobState(ctx context.Context, jobID model.JobID) (*RunningJobState, error) {
	value, err := c.kv.Get(ctx, RunningStateKey(jobID))
	if err != nil {
		if derror.ErrStoreEntryNotFound.Equal(err) {
			return nil, nil
		}
		return nil, errors.Trace(err)
	}
	state := &RunningJobState{}
	if err := json.Unmarshal([]byte(value), state); err != nil {
		return nil, derror.WrapError(derror.ErrStoreOpFail, err)
	}
	return state, nil
}

// Touch refreshes the job's timestamp without changing its recorded status.
func (c *RunningStateClient) Touch(ctx context.Context, jobID model.JobID) error {
	now := c.clk.Now().UnixMilli()
	return c.kv.Put(ctx, RunningTimestampKey(jobID), strconv.FormatInt(now, 10))
}

// Clear removes the job's running-state entries. Called during job cleanup so
// a successor does not resurrect a finished job.
func (c *RunningStateClient) Clear(ctx context.Context, jobID model.JobID) error {
	if err := c.kv.Delete(ctx, RunningStateKey(jobID)); err != nil {
		return errors.Trace(err)
	}
	return c.kv.Delete(ctx, RunningTimestampKey(jobID))
}
