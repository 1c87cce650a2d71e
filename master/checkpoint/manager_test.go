package checkpoint

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"

	"github.com/voidking/incubator-seatunnel/model"
	"github.com/voidking/incubator-seatunnel/pkg/autoid"
	derror "github.com/voidking/incubator-seatunnel/pkg/errors"
	"github.com/voidking/incubator-seatunnel/pkg/promise"
)

type recordingReporter struct {
	mu    sync.Mutex
	calls []model.PipelineID
}

func (r *recordingReporter) HandleCheckpointError(pipelineID model.PipelineID, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, pipelineID)
}

func (r *recordingReporter) reported() []model.PipelineID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.PipelineID(nil), r.calls...)
}

func newTestManager(reporter CheckpointErrorReporter) *Manager {
	plans := map[model.PipelineID]*Plan{
		1: {PipelineID: 1},
		2: {PipelineID: 2},
	}
	return NewManager(7, false, reporter, plans, DefaultConfig(), autoid.NewUUIDAllocator())
}

func TestSavepointRoundTrip(t *testing.T) {
	t.Parallel()

	mgr := newTestManager(&recordingReporter{})
	futures := mgr.TriggerSavepoints()
	require.Len(t, futures, 2)
	require.Equal(t, 2, mgr.PendingSavepoints())

	require.NoError(t, mgr.AcknowledgeSavepoint(1, CompletedCheckpoint{}))
	require.NoError(t, mgr.AcknowledgeSavepoint(2, CompletedCheckpoint{}))
	require.Equal(t, 0, mgr.PendingSavepoints())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := promise.AllOf(futures...).Await(ctx)
	require.NoError(t, err)

	first, err := futures[0].Value()
	require.NoError(t, err)
	require.Equal(t, model.JobID(7), first.JobID)
	require.Equal(t, model.PipelineID(1), first.PipelineID)
	require.True(t, first.IsSavepoint)
	require.NotEmpty(t, first.CheckpointID)
	require.False(t, first.CompletedTime.IsZero())
}

func TestTriggerTwiceKeepsInflightSavepoint(t *testing.T) {
	t.Parallel()

	mgr := newTestManager(&recordingReporter{})
	first := mgr.TriggerSavepoints()
	second := mgr.TriggerSavepoints()
	require.Equal(t, 2, mgr.PendingSavepoints())

	require.NoError(t, mgr.AcknowledgeSavepoint(1, CompletedCheckpoint{}))
	<-first[0].Done()
	<-second[0].Done()
	got1, err := first[0].Value()
	require.NoError(t, err)
	got2, err := second[0].Value()
	require.NoError(t, err)
	require.Equal(t, got1.CheckpointID, got2.CheckpointID)
}

func TestAcknowledgeUnknownPipeline(t *testing.T) {
	t.Parallel()

	mgr := newTestManager(&recordingReporter{})
	err := mgr.AcknowledgeSavepoint(99, CompletedCheckpoint{})
	require.Error(t, err)
	require.True(t, derror.ErrPendingCheckpointNotFound.Equal(err))

	// no savepoint in flight for a known pipeline either
	err = mgr.AcknowledgeSavepoint(1, CompletedCheckpoint{})
	require.True(t, derror.ErrPendingCheckpointNotFound.Equal(err))
}

func TestReportCheckpointError(t *testing.T) {
	t.Parallel()

	reporter := &recordingReporter{}
	mgr := newTestManager(reporter)
	futures := mgr.TriggerSavepoints()

	cause := errors.New("barrier timeout")
	mgr.ReportCheckpointError(2, cause)
	require.Equal(t, []model.PipelineID{2}, reporter.reported())
	require.Equal(t, 1, mgr.PendingSavepoints())

	// the in flight savepoint of the failed pipeline fails with the cause
	<-futures[1].Done()
	_, err := futures[1].Value()
	require.Error(t, err)
	require.Contains(t, err.Error(), "barrier timeout")

	// errors on pipelines without a pending savepoint still reach the reporter
	mgr.ReportCheckpointError(1, cause)
	require.Equal(t, []model.PipelineID{2, 1}, reporter.reported())
}
