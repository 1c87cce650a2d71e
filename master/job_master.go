package master

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/tiflow/dm/pkg/log"
	"github.com/pingcap/tiflow/pkg/workerpool"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/voidking/incubator-seatunnel/client"
	"github.com/voidking/incubator-seatunnel/config"
	"github.com/voidking/incubator-seatunnel/dag"
	"github.com/voidking/incubator-seatunnel/master/checkpoint"
	"github.com/voidking/incubator-seatunnel/master/jobhistory"
	"github.com/voidking/incubator-seatunnel/master/metadata"
	"github.com/voidking/incubator-seatunnel/master/plan"
	"github.com/voidking/incubator-seatunnel/master/resourcemanager"
	"github.com/voidking/incubator-seatunnel/master/scheduler"
	"github.com/voidking/incubator-seatunnel/model"
	"github.com/voidking/incubator-seatunnel/pkg/autoid"
	"github.com/voidking/incubator-seatunnel/pkg/clock"
	derror "github.com/voidking/incubator-seatunnel/pkg/errors"
	"github.com/voidking/incubator-seatunnel/pkg/promise"
	"github.com/voidking/incubator-seatunnel/pkg/retry"
	"github.com/voidking/incubator-seatunnel/pkg/statestore"
	"github.com/voidking/incubator-seatunnel/plugin"
)

const (
	// stateWriteTimeout bounds the background state store writes the master
	// performs outside of any caller's context.
	stateWriteTimeout = 5 * time.Second
)

// Deps bundles the process wide collaborators a JobMaster needs. The struct
// is passed by value, so JobManager can stamp per job fields (Metrics) on a
// copy without touching the shared one.
type Deps struct {
	KV        statestore.KV
	Resources resourcemanager.ResourceManager
	Operator  client.TaskOperator
	History   *jobhistory.Store
	// Pool runs the master's async work. NOTE: the pool is owned by the
	// caller, which must have it running before Init.
	Pool      workerpool.AsyncPool
	ServerCfg *config.Config
	Clock     clock.Clock
	Metrics   *Metrics
}

func (d *Deps) fillDefaults() {
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	if d.ServerCfg == nil {
		d.ServerCfg = config.NewConfig()
	}
}

// JobMaster drives one job through its whole lifetime: it decodes the job
// definition, builds the physical plan, schedules it onto workers, reacts to
// task state reports and checkpoint errors, and settles the job's final
// result exactly once.
type JobMaster struct {
	raw  []byte
	deps Deps

	info          *model.JobImmutableInfo
	loader        *plugin.Loader
	logicalDAG    *dag.LogicalDAG
	physicalPlan  *plan.PhysicalPlan
	checkpointMgr *checkpoint.Manager
	scheduler     scheduler.JobScheduler

	slotClient    *metadata.SlotProfileClient
	runningStates *metadata.RunningStateClient

	initialized *atomic.Bool
	lifecycle   *atomic.Int32
	interrupted *atomic.Bool
	scheduleEnd *promise.Promise[struct{}]
	jobEnd      *promise.Promise[model.JobResult]

	// historyMu serializes this master's read-merge-write archive updates.
	// Concurrent pipeline finishes of the same job would otherwise lose
	// each other's metrics.
	historyMu sync.Mutex

	dagInfoOnce sync.Once
	dagInfo     *model.JobDAGInfo
}

// NewJobMaster wraps a raw job definition. The master does nothing until
// Init decodes it and builds the plan.
func NewJobMaster(raw []byte, deps Deps) *JobMaster {
	deps.fillDefaults()
	return &JobMaster{
		raw:           raw,
		deps:          deps,
		slotClient:    metadata.NewSlotProfileClient(deps.KV),
		runningStates: metadata.NewRunningStateClient(deps.KV, deps.Clock),
		initialized:   atomic.NewBool(false),
		lifecycle:     atomic.NewInt32(int32(LifecycleFresh)),
		interrupted:   atomic.NewBool(false),
		scheduleEnd:   promise.NewPromise[struct{}](),
		jobEnd:        promise.NewPromise[model.JobResult](),
	}
}

// Init decodes the job definition, resolves its plugins, merges the
// checkpoint config, and builds the physical plan and its checkpoint
// coordinator. initTimestamp is the master's startup time in unix millis and
// is recorded in the plan for diagnostics.
func (jm *JobMaster) Init(ctx context.Context, initTimestamp int64) error {
	info, err := model.DecodeJobImmutableInfo(jm.raw)
	if err != nil {
		return errors.Trace(err)
	}
	jm.info = info

	jm.loader = plugin.NewLoader(info.JobID, info.PluginJarURLs)
	logicalDAG, err := dag.DecodeLogicalDAG(info.JobID, info.LogicalGraph, jm.loader)
	if err != nil {
		return errors.Trace(err)
	}
	jm.logicalDAG = logicalDAG

	chkCfg, err := checkpoint.MergeEnvAndEngineConfig(jm.deps.ServerCfg.Checkpoint, info.EnvOptions)
	if err != nil {
		return errors.Trace(err)
	}

	recorder := &runningStateRecorder{
		jobID:   info.JobID,
		states:  jm.runningStates,
		metrics: jm.deps.Metrics,
	}
	physicalPlan, chkPlans, err := plan.FromLogicalDAG(logicalDAG, info, initTimestamp, autoid.NewIDAllocator(int64(info.JobID)), recorder)
	if err != nil {
		return errors.Trace(err)
	}
	jm.physicalPlan = physicalPlan
	physicalPlan.SetOwner(jm)

	jm.checkpointMgr = checkpoint.NewManager(info.JobID, info.StartWithSavepoint, jm, chkPlans, chkCfg, autoid.NewUUIDAllocator())
	jm.scheduler = scheduler.NewPipelineBaseScheduler(physicalPlan, jm.deps.Resources, jm.deps.Operator, jm, jm.deps.Pool)

	jm.wireCompletion()
	jm.initialized.Store(true)
	jm.deps.Metrics.observePipelines(len(physicalPlan.Pipelines()))
	log.L().Info("job master initialized",
		zap.Int64("job-id", int64(info.JobID)),
		zap.String("job-name", info.Name),
		zap.Int("pipelines", len(physicalPlan.Pipelines())),
		zap.Int64("init-timestamp", initTimestamp),
		zap.Int64("checkpoint-interval-ms", chkCfg.CheckpointInterval))
	return nil
}

// wireCompletion bridges the plan's completion future to the master's own.
// A Failing end state is converted to Failed here, after the job's running
// state entry has been cleaned, so that the conversion is the last write.
func (jm *JobMaster) wireCompletion() {
	jm.physicalPlan.CompletionFuture().WhenComplete(func(result model.JobResult, err error) {
		if err != nil {
			log.L().Warn("job plan completion failed",
				zap.Int64("job-id", int64(jm.info.JobID)),
				log.ShortError(err))
			jm.lifecycle.Store(int32(LifecycleFailed))
			jm.jobEnd.Fail(errors.Trace(err))
			return
		}
		if result.Status == model.JobStatusFailing {
			jm.cleanJob()
			if !jm.physicalPlan.UpdateJobState(model.JobStatusFailing, model.JobStatusFailed) {
				log.L().Warn("failing job left its failing state before conversion",
					zap.Int64("job-id", int64(jm.info.JobID)),
					zap.Stringer("status", jm.physicalPlan.JobStatus()))
			}
		}
		finalStatus := jm.physicalPlan.JobStatus()
		jm.lifecycle.Store(int32(terminalLifecycle(finalStatus)))
		log.L().Info("job reached end state",
			zap.Int64("job-id", int64(jm.info.JobID)),
			zap.Stringer("status", finalStatus),
			zap.String("error", result.Error))
		jm.jobEnd.Complete(model.JobResult{Status: finalStatus, Error: result.Error})
	})
}

// cleanJob removes the job's running state entry from the store. Failures
// are logged and tolerated, a stale entry only delays restore detection.
func (jm *JobMaster) cleanJob() {
	ctx, cancel := context.WithTimeout(context.Background(), stateWriteTimeout)
	defer cancel()
	if err := jm.runningStates.Clear(ctx, jm.info.JobID); err != nil {
		log.L().Warn("clean job running state failed",
			zap.Int64("job-id", int64(jm.info.JobID)),
			log.ShortError(err))
	}
}

// Run drives the job to its end state and blocks until it settles. A fresh
// master advances FRESH -> SCHEDULING -> RUNNING; a restored one goes
// RESTORING -> RUNNING directly, its pipelines are rescheduled individually.
// The returned result carries the job's end state; the error is non-nil only
// when the master was interrupted or the wait context expired.
func (jm *JobMaster) Run(ctx context.Context) (model.JobResult, error) {
	if !jm.initialized.Load() {
		return model.JobResult{}, derror.ErrJobMasterNotInitialized.GenWithStackByArgs()
	}
	if jm.advanceLifecycle(LifecycleRestoring, LifecycleRunning) {
		jm.scheduleEnd.Complete(struct{}{})
	} else if jm.advanceLifecycle(LifecycleFresh, LifecycleScheduling) {
		if err := jm.scheduler.StartScheduling(ctx); err != nil {
			// Stay in SCHEDULING; the cancel below settles the terminal
			// state through the completion wiring.
			log.L().Error("job scheduling failed, canceling the job",
				zap.Int64("job-id", int64(jm.info.JobID)),
				log.ShortError(err))
			jm.scheduleEnd.Fail(errors.Trace(err))
			jm.CancelJob()
		} else {
			jm.scheduleEnd.Complete(struct{}{})
			jm.advanceLifecycle(LifecycleScheduling, LifecycleRunning)
		}
	}
	return jm.jobEnd.Future().Await(ctx)
}

// CompletionFuture resolves when the job reaches an end state.
func (jm *JobMaster) CompletionFuture() *promise.Future[model.JobResult] {
	return jm.jobEnd.Future()
}

// CancelJob requests a cooperative cancel of the whole job. Safe to call at
// any point and idempotent; a canceled job never needs restore.
func (jm *JobMaster) CancelJob() {
	jm.physicalPlan.CancelJob()
}

// Interrupt abandons the job without driving it to an end state, used when
// the server shuts down while jobs are in flight. The lifecycle is left
// where it was, so the job stays restorable.
func (jm *JobMaster) Interrupt() {
	jm.interrupted.Store(true)
	jm.jobEnd.Cancel()
}

// MarkRestore moves a fresh master into RESTORING: Run skips the fresh
// scheduling pass and the checkpoint coordinator starts from the latest
// completed checkpoint.
func (jm *JobMaster) MarkRestore() {
	jm.advanceLifecycle(LifecycleFresh, LifecycleRestoring)
}

// Lifecycle returns the master's current lifecycle state.
func (jm *JobMaster) Lifecycle() Lifecycle {
	return Lifecycle(jm.lifecycle.Load())
}

func (jm *JobMaster) advanceLifecycle(from, to Lifecycle) bool {
	return jm.lifecycle.CAS(int32(from), int32(to))
}

// IsRunning reports whether the job is still in flight: the lifecycle has
// not reached a terminal state and the master was not interrupted.
func (jm *JobMaster) IsRunning() bool {
	return !jm.interrupted.Load() && !jm.Lifecycle().Terminal()
}

// JobID returns the job's id. Only valid after Init.
func (jm *JobMaster) JobID() model.JobID {
	return jm.info.JobID
}

// JobStatus returns the job's current status.
func (jm *JobMaster) JobStatus() model.JobStatus {
	return jm.physicalPlan.JobStatus()
}

// PhysicalPlan exposes the job's plan, mainly for status queries.
func (jm *JobMaster) PhysicalPlan() *plan.PhysicalPlan {
	return jm.physicalPlan
}

// CheckpointConfig returns the job's resolved checkpoint config.
func (jm *JobMaster) CheckpointConfig() checkpoint.Config {
	return jm.checkpointMgr.Config()
}

// CheckpointManager exposes the job's checkpoint coordinator.
func (jm *JobMaster) CheckpointManager() *checkpoint.Manager {
	return jm.checkpointMgr
}

// ResourceManager exposes the cluster resource manager the job draws from.
func (jm *JobMaster) ResourceManager() resourcemanager.ResourceManager {
	return jm.deps.Resources
}

// PluginLoader exposes the job's connector plugin loader.
func (jm *JobMaster) PluginLoader() *plugin.Loader {
	return jm.loader
}

// ImmutableInfo returns the decoded job definition. Only valid after Init.
func (jm *JobMaster) ImmutableInfo() *model.JobImmutableInfo {
	return jm.info
}

// ScheduleFuture resolves once the initial scheduling attempt of Run ends.
// Restored jobs resolve it right away since they skip the fresh pass.
func (jm *JobMaster) ScheduleFuture() *promise.Future[struct{}] {
	return jm.scheduleEnd.Future()
}

// JobDAGInfo returns a queryable summary of the job's logical graph grouped
// by pipeline. Built once on first use.
func (jm *JobMaster) JobDAGInfo() *model.JobDAGInfo {
	jm.dagInfoOnce.Do(func() {
		vertexes := make(map[int64]model.VertexInfo, len(jm.logicalDAG.Vertexes))
		for _, v := range jm.logicalDAG.Vertexes {
			vertexes[v.ID] = model.VertexInfo{
				ID:            v.ID,
				Name:          v.Name,
				ConnectorType: string(v.ConnectorType),
				Parallelism:   v.Parallelism,
			}
		}
		jm.dagInfo = &model.JobDAGInfo{
			JobID:         jm.info.JobID,
			Vertexes:      vertexes,
			PipelineEdges: plan.PipelineEdges(jm.logicalDAG),
		}
	})
	return jm.dagInfo
}

// SavePoint triggers a savepoint on every pipeline and returns a future
// that resolves when all of them complete.
func (jm *JobMaster) SavePoint() *promise.Future[struct{}] {
	return promise.AllOf(jm.checkpointMgr.TriggerSavepoints()...)
}

// AcknowledgeSavepoint records a worker's savepoint completion report.
func (jm *JobMaster) AcknowledgeSavepoint(pipelineID model.PipelineID, completed checkpoint.CompletedCheckpoint) error {
	return jm.checkpointMgr.AcknowledgeSavepoint(pipelineID, completed)
}

// ReportCheckpointError feeds a worker reported checkpoint failure into the
// checkpoint coordinator, which fails any pending savepoint and calls back
// into HandleCheckpointError.
func (jm *JobMaster) ReportCheckpointError(pipelineID model.PipelineID, cause error) {
	jm.checkpointMgr.ReportCheckpointError(pipelineID, cause)
}

// HandleCheckpointError implements checkpoint.CheckpointErrorReporter. The
// offending pipeline is canceled with the checkpoint failure as its cause;
// an unknown pipeline id is ignored so that late reports of already removed
// pipelines cannot hurt the job.
func (jm *JobMaster) HandleCheckpointError(pipelineID model.PipelineID, cause error) {
	jm.deps.Metrics.observeCheckpointError()
	for _, pipeline := range jm.physicalPlan.Pipelines() {
		if pipeline.Location().PipelineID == pipelineID {
			log.L().Info("canceling pipeline on checkpoint error",
				zap.Int64("job-id", int64(jm.info.JobID)),
				zap.String("pipeline", pipeline.Location().String()),
				log.ShortError(cause))
			pipeline.CancelWithFailure(cause)
			return
		}
	}
	log.L().Warn("checkpoint error for unknown pipeline ignored",
		zap.Int64("job-id", int64(jm.info.JobID)),
		zap.Int64("pipeline-id", int64(pipelineID)),
		log.ShortError(cause))
}

// ReschedulePipeline redeploys one pipeline asynchronously, used on restore
// and on pipeline level restarts.
func (jm *JobMaster) ReschedulePipeline(ctx context.Context, pipeline *plan.Pipeline) *promise.Future[struct{}] {
	return jm.scheduler.ReschedulePipeline(ctx, pipeline)
}

// UpdateTaskExecutionState applies a worker's task state report to the
// matching physical vertex. Reports for unknown locations are dropped
// without effect: the pipeline may have been torn down since the worker
// sent them.
func (jm *JobMaster) UpdateTaskExecutionState(state model.TaskExecutionState) {
	if state.Location.JobID != jm.info.JobID {
		log.L().Warn("task state report for another job dropped",
			zap.Int64("job-id", int64(jm.info.JobID)),
			zap.String("location", state.Location.String()))
		return
	}
	for _, pipeline := range jm.physicalPlan.Pipelines() {
		if pipeline.Location().PipelineID != state.Location.PipelineID {
			continue
		}
		for _, v := range pipeline.Vertices() {
			if v.TaskGroupLocation() == state.Location {
				v.UpdateState(state.State, state.Error)
				return
			}
		}
	}
}

// SetOwnedSlotProfiles implements scheduler.OwnedSlotsRecorder. The write
// is followed by read back verification: the state store does not promise
// read-your-writes, and deploying a task group whose assignment is not yet
// visible to the rest of the cluster would break address queries. Only "not
// yet visible" is retried, and only while the job is live; anything else,
// and exhaustion, fail the sync.
func (jm *JobMaster) SetOwnedSlotProfiles(
	ctx context.Context,
	loc model.PipelineLocation,
	profiles map[model.TaskGroupLocation]model.SlotProfile,
) error {
	if err := jm.slotClient.Put(ctx, loc, profiles); err != nil {
		return derror.WrapError(derror.ErrSlotProfileSyncFail, err, loc.String())
	}
	err := retry.Do(ctx, func() error {
		stored, err := jm.slotClient.Get(ctx, loc)
		if err != nil {
			if derror.ErrSlotProfilesNotFound.Equal(err) {
				return derror.ErrSlotProfilesNotVisible.GenWithStackByArgs(loc.String())
			}
			return errors.Trace(err)
		}
		if !slotProfilesEqual(stored, profiles) {
			return derror.ErrSlotProfilesNotVisible.GenWithStackByArgs(loc.String())
		}
		return nil
	},
		retry.WithMaxTries(jm.deps.ServerCfg.SlotSyncMaxRetries),
		retry.WithInterval(jm.deps.ServerCfg.SlotSyncRetryInterval()),
		retry.WithIsRetryable(func(err error) bool {
			if !derror.ErrSlotProfilesNotVisible.Equal(err) {
				return false
			}
			jm.deps.Metrics.observeSlotSyncRetry()
			return jm.IsRunning()
		}),
	)
	if err != nil {
		return derror.WrapError(derror.ErrSlotProfileSyncFail, err, loc.String())
	}
	return nil
}

// GetOwnedSlotProfiles returns the pipeline's recorded slot assignment.
func (jm *JobMaster) GetOwnedSlotProfiles(
	ctx context.Context,
	loc model.PipelineLocation,
) (map[model.TaskGroupLocation]model.SlotProfile, error) {
	return jm.slotClient.Get(ctx, loc)
}

// GetOwnedSlotProfilesByTaskGroup resolves a single task group's assigned
// slot. Unlike the pipeline level read, the caller here addresses one
// concrete task group, so a pipeline without a registered assignment is an
// error rather than an empty answer.
func (jm *JobMaster) GetOwnedSlotProfilesByTaskGroup(
	ctx context.Context,
	loc model.TaskGroupLocation,
) (model.SlotProfile, error) {
	profiles, err := jm.slotClient.Get(ctx, loc.PipelineLocation())
	if err != nil {
		return model.SlotProfile{}, errors.Trace(err)
	}
	profile, ok := profiles[loc]
	if !ok {
		return model.SlotProfile{}, derror.ErrTaskGroupNotFound.GenWithStackByArgs(loc.TaskGroupID, jm.info.JobID)
	}
	return profile, nil
}

// QueryTaskGroupAddress resolves the worker currently holding the given
// task group, scanning the job's slot assignment table.
func (jm *JobMaster) QueryTaskGroupAddress(ctx context.Context, taskGroupID model.TaskGroupID) (model.WorkerAddress, error) {
	assignments, err := jm.slotClient.All(ctx, jm.info.JobID)
	if err != nil {
		return "", errors.Trace(err)
	}
	for _, profiles := range assignments {
		for tgLoc, profile := range profiles {
			if tgLoc.TaskGroupID == taskGroupID {
				return profile.Worker, nil
			}
		}
	}
	return "", derror.ErrTaskGroupNotFound.GenWithStackByArgs(taskGroupID, jm.info.JobID)
}

// ReleasePipelineResource implements plan.Owner. The slots go back to the
// resource manager first, and the assignment entry is removed only after
// the release is acknowledged: reversing the order could lose track of
// granted slots if the master died in between. Releasing a pipeline with no
// recorded assignment is a no-op.
func (jm *JobMaster) ReleasePipelineResource(ctx context.Context, pipeline *plan.Pipeline) error {
	loc := pipeline.Location()
	profiles, err := jm.slotClient.Get(ctx, loc)
	if err != nil {
		if derror.ErrSlotProfilesNotFound.Equal(err) {
			return nil
		}
		return errors.Trace(err)
	}
	released := make([]model.SlotProfile, 0, len(profiles))
	for _, profile := range profiles {
		released = append(released, profile)
	}
	if _, err := jm.deps.Resources.ReleaseResources(ctx, jm.info.JobID, released).Await(ctx); err != nil {
		return errors.Trace(err)
	}
	if err := jm.slotClient.Delete(ctx, loc); err != nil {
		return errors.Trace(err)
	}
	log.L().Info("pipeline resources released",
		zap.Int64("job-id", int64(jm.info.JobID)),
		zap.String("pipeline", loc.String()),
		zap.Int("slots", len(released)))
	return nil
}

// CancelTaskGroup implements plan.Owner by forwarding the cancel to the
// worker owning the task group.
func (jm *JobMaster) CancelTaskGroup(ctx context.Context, loc model.TaskGroupLocation) error {
	profile, err := jm.GetOwnedSlotProfilesByTaskGroup(ctx, loc)
	if err != nil {
		return errors.Trace(err)
	}
	return jm.deps.Operator.CancelTaskGroup(ctx, profile.Worker, loc)
}

// GetCurrJobMetrics collects the live metrics of every task group of the
// job. The fan out is all or nothing: a single unreachable worker fails the
// query rather than returning a partial, silently misleading summary.
func (jm *JobMaster) GetCurrJobMetrics(ctx context.Context) ([]model.RawTaskGroupMetrics, error) {
	assignments, err := jm.slotClient.All(ctx, jm.info.JobID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	merged := make(map[model.TaskGroupLocation]model.SlotProfile)
	for _, profiles := range assignments {
		for tgLoc, profile := range profiles {
			merged[tgLoc] = profile
		}
	}
	return jm.queryTaskGroupMetrics(ctx, merged)
}

// SavePipelineMetricsToHistory implements plan.Owner: a finished pipeline's
// final metrics are folded into the job's history entry, then the worker
// side task group contexts are cleaned. A clean failure is returned as an
// error because leaked contexts hold worker memory until the worker
// restarts.
func (jm *JobMaster) SavePipelineMetricsToHistory(ctx context.Context, loc model.PipelineLocation) error {
	profiles, err := jm.slotClient.Get(ctx, loc)
	if err != nil {
		return errors.Trace(err)
	}
	raws, err := jm.queryTaskGroupMetrics(ctx, profiles)
	if err != nil {
		return errors.Trace(err)
	}
	summary := model.ToJobMetrics(jm.info.JobID, raws)

	jm.historyMu.Lock()
	err = jm.deps.History.StoreFinishedPipelineMetrics(ctx, jm.info.JobID, summary)
	jm.historyMu.Unlock()
	if err != nil {
		return errors.Trace(err)
	}

	for tgLoc, profile := range profiles {
		if err := jm.deps.Operator.CleanTaskGroupContext(ctx, profile.Worker, tgLoc); err != nil {
			return errors.Trace(err)
		}
	}
	log.L().Info("pipeline metrics archived",
		zap.Int64("job-id", int64(jm.info.JobID)),
		zap.String("pipeline", loc.String()),
		zap.Int("task-groups", len(profiles)))
	return nil
}

func (jm *JobMaster) queryTaskGroupMetrics(
	ctx context.Context,
	profiles map[model.TaskGroupLocation]model.SlotProfile,
) ([]model.RawTaskGroupMetrics, error) {
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	raws := make([]model.RawTaskGroupMetrics, 0, len(profiles))
	for tgLoc, profile := range profiles {
		tgLoc, profile := tgLoc, profile
		g.Go(func() error {
			raw, err := jm.deps.Operator.QueryTaskGroupMetrics(gctx, profile.Worker, tgLoc)
			if err != nil {
				return errors.Trace(err)
			}
			mu.Lock()
			raws = append(raws, raw)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(raws, func(i, j int) bool {
		return raws[i].Location.TaskGroupID < raws[j].Location.TaskGroupID
	})
	return raws, nil
}

func slotProfilesEqual(a, b map[model.TaskGroupLocation]model.SlotProfile) bool {
	if len(a) != len(b) {
		return false
	}
	for tgLoc, profile := range a {
		if b[tgLoc] != profile {
			return false
		}
	}
	return true
}

// runningStateRecorder implements plan.StateRecorder by mirroring job state
// transitions into the state store. The plan calls it under its own lock,
// so writes run on a background context with a bounded timeout and failures
// only log: the store copy is advisory, the in memory plan is the truth.
type runningStateRecorder struct {
	jobID   model.JobID
	states  *metadata.RunningStateClient
	metrics *Metrics
}

func (r *runningStateRecorder) MarkJobState(status model.JobStatus) {
	r.metrics.observeJobStatus(status)
	ctx, cancel := context.WithTimeout(context.Background(), stateWriteTimeout)
	defer cancel()
	if err := r.states.MarkJobState(ctx, r.jobID, status); err != nil {
		log.L().Warn("mark job running state failed",
			zap.Int64("job-id", int64(r.jobID)),
			zap.Stringer("status", status),
			log.ShortError(err))
	}
}

func (r *runningStateRecorder) Touch() {
	ctx, cancel := context.WithTimeout(context.Background(), stateWriteTimeout)
	defer cancel()
	if err := r.states.Touch(ctx, r.jobID); err != nil {
		log.L().Warn("touch job running timestamp failed",
			zap.Int64("job-id", int64(r.jobID)),
			log.ShortError(err))
	}
}
