package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pingcap/errors"
	"github.com/pingcap/tiflow/dm/pkg/log"
	"go.uber.org/zap"

	"github.com/voidking/incubator-seatunnel/master"
	"github.com/voidking/incubator-seatunnel/master/checkpoint"
	"github.com/voidking/incubator-seatunnel/model"
	derror "github.com/voidking/incubator-seatunnel/pkg/errors"
	"github.com/voidking/incubator-seatunnel/pkg/promutil"
)

const apiPrefix = "/api/v1"

// maxJobDefinitionBytes bounds a submitted job definition. Anything larger
// is rejected before decoding.
const maxJobDefinitionBytes = 4 << 20

type router struct {
	http.Handler
	srv *Server
}

func newRouter(srv *Server) *router {
	rtr := &router{srv: srv}

	r := mux.NewRouter()
	get := r.Methods(http.MethodGet).Subrouter()
	get.HandleFunc(apiPrefix+`/jobs/{job_id:[0-9]+}`, rtr.handleJobStatus)
	get.HandleFunc(apiPrefix+`/jobs/{job_id:[0-9]+}/metrics`, rtr.handleJobMetrics)
	get.HandleFunc(apiPrefix+`/jobs/{job_id:[0-9]+}/dag`, rtr.handleJobDAG)
	get.HandleFunc(apiPrefix+`/task-groups/{task_group_id:[0-9]+}/address`, rtr.handleTaskGroupAddress)
	get.HandleFunc(apiPrefix+`/workers`, rtr.handleWorkerSummary)
	get.Handle(`/metrics`, promutil.HTTPHandlerForMetric())

	post := r.Methods(http.MethodPost).Subrouter()
	post.HandleFunc(apiPrefix+`/jobs`, rtr.handleSubmitJob)
	post.HandleFunc(apiPrefix+`/jobs/{job_id:[0-9]+}/cancel`, rtr.handleCancelJob)
	post.HandleFunc(apiPrefix+`/jobs/{job_id:[0-9]+}/savepoint`, rtr.handleSavePoint)
	post.HandleFunc(apiPrefix+`/task-states`, rtr.handleTaskState)
	post.HandleFunc(apiPrefix+`/checkpoint-errors`, rtr.handleCheckpointError)
	post.HandleFunc(apiPrefix+`/savepoint-acks`, rtr.handleSavepointAck)
	post.HandleFunc(apiPrefix+`/workers`, rtr.handleRegisterWorker)

	del := r.Methods(http.MethodDelete).Subrouter()
	del.HandleFunc(apiPrefix+`/workers/{addr}`, rtr.handleUnregisterWorker)

	r.NotFoundHandler = http.HandlerFunc(rtr.handleUnknownRoute)
	r.MethodNotAllowedHandler = http.HandlerFunc(rtr.handleUnknownRoute)
	rtr.Handler = logRequests(r)
	return rtr
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, req)
		log.L().Debug("api request served",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.L().Warn("encoding api response failed", log.ShortError(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case derror.ErrJobNotFound.Equal(err),
		derror.ErrTaskGroupNotFound.Equal(err),
		derror.ErrSlotProfilesNotFound.Equal(err),
		derror.ErrPendingCheckpointNotFound.Equal(err):
		status = http.StatusNotFound
	case derror.ErrJobAlreadySubmitted.Equal(err):
		status = http.StatusConflict
	case derror.ErrInvalidServerRequest.Equal(err),
		derror.ErrJobInfoCorrupted.Equal(err),
		derror.ErrLogicalDAGCorrupted.Equal(err),
		derror.ErrPluginNotFound.Equal(err),
		derror.ErrInvalidEngineConfig.Equal(err):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func decodeBody(req *http.Request, out interface{}) error {
	if err := json.NewDecoder(req.Body).Decode(out); err != nil {
		return derror.ErrInvalidServerRequest.GenWithStackByArgs("malformed json body")
	}
	return nil
}

func jobIDVar(req *http.Request) (model.JobID, error) {
	raw := mux.Vars(req)["job_id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, derror.ErrInvalidServerRequest.GenWithStackByArgs("job id " + strconv.Quote(raw))
	}
	return model.JobID(id), nil
}

type pipelineSummary struct {
	Location model.PipelineLocation `json:"location"`
	Status   string                 `json:"status"`
	Cause    string                 `json:"cause,omitempty"`
}

type jobSummary struct {
	JobID      model.JobID       `json:"job_id"`
	Name       string            `json:"name"`
	Status     string            `json:"status"`
	CreateTime int64             `json:"create_time"`
	Pipelines  []pipelineSummary `json:"pipelines"`
	Result     *model.JobResult  `json:"result,omitempty"`
}

func summarize(jm *master.JobMaster) jobSummary {
	pipelines := jm.PhysicalPlan().Pipelines()
	summary := jobSummary{
		JobID:      jm.JobID(),
		Name:       jm.ImmutableInfo().Name,
		Status:     jm.JobStatus().String(),
		CreateTime: jm.ImmutableInfo().CreateTime,
		Pipelines:  make([]pipelineSummary, 0, len(pipelines)),
	}
	for _, pipeline := range pipelines {
		summary.Pipelines = append(summary.Pipelines, pipelineSummary{
			Location: pipeline.Location(),
			Status:   pipeline.Status().String(),
			Cause:    pipeline.Cause(),
		})
	}
	if result, err := jm.CompletionFuture().Value(); err == nil {
		summary.Result = &result
	}
	return summary
}

func (rtr *router) handleSubmitJob(w http.ResponseWriter, req *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(req.Body, maxJobDefinitionBytes))
	if err != nil {
		writeError(w, derror.ErrInvalidServerRequest.GenWithStackByArgs("unreadable body"))
		return
	}
	jm, err := rtr.srv.jobs.SubmitJob(req.Context(), raw)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(jm))
}

func (rtr *router) handleJobStatus(w http.ResponseWriter, req *http.Request) {
	jobID, err := jobIDVar(req)
	if err != nil {
		writeError(w, err)
		return
	}
	jm, err := rtr.srv.jobs.Master(jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(jm))
}

func (rtr *router) handleCancelJob(w http.ResponseWriter, req *http.Request) {
	jobID, err := jobIDVar(req)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := rtr.srv.jobs.CancelJob(jobID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

type savepointResponse struct {
	JobID     model.JobID `json:"job_id"`
	Triggered int         `json:"triggered"`
}

// handleSavePoint starts one savepoint per pipeline. Completion is reported
// by the workers through the savepoint-acks endpoint, so the response only
// confirms the trigger.
func (rtr *router) handleSavePoint(w http.ResponseWriter, req *http.Request) {
	jobID, err := jobIDVar(req)
	if err != nil {
		writeError(w, err)
		return
	}
	jm, err := rtr.srv.jobs.Master(jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	triggered := len(jm.CheckpointManager().TriggerSavepoints())
	writeJSON(w, http.StatusAccepted, savepointResponse{JobID: jobID, Triggered: triggered})
}

func (rtr *router) handleJobMetrics(w http.ResponseWriter, req *http.Request) {
	jobID, err := jobIDVar(req)
	if err != nil {
		writeError(w, err)
		return
	}
	jm, err := rtr.srv.jobs.Master(jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	raws, err := jm.GetCurrJobMetrics(req.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, raws)
}

func (rtr *router) handleJobDAG(w http.ResponseWriter, req *http.Request) {
	jobID, err := jobIDVar(req)
	if err != nil {
		writeError(w, err)
		return
	}
	jm, err := rtr.srv.jobs.Master(jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jm.JobDAGInfo())
}

func (rtr *router) handleTaskState(w http.ResponseWriter, req *http.Request) {
	var state model.TaskExecutionState
	if err := decodeBody(req, &state); err != nil {
		writeError(w, err)
		return
	}
	rtr.srv.jobs.UpdateTaskExecutionState(state)
	writeJSON(w, http.StatusOK, struct{}{})
}

type checkpointErrorReport struct {
	JobID      model.JobID      `json:"job_id"`
	PipelineID model.PipelineID `json:"pipeline_id"`
	Message    string           `json:"message"`
}

func (rtr *router) handleCheckpointError(w http.ResponseWriter, req *http.Request) {
	var report checkpointErrorReport
	if err := decodeBody(req, &report); err != nil {
		writeError(w, err)
		return
	}
	cause := errors.New(report.Message)
	if err := rtr.srv.jobs.ReportCheckpointError(report.JobID, report.PipelineID, cause); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

type savepointAck struct {
	JobID         model.JobID      `json:"job_id"`
	PipelineID    model.PipelineID `json:"pipeline_id"`
	CompletedTime int64            `json:"completed_time,omitempty"`
}

func (rtr *router) handleSavepointAck(w http.ResponseWriter, req *http.Request) {
	var ack savepointAck
	if err := decodeBody(req, &ack); err != nil {
		writeError(w, err)
		return
	}
	jm, err := rtr.srv.jobs.Master(ack.JobID)
	if err != nil {
		writeError(w, err)
		return
	}
	completed := checkpoint.CompletedCheckpoint{}
	if ack.CompletedTime > 0 {
		completed.CompletedTime = time.UnixMilli(ack.CompletedTime)
	}
	if err := jm.AcknowledgeSavepoint(ack.PipelineID, completed); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

type workerRegistration struct {
	Addr  model.WorkerAddress `json:"addr"`
	Slots int32               `json:"slots"`
}

type workerSummary struct {
	Workers   int `json:"workers"`
	FreeSlots int `json:"free_slots"`
}

func (rtr *router) workerSummary() workerSummary {
	return workerSummary{
		Workers:   rtr.srv.resources.WorkerCount(),
		FreeSlots: rtr.srv.resources.FreeSlots(),
	}
}

func (rtr *router) handleRegisterWorker(w http.ResponseWriter, req *http.Request) {
	var reg workerRegistration
	if err := decodeBody(req, &reg); err != nil {
		writeError(w, err)
		return
	}
	if reg.Addr == "" || reg.Slots <= 0 {
		writeError(w, derror.ErrInvalidServerRequest.GenWithStackByArgs("worker registration needs an addr and a positive slot count"))
		return
	}
	rtr.srv.resources.RegisterWorker(reg.Addr, reg.Slots)
	writeJSON(w, http.StatusOK, rtr.workerSummary())
}

func (rtr *router) handleUnregisterWorker(w http.ResponseWriter, req *http.Request) {
	addr := model.WorkerAddress(mux.Vars(req)["addr"])
	rtr.srv.resources.UnregisterWorker(addr)
	writeJSON(w, http.StatusOK, rtr.workerSummary())
}

func (rtr *router) handleWorkerSummary(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, rtr.workerSummary())
}

func (rtr *router) handleTaskGroupAddress(w http.ResponseWriter, req *http.Request) {
	rawID := mux.Vars(req)["task_group_id"]
	taskGroupID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeError(w, derror.ErrInvalidServerRequest.GenWithStackByArgs("task group id "+strconv.Quote(rawID)))
		return
	}
	rawJob := req.URL.Query().Get("job_id")
	if rawJob == "" {
		writeError(w, derror.ErrInvalidServerRequest.GenWithStackByArgs("missing job_id query parameter"))
		return
	}
	jobID, err := strconv.ParseInt(rawJob, 10, 64)
	if err != nil {
		writeError(w, derror.ErrInvalidServerRequest.GenWithStackByArgs("job id "+strconv.Quote(rawJob)))
		return
	}
	jm, err := rtr.srv.jobs.Master(model.JobID(jobID))
	if err != nil {
		writeError(w, err)
		return
	}
	addr, err := jm.QueryTaskGroupAddress(req.Context(), model.TaskGroupID(taskGroupID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Worker model.WorkerAddress `json:"worker"`
	}{Worker: addr})
}

func (rtr *router) handleUnknownRoute(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusNotFound, errorBody{Error: "no route for " + req.Method + " " + req.URL.Path})
}
