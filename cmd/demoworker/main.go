package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/pingcap/tiflow/dm/pkg/log"
	"github.com/spf13/pflag"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/voidking/incubator-seatunnel/client"
	"github.com/voidking/incubator-seatunnel/model"
)

// demoworker is a stand-in worker process for trying the coordinator end to
// end without a real execution engine. It registers itself, accepts task
// group deployments, advances fake row counters and reports terminal states
// back, exactly over the wire contract real workers use.

const (
	registerAttempts = 10
	registerInterval = time.Second
)

func main() {
	fs := pflag.NewFlagSet("demoworker", pflag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:5811", "worker API address")
	coordinator := fs.String("coordinator", "127.0.0.1:5801", "coordinator API address")
	slots := fs.Int32("slots", 4, "slot capacity to register")
	taskTTL := fs.Duration("task-duration", 30*time.Second, "how long a deployed task group runs before finishing")
	_ = fs.Parse(os.Args[1:])

	if err := log.InitLogger(&log.Config{Level: "info"}); err != nil {
		fmt.Fprintln(os.Stderr, "demoworker:", err)
		os.Exit(2)
	}

	w := &worker{
		addr:        *addr,
		coordinator: *coordinator,
		taskTTL:     *taskTTL,
		cli:         &http.Client{Timeout: 5 * time.Second},
		tasks:       make(map[model.TaskGroupLocation]*fakeTask),
	}

	r := mux.NewRouter()
	post := r.Methods(http.MethodPost).Subrouter()
	post.HandleFunc("/api/v1/task-groups/deploy", w.handleDeploy)
	post.HandleFunc("/api/v1/task-groups/cancel", w.handleCancel)
	post.HandleFunc("/api/v1/task-groups/metrics", w.handleMetrics)
	post.HandleFunc("/api/v1/task-groups/clean-context", w.handleCleanContext)

	httpSrv := &http.Server{Addr: w.addr, Handler: r}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.L().Error("worker api serve failed", log.ShortError(err))
			os.Exit(1)
		}
	}()

	if err := w.register(*slots); err != nil {
		log.L().Error("registering with coordinator failed", log.ShortError(err))
		os.Exit(1)
	}
	log.L().Info("demo worker registered",
		zap.String("addr", w.addr),
		zap.String("coordinator", w.coordinator),
		zap.Int32("slots", *slots))

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGTERM, syscall.SIGINT)
	<-sc

	w.unregister()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.L().Warn("worker api shutdown failed", log.ShortError(err))
	}
	log.L().Info("demo worker stopped")
}

type worker struct {
	addr        string
	coordinator string
	taskTTL     time.Duration
	cli         *http.Client

	mu    sync.Mutex
	tasks map[model.TaskGroupLocation]*fakeTask
}

type fakeTask struct {
	deployment client.TaskGroupDeployment
	rows       *atomic.Int64
	stop       chan struct{}
	stopOnce   sync.Once
}

func (t *fakeTask) cancel() {
	t.stopOnce.Do(func() { close(t.stop) })
}

type locationRequest struct {
	Location model.TaskGroupLocation `json:"location"`
}

func (w *worker) handleDeploy(rw http.ResponseWriter, req *http.Request) {
	var deployment client.TaskGroupDeployment
	if err := json.NewDecoder(req.Body).Decode(&deployment); err != nil {
		http.Error(rw, "malformed deployment", http.StatusBadRequest)
		return
	}
	task := &fakeTask{
		deployment: deployment,
		rows:       atomic.NewInt64(0),
		stop:       make(chan struct{}),
	}
	w.mu.Lock()
	if old, ok := w.tasks[deployment.Location]; ok {
		old.cancel()
	}
	w.tasks[deployment.Location] = task
	w.mu.Unlock()

	log.L().Info("task group deployed",
		zap.String("task-group", deployment.Location.String()),
		zap.String("plugin", deployment.PluginName),
		zap.Int32("slot", deployment.SlotID))
	go w.runTask(task)
	writeOK(rw, struct{}{})
}

// runTask advances the row counter until the task is canceled or its
// configured lifetime elapses, then reports the terminal state.
func (w *worker) runTask(task *fakeTask) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(w.taskTTL)
	loc := task.deployment.Location
	for {
		select {
		case <-task.stop:
			w.reportState(loc, model.ExecutionStateCanceled)
			return
		case <-deadline:
			w.reportState(loc, model.ExecutionStateFinished)
			return
		case <-ticker.C:
			task.rows.Add(17)
		}
	}
}

func (w *worker) handleCancel(rw http.ResponseWriter, req *http.Request) {
	var body locationRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(rw, "malformed cancel request", http.StatusBadRequest)
		return
	}
	w.mu.Lock()
	task, ok := w.tasks[body.Location]
	w.mu.Unlock()
	// Canceling an unknown task group is a no-op, the coordinator may retry
	// cancels it already won.
	if ok {
		task.cancel()
	}
	writeOK(rw, struct{}{})
}

func (w *worker) handleMetrics(rw http.ResponseWriter, req *http.Request) {
	var body locationRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(rw, "malformed metrics request", http.StatusBadRequest)
		return
	}
	raw := model.RawTaskGroupMetrics{Location: body.Location}
	w.mu.Lock()
	if task, ok := w.tasks[body.Location]; ok {
		rows := task.rows.Load()
		raw.Metrics = map[string]int64{
			"SourceReceivedCount": rows,
			"SinkWriteCount":      rows,
		}
	}
	w.mu.Unlock()
	writeOK(rw, raw)
}

func (w *worker) handleCleanContext(rw http.ResponseWriter, req *http.Request) {
	var body locationRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(rw, "malformed clean request", http.StatusBadRequest)
		return
	}
	w.mu.Lock()
	if task, ok := w.tasks[body.Location]; ok {
		task.cancel()
		delete(w.tasks, body.Location)
	}
	w.mu.Unlock()
	writeOK(rw, struct{}{})
}

func writeOK(rw http.ResponseWriter, body interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(rw).Encode(body)
}

func (w *worker) reportState(loc model.TaskGroupLocation, state model.ExecutionState) {
	report := model.TaskExecutionState{Location: loc, State: state}
	if err := w.postJSON("/api/v1/task-states", report); err != nil {
		log.L().Warn("reporting task state failed",
			zap.String("task-group", loc.String()),
			zap.Stringer("state", state),
			log.ShortError(err))
		return
	}
	log.L().Info("task state reported",
		zap.String("task-group", loc.String()),
		zap.Stringer("state", state))
}

func (w *worker) register(slots int32) error {
	body := struct {
		Addr  string `json:"addr"`
		Slots int32  `json:"slots"`
	}{Addr: w.addr, Slots: slots}
	var err error
	for attempt := 0; attempt < registerAttempts; attempt++ {
		if err = w.postJSON("/api/v1/workers", body); err == nil {
			return nil
		}
		log.L().Warn("coordinator not reachable yet, retrying", log.ShortError(err))
		time.Sleep(registerInterval)
	}
	return err
}

func (w *worker) unregister() {
	url := fmt.Sprintf("http://%s/api/v1/workers/%s", w.coordinator, w.addr)
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return
	}
	resp, err := w.cli.Do(req)
	if err != nil {
		log.L().Warn("unregistering from coordinator failed", log.ShortError(err))
		return
	}
	resp.Body.Close()
}

func (w *worker) postJSON(path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("http://%s%s", w.coordinator, path)
	resp, err := w.cli.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coordinator returned status %d", resp.StatusCode)
	}
	return nil
}
