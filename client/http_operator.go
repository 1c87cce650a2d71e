package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pingcap/tiflow/dm/pkg/log"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/voidking/incubator-seatunnel/model"
	derror "github.com/voidking/incubator-seatunnel/pkg/errors"
)

const (
	taskGroupAPIPrefix = "/api/v1/task-groups/"

	opMaxAttempts   = 3
	opRetryInterval = 500 * time.Millisecond
)

// httpTaskOperator drives task groups on workers through their HTTP API.
// Each operation is retried a bounded number of times on transient failures.
type httpTaskOperator struct {
	cli       *http.Client
	opTimeout time.Duration
}

// NewHTTPTaskOperator creates a TaskOperator that talks to workers over HTTP.
// opTimeout bounds each individual request, not the whole retried operation.
func NewHTTPTaskOperator(opTimeout time.Duration) TaskOperator {
	return &httpTaskOperator{
		cli:       &http.Client{},
		opTimeout: opTimeout,
	}
}

type locationRequest struct {
	Location model.TaskGroupLocation `json:"location"`
}

func (o *httpTaskOperator) DeployTaskGroup(
	ctx context.Context, addr model.WorkerAddress, deployment TaskGroupDeployment,
) error {
	return o.post(ctx, OpDeploy, addr, "deploy", deployment, nil)
}

func (o *httpTaskOperator) CancelTaskGroup(
	ctx context.Context, addr model.WorkerAddress, loc model.TaskGroupLocation,
) error {
	return o.post(ctx, OpCancel, addr, "cancel", locationRequest{Location: loc}, nil)
}

func (o *httpTaskOperator) QueryTaskGroupMetrics(
	ctx context.Context, addr model.WorkerAddress, loc model.TaskGroupLocation,
) (model.RawTaskGroupMetrics, error) {
	var resp model.RawTaskGroupMetrics
	if err := o.post(ctx, OpQueryMetrics, addr, "metrics", locationRequest{Location: loc}, &resp); err != nil {
		return model.RawTaskGroupMetrics{}, err
	}
	return resp, nil
}

func (o *httpTaskOperator) CleanTaskGroupContext(
	ctx context.Context, addr model.WorkerAddress, loc model.TaskGroupLocation,
) error {
	return o.post(ctx, OpCleanContext, addr, "clean-context", locationRequest{Location: loc}, nil)
}

func (o *httpTaskOperator) post(ctx context.Context, op string, addr model.WorkerAddress, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return derror.WrapError(derror.ErrTaskGroupOpFail, err, op, string(addr))
	}

	rl := rate.NewLimiter(rate.Every(opRetryInterval), 1)
	// drain the initial burst so every retry waits a full interval
	rl.Allow()

	var lastErr error
	for attempt := 0; attempt < opMaxAttempts; attempt++ {
		lastErr = o.doPost(ctx, addr, path, payload, out)
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			break
		}
		if attempt == opMaxAttempts-1 {
			break
		}
		log.L().Warn("task group operation failed, retrying",
			zap.String("op", op),
			zap.String("worker", string(addr)),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))
		if err := rl.Wait(ctx); err != nil {
			break
		}
	}
	return derror.WrapError(derror.ErrTaskGroupOpFail, lastErr, op, string(addr))
}

func (o *httpTaskOperator) doPost(ctx context.Context, addr model.WorkerAddress, path string, payload []byte, out interface{}) error {
	reqCtx, cancel := context.WithTimeout(ctx, o.opTimeout)
	defer cancel()

	url := fmt.Sprintf("http://%s%s%s", addr, taskGroupAPIPrefix, path)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.cli.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &workerStatusError{code: resp.StatusCode, msg: string(msg)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return err
		}
	}
	return nil
}

type workerStatusError struct {
	code int
	msg  string
}

func (e *workerStatusError) Error() string {
	return fmt.Sprintf("worker returned status %d: %s", e.code, e.msg)
}

// isTransient reports whether the failure is worth another attempt. Server-side
// errors and transport failures are transient, client-side rejections are not.
func isTransient(err error) bool {
	if statusErr, ok := err.(*workerStatusError); ok {
		return statusErr.code >= http.StatusInternalServerError
	}
	return true
}
