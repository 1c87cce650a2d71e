package client

import (
	"context"

	"github.com/voidking/incubator-seatunnel/model"
)

// operation names, used in logs and error payloads
const (
	OpDeploy       = "deploy"
	OpCancel       = "cancel"
	OpQueryMetrics = "query-metrics"
	OpCleanContext = "clean-context"
)

// TaskGroupDeployment is everything a worker needs to start one task group.
type TaskGroupDeployment struct {
	Location      model.TaskGroupLocation `json:"location"`
	Name          string                  `json:"name"`
	ConnectorType string                  `json:"connector_type"`
	PluginName    string                  `json:"plugin_name"`
	Options       map[string]string       `json:"options,omitempty"`
	SlotID        int32                   `json:"slot_id"`
}

// TaskOperator performs remote operations on task groups, routed by worker
// address. It is the coordinator's only path to workers.
type TaskOperator interface {
	// DeployTaskGroup starts the task group on the worker.
	DeployTaskGroup(ctx context.Context, addr model.WorkerAddress, deployment TaskGroupDeployment) error
	// CancelTaskGroup asks the worker to stop the task group. The worker
	// reports the resulting terminal state through the usual state update
	// path.
	CancelTaskGroup(ctx context.Context, addr model.WorkerAddress, loc model.TaskGroupLocation) error
	// QueryTaskGroupMetrics fetches the task group's current raw metrics.
	QueryTaskGroupMetrics(ctx context.Context, addr model.WorkerAddress, loc model.TaskGroupLocation) (model.RawTaskGroupMetrics, error)
	// CleanTaskGroupContext discards the worker's per-task bookkeeping of a
	// finished task group.
	CleanTaskGroupContext(ctx context.Context, addr model.WorkerAddress, loc model.TaskGroupLocation) error
}
