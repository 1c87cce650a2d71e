package client

import (
	"context"
	"sync"

	"github.com/voidking/incubator-seatunnel/model"
)

// OpCall records one operator invocation for test assertions.
type OpCall struct {
	Op       string
	Addr     model.WorkerAddress
	Location model.TaskGroupLocation
}

// MockTaskOperator is an in-memory TaskOperator for tests. Every call is
// recorded, responses are programmable per operation. The zero hooks make
// all operations succeed with empty results.
type MockTaskOperator struct {
	mu    sync.Mutex
	calls []OpCall

	DeployFn  func(addr model.WorkerAddress, deployment TaskGroupDeployment) error
	CancelFn  func(addr model.WorkerAddress, loc model.TaskGroupLocation) error
	MetricsFn func(addr model.WorkerAddress, loc model.TaskGroupLocation) (model.RawTaskGroupMetrics, error)
	CleanFn   func(addr model.WorkerAddress, loc model.TaskGroupLocation) error
}

func NewMockTaskOperator() *MockTaskOperator {
	return &MockTaskOperator{}
}

func (m *MockTaskOperator) record(call OpCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

// Calls returns a copy of all recorded invocations in order.
func (m *MockTaskOperator) Calls() []OpCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]OpCall, len(m.calls))
	copy(ret, m.calls)
	return ret
}

// CallsOf returns the recorded invocations of one operation.
func (m *MockTaskOperator) CallsOf(op string) []OpCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ret []OpCall
	for _, call := range m.calls {
		if call.Op == op {
			ret = append(ret, call)
		}
	}
	return ret
}

func (m *MockTaskOperator) DeployTaskGroup(
	_ context.Context, addr model.WorkerAddress, deployment TaskGroupDeployment,
) error {
	m.record(OpCall{Op: OpDeploy, Addr: addr, Location: deployment.Location})
	if m.DeployFn != nil {
		return m.DeployFn(addr, deployment)
	}
	return nil
}

func (m *MockTaskOperator) CancelTaskGroup(
	_ context.Context, addr model.WorkerAddress, loc model.TaskGroupLocation,
) error {
	m.record(OpCall{Op: OpCancel, Addr: addr, Location: loc})
	if m.CancelFn != nil {
		return m.CancelFn(addr, loc)
	}
	return nil
}

func (m *MockTaskOperator) QueryTaskGroupMetrics(
	_ context.Context, addr model.WorkerAddress, loc model.TaskGroupLocation,
) (model.RawTaskGroupMetrics, error) {
	m.record(OpCall{Op: OpQueryMetrics, Addr: addr, Location: loc})
	if m.MetricsFn != nil {
		return m.MetricsFn(addr, loc)
	}
	return model.RawTaskGroupMetrics{Location: loc}, nil
}

func (m *MockTaskOperator) CleanTaskGroupContext(
	_ context.Context, addr model.WorkerAddress, loc model.TaskGroupLocation,
) error {
	m.record(OpCall{Op: OpCleanContext, Addr: addr, Location: loc})
	if m.CleanFn != nil {
		return m.CleanFn(addr, loc)
	}
	return nil
}
