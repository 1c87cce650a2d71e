package resourcemanager

import (
	"context"
	"sync"

	"github.com/pingcap/tiflow/dm/pkg/log"
	"go.uber.org/zap"

	"github.com/voidking/incubator-seatunnel/model"
	derror "github.com/voidking/incubator-seatunnel/pkg/errors"
	"github.com/voidking/incubator-seatunnel/pkg/promise"
)

type workerSlots struct {
	addr  model.WorkerAddress
	total int32
	used  map[int32]model.JobID
}

func (w *workerSlots) free() int {
	return int(w.total) - len(w.used)
}

func (w *workerSlots) grab(jobID model.JobID) (int32, bool) {
	for slot := int32(0); slot < w.total; slot++ {
		if _, taken := w.used[slot]; !taken {
			w.used[slot] = jobID
			return slot, true
		}
	}
	return 0, false
}

// SimpleResourceManager keeps the whole slot pool in memory and spreads
// grants over workers round robin. It backs single coordinator deployments
// and all tests.
type SimpleResourceManager struct {
	mu      sync.RWMutex
	workers []*workerSlots
	next    int
}

func NewSimpleResourceManager() *SimpleResourceManager {
	return &SimpleResourceManager{}
}

// RegisterWorker adds a worker with the given slot capacity. Registering an
// already known address resets its capacity and frees its slots.
func (m *SimpleResourceManager) RegisterWorker(addr model.WorkerAddress, capacity int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fresh := &workerSlots{addr: addr, total: capacity, used: make(map[int32]model.JobID)}
	for i, w := range m.workers {
		if w.addr == addr {
			m.workers[i] = fresh
			log.L().Info("worker slots re-registered",
				zap.String("worker", string(addr)), zap.Int32("capacity", capacity))
			return
		}
	}
	m.workers = append(m.workers, fresh)
	log.L().Info("worker slots registered",
		zap.String("worker", string(addr)), zap.Int32("capacity", capacity))
}

// UnregisterWorker drops a worker and everything granted on it.
func (m *SimpleResourceManager) UnregisterWorker(addr model.WorkerAddress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range m.workers {
		if w.addr == addr {
			m.workers = append(m.workers[:i], m.workers[i+1:]...)
			if m.next >= len(m.workers) {
				m.next = 0
			}
			log.L().Info("worker slots unregistered", zap.String("worker", string(addr)))
			return
		}
	}
}

// ApplyResources implements ResourceManager.ApplyResources.
func (m *SimpleResourceManager) ApplyResources(
	_ context.Context, jobID model.JobID, locations []model.TaskGroupLocation,
) (map[model.TaskGroupLocation]model.SlotProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	free := 0
	for _, w := range m.workers {
		free += w.free()
	}
	if free < len(locations) {
		return nil, derror.ErrResourceNotEnough.GenWithStackByArgs(jobID)
	}

	grants := make(map[model.TaskGroupLocation]model.SlotProfile, len(locations))
	for _, loc := range locations {
		for i := 0; i < len(m.workers); i++ {
			w := m.workers[(m.next+i)%len(m.workers)]
			slot, ok := w.grab(jobID)
			if !ok {
				continue
			}
			grants[loc] = model.SlotProfile{Worker: w.addr, SlotID: slot}
			m.next = (m.next + i + 1) % len(m.workers)
			break
		}
	}
	log.L().Info("slots granted",
		zap.Int64("job-id", int64(jobID)), zap.Int("count", len(grants)))
	return grants, nil
}

// ReleaseResources implements ResourceManager.ReleaseResources. Releasing a
// slot the job does not hold is a no-op, so repeated releases are safe.
func (m *SimpleResourceManager) ReleaseResources(
	_ context.Context, jobID model.JobID, profiles []model.SlotProfile,
) *promise.Future[struct{}] {
	p := promise.NewPromise[struct{}]()
	m.mu.Lock()
	released := 0
	for _, profile := range profiles {
		for _, w := range m.workers {
			if w.addr != profile.Worker {
				continue
			}
			if owner, taken := w.used[profile.SlotID]; taken && owner == jobID {
				delete(w.used, profile.SlotID)
				released++
			}
			break
		}
	}
	m.mu.Unlock()
	log.L().Info("slots released",
		zap.Int64("job-id", int64(jobID)), zap.Int("count", released))
	p.Complete(struct{}{})
	return p.Future()
}

// WorkerCount implements ResourceManager.WorkerCount.
func (m *SimpleResourceManager) WorkerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workers)
}

// FreeSlots returns the number of unassigned slots over all workers.
func (m *SimpleResourceManager) FreeSlots() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	free := 0
	for _, w := range m.workers {
		free += w.free()
	}
	return free
}
