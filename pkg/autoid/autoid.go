package autoid

import (
	"sync"

	"github.com/google/uuid"
)

// IDAllocator issues job scoped int64 ids. The job id occupies the high 32
// bits so ids from different jobs never collide, and rebuilding the allocator
// for the same job reproduces the same sequence.
type IDAllocator struct {
	sync.Mutex
	counter int64
	prefix  int64
}

// NewIDAllocator creates an allocator scoped to the given job.
func NewIDAllocator(jobID int64) *IDAllocator {
	return &IDAllocator{
		prefix: jobID << 32,
	}
}

// AllocID returns the next id in the job's sequence.
func (a *IDAllocator) AllocID() int64 {
	a.Lock()
	defer a.Unlock()
	a.counter++
	return a.prefix + a.counter
}

// UUIDAllocator issues opaque unique string ids, used for checkpoint and
// savepoint identifiers.
type UUIDAllocator struct{}

func NewUUIDAllocator() *UUIDAllocator {
	return new(UUIDAllocator)
}

func (a *UUIDAllocator) AllocID() string {
	return uuid.New().String()
}
