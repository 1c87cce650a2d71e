package statestore

import (
	"context"
	"strings"
	"sync"

	derror "github.com/voidking/incubator-seatunnel/pkg/errors"
)

// Op names a KV operation for error injection on the Mock.
type Op string

// operations supported by the Mock
const (
	OpPut       Op = "Put"
	OpGet       Op = "Get"
	OpGetPrefix Op = "GetPrefix"
	OpDelete    Op = "Delete"
)

type pendingWrite struct {
	key       string
	value     string
	deleted   bool
	remaining int
}

// Mock is an in-memory KV for tests. It can simulate replication lag, where a
// write only becomes visible after a number of subsequent reads, and inject
// errors per operation.
type Mock struct {
	sync.Mutex
	store   map[string]string
	pending []pendingWrite
	lag     int
	errs    map[Op]error
}

// NewMock creates an empty Mock with immediate write visibility.
func NewMock() *Mock {
	return &Mock{
		store: make(map[string]string),
		errs:  make(map[Op]error),
	}
}

// SetVisibilityLag makes every later write invisible until n reads have been
// issued. Zero restores read-your-writes behavior for later writes.
func (m *Mock) SetVisibilityLag(n int) {
	m.Lock()
	defer m.Unlock()
	m.lag = n
}

// SetError makes op fail with err until cleared with a nil err.
func (m *Mock) SetError(op Op, err error) {
	m.Lock()
	defer m.Unlock()
	if err == nil {
		delete(m.errs, op)
		return
	}
	m.errs[op] = err
}

// Snapshot returns a copy of the currently visible entries.
func (m *Mock) Snapshot() map[string]string {
	m.Lock()
	defer m.Unlock()
	ret := make(map[string]string, len(m.store))
	for k, v := range m.store {
		ret[k] = v
	}
	return ret
}

// advance moves replication forward by one read. Callers must hold the lock.
func (m *Mock) advance() {
	remaining := m.pending[:0]
	for _, w := range m.pending {
		w.remaining--
		if w.remaining > 0 {
			remaining = append(remaining, w)
			continue
		}
		if w.deleted {
			delete(m.store, w.key)
		} else {
			m.store[w.key] = w.value
		}
	}
	m.pending = remaining
}

func (m *Mock) Put(ctx context.Context, key, value string) error {
	m.Lock()
	defer m.Unlock()
	if err := m.errs[OpPut]; err != nil {
		return derror.WrapError(derror.ErrStoreOpFail, err)
	}
	if m.lag > 0 {
		m.pending = append(m.pending, pendingWrite{key: key, value: value, remaining: m.lag})
		return nil
	}
	m.store[key] = value
	return nil
}

func (m *Mock) Get(ctx context.Context, key string) (string, error) {
	m.Lock()
	defer m.Unlock()
	if err := m.errs[OpGet]; err != nil {
		return "", derror.WrapError(derror.ErrStoreOpFail, err)
	}
	m.advance()
	value, ok := m.store[key]
	if !ok {
		return "", derror.ErrStoreEntryNotFound.GenWithStackByArgs(key)
	}
	return value, nil
}

func (m *Mock) GetPrefix(ctx context.Context, prefix string) (map[string]string, error) {
	m.Lock()
	defer m.Unlock()
	if err := m.errs[OpGetPrefix]; err != nil {
		return nil, derror.WrapError(derror.ErrStoreOpFail, err)
	}
	m.advance()
	ret := make(map[string]string)
	for k, v := range m.store {
		if strings.HasPrefix(k, prefix) {
			ret[k] = v
		}
	}
	return ret, nil
}

func (m *Mock) Delete(ctx context.Context, key string) error {
	m.Lock()
	defer m.Unlock()
	if err := m.errs[OpDelete]; err != nil {
		return derror.WrapError(derror.ErrStoreOpFail, err)
	}
	if m.lag > 0 {
		m.pending = append(m.pending, pendingWrite{key: key, deleted: true, remaining: m.lag})
		return nil
	}
	delete(m.store, key)
	return nil
}

func (m *Mock) Close() error {
	return nil
}
