package clock

import (
	"time"

	bclock "github.com/benbjohnson/clock"
	"github.com/gavv/monotime"
)

// Clock combines the standard time functions used by the engine so that tests
// can swap in a mock implementation.
type Clock interface {
	// Now returns the current local time.
	Now() time.Time
	// Mono returns a monotonic clock reading, suitable for measuring elapsed
	// time across wall clock adjustments.
	Mono() time.Duration
	Since(t time.Time) time.Duration
	Sleep(d time.Duration)
	After(d time.Duration) <-chan time.Time
	Timer(d time.Duration) *bclock.Timer
	Ticker(d time.Duration) *bclock.Ticker
}

type withRealTimeMono struct {
	bclock.Clock
}

func (r withRealTimeMono) Mono() time.Duration {
	return monotime.Now()
}

// Mock is a Clock whose reading only advances when told to. Use Add to move
// time forward.
type Mock struct {
	*bclock.Mock
}

func (m *Mock) Mono() time.Duration {
	return m.Mock.Now().Sub(time.Unix(0, 0))
}

// New returns a Clock backed by the system clock.
func New() Clock {
	return withRealTimeMono{Clock: bclock.New()}
}

// NewMock returns a mock Clock initially set to the zero reading.
func NewMock() *Mock {
	return &Mock{Mock: bclock.NewMock()}
}
