package retry

import (
	"context"
	"testing"
	"time"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsAfterRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithMaxTries(5), WithInterval(time.Millisecond))
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestDoExhaustsBudget(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func() error {
		attempts++
		return errors.Errorf("attempt %d", attempts)
	}, WithMaxTries(4), WithInterval(time.Millisecond))
	require.Error(t, err)
	require.Equal(t, 4, attempts)
	require.Contains(t, err.Error(), "attempt 4")
}

func TestDoNonRetryableAborts(t *testing.T) {
	fatal := errors.New("fatal")
	attempts := 0
	err := Do(context.Background(), func() error {
		attempts++
		return fatal
	},
		WithMaxTries(10),
		WithInterval(time.Millisecond),
		WithIsRetryable(func(err error) bool { return false }),
	)
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestDoContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, func() error {
		t.Fatal("fn must not run with a canceled context")
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}
