package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/genofetch/internal/common"
	"github.com/dmitrijs2005/genofetch/internal/logging"
)

func testPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		RetryableStatusCodes: map[int]struct{}{
			http.StatusServiceUnavailable: {},
			http.StatusBadGateway:         {},
		},
		BackoffBase:             time.Millisecond,
		BackoffMax:              10 * time.Millisecond,
		RetryAfterApplicableFor: 2,
	}
}

// newTestEngine returns an engine whose sleeps are recorded instead of slept.
func newTestEngine(p Policy) (*Engine, *[]time.Duration) {
	e := NewEngine(p, logging.NewDiscard())
	var slept []time.Duration
	e.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return e, &slept
}

func makeResponse(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("body")),
	}
}

func TestExecute_HaltsAfterExactlyMaxRetries(t *testing.T) {
	e, _ := newTestEngine(testPolicy())

	attempts := 0
	_, err := e.Execute(context.Background(), func(ctx context.Context) (*http.Response, error) {
		attempts++
		return makeResponse(http.StatusServiceUnavailable), nil
	})

	require.Error(t, err)
	require.ErrorIs(t, err, common.ErrRetryExhausted)
	// 1 initial + 3 retries
	require.Equal(t, 4, attempts)
}

func TestExecute_ReraiseFinalErrorDisabled(t *testing.T) {
	p := testPolicy()
	p.ReraiseFinalError = false
	e, _ := newTestEngine(p)

	_, err := e.Execute(context.Background(), func(ctx context.Context) (*http.Response, error) {
		return makeResponse(http.StatusBadGateway), nil
	})

	require.ErrorIs(t, err, common.ErrRetryExhausted)
	require.NotContains(t, err.Error(), "502")
}

func TestExecute_ReraiseFinalErrorEnabled(t *testing.T) {
	p := testPolicy()
	p.ReraiseFinalError = true
	e, _ := newTestEngine(p)

	_, err := e.Execute(context.Background(), func(ctx context.Context) (*http.Response, error) {
		return makeResponse(http.StatusBadGateway), nil
	})

	require.ErrorIs(t, err, common.ErrRetryExhausted)
	require.Contains(t, err.Error(), "502")
}

func TestExecute_RecoversFromTransientFault(t *testing.T) {
	e, slept := newTestEngine(testPolicy())

	attempts := 0
	resp, err := e.Execute(context.Background(), func(ctx context.Context) (*http.Response, error) {
		attempts++
		if attempts < 3 {
			return nil, &net.OpError{Op: "dial", Err: errors.New("connection refused")}
		}
		return makeResponse(http.StatusOK), nil
	})

	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 3, attempts)
	require.Len(t, *slept, 2)
}

func TestExecute_NonRetryableErrorFailsImmediately(t *testing.T) {
	e, _ := newTestEngine(testPolicy())

	attempts := 0
	boom := errors.New("boom")
	_, err := e.Execute(context.Background(), func(ctx context.Context) (*http.Response, error) {
		attempts++
		return nil, boom
	})

	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, attempts)
}

func TestExecute_SuccessStatusNotRetried(t *testing.T) {
	e, _ := newTestEngine(testPolicy())

	attempts := 0
	resp, err := e.Execute(context.Background(), func(ctx context.Context) (*http.Response, error) {
		attempts++
		return makeResponse(http.StatusNotFound), nil
	})

	// 404 is not in the retryable set: the engine hands it back untouched.
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, 1, attempts)
}

func TestExecute_RetryAfterHintOverridesBackoffAndIsDiscounted(t *testing.T) {
	p := testPolicy()
	p.MaxRetries = 4
	e, slept := newTestEngine(p)

	attempts := 0
	_, err := e.Execute(context.Background(), func(ctx context.Context) (*http.Response, error) {
		attempts++
		resp := makeResponse(http.StatusServiceUnavailable)
		if attempts == 1 {
			resp.Header.Set("Retry-After", "7")
		}
		return resp, nil
	})

	require.ErrorIs(t, err, common.ErrRetryExhausted)
	require.Len(t, *slept, 4)
	// The hint applies for RetryAfterApplicableFor calls, then the computed
	// backoff takes over again.
	require.Equal(t, 7*time.Second, (*slept)[0])
	require.Equal(t, 7*time.Second, (*slept)[1])
	require.Less(t, (*slept)[2], time.Second)
	require.Less(t, (*slept)[3], time.Second)
}

func TestPolicyBackoff_JitterNeverUndercutsBaseDelay(t *testing.T) {
	p := Policy{
		BackoffBase: 100 * time.Millisecond,
		BackoffMax:  100 * time.Millisecond,
		Jitter:      50 * time.Millisecond,
	}

	b := p.NewBackoff()
	for i := 0; i < 50; i++ {
		d, stop := b.Next()
		require.False(t, stop)
		// the cap pins the exponential floor at 100ms; jitter only adds
		require.GreaterOrEqual(t, d, 100*time.Millisecond)
		require.Less(t, d, 150*time.Millisecond)
	}
}

func TestExecute_ContextCancellationStopsRetrying(t *testing.T) {
	e := NewEngine(testPolicy(), logging.NewDiscard())

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	_, err := e.Execute(ctx, func(ctx context.Context) (*http.Response, error) {
		attempts++
		cancel()
		return makeResponse(http.StatusServiceUnavailable), nil
	})

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, attempts)
}
