// Package retry wraps outbound HTTP calls with bounded retries, exponential
// backoff with jitter and a configurable set of retryable status codes.
//
// Retry control flow is an explicit Decision value consumed by a plain loop,
// not panic/recover or sentinel-driven unwinding. Per-call retry state is
// owned by the issuing goroutine; only the Retry-After hint bookkeeping is
// shared across calls and guarded by a mutex.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	sethretry "github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/genofetch/internal/common"
	"github.com/dmitrijs2005/genofetch/internal/config"
	"github.com/dmitrijs2005/genofetch/internal/logging"
)

// DefaultBackoffBase is the starting delay of the exponential schedule.
const DefaultBackoffBase = 500 * time.Millisecond

// Policy specifies how a logical call is retried.
type Policy struct {
	MaxRetries           int
	RetryableStatusCodes map[int]struct{}
	BackoffBase          time.Duration
	BackoffMax           time.Duration
	Jitter               time.Duration

	// ReraiseFinalError selects whether exhaustion surfaces the last
	// underlying error or the common.ErrRetryExhausted marker.
	ReraiseFinalError bool

	// RetryAfterApplicableFor bounds how many subsequent calls a
	// server-supplied Retry-After hint stays authoritative for.
	RetryAfterApplicableFor int
}

// PolicyFromConfig builds the engine policy from the validated runtime config.
func PolicyFromConfig(cfg *config.Config) Policy {
	codes := make(map[int]struct{}, len(cfg.RetryStatusCodes))
	for _, c := range cfg.RetryStatusCodes {
		codes[c] = struct{}{}
	}
	return Policy{
		MaxRetries:              cfg.MaxRetries,
		RetryableStatusCodes:    codes,
		BackoffBase:             DefaultBackoffBase,
		BackoffMax:              cfg.ExponentialBackoffMax,
		Jitter:                  cfg.PerRequestJitter,
		ReraiseFinalError:       true,
		RetryAfterApplicableFor: cfg.RetryAfterApplicableForNumRequests,
	}
}

type decisionKind int

const (
	decisionSucceed decisionKind = iota
	decisionRetry
	decisionFail
)

// Decision is the outcome of inspecting one attempt.
type Decision struct {
	kind  decisionKind
	delay time.Duration
	err   error
}

func succeed() Decision                        { return Decision{kind: decisionSucceed} }
func retryAfter(d time.Duration, cause error) Decision { return Decision{kind: decisionRetry, delay: d, err: cause} }
func fail(err error) Decision                  { return Decision{kind: decisionFail, err: err} }

// Engine executes calls under a Policy. One Engine is shared process-wide so
// Retry-After hints are honored across calls until discounted.
type Engine struct {
	policy Policy
	log    logging.Logger

	sleep func(ctx context.Context, d time.Duration) error

	mu            sync.Mutex
	hint          time.Duration
	hintRemaining int
}

func NewEngine(policy Policy, log logging.Logger) *Engine {
	if policy.BackoffBase <= 0 {
		policy.BackoffBase = DefaultBackoffBase
	}
	return &Engine{
		policy: policy,
		log:    log,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Execute issues call, retrying per the engine policy. It returns the last
// response alongside any terminal error; retried responses have their bodies
// drained and closed so connections are reused.
func (e *Engine) Execute(ctx context.Context, call func(ctx context.Context) (*http.Response, error)) (*http.Response, error) {
	backoff := e.newBackoff()

	var (
		lastResp *http.Response
		lastErr  error
	)

	for attempt := 0; ; attempt++ {
		resp, err := call(ctx)
		d := e.decide(resp, err, backoff)

		switch d.kind {
		case decisionSucceed:
			return resp, nil

		case decisionFail:
			return resp, d.err

		case decisionRetry:
			lastResp, lastErr = resp, d.err

			if attempt >= e.policy.MaxRetries {
				return lastResp, e.exhausted(attempt+1, lastErr)
			}

			drain(resp)
			if e.log != nil {
				e.log.Debug(ctx, "retrying call",
					"attempt", attempt+1, "delay", d.delay, "cause", d.err)
			}
			if serr := e.sleep(ctx, d.delay); serr != nil {
				return nil, serr
			}
		}
	}
}

func (e *Engine) newBackoff() sethretry.Backoff {
	return e.policy.NewBackoff()
}

// NewBackoff returns a fresh delay schedule following the policy: exponential
// from BackoffBase, capped at BackoffMax, plus uniform(0, Jitter). The jitter
// is strictly additive; a delay never lands below the exponential floor.
func (p Policy) NewBackoff() sethretry.Backoff {
	base := p.BackoffBase
	if base <= 0 {
		base = DefaultBackoffBase
	}
	b := sethretry.NewExponential(base)
	b = sethretry.WithCappedDuration(p.BackoffMax, b)
	if p.Jitter <= 0 {
		return b
	}
	return sethretry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := b.Next()
		if stop {
			return d, true
		}
		return d + time.Duration(rand.Int63n(int64(p.Jitter))), false
	})
}

// decide classifies one attempt outcome. Delay selection prefers an active
// Retry-After hint over the computed backoff.
func (e *Engine) decide(resp *http.Response, err error, backoff sethretry.Backoff) Decision {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fail(err)
		}
		if isTransient(err) {
			return retryAfter(e.nextDelay(backoff), err)
		}
		return fail(err)
	}

	if resp == nil {
		return fail(fmt.Errorf("call returned neither response nor error"))
	}

	if _, ok := e.policy.RetryableStatusCodes[resp.StatusCode]; ok {
		e.observeRetryAfter(resp)
		return retryAfter(e.nextDelay(backoff), fmt.Errorf("status %s", resp.Status))
	}

	return succeed()
}

func (e *Engine) exhausted(attempts int, lastErr error) error {
	if e.policy.ReraiseFinalError && lastErr != nil {
		return fmt.Errorf("%w after %d attempts: %w", common.ErrRetryExhausted, attempts, lastErr)
	}
	return fmt.Errorf("%w after %d attempts", common.ErrRetryExhausted, attempts)
}

// observeRetryAfter records a server-supplied Retry-After hint. The hint
// stays authoritative for at most RetryAfterApplicableFor subsequent calls,
// so a stale hint cannot throttle the engine forever.
func (e *Engine) observeRetryAfter(resp *http.Response) {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return
	}
	e.mu.Lock()
	e.hint = time.Duration(secs) * time.Second
	e.hintRemaining = e.policy.RetryAfterApplicableFor
	e.mu.Unlock()
}

func (e *Engine) nextDelay(backoff sethretry.Backoff) time.Duration {
	if d, ok := e.consumeHint(); ok {
		return d
	}
	d, stop := backoff.Next()
	if stop {
		return e.policy.BackoffMax
	}
	return d
}

func (e *Engine) consumeHint() (time.Duration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hintRemaining <= 0 {
		return 0, false
	}
	e.hintRemaining--
	return e.hint, true
}

// isTransient reports whether err looks like a transient network fault worth
// retrying: timeouts, refused/reset connections, truncated bodies.
func isTransient(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	var operr *net.OpError
	if errors.As(err, &operr) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	return false
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
