// Package probe decides whether a widget mounted, using the same bounded
// polling schedule as the browser runtime.
package probe

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"widget-preview/internal/widget"
)

// Outcome is the final state of a detection run.
type Outcome string

const (
	Mounted  Outcome = "mounted"
	Fallback Outcome = "fallback"
	Failed   Outcome = "error"
)

// Check reports whether the widget root is present. An error aborts the run.
type Check func(ctx context.Context) (bool, error)

// Result is what Detect observed.
type Result struct {
	Outcome  Outcome
	Attempts int
	Elapsed  time.Duration
	Err      error
}

var errNotMounted = errors.New("probe: widget not mounted yet")

// schedule is a backoff.BackOff that replays a fixed list of waits.
type schedule struct {
	delays []time.Duration
	next   int
}

func (s *schedule) NextBackOff() time.Duration {
	if s.next >= len(s.delays) {
		return backoff.Stop
	}
	d := s.delays[s.next]
	s.next++
	return d
}

func (s *schedule) Reset() { s.next = 0 }

// Detect waits the policy's first delay, then runs check up to
// DetectAttempts times on the policy's schedule. It returns Mounted as soon as
// check succeeds and Fallback once the schedule is exhausted, so it never
// runs longer than the policy's Window.
func Detect(ctx context.Context, p widget.Policy, check Check) Result {
	started := time.Now()
	delays := p.Delays()

	timer := time.NewTimer(delays[0])
	select {
	case <-ctx.Done():
		timer.Stop()
		return Result{Outcome: Failed, Elapsed: time.Since(started), Err: ctx.Err()}
	case <-timer.C:
	}

	attempts := 0
	op := func() error {
		attempts++
		ok, err := check(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errNotMounted
		}
		return nil
	}
	err := backoff.Retry(op, backoff.WithContext(&schedule{delays: delays[1:]}, ctx))

	res := Result{Attempts: attempts, Elapsed: time.Since(started)}
	switch {
	case err == nil:
		res.Outcome = Mounted
	case errors.Is(err, errNotMounted):
		res.Outcome = Fallback
	default:
		res.Outcome = Failed
		res.Err = err
	}
	return res
}
