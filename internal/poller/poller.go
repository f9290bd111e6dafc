// Package poller drives repeated status checks against the generation
// service until a task reaches a terminal state or the attempt budget runs
// out.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"imageforge/internal/domain"
	"imageforge/internal/providers/quickdraw"
)

const (
	// DefaultMaxAttempts bounds a poll at roughly two minutes with the
	// default interval. Worst-case wait stays predictable because the delay
	// is fixed rather than exponential.
	DefaultMaxAttempts = 60
	DefaultInterval    = 2 * time.Second

	// progressCeiling reserves the last slice of the bar for the terminal
	// transition so observers never see 100% while the task is still open.
	progressCeiling = 0.95
)

// StatusFetcher is the single provider call the poller depends on.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, taskID string) (quickdraw.TaskSnapshot, error)
}

// ProgressFunc receives a completion fraction in [0, 1] after every attempt.
type ProgressFunc func(fraction float64)

// Options configures a Poller.
type Options struct {
	MaxAttempts int
	Interval    time.Duration
	Logger      *zerolog.Logger
}

// Outcome is the terminal result of a poll. Status is always one of success,
// failed or timeout; timeout means the remote outcome is indeterminate, not
// that the job is known to have failed.
type Outcome struct {
	Status        domain.JobStatus
	ResultURLs    []string
	FailureReason string
	CostTimeMS    int64
	Attempts      int
}

// Poller re-checks task status on a fixed schedule. Safe for concurrent use.
type Poller struct {
	client      StatusFetcher
	maxAttempts int
	interval    time.Duration
	logger      *zerolog.Logger
}

// New builds a Poller around client.
func New(client StatusFetcher, opts Options) *Poller {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		client:      client,
		maxAttempts: maxAttempts,
		interval:    interval,
		logger:      opts.Logger,
	}
}

// Wait blocks until the task resolves, the attempt budget is exhausted, or
// ctx is cancelled. A fetch error is not terminal: the attempt is consumed
// and polling continues, matching the schedule of a plain re-check. The one
// exception is a malformed success payload, which is returned immediately
// because the provider has already reported a terminal state.
func (p *Poller) Wait(ctx context.Context, taskID string, progress ProgressFunc) (Outcome, error) {
	if taskID == "" {
		return Outcome{}, errors.New("poller: task id is required")
	}

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		snap, err := p.client.FetchStatus(ctx, taskID)
		switch {
		case err != nil:
			var malformed *domain.MalformedResultError
			if errors.As(err, &malformed) {
				return Outcome{}, err
			}
			if ctx.Err() != nil {
				return Outcome{}, ctx.Err()
			}
			if p.logger != nil {
				p.logger.Warn().Err(err).Str("task_id", taskID).Int("attempt", attempt).Msg("poller: status check failed, will re-check")
			}
		case snap.State == quickdraw.TaskSuccess:
			if len(snap.ResultURLs) == 0 {
				// Success carries result URLs or it is not a usable success.
				return Outcome{}, &domain.MalformedResultError{Stage: "resultJson", Cause: errors.New("success reported without result urls")}
			}
			report(progress, 1)
			return Outcome{
				Status:     domain.JobStatusSuccess,
				ResultURLs: snap.ResultURLs,
				CostTimeMS: snap.CostTimeMS,
				Attempts:   attempt,
			}, nil
		case snap.State == quickdraw.TaskFailed:
			report(progress, 1)
			reason := snap.FailMsg
			if reason == "" {
				reason = "provider reported failure"
			}
			return Outcome{
				Status:        domain.JobStatusFailed,
				FailureReason: reason,
				CostTimeMS:    snap.CostTimeMS,
				Attempts:      attempt,
			}, nil
		}

		report(progress, min(float64(attempt)/float64(p.maxAttempts), progressCeiling))

		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case <-time.After(p.interval):
		}
	}

	return Outcome{
		Status:        domain.JobStatusTimeout,
		FailureReason: fmt.Sprintf("no terminal state after %d attempts", p.maxAttempts),
		Attempts:      p.maxAttempts,
	}, nil
}

// Start runs Wait in its own goroutine and returns a handle the caller can
// await or cancel. Cancellation takes effect between attempts; the in-flight
// provider call is bounded by the client's own deadline.
func (p *Poller) Start(ctx context.Context, taskID string, progress ProgressFunc) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(h.done)
		defer cancel()
		h.outcome, h.err = p.Wait(ctx, taskID, progress)
	}()
	return h
}

// Handle tracks an in-flight poll started with Start.
type Handle struct {
	done    chan struct{}
	cancel  context.CancelFunc
	outcome Outcome
	err     error
}

// Done is closed when the poll resolves.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancel stops the poll at the next attempt boundary.
func (h *Handle) Cancel() { h.cancel() }

// Outcome blocks until the poll resolves and returns its result.
func (h *Handle) Outcome() (Outcome, error) {
	<-h.done
	return h.outcome, h.err
}

func report(progress ProgressFunc, fraction float64) {
	if progress != nil {
		progress(fraction)
	}
}
