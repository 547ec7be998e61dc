package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ExhaustedError is returned once every attempt failed with a retryable error.
type ExhaustedError struct {
	Op       string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Executor runs units of work under a Policy.
type Executor struct {
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewExecutor builds an executor that logs every attempt.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{logger: logger, sleep: sleepContext}
}

// WithSleep replaces the wait function, used by tests to avoid real delays.
func (e *Executor) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Executor {
	clone := *e
	clone.sleep = sleep
	return &clone
}

// Do executes fn until it succeeds, fails with a non-retryable error or the
// policy runs out of attempts.
func (e *Executor) Do(ctx context.Context, op string, policy Policy, fn func(ctx context.Context) error) error {
	attempts := policy.attempts()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 1 {
				e.logger.Info("attempt succeeded", "op", op, "attempt", attempt)
			} else {
				e.logger.Debug("attempt succeeded", "op", op, "attempt", attempt)
			}
			return nil
		}

		if !policy.retryable(lastErr) {
			e.logger.Error("attempt failed, not retryable", "op", op, "attempt", attempt, "error", lastErr)
			return lastErr
		}

		if attempt == attempts {
			e.logger.Error("attempt failed, giving up", "op", op, "attempt", attempt, "error", lastErr)
			break
		}

		delay := policy.delay(attempt)
		e.logger.Warn("attempt failed, retrying", "op", op, "attempt", attempt, "max_attempts", attempts, "delay", delay, "error", lastErr)
		if err := e.sleep(ctx, delay); err != nil {
			return &ExhaustedError{Op: op, Attempts: attempt, Last: lastErr}
		}
	}

	return &ExhaustedError{Op: op, Attempts: attempts, Last: lastErr}
}

// Run is Do for units of work that produce a value.
func Run[T any](ctx context.Context, e *Executor, op string, policy Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Do(ctx, op, policy, func(ctx context.Context) error {
		value, err := fn(ctx)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	return result, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
