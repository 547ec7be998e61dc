package retry

import (
	"errors"
	"math"
	"time"

	"GeoTool/internal/domain"
)

// Backoff computes the wait before the next attempt. failures is the number
// of attempts that have failed so far, starting at 1.
type Backoff interface {
	Delay(failures int) time.Duration
}

// Fixed waits the same delay between every attempt.
type Fixed struct {
	Wait time.Duration
}

func (f Fixed) Delay(int) time.Duration { return f.Wait }

// Exponential waits Multiplier*2^failures seconds clamped into [Min, Max].
type Exponential struct {
	Multiplier float64
	Min        time.Duration
	Max        time.Duration
}

func (e Exponential) Delay(failures int) time.Duration {
	multiplier := e.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	delay := time.Duration(multiplier * math.Pow(2, float64(failures)) * float64(time.Second))
	if delay < e.Min {
		delay = e.Min
	}
	if e.Max > 0 && delay > e.Max {
		delay = e.Max
	}
	return delay
}

// Policy bounds how a unit of work is retried.
type Policy struct {
	MaxAttempts int
	Backoff     Backoff
	Retryable   func(error) bool
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return DefaultRetryable(err)
}

func (p Policy) delay(failures int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff.Delay(failures)
}

// DefaultRetryable retries transient network failures and failed subprocesses.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	if domain.IsTransient(err) {
		return true
	}
	var cmdErr *CommandError
	return errors.As(err, &cmdErr)
}

// LLMPolicy retries model calls three times, waiting 2s then 4s.
func LLMPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff:     Exponential{Multiplier: 1, Min: 2 * time.Second, Max: 10 * time.Second},
		Retryable:   DefaultRetryable,
	}
}

// CommandPolicy retries subprocesses three times with a fixed 2s wait.
func CommandPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff:     Fixed{Wait: 2 * time.Second},
		Retryable:   DefaultRetryable,
	}
}
