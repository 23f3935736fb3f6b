// Package retry implements the caller-side retry policy. Provider clients never
// retry on their own; a command that wants resilience wraps its call in Do.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"

	moderr "github.com/lizzyg/gemrouter/errors"
)

// Config holds retry configuration parameters
type Config struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay"`
	JitterRatio float64       `json:"jitter_ratio"`

	// OnRetry, when set, is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error) `json:"-"`
}

// DefaultConfig returns the default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    3 * time.Second,
		JitterRatio: 0.25,
	}
}

// Do calls fn until it succeeds, returns a non-transient error, or the attempt
// budget is spent. Waiting honours ctx.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	attempt := 0
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		attempt++
		if attempt >= cfg.MaxAttempts {
			return err
		}
		delay := Backoff(cfg, attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, delay, err)
		}
		select {
		case <-ctx.Done():
			return moderr.Cancelled(ctx.Err())
		case <-time.After(delay):
		}
	}
}

// Backoff returns the wait before retry number attempt (1-based): exponential
// growth capped at MaxDelay plus up to JitterRatio random jitter.
func Backoff(cfg Config, attempt int) time.Duration {
	delay := time.Duration(float64(cfg.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	jitter := time.Duration(rand.Float64() * cfg.JitterRatio * float64(delay))
	return delay + jitter
}

// IsTransient reports whether err is worth retrying: 429 and 5xx upstream
// statuses and network timeouts. Cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, moderr.ErrCancelled) {
		return false
	}
	var up *moderr.UpstreamError
	if errors.As(err, &up) {
		return up.Status == http.StatusTooManyRequests || up.Status >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
