package jobengine

import (
	"math"
	"time"

	"github.com/pixforge/genflow/internal/application/backend"
	"github.com/pixforge/genflow/internal/config"
)

// RetryPolicy computes exponential backoff delays for the worker loop's
// submit/resubmit retries: base 5s, factor 2, max 3 retries.
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
	Factor     float64
}

// NewRetryPolicy builds a RetryPolicy from the orchestrator configuration.
func NewRetryPolicy(cfg config.OrchestratorConfig) *RetryPolicy {
	return &RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		Base:       cfg.RetryBackoffBase,
		Factor:     cfg.RetryBackoffFactor,
	}
}

// Delay returns the backoff delay before retry attempt n (1-indexed).
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	multiplier := math.Pow(p.Factor, float64(attempt-1))
	return time.Duration(float64(p.Base) * multiplier)
}

// ShouldRetry reports whether err is a transient condition and retries are
// still available for the given attempt count.
func (p *RetryPolicy) ShouldRetry(err error, retriesSoFar int) bool {
	if err == nil {
		return false
	}
	if retriesSoFar >= p.MaxRetries {
		return false
	}
	return backend.IsTransient(err)
}
