package registry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"
)

// rateLimitKey is the limiter bucket shared by every registry request.
const rateLimitKey = "registry"

// ResilienceConfig configures resilience patterns for registry requests.
type ResilienceConfig struct {
	// Rate limiting
	RateLimitRPM int // Requests per minute (0 = disabled)

	// Retry configuration
	RetryAttempts    int
	RetryInitialWait time.Duration
	RetryMaxWait     time.Duration

	// Circuit breaker
	CircuitBreakerEnabled     bool
	CircuitBreakerThreshold   int           // failures before opening
	CircuitBreakerTimeout     time.Duration // how long to stay open
	CircuitBreakerMaxRequests int           // requests allowed in half-open
}

// DefaultResilienceConfig returns the defaults for the public npm registry.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		RateLimitRPM:              600,
		RetryAttempts:             3,
		RetryInitialWait:          200 * time.Millisecond,
		RetryMaxWait:              5 * time.Second,
		CircuitBreakerEnabled:     true,
		CircuitBreakerThreshold:   5,
		CircuitBreakerTimeout:     30 * time.Second,
		CircuitBreakerMaxRequests: 1,
	}
}

// Resilience wraps Fortify resilience patterns around registry fetches.
type Resilience struct {
	rateLimiter    ratelimit.RateLimiter
	retrier        retry.Retry[[]byte]
	circuitBreaker circuitbreaker.CircuitBreaker[[]byte]
	config         ResilienceConfig
}

// NewResilience creates a new resilience wrapper with the given configuration.
func NewResilience(cfg ResilienceConfig) *Resilience {
	r := &Resilience{config: cfg}

	if cfg.RateLimitRPM > 0 {
		r.rateLimiter = ratelimit.New(&ratelimit.Config{
			Rate:     cfg.RateLimitRPM,
			Burst:    cfg.RateLimitRPM,
			Interval: time.Minute,
		})
	}

	if cfg.RetryAttempts > 0 {
		r.retrier = retry.New[[]byte](retry.Config{
			MaxAttempts:   cfg.RetryAttempts,
			InitialDelay:  cfg.RetryInitialWait,
			MaxDelay:      cfg.RetryMaxWait,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
			Jitter:        true,
			IsRetryable:   isRetryableError,
		})
	}

	if cfg.CircuitBreakerEnabled {
		threshold := cfg.CircuitBreakerThreshold
		r.circuitBreaker = circuitbreaker.New[[]byte](circuitbreaker.Config{
			MaxRequests: uint32(cfg.CircuitBreakerMaxRequests), // #nosec G115 -- bounded config value
			Interval:    cfg.CircuitBreakerTimeout,
			Timeout:     cfg.CircuitBreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- bounded config value
			},
		})
	}

	return r
}

// Execute runs the operation with all configured resilience patterns.
// Order: Rate Limit → Circuit Breaker → Retry → Operation
func (r *Resilience) Execute(ctx context.Context, operation func(context.Context) ([]byte, error)) ([]byte, error) {
	if r == nil {
		return operation(ctx)
	}

	if r.rateLimiter != nil {
		if err := r.rateLimiter.Wait(ctx, rateLimitKey); err != nil {
			return nil, err
		}
	}

	if r.circuitBreaker != nil {
		return r.circuitBreaker.Execute(ctx, func(ctx context.Context) ([]byte, error) {
			return r.executeWithRetry(ctx, operation)
		})
	}
	return r.executeWithRetry(ctx, operation)
}

func (r *Resilience) executeWithRetry(ctx context.Context, operation func(context.Context) ([]byte, error)) ([]byte, error) {
	if r.retrier != nil {
		return r.retrier.Do(ctx, operation)
	}
	return operation(ctx)
}

// statusError is a registry response with an unexpected status.
type statusError struct {
	status int
	name   string
}

func (e *statusError) Error() string {
	return "registry returned " + http.StatusText(e.status) + " for " + e.name
}

// isRetryableError reports whether a failed fetch is worth repeating.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return IsRetryableHTTPStatus(se.status)
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return false
}

// IsRetryableHTTPStatus returns true for HTTP status codes worth retrying.
func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// CircuitBreakerState returns the current state of the circuit breaker.
// Returns "closed", "half-open", "open", or "disabled".
func (r *Resilience) CircuitBreakerState() string {
	if r == nil || r.circuitBreaker == nil {
		return "disabled"
	}
	return r.circuitBreaker.State().String()
}

// Close releases resources held by resilience components.
func (r *Resilience) Close() error {
	if r == nil || r.rateLimiter == nil {
		return nil
	}
	return r.rateLimiter.Close()
}
