package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/contractops/msa-extractor/internal/common"
)

// transientKeywords classify a failure as retry-worthy by message content.
var transientKeywords = []string{
	"rate limit",
	"quota",
	"429",
	"500",
	"502",
	"503",
	"504",
	"timeout",
	"deadline",
	"unavailable",
	"retry",
}

// defaultTransientTypes classify a failure as retry-worthy by error type
// name. Network-level request errors are transient regardless of message.
var defaultTransientTypes = []string{
	"*openai.RequestError",
	"*url.Error",
	"*net.OpError",
}

// Retrier runs an LLM call with bounded retry and exponential backoff.
// Counters are local to a single Do call; a Retrier is safe for concurrent
// use.
type Retrier struct {
	maxRetries     int
	initialDelay   time.Duration
	maxDelay       time.Duration
	transientTypes []string
	sleep          func(time.Duration)
	logger         *slog.Logger
}

func NewRetrier(maxRetries int, initialDelay, maxDelay time.Duration, logger *slog.Logger) *Retrier {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if initialDelay <= 0 {
		initialDelay = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{
		maxRetries:     maxRetries,
		initialDelay:   initialDelay,
		maxDelay:       maxDelay,
		transientTypes: defaultTransientTypes,
		sleep:          time.Sleep,
		logger:         logger,
	}
}

// Do runs fn up to maxRetries+1 times. Only transient failures are retried;
// a non-transient failure or exhausted retries surface as a single terminal
// extraction condition carrying the attempt count and last cause.
func (r *Retrier) Do(ctx context.Context, operation string, fn func() (string, error)) (string, error) {
	delay := r.initialDelay
	var lastErr error

	attempts := r.maxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", common.ExtractionError(
				fmt.Sprintf("%s canceled: %v", operation, err),
				map[string]any{"operation": operation, "attempts": attempt - 1},
				err,
			)
		}

		out, err := fn()
		if err == nil {
			if attempt > 1 {
				r.logger.Info("llm.retry.recovered", "operation", operation, "attempt", attempt)
			}
			return out, nil
		}
		lastErr = err

		if !r.isTransient(err) {
			r.logger.Error("llm.call_failed", "operation", operation, "attempt", attempt, "error", err)
			return "", common.ExtractionError(
				fmt.Sprintf("%s failed: %v", operation, err),
				map[string]any{"operation": operation, "attempts": attempt, "transient": false},
				err,
			)
		}
		if attempt == attempts {
			break
		}

		r.logger.Warn("llm.retry.transient",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", attempts,
			"delay", delay,
			"error", err,
		)
		r.sleep(delay)
		delay *= 2
		if delay > r.maxDelay {
			delay = r.maxDelay
		}
	}

	r.logger.Error("llm.retry.exhausted", "operation", operation, "attempts", attempts, "error", lastErr)
	return "", common.ExtractionError(
		fmt.Sprintf("%s failed after %d attempts: %v", operation, attempts, lastErr),
		map[string]any{"operation": operation, "attempts": attempts, "transient": true},
		lastErr,
	)
}

func (r *Retrier) isTransient(err error) bool {
	typeName := fmt.Sprintf("%T", err)
	for _, t := range r.transientTypes {
		if typeName == t {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range transientKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}
